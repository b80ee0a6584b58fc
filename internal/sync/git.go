package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// GitDestination keeps the latest snapshot as a file in a local clone and
// pushes a commit whenever the file changes.
type GitDestination struct {
	repo   string
	file   string
	branch string
}

// NewGitDestination creates a git destination. repo is the path to an
// existing local clone with an origin remote; file is relative to it.
func NewGitDestination(repo, file, branch string) *GitDestination {
	return &GitDestination{repo: repo, file: file, branch: branch}
}

// Name implements Destination.
func (d *GitDestination) Name() string {
	return "git:" + filepath.Join(d.repo, d.file)
}

// Write implements Destination. The header timestamp differs on every
// snapshot, so the working file is only rewritten when the stored digest
// differs from the incoming one.
func (d *GitDestination) Write(ctx context.Context, snap *Snapshot) error {
	if _, err := d.git(ctx, "checkout", d.branch); err != nil {
		return err
	}
	// The remote may not have the branch yet.
	_, _ = d.git(ctx, "pull", "--ff-only", "origin", d.branch)

	path := filepath.Join(d.repo, d.file)
	if current, err := os.ReadFile(path); err == nil && storedDigest(current) == snap.Digest {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	if err := os.WriteFile(path, snap.Data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	if _, err := d.git(ctx, "add", d.file); err != nil {
		return err
	}
	msg := fmt.Sprintf("sync: %d articles, %d receipts, %d token accounts (%s)",
		snap.Counts.Articles, snap.Counts.Receipts, snap.Counts.TokenAccounts, snap.ShortDigest())
	if _, err := d.git(ctx, "commit", "-m", msg); err != nil {
		return err
	}
	if _, err := d.git(ctx, "push", "origin", d.branch); err != nil {
		return err
	}
	return nil
}

// storedDigest reads the digest from the header line of a snapshot file.
func storedDigest(data []byte) string {
	line, _, _ := bytes.Cut(data, []byte("\n"))
	_, rest, ok := bytes.Cut(line, []byte(`"digest":"`))
	if !ok {
		return ""
	}
	digest, _, _ := bytes.Cut(rest, []byte(`"`))
	return string(digest)
}

func (d *GitDestination) git(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = d.repo
	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, fmt.Errorf("git %s: exit %d: %s", args[0], exitErr.ExitCode(), strings.TrimSpace(string(out)))
		}
		return out, fmt.Errorf("git %s: %w", args[0], err)
	}
	return out, nil
}
