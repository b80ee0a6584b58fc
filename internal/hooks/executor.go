// Package hooks runs operator-configured shell commands in response to
// ledger events, such as unlocking content after a purchase completes.
package hooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Default and max timeout for hook commands.
const (
	DefaultTimeout = 30 * time.Second
	MaxTimeout     = 300 * time.Second
)

// maxOutput caps how much of a hook's output is kept for logs.
const maxOutput = 4 << 10

// Invocation is one run of a hook command.
type Invocation struct {
	Command string
	Timeout time.Duration // zero means DefaultTimeout; capped at MaxTimeout
	Dir     string
	Env     map[string]string // added to the server's environment
	Stdin   []byte
}

// Result is what a hook run produced. Output is trimmed stdout, or stderr
// when stdout is empty.
type Result struct {
	Output   string
	ExitCode int // -1 if the command never exited on its own
	Duration time.Duration
	TimedOut bool
	Err      error
}

// Execute runs inv.Command with "sh -c".
func Execute(ctx context.Context, inv Invocation) Result {
	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	timeout = min(timeout, MaxTimeout)

	if inv.Dir != "" {
		if info, err := os.Stat(inv.Dir); err != nil || !info.IsDir() {
			return Result{ExitCode: -1, Err: fmt.Errorf("hook dir %q is not a directory", inv.Dir)}
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", inv.Command) //nolint:gosec // hook commands come from the operator's hooks file
	cmd.Dir = inv.Dir
	// Background children of the shell can hold the output pipes open.
	cmd.WaitDelay = time.Second
	stdout := &cappedBuffer{max: maxOutput}
	stderr := &cappedBuffer{max: maxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if inv.Stdin != nil {
		cmd.Stdin = bytes.NewReader(inv.Stdin)
	}
	cmd.Env = os.Environ()
	for k, v := range inv.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	start := time.Now()
	err := cmd.Run()
	res := Result{Duration: time.Since(start), ExitCode: -1, Err: err}

	var exitErr *exec.ExitError
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.TimedOut = true
		res.Err = fmt.Errorf("timed out after %s", timeout)
	case err == nil:
		res.ExitCode = 0
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	}

	res.Output = stdout.String()
	if res.Output == "" {
		res.Output = stderr.String()
	}
	return res
}

// cappedBuffer keeps the first max bytes written to it and discards the
// rest while still reporting full writes, so the command never blocks.
type cappedBuffer struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.max - b.buf.Len(); room < len(p) {
		b.buf.Write(p[:max(room, 0)])
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) String() string {
	s := strings.TrimSpace(b.buf.String())
	if b.truncated {
		s += " [truncated]"
	}
	return s
}
