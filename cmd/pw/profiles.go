package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/BurntSushi/toml"
)

// Profile is a named server and the identity used against it.
type Profile struct {
	HTTPURL  string `toml:"http_url"`
	GRPCAddr string `toml:"grpc_addr,omitempty"`
	NATSURL  string `toml:"nats_url,omitempty"`
	Token    string `toml:"token,omitempty"`
	Keypair  string `toml:"keypair,omitempty"`
}

var errUnknownProfile = errors.New("unknown profile")

// profileFile is the on-disk set of profiles.
type profileFile struct {
	Current  string             `toml:"current"`
	Profiles map[string]Profile `toml:"profile"`
}

// profilesPath is PAYWALL_PROFILES, or profiles.toml beside the default
// keypair.
func profilesPath() (string, error) {
	if p := os.Getenv("PAYWALL_PROFILES"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "paywall", "profiles.toml"), nil
}

// readProfiles loads the profile file. A missing file is an empty set.
func readProfiles() (*profileFile, error) {
	path, err := profilesPath()
	if err != nil {
		return nil, err
	}
	f := &profileFile{}
	if _, err := toml.DecodeFile(path, f); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if f.Profiles == nil {
		f.Profiles = map[string]Profile{}
	}
	return f, nil
}

// save replaces the profile file atomically. Tokens live in it, so it is
// private to the user.
func (f *profileFile) save() error {
	path, err := profilesPath()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".profiles-*.toml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := toml.NewEncoder(tmp).Encode(f); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding profiles: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (f *profileFile) lookup(name string) (Profile, error) {
	p, ok := f.Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w %q", errUnknownProfile, name)
	}
	return p, nil
}

func (f *profileFile) names() []string {
	names := make([]string, 0, len(f.Profiles))
	for name := range f.Profiles {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// currentProfile is the profile named by PAYWALL_PROFILE, or else the
// file's current one. It is read once per process; problems with the file
// leave every field empty so the built-in defaults apply.
var currentProfile = sync.OnceValue(func() Profile {
	f, err := readProfiles()
	if err != nil {
		return Profile{}
	}
	name := os.Getenv("PAYWALL_PROFILE")
	if name == "" {
		name = f.Current
	}
	return f.Profiles[name]
})
