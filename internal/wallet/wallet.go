// Package wallet loads and stores the ed25519 keypairs that sign paywall
// transactions.
//
// Keypair files hold the 64-byte secret key either as a JSON array of
// bytes (the layout common Solana tooling writes) or as a base58 string.
package wallet

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mr-tron/base58"

	"github.com/alfredjeanlab/paywall/internal/idgen"
	"github.com/alfredjeanlab/paywall/internal/instruction"
	"github.com/alfredjeanlab/paywall/internal/model"
)

// ErrInvalidKey is returned when a keypair file does not hold a valid key.
var ErrInvalidKey = errors.New("wallet: invalid keypair")

// Keypair is a signing identity. Its public key is its ledger address.
type Keypair struct {
	key ed25519.PrivateKey
}

// Generate creates a new random keypair.
func Generate() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("wallet: generate: %w", err)
	}
	return &Keypair{key: priv}, nil
}

// FromPrivateKey wraps an existing ed25519 private key.
func FromPrivateKey(key ed25519.PrivateKey) (*Keypair, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, ErrInvalidKey
	}
	return &Keypair{key: key}, nil
}

// Address returns the public key as a ledger address.
func (k *Keypair) Address() model.Address {
	a, _ := model.AddressFromBytes(k.key.Public().(ed25519.PublicKey))
	return a
}

// PrivateKey returns the underlying ed25519 key.
func (k *Keypair) PrivateKey() ed25519.PrivateKey { return k.key }

// Sign wraps in into a transaction signed by k under a fresh nonce.
func (k *Keypair) Sign(in instruction.Instruction) (*instruction.Transaction, error) {
	nonce, err := idgen.Nonce()
	if err != nil {
		return nil, err
	}
	return instruction.New(in, nonce, k.key)
}

// DefaultPath returns PAYWALL_KEYPAIR when set, otherwise
// ~/.config/paywall/id.json.
func DefaultPath() string {
	if p := os.Getenv("PAYWALL_KEYPAIR"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "id.json"
	}
	return filepath.Join(home, ".config", "paywall", "id.json")
}

// Load reads a keypair file in either supported encoding.
func Load(path string) (*Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wallet: read %s: %w", path, err)
	}
	data = bytes.TrimSpace(data)

	var raw []byte
	if len(data) > 0 && data[0] == '[' {
		var ints []int
		if err := json.Unmarshal(data, &ints); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidKey, path, err)
		}
		raw = make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("%w: %s: byte %d out of range", ErrInvalidKey, path, i)
			}
			raw[i] = byte(v)
		}
	} else {
		raw, err = base58.Decode(string(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidKey, path, err)
		}
	}

	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: %s: %d bytes, want %d", ErrInvalidKey, path, len(raw), ed25519.PrivateKeySize)
	}
	key := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
	if !bytes.Equal(key[ed25519.SeedSize:], raw[ed25519.SeedSize:]) {
		return nil, fmt.Errorf("%w: %s: public half does not match seed", ErrInvalidKey, path)
	}
	return &Keypair{key: key}, nil
}

// Save writes k as a JSON byte array. The file is created with 0600
// permissions and its directory with 0700. An existing file is never
// overwritten.
func Save(path string, k *Keypair) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("wallet: %w", err)
	}
	ints := make([]int, len(k.key))
	for i, b := range k.key {
		ints[i] = int(b)
	}
	data, err := json.Marshal(ints)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("wallet: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("wallet: write %s: %w", path, err)
	}
	return f.Close()
}
