package wallet

import (
	"crypto/ed25519"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfredjeanlab/paywall/internal/instruction"
	"github.com/alfredjeanlab/paywall/internal/model"
)

func TestGenerate_AddressIsPublicKey(t *testing.T) {
	k, err := Generate()
	require.NoError(t, err)

	pub := k.PrivateKey().Public().(ed25519.PublicKey)
	addr := k.Address()
	assert.Equal(t, []byte(pub), addr[:])
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	k, err := Generate()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keys", "id.json")
	require.NoError(t, Save(path, k))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	dir, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), dir.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "["), "expected JSON byte array, got %q", data)

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, k.Address(), back.Address())
}

func TestSave_RefusesOverwrite(t *testing.T) {
	k, err := Generate()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, Save(path, k))
	assert.Error(t, Save(path, k))
}

func TestLoad_Base58(t *testing.T) {
	k, err := Generate()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "id.b58")
	require.NoError(t, os.WriteFile(path, []byte(base58.Encode(k.PrivateKey())+"\n"), 0o600))

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, k.Address(), back.Address())
}

func TestLoad_Invalid(t *testing.T) {
	k, err := Generate()
	require.NoError(t, err)
	mismatched := append([]byte{}, k.PrivateKey()...)
	mismatched[63] ^= 0xFF

	dir := t.TempDir()
	for name, content := range map[string]string{
		"short":      "[1,2,3]",
		"range":      "[" + strings.Repeat("300,", 63) + "300]",
		"not-base58": "0OIl",
		"mismatch":   base58.Encode(mismatched),
		"bad-json":   "[1,2",
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		_, err := Load(path)
		assert.True(t, errors.Is(err, ErrInvalidKey), "%s: err = %v", name, err)
	}

	_, err = Load(filepath.Join(dir, "absent"))
	assert.Error(t, err)
}

func TestSign(t *testing.T) {
	k, err := Generate()
	require.NoError(t, err)

	var asset model.Address
	asset[0] = 9
	tx, err := k.Sign(instruction.NewOpenTokenAccount(instruction.OpenTokenAccount{Asset: asset}))
	require.NoError(t, err)
	assert.Equal(t, k.Address(), tx.Signer)
	assert.NotEmpty(t, tx.Nonce)
	require.NoError(t, tx.Verify())

	tx2, err := k.Sign(instruction.NewOpenTokenAccount(instruction.OpenTokenAccount{Asset: asset}))
	require.NoError(t, err)
	assert.NotEqual(t, tx.Nonce, tx2.Nonce)
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("PAYWALL_KEYPAIR", "/tmp/custom.json")
	assert.Equal(t, "/tmp/custom.json", DefaultPath())

	t.Setenv("PAYWALL_KEYPAIR", "")
	t.Setenv("HOME", "/home/reader")
	assert.Equal(t, filepath.Join("/home/reader", ".config", "paywall", "id.json"), DefaultPath())
}

func TestFromPrivateKey(t *testing.T) {
	_, err := FromPrivateKey(ed25519.PrivateKey{1, 2})
	assert.ErrorIs(t, err, ErrInvalidKey)
}
