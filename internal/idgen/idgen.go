// Package idgen provides short, URL-safe unique ID generation backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// TxPrefix is prepended to every ledger transaction ID.
var TxPrefix = "tx-"

// Alphabet defines the character set used for the random portion of the ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters in a transaction ID (excluding
// the prefix).
var Length = 12

// NonceLength is the number of characters in a transaction nonce. Nonces
// are unique per signer for the lifetime of the ledger, so they are longer
// than IDs.
var NonceLength = 24

// TxID returns a new ledger transaction ID.
func TxID() (string, error) {
	return GenerateWithPrefix(TxPrefix)
}

// MustTxID is like TxID but panics if the random source fails.
func MustTxID() string {
	id, err := TxID()
	if err != nil {
		panic(err)
	}
	return id
}

// Nonce returns a fresh nonce for signing a transaction.
func Nonce() (string, error) {
	n, err := nanoid.Generate(Alphabet, NonceLength)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return n, nil
}

// GenerateWithPrefix returns a new unique ID with the given prefix.
func GenerateWithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
