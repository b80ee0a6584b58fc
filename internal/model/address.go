package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"
)

// AddressLength is the size in bytes of every account identity.
const AddressLength = 32

// Address identifies a wallet, a payment asset, or a program-owned account.
// Wallet addresses are ed25519 public keys; program-owned addresses are derived
// (see package address). The text form is base58.
type Address [AddressLength]byte

// ZeroAddress is the all-zero address. It never identifies a real account.
var ZeroAddress Address

// ParseAddress decodes a base58 address.
func ParseAddress(s string) (Address, error) {
	var a Address
	if s == "" {
		return a, fmt.Errorf("empty address")
	}
	b, err := base58.Decode(s)
	if err != nil {
		return a, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if len(b) != AddressLength {
		return a, fmt.Errorf("invalid address %q: decoded to %d bytes, want %d", s, len(b), AddressLength)
	}
	copy(a[:], b)
	return a, nil
}

// MustParseAddress is like ParseAddress but panics on error. Intended for
// constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AddressFromBytes copies b into an Address. b must be exactly 32 bytes.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressLength {
		return a, fmt.Errorf("address must be %d bytes, got %d", AddressLength, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// String returns the base58 form.
func (a Address) String() string {
	return base58.Encode(a[:])
}

// Short returns the first n characters of the base58 form.
func (a Address) Short(n int) string {
	s := a.String()
	if n >= len(s) {
		return s
	}
	return s[:n]
}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	b := make([]byte, AddressLength)
	copy(b, a[:])
	return b
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalJSON is provided explicitly so Address is never encoded as a byte array.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("address: %w", err)
	}
	return a.UnmarshalText([]byte(s))
}

// Value stores addresses as base58 text columns.
func (a Address) Value() (driver.Value, error) {
	return a.String(), nil
}

// Scan reads a base58 text column.
func (a *Address) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return a.UnmarshalText([]byte(v))
	case []byte:
		return a.UnmarshalText(v)
	case nil:
		return fmt.Errorf("address: cannot scan NULL")
	default:
		return fmt.Errorf("address: cannot scan %T", src)
	}
}
