package instruction

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/alfredjeanlab/paywall/internal/model"
)

// ErrInvalidSignature is returned by Verify when the signature does not
// match the signer and message.
var ErrInvalidSignature = errors.New("invalid signature")

// Transaction is a signed instruction. Signature is the base58 ed25519
// signature by Signer over SigningBytes.
type Transaction struct {
	Instruction Instruction   `json:"instruction"`
	Signer      model.Address `json:"signer"`
	Nonce       string        `json:"nonce"`
	Signature   string        `json:"signature"`
}

// message is the signed portion of a Transaction. Field order is fixed, so
// encoding/json produces the same bytes on every platform.
type message struct {
	Instruction Instruction   `json:"instruction"`
	Signer      model.Address `json:"signer"`
	Nonce       string        `json:"nonce"`
}

// SigningBytes returns the canonical bytes covered by the signature.
func (tx *Transaction) SigningBytes() ([]byte, error) {
	return json.Marshal(message{Instruction: tx.Instruction, Signer: tx.Signer, Nonce: tx.Nonce})
}

// New builds and signs a transaction. The signer is the public half of key.
func New(in Instruction, nonce string, key ed25519.PrivateKey) (*Transaction, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	signer, err := model.AddressFromBytes(key.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}
	tx := &Transaction{Instruction: in, Signer: signer, Nonce: nonce}
	msg, err := tx.SigningBytes()
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}
	tx.Signature = base58.Encode(ed25519.Sign(key, msg))
	return tx, nil
}

// Verify checks the instruction shape, the nonce, and the signature.
func (tx *Transaction) Verify() error {
	if err := tx.Instruction.Validate(); err != nil {
		return err
	}
	if tx.Nonce == "" {
		return errors.New("transaction nonce is required")
	}
	sig, err := base58.Decode(tx.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return ErrInvalidSignature
	}
	msg, err := tx.SigningBytes()
	if err != nil {
		return fmt.Errorf("encode transaction: %w", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(tx.Signer[:]), msg, sig) {
		return ErrInvalidSignature
	}
	return nil
}
