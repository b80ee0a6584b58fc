// Package address derives the deterministic addresses of program-owned
// accounts. Every function is pure: the same program ID and seeds always
// produce the same address, so clients can compute addresses offline.
package address

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"

	"github.com/alfredjeanlab/paywall/internal/model"
)

// Seed tags. Each account kind hashes under its own tag so that addresses of
// different kinds never share a preimage.
const (
	SeedArticle      = "article"
	SeedReceipt      = "receipt"
	SeedFeeConfig    = "fee_config"
	SeedTokenAccount = "token_account"
	SeedAccessToken  = "access_token"
)

// domain separates derived addresses from any other BLAKE2b use of the
// program ID as a key.
const domain = "paywall/derived-address/v1"

// Deriver derives account addresses for one program deployment.
type Deriver struct {
	ProgramID model.Address
}

// New returns a Deriver for programID.
func New(programID model.Address) Deriver {
	return Deriver{ProgramID: programID}
}

// Derive hashes seeds under the program ID. Each seed is length-prefixed,
// which makes the encoding injective: ("ab", "c") and ("a", "bc") differ.
func (d Deriver) Derive(seeds ...[]byte) model.Address {
	h, err := blake2b.New256(d.ProgramID[:])
	if err != nil {
		// Only reachable with a key longer than 64 bytes.
		panic(err)
	}
	var lenBuf [4]byte
	h.Write([]byte(domain))
	for _, s := range seeds {
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
		h.Write(lenBuf[:])
		h.Write(s)
	}
	var out model.Address
	copy(out[:], h.Sum(nil))
	return out
}

// Article returns the address of creator's article with the given sequence.
func (d Deriver) Article(creator model.Address, sequence uint64) model.Address {
	var seq [8]byte
	binary.LittleEndian.PutUint64(seq[:], sequence)
	return d.Derive([]byte(SeedArticle), creator[:], seq[:])
}

// Receipt returns the address of buyer's receipt for article.
func (d Deriver) Receipt(article, buyer model.Address) model.Address {
	return d.Derive([]byte(SeedReceipt), article[:], buyer[:])
}

// FeeConfig returns the address of the fee schedule singleton.
func (d Deriver) FeeConfig() model.Address {
	return d.Derive([]byte(SeedFeeConfig))
}

// TokenAccount returns the address of owner's balance of asset.
func (d Deriver) TokenAccount(owner, asset model.Address) model.Address {
	return d.Derive([]byte(SeedTokenAccount), owner[:], asset[:])
}

// AccessToken returns the address of the access token minted for buyer's
// purchase of article.
func (d Deriver) AccessToken(article, buyer model.Address) model.Address {
	return d.Derive([]byte(SeedAccessToken), article[:], buyer[:])
}
