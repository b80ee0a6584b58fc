// Package instruction defines the closed set of ledger instructions and the
// signed transaction envelope that carries one to the ledger.
package instruction

import (
	"encoding/json"
	"fmt"

	"github.com/alfredjeanlab/paywall/internal/model"
)

// Kind names an instruction.
type Kind string

const (
	KindCreateArticle    Kind = "create_article"
	KindPurchase         Kind = "purchase"
	KindSetArticlePrice  Kind = "set_article_price"
	KindSetFeeConfig     Kind = "set_fee_config"
	KindOpenTokenAccount Kind = "open_token_account"
	KindDeposit          Kind = "deposit"
)

// Kinds lists every instruction kind.
var Kinds = []Kind{
	KindCreateArticle, KindPurchase, KindSetArticlePrice,
	KindSetFeeConfig, KindOpenTokenAccount, KindDeposit,
}

// IsValid checks whether the kind is a known value.
func (k Kind) IsValid() bool {
	switch k {
	case KindCreateArticle, KindPurchase, KindSetArticlePrice,
		KindSetFeeConfig, KindOpenTokenAccount, KindDeposit:
		return true
	}
	return false
}

// CreateArticle registers a new article owned by the signer.
type CreateArticle struct {
	Sequence       uint64        `json:"sequence"`
	ContentLocator string        `json:"content_locator"`
	PaymentAsset   model.Address `json:"payment_asset"`
	Price          uint64        `json:"price"`
	RoyaltyBps     uint16        `json:"royalty_bps"`
	Transferable   bool          `json:"transferable"`
}

// Purchase buys access to an article for the signer.
type Purchase struct {
	Article      model.Address  `json:"article"`
	PaymentAsset model.Address  `json:"payment_asset"`
	Referrer     *model.Address `json:"referrer,omitempty"`
}

// SetArticlePrice changes the price of an article the signer created.
type SetArticlePrice struct {
	Article  model.Address `json:"article"`
	NewPrice uint64        `json:"new_price"`
}

// SetFeeConfig creates or overwrites the fee schedule.
type SetFeeConfig struct {
	ProtocolFeeBps uint16        `json:"protocol_fee_bps"`
	ReferrerFeeBps uint16        `json:"referrer_fee_bps"`
	Treasury       model.Address `json:"treasury"`
}

// OpenTokenAccount opens the signer's balance account for an asset.
type OpenTokenAccount struct {
	Asset model.Address `json:"asset"`
}

// Deposit credits an owner's balance. Only the fee schedule admin may sign it.
type Deposit struct {
	Owner  model.Address `json:"owner"`
	Asset  model.Address `json:"asset"`
	Amount uint64        `json:"amount"`
}

// Instruction is a tagged variant: Kind names the single non-nil argument
// struct.
type Instruction struct {
	Kind             Kind              `json:"kind"`
	CreateArticle    *CreateArticle    `json:"create_article,omitempty"`
	Purchase         *Purchase         `json:"purchase,omitempty"`
	SetArticlePrice  *SetArticlePrice  `json:"set_article_price,omitempty"`
	SetFeeConfig     *SetFeeConfig     `json:"set_fee_config,omitempty"`
	OpenTokenAccount *OpenTokenAccount `json:"open_token_account,omitempty"`
	Deposit          *Deposit          `json:"deposit,omitempty"`
}

func NewCreateArticle(args CreateArticle) Instruction {
	return Instruction{Kind: KindCreateArticle, CreateArticle: &args}
}

func NewPurchase(args Purchase) Instruction {
	return Instruction{Kind: KindPurchase, Purchase: &args}
}

func NewSetArticlePrice(args SetArticlePrice) Instruction {
	return Instruction{Kind: KindSetArticlePrice, SetArticlePrice: &args}
}

func NewSetFeeConfig(args SetFeeConfig) Instruction {
	return Instruction{Kind: KindSetFeeConfig, SetFeeConfig: &args}
}

func NewOpenTokenAccount(args OpenTokenAccount) Instruction {
	return Instruction{Kind: KindOpenTokenAccount, OpenTokenAccount: &args}
}

func NewDeposit(args Deposit) Instruction {
	return Instruction{Kind: KindDeposit, Deposit: &args}
}

// Validate checks that exactly the argument struct named by Kind is set.
func (in *Instruction) Validate() error {
	set := 0
	for _, p := range []bool{
		in.CreateArticle != nil, in.Purchase != nil, in.SetArticlePrice != nil,
		in.SetFeeConfig != nil, in.OpenTokenAccount != nil, in.Deposit != nil,
	} {
		if p {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("instruction: expected exactly one argument set, got %d", set)
	}

	var ok bool
	switch in.Kind {
	case KindCreateArticle:
		ok = in.CreateArticle != nil
	case KindPurchase:
		ok = in.Purchase != nil
	case KindSetArticlePrice:
		ok = in.SetArticlePrice != nil
	case KindSetFeeConfig:
		ok = in.SetFeeConfig != nil
	case KindOpenTokenAccount:
		ok = in.OpenTokenAccount != nil
	case KindDeposit:
		ok = in.Deposit != nil
	default:
		return fmt.Errorf("instruction: unknown kind %q", in.Kind)
	}
	if !ok {
		return fmt.Errorf("instruction: arguments do not match kind %q", in.Kind)
	}
	return nil
}

// UnmarshalJSON decodes and validates the variant.
func (in *Instruction) UnmarshalJSON(data []byte) error {
	type plain Instruction
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	v := Instruction(p)
	if err := v.Validate(); err != nil {
		return err
	}
	*in = v
	return nil
}
