package model

import (
	"encoding/json"
	"fmt"
)

// AccountKind tags the record stored at an address.
type AccountKind string

const (
	AccountArticle      AccountKind = "article"
	AccountReceipt      AccountKind = "receipt"
	AccountFeeConfig    AccountKind = "fee_config"
	AccountTokenAccount AccountKind = "token_account"
	AccountAccessToken  AccountKind = "access_token"
)

// String returns the string representation of the kind.
func (k AccountKind) String() string {
	return string(k)
}

// IsValid checks whether the kind is a known value.
func (k AccountKind) IsValid() bool {
	switch k {
	case AccountArticle, AccountReceipt, AccountFeeConfig, AccountTokenAccount, AccountAccessToken:
		return true
	}
	return false
}

// Account is the closed set of records the ledger stores. Exactly one of the
// payload pointers is non-nil and it always matches Kind.
type Account struct {
	Kind         AccountKind   `json:"kind"`
	Article      *Article      `json:"article,omitempty"`
	Receipt      *Receipt      `json:"receipt,omitempty"`
	FeeConfig    *FeeConfig    `json:"fee_config,omitempty"`
	TokenAccount *TokenAccount `json:"token_account,omitempty"`
	AccessToken  *AccessToken  `json:"access_token,omitempty"`
}

func ArticleAccount(a *Article) *Account { return &Account{Kind: AccountArticle, Article: a} }
func ReceiptAccount(r *Receipt) *Account { return &Account{Kind: AccountReceipt, Receipt: r} }
func FeeConfigAccount(c *FeeConfig) *Account {
	return &Account{Kind: AccountFeeConfig, FeeConfig: c}
}
func TokenAccountAccount(t *TokenAccount) *Account {
	return &Account{Kind: AccountTokenAccount, TokenAccount: t}
}
func AccessTokenAccount(t *AccessToken) *Account {
	return &Account{Kind: AccountAccessToken, AccessToken: t}
}

// Address returns the address of the wrapped record.
func (a *Account) Address() Address {
	switch a.Kind {
	case AccountArticle:
		return a.Article.Address
	case AccountReceipt:
		return a.Receipt.Address
	case AccountFeeConfig:
		return a.FeeConfig.Address
	case AccountTokenAccount:
		return a.TokenAccount.Address
	case AccountAccessToken:
		return a.AccessToken.Address
	}
	return ZeroAddress
}

// Validate checks that exactly the payload named by Kind is set.
func (a *Account) Validate() error {
	set := 0
	for _, p := range []bool{
		a.Article != nil, a.Receipt != nil, a.FeeConfig != nil,
		a.TokenAccount != nil, a.AccessToken != nil,
	} {
		if p {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("account: expected exactly one payload, got %d", set)
	}

	var ok bool
	switch a.Kind {
	case AccountArticle:
		ok = a.Article != nil
	case AccountReceipt:
		ok = a.Receipt != nil
	case AccountFeeConfig:
		ok = a.FeeConfig != nil
	case AccountTokenAccount:
		ok = a.TokenAccount != nil
	case AccountAccessToken:
		ok = a.AccessToken != nil
	default:
		return fmt.Errorf("account: unknown kind %q", a.Kind)
	}
	if !ok {
		return fmt.Errorf("account: payload does not match kind %q", a.Kind)
	}
	return nil
}

// UnmarshalJSON decodes and validates the variant.
func (a *Account) UnmarshalJSON(data []byte) error {
	type plain Account
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	acct := Account(p)
	if err := acct.Validate(); err != nil {
		return err
	}
	*a = acct
	return nil
}
