package events

import (
	"context"
	"strings"

	"github.com/alfredjeanlab/paywall/internal/model"
)

// Event topic constants
const (
	TopicArticleCreated       = "paywall.article.created"
	TopicArticleUpdated       = "paywall.article.updated"
	TopicFeeUpdated           = "paywall.fee_config.updated"
	TopicPurchased            = "paywall.purchase.completed"
	TopicAccessTokenMinted    = "paywall.access_token.minted"
	TopicTokenAccountOpened   = "paywall.token_account.opened"
	TopicTokenAccountCredited = "paywall.token_account.credited"
)

// TopicAll matches every ledger topic.
const TopicAll = "paywall.>"

// MatchTopic matches a dot-separated topic against a NATS-style pattern:
// "*" matches one segment and a trailing ">" matches one or more.
func MatchTopic(pattern, topic string) bool {
	if pattern == topic {
		return true
	}

	patParts := strings.Split(pattern, ".")
	topParts := strings.Split(topic, ".")

	for i, pp := range patParts {
		if pp == ">" {
			return i < len(topParts)
		}
		if i >= len(topParts) {
			return false
		}
		if pp != "*" && pp != topParts[i] {
			return false
		}
	}

	return len(patParts) == len(topParts)
}

// Event payloads. Each is JSON-encoded into model.Event.Payload.

type ArticleCreated struct {
	Article *model.Article `json:"article"`
}

type ArticleUpdated struct {
	Article  *model.Article `json:"article"`
	OldPrice uint64         `json:"old_price"`
	NewPrice uint64         `json:"new_price"`
}

type FeeUpdated struct {
	FeeConfig *model.FeeConfig `json:"fee_config"`
	Created   bool             `json:"created"`
}

// Purchased records one successful purchase and how the price was split.
type Purchased struct {
	Receipt       *model.Receipt `json:"receipt"`
	Creator       model.Address  `json:"creator"`
	PaymentAsset  model.Address  `json:"payment_asset"`
	CreatorAmount uint64         `json:"creator_amount"`
	ProtocolFee   uint64         `json:"protocol_fee"`
	ReferrerFee   uint64         `json:"referrer_fee"`
	Referrer      *model.Address `json:"referrer,omitempty"`
	Treasury      model.Address  `json:"treasury"`
	Sales         uint64         `json:"sales"`
}

type AccessTokenMinted struct {
	AccessToken *model.AccessToken `json:"access_token"`
}

type TokenAccountOpened struct {
	TokenAccount *model.TokenAccount `json:"token_account"`
}

type TokenAccountCredited struct {
	TokenAccount *model.TokenAccount `json:"token_account"`
	Amount       uint64              `json:"amount"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
