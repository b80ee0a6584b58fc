package model

import "time"

// MaxContentLocatorLength is the largest content locator, in bytes, an
// article may carry.
const MaxContentLocatorLength = 256

// MaxBasisPoints is 100% expressed in basis points.
const MaxBasisPoints = 10_000

// Article is a creator-owned catalog entry. Its address is derived from
// (Creator, Sequence) and never changes.
type Article struct {
	Address        Address   `json:"address"`
	Creator        Address   `json:"creator"`
	Sequence       uint64    `json:"sequence"`
	ContentLocator string    `json:"content_locator"`
	PaymentAsset   Address   `json:"payment_asset"`
	Price          uint64    `json:"price"`
	RoyaltyBps     uint16    `json:"royalty_bps"`
	Transferable   bool      `json:"transferable"`
	Sales          uint64    `json:"sales"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ArticleFilter narrows ListArticles. Zero values mean "no constraint".
type ArticleFilter struct {
	Creator *Address
	Limit   int
	Offset  int
}
