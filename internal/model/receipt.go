package model

import "time"

// Receipt is the immutable proof that Buyer purchased Article. Its address is
// derived from (Article, Buyer), so at most one can exist per pair.
type Receipt struct {
	Address     Address   `json:"address"`
	Article     Address   `json:"article"`
	Buyer       Address   `json:"buyer"`
	PaidAmount  uint64    `json:"paid_amount"`
	PurchasedAt time.Time `json:"purchased_at"`
}

// AccessToken is minted alongside a Receipt. It carries the metadata a
// wallet needs to display the purchase.
type AccessToken struct {
	Address      Address   `json:"address"`
	Article      Address   `json:"article"`
	Buyer        Address   `json:"buyer"`
	Transferable bool      `json:"transferable"`
	Name         string    `json:"name"`
	URI          string    `json:"uri"`
	MintedAt     time.Time `json:"minted_at"`
}

// AccessTokenName returns the display name for the access token of article.
func AccessTokenName(article Address) string {
	return "Access to Article #" + article.Short(8)
}

// AccessTokenURI returns the metadata URI for an access token given the
// article's content locator.
func AccessTokenURI(contentLocator string) string {
	return contentLocator + "?access_token=true"
}

// ReceiptFilter narrows ListReceipts. Zero values mean "no constraint".
type ReceiptFilter struct {
	Buyer   *Address
	Article *Address
	Limit   int
	Offset  int
}
