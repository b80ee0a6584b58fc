package model

import "time"

// FeeConfig is the deployment-wide fee schedule. Exactly one exists, at the
// address derived from the fee_config tag alone.
type FeeConfig struct {
	Address        Address   `json:"address"`
	Admin          Address   `json:"admin"`
	ProtocolFeeBps uint16    `json:"protocol_fee_bps"`
	ReferrerFeeBps uint16    `json:"referrer_fee_bps"`
	Treasury       Address   `json:"treasury"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TokenAccount holds Owner's balance of a single payment asset.
type TokenAccount struct {
	Address   Address   `json:"address"`
	Owner     Address   `json:"owner"`
	Asset     Address   `json:"asset"`
	Amount    uint64    `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TokenAccountFilter narrows ListTokenAccounts.
type TokenAccountFilter struct {
	Owner *Address
	Asset *Address
}
