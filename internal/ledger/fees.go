package ledger

import (
	"math/bits"

	"github.com/alfredjeanlab/paywall/internal/model"
)

// Split is how one purchase price is divided. ProtocolFee + ReferrerFee +
// CreatorAmount always equals Price.
type Split struct {
	Price         uint64 `json:"price"`
	ProtocolFee   uint64 `json:"protocol_fee"`
	ReferrerFee   uint64 `json:"referrer_fee"`
	CreatorAmount uint64 `json:"creator_amount"`
}

// SplitPrice computes the fee split for price. Each fee is floored; the
// rounding remainder goes to the creator. The referrer fee is zero when
// there is no referrer.
func SplitPrice(price uint64, protocolBps, referrerBps uint16, withReferrer bool) (Split, error) {
	s := Split{Price: price}

	var err error
	if s.ProtocolFee, err = basisPointsOf(price, protocolBps); err != nil {
		return Split{}, err
	}
	if withReferrer {
		if s.ReferrerFee, err = basisPointsOf(price, referrerBps); err != nil {
			return Split{}, err
		}
	}

	fees, carry := bits.Add64(s.ProtocolFee, s.ReferrerFee, 0)
	if carry != 0 || fees > price {
		return Split{}, newError(CodeOverflow, "fees %d+%d exceed price %d", s.ProtocolFee, s.ReferrerFee, price)
	}
	s.CreatorAmount = price - fees
	return s, nil
}

// basisPointsOf returns floor(amount * bps / 10000) using a 128-bit
// intermediate product.
func basisPointsOf(amount uint64, bps uint16) (uint64, error) {
	if bps > model.MaxBasisPoints {
		return 0, newError(CodeOverflow, "rate %d exceeds %d basis points", bps, model.MaxBasisPoints)
	}
	hi, lo := bits.Mul64(amount, uint64(bps))
	// hi < 10000 because bps <= 10000, so Div64 cannot panic.
	q, _ := bits.Div64(hi, lo, model.MaxBasisPoints)
	return q, nil
}
