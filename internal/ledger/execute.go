package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/alfredjeanlab/paywall/internal/instruction"
	"github.com/alfredjeanlab/paywall/internal/store"
)

// Execute verifies a signed transaction and applies its instruction as the
// signer. The nonce is consumed in the same store transaction, so a signed
// transaction takes effect at most once.
func (l *Ledger) Execute(ctx context.Context, tx *instruction.Transaction) (*Result, error) {
	if err := tx.Verify(); err != nil {
		if errors.Is(err, instruction.ErrInvalidSignature) {
			return nil, newError(CodeInvalidSignature, "signature does not match signer %s", tx.Signer)
		}
		return nil, newError(CodeInvalidInstruction, "%v", err)
	}

	signer := tx.Signer
	in := tx.Instruction
	return l.run(ctx, func(ctx context.Context, o *op) error {
		if err := o.tx.ClaimNonce(ctx, signer, tx.Nonce); err != nil {
			if errors.Is(err, store.ErrExists) {
				return newError(CodeDuplicateTransaction, "nonce %q already used by %s", tx.Nonce, signer)
			}
			return fmt.Errorf("claim nonce: %w", err)
		}

		var err error
		switch in.Kind {
		case instruction.KindCreateArticle:
			_, err = l.createArticle(ctx, o, signer, *in.CreateArticle)
		case instruction.KindPurchase:
			_, err = l.purchase(ctx, o, signer, *in.Purchase)
		case instruction.KindSetArticlePrice:
			_, err = l.setArticlePrice(ctx, o, signer, *in.SetArticlePrice)
		case instruction.KindSetFeeConfig:
			_, err = l.setFeeConfig(ctx, o, signer, *in.SetFeeConfig)
		case instruction.KindOpenTokenAccount:
			_, err = l.openTokenAccount(ctx, o, signer, in.OpenTokenAccount.Asset)
		case instruction.KindDeposit:
			_, err = l.deposit(ctx, o, signer, *in.Deposit)
		default:
			err = newError(CodeInvalidInstruction, "unknown instruction %q", in.Kind)
		}
		return err
	})
}
