package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alfredjeanlab/paywall/internal/events"
	"github.com/alfredjeanlab/paywall/internal/instruction"
	"github.com/alfredjeanlab/paywall/internal/model"
	"github.com/alfredjeanlab/paywall/internal/store"
)

// OpenTokenAccount opens owner's balance account for an asset. Opening an
// account that already exists returns it unchanged.
func (l *Ledger) OpenTokenAccount(ctx context.Context, owner model.Address, args instruction.OpenTokenAccount) (*model.TokenAccount, error) {
	var out *model.TokenAccount
	_, err := l.run(ctx, func(ctx context.Context, o *op) error {
		t, err := l.openTokenAccount(ctx, o, owner, args.Asset)
		out = t
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Ledger) openTokenAccount(ctx context.Context, o *op, owner, asset model.Address) (*model.TokenAccount, error) {
	t, err := l.ensureTokenAccount(ctx, o, owner, asset)
	if err != nil {
		return nil, err
	}
	o.touch(model.TokenAccountAccount(t))
	return t, nil
}

// ensureTokenAccount returns the account for (owner, asset), creating it
// with a zero balance if it does not exist.
func (l *Ledger) ensureTokenAccount(ctx context.Context, o *op, owner, asset model.Address) (*model.TokenAccount, error) {
	addr := l.derive.TokenAccount(owner, asset)
	existing, err := o.tx.GetTokenAccount(ctx, addr)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get token account: %w", err)
	}

	t := &model.TokenAccount{
		Address:   addr,
		Owner:     owner,
		Asset:     asset,
		CreatedAt: o.now,
		UpdatedAt: o.now,
	}
	if err := o.tx.CreateTokenAccount(ctx, t); err != nil {
		if errors.Is(err, store.ErrExists) {
			if existing, err = o.tx.GetTokenAccount(ctx, addr); err != nil {
				return nil, fmt.Errorf("get token account: %w", err)
			}
			return existing, nil
		}
		return nil, fmt.Errorf("create token account: %w", err)
	}

	if err := o.emit(ctx, events.TopicTokenAccountOpened, addr, owner, events.TokenAccountOpened{TokenAccount: t}); err != nil {
		return nil, err
	}
	return t, nil
}

// Deposit credits owner's balance of an asset, opening the account if
// needed. The fee schedule admin acts as the mint authority, so Deposit is
// unavailable until the fee schedule exists.
func (l *Ledger) Deposit(ctx context.Context, signer model.Address, args instruction.Deposit) (*model.TokenAccount, error) {
	var out *model.TokenAccount
	_, err := l.run(ctx, func(ctx context.Context, o *op) error {
		t, err := l.deposit(ctx, o, signer, args)
		out = t
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Ledger) deposit(ctx context.Context, o *op, signer model.Address, args instruction.Deposit) (*model.TokenAccount, error) {
	cfg, err := loadFeeConfig(ctx, o.tx, l.derive.FeeConfig())
	if err != nil {
		return nil, err
	}
	if cfg.Admin != signer {
		return nil, newError(CodeUnauthorized, "%s is not the mint authority", signer)
	}
	if err := model.ValidateAmount(args.Amount); err != nil {
		return nil, fromValidation(err)
	}

	t, err := l.ensureTokenAccount(ctx, o, args.Owner, args.Asset)
	if err != nil {
		return nil, err
	}

	balance, err := o.tx.CreditTokenAccount(ctx, t.Address, args.Amount, o.now)
	if errors.Is(err, store.ErrOverflow) {
		return nil, newError(CodeOverflow, "balance of %s would overflow", t.Address)
	}
	if err != nil {
		return nil, fmt.Errorf("credit token account: %w", err)
	}
	t.Amount = balance
	t.UpdatedAt = o.now

	payload := events.TokenAccountCredited{TokenAccount: t, Amount: args.Amount}
	if err := o.emit(ctx, events.TopicTokenAccountCredited, t.Address, signer, payload); err != nil {
		return nil, err
	}
	o.touch(model.TokenAccountAccount(t))
	return t, nil
}
