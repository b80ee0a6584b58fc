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

// SetFeeConfig creates the fee schedule on first use, making the signer its
// admin, and otherwise overwrites rates and treasury if the signer is the
// admin.
func (l *Ledger) SetFeeConfig(ctx context.Context, signer model.Address, args instruction.SetFeeConfig) (*model.FeeConfig, error) {
	var out *model.FeeConfig
	_, err := l.run(ctx, func(ctx context.Context, o *op) error {
		c, err := l.setFeeConfig(ctx, o, signer, args)
		out = c
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Ledger) setFeeConfig(ctx context.Context, o *op, signer model.Address, args instruction.SetFeeConfig) (*model.FeeConfig, error) {
	addr := l.derive.FeeConfig()

	cfg, err := o.tx.GetFeeConfig(ctx, addr)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get fee config: %w", err)
	}

	created := false
	if cfg == nil {
		if l.admin != nil && *l.admin != signer {
			return nil, newError(CodeUnauthorized, "%s is not the bootstrap admin", signer)
		}
		if err := model.ValidateFeeRates(args.ProtocolFeeBps, args.ReferrerFeeBps); err != nil {
			return nil, fromValidation(err)
		}
		cfg = &model.FeeConfig{
			Address:        addr,
			Admin:          signer,
			ProtocolFeeBps: args.ProtocolFeeBps,
			ReferrerFeeBps: args.ReferrerFeeBps,
			Treasury:       args.Treasury,
			CreatedAt:      o.now,
			UpdatedAt:      o.now,
		}
		err := o.tx.CreateFeeConfig(ctx, cfg)
		switch {
		case err == nil:
			created = true
		case errors.Is(err, store.ErrExists):
			// Lost the race to initialise; apply as an update.
			if cfg, err = o.tx.GetFeeConfig(ctx, addr); err != nil {
				return nil, fmt.Errorf("get fee config: %w", err)
			}
		default:
			return nil, fmt.Errorf("create fee config: %w", err)
		}
	}

	if !created {
		if cfg.Admin != signer {
			return nil, newError(CodeUnauthorized, "%s is not the fee admin", signer)
		}
		if err := model.ValidateFeeRates(args.ProtocolFeeBps, args.ReferrerFeeBps); err != nil {
			return nil, fromValidation(err)
		}
		cfg.ProtocolFeeBps = args.ProtocolFeeBps
		cfg.ReferrerFeeBps = args.ReferrerFeeBps
		cfg.Treasury = args.Treasury
		cfg.UpdatedAt = o.now
		if err := o.tx.UpdateFeeConfig(ctx, cfg); err != nil {
			return nil, fmt.Errorf("update fee config: %w", err)
		}
	}

	if err := o.emit(ctx, events.TopicFeeUpdated, addr, signer, events.FeeUpdated{FeeConfig: cfg, Created: created}); err != nil {
		return nil, err
	}
	o.touch(model.FeeConfigAccount(cfg))
	return cfg, nil
}

func loadFeeConfig(ctx context.Context, s store.Store, addr model.Address) (*model.FeeConfig, error) {
	cfg, err := s.GetFeeConfig(ctx, addr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, newError(CodeFeeConfigNotInitialized, "the fee schedule has not been set")
	}
	if err != nil {
		return nil, fmt.Errorf("get fee config: %w", err)
	}
	return cfg, nil
}
