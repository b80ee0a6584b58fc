package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alfredjeanlab/paywall/internal/model"
	"github.com/alfredjeanlab/paywall/internal/store"
)

// notFound converts sql.ErrNoRows from a lookup into AccountNotFound.
func notFound(err error, what string, addr model.Address) error {
	if errors.Is(err, sql.ErrNoRows) {
		return newError(CodeAccountNotFound, "no %s at %s", what, addr)
	}
	return fmt.Errorf("get %s: %w", what, err)
}

// View calls fn with a ledger whose queries all read one consistent state.
// Instructions must not be applied through v.
func (l *Ledger) View(ctx context.Context, fn func(v *Ledger) error) error {
	return l.store.ReadSnapshot(ctx, func(tx store.Store) error {
		v := *l
		v.store = tx
		return fn(&v)
	})
}

// GetAccount returns whatever record lives at addr.
func (l *Ledger) GetAccount(ctx context.Context, addr model.Address) (*model.Account, error) {
	acct, err := l.store.GetAccount(ctx, addr)
	if err != nil {
		return nil, notFound(err, "account", addr)
	}
	return acct, nil
}

func (l *Ledger) GetArticle(ctx context.Context, addr model.Address) (*model.Article, error) {
	return loadArticle(ctx, l.store, addr)
}

func (l *Ledger) GetReceipt(ctx context.Context, addr model.Address) (*model.Receipt, error) {
	r, err := l.store.GetReceipt(ctx, addr)
	if err != nil {
		return nil, notFound(err, "receipt", addr)
	}
	return r, nil
}

// GetFeeConfig returns the fee schedule singleton.
func (l *Ledger) GetFeeConfig(ctx context.Context) (*model.FeeConfig, error) {
	addr := l.derive.FeeConfig()
	c, err := l.store.GetFeeConfig(ctx, addr)
	if err != nil {
		return nil, notFound(err, "fee config", addr)
	}
	return c, nil
}

func (l *Ledger) GetTokenAccount(ctx context.Context, addr model.Address) (*model.TokenAccount, error) {
	t, err := l.store.GetTokenAccount(ctx, addr)
	if err != nil {
		return nil, notFound(err, "token account", addr)
	}
	return t, nil
}

func (l *Ledger) GetAccessToken(ctx context.Context, addr model.Address) (*model.AccessToken, error) {
	t, err := l.store.GetAccessToken(ctx, addr)
	if err != nil {
		return nil, notFound(err, "access token", addr)
	}
	return t, nil
}

// HasPurchased reports whether a receipt exists for (article, buyer). The
// answer depends only on the derived receipt address.
func (l *Ledger) HasPurchased(ctx context.Context, article, buyer model.Address) (bool, error) {
	_, err := l.store.GetReceipt(ctx, l.derive.Receipt(article, buyer))
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get receipt: %w", err)
	}
	return true, nil
}

func (l *Ledger) ListArticles(ctx context.Context, filter model.ArticleFilter) ([]*model.Article, int, error) {
	return l.store.ListArticles(ctx, filter)
}

func (l *Ledger) ListReceipts(ctx context.Context, filter model.ReceiptFilter) ([]*model.Receipt, error) {
	return l.store.ListReceipts(ctx, filter)
}

func (l *Ledger) ListTokenAccounts(ctx context.Context, filter model.TokenAccountFilter) ([]*model.TokenAccount, error) {
	return l.store.ListTokenAccounts(ctx, filter)
}

// Events returns the committed events recorded against account, oldest first.
func (l *Ledger) Events(ctx context.Context, account model.Address) ([]*model.Event, error) {
	return l.store.GetEvents(ctx, account)
}
