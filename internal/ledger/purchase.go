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

// Purchase buys access to an article for buyer. The price is debited from the
// buyer's token account for the article's asset and split among the
// treasury, the optional referrer, and the creator. A receipt and an access
// token are created for (article, buyer). Nothing is written unless every
// step succeeds.
func (l *Ledger) Purchase(ctx context.Context, buyer model.Address, args instruction.Purchase) (*model.Receipt, error) {
	var out *model.Receipt
	_, err := l.run(ctx, func(ctx context.Context, o *op) error {
		r, err := l.purchase(ctx, o, buyer, args)
		out = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Ledger) purchase(ctx context.Context, o *op, buyer model.Address, args instruction.Purchase) (*model.Receipt, error) {
	article, err := loadArticle(ctx, o.tx, args.Article)
	if err != nil {
		return nil, err
	}
	if args.PaymentAsset != article.PaymentAsset {
		return nil, newError(CodeAssetMismatch, "article %s is priced in %s, not %s", article.Address, article.PaymentAsset, args.PaymentAsset)
	}

	receiptAddr := l.derive.Receipt(article.Address, buyer)
	if _, err := o.tx.GetReceipt(ctx, receiptAddr); err == nil {
		return nil, newError(CodeAlreadyPurchased, "%s already owns article %s", buyer, article.Address)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get receipt: %w", err)
	}

	cfg, err := loadFeeConfig(ctx, o.tx, l.derive.FeeConfig())
	if err != nil {
		return nil, err
	}

	split, err := SplitPrice(article.Price, cfg.ProtocolFeeBps, cfg.ReferrerFeeBps, args.Referrer != nil)
	if err != nil {
		return nil, err
	}

	if err := l.transfer(ctx, o, buyer, article, cfg, args.Referrer, split); err != nil {
		return nil, err
	}

	receipt := &model.Receipt{
		Address:     receiptAddr,
		Article:     article.Address,
		Buyer:       buyer,
		PaidAmount:  article.Price,
		PurchasedAt: o.now,
	}
	if err := o.tx.CreateReceipt(ctx, receipt); err != nil {
		// A concurrent purchase of the same pair claimed the address first.
		if errors.Is(err, store.ErrExists) {
			return nil, newError(CodeAlreadyPurchased, "%s already owns article %s", buyer, article.Address)
		}
		return nil, fmt.Errorf("create receipt: %w", err)
	}

	sales, err := o.tx.IncrementArticleSales(ctx, article.Address, o.now)
	if errors.Is(err, store.ErrOverflow) {
		return nil, newError(CodeOverflow, "sales counter of article %s is exhausted", article.Address)
	}
	if err != nil {
		return nil, fmt.Errorf("increment sales: %w", err)
	}
	article.Sales = sales
	article.UpdatedAt = o.now

	token := &model.AccessToken{
		Address:      l.derive.AccessToken(article.Address, buyer),
		Article:      article.Address,
		Buyer:        buyer,
		Transferable: article.Transferable,
		Name:         model.AccessTokenName(article.Address),
		URI:          model.AccessTokenURI(article.ContentLocator),
		MintedAt:     o.now,
	}
	if err := o.tx.CreateAccessToken(ctx, token); err != nil {
		if errors.Is(err, store.ErrExists) {
			return nil, newError(CodeAlreadyPurchased, "access token for %s on article %s already minted", buyer, article.Address)
		}
		return nil, fmt.Errorf("mint access token: %w", err)
	}

	purchased := events.Purchased{
		Receipt:       receipt,
		Creator:       article.Creator,
		PaymentAsset:  article.PaymentAsset,
		CreatorAmount: split.CreatorAmount,
		ProtocolFee:   split.ProtocolFee,
		ReferrerFee:   split.ReferrerFee,
		Referrer:      args.Referrer,
		Treasury:      cfg.Treasury,
		Sales:         sales,
	}
	if err := o.emit(ctx, events.TopicPurchased, article.Address, buyer, purchased); err != nil {
		return nil, err
	}
	if err := o.emit(ctx, events.TopicAccessTokenMinted, token.Address, buyer, events.AccessTokenMinted{AccessToken: token}); err != nil {
		return nil, err
	}

	o.touch(model.ReceiptAccount(receipt))
	o.touch(model.AccessTokenAccount(token))
	o.touch(model.ArticleAccount(article))
	return receipt, nil
}

// transfer moves split.Price out of the buyer's token account and into the
// recipients' accounts. Recipient accounts are checked before the debit so
// a missing account is reported ahead of the buyer's balance.
func (l *Ledger) transfer(ctx context.Context, o *op, buyer model.Address, article *model.Article, cfg *model.FeeConfig, referrer *model.Address, split Split) error {
	asset := article.PaymentAsset

	type credit struct {
		addr   model.Address
		amount uint64
	}
	var credits []credit

	if referrer != nil {
		addr := l.derive.TokenAccount(*referrer, asset)
		if err := requireTokenAccount(ctx, o.tx, addr, CodeReferrerAccountMissing, "referrer %s has no %s account", *referrer, asset); err != nil {
			return err
		}
		credits = append(credits, credit{addr, split.ReferrerFee})
	}

	treasury := l.derive.TokenAccount(cfg.Treasury, asset)
	if err := requireTokenAccount(ctx, o.tx, treasury, CodeRecipientAccountMissing, "treasury %s has no %s account", cfg.Treasury, asset); err != nil {
		return err
	}
	credits = append(credits, credit{treasury, split.ProtocolFee})

	creator := l.derive.TokenAccount(article.Creator, asset)
	if err := requireTokenAccount(ctx, o.tx, creator, CodeRecipientAccountMissing, "creator %s has no %s account", article.Creator, asset); err != nil {
		return err
	}
	credits = append(credits, credit{creator, split.CreatorAmount})

	_, err := o.tx.DebitTokenAccount(ctx, l.derive.TokenAccount(buyer, asset), split.Price, o.now)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return newError(CodeInsufficientFunds, "%s has no %s account", buyer, asset)
	case errors.Is(err, store.ErrInsufficientBalance):
		return newError(CodeInsufficientFunds, "%s cannot pay %d", buyer, split.Price)
	case err != nil:
		return fmt.Errorf("debit buyer: %w", err)
	}

	for _, c := range credits {
		if _, err := o.tx.CreditTokenAccount(ctx, c.addr, c.amount, o.now); err != nil {
			if errors.Is(err, store.ErrOverflow) {
				return newError(CodeOverflow, "balance of %s would overflow", c.addr)
			}
			return fmt.Errorf("credit %s: %w", c.addr, err)
		}
	}
	return nil
}

func requireTokenAccount(ctx context.Context, s store.Store, addr model.Address, code Code, format string, args ...any) error {
	_, err := s.GetTokenAccount(ctx, addr)
	if errors.Is(err, sql.ErrNoRows) {
		return newError(code, format, args...)
	}
	if err != nil {
		return fmt.Errorf("get token account: %w", err)
	}
	return nil
}
