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

// CreateArticle registers an article owned by creator at the address derived
// from (creator, args.Sequence).
func (l *Ledger) CreateArticle(ctx context.Context, creator model.Address, args instruction.CreateArticle) (*model.Article, error) {
	var out *model.Article
	_, err := l.run(ctx, func(ctx context.Context, o *op) error {
		a, err := l.createArticle(ctx, o, creator, args)
		out = a
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Ledger) createArticle(ctx context.Context, o *op, creator model.Address, args instruction.CreateArticle) (*model.Article, error) {
	a := &model.Article{
		Address:        l.derive.Article(creator, args.Sequence),
		Creator:        creator,
		Sequence:       args.Sequence,
		ContentLocator: args.ContentLocator,
		PaymentAsset:   args.PaymentAsset,
		Price:          args.Price,
		RoyaltyBps:     args.RoyaltyBps,
		Transferable:   args.Transferable,
		CreatedAt:      o.now,
		UpdatedAt:      o.now,
	}
	if err := model.ValidateArticle(a); err != nil {
		return nil, fromValidation(err)
	}

	if err := o.tx.CreateArticle(ctx, a); err != nil {
		if errors.Is(err, store.ErrExists) {
			return nil, newError(CodeDuplicateSequence, "an account already exists for sequence %d of %s", args.Sequence, creator)
		}
		return nil, fmt.Errorf("create article: %w", err)
	}

	if err := o.emit(ctx, events.TopicArticleCreated, a.Address, creator, events.ArticleCreated{Article: a}); err != nil {
		return nil, err
	}
	o.touch(model.ArticleAccount(a))
	return a, nil
}

// SetArticlePrice changes the price of an article. Only its creator may.
func (l *Ledger) SetArticlePrice(ctx context.Context, creator model.Address, args instruction.SetArticlePrice) (*model.Article, error) {
	var out *model.Article
	_, err := l.run(ctx, func(ctx context.Context, o *op) error {
		a, err := l.setArticlePrice(ctx, o, creator, args)
		out = a
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Ledger) setArticlePrice(ctx context.Context, o *op, signer model.Address, args instruction.SetArticlePrice) (*model.Article, error) {
	current, err := loadArticle(ctx, o.tx, args.Article)
	if err != nil {
		return nil, err
	}
	if current.Creator != signer {
		return nil, newError(CodeUnauthorized, "%s is not the creator of article %s", signer, args.Article)
	}
	if err := model.ValidatePrice(args.NewPrice); err != nil {
		return nil, fromValidation(err)
	}

	updated, err := o.tx.UpdateArticlePrice(ctx, args.Article, args.NewPrice, o.now)
	if err != nil {
		return nil, fmt.Errorf("update article price: %w", err)
	}

	payload := events.ArticleUpdated{Article: updated, OldPrice: current.Price, NewPrice: updated.Price}
	if err := o.emit(ctx, events.TopicArticleUpdated, updated.Address, signer, payload); err != nil {
		return nil, err
	}
	o.touch(model.ArticleAccount(updated))
	return updated, nil
}

func loadArticle(ctx context.Context, s store.Store, addr model.Address) (*model.Article, error) {
	a, err := s.GetArticle(ctx, addr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, newError(CodeArticleNotFound, "no article at %s", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("get article: %w", err)
	}
	return a, nil
}
