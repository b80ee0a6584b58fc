package store

import (
	"context"
	"errors"
	"time"

	"github.com/alfredjeanlab/paywall/internal/model"
)

// Lookups of a missing record return sql.ErrNoRows from every implementation.
var (
	// ErrExists is returned when an account is created at an address that is
	// already occupied by any kind of account.
	ErrExists = errors.New("store: account already exists")

	// ErrInsufficientBalance is returned by DebitTokenAccount when the
	// balance is lower than the requested amount.
	ErrInsufficientBalance = errors.New("store: insufficient balance")

	// ErrOverflow is returned when a counter or balance would exceed the
	// range of uint64.
	ErrOverflow = errors.New("store: arithmetic overflow")
)

// Store defines the persistence interface for ledger accounts.
type Store interface {
	// Accounts
	GetAccount(ctx context.Context, address model.Address) (*model.Account, error)

	// Articles
	// Mutators take the operation time and stamp it as updated_at.
	CreateArticle(ctx context.Context, article *model.Article) error
	GetArticle(ctx context.Context, address model.Address) (*model.Article, error)
	ListArticles(ctx context.Context, filter model.ArticleFilter) ([]*model.Article, int, error) // returns articles, total count, error
	UpdateArticlePrice(ctx context.Context, address model.Address, price uint64, at time.Time) (*model.Article, error)
	IncrementArticleSales(ctx context.Context, address model.Address, at time.Time) (uint64, error)

	// Fee schedule
	CreateFeeConfig(ctx context.Context, config *model.FeeConfig) error
	GetFeeConfig(ctx context.Context, address model.Address) (*model.FeeConfig, error)
	UpdateFeeConfig(ctx context.Context, config *model.FeeConfig) error

	// Receipts and access tokens
	CreateReceipt(ctx context.Context, receipt *model.Receipt) error
	GetReceipt(ctx context.Context, address model.Address) (*model.Receipt, error)
	ListReceipts(ctx context.Context, filter model.ReceiptFilter) ([]*model.Receipt, error)
	CreateAccessToken(ctx context.Context, token *model.AccessToken) error
	GetAccessToken(ctx context.Context, address model.Address) (*model.AccessToken, error)

	// Token accounts
	CreateTokenAccount(ctx context.Context, account *model.TokenAccount) error
	GetTokenAccount(ctx context.Context, address model.Address) (*model.TokenAccount, error)
	ListTokenAccounts(ctx context.Context, filter model.TokenAccountFilter) ([]*model.TokenAccount, error)
	CreditTokenAccount(ctx context.Context, address model.Address, amount uint64, at time.Time) (uint64, error)
	DebitTokenAccount(ctx context.Context, address model.Address, amount uint64, at time.Time) (uint64, error)

	// Replay protection
	ClaimNonce(ctx context.Context, signer model.Address, nonce string) error

	// Events
	RecordEvent(ctx context.Context, event *model.Event) error
	GetEvents(ctx context.Context, account model.Address) ([]*model.Event, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error
	// ReadSnapshot calls fn with a store whose reads all observe the same
	// committed state. fn must not write.
	ReadSnapshot(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
