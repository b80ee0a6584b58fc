// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/paywall/internal/model"
	"github.com/alfredjeanlab/paywall/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) GetAccount(ctx context.Context, address model.Address) (*model.Account, error) {
	return queryGetAccount(ctx, s.db, address)
}

func (s *PostgresStore) CreateArticle(ctx context.Context, article *model.Article) error {
	return queryCreateArticle(ctx, s.db, article)
}

func (s *PostgresStore) GetArticle(ctx context.Context, address model.Address) (*model.Article, error) {
	return queryGetArticle(ctx, s.db, address)
}

func (s *PostgresStore) ListArticles(ctx context.Context, filter model.ArticleFilter) ([]*model.Article, int, error) {
	return queryListArticles(ctx, s.db, filter)
}

func (s *PostgresStore) UpdateArticlePrice(ctx context.Context, address model.Address, price uint64, at time.Time) (*model.Article, error) {
	return queryUpdateArticlePrice(ctx, s.db, address, price, at)
}

func (s *PostgresStore) IncrementArticleSales(ctx context.Context, address model.Address, at time.Time) (uint64, error) {
	return queryIncrementArticleSales(ctx, s.db, address, at)
}

func (s *PostgresStore) CreateFeeConfig(ctx context.Context, config *model.FeeConfig) error {
	return queryCreateFeeConfig(ctx, s.db, config)
}

func (s *PostgresStore) GetFeeConfig(ctx context.Context, address model.Address) (*model.FeeConfig, error) {
	return queryGetFeeConfig(ctx, s.db, address)
}

func (s *PostgresStore) UpdateFeeConfig(ctx context.Context, config *model.FeeConfig) error {
	return queryUpdateFeeConfig(ctx, s.db, config)
}

func (s *PostgresStore) CreateReceipt(ctx context.Context, receipt *model.Receipt) error {
	return queryCreateReceipt(ctx, s.db, receipt)
}

func (s *PostgresStore) GetReceipt(ctx context.Context, address model.Address) (*model.Receipt, error) {
	return queryGetReceipt(ctx, s.db, address)
}

func (s *PostgresStore) ListReceipts(ctx context.Context, filter model.ReceiptFilter) ([]*model.Receipt, error) {
	return queryListReceipts(ctx, s.db, filter)
}

func (s *PostgresStore) CreateAccessToken(ctx context.Context, token *model.AccessToken) error {
	return queryCreateAccessToken(ctx, s.db, token)
}

func (s *PostgresStore) GetAccessToken(ctx context.Context, address model.Address) (*model.AccessToken, error) {
	return queryGetAccessToken(ctx, s.db, address)
}

func (s *PostgresStore) CreateTokenAccount(ctx context.Context, account *model.TokenAccount) error {
	return queryCreateTokenAccount(ctx, s.db, account)
}

func (s *PostgresStore) GetTokenAccount(ctx context.Context, address model.Address) (*model.TokenAccount, error) {
	return queryGetTokenAccount(ctx, s.db, address)
}

func (s *PostgresStore) ListTokenAccounts(ctx context.Context, filter model.TokenAccountFilter) ([]*model.TokenAccount, error) {
	return queryListTokenAccounts(ctx, s.db, filter)
}

func (s *PostgresStore) CreditTokenAccount(ctx context.Context, address model.Address, amount uint64, at time.Time) (uint64, error) {
	return queryCreditTokenAccount(ctx, s.db, address, amount, at)
}

func (s *PostgresStore) DebitTokenAccount(ctx context.Context, address model.Address, amount uint64, at time.Time) (uint64, error) {
	return queryDebitTokenAccount(ctx, s.db, address, amount, at)
}

func (s *PostgresStore) ClaimNonce(ctx context.Context, signer model.Address, nonce string) error {
	return queryClaimNonce(ctx, s.db, signer, nonce)
}

func (s *PostgresStore) RecordEvent(ctx context.Context, event *model.Event) error {
	return queryRecordEvent(ctx, s.db, event)
}

func (s *PostgresStore) GetEvents(ctx context.Context, account model.Address) ([]*model.Event, error) {
	return queryGetEvents(ctx, s.db, account)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
// Read committed is sufficient: every write that depends on prior state is
// guarded in its own statement (ON CONFLICT claims, conditional UPDATEs).
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ReadSnapshot runs fn in a read-only repeatable read transaction, so every
// statement sees the snapshot taken at its first query.
func (s *PostgresStore) ReadSnapshot(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	if err := fn(&txStore{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) GetAccount(ctx context.Context, address model.Address) (*model.Account, error) {
	return queryGetAccount(ctx, s.tx, address)
}

func (s *txStore) CreateArticle(ctx context.Context, article *model.Article) error {
	return queryCreateArticle(ctx, s.tx, article)
}

func (s *txStore) GetArticle(ctx context.Context, address model.Address) (*model.Article, error) {
	return queryGetArticle(ctx, s.tx, address)
}

func (s *txStore) ListArticles(ctx context.Context, filter model.ArticleFilter) ([]*model.Article, int, error) {
	return queryListArticles(ctx, s.tx, filter)
}

func (s *txStore) UpdateArticlePrice(ctx context.Context, address model.Address, price uint64, at time.Time) (*model.Article, error) {
	return queryUpdateArticlePrice(ctx, s.tx, address, price, at)
}

func (s *txStore) IncrementArticleSales(ctx context.Context, address model.Address, at time.Time) (uint64, error) {
	return queryIncrementArticleSales(ctx, s.tx, address, at)
}

func (s *txStore) CreateFeeConfig(ctx context.Context, config *model.FeeConfig) error {
	return queryCreateFeeConfig(ctx, s.tx, config)
}

func (s *txStore) GetFeeConfig(ctx context.Context, address model.Address) (*model.FeeConfig, error) {
	return queryGetFeeConfig(ctx, s.tx, address)
}

func (s *txStore) UpdateFeeConfig(ctx context.Context, config *model.FeeConfig) error {
	return queryUpdateFeeConfig(ctx, s.tx, config)
}

func (s *txStore) CreateReceipt(ctx context.Context, receipt *model.Receipt) error {
	return queryCreateReceipt(ctx, s.tx, receipt)
}

func (s *txStore) GetReceipt(ctx context.Context, address model.Address) (*model.Receipt, error) {
	return queryGetReceipt(ctx, s.tx, address)
}

func (s *txStore) ListReceipts(ctx context.Context, filter model.ReceiptFilter) ([]*model.Receipt, error) {
	return queryListReceipts(ctx, s.tx, filter)
}

func (s *txStore) CreateAccessToken(ctx context.Context, token *model.AccessToken) error {
	return queryCreateAccessToken(ctx, s.tx, token)
}

func (s *txStore) GetAccessToken(ctx context.Context, address model.Address) (*model.AccessToken, error) {
	return queryGetAccessToken(ctx, s.tx, address)
}

func (s *txStore) CreateTokenAccount(ctx context.Context, account *model.TokenAccount) error {
	return queryCreateTokenAccount(ctx, s.tx, account)
}

func (s *txStore) GetTokenAccount(ctx context.Context, address model.Address) (*model.TokenAccount, error) {
	return queryGetTokenAccount(ctx, s.tx, address)
}

func (s *txStore) ListTokenAccounts(ctx context.Context, filter model.TokenAccountFilter) ([]*model.TokenAccount, error) {
	return queryListTokenAccounts(ctx, s.tx, filter)
}

func (s *txStore) CreditTokenAccount(ctx context.Context, address model.Address, amount uint64, at time.Time) (uint64, error) {
	return queryCreditTokenAccount(ctx, s.tx, address, amount, at)
}

func (s *txStore) DebitTokenAccount(ctx context.Context, address model.Address, amount uint64, at time.Time) (uint64, error) {
	return queryDebitTokenAccount(ctx, s.tx, address, amount, at)
}

func (s *txStore) ClaimNonce(ctx context.Context, signer model.Address, nonce string) error {
	return queryClaimNonce(ctx, s.tx, signer, nonce)
}

func (s *txStore) RecordEvent(ctx context.Context, event *model.Event) error {
	return queryRecordEvent(ctx, s.tx, event)
}

func (s *txStore) GetEvents(ctx context.Context, account model.Address) ([]*model.Event, error) {
	return queryGetEvents(ctx, s.tx, account)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

func (s *txStore) ReadSnapshot(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}
