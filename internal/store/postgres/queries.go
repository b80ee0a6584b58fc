package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/paywall/internal/model"
	"github.com/alfredjeanlab/paywall/internal/store"
)

// articleColumns is the column list used for SELECT statements on the articles table.
const articleColumns = `address, creator, sequence, content_locator, payment_asset,
	price, royalty_bps, transferable, sales, created_at, updated_at`

const feeConfigColumns = `address, admin, protocol_fee_bps, referrer_fee_bps, treasury, created_at, updated_at`

const receiptColumns = `address, article, buyer, paid_amount, purchased_at`

const accessTokenColumns = `address, article, buyer, transferable, name, uri, minted_at`

const tokenAccountColumns = `address, owner, asset, amount, created_at, updated_at`

// maxUint64 bounds NUMERIC(20,0) arithmetic in UPDATE guards.
const maxUint64 = "18446744073709551615"

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// mapError translates constraint violations into store sentinels.
func mapError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return store.ErrExists
	}
	return err
}

// expectOneRow returns store.ErrExists when an insert guarded by
// ON CONFLICT DO NOTHING affected no rows.
func expectOneRow(res sql.Result, err error) error {
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrExists
	}
	return nil
}

// rowExists reports whether table has a row at address. It is used to tell
// a missing row apart from a failed UPDATE guard.
func rowExists(ctx context.Context, db executor, table string, address model.Address) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE address = $1`, address).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func queryGetAccount(ctx context.Context, db executor, address model.Address) (*model.Account, error) {
	var kind model.AccountKind
	if err := db.QueryRowContext(ctx, `SELECT kind FROM accounts WHERE address = $1`, address).Scan(&kind); err != nil {
		return nil, err
	}
	switch kind {
	case model.AccountArticle:
		a, err := queryGetArticle(ctx, db, address)
		if err != nil {
			return nil, err
		}
		return model.ArticleAccount(a), nil
	case model.AccountReceipt:
		r, err := queryGetReceipt(ctx, db, address)
		if err != nil {
			return nil, err
		}
		return model.ReceiptAccount(r), nil
	case model.AccountFeeConfig:
		c, err := queryGetFeeConfig(ctx, db, address)
		if err != nil {
			return nil, err
		}
		return model.FeeConfigAccount(c), nil
	case model.AccountTokenAccount:
		t, err := queryGetTokenAccount(ctx, db, address)
		if err != nil {
			return nil, err
		}
		return model.TokenAccountAccount(t), nil
	case model.AccountAccessToken:
		t, err := queryGetAccessToken(ctx, db, address)
		if err != nil {
			return nil, err
		}
		return model.AccessTokenAccount(t), nil
	}
	return nil, fmt.Errorf("account %s has unknown kind %q", address, kind)
}

func queryCreateArticle(ctx context.Context, db executor, a *model.Article) error {
	return expectOneRow(db.ExecContext(ctx, `
		WITH claimed AS (
			INSERT INTO accounts (address, kind) VALUES ($1, 'article')
			ON CONFLICT (address) DO NOTHING
			RETURNING address
		)
		INSERT INTO articles (
			address, creator, sequence, content_locator, payment_asset,
			price, royalty_bps, transferable, sales, created_at, updated_at
		)
		SELECT claimed.address, $2, $3::numeric, $4, $5,
			$6::numeric, $7::integer, $8::boolean, $9::numeric, $10::timestamptz, $11::timestamptz
		FROM claimed`,
		a.Address,
		a.Creator,
		numeric(a.Sequence),
		a.ContentLocator,
		a.PaymentAsset,
		numeric(a.Price),
		int(a.RoyaltyBps),
		a.Transferable,
		numeric(a.Sales),
		a.CreatedAt,
		a.UpdatedAt,
	))
}

func queryGetArticle(ctx context.Context, db executor, address model.Address) (*model.Article, error) {
	row := db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE address = $1`, address)
	return scanArticle(row)
}

func queryListArticles(ctx context.Context, db executor, filter model.ArticleFilter) ([]*model.Article, int, error) {
	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if filter.Creator != nil {
		whereClauses = append(whereClauses, "creator = "+nextArg())
		args = append(args, *filter.Creator)
	}

	query := `SELECT COUNT(*) OVER() AS total_count, ` + articleColumns + ` FROM articles`
	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}
	query += " ORDER BY created_at DESC, address ASC"

	if filter.Limit > 0 {
		query += " LIMIT " + nextArg()
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + nextArg()
		args = append(args, filter.Offset)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	var (
		articles []*model.Article
		total    int
	)
	for rows.Next() {
		a, t, err := scanArticleWithTotal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan article: %w", err)
		}
		total = t
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	// An offset past the end returns no rows and so no window count.
	if len(articles) == 0 && filter.Offset > 0 {
		countQuery := `SELECT COUNT(*) FROM articles`
		var countArgs []any
		if filter.Creator != nil {
			countQuery += ` WHERE creator = $1`
			countArgs = append(countArgs, *filter.Creator)
		}
		if err := db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("count articles: %w", err)
		}
	}

	return articles, total, nil
}

func queryUpdateArticlePrice(ctx context.Context, db executor, address model.Address, price uint64, at time.Time) (*model.Article, error) {
	row := db.QueryRowContext(ctx, `
		UPDATE articles SET price = $2::numeric, updated_at = $3
		WHERE address = $1
		RETURNING `+articleColumns,
		address, numeric(price), at,
	)
	return scanArticle(row)
}

func queryIncrementArticleSales(ctx context.Context, db executor, address model.Address, at time.Time) (uint64, error) {
	var sales uint64
	err := db.QueryRowContext(ctx, `
		UPDATE articles SET sales = sales + 1, updated_at = $2
		WHERE address = $1 AND sales < `+maxUint64+`
		RETURNING sales`,
		address, at,
	).Scan(u64{&sales})
	if errors.Is(err, sql.ErrNoRows) {
		ok, existsErr := rowExists(ctx, db, "articles", address)
		if existsErr != nil {
			return 0, existsErr
		}
		if ok {
			return 0, store.ErrOverflow
		}
		return 0, sql.ErrNoRows
	}
	return sales, err
}

func queryCreateFeeConfig(ctx context.Context, db executor, c *model.FeeConfig) error {
	return expectOneRow(db.ExecContext(ctx, `
		WITH claimed AS (
			INSERT INTO accounts (address, kind) VALUES ($1, 'fee_config')
			ON CONFLICT (address) DO NOTHING
			RETURNING address
		)
		INSERT INTO fee_configs (
			address, admin, protocol_fee_bps, referrer_fee_bps, treasury, created_at, updated_at
		)
		SELECT claimed.address, $2, $3::integer, $4::integer, $5, $6::timestamptz, $7::timestamptz
		FROM claimed`,
		c.Address,
		c.Admin,
		int(c.ProtocolFeeBps),
		int(c.ReferrerFeeBps),
		c.Treasury,
		c.CreatedAt,
		c.UpdatedAt,
	))
}

func queryGetFeeConfig(ctx context.Context, db executor, address model.Address) (*model.FeeConfig, error) {
	row := db.QueryRowContext(ctx, `SELECT `+feeConfigColumns+` FROM fee_configs WHERE address = $1`, address)
	return scanFeeConfig(row)
}

// queryUpdateFeeConfig overwrites rates and treasury. The admin column is
// never rewritten.
func queryUpdateFeeConfig(ctx context.Context, db executor, c *model.FeeConfig) error {
	res, err := db.ExecContext(ctx, `
		UPDATE fee_configs
		SET protocol_fee_bps = $2, referrer_fee_bps = $3, treasury = $4, updated_at = $5
		WHERE address = $1`,
		c.Address, int(c.ProtocolFeeBps), int(c.ReferrerFeeBps), c.Treasury, c.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func queryCreateReceipt(ctx context.Context, db executor, r *model.Receipt) error {
	return expectOneRow(db.ExecContext(ctx, `
		WITH claimed AS (
			INSERT INTO accounts (address, kind) VALUES ($1, 'receipt')
			ON CONFLICT (address) DO NOTHING
			RETURNING address
		)
		INSERT INTO receipts (address, article, buyer, paid_amount, purchased_at)
		SELECT claimed.address, $2, $3, $4::numeric, $5::timestamptz
		FROM claimed`,
		r.Address, r.Article, r.Buyer, numeric(r.PaidAmount), r.PurchasedAt,
	))
}

func queryGetReceipt(ctx context.Context, db executor, address model.Address) (*model.Receipt, error) {
	row := db.QueryRowContext(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE address = $1`, address)
	return scanReceipt(row)
}

func queryListReceipts(ctx context.Context, db executor, filter model.ReceiptFilter) ([]*model.Receipt, error) {
	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if filter.Buyer != nil {
		whereClauses = append(whereClauses, "buyer = "+nextArg())
		args = append(args, *filter.Buyer)
	}
	if filter.Article != nil {
		whereClauses = append(whereClauses, "article = "+nextArg())
		args = append(args, *filter.Article)
	}

	query := `SELECT ` + receiptColumns + ` FROM receipts`
	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}
	query += " ORDER BY purchased_at ASC, address ASC"
	if filter.Limit > 0 {
		query += " LIMIT " + nextArg()
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + nextArg()
		args = append(args, filter.Offset)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	defer rows.Close()
	return scanReceipts(rows)
}

func queryCreateAccessToken(ctx context.Context, db executor, t *model.AccessToken) error {
	return expectOneRow(db.ExecContext(ctx, `
		WITH claimed AS (
			INSERT INTO accounts (address, kind) VALUES ($1, 'access_token')
			ON CONFLICT (address) DO NOTHING
			RETURNING address
		)
		INSERT INTO access_tokens (address, article, buyer, transferable, name, uri, minted_at)
		SELECT claimed.address, $2, $3, $4::boolean, $5, $6, $7::timestamptz
		FROM claimed`,
		t.Address, t.Article, t.Buyer, t.Transferable, t.Name, t.URI, t.MintedAt,
	))
}

func queryGetAccessToken(ctx context.Context, db executor, address model.Address) (*model.AccessToken, error) {
	row := db.QueryRowContext(ctx, `SELECT `+accessTokenColumns+` FROM access_tokens WHERE address = $1`, address)
	return scanAccessToken(row)
}

func queryCreateTokenAccount(ctx context.Context, db executor, t *model.TokenAccount) error {
	return expectOneRow(db.ExecContext(ctx, `
		WITH claimed AS (
			INSERT INTO accounts (address, kind) VALUES ($1, 'token_account')
			ON CONFLICT (address) DO NOTHING
			RETURNING address
		)
		INSERT INTO token_accounts (address, owner, asset, amount, created_at, updated_at)
		SELECT claimed.address, $2, $3, $4::numeric, $5::timestamptz, $6::timestamptz
		FROM claimed`,
		t.Address, t.Owner, t.Asset, numeric(t.Amount), t.CreatedAt, t.UpdatedAt,
	))
}

func queryGetTokenAccount(ctx context.Context, db executor, address model.Address) (*model.TokenAccount, error) {
	row := db.QueryRowContext(ctx, `SELECT `+tokenAccountColumns+` FROM token_accounts WHERE address = $1`, address)
	return scanTokenAccount(row)
}

func queryListTokenAccounts(ctx context.Context, db executor, filter model.TokenAccountFilter) ([]*model.TokenAccount, error) {
	var (
		whereClauses []string
		args         []any
	)
	if filter.Owner != nil {
		args = append(args, *filter.Owner)
		whereClauses = append(whereClauses, fmt.Sprintf("owner = $%d", len(args)))
	}
	if filter.Asset != nil {
		args = append(args, *filter.Asset)
		whereClauses = append(whereClauses, fmt.Sprintf("asset = $%d", len(args)))
	}

	query := `SELECT ` + tokenAccountColumns + ` FROM token_accounts`
	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}
	query += " ORDER BY address ASC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list token accounts: %w", err)
	}
	defer rows.Close()
	return scanTokenAccounts(rows)
}

// queryCreditTokenAccount adds amount to a balance. The WHERE guard keeps
// the result inside uint64; a guard miss on an existing row is an overflow.
func queryCreditTokenAccount(ctx context.Context, db executor, address model.Address, amount uint64, at time.Time) (uint64, error) {
	var balance uint64
	err := db.QueryRowContext(ctx, `
		UPDATE token_accounts SET amount = amount + $2::numeric, updated_at = $3
		WHERE address = $1 AND amount <= `+maxUint64+` - $2::numeric
		RETURNING amount`,
		address, numeric(amount), at,
	).Scan(u64{&balance})
	if errors.Is(err, sql.ErrNoRows) {
		return 0, guardMiss(ctx, db, address, store.ErrOverflow)
	}
	return balance, err
}

// queryDebitTokenAccount subtracts amount from a balance. The WHERE guard is
// the compare-and-swap that prevents concurrent overdrafts.
func queryDebitTokenAccount(ctx context.Context, db executor, address model.Address, amount uint64, at time.Time) (uint64, error) {
	var balance uint64
	err := db.QueryRowContext(ctx, `
		UPDATE token_accounts SET amount = amount - $2::numeric, updated_at = $3
		WHERE address = $1 AND amount >= $2::numeric
		RETURNING amount`,
		address, numeric(amount), at,
	).Scan(u64{&balance})
	if errors.Is(err, sql.ErrNoRows) {
		return 0, guardMiss(ctx, db, address, store.ErrInsufficientBalance)
	}
	return balance, err
}

func guardMiss(ctx context.Context, db executor, address model.Address, guardErr error) error {
	ok, err := rowExists(ctx, db, "token_accounts", address)
	if err != nil {
		return err
	}
	if ok {
		return guardErr
	}
	return sql.ErrNoRows
}

func queryClaimNonce(ctx context.Context, db executor, signer model.Address, nonce string) error {
	return expectOneRow(db.ExecContext(ctx, `
		INSERT INTO nonces (signer, nonce) VALUES ($1, $2)
		ON CONFLICT (signer, nonce) DO NOTHING`,
		signer, nonce,
	))
}

func queryRecordEvent(ctx context.Context, db executor, e *model.Event) error {
	return db.QueryRowContext(ctx, `
		INSERT INTO events (tx_id, topic, account, actor, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		e.TxID, e.Topic, e.Account, e.Actor, jsonbBytes(e.Payload),
	).Scan(&e.ID, &e.CreatedAt)
}

func queryGetEvents(ctx context.Context, db executor, account model.Address) ([]*model.Event, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, tx_id, topic, account, actor, payload, created_at
		FROM events
		WHERE account = $1
		ORDER BY id ASC`,
		account,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}
