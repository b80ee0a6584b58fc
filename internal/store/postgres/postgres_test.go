package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/alfredjeanlab/paywall/internal/model"
	"github.com/alfredjeanlab/paywall/internal/store"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

func addr(b byte) model.Address {
	var a model.Address
	for i := range a {
		a[i] = b
	}
	return a
}

// articleRowColumns is the column list for scanArticle results.
var articleRowColumns = []string{
	"address", "creator", "sequence", "content_locator", "payment_asset",
	"price", "royalty_bps", "transferable", "sales", "created_at", "updated_at",
}

// opTime is the operation time the ledger passes to mutating queries.
var opTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func addArticleRow(rows *sqlmock.Rows, a model.Address, creator model.Address, seq, price, sales string, now time.Time) *sqlmock.Rows {
	return rows.AddRow(
		a.String(), creator.String(), seq, "lit://content", addr(9).String(),
		price, int64(1000), true, sales, now, now,
	)
}

func TestScanHelpers(t *testing.T) {
	var v uint64
	for _, src := range []any{[]byte("18446744073709551615"), "18446744073709551615"} {
		if err := (u64{&v}).Scan(src); err != nil || v != 18446744073709551615 {
			t.Errorf("u64.Scan(%v) = %d, %v", src, v, err)
		}
	}
	if err := (u64{&v}).Scan(int64(42)); err != nil || v != 42 {
		t.Errorf("u64.Scan(int64) = %d, %v", v, err)
	}
	if err := (u64{&v}).Scan(int64(-1)); err == nil {
		t.Error("u64.Scan(-1) should fail")
	}
	if err := (u64{&v}).Scan("18446744073709551616"); err == nil {
		t.Error("u64.Scan(2^64) should fail")
	}

	var b uint16
	if err := (bps{&b}).Scan(int64(10000)); err != nil || b != 10000 {
		t.Errorf("bps.Scan(10000) = %d, %v", b, err)
	}
	if err := (bps{&b}).Scan(int64(70000)); err == nil {
		t.Error("bps.Scan(70000) should fail")
	}

	if numeric(18446744073709551615) != "18446744073709551615" {
		t.Errorf("numeric(max) = %q", numeric(18446744073709551615))
	}
	if jsonbBytes(nil) != nil {
		t.Error("jsonbBytes(nil) should be nil")
	}
}

func TestQueryCreateArticle(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	a := &model.Article{
		Address: addr(1), Creator: addr(2), Sequence: 7, ContentLocator: "lit://x",
		PaymentAsset: addr(3), Price: 1_000_000, RoyaltyBps: 500, CreatedAt: now, UpdatedAt: now,
	}
	mock.ExpectExec("INSERT INTO accounts .+ ON CONFLICT \\(address\\) DO NOTHING .+ INSERT INTO articles").
		WithArgs(
			addr(1).String(), addr(2).String(), "7", "lit://x", addr(3).String(),
			"1000000", 500, false, "0", now, now,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := queryCreateArticle(context.Background(), db, a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestQueryCreateArticle_AddressTaken(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("INSERT INTO accounts").WillReturnResult(sqlmock.NewResult(0, 0))

	err := queryCreateArticle(context.Background(), db, &model.Article{Address: addr(1)})
	if !errors.Is(err, store.ErrExists) {
		t.Fatalf("expected store.ErrExists, got %v", err)
	}
}

func TestQueryCreateReceipt_UniqueViolation(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("INSERT INTO receipts").WillReturnError(&pq.Error{Code: "23505"})

	err := queryCreateReceipt(context.Background(), db, &model.Receipt{Address: addr(1)})
	if !errors.Is(err, store.ErrExists) {
		t.Fatalf("expected store.ErrExists, got %v", err)
	}
}

func TestQueryGetArticle(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	rows := addArticleRow(sqlmock.NewRows(articleRowColumns), addr(1), addr(2), "3", "1000000", "12", now)
	mock.ExpectQuery("SELECT .+ FROM articles WHERE address = \\$1").WithArgs(addr(1).String()).WillReturnRows(rows)

	a, err := queryGetArticle(context.Background(), db, addr(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Address != addr(1) || a.Creator != addr(2) {
		t.Fatalf("got address=%s creator=%s", a.Address, a.Creator)
	}
	if a.Sequence != 3 || a.Price != 1_000_000 || a.Sales != 12 || a.RoyaltyBps != 1000 || !a.Transferable {
		t.Fatalf("got %+v", a)
	}
}

func TestQueryGetArticle_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT .+ FROM articles WHERE address = \\$1").WithArgs(addr(1).String()).WillReturnError(sql.ErrNoRows)

	_, err := queryGetArticle(context.Background(), db, addr(1))
	if err != sql.ErrNoRows {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestQueryListArticles(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	creator := addr(2)

	rows := sqlmock.NewRows(append([]string{"total_count"}, articleRowColumns...)).
		AddRow(int64(5), addr(1).String(), creator.String(), "1", "lit://content", addr(9).String(), "10", int64(0), false, "0", now, now).
		AddRow(int64(5), addr(3).String(), creator.String(), "2", "lit://content", addr(9).String(), "20", int64(0), false, "0", now, now)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) OVER\\(\\) AS total_count, .+ FROM articles WHERE creator = \\$1 ORDER BY created_at DESC, address ASC LIMIT \\$2").
		WithArgs(creator.String(), 2).
		WillReturnRows(rows)

	articles, total, err := queryListArticles(context.Background(), db, model.ArticleFilter{Creator: &creator, Limit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 5 || len(articles) != 2 {
		t.Fatalf("total=%d len=%d, want 5/2", total, len(articles))
	}
	if articles[1].Price != 20 {
		t.Fatalf("second price = %d", articles[1].Price)
	}
}

func TestQueryListArticles_OffsetPastEnd(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) OVER\\(\\) .+ OFFSET \\$1").
		WithArgs(100).
		WillReturnRows(sqlmock.NewRows(append([]string{"total_count"}, articleRowColumns...)))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM articles").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(4)))

	articles, total, err := queryListArticles(context.Background(), db, model.ArticleFilter{Offset: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 4 || len(articles) != 0 {
		t.Fatalf("total=%d len=%d, want 4/0", total, len(articles))
	}
}

func TestQueryIncrementArticleSales(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("UPDATE articles SET sales = sales \\+ 1, updated_at = \\$2").WithArgs(addr(1).String(), opTime).
		WillReturnRows(sqlmock.NewRows([]string{"sales"}).AddRow("8"))

	n, err := queryIncrementArticleSales(context.Background(), db, addr(1), opTime)
	if err != nil || n != 8 {
		t.Fatalf("got %d, %v", n, err)
	}
}

func TestQueryIncrementArticleSales_Overflow(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("UPDATE articles SET sales").WithArgs(addr(1).String(), opTime).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT 1 FROM articles WHERE address = \\$1").WithArgs(addr(1).String()).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(int64(1)))

	_, err := queryIncrementArticleSales(context.Background(), db, addr(1), opTime)
	if !errors.Is(err, store.ErrOverflow) {
		t.Fatalf("expected store.ErrOverflow, got %v", err)
	}
}

func TestQueryUpdateArticlePrice_StampsOperationTime(t *testing.T) {
	db, mock := newMockDB(t)
	rows := addArticleRow(sqlmock.NewRows(articleRowColumns), addr(1), addr(2), "0", "75", "3", opTime)
	mock.ExpectQuery("UPDATE articles SET price = \\$2::numeric, updated_at = \\$3").
		WithArgs(addr(1).String(), "75", opTime).
		WillReturnRows(rows)

	a, err := queryUpdateArticlePrice(context.Background(), db, addr(1), 75, opTime)
	if err != nil {
		t.Fatalf("queryUpdateArticlePrice: %v", err)
	}
	if a.Price != 75 || !a.UpdatedAt.Equal(opTime) {
		t.Fatalf("price=%d updated_at=%v", a.Price, a.UpdatedAt)
	}
}

func TestQueryDebitTokenAccount(t *testing.T) {
	for _, tc := range []struct {
		name    string
		exists  bool
		wantErr error
	}{
		{"insufficient", true, store.ErrInsufficientBalance},
		{"missing", false, sql.ErrNoRows},
	} {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			mock.ExpectQuery("UPDATE token_accounts SET amount = amount - \\$2::numeric").
				WithArgs(addr(1).String(), "500", opTime).
				WillReturnError(sql.ErrNoRows)
			exists := mock.ExpectQuery("SELECT 1 FROM token_accounts WHERE address = \\$1").WithArgs(addr(1).String())
			if tc.exists {
				exists.WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(int64(1)))
			} else {
				exists.WillReturnError(sql.ErrNoRows)
			}

			_, err := queryDebitTokenAccount(context.Background(), db, addr(1), 500, opTime)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestQueryCreditTokenAccount(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("UPDATE token_accounts SET amount = amount \\+ \\$2::numeric, updated_at = \\$3").
		WithArgs(addr(1).String(), "250", opTime).
		WillReturnRows(sqlmock.NewRows([]string{"amount"}).AddRow([]byte("1250")))

	bal, err := queryCreditTokenAccount(context.Background(), db, addr(1), 250, opTime)
	if err != nil || bal != 1250 {
		t.Fatalf("got %d, %v", bal, err)
	}
}

func TestQueryGetAccount(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT kind FROM accounts WHERE address = \\$1").WithArgs(addr(4).String()).
		WillReturnRows(sqlmock.NewRows([]string{"kind"}).AddRow("token_account"))
	mock.ExpectQuery("SELECT .+ FROM token_accounts WHERE address = \\$1").WithArgs(addr(4).String()).
		WillReturnRows(sqlmock.NewRows([]string{"address", "owner", "asset", "amount", "created_at", "updated_at"}).
			AddRow(addr(4).String(), addr(5).String(), addr(6).String(), "99", now, now))

	acct, err := queryGetAccount(context.Background(), db, addr(4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acct.Kind != model.AccountTokenAccount || acct.TokenAccount.Amount != 99 || acct.TokenAccount.Owner != addr(5) {
		t.Fatalf("got %+v", acct)
	}
}

func TestQueryUpdateFeeConfig_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("UPDATE fee_configs").WillReturnResult(sqlmock.NewResult(0, 0))

	err := queryUpdateFeeConfig(context.Background(), db, &model.FeeConfig{Address: addr(1)})
	if err != sql.ErrNoRows {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestQueryRecordEvent(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	e := &model.Event{TxID: "tx-1", Topic: "paywall.article.created", Account: addr(1), Actor: addr(2)}
	mock.ExpectQuery("INSERT INTO events").
		WithArgs("tx-1", "paywall.article.created", addr(1).String(), addr(2).String(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(17), now))

	if err := queryRecordEvent(context.Background(), db, e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ID != 17 || !e.CreatedAt.Equal(now) {
		t.Fatalf("got id=%d created_at=%v", e.ID, e.CreatedAt)
	}
}

func TestRunInTransaction(t *testing.T) {
	t.Run("commit", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE fee_configs").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		s := &PostgresStore{db: db}
		err := s.RunInTransaction(context.Background(), func(tx store.Store) error {
			return tx.UpdateFeeConfig(context.Background(), &model.FeeConfig{Address: addr(1)})
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("rollback", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO receipts").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		s := &PostgresStore{db: db}
		err := s.RunInTransaction(context.Background(), func(tx store.Store) error {
			return tx.CreateReceipt(context.Background(), &model.Receipt{Address: addr(1)})
		})
		if !errors.Is(err, store.ErrExists) {
			t.Fatalf("expected store.ErrExists, got %v", err)
		}
	})
}

func TestReadSnapshot(t *testing.T) {
	t.Run("commit", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT kind FROM accounts WHERE address = \\$1").WithArgs(addr(1).String()).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectCommit()

		s := &PostgresStore{db: db}
		err := s.ReadSnapshot(context.Background(), func(tx store.Store) error {
			_, err := tx.GetAccount(context.Background(), addr(1))
			if !errors.Is(err, sql.ErrNoRows) {
				t.Errorf("GetAccount = %v, want sql.ErrNoRows", err)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("rollback", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		s := &PostgresStore{db: db}
		boom := errors.New("boom")
		if err := s.ReadSnapshot(context.Background(), func(store.Store) error { return boom }); err != boom {
			t.Fatalf("got %v, want boom", err)
		}
	})
}

func TestQueryClaimNonce_Replay(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("INSERT INTO nonces").WithArgs(addr(1).String(), "n1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO nonces").WithArgs(addr(1).String(), "n1").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := queryClaimNonce(context.Background(), db, addr(1), "n1"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := queryClaimNonce(context.Background(), db, addr(1), "n1"); !errors.Is(err, store.ErrExists) {
		t.Fatalf("expected store.ErrExists, got %v", err)
	}
}
