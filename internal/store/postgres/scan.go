package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/alfredjeanlab/paywall/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// numeric renders a uint64 for a NUMERIC(20,0) column. lib/pq has no native
// unsigned 64-bit parameter type.
func numeric(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// u64 scans a NUMERIC(20,0) column into the uint64 it points to.
type u64 struct{ v *uint64 }

func (n u64) Scan(src any) error {
	switch s := src.(type) {
	case []byte:
		return n.parse(string(s))
	case string:
		return n.parse(s)
	case int64:
		if s < 0 {
			return fmt.Errorf("numeric: negative value %d", s)
		}
		*n.v = uint64(s)
		return nil
	case int:
		return n.Scan(int64(s))
	default:
		return fmt.Errorf("numeric: cannot scan %T", src)
	}
}

func (n u64) parse(s string) error {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("numeric: %w", err)
	}
	*n.v = v
	return nil
}

// bps scans an INTEGER basis-point column into the uint16 it points to.
type bps struct{ v *uint16 }

func (b bps) Scan(src any) error {
	var n int64
	switch s := src.(type) {
	case int64:
		n = s
	case int:
		n = int64(s)
	case []byte:
		parsed, err := strconv.ParseInt(string(s), 10, 64)
		if err != nil {
			return fmt.Errorf("bps: %w", err)
		}
		n = parsed
	default:
		return fmt.Errorf("bps: cannot scan %T", src)
	}
	if n < 0 || n > 0xFFFF {
		return fmt.Errorf("bps: %d out of range", n)
	}
	*b.v = uint16(n)
	return nil
}

// scanArticle scans a single row into a model.Article.
// The row must contain columns in the order defined by articleColumns.
func scanArticle(row scannable) (*model.Article, error) {
	var a model.Article
	err := row.Scan(
		&a.Address,
		&a.Creator,
		u64{&a.Sequence},
		&a.ContentLocator,
		&a.PaymentAsset,
		u64{&a.Price},
		bps{&a.RoyaltyBps},
		&a.Transferable,
		u64{&a.Sales},
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// scanArticleWithTotal scans a row that has a leading total_count column
// followed by the standard article columns. Used by queryListArticles with
// COUNT(*) OVER().
func scanArticleWithTotal(row scannable) (*model.Article, int, error) {
	var total int
	var a model.Article
	err := row.Scan(
		&total,
		&a.Address,
		&a.Creator,
		u64{&a.Sequence},
		&a.ContentLocator,
		&a.PaymentAsset,
		u64{&a.Price},
		bps{&a.RoyaltyBps},
		&a.Transferable,
		u64{&a.Sales},
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, 0, err
	}
	return &a, total, nil
}

func scanFeeConfig(row scannable) (*model.FeeConfig, error) {
	var c model.FeeConfig
	err := row.Scan(
		&c.Address,
		&c.Admin,
		bps{&c.ProtocolFeeBps},
		bps{&c.ReferrerFeeBps},
		&c.Treasury,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanReceipt(row scannable) (*model.Receipt, error) {
	var r model.Receipt
	err := row.Scan(&r.Address, &r.Article, &r.Buyer, u64{&r.PaidAmount}, &r.PurchasedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// scanReceipts scans multiple rows into a slice of model.Receipt pointers.
func scanReceipts(rows *sql.Rows) ([]*model.Receipt, error) {
	var receipts []*model.Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return receipts, nil
}

func scanAccessToken(row scannable) (*model.AccessToken, error) {
	var t model.AccessToken
	err := row.Scan(&t.Address, &t.Article, &t.Buyer, &t.Transferable, &t.Name, &t.URI, &t.MintedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanTokenAccount(row scannable) (*model.TokenAccount, error) {
	var t model.TokenAccount
	err := row.Scan(&t.Address, &t.Owner, &t.Asset, u64{&t.Amount}, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanTokenAccounts(rows *sql.Rows) ([]*model.TokenAccount, error) {
	var accounts []*model.TokenAccount
	for rows.Next() {
		t, err := scanTokenAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

// scanEvent scans a single row into a model.Event.
func scanEvent(row scannable) (*model.Event, error) {
	var e model.Event
	var payload []byte
	err := row.Scan(&e.ID, &e.TxID, &e.Topic, &e.Account, &e.Actor, &payload, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		e.Payload = json.RawMessage(payload)
	}
	return &e, nil
}

// scanEvents scans multiple rows into a slice of model.Event pointers.
func scanEvents(rows *sql.Rows) ([]*model.Event, error) {
	var events []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// jsonbBytes converts json.RawMessage to a []byte suitable for JSONB columns.
func jsonbBytes(m json.RawMessage) []byte {
	if len(m) == 0 {
		return nil
	}
	return []byte(m)
}
