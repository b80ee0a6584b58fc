package sync

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/alfredjeanlab/paywall/internal/ledger"
	"github.com/alfredjeanlab/paywall/internal/model"
)

// Source is the read side of the ledger that a snapshot is taken from.
// *ledger.Ledger satisfies it.
type Source interface {
	ListArticles(ctx context.Context, filter model.ArticleFilter) ([]*model.Article, int, error)
	ListReceipts(ctx context.Context, filter model.ReceiptFilter) ([]*model.Receipt, error)
	ListTokenAccounts(ctx context.Context, filter model.TokenAccountFilter) ([]*model.TokenAccount, error)
	GetFeeConfig(ctx context.Context) (*model.FeeConfig, error)
}

// viewer is a Source that can serve all of its reads from one point in time.
type viewer interface {
	View(ctx context.Context, fn func(v *ledger.Ledger) error) error
}

// Counts summarises what a snapshot holds.
type Counts struct {
	Articles      int  `json:"article_count"`
	Receipts      int  `json:"receipt_count"`
	TokenAccounts int  `json:"token_account_count"`
	FeeConfig     bool `json:"fee_config"`
}

// Snapshot is one exported ledger state. Digest covers the records only, so
// two snapshots of the same state share a digest whatever their timestamps.
type Snapshot struct {
	Data    []byte
	Digest  string
	Counts  Counts
	TakenAt time.Time
}

// ShortDigest is the first 12 hex characters of the digest.
func (s *Snapshot) ShortDigest() string {
	if len(s.Digest) < 12 {
		return s.Digest
	}
	return s.Digest[:12]
}

// header is the first JSONL record of a snapshot.
type header struct {
	Version   string    `json:"version"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Digest    string    `json:"digest"`
	Counts
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Take reads the whole ledger from src and encodes it as JSONL: a header,
// the fee config if initialized, then articles, receipts and token
// accounts, each sorted by address. When src is a *ledger.Ledger all records
// come from a single read snapshot.
func Take(ctx context.Context, src Source, now time.Time) (*Snapshot, error) {
	v, ok := src.(viewer)
	if !ok {
		return take(ctx, src, now)
	}
	var snap *Snapshot
	err := v.View(ctx, func(l *ledger.Ledger) error {
		var err error
		snap, err = take(ctx, l, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func take(ctx context.Context, src Source, now time.Time) (*Snapshot, error) {
	articles, _, err := src.ListArticles(ctx, model.ArticleFilter{})
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	receipts, err := src.ListReceipts(ctx, model.ReceiptFilter{})
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	accounts, err := src.ListTokenAccounts(ctx, model.TokenAccountFilter{})
	if err != nil {
		return nil, fmt.Errorf("list token accounts: %w", err)
	}
	fees, err := src.GetFeeConfig(ctx)
	if err != nil {
		if !errors.Is(err, ledger.ErrAccountNotFound) {
			return nil, fmt.Errorf("get fee config: %w", err)
		}
		fees = nil
	}

	byAddress := func(a, b model.Address) bool { return a.String() < b.String() }
	sort.Slice(articles, func(i, j int) bool { return byAddress(articles[i].Address, articles[j].Address) })
	sort.Slice(receipts, func(i, j int) bool { return byAddress(receipts[i].Address, receipts[j].Address) })
	sort.Slice(accounts, func(i, j int) bool { return byAddress(accounts[i].Address, accounts[j].Address) })

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	enc.SetEscapeHTML(false)
	put := func(kind model.AccountKind, addr model.Address, v any) error {
		if err := enc.Encode(record{Type: string(kind), Data: v}); err != nil {
			return fmt.Errorf("encode %s %s: %w", kind, addr, err)
		}
		return nil
	}

	if fees != nil {
		if err := put(model.AccountFeeConfig, fees.Address, fees); err != nil {
			return nil, err
		}
	}
	for _, a := range articles {
		if err := put(model.AccountArticle, a.Address, a); err != nil {
			return nil, err
		}
	}
	for _, r := range receipts {
		if err := put(model.AccountReceipt, r.Address, r); err != nil {
			return nil, err
		}
	}
	for _, t := range accounts {
		if err := put(model.AccountTokenAccount, t.Address, t); err != nil {
			return nil, err
		}
	}

	sum := blake2b.Sum256(body.Bytes())
	snap := &Snapshot{
		Digest: hex.EncodeToString(sum[:]),
		Counts: Counts{
			Articles:      len(articles),
			Receipts:      len(receipts),
			TokenAccounts: len(accounts),
			FeeConfig:     fees != nil,
		},
		TakenAt: now.UTC(),
	}

	var out bytes.Buffer
	hdr := json.NewEncoder(&out)
	hdr.SetEscapeHTML(false)
	if err := hdr.Encode(header{
		Version:   "1",
		Type:      "header",
		Timestamp: snap.TakenAt,
		Digest:    snap.Digest,
		Counts:    snap.Counts,
	}); err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	out.Write(body.Bytes())
	snap.Data = out.Bytes()
	return snap, nil
}

// ExportJSONL writes a snapshot of the ledger to w. Nothing is written if
// reading the ledger fails.
func ExportJSONL(ctx context.Context, src Source, w io.Writer) error {
	snap, err := Take(ctx, src, time.Now())
	if err != nil {
		return err
	}
	if _, err := w.Write(snap.Data); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}
