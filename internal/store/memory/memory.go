// Package memory implements store.Store in process memory. It backs
// development servers and tests; state is lost on exit.
package memory

import (
	"database/sql"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/paywall/internal/model"
	"github.com/alfredjeanlab/paywall/internal/store"
)

// MemoryStore implements store.Store with a single lock around each
// operation. Transactions run against a copy of the state that replaces the
// live state only when the callback succeeds.
type MemoryStore struct {
	mu    sync.Mutex
	state *state
}

// Compile-time check that MemoryStore implements store.Store.
var _ store.Store = (*MemoryStore)(nil)

// New returns an empty store.
func New() *MemoryStore {
	return &MemoryStore{state: newState()}
}

type state struct {
	kinds         map[model.Address]model.AccountKind
	articles      map[model.Address]*model.Article
	feeConfigs    map[model.Address]*model.FeeConfig
	receipts      map[model.Address]*model.Receipt
	accessTokens  map[model.Address]*model.AccessToken
	tokenAccounts map[model.Address]*model.TokenAccount
	nonces        map[nonceKey]struct{}
	events        []*model.Event
	nextEventID   int64
}

func newState() *state {
	return &state{
		kinds:         make(map[model.Address]model.AccountKind),
		articles:      make(map[model.Address]*model.Article),
		feeConfigs:    make(map[model.Address]*model.FeeConfig),
		receipts:      make(map[model.Address]*model.Receipt),
		accessTokens:  make(map[model.Address]*model.AccessToken),
		tokenAccounts: make(map[model.Address]*model.TokenAccount),
		nonces:        make(map[nonceKey]struct{}),
		nextEventID:   1,
	}
}

func cloneMap[V any](m map[model.Address]*V) map[model.Address]*V {
	out := make(map[model.Address]*V, len(m))
	for k, v := range m {
		c := *v
		out[k] = &c
	}
	return out
}

func (s *state) clone() *state {
	kinds := make(map[model.Address]model.AccountKind, len(s.kinds))
	for k, v := range s.kinds {
		kinds[k] = v
	}
	nonces := make(map[nonceKey]struct{}, len(s.nonces))
	for k := range s.nonces {
		nonces[k] = struct{}{}
	}
	events := make([]*model.Event, len(s.events))
	copy(events, s.events)
	return &state{
		kinds:         kinds,
		articles:      cloneMap(s.articles),
		feeConfigs:    cloneMap(s.feeConfigs),
		receipts:      cloneMap(s.receipts),
		accessTokens:  cloneMap(s.accessTokens),
		tokenAccounts: cloneMap(s.tokenAccounts),
		nonces:        nonces,
		events:        events,
		nextEventID:   s.nextEventID,
	}
}

func (s *state) claim(address model.Address, kind model.AccountKind) error {
	if _, ok := s.kinds[address]; ok {
		return store.ErrExists
	}
	s.kinds[address] = kind
	return nil
}

func (s *state) getAccount(address model.Address) (*model.Account, error) {
	kind, ok := s.kinds[address]
	if !ok {
		return nil, sql.ErrNoRows
	}
	switch kind {
	case model.AccountArticle:
		a := *s.articles[address]
		return model.ArticleAccount(&a), nil
	case model.AccountReceipt:
		r := *s.receipts[address]
		return model.ReceiptAccount(&r), nil
	case model.AccountFeeConfig:
		c := *s.feeConfigs[address]
		return model.FeeConfigAccount(&c), nil
	case model.AccountTokenAccount:
		t := *s.tokenAccounts[address]
		return model.TokenAccountAccount(&t), nil
	case model.AccountAccessToken:
		t := *s.accessTokens[address]
		return model.AccessTokenAccount(&t), nil
	}
	return nil, sql.ErrNoRows
}

func (s *state) createArticle(a *model.Article) error {
	if err := s.claim(a.Address, model.AccountArticle); err != nil {
		return err
	}
	c := *a
	s.articles[a.Address] = &c
	return nil
}

func (s *state) getArticle(address model.Address) (*model.Article, error) {
	a, ok := s.articles[address]
	if !ok {
		return nil, sql.ErrNoRows
	}
	c := *a
	return &c, nil
}

func (s *state) listArticles(filter model.ArticleFilter) ([]*model.Article, int, error) {
	var all []*model.Article
	for _, a := range s.articles {
		if filter.Creator != nil && a.Creator != *filter.Creator {
			continue
		}
		c := *a
		all = append(all, &c)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].Address.String() < all[j].Address.String()
	})
	total := len(all)
	return page(all, filter.Offset, filter.Limit), total, nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func (s *state) updateArticlePrice(address model.Address, price uint64, at time.Time) (*model.Article, error) {
	a, ok := s.articles[address]
	if !ok {
		return nil, sql.ErrNoRows
	}
	a.Price = price
	a.UpdatedAt = at
	c := *a
	return &c, nil
}

func (s *state) incrementArticleSales(address model.Address, at time.Time) (uint64, error) {
	a, ok := s.articles[address]
	if !ok {
		return 0, sql.ErrNoRows
	}
	if a.Sales == math.MaxUint64 {
		return 0, store.ErrOverflow
	}
	a.Sales++
	a.UpdatedAt = at
	return a.Sales, nil
}

func (s *state) createFeeConfig(c *model.FeeConfig) error {
	if err := s.claim(c.Address, model.AccountFeeConfig); err != nil {
		return err
	}
	cp := *c
	s.feeConfigs[c.Address] = &cp
	return nil
}

func (s *state) getFeeConfig(address model.Address) (*model.FeeConfig, error) {
	c, ok := s.feeConfigs[address]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *c
	return &cp, nil
}

func (s *state) updateFeeConfig(c *model.FeeConfig) error {
	cur, ok := s.feeConfigs[c.Address]
	if !ok {
		return sql.ErrNoRows
	}
	cur.ProtocolFeeBps = c.ProtocolFeeBps
	cur.ReferrerFeeBps = c.ReferrerFeeBps
	cur.Treasury = c.Treasury
	cur.UpdatedAt = c.UpdatedAt
	return nil
}

func (s *state) createReceipt(r *model.Receipt) error {
	if err := s.claim(r.Address, model.AccountReceipt); err != nil {
		return err
	}
	c := *r
	s.receipts[r.Address] = &c
	return nil
}

func (s *state) getReceipt(address model.Address) (*model.Receipt, error) {
	r, ok := s.receipts[address]
	if !ok {
		return nil, sql.ErrNoRows
	}
	c := *r
	return &c, nil
}

func (s *state) listReceipts(filter model.ReceiptFilter) ([]*model.Receipt, error) {
	var out []*model.Receipt
	for _, r := range s.receipts {
		if filter.Buyer != nil && r.Buyer != *filter.Buyer {
			continue
		}
		if filter.Article != nil && r.Article != *filter.Article {
			continue
		}
		c := *r
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PurchasedAt.Equal(out[j].PurchasedAt) {
			return out[i].PurchasedAt.Before(out[j].PurchasedAt)
		}
		return out[i].Address.String() < out[j].Address.String()
	})
	return page(out, filter.Offset, filter.Limit), nil
}

func (s *state) createAccessToken(t *model.AccessToken) error {
	if err := s.claim(t.Address, model.AccountAccessToken); err != nil {
		return err
	}
	c := *t
	s.accessTokens[t.Address] = &c
	return nil
}

func (s *state) getAccessToken(address model.Address) (*model.AccessToken, error) {
	t, ok := s.accessTokens[address]
	if !ok {
		return nil, sql.ErrNoRows
	}
	c := *t
	return &c, nil
}

func (s *state) createTokenAccount(t *model.TokenAccount) error {
	if err := s.claim(t.Address, model.AccountTokenAccount); err != nil {
		return err
	}
	c := *t
	s.tokenAccounts[t.Address] = &c
	return nil
}

func (s *state) getTokenAccount(address model.Address) (*model.TokenAccount, error) {
	t, ok := s.tokenAccounts[address]
	if !ok {
		return nil, sql.ErrNoRows
	}
	c := *t
	return &c, nil
}

func (s *state) listTokenAccounts(filter model.TokenAccountFilter) ([]*model.TokenAccount, error) {
	var out []*model.TokenAccount
	for _, t := range s.tokenAccounts {
		if filter.Owner != nil && t.Owner != *filter.Owner {
			continue
		}
		if filter.Asset != nil && t.Asset != *filter.Asset {
			continue
		}
		c := *t
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address.String() < out[j].Address.String()
	})
	return out, nil
}

func (s *state) creditTokenAccount(address model.Address, amount uint64, at time.Time) (uint64, error) {
	t, ok := s.tokenAccounts[address]
	if !ok {
		return 0, sql.ErrNoRows
	}
	if t.Amount > math.MaxUint64-amount {
		return 0, store.ErrOverflow
	}
	t.Amount += amount
	t.UpdatedAt = at
	return t.Amount, nil
}

func (s *state) debitTokenAccount(address model.Address, amount uint64, at time.Time) (uint64, error) {
	t, ok := s.tokenAccounts[address]
	if !ok {
		return 0, sql.ErrNoRows
	}
	if t.Amount < amount {
		return 0, store.ErrInsufficientBalance
	}
	t.Amount -= amount
	t.UpdatedAt = at
	return t.Amount, nil
}

type nonceKey struct {
	signer model.Address
	nonce  string
}

func (s *state) claimNonce(signer model.Address, nonce string) error {
	k := nonceKey{signer, nonce}
	if _, ok := s.nonces[k]; ok {
		return store.ErrExists
	}
	s.nonces[k] = struct{}{}
	return nil
}

func (s *state) recordEvent(e *model.Event) error {
	e.ID = s.nextEventID
	s.nextEventID++
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	c := *e
	s.events = append(s.events, &c)
	return nil
}

func (s *state) getEvents(account model.Address) ([]*model.Event, error) {
	var out []*model.Event
	for _, e := range s.events {
		if e.Account == account {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}
