package memory

import (
	"context"
	"time"

	"github.com/alfredjeanlab/paywall/internal/model"
	"github.com/alfredjeanlab/paywall/internal/store"
)

func (s *MemoryStore) GetAccount(ctx context.Context, address model.Address) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.getAccount(address)
}

func (s *MemoryStore) CreateArticle(ctx context.Context, article *model.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.createArticle(article)
}

func (s *MemoryStore) GetArticle(ctx context.Context, address model.Address) (*model.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.getArticle(address)
}

func (s *MemoryStore) ListArticles(ctx context.Context, filter model.ArticleFilter) ([]*model.Article, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.listArticles(filter)
}

func (s *MemoryStore) UpdateArticlePrice(ctx context.Context, address model.Address, price uint64, at time.Time) (*model.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.updateArticlePrice(address, price, at)
}

func (s *MemoryStore) IncrementArticleSales(ctx context.Context, address model.Address, at time.Time) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.incrementArticleSales(address, at)
}

func (s *MemoryStore) CreateFeeConfig(ctx context.Context, config *model.FeeConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.createFeeConfig(config)
}

func (s *MemoryStore) GetFeeConfig(ctx context.Context, address model.Address) (*model.FeeConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.getFeeConfig(address)
}

func (s *MemoryStore) UpdateFeeConfig(ctx context.Context, config *model.FeeConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.updateFeeConfig(config)
}

func (s *MemoryStore) CreateReceipt(ctx context.Context, receipt *model.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.createReceipt(receipt)
}

func (s *MemoryStore) GetReceipt(ctx context.Context, address model.Address) (*model.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.getReceipt(address)
}

func (s *MemoryStore) ListReceipts(ctx context.Context, filter model.ReceiptFilter) ([]*model.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.listReceipts(filter)
}

func (s *MemoryStore) CreateAccessToken(ctx context.Context, token *model.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.createAccessToken(token)
}

func (s *MemoryStore) GetAccessToken(ctx context.Context, address model.Address) (*model.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.getAccessToken(address)
}

func (s *MemoryStore) CreateTokenAccount(ctx context.Context, account *model.TokenAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.createTokenAccount(account)
}

func (s *MemoryStore) GetTokenAccount(ctx context.Context, address model.Address) (*model.TokenAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.getTokenAccount(address)
}

func (s *MemoryStore) ListTokenAccounts(ctx context.Context, filter model.TokenAccountFilter) ([]*model.TokenAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.listTokenAccounts(filter)
}

func (s *MemoryStore) CreditTokenAccount(ctx context.Context, address model.Address, amount uint64, at time.Time) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.creditTokenAccount(address, amount, at)
}

func (s *MemoryStore) DebitTokenAccount(ctx context.Context, address model.Address, amount uint64, at time.Time) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.debitTokenAccount(address, amount, at)
}

func (s *MemoryStore) ClaimNonce(ctx context.Context, signer model.Address, nonce string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.claimNonce(signer, nonce)
}

func (s *MemoryStore) RecordEvent(ctx context.Context, event *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.recordEvent(event)
}

func (s *MemoryStore) GetEvents(ctx context.Context, account model.Address) ([]*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.getEvents(account)
}

// RunInTransaction holds the store lock for the duration of fn, so
// transactions are fully serialised. fn sees a private copy of the state
// which becomes the live state only if fn returns nil.
func (s *MemoryStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txS := &txStore{state: s.state.clone()}
	if err := fn(txS); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = txS.state
	return nil
}

// ReadSnapshot holds the store lock while fn reads a private copy of the
// state. Anything fn writes is dropped.
func (s *MemoryStore) ReadSnapshot(ctx context.Context, fn func(tx store.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&txStore{state: s.state.clone()})
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

// txStore implements store.Store over a transaction's private state. The
// parent MemoryStore holds the lock while it is in use.
type txStore struct {
	state *state
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) GetAccount(ctx context.Context, address model.Address) (*model.Account, error) {
	return s.state.getAccount(address)
}

func (s *txStore) CreateArticle(ctx context.Context, article *model.Article) error {
	return s.state.createArticle(article)
}

func (s *txStore) GetArticle(ctx context.Context, address model.Address) (*model.Article, error) {
	return s.state.getArticle(address)
}

func (s *txStore) ListArticles(ctx context.Context, filter model.ArticleFilter) ([]*model.Article, int, error) {
	return s.state.listArticles(filter)
}

func (s *txStore) UpdateArticlePrice(ctx context.Context, address model.Address, price uint64, at time.Time) (*model.Article, error) {
	return s.state.updateArticlePrice(address, price, at)
}

func (s *txStore) IncrementArticleSales(ctx context.Context, address model.Address, at time.Time) (uint64, error) {
	return s.state.incrementArticleSales(address, at)
}

func (s *txStore) CreateFeeConfig(ctx context.Context, config *model.FeeConfig) error {
	return s.state.createFeeConfig(config)
}

func (s *txStore) GetFeeConfig(ctx context.Context, address model.Address) (*model.FeeConfig, error) {
	return s.state.getFeeConfig(address)
}

func (s *txStore) UpdateFeeConfig(ctx context.Context, config *model.FeeConfig) error {
	return s.state.updateFeeConfig(config)
}

func (s *txStore) CreateReceipt(ctx context.Context, receipt *model.Receipt) error {
	return s.state.createReceipt(receipt)
}

func (s *txStore) GetReceipt(ctx context.Context, address model.Address) (*model.Receipt, error) {
	return s.state.getReceipt(address)
}

func (s *txStore) ListReceipts(ctx context.Context, filter model.ReceiptFilter) ([]*model.Receipt, error) {
	return s.state.listReceipts(filter)
}

func (s *txStore) CreateAccessToken(ctx context.Context, token *model.AccessToken) error {
	return s.state.createAccessToken(token)
}

func (s *txStore) GetAccessToken(ctx context.Context, address model.Address) (*model.AccessToken, error) {
	return s.state.getAccessToken(address)
}

func (s *txStore) CreateTokenAccount(ctx context.Context, account *model.TokenAccount) error {
	return s.state.createTokenAccount(account)
}

func (s *txStore) GetTokenAccount(ctx context.Context, address model.Address) (*model.TokenAccount, error) {
	return s.state.getTokenAccount(address)
}

func (s *txStore) ListTokenAccounts(ctx context.Context, filter model.TokenAccountFilter) ([]*model.TokenAccount, error) {
	return s.state.listTokenAccounts(filter)
}

func (s *txStore) CreditTokenAccount(ctx context.Context, address model.Address, amount uint64, at time.Time) (uint64, error) {
	return s.state.creditTokenAccount(address, amount, at)
}

func (s *txStore) DebitTokenAccount(ctx context.Context, address model.Address, amount uint64, at time.Time) (uint64, error) {
	return s.state.debitTokenAccount(address, amount, at)
}

func (s *txStore) ClaimNonce(ctx context.Context, signer model.Address, nonce string) error {
	return s.state.claimNonce(signer, nonce)
}

func (s *txStore) RecordEvent(ctx context.Context, event *model.Event) error {
	return s.state.recordEvent(event)
}

func (s *txStore) GetEvents(ctx context.Context, account model.Address) ([]*model.Event, error) {
	return s.state.getEvents(account)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

func (s *txStore) ReadSnapshot(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store.
func (s *txStore) Close() error {
	return nil
}
