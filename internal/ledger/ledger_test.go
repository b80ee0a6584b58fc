package ledger

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfredjeanlab/paywall/internal/events"
	"github.com/alfredjeanlab/paywall/internal/instruction"
	"github.com/alfredjeanlab/paywall/internal/model"
	"github.com/alfredjeanlab/paywall/internal/store/memory"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func addr(b byte) model.Address {
	var a model.Address
	for i := range a {
		a[i] = b
	}
	return a
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (r *recordingPublisher) Publish(ctx context.Context, topic string, event any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) published() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.topics...)
}

type fixture struct {
	t         *testing.T
	ctx       context.Context
	ledger    *Ledger
	store     *memory.MemoryStore
	published *recordingPublisher

	admin, treasury, creator, buyer, referrer model.Address
	asset                                     model.Address
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	s := memory.New()
	pub := &recordingPublisher{}
	n := 0
	opts = append([]Option{
		WithClock(func() time.Time { return fixedNow }),
		WithPublisher(pub),
		WithTxIDs(func() string { n++; return fmt.Sprintf("tx-%d", n) }),
	}, opts...)
	return &fixture{
		t:         t,
		ctx:       context.Background(),
		ledger:    New(s, addr(0xEE), opts...),
		store:     s,
		published: pub,
		admin:     addr(1),
		treasury:  addr(2),
		creator:   addr(3),
		buyer:     addr(4),
		referrer:  addr(5),
		asset:     addr(6),
	}
}

// ready sets fees to 200/100 bps, opens a token account for every party, and
// funds the buyer.
func (f *fixture) ready(buyerFunds uint64) {
	f.t.Helper()
	_, err := f.ledger.SetFeeConfig(f.ctx, f.admin, instruction.SetFeeConfig{
		ProtocolFeeBps: 200, ReferrerFeeBps: 100, Treasury: f.treasury,
	})
	require.NoError(f.t, err)
	for _, owner := range []model.Address{f.treasury, f.creator, f.buyer, f.referrer} {
		_, err := f.ledger.OpenTokenAccount(f.ctx, owner, instruction.OpenTokenAccount{Asset: f.asset})
		require.NoError(f.t, err)
	}
	if buyerFunds > 0 {
		f.fund(f.buyer, buyerFunds)
	}
}

func (f *fixture) fund(owner model.Address, amount uint64) {
	f.t.Helper()
	_, err := f.ledger.Deposit(f.ctx, f.admin, instruction.Deposit{Owner: owner, Asset: f.asset, Amount: amount})
	require.NoError(f.t, err)
}

func (f *fixture) balance(owner model.Address) uint64 {
	f.t.Helper()
	ta, err := f.ledger.GetTokenAccount(f.ctx, f.ledger.Addresses().TokenAccount(owner, f.asset))
	require.NoError(f.t, err)
	return ta.Amount
}

func (f *fixture) article(seq, price uint64) *model.Article {
	f.t.Helper()
	a, err := f.ledger.CreateArticle(f.ctx, f.creator, instruction.CreateArticle{
		Sequence:       seq,
		ContentLocator: "lit-protocol://article-" + strings.Repeat("a", int(seq%5)),
		PaymentAsset:   f.asset,
		Price:          price,
		RoyaltyBps:     500,
		Transferable:   true,
	})
	require.NoError(f.t, err)
	return a
}

// holdings captures every token balance plus the article's sales count.
func (f *fixture) holdings(article model.Address) map[string]uint64 {
	f.t.Helper()
	accounts, err := f.store.ListTokenAccounts(f.ctx, model.TokenAccountFilter{})
	require.NoError(f.t, err)
	out := make(map[string]uint64, len(accounts)+1)
	for _, ta := range accounts {
		out[ta.Address.String()] = ta.Amount
	}
	if a, err := f.store.GetArticle(f.ctx, article); err == nil {
		out["sales"] = a.Sales
	}
	return out
}

func (f *fixture) buy(article model.Address, buyer model.Address, referrer *model.Address) (*model.Receipt, error) {
	return f.ledger.Purchase(f.ctx, buyer, instruction.Purchase{Article: article, PaymentAsset: f.asset, Referrer: referrer})
}

func TestPurchase_SplitWithReferrer(t *testing.T) {
	f := newFixture(t)
	f.ready(1_000_000)
	a := f.article(1, 1_000_000)

	r, err := f.buy(a.Address, f.buyer, &f.referrer)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), f.balance(f.buyer))
	assert.Equal(t, uint64(20_000), f.balance(f.treasury))
	assert.Equal(t, uint64(10_000), f.balance(f.referrer))
	assert.Equal(t, uint64(970_000), f.balance(f.creator))

	assert.Equal(t, f.ledger.Addresses().Receipt(a.Address, f.buyer), r.Address)
	assert.Equal(t, uint64(1_000_000), r.PaidAmount)
	assert.Equal(t, fixedNow, r.PurchasedAt)

	got, err := f.ledger.GetArticle(f.ctx, a.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Sales)
}

func TestPurchase_SplitWithoutReferrer(t *testing.T) {
	f := newFixture(t)
	f.ready(1_000_000)
	a := f.article(1, 1_000_000)

	_, err := f.buy(a.Address, f.buyer, nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(20_000), f.balance(f.treasury))
	assert.Equal(t, uint64(0), f.balance(f.referrer))
	assert.Equal(t, uint64(980_000), f.balance(f.creator))
}

func TestPurchase_Conservation(t *testing.T) {
	f := newFixture(t)
	f.ready(10_000_000)
	prices := []uint64{1, 7, 999, 12_345, 1_000_000}
	for i, p := range prices {
		a := f.article(uint64(i), p)
		before := f.balance(f.buyer) + f.balance(f.treasury) + f.balance(f.referrer) + f.balance(f.creator)
		_, err := f.buy(a.Address, f.buyer, &f.referrer)
		require.NoError(t, err)
		after := f.balance(f.buyer) + f.balance(f.treasury) + f.balance(f.referrer) + f.balance(f.creator)
		assert.Equal(t, before, after, "price %d", p)
	}
}

func TestPurchase_AlreadyPurchased(t *testing.T) {
	f := newFixture(t)
	f.ready(5_000_000)
	a := f.article(1, 1_000_000)

	_, err := f.buy(a.Address, f.buyer, nil)
	require.NoError(t, err)
	buyerBefore, creatorBefore := f.balance(f.buyer), f.balance(f.creator)
	eventsBefore, err := f.ledger.Events(f.ctx, a.Address)
	require.NoError(t, err)

	_, err = f.buy(a.Address, f.buyer, nil)
	require.ErrorIs(t, err, ErrAlreadyPurchased)

	assert.Equal(t, buyerBefore, f.balance(f.buyer))
	assert.Equal(t, creatorBefore, f.balance(f.creator))
	got, _ := f.ledger.GetArticle(f.ctx, a.Address)
	assert.Equal(t, uint64(1), got.Sales)
	eventsAfter, _ := f.ledger.Events(f.ctx, a.Address)
	assert.Len(t, eventsAfter, len(eventsBefore))
}

func TestPurchase_ConcurrentSameBuyer(t *testing.T) {
	var txSeq atomic.Int64
	f := newFixture(t, WithTxIDs(func() string { return fmt.Sprintf("tx-%d", txSeq.Add(1)) }))
	f.ready(10_000)
	a := f.article(1, 1_000)

	const attempts = 8
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.buy(a.Address, f.buyer, nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var won int
	for err := range errs {
		if err == nil {
			won++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyPurchased)
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, uint64(9_000), f.balance(f.buyer))
	got, err := f.ledger.GetArticle(f.ctx, a.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Sales)
}

func TestPurchase_SalesCountsBuyers(t *testing.T) {
	f := newFixture(t)
	f.ready(0)
	a := f.article(1, 100)
	for i := byte(0); i < 3; i++ {
		buyer := addr(0x40 + i)
		_, err := f.ledger.OpenTokenAccount(f.ctx, buyer, instruction.OpenTokenAccount{Asset: f.asset})
		require.NoError(t, err)
		f.fund(buyer, 100)
		_, err = f.buy(a.Address, buyer, nil)
		require.NoError(t, err)
	}
	got, err := f.ledger.GetArticle(f.ctx, a.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), got.Sales)

	receipts, err := f.ledger.ListReceipts(f.ctx, model.ReceiptFilter{Article: &a.Address})
	require.NoError(t, err)
	assert.Len(t, receipts, 3)
}

func TestPurchase_MintsAccessTokenOnce(t *testing.T) {
	f := newFixture(t)
	f.ready(1_000)
	a := f.article(1, 100)

	_, err := f.buy(a.Address, f.buyer, nil)
	require.NoError(t, err)

	tokenAddr := f.ledger.Addresses().AccessToken(a.Address, f.buyer)
	tok, err := f.ledger.GetAccessToken(f.ctx, tokenAddr)
	require.NoError(t, err)
	assert.Equal(t, "Access to Article #"+a.Address.String()[:8], tok.Name)
	assert.Equal(t, a.ContentLocator+"?access_token=true", tok.URI)
	assert.True(t, tok.Transferable)
	assert.Equal(t, f.buyer, tok.Buyer)

	_, err = f.buy(a.Address, f.buyer, nil)
	require.ErrorIs(t, err, ErrAlreadyPurchased)
	evts, err := f.ledger.Events(f.ctx, tokenAddr)
	require.NoError(t, err)
	assert.Len(t, evts, 1)
}

func TestPurchase_HasPurchased(t *testing.T) {
	f := newFixture(t)
	f.ready(1_000)
	a := f.article(1, 100)

	ok, err := f.ledger.HasPurchased(f.ctx, a.Address, f.buyer)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.buy(a.Address, f.buyer, nil)
	require.NoError(t, err)

	ok, err = f.ledger.HasPurchased(f.ctx, a.Address, f.buyer)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.ledger.HasPurchased(f.ctx, a.Address, f.referrer)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPurchase_Failures(t *testing.T) {
	otherAsset := addr(0x77)
	for _, tc := range []struct {
		name  string
		setup func(f *fixture) instruction.Purchase
		want  *Error
	}{
		{
			name: "article not found",
			setup: func(f *fixture) instruction.Purchase {
				f.ready(1_000)
				return instruction.Purchase{Article: addr(0x99), PaymentAsset: f.asset}
			},
			want: ErrArticleNotFound,
		},
		{
			name: "asset mismatch",
			setup: func(f *fixture) instruction.Purchase {
				f.ready(1_000)
				a := f.article(1, 100)
				return instruction.Purchase{Article: a.Address, PaymentAsset: otherAsset}
			},
			want: ErrAssetMismatch,
		},
		{
			name: "fee config not initialized",
			setup: func(f *fixture) instruction.Purchase {
				a := f.article(1, 100)
				return instruction.Purchase{Article: a.Address, PaymentAsset: f.asset}
			},
			want: ErrFeeConfigNotInitialized,
		},
		{
			name: "referrer without account",
			setup: func(f *fixture) instruction.Purchase {
				f.ready(1_000)
				a := f.article(1, 100)
				stranger := addr(0x55)
				return instruction.Purchase{Article: a.Address, PaymentAsset: f.asset, Referrer: &stranger}
			},
			want: ErrReferrerAccountMissing,
		},
		{
			name: "buyer without account",
			setup: func(f *fixture) instruction.Purchase {
				f.ready(0)
				a := f.article(1, 100)
				f.buyer = addr(0x56)
				return instruction.Purchase{Article: a.Address, PaymentAsset: f.asset}
			},
			want: ErrInsufficientFunds,
		},
		{
			name: "buyer balance too low",
			setup: func(f *fixture) instruction.Purchase {
				f.ready(99)
				a := f.article(1, 100)
				return instruction.Purchase{Article: a.Address, PaymentAsset: f.asset}
			},
			want: ErrInsufficientFunds,
		},
		{
			name: "creator without account",
			setup: func(f *fixture) instruction.Purchase {
				f.ready(1_000)
				f.creator = addr(0x57)
				a := f.article(1, 100)
				return instruction.Purchase{Article: a.Address, PaymentAsset: f.asset}
			},
			want: ErrRecipientAccountMissing,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			args := tc.setup(f)
			published := len(f.published.published())
			before := f.holdings(args.Article)

			_, err := f.ledger.Purchase(f.ctx, f.buyer, args)
			require.ErrorIs(t, err, tc.want)

			ok, herr := f.ledger.HasPurchased(f.ctx, args.Article, f.buyer)
			require.NoError(t, herr)
			assert.False(t, ok, "no receipt after a failed purchase")
			assert.Len(t, f.published.published(), published, "nothing published after a failed purchase")
			assert.Equal(t, before, f.holdings(args.Article), "balances and sales unchanged after a failed purchase")
		})
	}
}

func TestPurchase_OverflowRollsBack(t *testing.T) {
	f := newFixture(t)
	f.ready(1_000)
	a := f.article(1, 100)
	f.fund(f.creator, math.MaxUint64-10)

	_, err := f.buy(a.Address, f.buyer, nil)
	require.ErrorIs(t, err, ErrOverflow)

	assert.Equal(t, uint64(1_000), f.balance(f.buyer))
	assert.Equal(t, uint64(0), f.balance(f.treasury))
	got, _ := f.ledger.GetArticle(f.ctx, a.Address)
	assert.Equal(t, uint64(0), got.Sales)
}

func TestPurchase_PublishesAfterCommit(t *testing.T) {
	f := newFixture(t)
	f.ready(1_000)
	a := f.article(1, 100)
	before := len(f.published.published())

	_, err := f.buy(a.Address, f.buyer, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{events.TopicPurchased, events.TopicAccessTokenMinted}, f.published.published()[before:])

	evts, err := f.ledger.Events(f.ctx, a.Address)
	require.NoError(t, err)
	last := evts[len(evts)-1]
	assert.Equal(t, events.TopicPurchased, last.Topic)
	var payload events.Purchased
	require.NoError(t, json.Unmarshal(last.Payload, &payload))
	assert.Equal(t, uint64(2), payload.ProtocolFee)
	assert.Equal(t, uint64(98), payload.CreatorAmount)
	assert.Equal(t, uint64(1), payload.Sales)
}

func TestCreateArticle(t *testing.T) {
	f := newFixture(t)
	a := f.article(42, 1_000_000)

	assert.Equal(t, f.ledger.Addresses().Article(f.creator, 42), a.Address)
	assert.Equal(t, uint64(0), a.Sales)
	assert.Equal(t, fixedNow, a.CreatedAt)

	acct, err := f.ledger.GetAccount(f.ctx, a.Address)
	require.NoError(t, err)
	assert.Equal(t, model.AccountArticle, acct.Kind)

	evts, err := f.ledger.Events(f.ctx, a.Address)
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, events.TopicArticleCreated, evts[0].Topic)
	assert.Equal(t, f.creator, evts[0].Actor)
}

func TestCreateArticle_DuplicateSequence(t *testing.T) {
	f := newFixture(t)
	f.article(1, 100)

	_, err := f.ledger.CreateArticle(f.ctx, f.creator, instruction.CreateArticle{
		Sequence: 1, ContentLocator: "other", PaymentAsset: f.asset, Price: 5,
	})
	require.ErrorIs(t, err, ErrDuplicateSequence)

	// Another creator may use the same sequence.
	_, err = f.ledger.CreateArticle(f.ctx, f.buyer, instruction.CreateArticle{
		Sequence: 1, ContentLocator: "other", PaymentAsset: f.asset, Price: 5,
	})
	require.NoError(t, err)
}

func TestCreateArticle_Validation(t *testing.T) {
	for _, tc := range []struct {
		name    string
		locator string
		price   uint64
		royalty uint16
		want    *Error
	}{
		{"locator at limit", strings.Repeat("x", 256), 1, 0, nil},
		{"locator over limit", strings.Repeat("x", 257), 1, 0, ErrURITooLong},
		{"zero price", "lit://a", 0, 0, ErrInvalidPrice},
		{"minimum price", "lit://a", 1, 0, nil},
		{"royalty at limit", "lit://a", 1, 10_000, nil},
		{"royalty over limit", "lit://a", 1, 10_001, ErrInvalidRoyalty},
		{"locator checked before price", strings.Repeat("x", 300), 0, 0, ErrURITooLong},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			a, err := f.ledger.CreateArticle(f.ctx, f.creator, instruction.CreateArticle{
				Sequence: 1, ContentLocator: tc.locator, PaymentAsset: f.asset, Price: tc.price, RoyaltyBps: tc.royalty,
			})
			if tc.want == nil {
				require.NoError(t, err)
				assert.Equal(t, tc.locator, a.ContentLocator)
				return
			}
			require.ErrorIs(t, err, tc.want)
			_, gerr := f.ledger.GetArticle(f.ctx, f.ledger.Addresses().Article(f.creator, 1))
			assert.ErrorIs(t, gerr, ErrArticleNotFound)
		})
	}
}

func TestSetArticlePrice(t *testing.T) {
	f := newFixture(t)
	a := f.article(1, 100)

	updated, err := f.ledger.SetArticlePrice(f.ctx, f.creator, instruction.SetArticlePrice{Article: a.Address, NewPrice: 250})
	require.NoError(t, err)
	assert.Equal(t, uint64(250), updated.Price)
	assert.Equal(t, a.ContentLocator, updated.ContentLocator)

	_, err = f.ledger.SetArticlePrice(f.ctx, f.buyer, instruction.SetArticlePrice{Article: a.Address, NewPrice: 1})
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.ledger.SetArticlePrice(f.ctx, f.creator, instruction.SetArticlePrice{Article: a.Address, NewPrice: 0})
	require.ErrorIs(t, err, ErrInvalidPrice)

	_, err = f.ledger.SetArticlePrice(f.ctx, f.creator, instruction.SetArticlePrice{Article: addr(0x99), NewPrice: 5})
	require.ErrorIs(t, err, ErrArticleNotFound)

	got, err := f.ledger.GetArticle(f.ctx, a.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(250), got.Price)
}

func TestSetArticlePrice_AppliesToLaterPurchases(t *testing.T) {
	f := newFixture(t)
	f.ready(1_000)
	a := f.article(1, 100)
	_, err := f.ledger.SetArticlePrice(f.ctx, f.creator, instruction.SetArticlePrice{Article: a.Address, NewPrice: 300})
	require.NoError(t, err)

	r, err := f.buy(a.Address, f.buyer, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), r.PaidAmount)
	assert.Equal(t, uint64(700), f.balance(f.buyer))
}

func TestUpdatesStampLedgerClock(t *testing.T) {
	now := fixedNow
	f := newFixture(t, WithClock(func() time.Time { return now }))
	f.ready(1_000)
	a := f.article(1, 100)

	now = fixedNow.Add(time.Hour)
	updated, err := f.ledger.SetArticlePrice(f.ctx, f.creator, instruction.SetArticlePrice{Article: a.Address, NewPrice: 200})
	require.NoError(t, err)
	assert.True(t, updated.UpdatedAt.Equal(now), "price update stamped %v", updated.UpdatedAt)

	now = fixedNow.Add(2 * time.Hour)
	_, err = f.buy(a.Address, f.buyer, &f.referrer)
	require.NoError(t, err)

	got, err := f.ledger.GetArticle(f.ctx, a.Address)
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(fixedNow))
	assert.True(t, got.UpdatedAt.Equal(now), "sale stamped %v", got.UpdatedAt)
	for _, owner := range []model.Address{f.buyer, f.creator, f.treasury, f.referrer} {
		ta, err := f.ledger.GetTokenAccount(f.ctx, f.ledger.Addresses().TokenAccount(owner, f.asset))
		require.NoError(t, err)
		assert.True(t, ta.UpdatedAt.Equal(now), "%s stamped %v", owner, ta.UpdatedAt)
	}
}

func TestSetFeeConfig(t *testing.T) {
	f := newFixture(t)

	cfg, err := f.ledger.SetFeeConfig(f.ctx, f.admin, instruction.SetFeeConfig{ProtocolFeeBps: 200, ReferrerFeeBps: 100, Treasury: f.treasury})
	require.NoError(t, err)
	assert.Equal(t, f.admin, cfg.Admin)
	assert.Equal(t, f.ledger.Addresses().FeeConfig(), cfg.Address)

	// Only the admin can update; the admin never changes.
	_, err = f.ledger.SetFeeConfig(f.ctx, f.buyer, instruction.SetFeeConfig{ProtocolFeeBps: 0, Treasury: f.buyer})
	require.ErrorIs(t, err, ErrUnauthorized)

	cfg, err = f.ledger.SetFeeConfig(f.ctx, f.admin, instruction.SetFeeConfig{ProtocolFeeBps: 300, ReferrerFeeBps: 0, Treasury: f.creator})
	require.NoError(t, err)
	assert.Equal(t, f.admin, cfg.Admin)
	assert.Equal(t, uint16(300), cfg.ProtocolFeeBps)
	assert.Equal(t, f.creator, cfg.Treasury)

	got, err := f.ledger.GetFeeConfig(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, cfg.ProtocolFeeBps, got.ProtocolFeeBps)
	assert.Equal(t, cfg.Treasury, got.Treasury)
}

func TestSetFeeConfig_FeesTooHigh(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.SetFeeConfig(f.ctx, f.admin, instruction.SetFeeConfig{ProtocolFeeBps: 9_000, ReferrerFeeBps: 1_001, Treasury: f.treasury})
	require.ErrorIs(t, err, ErrFeesTooHigh)
	_, err = f.ledger.GetFeeConfig(f.ctx)
	require.ErrorIs(t, err, ErrAccountNotFound)

	_, err = f.ledger.SetFeeConfig(f.ctx, f.admin, instruction.SetFeeConfig{ProtocolFeeBps: 9_000, ReferrerFeeBps: 1_000, Treasury: f.treasury})
	require.NoError(t, err)
}

func TestSetFeeConfig_BootstrapAdmin(t *testing.T) {
	f := newFixture(t, WithBootstrapAdmin(addr(1)))

	_, err := f.ledger.SetFeeConfig(f.ctx, f.buyer, instruction.SetFeeConfig{ProtocolFeeBps: 200, Treasury: f.buyer})
	require.ErrorIs(t, err, ErrUnauthorized)

	cfg, err := f.ledger.SetFeeConfig(f.ctx, f.admin, instruction.SetFeeConfig{ProtocolFeeBps: 200, Treasury: f.treasury})
	require.NoError(t, err)
	assert.Equal(t, f.admin, cfg.Admin)
}

func TestOpenTokenAccount_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.ready(500)

	again, err := f.ledger.OpenTokenAccount(f.ctx, f.buyer, instruction.OpenTokenAccount{Asset: f.asset})
	require.NoError(t, err)
	assert.Equal(t, uint64(500), again.Amount)

	opened, err := f.ledger.Events(f.ctx, again.Address)
	require.NoError(t, err)
	var count int
	for _, e := range opened {
		if e.Topic == events.TopicTokenAccountOpened {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestDeposit(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.Deposit(f.ctx, f.admin, instruction.Deposit{Owner: f.buyer, Asset: f.asset, Amount: 10})
	require.ErrorIs(t, err, ErrFeeConfigNotInitialized)

	f.ready(0)

	_, err = f.ledger.Deposit(f.ctx, f.buyer, instruction.Deposit{Owner: f.buyer, Asset: f.asset, Amount: 10})
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.ledger.Deposit(f.ctx, f.admin, instruction.Deposit{Owner: f.buyer, Asset: f.asset, Amount: 0})
	require.ErrorIs(t, err, ErrInvalidAmount)

	// Deposit opens the account when it does not exist yet.
	stranger := addr(0x60)
	ta, err := f.ledger.Deposit(f.ctx, f.admin, instruction.Deposit{Owner: stranger, Asset: f.asset, Amount: 75})
	require.NoError(t, err)
	assert.Equal(t, uint64(75), ta.Amount)
	assert.Equal(t, uint64(75), f.balance(stranger))
}

func TestGetAccount_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.GetAccount(f.ctx, addr(0x99))
	require.ErrorIs(t, err, ErrAccountNotFound)
	assert.True(t, CodeOf(err).IsNotFound())
}

func TestListArticles(t *testing.T) {
	f := newFixture(t)
	f.article(1, 10)
	f.article(2, 20)
	_, err := f.ledger.CreateArticle(f.ctx, f.buyer, instruction.CreateArticle{Sequence: 1, ContentLocator: "x", PaymentAsset: f.asset, Price: 1})
	require.NoError(t, err)

	list, total, err := f.ledger.ListArticles(f.ctx, model.ArticleFilter{Creator: &f.creator})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, list, 2)
}

func newKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return priv
}

func signer(key ed25519.PrivateKey) model.Address {
	return model.Address(key.Public().(ed25519.PublicKey))
}

func TestExecute(t *testing.T) {
	f := newFixture(t)
	creatorKey := newKey(t)

	tx, err := instruction.New(instruction.NewCreateArticle(instruction.CreateArticle{
		Sequence: 9, ContentLocator: "lit://signed", PaymentAsset: f.asset, Price: 40,
	}), "nonce-1", creatorKey)
	require.NoError(t, err)

	res, err := f.ledger.Execute(f.ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, "tx-1", res.TxID)
	require.Len(t, res.Accounts, 1)
	assert.Equal(t, model.AccountArticle, res.Accounts[0].Kind)
	assert.Equal(t, signer(creatorKey), res.Accounts[0].Article.Creator)
	require.Len(t, res.Events, 1)
	assert.Equal(t, res.TxID, res.Events[0].TxID)

	// Replaying the same signed transaction is rejected.
	_, err = f.ledger.Execute(f.ctx, tx)
	require.ErrorIs(t, err, ErrDuplicateTransaction)
}

func TestExecute_RejectsTampering(t *testing.T) {
	f := newFixture(t)
	key := newKey(t)
	tx, err := instruction.New(instruction.NewSetFeeConfig(instruction.SetFeeConfig{
		ProtocolFeeBps: 100, Treasury: f.treasury,
	}), "nonce-1", key)
	require.NoError(t, err)

	tx.Instruction.SetFeeConfig.ProtocolFeeBps = 0
	_, err = f.ledger.Execute(f.ctx, tx)
	require.ErrorIs(t, err, ErrInvalidSignature)
	assert.Equal(t, CategoryAuthorization, CodeOf(err).Category())

	_, err = f.ledger.GetFeeConfig(f.ctx)
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestExecute_FailedTransactionReleasesNonce(t *testing.T) {
	f := newFixture(t)
	key := newKey(t)

	tx, err := instruction.New(instruction.NewOpenTokenAccount(instruction.OpenTokenAccount{Asset: f.asset}), "nonce-1", key)
	require.NoError(t, err)
	bad, err := instruction.New(instruction.NewSetArticlePrice(instruction.SetArticlePrice{Article: addr(0x99), NewPrice: 1}), "nonce-1", key)
	require.NoError(t, err)

	_, err = f.ledger.Execute(f.ctx, bad)
	require.ErrorIs(t, err, ErrArticleNotFound)

	res, err := f.ledger.Execute(f.ctx, tx)
	require.NoError(t, err)
	require.Len(t, res.Accounts, 1)
	assert.Equal(t, signer(key), res.Accounts[0].TokenAccount.Owner)
}

func TestExecute_FullFlow(t *testing.T) {
	f := newFixture(t)
	adminKey, creatorKey, buyerKey := newKey(t), newKey(t), newKey(t)
	admin, creator, buyer := signer(adminKey), signer(creatorKey), signer(buyerKey)

	exec := func(key ed25519.PrivateKey, nonce string, in instruction.Instruction) *Result {
		t.Helper()
		tx, err := instruction.New(in, nonce, key)
		require.NoError(t, err)
		res, err := f.ledger.Execute(f.ctx, tx)
		require.NoError(t, err)
		return res
	}

	exec(adminKey, "1", instruction.NewSetFeeConfig(instruction.SetFeeConfig{ProtocolFeeBps: 200, ReferrerFeeBps: 100, Treasury: admin}))
	exec(adminKey, "2", instruction.NewOpenTokenAccount(instruction.OpenTokenAccount{Asset: f.asset}))
	exec(creatorKey, "1", instruction.NewOpenTokenAccount(instruction.OpenTokenAccount{Asset: f.asset}))
	exec(adminKey, "3", instruction.NewDeposit(instruction.Deposit{Owner: buyer, Asset: f.asset, Amount: 1_000_000}))
	res := exec(creatorKey, "2", instruction.NewCreateArticle(instruction.CreateArticle{
		Sequence: 0, ContentLocator: "lit://flow", PaymentAsset: f.asset, Price: 1_000_000,
	}))
	article := res.Accounts[0].Article.Address

	res = exec(buyerKey, "1", instruction.NewPurchase(instruction.Purchase{Article: article, PaymentAsset: f.asset}))
	require.Len(t, res.Accounts, 3)
	assert.Equal(t, model.AccountReceipt, res.Accounts[0].Kind)
	assert.Equal(t, model.AccountAccessToken, res.Accounts[1].Kind)
	assert.Equal(t, uint64(1), res.Accounts[2].Article.Sales)

	assert.Equal(t, uint64(20_000), f.balance(admin))
	assert.Equal(t, uint64(980_000), f.balance(creator))
	ok, err := f.ledger.HasPurchased(f.ctx, article, buyer)
	require.NoError(t, err)
	assert.True(t, ok)
}
