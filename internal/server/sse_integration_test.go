package server

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alfredjeanlab/paywall/internal/client"
	"github.com/alfredjeanlab/paywall/internal/events"
	"github.com/alfredjeanlab/paywall/internal/instruction"
	"github.com/alfredjeanlab/paywall/internal/model"
)

// liveMarket is a marketplace served over TCP with a client pointed at it.
type liveMarket struct {
	*marketplace
	api *client.HTTPClient
	ctx context.Context
}

func startLiveMarket(t *testing.T) *liveMarket {
	t.Helper()
	m := newMarketplace(t, 10_000, 100)
	ts := httptest.NewServer(m.h)
	t.Cleanup(ts.Close)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return &liveMarket{marketplace: m, api: client.NewHTTPClient(ts.URL, ""), ctx: ctx}
}

func (lm *liveMarket) stream(t *testing.T, opts client.StreamOptions) *client.EventStream {
	t.Helper()
	s, err := lm.api.OpenEventStream(lm.ctx, opts)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func (lm *liveMarket) send(t *testing.T, key ed25519.PrivateKey, in instruction.Instruction) error {
	t.Helper()
	_, err := lm.api.Submit(lm.ctx, signTx(t, key, in))
	return err
}

func (lm *liveMarket) buy(t *testing.T) {
	t.Helper()
	if err := lm.send(t, lm.buyer, instruction.NewPurchase(instruction.Purchase{Article: lm.article, PaymentAsset: lm.asset})); err != nil {
		t.Fatalf("purchase: %v", err)
	}
}

func (lm *liveMarket) reprice(t *testing.T, price uint64) {
	t.Helper()
	if err := lm.send(t, lm.creator, instruction.NewSetArticlePrice(instruction.SetArticlePrice{Article: lm.article, NewPrice: price})); err != nil {
		t.Fatalf("set price: %v", err)
	}
}

// next returns the next event on s with the given topic.
func next(t *testing.T, s *client.EventStream, topic string) *model.Event {
	t.Helper()
	for {
		ev, err := s.Next()
		if err != nil {
			t.Fatalf("waiting for %s: %v", topic, err)
		}
		if ev.Topic == topic {
			return ev
		}
	}
}

func TestSSEIntegration_PurchaseTriggersEvents(t *testing.T) {
	lm := startLiveMarket(t)
	s := lm.stream(t, client.StreamOptions{})
	lm.buy(t)

	purchased := next(t, s, events.TopicPurchased)
	if purchased.Account != lm.article || purchased.Actor != addressOf(lm.buyer) {
		t.Fatalf("purchase event = %+v", purchased)
	}
	var payload events.Purchased
	if err := json.Unmarshal(purchased.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Receipt == nil || payload.Receipt.PaidAmount != 100 {
		t.Fatalf("unexpected purchase payload: %+v", payload)
	}

	minted := next(t, s, events.TopicAccessTokenMinted)
	if minted.TxID != purchased.TxID {
		t.Fatalf("minted tx=%q, purchase tx=%q; expected one transaction", minted.TxID, purchased.TxID)
	}
}

func TestSSEIntegration_TopicFilter(t *testing.T) {
	lm := startLiveMarket(t)
	s := lm.stream(t, client.StreamOptions{Topics: []string{"paywall.article.*"}})
	lm.buy(t)
	lm.reprice(t, 250)

	ev, err := s.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if ev.Topic != events.TopicArticleUpdated || ev.Account != lm.article {
		t.Fatalf("first event through the filter = %s on %s", ev.Topic, ev.Account)
	}
}

func TestSSEIntegration_RejectedTransactionPublishesNothing(t *testing.T) {
	lm := startLiveMarket(t)
	s := lm.stream(t, client.StreamOptions{})

	// Only the creator may reprice.
	err := lm.send(t, lm.buyer, instruction.NewSetArticlePrice(instruction.SetArticlePrice{Article: lm.article, NewPrice: 1}))
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 403 {
		t.Fatalf("expected 403, got %v", err)
	}
	lm.reprice(t, 300)

	ev, err := s.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if ev.Topic != events.TopicArticleUpdated || ev.Actor != addressOf(lm.creator) {
		t.Fatalf("first event = %s by %s, want the creator's update", ev.Topic, ev.Actor)
	}
}

func TestSSEIntegration_ResumeFromLastEventID(t *testing.T) {
	lm := startLiveMarket(t)
	first := lm.stream(t, client.StreamOptions{Account: &lm.article})
	lm.buy(t)
	next(t, first, events.TopicPurchased)
	first.Close()

	lm.reprice(t, 400)
	resumed := lm.stream(t, client.StreamOptions{Account: &lm.article, LastEventID: first.LastID})
	ev, err := resumed.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if ev.Topic != events.TopicArticleUpdated {
		t.Fatalf("resumed with %s, want the update made while disconnected", ev.Topic)
	}
	if resumed.LastID <= first.LastID {
		t.Fatalf("LastID did not advance: %d then %d", first.LastID, resumed.LastID)
	}
}

func TestSSEIntegration_ResumeAfterEviction(t *testing.T) {
	lm := startLiveMarket(t)
	for range replayCapacity + 10 {
		lm.srv.hub.broadcast("paywall.test.filler", "", []byte(`{}`))
	}

	s := lm.stream(t, client.StreamOptions{LastEventID: 1})
	if _, err := s.Next(); !errors.Is(err, client.ErrStreamGap) {
		t.Fatalf("expected a gap, got %v", err)
	}
	if _, err := s.Next(); err != nil {
		t.Fatalf("stream unusable after gap: %v", err)
	}
}

func TestSSEIntegration_MultipleClientsReceiveSameEvents(t *testing.T) {
	lm := startLiveMarket(t)
	all := lm.stream(t, client.StreamOptions{})
	mine := lm.stream(t, client.StreamOptions{Account: &lm.article})
	lm.buy(t)

	a := next(t, all, events.TopicPurchased)
	b := next(t, mine, events.TopicPurchased)
	if a.TxID != b.TxID || all.LastID != mine.LastID {
		t.Fatalf("clients saw different events: %s/%d vs %s/%d", a.TxID, all.LastID, b.TxID, mine.LastID)
	}
}
