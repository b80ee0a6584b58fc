// Package ledger is the ledger program: the article registry, the fee
// schedule, the receipt ledger, and the purchase engine. Every operation runs
// in a single store transaction and either applies completely or not at all.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/paywall/internal/address"
	"github.com/alfredjeanlab/paywall/internal/events"
	"github.com/alfredjeanlab/paywall/internal/idgen"
	"github.com/alfredjeanlab/paywall/internal/model"
	"github.com/alfredjeanlab/paywall/internal/store"
)

// Ledger applies instructions to a store.
type Ledger struct {
	store     store.Store
	derive    address.Deriver
	admin     *model.Address
	publisher events.Publisher
	now       func() time.Time
	newTxID   func() string
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithBootstrapAdmin pins the identity allowed to create the fee schedule.
// Without it the first SetFeeConfig signer becomes admin.
func WithBootstrapAdmin(admin model.Address) Option {
	return func(l *Ledger) { l.admin = &admin }
}

// WithPublisher publishes committed events. Publishing is best effort: a
// failure is logged and never undoes the committed transaction.
func WithPublisher(p events.Publisher) Option {
	return func(l *Ledger) { l.publisher = p }
}

// WithClock overrides the time source for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithTxIDs overrides transaction ID generation.
func WithTxIDs(next func() string) Option {
	return func(l *Ledger) { l.newTxID = next }
}

// New returns a Ledger for the program deployed at programID.
func New(s store.Store, programID model.Address, opts ...Option) *Ledger {
	l := &Ledger{
		store:     s,
		derive:    address.New(programID),
		publisher: &events.NoopPublisher{},
		now:       time.Now,
		newTxID:   idgen.MustTxID,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Addresses returns the deriver for this deployment.
func (l *Ledger) Addresses() address.Deriver {
	return l.derive
}

// Result describes a committed transaction.
type Result struct {
	TxID     string           `json:"tx_id"`
	Accounts []*model.Account `json:"accounts"`
	Events   []*model.Event   `json:"events"`
}

// op is the state of one in-flight transaction.
type op struct {
	tx     store.Store
	txID   string
	now    time.Time
	result *Result
}

// emit records an event in the transaction. It is published only after
// commit.
func (o *op) emit(ctx context.Context, topic string, account, actor model.Address, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}
	e := &model.Event{
		TxID:      o.txID,
		Topic:     topic,
		Account:   account,
		Actor:     actor,
		Payload:   data,
		CreatedAt: o.now,
	}
	if err := o.tx.RecordEvent(ctx, e); err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	o.result.Events = append(o.result.Events, e)
	return nil
}

// touch adds acct to the accounts reported in the result.
func (o *op) touch(acct *model.Account) {
	o.result.Accounts = append(o.result.Accounts, acct)
}

// run executes fn in one store transaction and publishes its events after
// commit.
func (l *Ledger) run(ctx context.Context, fn func(ctx context.Context, o *op) error) (*Result, error) {
	res := &Result{TxID: l.newTxID()}
	err := l.store.RunInTransaction(ctx, func(tx store.Store) error {
		// A retried callback starts from a clean result.
		res.Accounts, res.Events = nil, nil
		return fn(ctx, &op{tx: tx, txID: res.TxID, now: l.now().UTC(), result: res})
	})
	if err != nil {
		return nil, err
	}
	l.publish(ctx, res.Events)
	return res, nil
}

func (l *Ledger) publish(ctx context.Context, evts []*model.Event) {
	for _, e := range evts {
		if err := l.publisher.Publish(ctx, e.Topic, e); err != nil {
			slog.Warn("failed to publish event", "topic", e.Topic, "tx_id", e.TxID, "err", err)
		}
	}
}
