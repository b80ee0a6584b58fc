package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/alfredjeanlab/paywall/internal/model"
)

// HeaderTxID carries the ID of the ledger transaction that produced an event.
const HeaderTxID = "Paywall-Tx-Id"

// NATSPublisher publishes JSON-encoded events to NATS subjects named by topic.
type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string, opts ...nats.Option) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, append([]nats.Option{nats.Name("paywall-publisher")}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{conn: nc}, nil
}

// Publish sends event on topic. Persisted ledger events also carry
// Nats-Msg-Id, so a JetStream stream on the subject drops redeliveries.
// The ID pairs the transaction ID with the event ID, because event IDs
// restart with an in-memory store.
func (p *NATSPublisher) Publish(ctx context.Context, topic string, event any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	msg := nats.NewMsg(topic)
	msg.Data = data
	if e, ok := event.(*model.Event); ok && e.ID != 0 && e.TxID != "" {
		msg.Header.Set(nats.MsgIdHdr, messageID(e))
		msg.Header.Set(HeaderTxID, e.TxID)
	}
	return p.conn.PublishMsg(msg)
}

func messageID(e *model.Event) string {
	return e.TxID + "-" + strconv.FormatInt(e.ID, 10)
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}

// subscriberBuffer is how many undelivered events a subscription holds
// before it starts dropping.
const subscriberBuffer = 64

// NATSSubscriber receives ledger events from NATS. With a queue group set,
// each event goes to one member of the group, so several servers sharing a
// hooks file run each hook once.
type NATSSubscriber struct {
	conn    *nats.Conn
	queue   string
	dropped atomic.Uint64
}

// NewNATSSubscriber connects to NATS and reconnects forever. Extra options
// such as disconnect handlers are applied after the defaults.
func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	defaults := []nats.Option{
		nats.Name("paywall-subscriber"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSSubscriber{conn: nc}, nil
}

// InQueue makes later subscriptions join queue group.
func (s *NATSSubscriber) InQueue(group string) *NATSSubscriber {
	s.queue = group
	return s
}

// Dropped reports how many messages were discarded because they did not
// decode as an event or the reader fell behind.
func (s *NATSSubscriber) Dropped() uint64 {
	return s.dropped.Load()
}

// Subscribe implements Subscriber. pattern may use NATS wildcards such as
// TopicAll. An event without a topic takes the message subject.
func (s *NATSSubscriber) Subscribe(pattern string) (<-chan *model.Event, func(), error) {
	ch := make(chan *model.Event, subscriberBuffer)

	var (
		mu     sync.Mutex
		closed bool
		once   sync.Once
	)

	deliver := func(msg *nats.Msg) {
		ev := new(model.Event)
		if err := json.Unmarshal(msg.Data, ev); err != nil {
			s.dropped.Add(1)
			return
		}
		if ev.Topic == "" {
			ev.Topic = msg.Subject
		}
		if ev.TxID == "" {
			ev.TxID = msg.Header.Get(HeaderTxID)
		}

		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- ev:
		default:
			s.dropped.Add(1)
		}
	}

	var (
		sub *nats.Subscription
		err error
	)
	if s.queue != "" {
		sub, err = s.conn.QueueSubscribe(pattern, s.queue, deliver)
	} else {
		sub, err = s.conn.Subscribe(pattern, deliver)
	}
	if err != nil {
		close(ch)
		return nil, nil, fmt.Errorf("subscribing to %s: %w", pattern, err)
	}
	// Events published on other connections right after we return must
	// not be missed.
	if err := s.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		close(ch)
		return nil, nil, fmt.Errorf("flushing subscription: %w", err)
	}

	cancel := func() {
		once.Do(func() {
			_ = sub.Unsubscribe()
			mu.Lock()
			defer mu.Unlock()
			closed = true
			for {
				select {
				case <-ch:
				default:
					close(ch)
					return
				}
			}
		})
	}
	return ch, cancel, nil
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
