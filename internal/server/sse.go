package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alfredjeanlab/paywall/internal/events"
	"github.com/alfredjeanlab/paywall/internal/model"
)

const (
	// replayCapacity is how many recent events a reconnecting client can
	// resume from with Last-Event-ID.
	replayCapacity = 1000

	sseKeepaliveInterval = 15 * time.Second

	// clientBuffer is how far a client may fall behind before events
	// addressed to it are dropped.
	clientBuffer = 64
)

// gapEvent is the SSE event name that tells a client it missed events.
const gapEvent = "stream.gap"

// sseEvent is one broadcast event. ID is assigned by the hub and restarts
// with the process.
type sseEvent struct {
	ID      uint64
	Topic   string
	Account string // base58; empty when the event is not about an account
	Data    []byte
}

// replayLog holds the most recent events in publication order.
type replayLog struct {
	mu   sync.RWMutex
	buf  []sseEvent
	next int // slot the next event goes into once buf is full
}

func (r *replayLog) add(evt sseEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buf) < replayCapacity {
		r.buf = append(r.buf, evt)
		return
	}
	r.buf[r.next] = evt
	r.next = (r.next + 1) % replayCapacity
}

// since returns buffered events with IDs after id, oldest first, and how
// many events after id were evicted before they could be replayed.
func (r *replayLog) since(id uint64) ([]*sseEvent, uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		out     []*sseEvent
		evicted uint64
	)
	for i := range r.buf {
		evt := r.buf[(r.next+i)%len(r.buf)]
		if i == 0 && evt.ID > id+1 {
			evicted = evt.ID - id - 1
		}
		if evt.ID > id {
			out = append(out, &evt)
		}
	}
	return out, evicted
}

// EventHub fans committed ledger events out to connected SSE clients. It
// is an events.Publisher, so the ledger publishes to it directly.
type EventHub struct {
	mu      sync.RWMutex
	clients map[*sseClient]struct{}
	lastID  atomic.Uint64
	log     replayLog

	// pubMu orders broadcasts: IDs reach the log and every client in
	// increasing order.
	pubMu sync.Mutex

	// onClients, if set, is told the client count after each change.
	onClients func(n int)
}

var _ events.Publisher = (*EventHub)(nil)

type sseClient struct {
	topics  []string // patterns; empty matches every topic
	account string
	ch      chan *sseEvent
	dropped atomic.Uint64
}

func NewEventHub() *EventHub {
	return &EventHub{clients: make(map[*sseClient]struct{})}
}

// Publish encodes event and broadcasts it. A *model.Event is tagged with its
// account so clients can filter by it.
func (h *EventHub) Publish(_ context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	var account string
	if e, ok := event.(*model.Event); ok {
		account = e.Account.String()
	}
	h.broadcast(topic, account, payload)
	return nil
}

// Close is a no-op; clients disconnect with their requests.
func (h *EventHub) Close() error {
	return nil
}

func (h *EventHub) broadcast(topic, account string, payload []byte) {
	h.pubMu.Lock()
	defer h.pubMu.Unlock()

	evt := &sseEvent{ID: h.lastID.Add(1), Topic: topic, Account: account, Data: payload}
	h.log.add(*evt)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.matches(evt) {
			continue
		}
		select {
		case c.ch <- evt:
		default:
			c.dropped.Add(1)
		}
	}
}

// replay returns what a client that last saw lastID missed, and how many of
// those events are gone. A lastID from before a restart is ahead of the
// hub; its missed count is unknown and reported as zero with ok false.
func (h *EventHub) replay(lastID uint64) (evts []*sseEvent, missed uint64, ok bool) {
	if lastID > h.lastID.Load() {
		evts, _ = h.log.since(0)
		return evts, 0, false
	}
	evts, missed = h.log.since(lastID)
	return evts, missed, missed == 0
}

func (h *EventHub) subscribe(topics []string, account string) *sseClient {
	c := &sseClient{topics: topics, account: account, ch: make(chan *sseEvent, clientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.reportClients(n)
	return c
}

func (h *EventHub) unsubscribe(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	h.reportClients(n)
}

func (h *EventHub) reportClients(n int) {
	if h.onClients != nil {
		h.onClients(n)
	}
}

func (c *sseClient) matches(evt *sseEvent) bool {
	if c.account != "" && c.account != evt.Account {
		return false
	}
	if len(c.topics) == 0 {
		return true
	}
	for _, pattern := range c.topics {
		if events.MatchTopic(pattern, evt.Topic) {
			return true
		}
	}
	return false
}

// handleEventStream serves GET /v1/events/stream. The topics query is a
// comma-separated list of patterns; account narrows to one base58 address.
func (s *PaywallServer) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	q := r.URL.Query()
	var topics []string
	for _, t := range strings.Split(q.Get("topics"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	var account string
	if v := q.Get("account"); v != "" {
		addr, err := model.ParseAddress(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "account: "+err.Error())
			return
		}
		account = addr.String()
	}

	client := s.hub.subscribe(topics, account)
	defer s.hub.unsubscribe(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// Events replayed here may also be queued on client.ch; the ID check
	// in the loop skips those.
	var sent uint64
	if lastID, err := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64); err == nil {
		evts, missed, complete := s.hub.replay(lastID)
		if !complete {
			writeGap(w, missed)
		}
		for _, evt := range evts {
			if client.matches(evt) {
				writeSSEEvent(w, evt)
			}
			sent = evt.ID
		}
	}
	flusher.Flush()

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-client.ch:
			if evt.ID <= sent {
				continue
			}
			if n := client.dropped.Swap(0); n > 0 {
				writeGap(w, n)
			}
			writeSSEEvent(w, evt)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w io.Writer, evt *sseEvent) {
	fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", evt.ID, evt.Topic, evt.Data)
}

// writeGap tells the client that missed events were not delivered. A zero
// count means the number is unknown.
func writeGap(w io.Writer, missed uint64) {
	fmt.Fprintf(w, "event:%s\ndata:{\"missed\":%d}\n\n", gapEvent, missed)
}
