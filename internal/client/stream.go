package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/paywall/internal/model"
)

// StreamOptions narrows an event stream. Topics are NATS-style patterns.
type StreamOptions struct {
	Topics      []string
	Account     *model.Address
	LastEventID uint64
}

// EventStream reads ledger events from the server-sent events endpoint.
type EventStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	// LastID is the id of the most recent event returned by Next; pass it
	// as StreamOptions.LastEventID to resume after a reconnect.
	LastID uint64
}

// OpenEventStream connects to GET /v1/events/stream. It returns once the
// server has registered the subscription, so events committed after it
// returns are delivered.
func (c *HTTPClient) OpenEventStream(ctx context.Context, opts StreamOptions) (*EventStream, error) {
	q := url.Values{}
	if len(opts.Topics) > 0 {
		q.Set("topics", strings.Join(opts.Topics, ","))
	}
	if opts.Account != nil {
		q.Set("account", opts.Account.String())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+withQuery("/v1/events/stream", q), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if opts.LastEventID > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatUint(opts.LastEventID, 10))
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, decodeAPIError(resp.StatusCode, body)
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	return &EventStream{body: resp.Body, scanner: sc, LastID: opts.LastEventID}, nil
}

// ErrStreamGap is returned by Next when the server reports events that
// were never delivered, either because the client fell behind or because
// they aged out before a reconnect. The stream stays usable.
var ErrStreamGap = errors.New("events missed")

// gapEvent names the server's missed-events notice.
const gapEvent = "stream.gap"

// Next blocks until the next event arrives. It returns io.EOF when the
// server closes the stream, and an error wrapping ErrStreamGap when
// events were skipped.
func (s *EventStream) Next() (*model.Event, error) {
	var (
		id   uint64
		name string
		data strings.Builder
	)
	for s.scanner.Scan() {
		line := s.scanner.Text()
		switch {
		case line == "":
			if data.Len() == 0 {
				continue
			}
			if name == gapEvent {
				var gap struct {
					Missed uint64 `json:"missed"`
				}
				_ = json.Unmarshal([]byte(data.String()), &gap)
				if gap.Missed == 0 {
					return nil, fmt.Errorf("%w: count unknown", ErrStreamGap)
				}
				return nil, fmt.Errorf("%w: %d", ErrStreamGap, gap.Missed)
			}
			var ev model.Event
			if err := json.Unmarshal([]byte(data.String()), &ev); err != nil {
				return nil, fmt.Errorf("decoding event %d: %w", id, err)
			}
			if id > 0 {
				s.LastID = id
			}
			return &ev, nil
		case strings.HasPrefix(line, ":"):
			// keepalive
		case strings.HasPrefix(line, "id:"):
			id, _ = strconv.ParseUint(strings.TrimSpace(line[3:]), 10, 64)
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(line[6:])
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(line[5:], " "))
		}
	}
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Close ends the stream.
func (s *EventStream) Close() error {
	return s.body.Close()
}
