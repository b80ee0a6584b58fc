package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/paywall/internal/client"
	"github.com/alfredjeanlab/paywall/internal/events"
	"github.com/alfredjeanlab/paywall/internal/model"
	"github.com/alfredjeanlab/paywall/internal/ui"
)

// eventFilter selects events by topic pattern and account.
type eventFilter struct {
	topics  []string
	account *model.Address
}

func (f eventFilter) matches(ev *model.Event) bool {
	if f.account != nil && ev.Account != *f.account {
		return false
	}
	if len(f.topics) == 0 {
		return true
	}
	for _, p := range f.topics {
		if events.MatchTopic(p, ev.Topic) {
			return true
		}
	}
	return false
}

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Stream ledger events as they commit",
	GroupID: "views",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		topics, _ := cmd.Flags().GetStringSlice("topic")
		account, err := addressFlag(cmd, "account")
		if err != nil {
			return err
		}
		filter := eventFilter{topics: topics, account: account}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		natsURL, _ := cmd.Flags().GetString("nats")
		if natsURL == "" {
			natsURL = currentProfile().NATSURL
		}
		if natsURL != "" {
			return watchNATS(ctx, natsURL, filter)
		}
		return watchSSE(ctx, filter)
	},
}

// watchSSE follows the server's event stream, resuming from the last seen
// event after a disconnect.
func watchSSE(ctx context.Context, filter eventFilter) error {
	opts := client.StreamOptions{Topics: filter.topics, Account: filter.account}
	backoff := time.Second
	for {
		stream, err := httpAPI.OpenEventStream(ctx, opts)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var apiErr *client.APIError
			if errors.As(err, &apiErr) {
				return err
			}
			log.Printf("sse: %v; retrying in %s", err, backoff)
		} else {
			backoff = time.Second
			err = readStream(stream)
			opts.LastEventID = stream.LastID
			stream.Close()
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("sse: stream ended: %v; reconnecting", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 30*time.Second)
	}
}

func readStream(stream *client.EventStream) error {
	for {
		ev, err := stream.Next()
		if errors.Is(err, client.ErrStreamGap) {
			log.Printf("sse: %v", err)
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		printEvent(ev)
	}
}

// watchNATS subscribes to the event bus directly. Filtering happens
// client-side since the bus carries every topic.
func watchNATS(ctx context.Context, natsURL string, filter eventFilter) error {
	sub, err := events.NewNATSSubscriber(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats: disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Printf("nats: reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(events.TopicAll)
	if err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				if n := sub.Dropped(); n > 0 {
					log.Printf("nats: dropped %d events", n)
				}
				return nil
			}
			if filter.matches(ev) {
				printEvent(ev)
			}
		}
	}
}

func printEvent(ev *model.Event) {
	if jsonOutput {
		data, err := json.Marshal(ev)
		if err != nil {
			return
		}
		fmt.Fprintln(out, string(data))
		return
	}
	fmt.Fprintf(out, "%s  %-32s  %s  %s\n",
		ev.CreatedAt.Format(timeLayout),
		ui.RenderAccent(ev.Topic),
		ev.Account.Short(12),
		ui.RenderMuted("by "+ev.Actor.Short(12)),
	)
}

func init() {
	watchCmd.Flags().StringSlice("topic", nil, "topic patterns to follow, e.g. paywall.purchase.* (default: all)")
	watchCmd.Flags().String("account", "", "only events for this account")
	watchCmd.Flags().String("nats", "", "read from NATS at this URL instead of the server stream")
}
