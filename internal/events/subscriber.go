package events

import "github.com/alfredjeanlab/paywall/internal/model"

// Subscriber receives ledger events from the event bus.
type Subscriber interface {
	// Subscribe delivers decoded events whose topic matches pattern. The
	// returned cancel unsubscribes and closes the channel.
	Subscribe(pattern string) (<-chan *model.Event, func(), error)
	Close() error
}
