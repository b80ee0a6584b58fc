package events

import "context"

// NoopPublisher is a Publisher that does nothing (used when NATS is not configured).
type NoopPublisher struct{}

func (n *NoopPublisher) Publish(ctx context.Context, topic string, event any) error {
	return nil
}

func (n *NoopPublisher) Close() error {
	return nil
}

// MultiPublisher fans each event out to several publishers. Every publisher
// is attempted; the first error is returned.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, topic string, event any) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, topic, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m MultiPublisher) Close() error {
	var first error
	for _, p := range m {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
