package nip69

import (
	"context"
	"sync"

	"github.com/nbd-wtf/go-nostr"
)

// Relay is the slice of a relay connection the exchange needs.
type Relay interface {
	URL() string
	Publish(ctx context.Context, ev nostr.Event) error
	Subscribe(ctx context.Context, filter nostr.Filter) (Subscription, error)
	Close() error
}

// Subscription delivers events matching one filter until closed.
type Subscription interface {
	Events() <-chan *nostr.Event
	// Close releases the relay-side subscription. Safe to call more than once.
	Close()
}

// DialFunc opens a connection to the relay at url.
type DialFunc func(ctx context.Context, url string) (Relay, error)

// DialNostr connects with go-nostr's websocket client.
func DialNostr(ctx context.Context, url string) (Relay, error) {
	r, err := nostr.RelayConnect(ctx, url)
	if err != nil {
		return nil, err
	}
	return &nostrRelay{relay: r}, nil
}

type nostrRelay struct {
	relay *nostr.Relay
}

var _ Relay = (*nostrRelay)(nil)

func (r *nostrRelay) URL() string {
	return r.relay.URL
}

func (r *nostrRelay) Publish(ctx context.Context, ev nostr.Event) error {
	return r.relay.Publish(ctx, ev)
}

func (r *nostrRelay) Subscribe(ctx context.Context, filter nostr.Filter) (Subscription, error) {
	sub, err := r.relay.Subscribe(ctx, nostr.Filters{filter})
	if err != nil {
		return nil, err
	}
	return &nostrSubscription{sub: sub}, nil
}

func (r *nostrRelay) Close() error {
	return r.relay.Close()
}

type nostrSubscription struct {
	sub  *nostr.Subscription
	once sync.Once
}

func (s *nostrSubscription) Events() <-chan *nostr.Event {
	return s.sub.Events
}

func (s *nostrSubscription) Close() {
	s.once.Do(s.sub.Unsub)
}
