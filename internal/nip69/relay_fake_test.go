package nip69

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/nbd-wtf/go-nostr"

	"github.com/eldtechnologies/noffer/internal/crypto"
)

// fakeRelay is an in-memory relay. Published events are delivered to every
// open subscription whose filter matches, and handed to onPublish so a test
// can play the seller.
type fakeRelay struct {
	url        string
	publishErr error
	onPublish  func(r *fakeRelay, ev nostr.Event)

	mu        sync.Mutex
	published []nostr.Event
	subs      []*fakeSub
	closed    int32
}

type fakeSub struct {
	filter nostr.Filter
	events chan *nostr.Event
	closes int32
}

func (s *fakeSub) Events() <-chan *nostr.Event { return s.events }

func (s *fakeSub) Close() { atomic.AddInt32(&s.closes, 1) }

func (s *fakeSub) closeCount() int { return int(atomic.LoadInt32(&s.closes)) }

func (r *fakeRelay) URL() string { return r.url }

func (r *fakeRelay) Publish(ctx context.Context, ev nostr.Event) error {
	if r.publishErr != nil {
		return r.publishErr
	}
	r.mu.Lock()
	r.published = append(r.published, ev)
	r.mu.Unlock()
	if r.onPublish != nil {
		r.onPublish(r, ev)
	}
	return nil
}

func (r *fakeRelay) Subscribe(ctx context.Context, filter nostr.Filter) (Subscription, error) {
	sub := &fakeSub{filter: filter, events: make(chan *nostr.Event, 8)}
	r.mu.Lock()
	r.subs = append(r.subs, sub)
	r.mu.Unlock()
	return sub, nil
}

func (r *fakeRelay) Close() error {
	atomic.AddInt32(&r.closed, 1)
	return nil
}

// deliver pushes ev to every subscription whose filter matches it.
func (r *fakeRelay) deliver(ev nostr.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.subs {
		if sub.filter.Matches(&ev) && sub.closeCount() == 0 {
			e := ev
			sub.events <- &e
		}
	}
}

func (r *fakeRelay) onlySub(t *testing.T) *fakeSub {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.subs) != 1 {
		t.Fatalf("expected one subscription, got %d", len(r.subs))
	}
	return r.subs[0]
}

// dialer hands out relays and counts dial attempts.
type dialer struct {
	dials int32
	err   error
	relay func(url string) *fakeRelay
}

func (d *dialer) dial(ctx context.Context, url string) (Relay, error) {
	atomic.AddInt32(&d.dials, 1)
	if d.err != nil {
		return nil, d.err
	}
	return d.relay(url), nil
}

func (d *dialer) count() int { return int(atomic.LoadInt32(&d.dials)) }

type keypair struct {
	priv    []byte
	privHex string
	pubHex  string
}

func newKeypair(t *testing.T) keypair {
	t.Helper()
	privHex, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	priv, err := crypto.ParsePrivateKey(privHex)
	if err != nil {
		t.Fatal(err)
	}
	pub, err := crypto.PublicKeyHex(priv)
	if err != nil {
		t.Fatal(err)
	}
	return keypair{priv: priv, privHex: privHex, pubHex: pub}
}

// seller answers every request with whatever respond returns. A nil body
// means stay silent.
func seller(t *testing.T, key keypair, respond func(req *Request) any) func(r *fakeRelay, ev nostr.Event) {
	return signedSeller(t, key, key, respond)
}

// signedSeller decrypts requests with key but signs its answers with signer.
func signedSeller(t *testing.T, key, signer keypair, respond func(req *Request) any) func(r *fakeRelay, ev nostr.Event) {
	return func(r *fakeRelay, ev nostr.Event) {
		requester, err := hexPub(ev.PubKey)
		if err != nil {
			t.Errorf("requester pubkey: %v", err)
			return
		}
		secret, err := crypto.SharedSecret(key.priv, requester)
		if err != nil {
			t.Errorf("seller secret: %v", err)
			return
		}
		req, err := ParseRequest(&ev, secret)
		if err != nil {
			t.Errorf("seller parse: %v", err)
			return
		}
		body := respond(req)
		if body == nil {
			return
		}
		resp, err := BuildResponse(signer.privHex, &ev, body, secret)
		if err != nil {
			t.Errorf("seller build: %v", err)
			return
		}
		r.deliver(resp)
	}
}

var errBoom = errors.New("boom")
