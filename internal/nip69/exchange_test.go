package nip69

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/eldtechnologies/noffer/internal/crypto"
	"github.com/eldtechnologies/noffer/internal/noffer"
)

func hexPub(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

func testOffer(t *testing.T, sellerPubHex string) string {
	t.Helper()
	var p noffer.Pointer
	pk, err := hex.DecodeString(sellerPubHex)
	if err != nil {
		t.Fatal(err)
	}
	copy(p.PubKey[:], pk)
	p.Relay = "wss://relay.example"
	p.Offer = "abc123"
	p.PriceType = noffer.PriceFixed
	s, err := noffer.Encode(&p)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func expectCode(t *testing.T, err error, want Code) *ProtocolError {
	t.Helper()
	pe, ok := AsProtocolError(err)
	if !ok {
		t.Fatalf("expected *ProtocolError, got %T (%v)", err, err)
	}
	if pe.Code != want {
		t.Fatalf("expected code %d, got %d (%v)", want, pe.Code, pe)
	}
	return pe
}

type harness struct {
	buyer  keypair
	seller keypair
	relay  *fakeRelay
	dialer *dialer
	client *Client
}

func newHarness(t *testing.T, timeout time.Duration, respond func(req *Request) any) *harness {
	t.Helper()
	h := &harness{buyer: newKeypair(t), seller: newKeypair(t)}
	h.relay = &fakeRelay{}
	if respond != nil {
		h.relay.onPublish = seller(t, h.seller, respond)
	}
	h.dialer = &dialer{relay: func(url string) *fakeRelay {
		h.relay.url = url
		return h.relay
	}}
	h.client = NewClient(Config{
		SecretKey: h.buyer.priv,
		Timeout:   timeout,
		Dial:      h.dialer.dial,
	})
	return h
}

func TestRequestInvoice(t *testing.T) {
	var got *Request
	h := newHarness(t, time.Second, func(req *Request) any {
		got = req
		return map[string]string{"bolt11": "lnbc1..."}
	})

	offer := testOffer(t, h.seller.pubHex)
	ptr, err := noffer.Decode(offer)
	if err != nil {
		t.Fatal(err)
	}
	if ptr.Price != nil {
		t.Fatalf("expected no price, got %d", *ptr.Price)
	}

	inv, err := h.client.RequestInvoice(context.Background(), offer, 21)
	if err != nil {
		t.Fatal(err)
	}
	if inv.Bolt11 != "lnbc1..." {
		t.Fatalf("expected lnbc1..., got %q", inv.Bolt11)
	}
	if got == nil || got.Offer != "abc123" || got.Amount != 21 {
		t.Fatalf("seller saw unexpected request %+v", got)
	}
	if h.relay.url != "wss://relay.example" {
		t.Fatalf("dialed %q", h.relay.url)
	}
	if n := h.relay.onlySub(t).closeCount(); n != 1 {
		t.Fatalf("expected subscription closed once, got %d", n)
	}
	if h.relay.closed != 1 {
		t.Fatalf("expected relay closed once, got %d", h.relay.closed)
	}
}

func TestRequestEventShape(t *testing.T) {
	h := newHarness(t, time.Second, func(req *Request) any {
		return map[string]string{"bolt11": "lnbc1..."}
	})
	if _, err := h.client.RequestInvoice(context.Background(), testOffer(t, h.seller.pubHex), 1000); err != nil {
		t.Fatal(err)
	}

	if len(h.relay.published) != 1 {
		t.Fatalf("expected one published event, got %d", len(h.relay.published))
	}
	req := h.relay.published[0]
	if req.Kind != KindOffer {
		t.Fatalf("expected kind %d, got %d", KindOffer, req.Kind)
	}
	if req.PubKey != h.buyer.pubHex {
		t.Fatalf("request authored by %s", req.PubKey)
	}
	if !hasTag(&req, "p", h.seller.pubHex) {
		t.Fatalf("request missing p tag: %v", req.Tags)
	}
	if ok, err := req.CheckSignature(); err != nil || !ok {
		t.Fatalf("request signature invalid: %v", err)
	}

	f := h.relay.onlySub(t).filter
	if len(f.Kinds) != 1 || f.Kinds[0] != KindOffer {
		t.Fatalf("unexpected kinds %v", f.Kinds)
	}
	if p := f.Tags["p"]; len(p) != 1 || p[0] != h.buyer.pubHex {
		t.Fatalf("unexpected #p %v", p)
	}
	if e := f.Tags["e"]; len(e) != 1 || e[0] != req.ID {
		t.Fatalf("unexpected #e %v", e)
	}
}

func TestRequestInvoiceTimeout(t *testing.T) {
	const timeout = 50 * time.Millisecond
	h := newHarness(t, timeout, func(req *Request) any { return nil })

	start := time.Now()
	_, err := h.client.RequestInvoice(context.Background(), testOffer(t, h.seller.pubHex), 21)
	elapsed := time.Since(start)

	expectCode(t, err, ExpiredOffer)
	if elapsed < timeout {
		t.Fatalf("resolved after %s, before the %s deadline", elapsed, timeout)
	}
	if n := h.relay.onlySub(t).closeCount(); n != 1 {
		t.Fatalf("expected subscription closed once, got %d", n)
	}
	if h.relay.closed != 1 {
		t.Fatalf("expected relay closed once, got %d", h.relay.closed)
	}
}

func TestRequestInvoiceBadKey(t *testing.T) {
	h := newHarness(t, time.Second, nil)
	h.client = NewClient(Config{SecretKey: make([]byte, 31), Dial: h.dialer.dial})

	_, err := h.client.RequestInvoice(context.Background(), testOffer(t, h.seller.pubHex), 21)
	pe := expectCode(t, err, UnsupportedFeature)
	if pe.Message != "Unsupported Feature" {
		t.Fatalf("unexpected message %q", pe.Message)
	}
	if h.dialer.count() != 0 {
		t.Fatal("no relay connection should be attempted with a bad key")
	}
}

func TestRequestInvoiceInvalidOffer(t *testing.T) {
	h := newHarness(t, time.Second, nil)
	for _, offer := range []string{"", "noffer1invalid", "npub1sg6plzptd64u62a878hep2kev88swjh3tw00gjsfl8f237lmu63q0uf63m"} {
		_, err := h.client.RequestInvoice(context.Background(), offer, 21)
		expectCode(t, err, InvalidOffer)
	}
	if h.dialer.count() != 0 {
		t.Fatal("no relay connection should be attempted for an invalid offer")
	}
}

func TestRequestInvoiceInvalidAmount(t *testing.T) {
	h := newHarness(t, time.Second, nil)
	_, err := h.client.RequestInvoice(context.Background(), testOffer(t, h.seller.pubHex), 0)
	expectCode(t, err, InvalidAmount)
	if h.dialer.count() != 0 {
		t.Fatal("no relay connection should be attempted for an invalid amount")
	}
}

func TestRequestInvoiceDialFailure(t *testing.T) {
	h := newHarness(t, time.Second, nil)
	h.dialer.err = errBoom

	_, err := h.client.RequestInvoice(context.Background(), testOffer(t, h.seller.pubHex), 21)
	pe := expectCode(t, err, TemporaryFailure)
	if !errors.Is(pe, errBoom) {
		t.Fatalf("expected cause to be preserved, got %v", pe.Err)
	}
	if h.dialer.count() != 1 {
		t.Fatalf("expected exactly one dial, got %d", h.dialer.count())
	}
}

func TestRequestInvoicePublishFailure(t *testing.T) {
	h := newHarness(t, time.Second, nil)
	h.relay.publishErr = errBoom

	_, err := h.client.RequestInvoice(context.Background(), testOffer(t, h.seller.pubHex), 21)
	expectCode(t, err, TemporaryFailure)
	if n := h.relay.onlySub(t).closeCount(); n != 1 {
		t.Fatalf("expected subscription closed once, got %d", n)
	}
	if h.relay.closed != 1 {
		t.Fatal("relay should be closed after a publish failure")
	}
}

func TestRequestInvoiceMalformedResponse(t *testing.T) {
	h := newHarness(t, time.Second, nil)
	h.relay.onPublish = func(r *fakeRelay, req nostr.Event) {
		ev := nostr.Event{
			Kind:      KindOffer,
			CreatedAt: nostr.Now(),
			Tags:      nostr.Tags{{"p", req.PubKey}, {"e", req.ID}},
			Content:   "AgAAAA==", // version 2
		}
		if err := ev.Sign(h.seller.privHex); err != nil {
			t.Error(err)
			return
		}
		r.deliver(ev)
	}

	_, err := h.client.RequestInvoice(context.Background(), testOffer(t, h.seller.pubHex), 21)
	pe := expectCode(t, err, TemporaryFailure)
	if !errors.Is(pe, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse cause, got %v", pe.Err)
	}
}

func TestRequestInvoiceRejectsForeignAuthor(t *testing.T) {
	h := newHarness(t, time.Second, nil)
	impostor := newKeypair(t)
	// The content is readable with the real shared secret; only the author
	// differs from the offer's key.
	h.relay.onPublish = signedSeller(t, h.seller, impostor, func(req *Request) any {
		return map[string]string{"bolt11": "lnbc1evil"}
	})

	_, err := h.client.RequestInvoice(context.Background(), testOffer(t, h.seller.pubHex), 21)
	pe := expectCode(t, err, TemporaryFailure)
	if !errors.Is(pe, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse cause, got %v", pe.Err)
	}
	if !strings.Contains(pe.Err.Error(), "authored by "+impostor.pubHex) {
		t.Fatalf("expected author rejection, got %v", pe.Err)
	}
}

func TestRequestInvoiceSellerError(t *testing.T) {
	h := newHarness(t, time.Second, func(req *Request) any {
		return Response{Error: "amount out of range", Code: InvalidAmount, Range: &Range{Min: 100, Max: 1000}}
	})

	_, err := h.client.RequestInvoice(context.Background(), testOffer(t, h.seller.pubHex), 21)
	expectCode(t, err, InvalidAmount)
}

func TestRequestInvoiceSellerUnknownCode(t *testing.T) {
	h := newHarness(t, time.Second, func(req *Request) any {
		return map[string]any{"error": "teapot", "code": 418}
	})

	_, err := h.client.RequestInvoice(context.Background(), testOffer(t, h.seller.pubHex), 21)
	expectCode(t, err, TemporaryFailure)
}

func TestRequestInvoiceCancelled(t *testing.T) {
	h := newHarness(t, time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())
	h.relay.onPublish = func(r *fakeRelay, ev nostr.Event) { cancel() }

	start := time.Now()
	_, err := h.client.RequestInvoice(ctx, testOffer(t, h.seller.pubHex), 21)
	expectCode(t, err, TemporaryFailure)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled cause, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("cancellation should not wait for the timeout")
	}
	if n := h.relay.onlySub(t).closeCount(); n != 1 {
		t.Fatalf("expected subscription closed once, got %d", n)
	}
}

func TestRequestInvoiceIgnoresLateResponses(t *testing.T) {
	h := newHarness(t, time.Second, nil)
	h.relay.onPublish = func(r *fakeRelay, req nostr.Event) {
		requester, _ := hexPub(req.PubKey)
		secret, _ := crypto.SharedSecret(h.seller.priv, requester)
		for _, b := range []string{"lnbc1first", "lnbc1second"} {
			resp, err := BuildResponse(h.seller.privHex, &req, map[string]string{"bolt11": b}, secret)
			if err != nil {
				t.Error(err)
				return
			}
			r.deliver(resp)
		}
	}

	inv, err := h.client.RequestInvoice(context.Background(), testOffer(t, h.seller.pubHex), 21)
	if err != nil {
		t.Fatal(err)
	}
	if inv.Bolt11 != "lnbc1first" {
		t.Fatalf("expected first response to win, got %q", inv.Bolt11)
	}
}

func TestRequestInvoiceConcurrent(t *testing.T) {
	buyer := newKeypair(t)
	sellerKey := newKeypair(t)
	d := &dialer{relay: func(url string) *fakeRelay {
		return &fakeRelay{url: url, onPublish: seller(t, sellerKey, func(req *Request) any {
			return map[string]any{"bolt11": "lnbc1...", "amount": req.Amount}
		})}
	}}
	client := NewClient(Config{SecretKey: buyer.priv, Timeout: time.Second, Dial: d.dial})
	offer := testOffer(t, sellerKey.pubHex)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(amount int64) {
			defer wg.Done()
			inv, err := client.RequestInvoice(context.Background(), offer, amount)
			if err != nil {
				errs <- err
				return
			}
			var body struct {
				Amount int64 `json:"amount"`
			}
			if err := json.Unmarshal(inv.Raw, &body); err != nil || body.Amount != amount {
				errs <- errors.New("response crossed between exchanges")
			}
		}(int64(i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
	if d.count() != 8 {
		t.Fatalf("expected one relay connection per exchange, got %d", d.count())
	}
}

func TestInvoiceMarshalJSON(t *testing.T) {
	inv := &Invoice{Bolt11: "lnbc1...", Raw: json.RawMessage(`{"bolt11":"lnbc1...","extra":true}`)}
	b, err := json.Marshal(inv)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"bolt11":"lnbc1...","extra":true}` {
		t.Fatalf("unexpected JSON %s", b)
	}

	b, _ = json.Marshal(&Invoice{Bolt11: "lnbc1..."})
	if string(b) != `{"bolt11":"lnbc1..."}` {
		t.Fatalf("unexpected JSON %s", b)
	}
}

func TestSessionIDFromContext(t *testing.T) {
	if got := sessionID(WithSessionID(context.Background(), "01JTEST")); got != "01JTEST" {
		t.Fatalf("expected caller session id, got %q", got)
	}
	a, b := sessionID(context.Background()), sessionID(context.Background())
	if a == "" || a == b {
		t.Fatalf("expected fresh session ids, got %q and %q", a, b)
	}
}
