// Package nip69 requests Lightning invoices for NIP-69 offers.
//
// An exchange decodes a noffer pointer, derives a shared secret with the
// seller, publishes one encrypted kind-21001 request to the seller's relay
// and waits for the single response that references it. Every failure leaves
// the package as a *ProtocolError carrying one of the codes in errors.go.
package nip69

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/noffer/internal/crypto"
	"github.com/eldtechnologies/noffer/internal/metrics"
	"github.com/eldtechnologies/noffer/internal/noffer"
)

// DefaultTimeout is how long to wait for a response after publishing.
const DefaultTimeout = 30 * time.Second

var errSubscriptionEnded = errors.New("relay ended subscription before a response arrived")

// Config configures a Client.
type Config struct {
	// SecretKey is the requester's raw secp256k1 key. It is read-only for
	// the lifetime of the Client.
	SecretKey []byte
	Timeout   time.Duration
	Dial      DialFunc
	Logger    zerolog.Logger
}

// Invoice is a seller's answer to an offer request.
type Invoice struct {
	Bolt11 string
	// Raw is the decrypted response object as sent by the seller.
	Raw json.RawMessage
}

// MarshalJSON emits the seller's response object unchanged.
func (inv *Invoice) MarshalJSON() ([]byte, error) {
	if len(inv.Raw) > 0 {
		return inv.Raw, nil
	}
	return json.Marshal(struct {
		Bolt11 string `json:"bolt11"`
	}{inv.Bolt11})
}

// Client runs offer exchanges. It holds no per-exchange state and is safe
// for concurrent use.
type Client struct {
	secretKey []byte
	secretHex string
	publicKey string
	timeout   time.Duration
	dial      DialFunc
	logger    zerolog.Logger
}

// NewClient creates a Client. A malformed key is not rejected here; every
// RequestInvoice call reports it as UnsupportedFeature instead.
func NewClient(cfg Config) *Client {
	c := &Client{
		secretKey: append([]byte(nil), cfg.SecretKey...),
		timeout:   cfg.Timeout,
		dial:      cfg.Dial,
		logger:    cfg.Logger,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.dial == nil {
		c.dial = DialNostr
	}
	if pub, err := crypto.PublicKeyHex(c.secretKey); err == nil {
		c.publicKey = pub
		c.secretHex = hex.EncodeToString(c.secretKey)
	}
	return c
}

// PublicKey returns the requester's x-only public key in hex, or "" if the
// configured key is malformed.
func (c *Client) PublicKey() string {
	return c.publicKey
}

type sessionKey struct{}

// WithSessionID makes the next exchange run under id instead of a fresh one,
// so callers can correlate their own records with the exchange logs.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

func sessionID(ctx context.Context) string {
	if id, ok := ctx.Value(sessionKey{}).(string); ok && id != "" {
		return id
	}
	return crypto.NewSessionID()
}

// session is the state of one exchange. It is never shared or persisted.
type session struct {
	id        string
	secret    []byte
	requestID string
	deadline  time.Time
}

// RequestInvoice asks the seller behind offer for an invoice of amountSats.
// The returned error, if any, is a *ProtocolError.
func (c *Client) RequestInvoice(ctx context.Context, offer string, amountSats int64) (*Invoice, error) {
	start := time.Now()
	sess := &session{id: sessionID(ctx)}
	log := c.logger.With().Str("session", sess.id).Logger()

	inv, err := c.exchange(ctx, sess, offer, amountSats, log)
	latency := time.Since(start)
	metrics.ExchangeDuration.Observe(latency.Seconds())

	if err != nil {
		pe := classify(err)
		metrics.ExchangesTotal.WithLabelValues(resultLabel(pe)).Inc()
		log.Warn().
			Err(pe.Err).
			Int("code", int(pe.Code)).
			Str("request_id", sess.requestID).
			Dur("latency", latency).
			Msg("offer exchange failed")
		return nil, pe
	}

	metrics.ExchangesTotal.WithLabelValues("ok").Inc()
	log.Info().
		Str("request_id", sess.requestID).
		Dur("latency", latency).
		Msg("offer exchange completed")
	return inv, nil
}

func (c *Client) exchange(ctx context.Context, sess *session, offer string, amountSats int64, log zerolog.Logger) (*Invoice, error) {
	ptr, err := noffer.Decode(offer)
	if err != nil {
		return nil, newError(InvalidOffer, err)
	}
	if amountSats <= 0 {
		return nil, newError(InvalidAmount, fmt.Errorf("amount must be positive, got %d", amountSats))
	}
	if c.publicKey == "" {
		return nil, newError(UnsupportedFeature, fmt.Errorf("%w: expected %d bytes, got %d",
			crypto.ErrInvalidPrivateKey, crypto.PrivateKeySize, len(c.secretKey)))
	}

	secret, err := crypto.SharedSecret(c.secretKey, ptr.PubKey[:])
	if err != nil {
		if errors.Is(err, crypto.ErrInvalidPublicKey) {
			return nil, newError(InvalidOffer, err)
		}
		return nil, newError(UnsupportedFeature, err)
	}
	sess.secret = secret

	log.Debug().
		Str("relay", ptr.Relay).
		Str("offer", ptr.Offer).
		Str("price_type", ptr.PriceType.String()).
		Int64("amount", amountSats).
		Msg("connecting to relay")

	relay, err := c.dial(ctx, ptr.Relay)
	if err != nil {
		metrics.RelayErrors.WithLabelValues("dial").Inc()
		return nil, fmt.Errorf("connect to relay %s: %w", ptr.Relay, err)
	}
	defer relay.Close()

	req, err := BuildRequest(c.secretHex, ptr.PubKeyHex(), Request{Offer: ptr.Offer, Amount: amountSats}, secret)
	if err != nil {
		return nil, err
	}
	sess.requestID = req.ID

	// Request events are ephemeral, so the subscription must exist before
	// the request is visible to the seller.
	sub, err := relay.Subscribe(ctx, ResponseFilter(c.publicKey, req.ID))
	if err != nil {
		metrics.RelayErrors.WithLabelValues("subscribe").Inc()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ev, err := c.publishAndWait(ctx, sess, relay, sub, req)
	sub.Close()
	if err != nil {
		return nil, err
	}

	return c.readResponse(ev, sess, ptr)
}

func (c *Client) publishAndWait(ctx context.Context, sess *session, relay Relay, sub Subscription, req nostr.Event) (*nostr.Event, error) {
	if err := relay.Publish(ctx, req); err != nil {
		metrics.RelayErrors.WithLabelValues("publish").Inc()
		return nil, fmt.Errorf("publish request: %w", err)
	}
	sess.deadline = time.Now().Add(c.timeout)

	timer := time.NewTimer(time.Until(sess.deadline))
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				metrics.RelayErrors.WithLabelValues("wait").Inc()
				return nil, errSubscriptionEnded
			}
			if ev == nil {
				continue
			}
			return ev, nil
		case <-timer.C:
			return nil, newError(ExpiredOffer, fmt.Errorf("no response within %s", c.timeout))
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Client) readResponse(ev *nostr.Event, sess *session, ptr *noffer.Pointer) (*Invoice, error) {
	if ev.PubKey != ptr.PubKeyHex() {
		return nil, fmt.Errorf("%w: response authored by %s", ErrMalformedResponse, ev.PubKey)
	}
	if !hasTag(ev, "e", sess.requestID) || !hasTag(ev, "p", c.publicKey) {
		return nil, fmt.Errorf("%w: response does not reference request %s", ErrMalformedResponse, sess.requestID)
	}
	if ok, err := ev.CheckSignature(); err != nil || !ok {
		return nil, fmt.Errorf("%w: bad signature", ErrMalformedResponse)
	}

	resp, err := ParseResponse(ev, sess.secret)
	if err != nil {
		return nil, err
	}
	if resp.Bolt11 == "" {
		code := resp.Code
		if !code.known() {
			code = TemporaryFailure
		}
		return nil, newError(code, fmt.Errorf("seller error: %s", resp.Error))
	}
	return &Invoice{Bolt11: resp.Bolt11, Raw: resp.Raw}, nil
}

func hasTag(ev *nostr.Event, name, value string) bool {
	for _, tag := range ev.Tags {
		if len(tag) >= 2 && tag[0] == name && tag[1] == value {
			return true
		}
	}
	return false
}

func resultLabel(pe *ProtocolError) string {
	if errors.Is(pe, ErrMalformedResponse) {
		return "malformed_response"
	}
	switch pe.Code {
	case InvalidOffer:
		return "invalid_offer"
	case ExpiredOffer:
		return "expired_offer"
	case UnsupportedFeature:
		return "unsupported_feature"
	case InvalidAmount:
		return "invalid_amount"
	default:
		return "temporary_failure"
	}
}
