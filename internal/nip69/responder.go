package nip69

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/noffer/internal/crypto"
	"github.com/eldtechnologies/noffer/internal/metrics"
)

// RespondFunc answers one decrypted offer request. The returned value is
// encrypted as the response body; nil leaves the request unanswered.
type RespondFunc func(ctx context.Context, req *Request) any

// Responder plays the seller side of the exchange on one relay.
type Responder struct {
	secretKey []byte
	secretHex string
	publicKey string
	respond   RespondFunc
	logger    zerolog.Logger
}

// NewResponder creates a Responder that answers requests addressed to the
// public key of secretKey.
func NewResponder(secretKey []byte, respond RespondFunc, logger zerolog.Logger) (*Responder, error) {
	pub, err := crypto.PublicKeyHex(secretKey)
	if err != nil {
		return nil, err
	}
	return &Responder{
		secretKey: append([]byte(nil), secretKey...),
		secretHex: hex.EncodeToString(secretKey),
		publicKey: pub,
		respond:   respond,
		logger:    logger,
	}, nil
}

// PublicKey returns the seller's x-only public key in hex.
func (s *Responder) PublicKey() string {
	return s.publicKey
}

// RequestFilter matches offer requests addressed to sellerPubHex.
func RequestFilter(sellerPubHex string) nostr.Filter {
	return nostr.Filter{
		Kinds: []int{KindOffer},
		Tags:  nostr.TagMap{"p": {sellerPubHex}},
	}
}

// Serve answers requests from relay until ctx ends or the relay drops the
// subscription. A request that cannot be answered is logged and skipped.
func (s *Responder) Serve(ctx context.Context, relay Relay) error {
	sub, err := relay.Subscribe(ctx, RequestFilter(s.publicKey))
	if err != nil {
		metrics.RelayErrors.WithLabelValues("subscribe").Inc()
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Close()

	s.logger.Info().
		Str("relay", relay.URL()).
		Str("pubkey", s.publicKey).
		Msg("listening for offer requests")

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return errSubscriptionEnded
			}
			if ev == nil {
				continue
			}
			if err := s.answer(ctx, relay, ev); err != nil {
				s.logger.Warn().
					Err(err).
					Str("request_id", ev.ID).
					Str("requester", ev.PubKey).
					Msg("offer request not answered")
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Responder) answer(ctx context.Context, relay Relay, ev *nostr.Event) error {
	// Responses share the kind; only requests come without an e tag.
	for _, tag := range ev.Tags {
		if len(tag) >= 2 && tag[0] == "e" {
			return nil
		}
	}
	if ok, err := ev.CheckSignature(); err != nil || !ok {
		return fmt.Errorf("%w: bad signature", ErrMalformedRequest)
	}

	requester, err := hex.DecodeString(ev.PubKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	secret, err := crypto.SharedSecret(s.secretKey, requester)
	if err != nil {
		return err
	}
	req, err := ParseRequest(ev, secret)
	if err != nil {
		return err
	}

	body := s.respond(ctx, req)
	if body == nil {
		s.logger.Debug().Str("request_id", ev.ID).Str("offer", req.Offer).Msg("offer request ignored")
		return nil
	}
	resp, err := BuildResponse(s.secretHex, ev, body, secret)
	if err != nil {
		return err
	}
	if err := relay.Publish(ctx, resp); err != nil {
		metrics.RelayErrors.WithLabelValues("publish").Inc()
		return fmt.Errorf("publish response: %w", err)
	}

	s.logger.Info().
		Str("request_id", ev.ID).
		Str("offer", req.Offer).
		Int64("amount", req.Amount).
		Msg("offer request answered")
	return nil
}
