package nip69

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nbd-wtf/go-nostr"

	"github.com/eldtechnologies/noffer/internal/crypto"
)

// KindOffer is the event kind for both offer requests and their responses.
const KindOffer = 21001

var (
	// ErrMalformedResponse wraps every failure to turn a matched response
	// event into a Response.
	ErrMalformedResponse = errors.New("malformed offer response")
	ErrMalformedRequest  = errors.New("malformed offer request")
)

// Request is the plaintext body of an offer request.
type Request struct {
	Offer  string `json:"offer"`
	Amount int64  `json:"amount"`
}

// Range is the amount window a seller reports with an InvalidAmount error.
type Range struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// Response is the plaintext body of an offer response: either an invoice or
// a seller-side error.
type Response struct {
	Bolt11 string `json:"bolt11,omitempty"`
	Error  string `json:"error,omitempty"`
	Code   Code   `json:"code,omitempty"`
	Range  *Range `json:"range,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// BuildRequest encrypts req under secret and signs a request event addressed
// to recipientHex. The returned event carries its final ID.
func BuildRequest(secretKeyHex, recipientHex string, req Request, secret []byte) (nostr.Event, error) {
	return buildEvent(secretKeyHex, nostr.Tags{{"p", recipientHex}}, req, secret)
}

// BuildResponse answers request with body, tagging the requester and the
// request id so the requester's filter matches it.
func BuildResponse(secretKeyHex string, request *nostr.Event, body any, secret []byte) (nostr.Event, error) {
	tags := nostr.Tags{
		{"p", request.PubKey},
		{"e", request.ID},
	}
	return buildEvent(secretKeyHex, tags, body, secret)
}

func buildEvent(secretKeyHex string, tags nostr.Tags, body any, secret []byte) (nostr.Event, error) {
	plaintext, err := json.Marshal(body)
	if err != nil {
		return nostr.Event{}, err
	}
	payload, err := crypto.Encrypt(plaintext, secret)
	if err != nil {
		return nostr.Event{}, err
	}

	ev := nostr.Event{
		Kind:      KindOffer,
		CreatedAt: nostr.Now(),
		Tags:      tags,
		Content:   crypto.Frame(payload),
	}
	if err := ev.Sign(secretKeyHex); err != nil {
		return nostr.Event{}, fmt.Errorf("sign event: %w", err)
	}
	return ev, nil
}

// ResponseFilter matches the single response correlated with requestID.
func ResponseFilter(localPubHex, requestID string) nostr.Filter {
	return nostr.Filter{
		Kinds: []int{KindOffer},
		Tags: nostr.TagMap{
			"p": {localPubHex},
			"e": {requestID},
		},
	}
}

// ParseResponse decrypts a response event's content.
func ParseResponse(ev *nostr.Event, secret []byte) (*Response, error) {
	plaintext, err := openContent(ev, secret, ErrMalformedResponse)
	if err != nil {
		return nil, err
	}
	var resp Response
	if err := json.Unmarshal(plaintext, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if resp.Bolt11 == "" && resp.Error == "" {
		return nil, fmt.Errorf("%w: neither bolt11 nor error present", ErrMalformedResponse)
	}
	resp.Raw = json.RawMessage(plaintext)
	return &resp, nil
}

// ParseRequest is the seller-side counterpart of BuildRequest.
func ParseRequest(ev *nostr.Event, secret []byte) (*Request, error) {
	plaintext, err := openContent(ev, secret, ErrMalformedRequest)
	if err != nil {
		return nil, err
	}
	var req Request
	if err := json.Unmarshal(plaintext, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	return &req, nil
}

func openContent(ev *nostr.Event, secret []byte, malformed error) ([]byte, error) {
	if ev.Kind != KindOffer {
		return nil, fmt.Errorf("%w: unexpected kind %d", malformed, ev.Kind)
	}
	payload, err := crypto.Unframe(ev.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", malformed, err)
	}
	plaintext, err := crypto.Decrypt(payload, secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", malformed, err)
	}
	return plaintext, nil
}
