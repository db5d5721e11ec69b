// Package lnurl provides a client for the noffer LNURL-pay bridge.
package lnurl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// ErrInvalidAddress is returned for strings that are not user@domain.
var ErrInvalidAddress = errors.New("invalid lightning address")

// Error is a failure reported by the server.
type Error struct {
	StatusCode int
	Reason     string
	Code       int // NIP-69 code, POST /nip69 only
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("noffer error %d: %s (code %d)", e.StatusCode, e.Reason, e.Code)
	}
	return fmt.Sprintf("noffer error %d: %s", e.StatusCode, e.Reason)
}

// Client is a noffer bridge API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new client for the bridge at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		// Invoices can take a full relay timeout to arrive
		HTTPClient: &http.Client{Timeout: 45 * time.Second},
	}
}

// ForAddress returns a client for the domain of a user@domain address, and
// the username.
func ForAddress(address string) (*Client, string, error) {
	user, domain, ok := strings.Cut(address, "@")
	if !ok || !usernameRegex.MatchString(user) || domain == "" || strings.ContainsAny(domain, "/@") {
		return nil, "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return NewClient("https://" + domain), user, nil
}

// doRequest performs an HTTP request against rawURL and decodes a JSON
// response into out.
func (c *Client) doRequest(ctx context.Context, method, rawURL string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Reason string `json:"reason"`
			Error  string `json:"error"`
			Code   int    `json:"code"`
		}
		json.Unmarshal(respBody, &errResp)
		reason := errResp.Reason
		if reason == "" {
			reason = errResp.Error
		}
		return &Error{StatusCode: resp.StatusCode, Reason: reason, Code: errResp.Code}
	}

	return json.Unmarshal(respBody, out)
}

// PayRequest is the LNURL-pay static identifier document.
type PayRequest struct {
	Status      string `json:"status"`
	Tag         string `json:"tag"`
	Callback    string `json:"callback"`
	MinSendable int64  `json:"minSendable"`
	MaxSendable int64  `json:"maxSendable"`
	Metadata    string `json:"metadata"`
	NIP69       string `json:"nip69"`
	NostrPubkey string `json:"nostrPubkey,omitempty"`
}

// GetPayRequest fetches the static identifier for username.
func (c *Client) GetPayRequest(ctx context.Context, username string) (*PayRequest, error) {
	var resp PayRequest
	if err := c.doRequest(ctx, http.MethodGet, c.BaseURL+"/.well-known/lnurlp/"+url.PathEscape(username), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Tag != "payRequest" || resp.Callback == "" {
		return nil, fmt.Errorf("unexpected LNURL response tag %q", resp.Tag)
	}
	return &resp, nil
}

// PayResponse is the LNURL-pay callback result.
type PayResponse struct {
	PR     string `json:"pr"`
	Routes []any  `json:"routes"`
}

// Callback asks the callback URL of pr for an invoice of amountMsat.
func (c *Client) Callback(ctx context.Context, pr *PayRequest, amountMsat int64) (*PayResponse, error) {
	if amountMsat < pr.MinSendable || amountMsat > pr.MaxSendable {
		return nil, fmt.Errorf("amount %d msat outside [%d, %d]", amountMsat, pr.MinSendable, pr.MaxSendable)
	}

	u, err := url.Parse(pr.Callback)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("amount", strconv.FormatInt(amountMsat, 10))
	u.RawQuery = q.Encode()

	var resp PayResponse
	if err := c.doRequest(ctx, http.MethodGet, u.String(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Pay resolves username and returns a bolt11 invoice for amountMsat.
func (c *Client) Pay(ctx context.Context, username string, amountMsat int64) (string, error) {
	pr, err := c.GetPayRequest(ctx, username)
	if err != nil {
		return "", err
	}
	resp, err := c.Callback(ctx, pr, amountMsat)
	if err != nil {
		return "", err
	}
	return resp.PR, nil
}

// OfferResponse is the result of POST /nip69.
type OfferResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Invoice json.RawMessage `json:"invoice"`
}

// Offer runs one exchange for a raw noffer through the bridge.
func (c *Client) Offer(ctx context.Context, offer string, amountSats int64) (*OfferResponse, error) {
	body, _ := json.Marshal(map[string]any{"offer": offer, "amount": amountSats})

	var resp OfferResponse
	if err := c.doRequest(ctx, http.MethodPost, c.BaseURL+"/nip69", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	PublicKey string                 `json:"pubkey,omitempty"`
	Checks    map[string]interface{} `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// Health checks server health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, c.BaseURL+"/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
