package models

import (
	"time"

	"github.com/google/uuid"
)

// Exchange is the audit record of one offer exchange. The invoice itself is
// never recorded.
type Exchange struct {
	ID         uuid.UUID `json:"id"`
	SessionID  string    `json:"session_id"` // ULID, matches the exchange logs
	Username   string    `json:"username,omitempty"`
	OfferID    string    `json:"offer_id"`
	Relay      string    `json:"relay"`
	AmountSats int64     `json:"amount_sats"`
	Code       int       `json:"code"` // 0 on success
	LatencyMs  int64     `json:"latency_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Succeeded reports whether the exchange produced an invoice.
func (e *Exchange) Succeeded() bool {
	return e.Code == 0
}
