package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/noffer/internal/config"
	"github.com/eldtechnologies/noffer/internal/crypto"
	"github.com/eldtechnologies/noffer/internal/models"
	"github.com/eldtechnologies/noffer/internal/nip69"
	"github.com/eldtechnologies/noffer/internal/noffer"
	"github.com/eldtechnologies/noffer/internal/store"
)

const recordTimeout = 2 * time.Second

// InvoiceRequester runs one offer exchange. *nip69.Client implements it.
type InvoiceRequester interface {
	RequestInvoice(ctx context.Context, offer string, amountSats int64) (*nip69.Invoice, error)
	PublicKey() string
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	offers      InvoiceRequester
	directory   *config.Directory
	minSendable int64
	maxSendable int64

	db     store.DataStore   // optional audit log
	redis  *store.RedisStore // optional, only reported by /health
	logger zerolog.Logger
}

// NewHandler creates a new Handler. db and redis may be nil.
func NewHandler(offers InvoiceRequester, dir *config.Directory, cfg *config.Config, db store.DataStore, redis *store.RedisStore, logger zerolog.Logger) *Handler {
	return &Handler{
		offers:      offers,
		directory:   dir,
		minSendable: cfg.MinSendable,
		maxSendable: cfg.MaxSendable,
		db:          db,
		redis:       redis,
		logger:      logger,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// LNURLError sends an LNURL-style {"status":"ERROR","reason":...} response.
func (h *Handler) LNURLError(w http.ResponseWriter, status int, reason string) {
	h.JSON(w, status, map[string]string{"status": "ERROR", "reason": reason})
}

// statusFor maps an exchange failure to an HTTP status.
func statusFor(err error) int {
	switch nip69.CodeOf(err) {
	case nip69.InvalidOffer, nip69.InvalidAmount:
		return http.StatusBadRequest
	case nip69.ExpiredOffer:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage is the payer-facing text for an exchange failure.
func errorMessage(err error) string {
	if pe, ok := nip69.AsProtocolError(err); ok {
		return pe.Message
	}
	return nip69.TemporaryFailure.Message()
}

// requestInvoice runs one exchange and records it in the audit log. ptr is
// the already decoded offer, if the caller has one.
func (h *Handler) requestInvoice(ctx context.Context, username, offer string, ptr *noffer.Pointer, amountSats int64) (*nip69.Invoice, error) {
	sessionID := crypto.NewSessionID()
	start := time.Now()
	inv, err := h.offers.RequestInvoice(nip69.WithSessionID(ctx, sessionID), offer, amountSats)

	ex := &models.Exchange{
		SessionID:  sessionID,
		Username:   username,
		AmountSats: amountSats,
		LatencyMs:  time.Since(start).Milliseconds(),
	}
	if ptr == nil {
		ptr, _ = noffer.Decode(offer)
	}
	if ptr != nil {
		ex.OfferID = ptr.Offer
		ex.Relay = ptr.Relay
	}
	if err != nil {
		ex.Code = int(nip69.CodeOf(err))
	}
	h.record(ctx, ex)

	return inv, err
}

// record writes ex to the audit log. Failures are logged and never reach
// the payer.
func (h *Handler) record(ctx context.Context, ex *models.Exchange) {
	if h.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := h.db.RecordExchange(ctx, ex); err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Warn().
			Err(err).
			Str("session", ex.SessionID).
			Msg("failed to record exchange")
	}
}
