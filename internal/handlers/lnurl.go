package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// PayRequestResponse is the LNURL-pay static identifier document.
type PayRequestResponse struct {
	Status      string `json:"status"`
	Tag         string `json:"tag"`
	Callback    string `json:"callback"`
	MinSendable int64  `json:"minSendable"`
	MaxSendable int64  `json:"maxSendable"`
	Metadata    string `json:"metadata"`
	NIP69       string `json:"nip69"`
	NostrPubkey string `json:"nostrPubkey,omitempty"`
}

// PayResponse is the LNURL-pay callback result.
type PayResponse struct {
	PR     string `json:"pr"`
	Routes []any  `json:"routes"`
}

// metadata builds the LNURL metadata string for username. The identifier
// and the callback must agree on it byte for byte.
func (h *Handler) metadata(username string) string {
	address := fmt.Sprintf("%s@%s", username, h.directory.Domain)
	b, _ := json.Marshal([][2]string{
		{"text/plain", "Pay to " + address},
		{"text/identifier", address},
	})
	return string(b)
}

// PayRequest serves GET /.well-known/lnurlp/{username}.
func (h *Handler) PayRequest(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	alias, ok := h.directory.Lookup(username)
	if !ok {
		h.LNURLError(w, http.StatusNotFound, "Unknown username")
		return
	}

	h.JSON(w, http.StatusOK, PayRequestResponse{
		Status:      "OK",
		Tag:         "payRequest",
		Callback:    fmt.Sprintf("https://%s/lnurlpay/%s", h.directory.Domain, username),
		MinSendable: h.minSendable,
		MaxSendable: h.maxSendable,
		Metadata:    h.metadata(username),
		NIP69:       alias.NIP69,
		NostrPubkey: alias.NostrPubkey,
	})
}

// PayCallback serves GET /lnurlpay/{username}?amount={msat}.
func (h *Handler) PayCallback(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	alias, ok := h.directory.Lookup(username)
	if !ok {
		h.LNURLError(w, http.StatusNotFound, "Unknown username")
		return
	}

	amount := r.URL.Query().Get("amount")
	if amount == "" {
		h.LNURLError(w, http.StatusBadRequest, "Missing amount parameter")
		return
	}

	msat, err := strconv.ParseInt(amount, 10, 64)
	if err != nil || msat <= 0 || msat%1000 != 0 || msat < h.minSendable || msat > h.maxSendable {
		h.LNURLError(w, http.StatusBadRequest, "Invalid amount parameter")
		return
	}

	inv, err := h.requestInvoice(r.Context(), username, alias.NIP69, alias.Pointer, msat/1000)
	if err != nil {
		h.LNURLError(w, statusFor(err), errorMessage(err))
		return
	}

	h.JSON(w, http.StatusOK, PayResponse{PR: inv.Bolt11, Routes: []any{}})
}
