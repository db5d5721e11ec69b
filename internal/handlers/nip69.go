package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/eldtechnologies/noffer/internal/nip69"
)

const maxOfferBodySize = 16 * 1024

// OfferRequest is the body of POST /nip69.
type OfferRequest struct {
	Offer  string `json:"offer"`
	Amount int64  `json:"amount"` // sats
}

// OfferResponse is the success body of POST /nip69.
type OfferResponse struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Invoice *nip69.Invoice `json:"invoice"`
}

// OfferErrorResponse is the failure body of POST /nip69.
type OfferErrorResponse struct {
	Error string     `json:"error"`
	Code  nip69.Code `json:"code"`
}

// Offer handles POST /nip69, running one exchange for a raw noffer.
func (h *Handler) Offer(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxOfferBodySize)

	var req OfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.JSON(w, http.StatusBadRequest, OfferErrorResponse{
			Error: nip69.InvalidOffer.Message(),
			Code:  nip69.InvalidOffer,
		})
		return
	}

	inv, err := h.requestInvoice(r.Context(), "", req.Offer, nil, req.Amount)
	if err != nil {
		h.JSON(w, statusFor(err), OfferErrorResponse{
			Error: errorMessage(err),
			Code:  nip69.CodeOf(err),
		})
		return
	}

	h.JSON(w, http.StatusOK, OfferResponse{
		Status:  "OK",
		Message: "Offer sent",
		Invoice: inv,
	})
}
