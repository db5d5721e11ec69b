package handlers

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/eldtechnologies/noffer/internal/models"
	"github.com/eldtechnologies/noffer/internal/nip69"
)

// CodeCount is the number of exchanges that ended with one result code.
type CodeCount struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Count   int64  `json:"count"`
}

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	TotalExchanges int64             `json:"total_exchanges"`
	Succeeded      int64             `json:"succeeded"`
	ByCode         []CodeCount       `json:"by_code"`
	LastExchange   string            `json:"last_exchange"`
	Recent         []models.Exchange `json:"recent"`
}

// Stats returns exchange statistics from the audit log. Without a store it
// reports zeroes.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		ByCode:       []CodeCount{},
		LastExchange: "no activity yet",
		Recent:       []models.Exchange{},
	}
	if h.db == nil {
		h.JSON(w, http.StatusOK, resp)
		return
	}

	ctx := r.Context()

	counts, err := h.db.CountByCode(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count exchanges")
		return
	}

	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	recent, err := h.db.RecentExchanges(ctx, limit)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to get recent exchanges")
		return
	}

	for code, n := range counts {
		resp.TotalExchanges += n
		msg := "OK"
		if code == 0 {
			resp.Succeeded = n
		} else {
			msg = nip69.Code(code).Message()
		}
		resp.ByCode = append(resp.ByCode, CodeCount{Code: code, Message: msg, Count: n})
	}
	sort.Slice(resp.ByCode, func(i, j int) bool { return resp.ByCode[i].Code < resp.ByCode[j].Code })

	if len(recent) > 0 {
		resp.LastExchange = formatTimeAgo(recent[0].CreatedAt)
		resp.Recent = recent
	}

	h.JSON(w, http.StatusOK, resp)
}

// formatTimeAgo formats a time as a human-readable "X ago" string.
func formatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit + " ago"
		}
		return strconv.Itoa(n) + " " + unit + "s ago"
	}

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	default:
		return plural(int(diff.Hours()/24), "day")
	}
}
