package handlers

import (
	"context"
	"net/http"
	"os"
	"time"
)

const version = "0.1.0"

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`            // "pass" or "fail"
	Latency string `json:"latency,omitempty"` // e.g., "2ms"
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string           `json:"status"` // "healthy" or "degraded"
	Version   string           `json:"version"`
	Region    string           `json:"region,omitempty"`
	Instance  string           `json:"instance,omitempty"`
	PublicKey string           `json:"pubkey,omitempty"`
	Aliases   int              `json:"aliases"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

type pinger interface {
	Ping(ctx context.Context) error
}

// ping runs one optional dependency check. Unconfigured dependencies pass;
// both stores are optional.
func ping(ctx context.Context, p pinger, configured bool) (Check, bool) {
	if !configured {
		return Check{Status: "pass", Message: "not configured"}, true
	}
	start := time.Now()
	if err := p.Ping(ctx); err != nil {
		return Check{Status: "fail", Message: "connection failed"}, false
	}
	return Check{Status: "pass", Latency: time.Since(start).String()}, true
}

// Health handles the health check endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]Check)
	allHealthy := true

	var ok bool
	checks["store"], ok = ping(ctx, h.db, h.db != nil)
	allHealthy = allHealthy && ok
	checks["redis"], ok = ping(ctx, h.redis, h.redis != nil)
	allHealthy = allHealthy && ok

	pub := h.offers.PublicKey()
	if pub == "" {
		checks["relay_key"] = Check{Status: "fail", Message: "invalid private key"}
		allHealthy = false
	} else {
		checks["relay_key"] = Check{Status: "pass"}
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	resp := HealthResponse{
		Status:    status,
		Version:   version,
		Region:    os.Getenv("FLY_REGION"),
		Instance:  os.Getenv("FLY_ALLOC_ID"),
		PublicKey: pub,
		Aliases:   len(h.directory.Aliases),
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	h.JSON(w, statusCode, resp)
}

// RootResponse represents the root endpoint response.
type RootResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Domain  string `json:"domain"`
}

// Root handles the root endpoint.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, RootResponse{
		Name:    "noffer",
		Version: version,
		Domain:  h.directory.Domain,
	})
}
