package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noffer_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "noffer_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)

	// Offer exchange metrics
	ExchangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noffer_exchanges_total",
			Help: "Total offer exchanges by result",
		},
		[]string{"result"}, // "ok", "invalid_offer", "expired_offer", "malformed_response", ...
	)

	ExchangeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "noffer_exchange_duration_seconds",
			Help:    "Offer exchange duration, from pointer decode to result",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30, 35},
		},
	)

	RelayErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noffer_relay_errors_total",
			Help: "Relay transport failures by stage",
		},
		[]string{"stage"}, // "dial", "subscribe", "publish", "wait"
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noffer_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noffer_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)

	// Infrastructure metrics
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "noffer_store_latency_seconds",
			Help:    "Exchange audit store latency",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1},
		},
		[]string{"backend"}, // "postgres" or "sqlite"
	)
)
