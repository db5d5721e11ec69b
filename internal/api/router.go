package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/noffer/internal/api/middleware"
	"github.com/eldtechnologies/noffer/internal/config"
	"github.com/eldtechnologies/noffer/internal/handlers"
	"github.com/eldtechnologies/noffer/internal/store"
)

// Deps are the runtime dependencies of the HTTP surface. DB and Redis may
// be nil.
type Deps struct {
	Config    *config.Config
	Directory *config.Directory
	Offers    handlers.InvoiceRequester
	DB        store.DataStore
	Redis     *store.RedisStore
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, deps Deps) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(16 * 1024))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting needs Redis
	if deps.Redis != nil {
		limiter := middleware.NewRateLimiter(deps.Redis.Client(), logger, middleware.RateLimiterConfig{
			Whitelist:        deps.Config.RateLimitWhitelist,
			AutoBlockEnabled: deps.Config.AutoBlockEnabled,
		})
		r.Use(limiter.Middleware)
	} else {
		logger.Warn().Msg("REDIS_URL not set, rate limiting disabled")
	}

	// CORS: wallets call the LNURL endpoints from any origin
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(deps.Offers, deps.Directory, deps.Config, deps.DB, deps.Redis, logger)

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)

	// LNURL-pay
	r.Get("/.well-known/lnurlp/{username}", h.PayRequest)
	r.Get("/lnurlpay/{username}", h.PayCallback)

	r.Post("/nip69", h.Offer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.Error(w, http.StatusNotFound, "not found")
	})

	return r
}
