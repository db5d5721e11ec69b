package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	Domain      string // overrides the directory file's domain when set
	AliasesPath string

	// PrivateKey is the hex secp256k1 key used for offer exchanges. Empty
	// means a fresh key is generated at start.
	PrivateKey   string
	RelayTimeout time.Duration

	// LNURL-pay limits, in millisatoshis
	MinSendable int64
	MaxSendable int64

	DatabaseURL string
	SQLitePath  string
	RedisURL    string

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     // Enable auto-blocking after repeated violations
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "3000"),
		Env:              getEnv("ENV", "development"),
		Domain:           os.Getenv("DOMAIN"),
		AliasesPath:      getEnv("ALIASES_PATH", "config.json"),
		PrivateKey:       os.Getenv("NOFFER_PRIVATE_KEY"),
		RelayTimeout:     getDuration("RELAY_TIMEOUT", 30*time.Second),
		MinSendable:      getInt("MIN_SENDABLE", 1000),
		MaxSendable:      getInt("MAX_SENDABLE", 100000000),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		SQLitePath:       os.Getenv("SQLITE_PATH"),
		RedisURL:         os.Getenv("REDIS_URL"),
		AutoBlockEnabled: getEnv("AUTO_BLOCK_ENABLED", "false") == "true",
	}

	// Parse whitelist (comma-separated IPs or CIDRs)
	if whitelist := os.Getenv("RATE_LIMIT_WHITELIST"); whitelist != "" {
		for _, entry := range strings.Split(whitelist, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				cfg.RateLimitWhitelist = append(cfg.RateLimitWhitelist, entry)
			}
		}
	}

	if cfg.MinSendable < 1000 || cfg.MaxSendable < cfg.MinSendable {
		panic("MIN_SENDABLE must be at least 1000 and not exceed MAX_SENDABLE")
	}

	// In production, the rate limiter needs Redis
	if cfg.Env == "production" && cfg.RedisURL == "" {
		panic("REDIS_URL is required in production")
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		panic(key + " must be an integer")
	}
	return n
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		panic(key + " must be a positive duration, e.g. 30s")
	}
	return d
}
