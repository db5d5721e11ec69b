package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/noffer/internal/api"
	"github.com/eldtechnologies/noffer/internal/config"
	"github.com/eldtechnologies/noffer/internal/crypto"
	"github.com/eldtechnologies/noffer/internal/nip69"
	"github.com/eldtechnologies/noffer/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	dir, err := config.LoadDirectory(cfg.AliasesPath, cfg.Domain)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.AliasesPath).Msg("failed to load alias directory")
	}
	logger.Info().
		Str("domain", dir.Domain).
		Int("aliases", len(dir.Aliases)).
		Msg("alias directory loaded")

	// Requester key: configured, or fresh for this process
	keyHex := cfg.PrivateKey
	if keyHex == "" {
		keyHex, err = crypto.GeneratePrivateKey()
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to generate private key")
		}
		logger.Info().Msg("generated new private key for this session")
	}
	key, err := crypto.ParsePrivateKey(keyHex)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid NOFFER_PRIVATE_KEY")
	}

	client := nip69.NewClient(nip69.Config{
		SecretKey: key,
		Timeout:   cfg.RelayTimeout,
		Logger:    logger.With().Str("component", "nip69").Logger(),
	})
	logger.Info().Str("pubkey", client.PublicKey()).Msg("offer client ready")

	// Exchange audit log: Postgres if configured, else SQLite if configured
	var db store.DataStore
	switch {
	case cfg.DatabaseURL != "":
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		logger.Info().Msg("running database migrations...")
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		db = pg
		logger.Info().Msg("connected to PostgreSQL")
	case cfg.SQLitePath != "":
		lite, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		db = lite
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite audit log")
	default:
		logger.Info().Msg("no database configured, exchange audit log disabled")
	}
	if db != nil {
		defer db.Close()
	}

	// Initialize Redis store
	var redisStore *store.RedisStore
	if cfg.RedisURL != "" {
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		logger.Info().Msg("connected to Redis")
	}

	router := api.NewRouter(logger, api.Deps{
		Config:    cfg,
		Directory: dir,
		Offers:    client,
		DB:        db,
		Redis:     redisStore,
	})

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// Callbacks block for up to one relay timeout
		WriteTimeout: cfg.RelayTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting noffer server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// In-flight exchanges get one relay timeout to finish
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.RelayTimeout+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
