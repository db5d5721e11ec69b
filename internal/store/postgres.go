package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eldtechnologies/noffer/internal/crypto"
	"github.com/eldtechnologies/noffer/internal/metrics"
	"github.com/eldtechnologies/noffer/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the exchanges table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS exchanges (
			id UUID PRIMARY KEY,
			session_id TEXT NOT NULL,
			username TEXT NOT NULL DEFAULT '',
			offer_id TEXT NOT NULL,
			relay TEXT NOT NULL,
			amount_sats BIGINT NOT NULL,
			code SMALLINT NOT NULL,
			latency_ms BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_exchanges_created_at ON exchanges(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_exchanges_code ON exchanges(code);
	`)
	return err
}

// RecordExchange inserts an exchange, filling in ID and CreatedAt if unset.
func (s *PostgresStore) RecordExchange(ctx context.Context, ex *models.Exchange) error {
	defer observe("postgres", time.Now())

	prepareExchange(ex)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO exchanges (id, session_id, username, offer_id, relay, amount_sats, code, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, ex.ID, ex.SessionID, ex.Username, ex.OfferID, ex.Relay, ex.AmountSats, ex.Code, ex.LatencyMs, ex.CreatedAt)
	return err
}

// CountByCode returns the number of recorded exchanges per result code.
func (s *PostgresStore) CountByCode(ctx context.Context) (map[int]int64, error) {
	defer observe("postgres", time.Now())

	rows, err := s.pool.Query(ctx, `SELECT code, COUNT(*) FROM exchanges GROUP BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int64)
	for rows.Next() {
		var code int
		var n int64
		if err := rows.Scan(&code, &n); err != nil {
			return nil, err
		}
		counts[code] = n
	}
	return counts, rows.Err()
}

// RecentExchanges returns the most recent exchanges, newest first.
func (s *PostgresStore) RecentExchanges(ctx context.Context, limit int) ([]models.Exchange, error) {
	defer observe("postgres", time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, username, offer_id, relay, amount_sats, code, latency_ms, created_at
		FROM exchanges
		ORDER BY created_at DESC
		LIMIT $1
	`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	exchanges := []models.Exchange{}
	for rows.Next() {
		var ex models.Exchange
		err := rows.Scan(
			&ex.ID,
			&ex.SessionID,
			&ex.Username,
			&ex.OfferID,
			&ex.Relay,
			&ex.AmountSats,
			&ex.Code,
			&ex.LatencyMs,
			&ex.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		exchanges = append(exchanges, ex)
	}
	return exchanges, rows.Err()
}

func prepareExchange(ex *models.Exchange) {
	if ex.ID == uuid.Nil {
		ex.ID = crypto.NewUUIDv7()
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}
}

func observe(backend string, start time.Time) {
	metrics.StoreLatency.WithLabelValues(backend).Observe(time.Since(start).Seconds())
}
