package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/eldtechnologies/noffer/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/noffer.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/noffer.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Migrate creates tables if they don't exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS exchanges (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		username TEXT NOT NULL DEFAULT '',
		offer_id TEXT NOT NULL,
		relay TEXT NOT NULL,
		amount_sats INTEGER NOT NULL,
		code INTEGER NOT NULL,
		latency_ms INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_exchanges_created_at ON exchanges(created_at);
	CREATE INDEX IF NOT EXISTS idx_exchanges_code ON exchanges(code);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RecordExchange inserts an exchange, filling in ID and CreatedAt if unset.
func (s *SQLiteStore) RecordExchange(ctx context.Context, ex *models.Exchange) error {
	defer observe("sqlite", time.Now())

	prepareExchange(ex)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exchanges (id, session_id, username, offer_id, relay, amount_sats, code, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ex.ID.String(), ex.SessionID, ex.Username, ex.OfferID, ex.Relay, ex.AmountSats, ex.Code, ex.LatencyMs, ex.CreatedAt.UTC())
	return err
}

// CountByCode returns the number of recorded exchanges per result code.
func (s *SQLiteStore) CountByCode(ctx context.Context) (map[int]int64, error) {
	defer observe("sqlite", time.Now())

	rows, err := s.db.QueryContext(ctx, `SELECT code, COUNT(*) FROM exchanges GROUP BY code`)
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
func (s *SQLiteStore) RecentExchanges(ctx context.Context, limit int) ([]models.Exchange, error) {
	defer observe("sqlite", time.Now())

	// ids are UUIDv7, so they break ties in insertion order
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, username, offer_id, relay, amount_sats, code, latency_ms, created_at
		FROM exchanges
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	exchanges := []models.Exchange{}
	for rows.Next() {
		var ex models.Exchange
		var idStr string
		err := rows.Scan(
			&idStr,
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
		ex.ID, err = uuid.Parse(idStr)
		if err != nil {
			return nil, err
		}
		exchanges = append(exchanges, ex)
	}
	return exchanges, rows.Err()
}
