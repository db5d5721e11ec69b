package store

import (
	"context"

	"github.com/eldtechnologies/noffer/internal/models"
)

// DataStore defines the interface for the exchange audit log.
// Both PostgresStore and SQLiteStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error

	// Exchange operations
	RecordExchange(ctx context.Context, ex *models.Exchange) error
	CountByCode(ctx context.Context) (map[int]int64, error)
	RecentExchanges(ctx context.Context, limit int) ([]models.Exchange, error)
}

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultRecentLimit
	}
	if limit > maxRecentLimit {
		return maxRecentLimit
	}
	return limit
}
