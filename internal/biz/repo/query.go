package repo

import (
	"context"
	"time"

	"github.com/merchantbot/merchantbot/internal/biz/domain"
)

// QueryRepo is the tracked query repository interface
// Responsible for query persistence (SQLite)
type QueryRepo interface {
	// Create persists a new query. Fails with ErrQuotaExceeded when the user
	// already holds limit queries, ErrDuplicateName or ErrDuplicateKeyword on clashes.
	Create(ctx context.Context, q *domain.TrackedQuery, limit int) error

	// Get gets a query by id
	Get(ctx context.Context, id string) (*domain.TrackedQuery, error)

	// FindByName gets a user's query by its name
	FindByName(ctx context.Context, userID, name string) (*domain.TrackedQuery, error)

	// ListByUser lists all queries of a user
	ListByUser(ctx context.Context, userID string) ([]*domain.TrackedQuery, error)

	// ListTracked lists tracked queries across all users
	ListTracked(ctx context.Context) ([]*domain.TrackedQuery, error)

	// SetTracked toggles tracking; ErrQueryNotFound if the id is unknown
	SetTracked(ctx context.Context, id string, tracked bool) error

	// Delete deletes a query; ErrQueryNotFound if the id is unknown
	Delete(ctx context.Context, id string) error

	// DeleteByUser deletes all queries of a user
	DeleteByUser(ctx context.Context, userID string) (int64, error)

	// UpdateLastRun sets lastRun; unknown ids are a no-op
	UpdateLastRun(ctx context.Context, id string, lastRun time.Time) error

	// BulkUpdateLastRun applies many lastRun updates in one transaction
	BulkUpdateLastRun(ctx context.Context, updates []domain.LastRunUpdate) error

	// Close closes the database
	Close() error
}
