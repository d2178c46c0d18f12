package repo

import (
	"context"

	"github.com/merchantbot/merchantbot/internal/biz/domain"
)

// LimiterStats is a snapshot of the marketplace client's request budget
type LimiterStats struct {
	InFlight          int
	Queued            int
	RequestsPerMinute int
	MaxConcurrent     int
}

// MarketplaceRepo is the marketplace repository interface
// Responsible for calls to the Mercari API through the rate-limited client
type MarketplaceRepo interface {
	// Search runs one search page. Params must already be validated.
	Search(ctx context.Context, params domain.SearchParams, page domain.PageRequest) (*domain.SearchResult, error)

	// GetItem gets the detail of a single item
	GetItem(ctx context.Context, id string, translate bool) (*domain.ItemDetail, error)

	// RefreshSession rotates the signing key and session id
	RefreshSession(ctx context.Context) error

	// Stats returns the current request budget usage
	Stats() LimiterStats
}
