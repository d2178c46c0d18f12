package usecase

import (
	"context"
	"strings"

	"github.com/merchantbot/merchantbot/internal/biz/domain"
	"github.com/merchantbot/merchantbot/internal/biz/repo"
)

// SearchUsecase handles ad hoc searches and item lookups
type SearchUsecase struct {
	marketRepo repo.MarketplaceRepo
}

// NewSearchUsecase creates a new search usecase
func NewSearchUsecase(marketRepo repo.MarketplaceRepo) *SearchUsecase {
	return &SearchUsecase{marketRepo: marketRepo}
}

// Search defaults and validates params, then runs one page.
// Invalid params never reach the network.
func (uc *SearchUsecase) Search(ctx context.Context, params domain.SearchParams, page domain.PageRequest) (*domain.SearchResult, error) {
	params = params.WithDefaults()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if page.Size < 0 {
		return nil, &domain.ValidationError{Field: "page_size", Message: "must not be negative"}
	}
	if page.Size == 0 {
		page.Size = domain.DefaultPageSize
	}
	return uc.marketRepo.Search(ctx, params, page)
}

// GetItem gets the detail of one item
func (uc *SearchUsecase) GetItem(ctx context.Context, id string, translate bool) (*domain.ItemDetail, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, &domain.ValidationError{Field: "item_id", Message: "must not be empty"}
	}
	return uc.marketRepo.GetItem(ctx, id, translate)
}

// Stats returns the marketplace client's request budget usage
func (uc *SearchUsecase) Stats() repo.LimiterStats {
	return uc.marketRepo.Stats()
}
