package biz

import (
	"github.com/merchantbot/merchantbot/internal/biz/domain"
	"github.com/merchantbot/merchantbot/internal/biz/repo"
	"github.com/merchantbot/merchantbot/internal/biz/usecase"
)

// Usecases contains all usecases
type Usecases struct {
	Query  *usecase.QueryUsecase
	Search *usecase.SearchUsecase
	Notify *usecase.NotifyUsecase // nil without a messenger
}

// NewUsecases wires the usecases over the repositories.
// messenger may be nil for processes that never send DMs.
func NewUsecases(
	queryRepo repo.QueryRepo,
	marketRepo repo.MarketplaceRepo,
	messenger repo.Messenger,
	queryConfig domain.QueryConfig,
	templates usecase.NotifyTemplates,
) *Usecases {
	ucs := &Usecases{
		Query:  usecase.NewQueryUsecase(queryRepo, queryConfig),
		Search: usecase.NewSearchUsecase(marketRepo),
	}
	if messenger != nil {
		ucs.Notify = usecase.NewNotifyUsecase(messenger, templates)
	}
	return ucs
}
