package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/merchantbot/merchantbot/internal/biz/domain"
	"github.com/merchantbot/merchantbot/internal/biz/repo"
)

// MaxQueryNameLength bounds query names so they fit in a Discord embed field title
const MaxQueryNameLength = 100

// QueryUsecase handles saved query logic
type QueryUsecase struct {
	queryRepo repo.QueryRepo
	config    domain.QueryConfig
	now       func() time.Time
}

// NewQueryUsecase creates a new query usecase
func NewQueryUsecase(queryRepo repo.QueryRepo, config domain.QueryConfig) *QueryUsecase {
	if config.MaxPerUser <= 0 {
		config.MaxPerUser = domain.DefaultQueryConfig.MaxPerUser
	}
	if config.Lookback <= 0 {
		config.Lookback = domain.DefaultQueryConfig.Lookback
	}
	return &QueryUsecase{
		queryRepo: queryRepo,
		config:    config,
		now:       time.Now,
	}
}

// Create validates and saves a new query.
// The first poll looks back over the configured window.
func (uc *QueryUsecase) Create(ctx context.Context, userID, name string, params domain.SearchParams, tracked bool) (*domain.TrackedQuery, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &domain.ValidationError{Field: "name", Message: "must not be empty"}
	}
	if utf8.RuneCountInString(name) > MaxQueryNameLength {
		return nil, &domain.ValidationError{Field: "name", Message: fmt.Sprintf("must be at most %d characters", MaxQueryNameLength)}
	}

	params = params.WithDefaults()
	if err := params.Validate(); err != nil {
		return nil, err
	}

	now := uc.now()
	q := &domain.TrackedQuery{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		Params:    params,
		IsTracked: tracked,
		LastRun:   now.Add(-uc.config.Lookback),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.queryRepo.Create(ctx, q, uc.config.MaxPerUser); err != nil {
		return nil, err
	}
	return q, nil
}

// List lists the user's queries
func (uc *QueryUsecase) List(ctx context.Context, userID string) ([]*domain.TrackedQuery, error) {
	return uc.queryRepo.ListByUser(ctx, userID)
}

// ListTracked lists the user's tracked queries
func (uc *QueryUsecase) ListTracked(ctx context.Context, userID string) ([]*domain.TrackedQuery, error) {
	all, err := uc.queryRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var tracked []*domain.TrackedQuery
	for _, q := range all {
		if q.IsTracked {
			tracked = append(tracked, q)
		}
	}
	return tracked, nil
}

// FindByName gets one of the user's queries by name
func (uc *QueryUsecase) FindByName(ctx context.Context, userID, name string) (*domain.TrackedQuery, error) {
	return uc.queryRepo.FindByName(ctx, userID, strings.TrimSpace(name))
}

// SetTracked toggles tracking of one of the user's queries
func (uc *QueryUsecase) SetTracked(ctx context.Context, userID, name string, tracked bool) (*domain.TrackedQuery, error) {
	q, err := uc.FindByName(ctx, userID, name)
	if err != nil {
		return nil, err
	}
	if err := uc.queryRepo.SetTracked(ctx, q.ID, tracked); err != nil {
		return nil, err
	}
	q.IsTracked = tracked
	return q, nil
}

// Delete deletes one of the user's queries
func (uc *QueryUsecase) Delete(ctx context.Context, userID, name string) (*domain.TrackedQuery, error) {
	q, err := uc.FindByName(ctx, userID, name)
	if err != nil {
		return nil, err
	}
	if err := uc.queryRepo.Delete(ctx, q.ID); err != nil {
		return nil, err
	}
	return q, nil
}
