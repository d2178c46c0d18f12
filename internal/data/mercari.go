package data

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/merchantbot/merchantbot/internal/biz/domain"
	"github.com/merchantbot/merchantbot/internal/biz/repo"
	"github.com/merchantbot/merchantbot/internal/infra/mercari"
)

// mercariRepo implements the marketplace repository
type mercariRepo struct {
	client *mercari.Client
}

// NewMercariRepo creates a new marketplace repository
func NewMercariRepo(client *mercari.Client) repo.MarketplaceRepo {
	return &mercariRepo{client: client}
}

// Search runs one search page
func (r *mercariRepo) Search(ctx context.Context, params domain.SearchParams, page domain.PageRequest) (*domain.SearchResult, error) {
	resp, err := r.client.Search(ctx, toSearchCondition(params), mercari.PageOptions{
		Size:  page.Size,
		Token: page.Token,
	})
	if err != nil {
		return nil, err
	}

	result := &domain.SearchResult{
		Items: make([]domain.Listing, 0, len(resp.Items)),
		Meta: domain.SearchMeta{
			NextPageToken:     resp.Meta.NextPageToken,
			PreviousPageToken: resp.Meta.PreviousPageToken,
			NumFound:          int(resp.Meta.NumFound),
		},
	}
	for _, item := range resp.Items {
		result.Items = append(result.Items, toListing(item))
	}
	return result, nil
}

// GetItem gets an item, optionally with its translation
func (r *mercariRepo) GetItem(ctx context.Context, id string, translate bool) (*domain.ItemDetail, error) {
	info, err := r.client.GetItem(ctx, id, "")
	if err != nil {
		var httpErr *mercari.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			return nil, domain.ErrItemNotFound
		}
		return nil, err
	}
	if info.Data == nil {
		return nil, domain.ErrItemNotFound
	}

	detail := toItemDetail(info.Data)

	if translate {
		tr, err := r.client.GetTranslation(ctx, id)
		if err != nil {
			// The untranslated text is still useful
			log.Printf("[Mercari] Translation of %s failed: %v", id, err)
		} else {
			detail.TranslatedName = tr.Name
			detail.TranslatedDescription = tr.Description
		}
	}
	return detail, nil
}

// RefreshSession rotates the signing key
func (r *mercariRepo) RefreshSession(ctx context.Context) error {
	return r.client.RefreshSession(ctx)
}

// Stats returns the limiter usage
func (r *mercariRepo) Stats() repo.LimiterStats {
	s := r.client.Stats()
	return repo.LimiterStats{
		InFlight:          s.InFlight,
		Queued:            s.Queued,
		RequestsPerMinute: s.RequestsPerMinute,
		MaxConcurrent:     s.MaxConcurrent,
	}
}

func toSearchCondition(p domain.SearchParams) mercari.SearchCondition {
	cond := mercari.SearchCondition{
		Keyword:           p.Keyword,
		ExcludeKeyword:    p.ExcludeKeyword,
		Sort:              string(p.Sort),
		Order:             string(p.Order),
		PriceMin:          p.PriceMin,
		PriceMax:          p.PriceMax,
		CategoryID:        p.CategoryIDs,
		CreatedAfterDate:  p.CreatedAfter,
		CreatedBeforeDate: p.CreatedBefore,
	}
	for _, c := range p.ItemConditions {
		cond.ItemConditionID = append(cond.ItemConditionID, int(c))
	}
	return cond
}

func toListing(item mercari.SearchItem) domain.Listing {
	l := domain.Listing{
		ID:          item.ID,
		Name:        item.Name,
		Price:       int64(item.Price),
		Status:      item.Status,
		SellerID:    item.SellerID,
		ConditionID: domain.ItemCondition(item.ItemConditionID),
		Created:     epoch(item.Created),
		Updated:     epoch(item.Updated),
		Thumbnails:  item.Thumbnails,
	}
	for _, p := range item.Photos {
		l.Photos = append(l.Photos, p.URI)
	}
	return l
}

func toItemDetail(d *mercari.ItemData) *domain.ItemDetail {
	detail := &domain.ItemDetail{
		ID:          d.ID,
		Name:        d.Name,
		Price:       int64(d.Price),
		Description: d.Description,
		Status:      d.Status,
		Condition:   d.ItemCondition.Name,
		Category:    d.ItemCategory.Name,
		Seller: domain.Seller{
			ID:         d.Seller.ID,
			Name:       d.Seller.Name,
			Good:       int(d.Seller.Ratings.Good),
			Normal:     int(d.Seller.Ratings.Normal),
			Bad:        int(d.Seller.Ratings.Bad),
			NumRatings: int(d.Seller.NumRatings),
		},
		NumLikes:    int(d.NumLikes),
		NumComments: int(d.NumComments),
		Created:     epoch(d.Created),
		Updated:     epoch(d.Updated),
	}
	for _, p := range d.Photos {
		detail.Photos = append(detail.Photos, p.URI)
	}
	if len(detail.Photos) == 0 {
		detail.Photos = d.Thumbnails
	}
	return detail
}

func epoch(n mercari.Int) time.Time {
	if n <= 0 {
		return time.Time{}
	}
	return time.Unix(int64(n), 0)
}
