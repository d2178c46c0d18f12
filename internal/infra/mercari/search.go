package mercari

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
)

// StatusOnSale is the only listing status searched for
const StatusOnSale = "STATUS_ON_SALE"

// SearchCondition is the searchCondition object of a search request
type SearchCondition struct {
	Keyword                  string   `json:"keyword"`
	ExcludeKeyword           string   `json:"excludeKeyword"`
	Sort                     string   `json:"sort"`
	Order                    string   `json:"order"`
	Status                   []string `json:"status"`
	SizeID                   []string `json:"sizeId"`
	CategoryID               []int    `json:"categoryId"`
	BrandID                  []string `json:"brandId"`
	SellerID                 []string `json:"sellerId"`
	PriceMin                 int      `json:"priceMin"`
	PriceMax                 int      `json:"priceMax"`
	ItemConditionID          []int    `json:"itemConditionId"`
	ShippingPayerID          []int    `json:"shippingPayerId"`
	ShippingFromArea         []int    `json:"shippingFromArea"`
	ShippingMethod           []string `json:"shippingMethod"`
	ColorID                  []int    `json:"colorId"`
	HasCoupon                bool     `json:"hasCoupon"`
	Attributes               []any    `json:"attributes"`
	ItemTypes                []string `json:"itemTypes"`
	SkuIDs                   []string `json:"skuIds"`
	ShopIDs                  []string `json:"shopIds"`
	PromotionValidAt         *string  `json:"promotionValidAt"`
	ExcludeShippingMethodIDs []string `json:"excludeShippingMethodIds"`
	CreatedAfterDate         string   `json:"createdAfterDate"`
	CreatedBeforeDate        string   `json:"createdBeforeDate"`
}

// normalized fills defaults and replaces nil lists with empty ones,
// since the API expects [] rather than null.
func (s SearchCondition) normalized() SearchCondition {
	if s.Sort == "" {
		s.Sort = "SORT_CREATED_TIME"
	}
	if s.Order == "" {
		s.Order = "ORDER_DESC"
	}
	if len(s.Status) == 0 {
		s.Status = []string{StatusOnSale}
	}
	if s.CreatedAfterDate == "" {
		s.CreatedAfterDate = "0"
	}
	if s.CreatedBeforeDate == "" {
		s.CreatedBeforeDate = "0"
	}
	s.SizeID = emptyIfNil(s.SizeID)
	s.CategoryID = emptyIfNil(s.CategoryID)
	s.BrandID = emptyIfNil(s.BrandID)
	s.SellerID = emptyIfNil(s.SellerID)
	s.ItemConditionID = emptyIfNil(s.ItemConditionID)
	s.ShippingPayerID = emptyIfNil(s.ShippingPayerID)
	s.ShippingFromArea = emptyIfNil(s.ShippingFromArea)
	s.ShippingMethod = emptyIfNil(s.ShippingMethod)
	s.ColorID = emptyIfNil(s.ColorID)
	s.Attributes = emptyIfNil(s.Attributes)
	s.ItemTypes = emptyIfNil(s.ItemTypes)
	s.SkuIDs = emptyIfNil(s.SkuIDs)
	s.ShopIDs = emptyIfNil(s.ShopIDs)
	s.ExcludeShippingMethodIDs = emptyIfNil(s.ExcludeShippingMethodIDs)
	return s
}

func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// PageOptions selects one page of results
type PageOptions struct {
	Size  int    // 0 = DefaultPageSize
	Token string // Opaque token from a previous response
}

// DefaultPageSize is used when PageOptions.Size is 0
const DefaultPageSize = 120

type searchRequest struct {
	UserID                  string          `json:"userId"`
	PageSize                int             `json:"pageSize"`
	PageToken               string          `json:"pageToken"`
	SearchSessionID         string          `json:"searchSessionId"`
	LaplaceDeviceUUID       string          `json:"laplaceDeviceUuid"`
	IndexRouting            string          `json:"indexRouting"`
	ThumbnailTypes          []string        `json:"thumbnailTypes"`
	SearchCondition         SearchCondition `json:"searchCondition"`
	DefaultDatasets         []string        `json:"defaultDatasets"`
	ServiceFrom             string          `json:"serviceFrom"`
	Source                  string          `json:"source"`
	WithAuction             bool            `json:"withAuction"`
	WithItemBrand           bool            `json:"withItemBrand"`
	WithItemPromotions      bool            `json:"withItemPromotions"`
	UseDynamicAttribute     bool            `json:"useDynamicAttribute"`
	WithSuggestedItems      bool            `json:"withSuggestedItems"`
	WithOfferPricePromotion bool            `json:"withOfferPricePromotion"`
	WithProductSuggest      bool            `json:"withProductSuggest"`
	WithParentProducts      bool            `json:"withParentProducts"`
	WithProductArticles     bool            `json:"withProductArticles"`
	WithSearchConditionID   bool            `json:"withSearchConditionId"`
}

func newSearchRequest(sessionID string, cond SearchCondition, page PageOptions) searchRequest {
	size := page.Size
	if size <= 0 {
		size = DefaultPageSize
	}
	cond = cond.normalized()
	return searchRequest{
		PageSize:                size,
		PageToken:               page.Token,
		SearchSessionID:         sessionID,
		LaplaceDeviceUUID:       sessionID,
		IndexRouting:            "INDEX_ROUTING_UNSPECIFIED",
		ThumbnailTypes:          []string{},
		SearchCondition:         cond,
		DefaultDatasets:         []string{},
		ServiceFrom:             "suruga",
		Source:                  "BaseSerp",
		WithAuction:             true,
		WithItemBrand:           true,
		WithItemPromotions:      true,
		UseDynamicAttribute:     true,
		WithSuggestedItems:      true,
		WithOfferPricePromotion: true,
		WithProductSuggest:      true,
		WithParentProducts:      false,
		WithProductArticles:     true,
		WithSearchConditionID:   len(cond.ItemConditionID) > 0,
	}
}

// Int is a number the API sends either quoted or bare
type Int int64

func (n *Int) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("mercari: invalid number %q: %w", data, err)
	}
	*n = Int(v)
	return nil
}

// Photo is a listing photo reference
type Photo struct {
	URI string `json:"uri"`
}

// UnmarshalJSON accepts both {"uri": "..."} and a bare URL string
func (p *Photo) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &p.URI)
	}
	var obj struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	p.URI = obj.URI
	return nil
}

// SearchItem is one listing in a search response
type SearchItem struct {
	ID              string   `json:"id"`
	SellerID        string   `json:"sellerId"`
	Status          string   `json:"status"`
	Name            string   `json:"name"`
	Price           Int      `json:"price"`
	Created         Int      `json:"created"`
	Updated         Int      `json:"updated"`
	Thumbnails      []string `json:"thumbnails"`
	ItemConditionID Int      `json:"itemConditionId"`
	ShopName        string   `json:"shopName"`
	Photos          []Photo  `json:"photos"`
}

// SearchMeta carries the paging tokens of a response
type SearchMeta struct {
	NextPageToken     string `json:"nextPageToken"`
	PreviousPageToken string `json:"previousPageToken"`
	NumFound          Int    `json:"numFound"`
}

// SearchResponse is one page of search results
type SearchResponse struct {
	Items []SearchItem `json:"items"`
	Meta  SearchMeta   `json:"meta"`
}

// IsIndividualListing reports whether the id belongs to an individual seller
// listing. Shop listings use other prefixes.
func IsIndividualListing(id string) bool {
	return strings.HasPrefix(id, "m")
}

// Search runs one search page. Shop listings are dropped from the result.
func (c *Client) Search(ctx context.Context, cond SearchCondition, page PageOptions) (*SearchResponse, error) {
	reqBody := newSearchRequest(c.SessionID(), cond, page)

	raw, err := c.Call(ctx, http.MethodPost, c.baseURL+searchPath, reqBody)
	if err != nil {
		return nil, err
	}

	var resp SearchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	kept := resp.Items[:0]
	for _, item := range resp.Items {
		if IsIndividualListing(item.ID) {
			kept = append(kept, item)
		}
	}
	if dropped := len(resp.Items) - len(kept); dropped > 0 && c.debug {
		log.Printf("[Mercari] Search %q dropped %d shop listings", cond.Keyword, dropped)
	}
	resp.Items = kept

	return &resp, nil
}
