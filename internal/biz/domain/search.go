package domain

import (
	"strconv"
	"strings"
)

// SortKey is the marketplace sort key
type SortKey string

const (
	SortDefault     SortKey = "SORT_DEFAULT"
	SortCreatedTime SortKey = "SORT_CREATED_TIME"
	SortNumLikes    SortKey = "SORT_NUM_LIKES"
	SortScore       SortKey = "SORT_SCORE"
	SortPrice       SortKey = "SORT_PRICE"
)

// SortOrder is the marketplace sort direction
type SortOrder string

const (
	OrderDesc SortOrder = "ORDER_DESC"
	OrderAsc  SortOrder = "ORDER_ASC"
)

// ItemCondition is the marketplace item condition id
type ItemCondition int

const (
	ConditionNew ItemCondition = iota + 1
	ConditionAlmostNew
	ConditionNoScratches
	ConditionSmallScratches
	ConditionScratched
	ConditionBad
)

// UsedConditions are all conditions except brand new
var UsedConditions = []ItemCondition{
	ConditionAlmostNew,
	ConditionNoScratches,
	ConditionSmallScratches,
	ConditionScratched,
	ConditionBad,
}

var conditionNames = map[ItemCondition]string{
	ConditionNew:            "New",
	ConditionAlmostNew:      "Almost New",
	ConditionNoScratches:    "No Scratches",
	ConditionSmallScratches: "Small Scratches",
	ConditionScratched:      "Scratched",
	ConditionBad:            "Bad",
}

// String returns the display name of the condition
func (c ItemCondition) String() string {
	if name, ok := conditionNames[c]; ok {
		return name
	}
	return "ID: " + strconv.Itoa(int(c))
}

// Unbounded is the date bound value meaning "no bound"
const Unbounded = "0"

// DefaultPageSize is the page size used when the caller does not set one
const DefaultPageSize = 120

// SearchParams is a saved or ad hoc search definition
type SearchParams struct {
	Keyword        string          `json:"keyword"`
	ExcludeKeyword string          `json:"excludeKeyword,omitempty"`
	PriceMin       int             `json:"priceMin,omitempty"` // 0 = unbounded
	PriceMax       int             `json:"priceMax,omitempty"` // 0 = unbounded
	Sort           SortKey         `json:"sort,omitempty"`
	Order          SortOrder       `json:"order,omitempty"`
	ItemConditions []ItemCondition `json:"itemConditionId,omitempty"`
	CreatedAfter   string          `json:"createdAfterDate,omitempty"`  // epoch seconds, "0" = unbounded
	CreatedBefore  string          `json:"createdBeforeDate,omitempty"` // epoch seconds, "0" = unbounded
	CategoryIDs    []int           `json:"categoryId,omitempty"`
}

// PageRequest drives explicit paging through opaque tokens
type PageRequest struct {
	Size  int
	Token string
}

// WithDefaults returns a copy with every unspecified field set to its default.
//
// Defaults: sort by created time, descending; price bounds unbounded (0);
// no condition restriction; date bounds "0".
func (p SearchParams) WithDefaults() SearchParams {
	out := p
	out.Keyword = strings.TrimSpace(p.Keyword)
	out.ExcludeKeyword = strings.TrimSpace(p.ExcludeKeyword)
	if out.Sort == "" {
		out.Sort = SortCreatedTime
	}
	if out.Order == "" {
		out.Order = OrderDesc
	}
	if out.CreatedAfter == "" {
		out.CreatedAfter = Unbounded
	}
	if out.CreatedBefore == "" {
		out.CreatedBefore = Unbounded
	}
	if p.ItemConditions != nil {
		out.ItemConditions = append([]ItemCondition(nil), p.ItemConditions...)
	}
	if p.CategoryIDs != nil {
		out.CategoryIDs = append([]int(nil), p.CategoryIDs...)
	}
	return out
}

// Validate checks the params and returns a *ValidationError on the first problem
func (p SearchParams) Validate() error {
	if strings.TrimSpace(p.Keyword) == "" {
		return &ValidationError{Field: "keyword", Message: "must not be empty"}
	}
	if p.PriceMin < 0 {
		return &ValidationError{Field: "price_min", Message: "must not be negative"}
	}
	if p.PriceMax < 0 {
		return &ValidationError{Field: "price_max", Message: "must not be negative"}
	}
	if p.PriceMax > 0 && p.PriceMin > p.PriceMax {
		return &ValidationError{Field: "price_min", Message: "must not exceed price_max"}
	}

	switch p.Sort {
	case "", SortDefault, SortCreatedTime, SortNumLikes, SortScore, SortPrice:
	default:
		return &ValidationError{Field: "sort", Message: "unknown sort key " + string(p.Sort)}
	}
	switch p.Order {
	case "", OrderDesc, OrderAsc:
	default:
		return &ValidationError{Field: "order", Message: "unknown order " + string(p.Order)}
	}

	for _, c := range p.ItemConditions {
		if c < ConditionNew || c > ConditionBad {
			return &ValidationError{Field: "item_condition", Message: "unknown condition " + strconv.Itoa(int(c))}
		}
	}

	after, err := parseBound("created_after", p.CreatedAfter)
	if err != nil {
		return err
	}
	before, err := parseBound("created_before", p.CreatedBefore)
	if err != nil {
		return err
	}
	if after > 0 && before > 0 && after > before {
		return &ValidationError{Field: "created_after", Message: "must not be later than created_before"}
	}
	return nil
}

// WithCreatedAfter returns a copy whose lower creation bound is at least epoch
func (p SearchParams) WithCreatedAfter(epoch int64) SearchParams {
	out := p
	current, err := strconv.ParseInt(p.CreatedAfter, 10, 64)
	if err != nil || current < epoch {
		out.CreatedAfter = strconv.FormatInt(epoch, 10)
	}
	return out
}

func parseBound(field, v string) (int64, error) {
	if v == "" || v == Unbounded {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, &ValidationError{Field: field, Message: "must be an epoch-second timestamp"}
	}
	return n, nil
}
