package domain

import (
	"errors"
	"testing"
)

func TestSearchParams_WithDefaults(t *testing.T) {
	p := SearchParams{Keyword: "  wacom  "}.WithDefaults()

	if p.Keyword != "wacom" {
		t.Errorf("Expected trimmed keyword, got %q", p.Keyword)
	}
	if p.Sort != SortCreatedTime {
		t.Errorf("Expected default sort %s, got %s", SortCreatedTime, p.Sort)
	}
	if p.Order != OrderDesc {
		t.Errorf("Expected default order %s, got %s", OrderDesc, p.Order)
	}
	if p.PriceMin != 0 || p.PriceMax != 0 {
		t.Errorf("Expected unbounded prices, got %d-%d", p.PriceMin, p.PriceMax)
	}
	if p.CreatedAfter != Unbounded || p.CreatedBefore != Unbounded {
		t.Errorf("Expected unbounded dates, got %q-%q", p.CreatedAfter, p.CreatedBefore)
	}
	if len(p.ItemConditions) != 0 {
		t.Errorf("Expected no condition filter, got %v", p.ItemConditions)
	}
}

func TestSearchParams_WithDefaults_KeepsExplicitValues(t *testing.T) {
	in := SearchParams{
		Keyword:        "tablet",
		Sort:           SortPrice,
		Order:          OrderAsc,
		PriceMin:       300,
		PriceMax:       5000,
		ItemConditions: []ItemCondition{ConditionNew},
	}
	p := in.WithDefaults()

	if p.Sort != SortPrice || p.Order != OrderAsc {
		t.Errorf("Expected explicit sort/order to be kept, got %s/%s", p.Sort, p.Order)
	}
	if p.PriceMin != 300 || p.PriceMax != 5000 {
		t.Errorf("Expected explicit prices to be kept, got %d-%d", p.PriceMin, p.PriceMax)
	}

	// The copy must not alias the input slice
	p.ItemConditions[0] = ConditionBad
	if in.ItemConditions[0] != ConditionNew {
		t.Error("Expected WithDefaults to copy ItemConditions")
	}
}

func TestSearchParams_Validate(t *testing.T) {
	cases := []struct {
		name   string
		params SearchParams
		field  string
	}{
		{"empty keyword", SearchParams{Keyword: "   "}, "keyword"},
		{"negative min", SearchParams{Keyword: "a", PriceMin: -1}, "price_min"},
		{"negative max", SearchParams{Keyword: "a", PriceMax: -1}, "price_max"},
		{"min above max", SearchParams{Keyword: "a", PriceMin: 5000, PriceMax: 300}, "price_min"},
		{"unknown sort", SearchParams{Keyword: "a", Sort: "SORT_RANDOM"}, "sort"},
		{"unknown order", SearchParams{Keyword: "a", Order: "SIDEWAYS"}, "order"},
		{"unknown condition", SearchParams{Keyword: "a", ItemConditions: []ItemCondition{7}}, "item_condition"},
		{"bad date", SearchParams{Keyword: "a", CreatedAfter: "yesterday"}, "created_after"},
		{"inverted dates", SearchParams{Keyword: "a", CreatedAfter: "200", CreatedBefore: "100"}, "created_after"},
	}

	for _, c := range cases {
		err := c.params.Validate()
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("%s: expected ValidationError, got %v", c.name, err)
			continue
		}
		if verr.Field != c.field {
			t.Errorf("%s: expected field %s, got %s", c.name, c.field, verr.Field)
		}
	}
}

func TestSearchParams_Validate_Accepts(t *testing.T) {
	valid := []SearchParams{
		{Keyword: "wacom"},
		{Keyword: "wacom", PriceMin: 300},                // max unbounded
		{Keyword: "wacom", PriceMin: 300, PriceMax: 300}, // equal bounds
		{Keyword: "wacom", PriceMin: 500, PriceMax: 0},   // zero max is no bound, not a max below min
		{Keyword: "wacom", CreatedAfter: "100", CreatedBefore: "0"},
		{Keyword: "wacom", ItemConditions: UsedConditions},
	}
	for _, p := range valid {
		if err := p.Validate(); err != nil {
			t.Errorf("Expected %+v to be valid, got %v", p, err)
		}
	}
}

func TestSearchParams_WithCreatedAfter(t *testing.T) {
	p := SearchParams{Keyword: "a", CreatedAfter: Unbounded}.WithCreatedAfter(1000)
	if p.CreatedAfter != "1000" {
		t.Errorf("Expected lower bound 1000, got %s", p.CreatedAfter)
	}

	// A later stored bound wins
	p = SearchParams{Keyword: "a", CreatedAfter: "5000"}.WithCreatedAfter(1000)
	if p.CreatedAfter != "5000" {
		t.Errorf("Expected stored bound 5000 to be kept, got %s", p.CreatedAfter)
	}
}

func TestItemCondition_String(t *testing.T) {
	if ConditionAlmostNew.String() != "Almost New" {
		t.Errorf("Unexpected name %q", ConditionAlmostNew.String())
	}
	if ItemCondition(42).String() != "ID: 42" {
		t.Errorf("Unexpected name %q", ItemCondition(42).String())
	}
}
