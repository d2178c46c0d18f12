package data

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/merchantbot/merchantbot/internal/biz/domain"
	"github.com/merchantbot/merchantbot/internal/infra/mercari"
)

func TestToSearchCondition(t *testing.T) {
	p := domain.SearchParams{
		Keyword:        "wacom",
		PriceMin:       300,
		PriceMax:       9999999,
		ItemConditions: []domain.ItemCondition{domain.ConditionNew, domain.ConditionBad},
		CategoryIDs:    []int{7},
	}.WithDefaults()

	cond := toSearchCondition(p)

	if cond.Keyword != "wacom" || cond.PriceMin != 300 || cond.PriceMax != 9999999 {
		t.Errorf("Unexpected condition %+v", cond)
	}
	if cond.Sort != "SORT_CREATED_TIME" || cond.Order != "ORDER_DESC" {
		t.Errorf("Unexpected sort %s %s", cond.Sort, cond.Order)
	}
	if len(cond.ItemConditionID) != 2 || cond.ItemConditionID[1] != 6 {
		t.Errorf("Unexpected conditions %v", cond.ItemConditionID)
	}
	if cond.CreatedAfterDate != "0" || cond.CreatedBeforeDate != "0" {
		t.Errorf("Unexpected date bounds %s %s", cond.CreatedAfterDate, cond.CreatedBeforeDate)
	}
}

func TestToListing(t *testing.T) {
	item := mercari.SearchItem{
		ID:              "m1",
		Name:            "tablet",
		Price:           4500,
		Created:         1_700_000_000,
		Updated:         1_700_000_100,
		ItemConditionID: 3,
		Photos:          []mercari.Photo{{URI: "https://p/1.jpg"}},
	}

	l := toListing(item)

	if l.Price != 4500 || l.ConditionID != domain.ConditionNoScratches {
		t.Errorf("Unexpected listing %+v", l)
	}
	if !l.Updated.Equal(time.Unix(1_700_000_100, 0)) {
		t.Errorf("Unexpected updated %v", l.Updated)
	}
	if l.Thumbnail() != "https://p/1.jpg" {
		t.Errorf("Expected photo as thumbnail, got %q", l.Thumbnail())
	}

	// A missing timestamp never counts as new
	bare := toListing(mercari.SearchItem{ID: "m2"})
	if bare.UpdatedAfter(time.Unix(0, 0)) {
		t.Error("Expected listing without timestamp not to be new")
	}
}

func TestMercariRepo_GetItemNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"code":5,"message":"not found"}`))
	}))
	defer srv.Close()

	client, err := mercari.NewClient(mercari.Config{BaseURL: srv.URL, RequestsPerMinute: 60000})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	r := NewMercariRepo(client)

	if _, err := r.GetItem(context.Background(), "m404", true); !errors.Is(err, domain.ErrItemNotFound) {
		t.Errorf("Expected ErrItemNotFound, got %v", err)
	}
}

func TestMercariRepo_GetItemWithTranslation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/items/get" {
			w.Write([]byte(`{"result":"OK","data":{"id":"m1","name":"タブレット","price":4500,
				"item_condition":{"id":2,"name":"目立った傷や汚れなし"},"seller":{"id":"9","ratings":{"good":3}}}}`))
			return
		}
		w.Write([]byte(`{"name":"Tablet","description":"Good"}`))
	}))
	defer srv.Close()

	client, _ := mercari.NewClient(mercari.Config{BaseURL: srv.URL, RequestsPerMinute: 60000})
	detail, err := NewMercariRepo(client).GetItem(context.Background(), "m1", true)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if detail.TranslatedName != "Tablet" || detail.Name != "タブレット" {
		t.Errorf("Unexpected names %q / %q", detail.Name, detail.TranslatedName)
	}
	if detail.Seller.Good != 3 || detail.Price != 4500 {
		t.Errorf("Unexpected detail %+v", detail)
	}
}
