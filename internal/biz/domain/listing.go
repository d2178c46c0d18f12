package domain

import "time"

// ItemURLPrefix is the public product page prefix
const ItemURLPrefix = "https://jp.mercari.com/en/item/"

// Listing is a marketplace item snapshot returned by a search
type Listing struct {
	ID          string
	Name        string
	Price       int64
	Status      string
	SellerID    string
	ConditionID ItemCondition
	Created     time.Time
	Updated     time.Time
	Thumbnails  []string
	Photos      []string
}

// URL returns the public product page of the listing
func (l *Listing) URL() string {
	return ItemURLPrefix + l.ID
}

// Thumbnail returns the first thumbnail, or the first photo if there is none
func (l *Listing) Thumbnail() string {
	if len(l.Thumbnails) > 0 {
		return l.Thumbnails[0]
	}
	if len(l.Photos) > 0 {
		return l.Photos[0]
	}
	return ""
}

// UpdatedAfter reports whether the listing changed strictly after t, at second precision
func (l *Listing) UpdatedAfter(t time.Time) bool {
	return l.Updated.Unix() > t.Unix()
}

// NewSince keeps the listings updated strictly after since
func NewSince(items []Listing, since time.Time) []Listing {
	var fresh []Listing
	for _, item := range items {
		if item.UpdatedAfter(since) {
			fresh = append(fresh, item)
		}
	}
	return fresh
}

// SearchMeta carries the opaque paging tokens of a search response
type SearchMeta struct {
	NextPageToken     string
	PreviousPageToken string
	NumFound          int
}

// SearchResult is one page of search results
type SearchResult struct {
	Items []Listing
	Meta  SearchMeta
}

// Seller is the seller summary of an item detail
type Seller struct {
	ID         string
	Name       string
	Good       int
	Normal     int
	Bad        int
	NumRatings int
}

// ItemDetail is the full description of a single item
type ItemDetail struct {
	ID          string
	Name        string
	Price       int64
	Description string
	Status      string
	Condition   string
	Category    string
	Seller      Seller
	Photos      []string
	NumLikes    int
	NumComments int
	Created     time.Time
	Updated     time.Time

	// Filled only when a translation was requested
	TranslatedName        string
	TranslatedDescription string
}

// URL returns the public product page of the item
func (d *ItemDetail) URL() string {
	return ItemURLPrefix + d.ID
}
