package mercari

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// ErrEmptyItemID is returned when an item call is made without an id
var ErrEmptyItemID = errors.New("mercari: item id cannot be empty")

// ItemInfo is the subset of the item detail response the bot uses
type ItemInfo struct {
	Result string    `json:"result"`
	Data   *ItemData `json:"data"`
}

// ItemData is the detail payload of one item
type ItemData struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Price       Int      `json:"price"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Photos      []Photo  `json:"photos"`
	Thumbnails  []string `json:"thumbnails"`
	NumLikes    Int      `json:"num_likes"`
	NumComments Int      `json:"num_comments"`
	Created     Int      `json:"created"`
	Updated     Int      `json:"updated"`

	Seller struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Ratings struct {
			Good   Int `json:"good"`
			Normal Int `json:"normal"`
			Bad    Int `json:"bad"`
		} `json:"ratings"`
		NumRatings Int `json:"num_ratings"`
	} `json:"seller"`

	ItemCategory struct {
		ID   Int    `json:"id"`
		Name string `json:"name"`
	} `json:"item_category"`

	ItemCondition struct {
		ID   Int    `json:"id"`
		Name string `json:"name"`
	} `json:"item_condition"`
}

// Translation is the machine translation of an item
type Translation struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// GetItem fetches the detail of one item. An empty countryCode uses the client default.
func (c *Client) GetItem(ctx context.Context, id, countryCode string) (*ItemInfo, error) {
	if id == "" {
		return nil, ErrEmptyItemID
	}
	if countryCode == "" {
		countryCode = c.countryCode
	}

	params := url.Values{}
	params.Set("id", id)
	for _, flag := range []string{
		"include_item_attributes",
		"include_product_page_component",
		"include_non_ui_item_attributes",
		"include_donation",
		"include_offer_like_coupon_display",
		"include_offer_coupon_display",
		"include_item_attributes_sections",
		"include_auction",
	} {
		params.Set(flag, "true")
	}
	params.Set("country_code", countryCode)

	raw, err := c.Call(ctx, http.MethodGet, c.baseURL+itemInfoPath, params)
	if err != nil {
		return nil, err
	}

	var info ItemInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("failed to decode item response: %w", err)
	}
	return &info, nil
}

// GetTranslation fetches the translated name and description of one item
func (c *Client) GetTranslation(ctx context.Context, id string) (*Translation, error) {
	if id == "" {
		return nil, ErrEmptyItemID
	}

	params := map[string]string{
		"name":      id,
		"sessionId": c.SessionID(),
	}
	target := c.baseURL + translationPath + url.PathEscape(id) + "/translation"

	raw, err := c.Call(ctx, http.MethodGet, target, params)
	if err != nil {
		return nil, err
	}

	var tr Translation
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, fmt.Errorf("failed to decode translation response: %w", err)
	}
	return &tr, nil
}
