package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/merchantbot/merchantbot/internal/biz/domain"
	"github.com/merchantbot/merchantbot/internal/biz/usecase"
)

// Version is reported to MCP clients
const Version = "v1.0.0"

// Server provides MCP tools over the query store and the Mercari client
type Server struct {
	server   *mcp.Server
	queryUC  *usecase.QueryUsecase
	searchUC *usecase.SearchUsecase
	userID   string // Owner of the queries managed through this server
}

// NewServer creates a new MCP server acting on behalf of userID
func NewServer(queryUC *usecase.QueryUsecase, searchUC *usecase.SearchUsecase, userID string) *Server {
	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "merchantbot",
			Version: Version,
		}, nil),
		queryUC:  queryUC,
		searchUC: searchUC,
		userID:   userID,
	}
	s.registerTools()
	return s
}

// Run serves the tools over stdio until the client disconnects or ctx is done
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "mercari_search",
		Description: "Search Mercari listings. Returns one page of items and a token for the next page.",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "mercari_get_item",
		Description: "Get the full detail of one Mercari item by its id (for example m13270631255).",
	}, s.handleGetItem)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_queries",
		Description: "List the saved search queries and whether each one is tracked.",
	}, s.handleListQueries)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "create_query",
		Description: "Save a search query. Tracked queries are polled periodically and new items are sent by DM.",
	}, s.handleCreateQuery)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "delete_query",
		Description: "Delete a saved search query by name.",
	}, s.handleDeleteQuery)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "set_query_tracking",
		Description: "Enable or disable tracking of a saved search query.",
	}, s.handleSetTracking)
}

// searchFields is the search definition shared by mercari_search and create_query
type searchFields struct {
	keyword, exclude string
	priceMin         int
	priceMax         int
	sort, order      string
	usedOnly         bool
}

func (f searchFields) params() domain.SearchParams {
	p := domain.SearchParams{
		Keyword:        f.keyword,
		ExcludeKeyword: f.exclude,
		PriceMin:       f.priceMin,
		PriceMax:       f.priceMax,
		Sort:           domain.SortKey(f.sort),
		Order:          domain.SortOrder(f.order),
	}
	if f.usedOnly {
		p.ItemConditions = domain.UsedConditions
	}
	return p
}

// SearchInput is the input for mercari_search
type SearchInput struct {
	Keyword        string `json:"keyword" jsonschema:"Search keyword"`
	ExcludeKeyword string `json:"exclude_keyword,omitempty" jsonschema:"Exclude items containing this keyword"`
	PriceMin       int    `json:"price_min,omitempty" jsonschema:"Minimum price in yen, 0 for no bound"`
	PriceMax       int    `json:"price_max,omitempty" jsonschema:"Maximum price in yen, 0 for no bound"`
	Sort           string `json:"sort,omitempty" jsonschema:"SORT_CREATED_TIME, SORT_PRICE, SORT_NUM_LIKES or SORT_SCORE"`
	Order          string `json:"order,omitempty" jsonschema:"ORDER_DESC or ORDER_ASC"`
	UsedOnly       bool   `json:"used_only,omitempty" jsonschema:"Only return used items"`
	CreatedAfter   int64  `json:"created_after,omitempty" jsonschema:"Only items created after this epoch second"`
	PageSize       int    `json:"page_size,omitempty" jsonschema:"Number of items per page (default 120)"`
	PageToken      string `json:"page_token,omitempty" jsonschema:"Token of the page to fetch, from a previous response"`
}

func (in SearchInput) fields() searchFields {
	return searchFields{in.Keyword, in.ExcludeKeyword, in.PriceMin, in.PriceMax, in.Sort, in.Order, in.UsedOnly}
}

// ListingOutput is one listing in tool output
type ListingOutput struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Status    string `json:"status"`
	Condition string `json:"condition"`
	URL       string `json:"url"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Created   string `json:"created"`
	Updated   string `json:"updated"`
}

// SearchOutput is the output for mercari_search
type SearchOutput struct {
	Items         []ListingOutput `json:"items"`
	NumFound      int             `json:"num_found"`
	NextPageToken string          `json:"next_page_token,omitempty"`
	Error         string          `json:"error,omitempty"`
}

func (s *Server) handleSearch(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	params := input.fields().params()
	if input.CreatedAfter > 0 {
		params = params.WithCreatedAfter(input.CreatedAfter)
	}

	result, err := s.searchUC.Search(ctx, params, domain.PageRequest{Size: input.PageSize, Token: input.PageToken})
	if err != nil {
		return nil, SearchOutput{Error: err.Error()}, nil
	}

	items := make([]ListingOutput, 0, len(result.Items))
	for i := range result.Items {
		items = append(items, listingOutput(&result.Items[i]))
	}
	return nil, SearchOutput{
		Items:         items,
		NumFound:      result.Meta.NumFound,
		NextPageToken: result.Meta.NextPageToken,
	}, nil
}

// GetItemInput is the input for mercari_get_item
type GetItemInput struct {
	ItemID    string `json:"item_id" jsonschema:"The id of the item, for example m13270631255"`
	Translate bool   `json:"translate,omitempty" jsonschema:"Also return an English translation of name and description"`
}

// GetItemOutput is the output for mercari_get_item
type GetItemOutput struct {
	ID                    string   `json:"id,omitempty"`
	Name                  string   `json:"name,omitempty"`
	TranslatedName        string   `json:"translated_name,omitempty"`
	Price                 int64    `json:"price,omitempty"`
	Status                string   `json:"status,omitempty"`
	Condition             string   `json:"condition,omitempty"`
	Category              string   `json:"category,omitempty"`
	Description           string   `json:"description,omitempty"`
	TranslatedDescription string   `json:"translated_description,omitempty"`
	SellerName            string   `json:"seller_name,omitempty"`
	SellerRatings         int      `json:"seller_ratings,omitempty"`
	Likes                 int      `json:"likes,omitempty"`
	Photos                []string `json:"photos,omitempty"`
	URL                   string   `json:"url,omitempty"`
	Error                 string   `json:"error,omitempty"`
}

func (s *Server) handleGetItem(ctx context.Context, req *mcp.CallToolRequest, input GetItemInput) (*mcp.CallToolResult, GetItemOutput, error) {
	item, err := s.searchUC.GetItem(ctx, input.ItemID, input.Translate)
	if err != nil {
		return nil, GetItemOutput{Error: err.Error()}, nil
	}

	return nil, GetItemOutput{
		ID:                    item.ID,
		Name:                  item.Name,
		TranslatedName:        item.TranslatedName,
		Price:                 item.Price,
		Status:                item.Status,
		Condition:             item.Condition,
		Category:              item.Category,
		Description:           item.Description,
		TranslatedDescription: item.TranslatedDescription,
		SellerName:            item.Seller.Name,
		SellerRatings:         item.Seller.NumRatings,
		Likes:                 item.NumLikes,
		Photos:                item.Photos,
		URL:                   item.URL(),
	}, nil
}

// ListQueriesInput is empty - no input needed
type ListQueriesInput struct{}

// QueryOutput is one saved query in tool output
type QueryOutput struct {
	Name           string `json:"name"`
	Keyword        string `json:"keyword"`
	ExcludeKeyword string `json:"exclude_keyword,omitempty"`
	PriceMin       int    `json:"price_min,omitempty"`
	PriceMax       int    `json:"price_max,omitempty"`
	Tracked        bool   `json:"tracked"`
	LastRun        string `json:"last_run,omitempty"`
}

// ListQueriesOutput contains the saved queries
type ListQueriesOutput struct {
	Queries []QueryOutput `json:"queries"`
	Error   string        `json:"error,omitempty"`
}

func (s *Server) handleListQueries(ctx context.Context, req *mcp.CallToolRequest, input ListQueriesInput) (*mcp.CallToolResult, ListQueriesOutput, error) {
	queries, err := s.queryUC.List(ctx, s.userID)
	if err != nil {
		return nil, ListQueriesOutput{Error: err.Error()}, nil
	}

	out := make([]QueryOutput, 0, len(queries))
	for _, q := range queries {
		out = append(out, queryOutput(q))
	}
	return nil, ListQueriesOutput{Queries: out}, nil
}

// CreateQueryInput is the input for create_query
type CreateQueryInput struct {
	Name           string `json:"name" jsonschema:"Name of the query, unique per user"`
	Keyword        string `json:"keyword" jsonschema:"Search keyword"`
	ExcludeKeyword string `json:"exclude_keyword,omitempty" jsonschema:"Exclude items containing this keyword"`
	PriceMin       int    `json:"price_min,omitempty" jsonschema:"Minimum price in yen, 0 for no bound"`
	PriceMax       int    `json:"price_max,omitempty" jsonschema:"Maximum price in yen, 0 for no bound"`
	Sort           string `json:"sort,omitempty" jsonschema:"SORT_CREATED_TIME, SORT_PRICE, SORT_NUM_LIKES or SORT_SCORE"`
	Order          string `json:"order,omitempty" jsonschema:"ORDER_DESC or ORDER_ASC"`
	UsedOnly       bool   `json:"used_only,omitempty" jsonschema:"Only return used items"`
	Track          bool   `json:"track,omitempty" jsonschema:"Poll the query and send new items by DM"`
}

func (in CreateQueryInput) fields() searchFields {
	return searchFields{in.Keyword, in.ExcludeKeyword, in.PriceMin, in.PriceMax, in.Sort, in.Order, in.UsedOnly}
}

// QueryResultOutput is the output of the tools that change one query
type QueryResultOutput struct {
	Success bool         `json:"success"`
	Query   *QueryOutput `json:"query,omitempty"`
	Error   string       `json:"error,omitempty"`
}

func (s *Server) handleCreateQuery(ctx context.Context, req *mcp.CallToolRequest, input CreateQueryInput) (*mcp.CallToolResult, QueryResultOutput, error) {
	q, err := s.queryUC.Create(ctx, s.userID, input.Name, input.fields().params(), input.Track)
	if err != nil {
		return nil, QueryResultOutput{Success: false, Error: toolError(err)}, nil
	}
	out := queryOutput(q)
	return nil, QueryResultOutput{Success: true, Query: &out}, nil
}

// DeleteQueryInput is the input for delete_query
type DeleteQueryInput struct {
	Name string `json:"name" jsonschema:"Name of the query to delete"`
}

func (s *Server) handleDeleteQuery(ctx context.Context, req *mcp.CallToolRequest, input DeleteQueryInput) (*mcp.CallToolResult, QueryResultOutput, error) {
	q, err := s.queryUC.Delete(ctx, s.userID, input.Name)
	if err != nil {
		return nil, QueryResultOutput{Success: false, Error: toolError(err)}, nil
	}
	out := queryOutput(q)
	return nil, QueryResultOutput{Success: true, Query: &out}, nil
}

// SetTrackingInput is the input for set_query_tracking
type SetTrackingInput struct {
	Name    string `json:"name" jsonschema:"Name of the query"`
	Enabled bool   `json:"enabled" jsonschema:"Whether new items should be sent by DM"`
}

func (s *Server) handleSetTracking(ctx context.Context, req *mcp.CallToolRequest, input SetTrackingInput) (*mcp.CallToolResult, QueryResultOutput, error) {
	q, err := s.queryUC.SetTracked(ctx, s.userID, input.Name, input.Enabled)
	if err != nil {
		return nil, QueryResultOutput{Success: false, Error: toolError(err)}, nil
	}
	out := queryOutput(q)
	return nil, QueryResultOutput{Success: true, Query: &out}, nil
}

// toolError adds the quota hint callers need to recover
func toolError(err error) string {
	if errors.Is(err, domain.ErrQuotaExceeded) {
		return err.Error() + ": delete a query first"
	}
	return err.Error()
}

func listingOutput(l *domain.Listing) ListingOutput {
	return ListingOutput{
		ID:        l.ID,
		Name:      l.Name,
		Price:     l.Price,
		Status:    l.Status,
		Condition: l.ConditionID.String(),
		URL:       l.URL(),
		Thumbnail: l.Thumbnail(),
		Created:   l.Created.UTC().Format(time.RFC3339),
		Updated:   l.Updated.UTC().Format(time.RFC3339),
	}
}

func queryOutput(q *domain.TrackedQuery) QueryOutput {
	out := QueryOutput{
		Name:           q.Name,
		Keyword:        q.Params.Keyword,
		ExcludeKeyword: q.Params.ExcludeKeyword,
		PriceMin:       q.Params.PriceMin,
		PriceMax:       q.Params.PriceMax,
		Tracked:        q.IsTracked,
	}
	if !q.LastRun.IsZero() {
		out.LastRun = q.LastRun.UTC().Format(time.RFC3339)
	}
	return out
}
