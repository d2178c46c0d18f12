package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/merchantbot/merchantbot/internal/biz/domain"
	"github.com/merchantbot/merchantbot/internal/biz/usecase"
)

// Ad hoc search defaults of the /search command
const (
	SearchDefaultPriceMin = 300
	SearchDefaultPriceMax = 9999999
	SearchCreatedWithin   = 10 * 24 * time.Hour
	SearchResultLimit     = 5
)

const (
	colorInfo    = 0x0099ff
	colorSuccess = 0x00ff00
	colorError   = 0xff0000
)

var errMarketplace = errors.New("marketplace request failed")

// ReplyTexts contains command reply texts
type ReplyTexts struct {
	NoResults         string
	SearchHeader      string // {{keyword}}
	QueryCreated      string // {{name}}
	QueryDeleted      string // {{name}}
	TrackingEnabled   string // {{name}}
	TrackingDisabled  string // {{name}}
	NoQueries         string
	NoTrackedQueries  string
	CheckCompleted    string // {{checked}} {{notified}}
	CheckBusy         string
	PermissionDenied  string
	QuotaExceeded     string
	DuplicateName     string
	DuplicateKeyword  string
	QueryNotFound     string
	ItemNotFound      string
	InvalidInput      string // {{detail}}
	MarketplaceFailed string
	Generic           string
}

// DefaultReplyTexts is the default reply texts
var DefaultReplyTexts = ReplyTexts{
	NoResults:         "Did not find any item",
	SearchHeader:      `Search results for "{{keyword}}"`,
	QueryCreated:      "✅ Query **{{name}}** saved.",
	QueryDeleted:      "🗑️ Query **{{name}}** deleted.",
	TrackingEnabled:   "🔔 Tracking enabled for **{{name}}**.",
	TrackingDisabled:  "🔕 Tracking disabled for **{{name}}**.",
	NoQueries:         "You have no saved queries. Use `/create-query` to create one.",
	NoTrackedQueries:  "You don't have any tracked queries. Use `/track-query` to enable tracking for your queries.",
	CheckCompleted:    "✅ Manual check completed: {{checked}} queries checked, {{notified}} with new items. You should have received DMs for any new items found.",
	CheckBusy:         "⚠️ A check is already running. Please try again in a moment.",
	PermissionDenied:  "You do not have permission to use this command.",
	QuotaExceeded:     "You already have the maximum number of saved queries. Delete one first.",
	DuplicateName:     "You already have a query with this name.",
	DuplicateKeyword:  "You already have a query with this keyword.",
	QueryNotFound:     "Query not found.",
	ItemNotFound:      "Item not found (it may have been deleted or is no longer available).",
	InvalidInput:      "Invalid input: {{detail}}",
	MarketplaceFailed: "Something went wrong while contacting Mercari. Please try again later.",
	Generic:           "Something went wrong. Please try again later.",
}

// CommandConfig contains command layer settings
type CommandConfig struct {
	Replies   ReplyTexts
	ItemColor int
	AdminIDs  []string // Users allowed to run /cron-status
}

// SearchRequest is the input of /search, /create-query and the search tool.
// Nil prices use the command defaults.
type SearchRequest struct {
	Keyword        string
	ExcludeKeyword string
	PriceMin       *int
	PriceMax       *int
	Sort           string
	Order          string
	UsedOnly       bool
}

// CommandService implements the chat commands on top of the usecases.
// Every handler returns the notice to reply with; errors are turned into
// short texts with UserMessage.
type CommandService struct {
	queryUC  *usecase.QueryUsecase
	searchUC *usecase.SearchUsecase
	tracker  *TrackerService
	config   CommandConfig
	admins   map[string]bool
	now      func() time.Time
}

// NewCommandService creates a new command service
func NewCommandService(queryUC *usecase.QueryUsecase, searchUC *usecase.SearchUsecase, tracker *TrackerService, config CommandConfig) *CommandService {
	if config.ItemColor == 0 {
		config.ItemColor = colorInfo
	}
	admins := make(map[string]bool, len(config.AdminIDs))
	for _, id := range config.AdminIDs {
		admins[id] = true
	}
	return &CommandService{
		queryUC:  queryUC,
		searchUC: searchUC,
		tracker:  tracker,
		config:   config,
		admins:   admins,
		now:      time.Now,
	}
}

// IsAdmin reports whether the user may run admin commands
func (s *CommandService) IsAdmin(userID string) bool {
	return s.admins[userID]
}

// Search runs an ad hoc search over the last days of listings
func (s *CommandService) Search(ctx context.Context, req SearchRequest) (*domain.Notice, error) {
	params := req.toParams(SearchDefaultPriceMin, SearchDefaultPriceMax)
	params.CreatedAfter = strconv.FormatInt(s.now().Add(-SearchCreatedWithin).Unix(), 10)
	return s.runSearch(ctx, params)
}

// RunQuery runs a saved query as an ad hoc search
func (s *CommandService) RunQuery(ctx context.Context, userID, name string) (*domain.Notice, error) {
	q, err := s.queryUC.FindByName(ctx, userID, name)
	if err != nil {
		return nil, err
	}
	return s.runSearch(ctx, q.Params)
}

func (s *CommandService) runSearch(ctx context.Context, params domain.SearchParams) (*domain.Notice, error) {
	result, err := s.searchUC.Search(ctx, params, domain.PageRequest{Size: SearchResultLimit})
	if err != nil {
		return nil, marketplaceError(err)
	}

	r := s.config.Replies
	if len(result.Items) == 0 {
		return &domain.Notice{Content: r.NoResults}, nil
	}

	notice := &domain.Notice{
		Content: usecase.Render(r.SearchHeader, map[string]string{"keyword": strings.TrimSpace(params.Keyword)}),
	}
	for i := range result.Items {
		if i == SearchResultLimit {
			break
		}
		notice.Embeds = append(notice.Embeds, usecase.ListingEmbed(&result.Items[i], s.config.ItemColor))
	}
	return notice, nil
}

// CreateQuery saves a new query for the user
func (s *CommandService) CreateQuery(ctx context.Context, userID, name string, req SearchRequest, track bool) (*domain.Notice, error) {
	q, err := s.queryUC.Create(ctx, userID, name, req.toParams(0, 0), track)
	if err != nil {
		return nil, err
	}

	embed := domain.Embed{
		Title:       q.Name,
		Description: usecase.ParamsSummary(q.Params),
		Color:       colorSuccess,
		Timestamp:   q.CreatedAt,
	}
	embed.AddField("Tracked", trackedMark(q.IsTracked), true)
	return &domain.Notice{
		Content: usecase.Render(s.config.Replies.QueryCreated, map[string]string{"name": q.Name}),
		Embeds:  []domain.Embed{embed},
	}, nil
}

// ListQueries lists the user's saved queries
func (s *CommandService) ListQueries(ctx context.Context, userID string) (*domain.Notice, error) {
	queries, err := s.queryUC.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(queries) == 0 {
		return &domain.Notice{Content: s.config.Replies.NoQueries}, nil
	}

	embed := domain.Embed{
		Title:       "Your Saved Queries",
		Description: "Use `/run-query`, `/track-query` and `/delete-query` with a query name to manage your queries.",
		Color:       colorInfo,
	}
	for _, q := range queries {
		value := usecase.ParamsSummary(q.Params)
		value += "\n**Tracked:** " + trackedMark(q.IsTracked)
		if q.IsTracked && !q.LastRun.IsZero() {
			value += fmt.Sprintf("\n**Last checked:** <t:%d:R>", q.LastRun.Unix())
		}
		embed.AddField(q.Name, value, false)
	}
	return &domain.Notice{Embeds: []domain.Embed{embed}}, nil
}

// QueryNames lists the user's query names starting with prefix, case-insensitively
func (s *CommandService) QueryNames(ctx context.Context, userID, prefix string) ([]string, error) {
	queries, err := s.queryUC.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	var names []string
	for _, q := range queries {
		if strings.HasPrefix(strings.ToLower(q.Name), prefix) {
			names = append(names, q.Name)
		}
	}
	return names, nil
}

// TrackQuery enables or disables tracking of a query
func (s *CommandService) TrackQuery(ctx context.Context, userID, name string, tracked bool) (*domain.Notice, error) {
	q, err := s.queryUC.SetTracked(ctx, userID, name, tracked)
	if err != nil {
		return nil, err
	}
	template := s.config.Replies.TrackingDisabled
	if q.IsTracked {
		template = s.config.Replies.TrackingEnabled
	}
	return &domain.Notice{Content: usecase.Render(template, map[string]string{"name": q.Name})}, nil
}

// DeleteQuery deletes a query
func (s *CommandService) DeleteQuery(ctx context.Context, userID, name string) (*domain.Notice, error) {
	q, err := s.queryUC.Delete(ctx, userID, name)
	if err != nil {
		return nil, err
	}
	return &domain.Notice{Content: usecase.Render(s.config.Replies.QueryDeleted, map[string]string{"name": q.Name})}, nil
}

// CheckTracked runs the user's tracked queries now; new items arrive by DM
func (s *CommandService) CheckTracked(ctx context.Context, userID string) (*domain.Notice, error) {
	r := s.config.Replies

	tracked, err := s.queryUC.ListTracked(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(tracked) == 0 {
		return &domain.Notice{Content: r.NoTrackedQueries}, nil
	}

	report, err := s.tracker.CheckUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	embed := domain.Embed{
		Title:     "🔍 Manual Query Check",
		Color:     colorInfo,
		Timestamp: report.StartedAt,
		Footer:    fmt.Sprintf("Checked in %v", report.Duration.Round(time.Millisecond)),
	}
	for _, o := range report.Outcomes {
		embed.AddField(o.Name, outcomeText(o), true)
	}
	return &domain.Notice{
		Content: usecase.Render(r.CheckCompleted, map[string]string{
			"checked":  strconv.Itoa(len(report.Outcomes)),
			"notified": strconv.Itoa(report.Count(StatusNotified)),
		}),
		Embeds: []domain.Embed{embed},
	}, nil
}

// Item shows the detail of one item, translated
func (s *CommandService) Item(ctx context.Context, itemID string) (*domain.Notice, error) {
	item, err := s.searchUC.GetItem(ctx, itemID, true)
	if err != nil {
		return nil, marketplaceError(err)
	}

	name := item.Name
	if item.TranslatedName != "" {
		name = item.TranslatedName
	}
	description := item.Description
	if item.TranslatedDescription != "" {
		description = item.TranslatedDescription
	}

	overview := domain.Embed{
		Title: truncateRunes(name, 100),
		URL:   item.URL(),
		Color: s.config.ItemColor,
	}
	if len(item.Photos) > 0 {
		overview.Thumbnail = item.Photos[0]
	}
	seller := item.Seller
	overview.AddField("id", item.ID, true)
	overview.AddField("price", usecase.FormatYen(item.Price), true)
	overview.AddField("​", "​", false)
	overview.AddField("created", fmt.Sprintf("<t:%d:R>", item.Created.Unix()), true)
	overview.AddField("updated", fmt.Sprintf("<t:%d:R>", item.Updated.Unix()), true)
	if item.Condition != "" {
		overview.AddField("condition", item.Condition, true)
	}
	overview.AddField("seller", fmt.Sprintf("%s | %d(%d👍%d👎)", seller.ID, seller.NumRatings, seller.Good, seller.Bad), false)

	details := domain.Embed{
		Title:       "Item description",
		Description: truncateRunes(description, 4096),
	}
	return &domain.Notice{Embeds: []domain.Embed{overview, details}}, nil
}

// CronStatus shows the tracker status to admins
func (s *CommandService) CronStatus(ctx context.Context, userID string) (*domain.Notice, error) {
	if !s.IsAdmin(userID) {
		return nil, domain.ErrPermissionDenied
	}

	status := s.tracker.Status()
	color := colorSuccess
	state := "✅ Scheduled"
	if !status.Scheduled {
		color = colorError
		state = "❌ Stopped"
	}
	if status.Running {
		state += " (cycle running)"
	}

	embed := domain.Embed{
		Title:       "🕒 Cron Job Service Status",
		Description: "Current status of the tracked queries notification service",
		Color:       color,
		Timestamp:   s.now(),
		Footer:      "Use /list-queries to manage your tracked queries",
	}
	embed.AddField("Status", state, true)
	embed.AddField("Interval", "Every "+status.Interval.String(), true)
	if !status.NextRun.IsZero() {
		embed.AddField("Next run", fmt.Sprintf("<t:%d:R>", status.NextRun.Unix()), true)
	}
	if report := status.LastReport; report != nil {
		embed.AddField("Last cycle", fmt.Sprintf("<t:%d:R> in %v", report.StartedAt.Unix(), report.Duration.Round(time.Millisecond)), false)
		embed.AddField("Last result", fmt.Sprintf(
			"%d queries: %d notified, %d without new items, %d failed, %d users removed",
			len(report.Outcomes),
			report.Count(StatusNotified),
			report.Count(StatusNoNewItems),
			report.Count(StatusSearchFailed)+report.Count(StatusDeliveryFailed)+report.Count(StatusResolveFailed),
			len(report.DeletedUsers),
		), false)
	}
	l := status.Limiter
	embed.AddField("Mercari requests", fmt.Sprintf("%d in flight, %d queued (max %d concurrent, %d/min)",
		l.InFlight, l.Queued, l.MaxConcurrent, l.RequestsPerMinute), false)

	return &domain.Notice{Embeds: []domain.Embed{embed}}, nil
}

// Ping replies with latency and build information
func (s *CommandService) Ping(apiLatency, gatewayLatency time.Duration) *domain.Notice {
	embed := domain.Embed{
		Title:     "🏓 Pong!",
		Color:     colorSuccess,
		Timestamp: s.now(),
	}
	embed.AddField("📡 API Latency", fmt.Sprintf("%dms", apiLatency.Milliseconds()), true)
	embed.AddField("🤖 Bot Latency", fmt.Sprintf("%dms", gatewayLatency.Milliseconds()), true)

	if revision, at, ok := buildRevision(); ok {
		embed.AddField("​", "​", true)
		embed.AddField("📝 Latest Commit", "`"+revision+"`", true)
		if !at.IsZero() {
			embed.AddField("📅 Commit Date", fmt.Sprintf("<t:%d:F>", at.Unix()), true)
		}
	}
	return &domain.Notice{Embeds: []domain.Embed{embed}}
}

// UserMessage turns a handler error into a short text for the user
func (s *CommandService) UserMessage(err error) string {
	r := s.config.Replies

	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return usecase.Render(r.InvalidInput, map[string]string{"detail": validationErr.Error()})
	case errors.Is(err, domain.ErrQuotaExceeded):
		return r.QuotaExceeded
	case errors.Is(err, domain.ErrDuplicateName):
		return r.DuplicateName
	case errors.Is(err, domain.ErrDuplicateKeyword):
		return r.DuplicateKeyword
	case errors.Is(err, domain.ErrQueryNotFound):
		return r.QueryNotFound
	case errors.Is(err, domain.ErrItemNotFound):
		return r.ItemNotFound
	case errors.Is(err, domain.ErrCycleRunning):
		return r.CheckBusy
	case errors.Is(err, domain.ErrPermissionDenied):
		return r.PermissionDenied
	case errors.Is(err, errMarketplace):
		return r.MarketplaceFailed
	default:
		log.Printf("[Command] Unexpected error: %v", err)
		return r.Generic
	}
}

func (req SearchRequest) toParams(defaultMin, defaultMax int) domain.SearchParams {
	params := domain.SearchParams{
		Keyword:        req.Keyword,
		ExcludeKeyword: req.ExcludeKeyword,
		PriceMin:       defaultMin,
		PriceMax:       defaultMax,
		Sort:           domain.SortKey(req.Sort),
		Order:          domain.SortOrder(req.Order),
	}
	if req.PriceMin != nil {
		params.PriceMin = *req.PriceMin
	}
	if req.PriceMax != nil {
		params.PriceMax = *req.PriceMax
	}
	if req.UsedOnly {
		params.ItemConditions = append([]domain.ItemCondition(nil), domain.UsedConditions...)
	}
	return params
}

// marketplaceError marks errors that did not come from input checks
func marketplaceError(err error) error {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) || errors.Is(err, domain.ErrItemNotFound) || errors.Is(err, domain.ErrQueryNotFound) {
		return err
	}
	return fmt.Errorf("%w: %w", errMarketplace, err)
}

func outcomeText(o QueryOutcome) string {
	switch o.Status {
	case StatusNotified:
		return fmt.Sprintf("🆕 %d new items", o.NewItems)
	case StatusNoNewItems:
		return "No new items"
	case StatusDeliveryFailed:
		return "⚠️ Could not send DM"
	default:
		return "⚠️ Check failed"
	}
}

func trackedMark(tracked bool) string {
	if tracked {
		return "✅"
	}
	return "❌"
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}

func buildRevision() (string, time.Time, bool) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", time.Time{}, false
	}
	var revision string
	var at time.Time
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.time":
			at, _ = time.Parse(time.RFC3339, setting.Value)
		}
	}
	if revision == "" {
		return "", time.Time{}, false
	}
	if len(revision) > 7 {
		revision = revision[:7]
	}
	return revision, at, true
}
