package usecase

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/merchantbot/merchantbot/internal/biz/domain"
	"github.com/merchantbot/merchantbot/internal/biz/repo"
)

// ItemsPerMessage is the number of listing embeds per detail message
const ItemsPerMessage = 5

// NotifyTemplates contains the notification texts
type NotifyTemplates struct {
	SummaryTitle       string // {{name}}
	SummaryDescription string // {{count}}
	ItemHint           string
	ParamsField        string
	SummaryColor       int
	ItemColor          int
}

// DefaultNotifyTemplates is the default notification texts
var DefaultNotifyTemplates = NotifyTemplates{
	SummaryTitle:       "🔔 Tracked Query: {{name}}",
	SummaryDescription: "🆕 Found {{count}} new items matching your tracked query!",
	ItemHint:           "Check item details with `/item <item_id>` command.",
	ParamsField:        "Search Parameters",
	SummaryColor:       0x00ff00,
	ItemColor:          0x0099ff,
}

// NotifyUsecase delivers new-listing notifications by direct message
type NotifyUsecase struct {
	messenger repo.Messenger
	templates NotifyTemplates
	now       func() time.Time
}

// NewNotifyUsecase creates a new notify usecase
func NewNotifyUsecase(messenger repo.Messenger, templates NotifyTemplates) *NotifyUsecase {
	return &NotifyUsecase{
		messenger: messenger,
		templates: templates,
		now:       time.Now,
	}
}

// Notify sends one summary message then the listings in batches of ItemsPerMessage.
// It stops at the first message that cannot be delivered on any path and
// returns an error wrapping ErrDeliveryFailed.
func (uc *NotifyUsecase) Notify(ctx context.Context, user *domain.User, q *domain.TrackedQuery, listings []domain.Listing) error {
	if len(listings) == 0 {
		return nil
	}

	if err := uc.deliver(ctx, user.ID, uc.summary(q, len(listings))); err != nil {
		return fmt.Errorf("summary for %q: %w", q.Name, err)
	}

	for start := 0; start < len(listings); start += ItemsPerMessage {
		end := min(start+ItemsPerMessage, len(listings))
		notice := &domain.Notice{}
		for i := range listings[start:end] {
			notice.Embeds = append(notice.Embeds, ListingEmbed(&listings[start+i], uc.templates.ItemColor))
		}
		if err := uc.deliver(ctx, user.ID, notice); err != nil {
			return fmt.Errorf("items %d-%d for %q: %w", start+1, end, q.Name, err)
		}
	}

	log.Printf("[Notify] Sent %d listings to %s for query %q", len(listings), user.ID, q.Name)
	return nil
}

// deliver sends through the cached DM channel, falling back to a freshly opened one
func (uc *NotifyUsecase) deliver(ctx context.Context, userID string, notice *domain.Notice) error {
	err := uc.messenger.SendDirect(ctx, userID, notice)
	if err == nil {
		return nil
	}
	log.Printf("[Notify] DM to %s failed, retrying on a new channel: %v", userID, err)

	channelID, openErr := uc.messenger.OpenDirectChannel(ctx, userID)
	if openErr != nil {
		return fmt.Errorf("%w: %w", domain.ErrDeliveryFailed, openErr)
	}
	if sendErr := uc.messenger.SendChannel(ctx, channelID, notice); sendErr != nil {
		return fmt.Errorf("%w: %w", domain.ErrDeliveryFailed, sendErr)
	}
	return nil
}

func (uc *NotifyUsecase) summary(q *domain.TrackedQuery, count int) *domain.Notice {
	t := uc.templates
	embed := domain.Embed{
		Title:       Render(t.SummaryTitle, map[string]string{"name": q.Name}),
		Description: Render(t.SummaryDescription, map[string]string{"count": strconv.Itoa(count)}) + "\n" + t.ItemHint,
		Color:       t.SummaryColor,
		Timestamp:   uc.now(),
	}
	if info := ParamsSummary(q.Params); info != "" {
		embed.AddField(t.ParamsField, info, false)
	}
	return &domain.Notice{Embeds: []domain.Embed{embed}}
}

// ListingEmbed renders one listing as an embed
func ListingEmbed(l *domain.Listing, color int) domain.Embed {
	embed := domain.Embed{
		Title:     truncate(l.Name, 100),
		URL:       l.URL(),
		Color:     color,
		Thumbnail: l.Thumbnail(),
	}
	embed.AddField("id", l.ID, true)
	embed.AddField("price", FormatYen(l.Price), true)
	embed.AddField("​", "​", false)
	embed.AddField("created", relativeTime(l.Created), true)
	embed.AddField("updated", relativeTime(l.Updated), true)
	return embed
}

// ParamsSummary renders the non-default search parameters, one per line
func ParamsSummary(p domain.SearchParams) string {
	var b strings.Builder
	if p.Keyword != "" {
		fmt.Fprintf(&b, "**Keyword:** %s\n", p.Keyword)
	}
	if p.ExcludeKeyword != "" {
		fmt.Fprintf(&b, "**Exclude:** %s\n", p.ExcludeKeyword)
	}
	if p.PriceMin > 0 {
		fmt.Fprintf(&b, "**Min Price:** %s\n", FormatYen(int64(p.PriceMin)))
	}
	if p.PriceMax > 0 {
		fmt.Fprintf(&b, "**Max Price:** %s\n", FormatYen(int64(p.PriceMax)))
	}
	if len(p.ItemConditions) > 0 {
		names := make([]string, 0, len(p.ItemConditions))
		for _, c := range p.ItemConditions {
			names = append(names, c.String())
		}
		fmt.Fprintf(&b, "**Condition:** %s\n", strings.Join(names, ", "))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Render replaces {{key}} placeholders with values
func Render(template string, values map[string]string) string {
	result := template
	for k, v := range values {
		result = strings.ReplaceAll(result, "{{"+k+"}}", v)
	}
	return result
}

// FormatYen formats a price with thousands separators, e.g. 12,300¥
func FormatYen(price int64) string {
	s := strconv.FormatInt(price, 10)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String() + "¥"
	}
	return b.String() + "¥"
}

func relativeTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return fmt.Sprintf("<t:%d:R>", t.Unix())
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}
