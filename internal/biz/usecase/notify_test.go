package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/merchantbot/merchantbot/internal/biz/domain"
)

type mockMessenger struct {
	directErr  error
	openErr    error
	channelErr error

	direct  []*domain.Notice
	channel []*domain.Notice
	opened  int
}

func (m *mockMessenger) ResolveUser(ctx context.Context, userID string) (*domain.User, error) {
	return &domain.User{ID: userID}, nil
}

func (m *mockMessenger) SendDirect(ctx context.Context, userID string, notice *domain.Notice) error {
	if m.directErr != nil {
		return m.directErr
	}
	m.direct = append(m.direct, notice)
	return nil
}

func (m *mockMessenger) OpenDirectChannel(ctx context.Context, userID string) (string, error) {
	m.opened++
	if m.openErr != nil {
		return "", m.openErr
	}
	return "dm-" + userID, nil
}

func (m *mockMessenger) SendChannel(ctx context.Context, channelID string, notice *domain.Notice) error {
	if m.channelErr != nil {
		return m.channelErr
	}
	m.channel = append(m.channel, notice)
	return nil
}

func testListings(n int) []domain.Listing {
	listings := make([]domain.Listing, n)
	for i := range listings {
		listings[i] = domain.Listing{
			ID:         fmt.Sprintf("m%d", i),
			Name:       fmt.Sprintf("item %d", i),
			Price:      1500,
			Updated:    time.Unix(1_700_000_000, 0),
			Thumbnails: []string{"https://static.example/t.jpg"},
		}
	}
	return listings
}

func testQuery() *domain.TrackedQuery {
	return &domain.TrackedQuery{
		ID:     "q1",
		UserID: "u1",
		Name:   "cams",
		Params: domain.SearchParams{
			Keyword:        "camera",
			ExcludeKeyword: "junk",
			PriceMin:       1000,
			ItemConditions: []domain.ItemCondition{domain.ConditionNew},
		},
	}
}

func TestNotify_SummaryThenBatches(t *testing.T) {
	m := &mockMessenger{}
	uc := NewNotifyUsecase(m, DefaultNotifyTemplates)

	err := uc.Notify(context.Background(), &domain.User{ID: "u1"}, testQuery(), testListings(12))
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	// summary + 5 + 5 + 2
	if len(m.direct) != 4 {
		t.Fatalf("Expected 4 messages, got %d", len(m.direct))
	}

	summary := m.direct[0].Embeds[0]
	if summary.Title != "🔔 Tracked Query: cams" {
		t.Errorf("Unexpected summary title %q", summary.Title)
	}
	if !strings.Contains(summary.Description, "Found 12 new items") {
		t.Errorf("Unexpected summary description %q", summary.Description)
	}
	if len(summary.Fields) != 1 || summary.Fields[0].Name != "Search Parameters" {
		t.Fatalf("Expected search parameters field, got %+v", summary.Fields)
	}
	for _, want := range []string{"**Keyword:** camera", "**Exclude:** junk", "**Min Price:** 1,000¥", "**Condition:** New"} {
		if !strings.Contains(summary.Fields[0].Value, want) {
			t.Errorf("Expected %q in parameters, got %q", want, summary.Fields[0].Value)
		}
	}

	sizes := []int{5, 5, 2}
	for i, size := range sizes {
		if got := len(m.direct[i+1].Embeds); got != size {
			t.Errorf("Batch %d: expected %d embeds, got %d", i, size, got)
		}
	}
	if first := m.direct[1].Embeds[0]; first.URL != domain.ItemURLPrefix+"m0" || first.Color != DefaultNotifyTemplates.ItemColor {
		t.Errorf("Unexpected first item embed %+v", first)
	}
	if last := m.direct[3].Embeds[1]; last.Title != "item 11" {
		t.Errorf("Expected listings in order, got %q last", last.Title)
	}
}

func TestNotify_NothingToSend(t *testing.T) {
	m := &mockMessenger{}
	uc := NewNotifyUsecase(m, DefaultNotifyTemplates)

	if err := uc.Notify(context.Background(), &domain.User{ID: "u1"}, testQuery(), nil); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if len(m.direct) != 0 {
		t.Errorf("Expected no message, got %d", len(m.direct))
	}
}

func TestNotify_FallsBackToFreshChannel(t *testing.T) {
	m := &mockMessenger{directErr: errors.New("stale channel")}
	uc := NewNotifyUsecase(m, DefaultNotifyTemplates)

	if err := uc.Notify(context.Background(), &domain.User{ID: "u1"}, testQuery(), testListings(3)); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if len(m.channel) != 2 {
		t.Errorf("Expected 2 messages through the fallback channel, got %d", len(m.channel))
	}
	if m.opened != 2 {
		t.Errorf("Expected a fresh channel per failed send, got %d", m.opened)
	}
}

func TestNotify_DeliveryFailed(t *testing.T) {
	tests := []struct {
		name string
		m    *mockMessenger
	}{
		{"open fails", &mockMessenger{directErr: errors.New("x"), openErr: errors.New("cannot open")}},
		{"fallback send fails", &mockMessenger{directErr: errors.New("x"), channelErr: errors.New("forbidden")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := NewNotifyUsecase(tt.m, DefaultNotifyTemplates)
			err := uc.Notify(context.Background(), &domain.User{ID: "u1"}, testQuery(), testListings(3))
			if !errors.Is(err, domain.ErrDeliveryFailed) {
				t.Errorf("Expected ErrDeliveryFailed, got %v", err)
			}
		})
	}
}

func TestListingEmbed_TruncatesTitle(t *testing.T) {
	l := &domain.Listing{ID: "m1", Name: strings.Repeat("あ", 150), Price: 9999999}
	embed := ListingEmbed(l, 1)

	if n := len([]rune(embed.Title)); n != 100 {
		t.Errorf("Expected 100 runes, got %d", n)
	}
	if !strings.HasSuffix(embed.Title, "...") {
		t.Errorf("Expected ellipsis, got %q", embed.Title)
	}
	if embed.Fields[1].Value != "9,999,999¥" {
		t.Errorf("Unexpected price %q", embed.Fields[1].Value)
	}
}

func TestFormatYen(t *testing.T) {
	tests := map[int64]string{
		0:       "0¥",
		300:     "300¥",
		1000:    "1,000¥",
		123456:  "123,456¥",
		-2500:   "-2,500¥",
		1000000: "1,000,000¥",
	}
	for in, want := range tests {
		if got := FormatYen(in); got != want {
			t.Errorf("FormatYen(%d): expected %q, got %q", in, want, got)
		}
	}
}

func TestRender(t *testing.T) {
	got := Render("🔔 {{name}}: {{count}} {{name}}", map[string]string{"name": "a", "count": "3"})
	if got != "🔔 a: 3 a" {
		t.Errorf("Unexpected result %q", got)
	}
}
