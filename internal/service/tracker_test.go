package service

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/merchantbot/merchantbot/internal/biz/domain"
	"github.com/merchantbot/merchantbot/internal/biz/repo"
	"github.com/merchantbot/merchantbot/internal/biz/usecase"
)

// Mock implementations

type mockQueryRepo struct {
	queries map[string]*domain.TrackedQuery
	bulkErr error
	mu      sync.Mutex
}

func newMockQueryRepo(queries ...*domain.TrackedQuery) *mockQueryRepo {
	m := &mockQueryRepo{queries: make(map[string]*domain.TrackedQuery)}
	for _, q := range queries {
		m.queries[q.ID] = q
	}
	return m
}

func (m *mockQueryRepo) Create(ctx context.Context, q *domain.TrackedQuery, limit int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, existing := range m.queries {
		if existing.UserID != q.UserID {
			continue
		}
		count++
		if existing.Name == q.Name {
			return domain.ErrDuplicateName
		}
		if existing.Params.Keyword == q.Params.Keyword {
			return domain.ErrDuplicateKeyword
		}
	}
	if limit >= 0 && count >= limit {
		return domain.ErrQuotaExceeded
	}
	copied := *q
	m.queries[q.ID] = &copied
	return nil
}

func (m *mockQueryRepo) Get(ctx context.Context, id string) (*domain.TrackedQuery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queries[id]
	if !ok {
		return nil, domain.ErrQueryNotFound
	}
	copied := *q
	return &copied, nil
}

func (m *mockQueryRepo) FindByName(ctx context.Context, userID, name string) (*domain.TrackedQuery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range m.queries {
		if q.UserID == userID && q.Name == name {
			copied := *q
			return &copied, nil
		}
	}
	return nil, domain.ErrQueryNotFound
}

func (m *mockQueryRepo) ListByUser(ctx context.Context, userID string) ([]*domain.TrackedQuery, error) {
	return m.list(func(q *domain.TrackedQuery) bool { return q.UserID == userID }), nil
}

func (m *mockQueryRepo) ListTracked(ctx context.Context) ([]*domain.TrackedQuery, error) {
	return m.list(func(q *domain.TrackedQuery) bool { return q.IsTracked }), nil
}

func (m *mockQueryRepo) list(keep func(*domain.TrackedQuery) bool) []*domain.TrackedQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.TrackedQuery
	for _, q := range m.queries {
		if keep(q) {
			copied := *q
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (m *mockQueryRepo) SetTracked(ctx context.Context, id string, tracked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queries[id]
	if !ok {
		return domain.ErrQueryNotFound
	}
	q.IsTracked = tracked
	return nil
}

func (m *mockQueryRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queries[id]; !ok {
		return domain.ErrQueryNotFound
	}
	delete(m.queries, id)
	return nil
}

func (m *mockQueryRepo) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, q := range m.queries {
		if q.UserID == userID {
			delete(m.queries, id)
			n++
		}
	}
	return n, nil
}

func (m *mockQueryRepo) UpdateLastRun(ctx context.Context, id string, lastRun time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.queries[id]; ok {
		q.LastRun = lastRun
	}
	return nil
}

func (m *mockQueryRepo) BulkUpdateLastRun(ctx context.Context, updates []domain.LastRunUpdate) error {
	if m.bulkErr != nil {
		return m.bulkErr
	}
	for _, u := range updates {
		m.UpdateLastRun(ctx, u.QueryID, u.LastRun)
	}
	return nil
}

func (m *mockQueryRepo) Close() error {
	return nil
}

func (m *mockQueryRepo) lastRun(id string) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.queries[id]; ok {
		return q.LastRun
	}
	return time.Time{}
}

type mockMarketRepo struct {
	items     map[string][]domain.Listing // keyword -> listings
	searchErr map[string]error
	item      *domain.ItemDetail
	itemErr   error

	// started is signalled on each Search call; release, if set, blocks it
	started chan struct{}
	release chan struct{}

	mu        sync.Mutex
	searches  []domain.SearchParams
	pages     []domain.PageRequest
	refreshes int
}

func (m *mockMarketRepo) Search(ctx context.Context, params domain.SearchParams, page domain.PageRequest) (*domain.SearchResult, error) {
	m.mu.Lock()
	m.searches = append(m.searches, params)
	m.pages = append(m.pages, page)
	m.mu.Unlock()

	if m.started != nil {
		m.started <- struct{}{}
	}
	if m.release != nil {
		<-m.release
	}
	if err := m.searchErr[params.Keyword]; err != nil {
		return nil, err
	}
	return &domain.SearchResult{Items: m.items[params.Keyword]}, nil
}

func (m *mockMarketRepo) GetItem(ctx context.Context, id string, translate bool) (*domain.ItemDetail, error) {
	return m.item, m.itemErr
}

func (m *mockMarketRepo) RefreshSession(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes++
	return nil
}

func (m *mockMarketRepo) Stats() repo.LimiterStats {
	return repo.LimiterStats{RequestsPerMinute: 200, MaxConcurrent: 5}
}

func (m *mockMarketRepo) searchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.searches)
}

type mockMessenger struct {
	unreachable map[string]bool
	failSend    map[string]bool // user id -> every delivery path fails

	mu       sync.Mutex
	resolved []string
	sent     map[string][]*domain.Notice
}

func newMockMessenger() *mockMessenger {
	return &mockMessenger{
		unreachable: make(map[string]bool),
		failSend:    make(map[string]bool),
		sent:        make(map[string][]*domain.Notice),
	}
}

func (m *mockMessenger) ResolveUser(ctx context.Context, userID string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolved = append(m.resolved, userID)
	if m.unreachable[userID] {
		return nil, domain.ErrUserUnreachable
	}
	return &domain.User{ID: userID, Username: "user-" + userID}, nil
}

func (m *mockMessenger) SendDirect(ctx context.Context, userID string, notice *domain.Notice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSend[userID] {
		return errors.New("cannot send messages to this user")
	}
	m.sent[userID] = append(m.sent[userID], notice)
	return nil
}

func (m *mockMessenger) OpenDirectChannel(ctx context.Context, userID string) (string, error) {
	return "dm-" + userID, nil
}

func (m *mockMessenger) SendChannel(ctx context.Context, channelID string, notice *domain.Notice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	userID := channelID[len("dm-"):]
	if m.failSend[userID] {
		return errors.New("cannot send messages to this user")
	}
	m.sent[userID] = append(m.sent[userID], notice)
	return nil
}

func (m *mockMessenger) sentTo(userID string) []*domain.Notice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[userID]
}

// Helpers

var t0 = time.Unix(1_700_000_000, 0)

func trackedQuery(id, userID, keyword string, lastRun time.Time) *domain.TrackedQuery {
	return &domain.TrackedQuery{
		ID:        id,
		UserID:    userID,
		Name:      "q-" + keyword,
		Params:    domain.SearchParams{Keyword: keyword}.WithDefaults(),
		IsTracked: true,
		LastRun:   lastRun,
	}
}

func listing(id string, updated time.Time) domain.Listing {
	return domain.Listing{ID: id, Name: "item " + id, Price: 1000, Created: updated, Updated: updated}
}

func newTestTracker(queries *mockQueryRepo, market *mockMarketRepo, messenger *mockMessenger) *TrackerService {
	notifyUC := usecase.NewNotifyUsecase(messenger, usecase.DefaultNotifyTemplates)
	s := NewTrackerService(queries, market, messenger, notifyUC, TrackerConfig{Parallelism: 2})
	s.now = func() time.Time { return t0.Add(time.Hour) }
	return s
}

// Tests

func TestTracker_NoveltyFilter(t *testing.T) {
	queries := newMockQueryRepo(trackedQuery("q1", "u1", "camera", t0))
	market := &mockMarketRepo{items: map[string][]domain.Listing{
		"camera": {
			listing("m1", t0.Add(time.Second)),
			listing("m2", t0.Add(time.Minute)),
			listing("m3", t0.Add(30*time.Minute)),
			listing("m4", t0),
			listing("m5", t0.Add(-time.Hour)),
		},
	}}
	messenger := newMockMessenger()
	s := newTestTracker(queries, market, messenger)

	report, err := s.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if len(report.Outcomes) != 1 || report.Outcomes[0].Status != StatusNotified {
		t.Fatalf("Expected one notified query, got %+v", report.Outcomes)
	}
	if report.Outcomes[0].NewItems != 3 {
		t.Errorf("Expected 3 new items, got %d", report.Outcomes[0].NewItems)
	}

	sent := messenger.sentTo("u1")
	if len(sent) != 2 {
		t.Fatalf("Expected summary and one batch, got %d messages", len(sent))
	}
	if len(sent[1].Embeds) != 3 {
		t.Errorf("Expected 3 listing embeds, got %d", len(sent[1].Embeds))
	}

	if got := queries.lastRun("q1"); !got.Equal(t0.Add(time.Hour)) {
		t.Errorf("Expected lastRun to advance to cycle time, got %v", got)
	}
	if market.refreshes != 1 {
		t.Errorf("Expected one session refresh, got %d", market.refreshes)
	}
}

func TestTracker_SearchUsesBoundAndPageSize(t *testing.T) {
	queries := newMockQueryRepo(trackedQuery("q1", "u1", "camera", time.Time{}))
	market := &mockMarketRepo{}
	s := newTestTracker(queries, market, newMockMessenger())

	if _, err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if len(market.pages) != 1 || market.pages[0].Size != TrackerPageSize {
		t.Fatalf("Expected one search with page size %d, got %+v", TrackerPageSize, market.pages)
	}
	// Never polled: the bound falls back to now - 24h
	wantBound := t0.Add(time.Hour).Add(-24 * time.Hour).Unix()
	if got := market.searches[0].CreatedAfter; got != strconv.FormatInt(wantBound, 10) {
		t.Errorf("Expected createdAfter %d, got %s", wantBound, got)
	}
}

func TestTracker_DeliveryFailureKeepsLastRun(t *testing.T) {
	queries := newMockQueryRepo(
		trackedQuery("q1", "u1", "camera", t0),
		trackedQuery("q2", "u2", "lens", t0),
	)
	market := &mockMarketRepo{items: map[string][]domain.Listing{
		"camera": {listing("m1", t0.Add(time.Minute))},
		"lens":   {listing("m2", t0.Add(time.Minute))},
	}}
	messenger := newMockMessenger()
	messenger.failSend["u1"] = true
	s := newTestTracker(queries, market, messenger)

	report, err := s.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if got := queries.lastRun("q1"); !got.Equal(t0) {
		t.Errorf("Expected lastRun of failed query to stay at %v, got %v", t0, got)
	}
	if got := queries.lastRun("q2"); !got.Equal(t0.Add(time.Hour)) {
		t.Errorf("Expected lastRun of delivered query to advance, got %v", got)
	}
	if report.Count(StatusDeliveryFailed) != 1 || report.Count(StatusNotified) != 1 {
		t.Errorf("Unexpected outcomes %+v", report.Outcomes)
	}
	for _, o := range report.Outcomes {
		if o.Status == StatusDeliveryFailed && !errors.Is(o.Err, domain.ErrDeliveryFailed) {
			t.Errorf("Expected ErrDeliveryFailed, got %v", o.Err)
		}
	}
}

func TestTracker_SearchFailureKeepsLastRun(t *testing.T) {
	queries := newMockQueryRepo(trackedQuery("q1", "u1", "camera", t0))
	market := &mockMarketRepo{searchErr: map[string]error{"camera": errors.New("HTTP 500")}}
	s := newTestTracker(queries, market, newMockMessenger())

	report, err := s.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if report.Outcomes[0].Status != StatusSearchFailed {
		t.Errorf("Expected search_failed, got %s", report.Outcomes[0].Status)
	}
	if got := queries.lastRun("q1"); !got.Equal(t0) {
		t.Errorf("Expected lastRun unchanged, got %v", got)
	}
}

func TestTracker_NoNewItemsAdvancesLastRun(t *testing.T) {
	queries := newMockQueryRepo(trackedQuery("q1", "u1", "camera", t0))
	market := &mockMarketRepo{items: map[string][]domain.Listing{
		"camera": {listing("m1", t0)},
	}}
	messenger := newMockMessenger()
	s := newTestTracker(queries, market, messenger)

	report, err := s.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if report.Outcomes[0].Status != StatusNoNewItems {
		t.Errorf("Expected no_new_items, got %s", report.Outcomes[0].Status)
	}
	if len(messenger.sentTo("u1")) != 0 {
		t.Error("Expected no notification")
	}
	if got := queries.lastRun("q1"); !got.Equal(t0.Add(time.Hour)) {
		t.Errorf("Expected lastRun to advance, got %v", got)
	}
}

func TestTracker_SkipsTickWhileRunning(t *testing.T) {
	queries := newMockQueryRepo(trackedQuery("q1", "u1", "camera", t0))
	market := &mockMarketRepo{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	s := newTestTracker(queries, market, newMockMessenger())

	done := make(chan error, 1)
	go func() {
		_, err := s.RunCycle(context.Background())
		done <- err
	}()
	<-market.started

	if _, err := s.RunCycle(context.Background()); !errors.Is(err, domain.ErrCycleRunning) {
		t.Errorf("Expected ErrCycleRunning, got %v", err)
	}
	if _, err := s.CheckUser(context.Background(), "u1"); !errors.Is(err, domain.ErrCycleRunning) {
		t.Errorf("Expected manual check to be rejected, got %v", err)
	}
	s.tick()
	if !s.Status().Running {
		t.Error("Expected status to report a running cycle")
	}

	close(market.release)
	if err := <-done; err != nil {
		t.Fatalf("First cycle failed: %v", err)
	}
	if n := market.searchCount(); n != 1 {
		t.Errorf("Expected the query to be searched once, got %d", n)
	}
	if s.Status().Running {
		t.Error("Expected tracker to be idle again")
	}
}

func TestTracker_UnreachableUserQueriesDeleted(t *testing.T) {
	queries := newMockQueryRepo(
		trackedQuery("q1", "gone", "camera", t0),
		trackedQuery("q2", "gone", "lens", t0),
		trackedQuery("q3", "u2", "tripod", t0),
	)
	market := &mockMarketRepo{items: map[string][]domain.Listing{
		"camera": {listing("m1", t0.Add(time.Minute))},
		"lens":   {listing("m2", t0.Add(time.Minute))},
		"tripod": {listing("m3", t0.Add(time.Minute))},
	}}
	messenger := newMockMessenger()
	messenger.unreachable["gone"] = true
	s := newTestTracker(queries, market, messenger)

	report, err := s.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	remaining, _ := queries.ListByUser(context.Background(), "gone")
	if len(remaining) != 0 {
		t.Errorf("Expected all queries of the gone user to be deleted, got %d", len(remaining))
	}
	if report.Deleted != 2 || len(report.DeletedUsers) != 1 {
		t.Errorf("Expected 2 deleted queries of 1 user, got %d of %v", report.Deleted, report.DeletedUsers)
	}
	if len(messenger.sentTo("gone")) != 0 {
		t.Error("Expected no notification to the gone user")
	}
	if len(messenger.sentTo("u2")) != 2 {
		t.Errorf("Expected the other user to be notified, got %d messages", len(messenger.sentTo("u2")))
	}
	if got := queries.lastRun("q3"); !got.Equal(t0.Add(time.Hour)) {
		t.Errorf("Expected the other user's lastRun to advance, got %v", got)
	}
	if report.Count(StatusUserUnreachable) != 2 {
		t.Errorf("Expected 2 unreachable outcomes, got %d", report.Count(StatusUserUnreachable))
	}

	// The user is resolved once, and none of their queries reach the marketplace
	if n := market.searchCount(); n != 1 {
		t.Errorf("Expected only the reachable user's query to be searched, got %d", n)
	}
}

func TestTracker_CheckUserOnlyPollsThatUser(t *testing.T) {
	untracked := trackedQuery("q3", "u1", "strap", t0)
	untracked.IsTracked = false
	queries := newMockQueryRepo(
		trackedQuery("q1", "u1", "camera", t0),
		trackedQuery("q2", "u2", "lens", t0),
		untracked,
	)
	market := &mockMarketRepo{}
	s := newTestTracker(queries, market, newMockMessenger())

	report, err := s.CheckUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("CheckUser failed: %v", err)
	}
	if len(report.Outcomes) != 1 || report.Outcomes[0].QueryID != "q1" {
		t.Errorf("Expected only q1 to be polled, got %+v", report.Outcomes)
	}
	if !report.Manual() {
		t.Error("Expected a manual report")
	}
	if s.LastReport() != report {
		t.Error("Expected the report to be kept as the last report")
	}
}

func TestTracker_EmptyCycle(t *testing.T) {
	market := &mockMarketRepo{}
	s := newTestTracker(newMockQueryRepo(), market, newMockMessenger())

	report, err := s.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if len(report.Outcomes) != 0 {
		t.Errorf("Expected no outcomes, got %d", len(report.Outcomes))
	}
	if market.refreshes != 0 {
		t.Error("Expected no session refresh for an empty cycle")
	}
}

func TestTracker_CommitFailure(t *testing.T) {
	queries := newMockQueryRepo(trackedQuery("q1", "u1", "camera", t0))
	queries.bulkErr = errors.New("database is locked")
	s := newTestTracker(queries, &mockMarketRepo{}, newMockMessenger())

	report, err := s.RunCycle(context.Background())
	if err == nil {
		t.Fatal("Expected commit error")
	}
	if report == nil || report.CommitErr == nil {
		t.Error("Expected the report to carry the commit error")
	}
}

func TestTracker_StartStop(t *testing.T) {
	s := newTestTracker(newMockQueryRepo(), &mockMarketRepo{}, newMockMessenger())
	s.Start()
	s.Start()

	status := s.Status()
	if !status.Scheduled || status.Interval != DefaultTrackerConfig.Interval {
		t.Errorf("Unexpected status %+v", status)
	}
	if status.NextRun.IsZero() {
		t.Error("Expected a next run time")
	}

	s.Stop()
	if s.Status().Scheduled {
		t.Error("Expected tracker to be unscheduled after Stop")
	}
}

func TestTracker_StopWaitsForCycleAndRejectsNewOnes(t *testing.T) {
	queries := newMockQueryRepo(trackedQuery("q1", "u1", "camera", t0))
	market := &mockMarketRepo{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	s := newTestTracker(queries, market, newMockMessenger())
	s.Start()

	done := make(chan error, 1)
	go func() {
		_, err := s.RunCycle(context.Background())
		done <- err
	}()
	<-market.started

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Expected Stop to wait for the running cycle")
	case <-time.After(50 * time.Millisecond):
	}

	close(market.release)
	<-stopped
	if err := <-done; err != nil {
		t.Fatalf("Cycle failed: %v", err)
	}

	if _, err := s.RunCycle(context.Background()); !errors.Is(err, domain.ErrTrackerStopped) {
		t.Errorf("Expected ErrTrackerStopped, got %v", err)
	}
	if _, err := s.CheckUser(context.Background(), "u1"); !errors.Is(err, domain.ErrTrackerStopped) {
		t.Errorf("Expected manual check to be rejected after Stop, got %v", err)
	}
	if s.Status().Running {
		t.Error("Expected tracker to stay idle after a rejected cycle")
	}
	if n := market.searchCount(); n != 1 {
		t.Errorf("Expected only the first cycle to search, got %d", n)
	}
}
