package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/merchantbot/merchantbot/internal/biz/domain"
	"github.com/merchantbot/merchantbot/internal/biz/repo"
	"github.com/merchantbot/merchantbot/internal/biz/usecase"
)

// TrackerPageSize is the single page fetched per tracked query and cycle
const TrackerPageSize = 2000

const (
	stateIdle int32 = iota
	stateRunning
)

// QueryStatus is the outcome of one query within a cycle
type QueryStatus string

const (
	StatusNotified        QueryStatus = "notified"
	StatusNoNewItems      QueryStatus = "no_new_items"
	StatusSearchFailed    QueryStatus = "search_failed"
	StatusDeliveryFailed  QueryStatus = "delivery_failed"
	StatusResolveFailed   QueryStatus = "resolve_failed"
	StatusUserUnreachable QueryStatus = "user_unreachable"
)

// QueryOutcome records what happened to one query
type QueryOutcome struct {
	QueryID  string
	UserID   string
	Name     string
	Status   QueryStatus
	NewItems int
	Err      error
}

// CycleReport summarizes one tracking cycle
type CycleReport struct {
	StartedAt    time.Time
	Duration     time.Duration
	UserID       string // Set for manual single-user checks
	Outcomes     []QueryOutcome
	DeletedUsers []string
	Deleted      int64 // Queries removed because their user is gone
	CommitErr    error
}

// Count counts outcomes with the given status
func (r *CycleReport) Count(status QueryStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Manual reports whether the cycle was a single-user check
func (r *CycleReport) Manual() bool {
	return r.UserID != ""
}

// TrackerConfig contains tracker settings
type TrackerConfig struct {
	Interval    time.Duration
	Lookback    time.Duration
	Parallelism int
}

// DefaultTrackerConfig is used for unset fields
var DefaultTrackerConfig = TrackerConfig{
	Interval:    10 * time.Minute,
	Lookback:    24 * time.Hour,
	Parallelism: 5,
}

// TrackerStatus is a snapshot for the status command
type TrackerStatus struct {
	Running    bool
	Scheduled  bool
	Interval   time.Duration
	NextRun    time.Time
	LastReport *CycleReport
	Limiter    repo.LimiterStats
}

// TrackerService periodically re-runs tracked queries and notifies users of new listings
type TrackerService struct {
	queryRepo  repo.QueryRepo
	marketRepo repo.MarketplaceRepo
	messenger  repo.Messenger
	notifyUC   *usecase.NotifyUsecase
	config     TrackerConfig

	state atomic.Int32
	wg    sync.WaitGroup

	mu         sync.Mutex
	cron       *cron.Cron
	entryID    cron.EntryID
	lastReport *CycleReport
	stopped    bool // Set by Stop; no cycle may begin afterwards

	now func() time.Time
}

// NewTrackerService creates a new tracker service
func NewTrackerService(
	queryRepo repo.QueryRepo,
	marketRepo repo.MarketplaceRepo,
	messenger repo.Messenger,
	notifyUC *usecase.NotifyUsecase,
	config TrackerConfig,
) *TrackerService {
	if config.Interval <= 0 {
		config.Interval = DefaultTrackerConfig.Interval
	}
	if config.Lookback <= 0 {
		config.Lookback = DefaultTrackerConfig.Lookback
	}
	if config.Parallelism <= 0 {
		config.Parallelism = DefaultTrackerConfig.Parallelism
	}
	return &TrackerService{
		queryRepo:  queryRepo,
		marketRepo: marketRepo,
		messenger:  messenger,
		notifyUC:   notifyUC,
		config:     config,
		now:        time.Now,
	}
}

// Start schedules a cycle every interval
func (s *TrackerService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return
	}
	s.stopped = false
	s.cron = cron.New()
	s.entryID = s.cron.Schedule(cron.Every(s.config.Interval), cron.FuncJob(s.tick))
	s.cron.Start()

	log.Printf("[Tracker] Started with interval %v", s.config.Interval)
}

// Stop removes the timer and waits for an in-flight cycle to finish
func (s *TrackerService) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.stopped = true
	s.mu.Unlock()

	if c != nil {
		c.Remove(s.entryID)
		<-c.Stop().Done()
	}
	s.wg.Wait()
	log.Println("[Tracker] Stopped")
}

func (s *TrackerService) tick() {
	report, err := s.RunCycle(context.Background())
	if errors.Is(err, domain.ErrCycleRunning) {
		log.Println("[Tracker] Previous cycle still running, skipping tick")
		return
	}
	if err != nil {
		log.Printf("[Tracker] Cycle failed: %v", err)
		return
	}
	log.Printf("[Tracker] Cycle done in %v: %d queries, %d notified, %d without new items",
		report.Duration.Round(time.Millisecond), len(report.Outcomes),
		report.Count(StatusNotified), report.Count(StatusNoNewItems))
}

// RunCycle polls every tracked query once.
// Returns ErrCycleRunning if a cycle is already in progress.
func (s *TrackerService) RunCycle(ctx context.Context) (*CycleReport, error) {
	return s.run(ctx, "")
}

// CheckUser polls the tracked queries of one user, sharing the cycle guard
func (s *TrackerService) CheckUser(ctx context.Context, userID string) (*CycleReport, error) {
	if userID == "" {
		return nil, &domain.ValidationError{Field: "user_id", Message: "must not be empty"}
	}
	return s.run(ctx, userID)
}

// LastReport returns the report of the most recent cycle, or nil
func (s *TrackerService) LastReport() *CycleReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReport
}

// Status returns a snapshot of the tracker
func (s *TrackerService) Status() TrackerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := TrackerStatus{
		Running:    s.state.Load() == stateRunning,
		Scheduled:  s.cron != nil,
		Interval:   s.config.Interval,
		LastReport: s.lastReport,
		Limiter:    s.marketRepo.Stats(),
	}
	if s.cron != nil {
		status.NextRun = s.cron.Entry(s.entryID).Next
	}
	return status
}

func (s *TrackerService) run(ctx context.Context, userID string) (*CycleReport, error) {
	if !s.state.CompareAndSwap(stateIdle, stateRunning) {
		return nil, domain.ErrCycleRunning
	}

	// Add and Stop's Wait are ordered by mu
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.state.Store(stateIdle)
		return nil, domain.ErrTrackerStopped
	}
	s.wg.Add(1)
	s.mu.Unlock()

	defer func() {
		s.state.Store(stateIdle)
		s.wg.Done()
	}()

	report := &CycleReport{StartedAt: s.now(), UserID: userID}
	defer func() {
		report.Duration = s.now().Sub(report.StartedAt)
		s.mu.Lock()
		s.lastReport = report
		s.mu.Unlock()
	}()

	queries, err := s.loadQueries(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tracked queries: %w", err)
	}
	if len(queries) == 0 {
		return report, nil
	}

	if err := s.marketRepo.RefreshSession(ctx); err != nil {
		log.Printf("[Tracker] Session refresh failed, keeping the current one: %v", err)
	}

	users, unreachable := s.resolveUsers(ctx, queries)

	report.Outcomes = make([]QueryOutcome, len(queries))
	updates := make([]*domain.LastRunUpdate, len(queries))

	var g errgroup.Group
	g.SetLimit(s.config.Parallelism)
	for i, q := range queries {
		outcome := QueryOutcome{QueryID: q.ID, UserID: q.UserID, Name: q.Name}

		if unreachable[q.UserID] {
			outcome.Status = StatusUserUnreachable
			report.Outcomes[i] = outcome
			continue
		}
		user, ok := users[q.UserID]
		if !ok {
			outcome.Status = StatusResolveFailed
			report.Outcomes[i] = outcome
			continue
		}

		g.Go(func() error {
			report.Outcomes[i], updates[i] = s.poll(ctx, q, user, outcome)
			return nil
		})
	}
	g.Wait()

	for userID := range unreachable {
		n, err := s.queryRepo.DeleteByUser(ctx, userID)
		if err != nil {
			log.Printf("[Tracker] Failed to delete queries of unreachable user %s: %v", userID, err)
			continue
		}
		report.DeletedUsers = append(report.DeletedUsers, userID)
		report.Deleted += n
		log.Printf("[Tracker] User %s is gone, deleted %d queries", userID, n)
	}

	var pending []domain.LastRunUpdate
	for _, u := range updates {
		if u != nil {
			pending = append(pending, *u)
		}
	}
	if len(pending) > 0 {
		if err := s.queryRepo.BulkUpdateLastRun(ctx, pending); err != nil {
			report.CommitErr = err
			return report, fmt.Errorf("failed to commit last run times: %w", err)
		}
	}

	return report, nil
}

func (s *TrackerService) loadQueries(ctx context.Context, userID string) ([]*domain.TrackedQuery, error) {
	if userID == "" {
		return s.queryRepo.ListTracked(ctx)
	}
	all, err := s.queryRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var tracked []*domain.TrackedQuery
	for _, q := range all {
		if q.IsTracked {
			tracked = append(tracked, q)
		}
	}
	return tracked, nil
}

// resolveUsers resolves each distinct owner once.
// Users missing from both results had a transient resolution error.
func (s *TrackerService) resolveUsers(ctx context.Context, queries []*domain.TrackedQuery) (map[string]*domain.User, map[string]bool) {
	users := make(map[string]*domain.User)
	unreachable := make(map[string]bool)

	for _, q := range queries {
		if _, ok := users[q.UserID]; ok || unreachable[q.UserID] {
			continue
		}
		user, err := s.messenger.ResolveUser(ctx, q.UserID)
		switch {
		case errors.Is(err, domain.ErrUserUnreachable):
			unreachable[q.UserID] = true
		case err != nil:
			log.Printf("[Tracker] Failed to resolve user %s: %v", q.UserID, err)
			users[q.UserID] = nil
		default:
			users[q.UserID] = user
		}
	}

	for id, u := range users {
		if u == nil {
			delete(users, id)
		}
	}
	return users, unreachable
}

// poll runs one query and returns the lastRun update to commit, if any
func (s *TrackerService) poll(ctx context.Context, q *domain.TrackedQuery, user *domain.User, outcome QueryOutcome) (QueryOutcome, *domain.LastRunUpdate) {
	now := s.now()
	bound := q.LowerBound(now, s.config.Lookback)
	params := q.Params.WithCreatedAfter(bound.Unix())

	result, err := s.marketRepo.Search(ctx, params, domain.PageRequest{Size: TrackerPageSize})
	if err != nil {
		log.Printf("[Tracker] Search failed for query %q of %s: %v", q.Name, q.UserID, err)
		outcome.Status = StatusSearchFailed
		outcome.Err = err
		return outcome, nil
	}

	fresh := domain.NewSince(result.Items, bound)
	outcome.NewItems = len(fresh)
	update := &domain.LastRunUpdate{QueryID: q.ID, LastRun: now}

	if len(fresh) == 0 {
		outcome.Status = StatusNoNewItems
		return outcome, update
	}

	if err := s.notifyUC.Notify(ctx, user, q, fresh); err != nil {
		log.Printf("[Tracker] Notification failed for query %q of %s: %v", q.Name, q.UserID, err)
		outcome.Status = StatusDeliveryFailed
		outcome.Err = err
		return outcome, nil
	}

	outcome.Status = StatusNotified
	return outcome, update
}
