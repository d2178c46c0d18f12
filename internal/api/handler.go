package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/merchantbot/merchantbot/internal/biz/domain"
	"github.com/merchantbot/merchantbot/internal/service"
)

// Tracker is the part of the tracker service exposed over HTTP
type Tracker interface {
	Status() service.TrackerStatus
	RunCycle(ctx context.Context) (*service.CycleReport, error)
	CheckUser(ctx context.Context, userID string) (*service.CycleReport, error)
}

// Server provides a local HTTP API to inspect and trigger the tracker
type Server struct {
	tracker Tracker
	server  *http.Server
	port    int
}

// NewServer creates a new API server bound to 127.0.0.1:port
func NewServer(tracker Tracker, port int) *Server {
	return &Server{
		tracker: tracker,
		port:    port,
	}
}

// Start starts the HTTP server; it blocks until Stop
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", s.port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("[API] Starting HTTP server on port %d", s.port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop() error {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Tracker
	mux.HandleFunc("/api/tracker", s.handleTrackerStatus)
	mux.HandleFunc("/api/tracker/run", s.handleTrackerRun)

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return mux
}

// ============ Tracker Handlers ============

// LimiterStatus is the request budget of the Mercari client
type LimiterStatus struct {
	InFlight          int `json:"in_flight"`
	Queued            int `json:"queued"`
	RequestsPerMinute int `json:"requests_per_minute"`
	MaxConcurrent     int `json:"max_concurrent"`
}

// TrackerStatus is the response of GET /api/tracker
type TrackerStatus struct {
	Running    bool          `json:"running"`
	Scheduled  bool          `json:"scheduled"`
	Interval   string        `json:"interval"`
	NextRun    string        `json:"next_run,omitempty"`
	LastReport *CycleReport  `json:"last_report,omitempty"`
	Limiter    LimiterStatus `json:"limiter"`
}

// QueryOutcome is one query result within a cycle report
type QueryOutcome struct {
	QueryID  string `json:"query_id"`
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	NewItems int    `json:"new_items,omitempty"`
	Error    string `json:"error,omitempty"`
}

// CycleReport is the JSON form of a tracking cycle
type CycleReport struct {
	StartedAt    string         `json:"started_at"`
	DurationMS   int64          `json:"duration_ms"`
	UserID       string         `json:"user_id,omitempty"`
	Outcomes     []QueryOutcome `json:"outcomes"`
	DeletedUsers []string       `json:"deleted_users,omitempty"`
	Deleted      int64          `json:"deleted"`
	CommitError  string         `json:"commit_error,omitempty"`
}

func (s *Server) handleTrackerStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	st := s.tracker.Status()
	result := TrackerStatus{
		Running:    st.Running,
		Scheduled:  st.Scheduled,
		Interval:   st.Interval.String(),
		LastReport: ConvertReport(st.LastReport),
		Limiter: LimiterStatus{
			InFlight:          st.Limiter.InFlight,
			Queued:            st.Limiter.Queued,
			RequestsPerMinute: st.Limiter.RequestsPerMinute,
			MaxConcurrent:     st.Limiter.MaxConcurrent,
		},
	}
	if !st.NextRun.IsZero() {
		result.NextRun = st.NextRun.UTC().Format(time.RFC3339)
	}

	s.writeJSON(w, result)
}

// handleTrackerRun runs a full cycle, or a single-user check with ?user_id=
func (s *Server) handleTrackerRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// The cycle commits its results even if the caller goes away
	ctx := context.WithoutCancel(r.Context())

	var (
		report *service.CycleReport
		err    error
	)
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		report, err = s.tracker.CheckUser(ctx, userID)
	} else {
		report, err = s.tracker.RunCycle(ctx)
	}

	if errors.Is(err, domain.ErrCycleRunning) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if errors.Is(err, domain.ErrTrackerStopped) {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if err != nil && report == nil {
		s.writeError(w, err)
		return
	}

	// A failed commit still returns the report
	s.writeJSON(w, ConvertReport(report))
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// ConvertReport converts a cycle report to its JSON form
func ConvertReport(r *service.CycleReport) *CycleReport {
	if r == nil {
		return nil
	}
	result := &CycleReport{
		StartedAt:    r.StartedAt.UTC().Format(time.RFC3339),
		DurationMS:   r.Duration.Milliseconds(),
		UserID:       r.UserID,
		Outcomes:     make([]QueryOutcome, len(r.Outcomes)),
		DeletedUsers: r.DeletedUsers,
		Deleted:      r.Deleted,
	}
	for i, o := range r.Outcomes {
		result.Outcomes[i] = QueryOutcome{
			QueryID:  o.QueryID,
			UserID:   o.UserID,
			Name:     o.Name,
			Status:   string(o.Status),
			NewItems: o.NewItems,
		}
		if o.Err != nil {
			result.Outcomes[i].Error = o.Err.Error()
		}
	}
	if r.CommitErr != nil {
		result.CommitError = r.CommitErr.Error()
	}
	return result
}
