package domain

import "time"

// TrackedQuery is a user's saved search, optionally re-executed by the tracker
type TrackedQuery struct {
	ID        string
	UserID    string
	Name      string
	Params    SearchParams
	IsTracked bool
	LastRun   time.Time // Last completed poll; advanced only by the tracker
	CreatedAt time.Time
	UpdatedAt time.Time
}

// QueryConfig holds per-user query rules (value object)
type QueryConfig struct {
	MaxPerUser int           // Quota of saved queries per user
	Lookback   time.Duration // Lookback window when a query has never been polled
}

// DefaultQueryConfig is the configuration used when none is given
var DefaultQueryConfig = QueryConfig{
	MaxPerUser: 5,
	Lookback:   24 * time.Hour,
}

// LowerBound returns the time after which listings count as new:
// the last run if there was one, otherwise now minus the lookback window.
func (q *TrackedQuery) LowerBound(now time.Time, lookback time.Duration) time.Time {
	if q.LastRun.IsZero() {
		return now.Add(-lookback)
	}
	return q.LastRun
}

// LastRunUpdate is a pending lastRun commit for one query, addressed by id
type LastRunUpdate struct {
	QueryID string
	LastRun time.Time
}
