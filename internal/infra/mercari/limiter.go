package mercari

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Limiter bounds outbound calls by a sustained rate and a concurrency cap.
// Waiters are admitted in arrival order.
type Limiter struct {
	sem    *semaphore.Weighted
	bucket *rate.Limiter

	requestsPerMinute int
	maxConcurrent     int

	inFlight atomic.Int64
	queued   atomic.Int64
}

// LimiterStats is a snapshot of the limiter
type LimiterStats struct {
	InFlight          int
	Queued            int
	RequestsPerMinute int
	MaxConcurrent     int
}

// NewLimiter creates a limiter refilling one token every minute/requestsPerMinute
func NewLimiter(requestsPerMinute, maxConcurrent int) *Limiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = DefaultRequestsPerMinute
	}
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	interval := time.Minute / time.Duration(requestsPerMinute)
	return &Limiter{
		sem:               semaphore.NewWeighted(int64(maxConcurrent)),
		bucket:            rate.NewLimiter(rate.Every(interval), 1),
		requestsPerMinute: requestsPerMinute,
		maxConcurrent:     maxConcurrent,
	}
}

// Acquire blocks until the call may proceed. The returned release must be called once.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	l.queued.Add(1)
	defer l.queued.Add(-1)

	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if err := l.bucket.Wait(ctx); err != nil {
		l.sem.Release(1)
		return nil, err
	}

	l.inFlight.Add(1)
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			l.inFlight.Add(-1)
			l.sem.Release(1)
		}
	}, nil
}

// Stats returns the current usage
func (l *Limiter) Stats() LimiterStats {
	return LimiterStats{
		InFlight:          int(l.inFlight.Load()),
		Queued:            int(l.queued.Load()),
		RequestsPerMinute: l.requestsPerMinute,
		MaxConcurrent:     l.maxConcurrent,
	}
}
