// Package ratelimit implements fixed-window per-principal per-endpoint
// admission control backed by the registry's rate counters.
package ratelimit

import (
	"context"
	"time"

	"github.com/storeforge/storeforge-backend/internal/repository"
)

// Limiter counts admissions in discrete windows aligned to the window size.
type Limiter struct {
	repo repository.Registry
	now  func() time.Time
}

func NewLimiter(repo repository.Registry) *Limiter {
	return &Limiter{repo: repo, now: time.Now}
}

// WindowStart returns the bucket boundary containing now.
func WindowStart(now time.Time, windowSeconds int) time.Time {
	epoch := now.Unix()
	return time.Unix(epoch-epoch%int64(windowSeconds), 0).UTC()
}

// Allow admits or rejects one request for (userID, endpoint). retryAfter is
// the Retry-After hint in seconds: on denial, the remainder of the current
// window (at least 1); on admission, the window size.
func (l *Limiter) Allow(ctx context.Context, userID, endpoint string, limit, windowSeconds int) (allowed bool, retryAfter int, err error) {
	now := l.now().UTC()
	windowStart := WindowStart(now, windowSeconds)

	count, err := l.repo.IncrementRateCounter(ctx, userID, endpoint, windowStart)
	if err != nil {
		return false, 0, err
	}
	if count > limit {
		windowEnd := windowStart.Add(time.Duration(windowSeconds) * time.Second)
		retryAfter = int(windowEnd.Sub(now).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		return false, retryAfter, nil
	}
	return true, windowSeconds, nil
}
