package collector

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	headerRateRemaining = "X-RateLimit-Remaining"
	headerRateReset     = "X-RateLimit-Reset"
	headerRetryAfter    = "Retry-After"

	// lowRemaining is the quota floor below which requests wait for the reset
	lowRemaining = 10
)

// RateLimiter manages GitHub API rate limiting
type RateLimiter interface {
	Wait(ctx context.Context) error
	CheckLimit() (remaining int, resetTime time.Time, err error)
	UpdateLimit(remaining int, resetTime time.Time)
}

// githubRateLimiter throttles requests proactively and pauses when the
// quota reported by the API runs low.
type githubRateLimiter struct {
	mu        sync.Mutex
	remaining int // -1 until the first response is seen
	resetTime time.Time
	bucket    *rate.Limiter
	logger    *zap.Logger
}

// NewRateLimiter creates a new rate limiter.
// A requestsPerSecond of zero disables proactive throttling.
func NewRateLimiter(requestsPerSecond float64, logger *zap.Logger) RateLimiter {
	r := &githubRateLimiter{
		remaining: -1,
		logger:    logger,
	}
	if requestsPerSecond > 0 {
		r.bucket = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return r
}

// Wait waits until it's safe to make another API call
func (r *githubRateLimiter) Wait(ctx context.Context) error {
	if r.bucket != nil {
		if err := r.bucket.Wait(ctx); err != nil {
			return err
		}
	}

	r.mu.Lock()
	remaining := r.remaining
	resetTime := r.resetTime
	r.mu.Unlock()

	if remaining < 0 || remaining > lowRemaining {
		return nil
	}

	waitDuration := time.Until(resetTime)
	if waitDuration <= 0 {
		return nil
	}

	r.logger.Warn("Rate limit low, waiting until reset",
		zap.Int("remaining", remaining),
		zap.Duration("wait", waitDuration.Round(time.Second)),
	)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(waitDuration):
	}

	r.mu.Lock()
	if r.resetTime.Equal(resetTime) {
		r.remaining = -1
	}
	r.mu.Unlock()
	return nil
}

// CheckLimit returns the current rate limit status
func (r *githubRateLimiter) CheckLimit() (remaining int, resetTime time.Time, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remaining, r.resetTime, nil
}

// UpdateLimit updates the rate limit from API response headers
func (r *githubRateLimiter) UpdateLimit(remaining int, resetTime time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remaining = remaining
	r.resetTime = resetTime
}

// updateFromHeaders feeds X-RateLimit-* headers into the limiter.
// Responses without a remaining count leave the limiter untouched.
func updateFromHeaders(limiter RateLimiter, header http.Header) {
	remaining, err := strconv.Atoi(header.Get(headerRateRemaining))
	if err != nil {
		return
	}
	limiter.UpdateLimit(remaining, resetFromHeader(header))
}

func resetFromHeader(header http.Header) time.Time {
	reset, err := strconv.ParseInt(header.Get(headerRateReset), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(reset, 0)
}
