package collector

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	// defaultSecondaryWait applies when a secondary limit carries no Retry-After
	defaultSecondaryWait = time.Minute

	initialServerBackoff = time.Second
	maxServerBackoff     = 30 * time.Second

	// maxInspectedBody bounds how much of a throttled response is read to classify it
	maxInspectedBody = 64 << 10
)

var secondaryLimitPattern = regexp.MustCompile(`(?i)secondary rate|abuse`)

// RetryPolicy decides whether a throttled request is sent again.
type RetryPolicy interface {
	// OnPrimaryLimit is called when the request quota is exhausted.
	// attempt counts the primary-limit retries already made for the request.
	OnPrimaryLimit(attempt int) bool
	// OnSecondaryLimit is called when abuse detection throttles the request.
	OnSecondaryLimit() bool
}

// DefaultRetryPolicy retries a quota exhaustion once and every secondary limit.
type DefaultRetryPolicy struct{}

func (DefaultRetryPolicy) OnPrimaryLimit(attempt int) bool { return attempt == 0 }

func (DefaultRetryPolicy) OnSecondaryLimit() bool { return true }

type limitKind int

const (
	limitNone limitKind = iota
	limitPrimary
	limitSecondary
	limitServer
)

// RateLimitTransport retries requests throttled by the GitHub API and
// transient server failures.
type RateLimitTransport struct {
	Base             http.RoundTripper
	Policy           RetryPolicy
	Limiter          RateLimiter
	Logger           *zap.Logger
	MaxServerRetries int

	// sleep is replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// RoundTrip implements http.RoundTripper
func (t *RateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	primaryAttempts := 0
	serverAttempts := 0
	backoff := initialServerBackoff

	for {
		if t.Limiter != nil {
			if err := t.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		attempt, err := rewind(req)
		if err != nil {
			return nil, err
		}

		resp, err := t.base().RoundTrip(attempt)
		if err != nil {
			if ctx.Err() != nil || serverAttempts >= t.MaxServerRetries {
				return nil, err
			}
			serverAttempts++
			t.logger().Warn("Request failed, retrying",
				zap.String("method", req.Method),
				zap.String("url", req.URL.String()),
				zap.Int("attempt", serverAttempts),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			if err := t.wait(ctx, backoff); err != nil {
				return nil, err
			}
			backoff = nextBackoff(backoff)
			continue
		}

		if t.Limiter != nil {
			updateFromHeaders(t.Limiter, resp.Header)
		}

		var delay time.Duration
		switch classify(resp) {
		case limitPrimary:
			t.logger().Warn(fmt.Sprintf("Request quota exhausted for request %s %s", req.Method, req.URL),
				zap.String("method", req.Method),
				zap.String("url", req.URL.String()),
			)
			if !t.policy().OnPrimaryLimit(primaryAttempts) {
				return resp, nil
			}
			primaryAttempts++
			delay = retryDelay(resp, time.Now(), 0)
			t.logger().Info(fmt.Sprintf("Retrying after %d seconds!", int(math.Ceil(delay.Seconds()))),
				zap.String("method", req.Method),
				zap.String("url", req.URL.String()),
			)

		case limitSecondary:
			delay = secondaryDelay(resp, time.Now())
			t.logger().Warn(fmt.Sprintf("Abuse detected for request %s %s", req.Method, req.URL),
				zap.String("method", req.Method),
				zap.String("url", req.URL.String()),
				zap.Duration("retry_after", delay),
			)
			if !t.policy().OnSecondaryLimit() {
				return resp, nil
			}

		case limitServer:
			if serverAttempts >= t.MaxServerRetries {
				return resp, nil
			}
			serverAttempts++
			delay = backoff
			backoff = nextBackoff(backoff)
			t.logger().Warn("Server error, retrying",
				zap.String("method", req.Method),
				zap.String("url", req.URL.String()),
				zap.Int("status_code", resp.StatusCode),
				zap.Int("attempt", serverAttempts),
				zap.Duration("backoff", delay),
			)

		default:
			return resp, nil
		}

		drain(resp)
		if err := t.wait(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (t *RateLimitTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *RateLimitTransport) policy() RetryPolicy {
	if t.Policy != nil {
		return t.Policy
	}
	return DefaultRetryPolicy{}
}

func (t *RateLimitTransport) logger() *zap.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return zap.NewNop()
}

func (t *RateLimitTransport) wait(ctx context.Context, d time.Duration) error {
	if t.sleep != nil {
		return t.sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// classify inspects a response for throttling or transient failure.
// The body of a throttled response is buffered so it can still be read.
func classify(resp *http.Response) limitKind {
	switch resp.StatusCode {
	case http.StatusForbidden, http.StatusTooManyRequests:
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return limitServer
	default:
		return limitNone
	}

	body := peekBody(resp)
	if secondaryLimitPattern.Match(body) {
		return limitSecondary
	}
	if resp.Header.Get(headerRateRemaining) == "0" {
		return limitPrimary
	}
	if resp.Header.Get(headerRetryAfter) != "" {
		return limitSecondary
	}
	return limitNone
}

func peekBody(resp *http.Response) []byte {
	if resp.Body == nil {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxInspectedBody))
	resp.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(body), resp.Body), resp.Body}
	return body
}

// retryDelay prefers Retry-After, then the quota reset time, then fallback.
func retryDelay(resp *http.Response, now time.Time, fallback time.Duration) time.Duration {
	if v := resp.Header.Get(headerRetryAfter); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds >= 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	if reset := resetFromHeader(resp.Header); !reset.IsZero() {
		if d := reset.Sub(now); d > 0 {
			return d.Truncate(time.Second) + time.Second
		}
		return 0
	}
	return fallback
}

// secondaryDelay prefers Retry-After, then one minute. The quota reset only
// applies when the quota itself is exhausted.
func secondaryDelay(resp *http.Response, now time.Time) time.Duration {
	if resp.Header.Get(headerRetryAfter) == "" && resp.Header.Get(headerRateRemaining) != "0" {
		return defaultSecondaryWait
	}
	return retryDelay(resp, now, defaultSecondaryWait)
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxServerBackoff {
		return maxServerBackoff
	}
	return d
}

// rewind returns a request that can be sent again, restoring its body.
func rewind(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return req, nil
	}
	if req.GetBody == nil {
		return req, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	clone := req.Clone(req.Context())
	clone.Body = body
	return clone, nil
}

func drain(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxInspectedBody))
	_ = resp.Body.Close()
}
