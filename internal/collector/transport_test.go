package collector

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// scripted replies with the given responses in order, repeating the last one.
func scripted(responses ...func() *http.Response) (http.RoundTripper, *int) {
	calls := 0
	return roundTripFunc(func(*http.Request) (*http.Response, error) {
		i := calls
		if i >= len(responses) {
			i = len(responses) - 1
		}
		calls++
		return responses[i](), nil
	}), &calls
}

func response(status int, body string, headers map[string]string) func() *http.Response {
	return func() *http.Response {
		h := http.Header{}
		for k, v := range headers {
			h.Set(k, v)
		}
		return &http.Response{
			StatusCode: status,
			Header:     h,
			Body:       io.NopCloser(strings.NewReader(body)),
		}
	}
}

func ok() func() *http.Response {
	return response(http.StatusOK, `[]`, nil)
}

func primaryLimit() func() *http.Response {
	reset := strconv.FormatInt(time.Now().Add(30*time.Second).Unix(), 10)
	return response(http.StatusForbidden, `{"message":"API rate limit exceeded"}`, map[string]string{
		"X-RateLimit-Remaining": "0",
		"X-RateLimit-Reset":     reset,
	})
}

func secondaryLimit() func() *http.Response {
	return response(http.StatusForbidden, `{"message":"You have exceeded a secondary rate limit."}`, map[string]string{
		"Retry-After": "7",
	})
}

// observedLogger returns a logger that records every entry.
func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

type recordedSleeps struct {
	durations []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.durations = append(r.durations, d)
	return nil
}

func newRequest(t *testing.T) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, "https://api.github.com/repos/acme/api/teams", nil)
	require.NoError(t, err)
	return req
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy{}

	assert.True(t, p.OnPrimaryLimit(0))
	assert.False(t, p.OnPrimaryLimit(1))
	assert.False(t, p.OnPrimaryLimit(2))
	assert.True(t, p.OnSecondaryLimit())
}

func TestRateLimitTransport_PrimaryLimit(t *testing.T) {
	t.Run("retries once then succeeds", func(t *testing.T) {
		base, calls := scripted(primaryLimit(), ok())
		logger, logs := observedLogger()
		sleeps := &recordedSleeps{}
		tr := &RateLimitTransport{Base: base, Logger: logger, sleep: sleeps.sleep}

		resp, err := tr.RoundTrip(newRequest(t))

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 2, *calls)
		require.Len(t, sleeps.durations, 1)
		assert.Greater(t, sleeps.durations[0], 20*time.Second)

		warn := logs.FilterMessage("Request quota exhausted for request GET https://api.github.com/repos/acme/api/teams")
		require.Equal(t, 1, warn.Len())
		assert.Equal(t, zapcore.WarnLevel, warn.All()[0].Level)
		assert.Equal(t, "GET", warn.All()[0].ContextMap()["method"])
		assert.Equal(t, 1, logs.FilterLevelExact(zapcore.InfoLevel).Len(), "retry notice")
	})

	t.Run("gives up after one retry", func(t *testing.T) {
		base, calls := scripted(primaryLimit())
		sleeps := &recordedSleeps{}
		tr := &RateLimitTransport{Base: base, sleep: sleeps.sleep}

		resp, err := tr.RoundTrip(newRequest(t))

		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, 2, *calls)
		assert.Len(t, sleeps.durations, 1)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "API rate limit exceeded", "body stays readable")
	})
}

func TestRateLimitTransport_SecondaryLimit(t *testing.T) {
	t.Run("retries every occurrence", func(t *testing.T) {
		base, calls := scripted(secondaryLimit(), secondaryLimit(), secondaryLimit(), secondaryLimit(), ok())
		logger, logs := observedLogger()
		sleeps := &recordedSleeps{}
		tr := &RateLimitTransport{Base: base, Logger: logger, sleep: sleeps.sleep}

		resp, err := tr.RoundTrip(newRequest(t))

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 5, *calls)
		assert.Equal(t, []time.Duration{7 * time.Second, 7 * time.Second, 7 * time.Second, 7 * time.Second}, sleeps.durations)
		assert.Equal(t, 4, logs.FilterMessage("Abuse detected for request GET https://api.github.com/repos/acme/api/teams").Len())
	})

	t.Run("defaults to one minute without retry-after", func(t *testing.T) {
		base, _ := scripted(
			response(http.StatusForbidden, `{"message":"You have triggered an abuse detection mechanism."}`, nil),
			ok(),
		)
		sleeps := &recordedSleeps{}
		tr := &RateLimitTransport{Base: base, sleep: sleeps.sleep}

		_, err := tr.RoundTrip(newRequest(t))

		require.NoError(t, err)
		assert.Equal(t, []time.Duration{time.Minute}, sleeps.durations)
	})

	t.Run("ignores the quota reset while quota remains", func(t *testing.T) {
		reset := strconv.FormatInt(time.Now().Add(50*time.Minute).Unix(), 10)
		base, _ := scripted(
			response(http.StatusForbidden, `{"message":"You have exceeded a secondary rate limit."}`, map[string]string{
				"X-RateLimit-Remaining": "4321",
				"X-RateLimit-Reset":     reset,
			}),
			ok(),
		)
		sleeps := &recordedSleeps{}
		tr := &RateLimitTransport{Base: base, sleep: sleeps.sleep}

		_, err := tr.RoundTrip(newRequest(t))

		require.NoError(t, err)
		assert.Equal(t, []time.Duration{time.Minute}, sleeps.durations)
	})

	t.Run("waits for the reset when quota is exhausted", func(t *testing.T) {
		reset := strconv.FormatInt(time.Now().Add(5*time.Minute).Unix(), 10)
		base, _ := scripted(
			response(http.StatusForbidden, `{"message":"You have exceeded a secondary rate limit."}`, map[string]string{
				"X-RateLimit-Remaining": "0",
				"X-RateLimit-Reset":     reset,
			}),
			ok(),
		)
		sleeps := &recordedSleeps{}
		tr := &RateLimitTransport{Base: base, sleep: sleeps.sleep}

		_, err := tr.RoundTrip(newRequest(t))

		require.NoError(t, err)
		require.Len(t, sleeps.durations, 1)
		assert.Greater(t, sleeps.durations[0], 4*time.Minute)
	})

	t.Run("policy can refuse", func(t *testing.T) {
		base, calls := scripted(secondaryLimit())
		tr := &RateLimitTransport{Base: base, Policy: refusingPolicy{}, sleep: (&recordedSleeps{}).sleep}

		resp, err := tr.RoundTrip(newRequest(t))

		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, 1, *calls)
	})
}

type refusingPolicy struct{}

func (refusingPolicy) OnPrimaryLimit(int) bool { return false }
func (refusingPolicy) OnSecondaryLimit() bool  { return false }

func TestRateLimitTransport_PlainForbidden(t *testing.T) {
	base, calls := scripted(response(http.StatusForbidden, `{"message":"Resource not accessible"}`, map[string]string{
		"X-RateLimit-Remaining": "4000",
	}))
	tr := &RateLimitTransport{Base: base}

	resp, err := tr.RoundTrip(newRequest(t))

	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 1, *calls)
}

func TestRateLimitTransport_ServerErrors(t *testing.T) {
	t.Run("retries with backoff", func(t *testing.T) {
		base, calls := scripted(response(http.StatusBadGateway, "", nil), response(http.StatusServiceUnavailable, "", nil), ok())
		sleeps := &recordedSleeps{}
		tr := &RateLimitTransport{Base: base, MaxServerRetries: 3, sleep: sleeps.sleep}

		resp, err := tr.RoundTrip(newRequest(t))

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 3, *calls)
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps.durations)
	})

	t.Run("returns last response when exhausted", func(t *testing.T) {
		base, calls := scripted(response(http.StatusInternalServerError, "", nil))
		tr := &RateLimitTransport{Base: base, MaxServerRetries: 2, sleep: (&recordedSleeps{}).sleep}

		resp, err := tr.RoundTrip(newRequest(t))

		require.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, 3, *calls)
	})

	t.Run("retries network errors", func(t *testing.T) {
		calls := 0
		base := roundTripFunc(func(*http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("connection reset by peer")
			}
			return ok()(), nil
		})
		tr := &RateLimitTransport{Base: base, MaxServerRetries: 1, sleep: (&recordedSleeps{}).sleep}

		resp, err := tr.RoundTrip(newRequest(t))

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 2, calls)
	})

	t.Run("no retries configured", func(t *testing.T) {
		base := roundTripFunc(func(*http.Request) (*http.Response, error) {
			return nil, errors.New("dial tcp: refused")
		})
		tr := &RateLimitTransport{Base: base}

		_, err := tr.RoundTrip(newRequest(t))

		assert.Error(t, err)
	})
}

func TestRateLimitTransport_ContextCancelled(t *testing.T) {
	base, calls := scripted(secondaryLimit())
	tr := &RateLimitTransport{Base: base}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.RoundTrip(newRequest(t).WithContext(ctx))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, *calls)
}

func TestRetryDelay(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	t.Run("retry-after wins", func(t *testing.T) {
		resp := response(http.StatusForbidden, "", map[string]string{"Retry-After": "12", "X-RateLimit-Reset": "1700000100"})()
		assert.Equal(t, 12*time.Second, retryDelay(resp, now, time.Minute))
	})

	t.Run("reset time", func(t *testing.T) {
		resp := response(http.StatusForbidden, "", map[string]string{"X-RateLimit-Reset": "1700000030"})()
		assert.Equal(t, 31*time.Second, retryDelay(resp, now, time.Minute))
	})

	t.Run("reset in the past", func(t *testing.T) {
		resp := response(http.StatusForbidden, "", map[string]string{"X-RateLimit-Reset": "1699999990"})()
		assert.Equal(t, time.Duration(0), retryDelay(resp, now, time.Minute))
	})

	t.Run("fallback", func(t *testing.T) {
		resp := response(http.StatusForbidden, "", nil)()
		assert.Equal(t, time.Minute, retryDelay(resp, now, time.Minute))
	})
}

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, nextBackoff(time.Second))
	assert.Equal(t, 30*time.Second, nextBackoff(20*time.Second))
}
