package httpmiddleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, remoteAddr string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_UnderLimit(t *testing.T) {
	cfg := RateLimitConfig{Max: 5, Window: time.Minute}
	handler := RateLimit(NewMemoryLimiter(cfg.Max, cfg.Window), cfg)(okHandler())

	for i := range 5 {
		w := serve(handler, "192.168.1.1:12345", nil)
		assert.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimit_OverLimit(t *testing.T) {
	cfg := RateLimitConfig{Max: 2, Window: time.Minute}
	handler := RateLimit(NewMemoryLimiter(cfg.Max, cfg.Window), cfg)(okHandler())

	for range 2 {
		require.Equal(t, http.StatusOK, serve(handler, "10.0.0.1:9999", nil).Code)
	}

	w := serve(handler, "10.0.0.1:9999", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "rate_limited", body["code"])
	assert.Equal(t, "rate limit exceeded", body["message"])
}

func TestRateLimit_Keys(t *testing.T) {
	tests := []struct {
		name    string
		keyFunc func(*http.Request) string
		first   func(http.Handler) *httptest.ResponseRecorder
		same    func(http.Handler) *httptest.ResponseRecorder
		other   func(http.Handler) *httptest.ResponseRecorder
	}{
		{
			name:  "remote addr",
			first: func(h http.Handler) *httptest.ResponseRecorder { return serve(h, "10.0.0.1:1234", nil) },
			same:  func(h http.Handler) *httptest.ResponseRecorder { return serve(h, "10.0.0.1:5678", nil) },
			other: func(h http.Handler) *httptest.ResponseRecorder { return serve(h, "10.0.0.2:1234", nil) },
		},
		{
			name: "forwarded for",
			first: func(h http.Handler) *httptest.ResponseRecorder {
				return serve(h, "192.168.1.1:4444", map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18"})
			},
			same: func(h http.Handler) *httptest.ResponseRecorder {
				return serve(h, "192.168.1.2:5555", map[string]string{"X-Forwarded-For": "203.0.113.50"})
			},
			other: func(h http.Handler) *httptest.ResponseRecorder {
				return serve(h, "192.168.1.1:4444", map[string]string{"X-Forwarded-For": "203.0.113.51"})
			},
		},
		{
			name:    "custom key",
			keyFunc: func(r *http.Request) string { return r.Header.Get("X-API-Key") },
			first: func(h http.Handler) *httptest.ResponseRecorder {
				return serve(h, "", map[string]string{"X-API-Key": "key-a"})
			},
			same: func(h http.Handler) *httptest.ResponseRecorder {
				return serve(h, "", map[string]string{"X-API-Key": "key-a"})
			},
			other: func(h http.Handler) *httptest.ResponseRecorder {
				return serve(h, "", map[string]string{"X-API-Key": "key-b"})
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := RateLimitConfig{Max: 1, Window: time.Minute, KeyFunc: tt.keyFunc}
			h := RateLimit(NewMemoryLimiter(cfg.Max, cfg.Window), cfg)(okHandler())

			assert.Equal(t, http.StatusOK, tt.first(h).Code)
			assert.Equal(t, http.StatusTooManyRequests, tt.same(h).Code)
			assert.Equal(t, http.StatusOK, tt.other(h).Code)
		})
	}
}

func TestMemoryLimiter_WindowSlides(t *testing.T) {
	l := NewMemoryLimiter(2, time.Minute)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	for range 2 {
		d, err := l.Allow(ctx, "k", base)
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
	d, _ := l.Allow(ctx, "k", base.Add(30*time.Second))
	assert.False(t, d.Allowed)

	d, _ = l.Allow(ctx, "k", base.Add(3*time.Minute))
	assert.True(t, d.Allowed)
}

func TestRedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLimiter(client, 2, time.Minute)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 10, 0, 10, 0, time.UTC)

	d, err := l.Allow(ctx, "1.2.3.4", now)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
	assert.Equal(t, now.Truncate(time.Minute).Add(time.Minute), d.ResetAt)

	d, err = l.Allow(ctx, "1.2.3.4", now)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = l.Allow(ctx, "1.2.3.4", now)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Zero(t, d.Remaining)

	d, err = l.Allow(ctx, "1.2.3.4", now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, time.Time) (Decision, error) {
	return Decision{}, errors.New("redis down")
}

func TestRateLimit_FailsOpen(t *testing.T) {
	h := RateLimit(failingLimiter{}, RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())
	assert.Equal(t, http.StatusOK, serve(h, "10.0.0.1:1", nil).Code)
}
