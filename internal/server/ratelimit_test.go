package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/waiterbot-go/internal/logging"
)

// okHandler is a trivial handler used to verify that allowed requests reach
// the downstream handler.
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func newTestLimiter(t *testing.T, rps float64, burst int) *rateLimiter {
	t.Helper()
	rl, stop := newRateLimiter(rps, burst, logging.Discard())
	t.Cleanup(stop)
	return rl
}

func hit(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/events/food/pizza", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_AllowsUnderLimit(t *testing.T) {
	t.Parallel()

	h := newTestLimiter(t, 100, 5).middleware(okHandler)
	for i := range 5 {
		assert.Equal(t, http.StatusOK, hit(h, "127.0.0.1:12345").Code, "request %d", i)
	}
}

func TestRateLimit_BlocksOverLimit(t *testing.T) {
	t.Parallel()

	h := newTestLimiter(t, 0.001, 2).middleware(okHandler)
	hit(h, "10.0.0.1:9999")
	hit(h, "10.0.0.1:9999")

	w := hit(h, "10.0.0.1:9999")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	var body errorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "rate limit exceeded", body.Error)
}

func TestRateLimit_PerIPIsolation(t *testing.T) {
	t.Parallel()

	h := newTestLimiter(t, 0.001, 1).middleware(okHandler)
	for range 5 {
		hit(h, "192.168.1.1:1111")
	}
	assert.Equal(t, http.StatusOK, hit(h, "192.168.1.2:2222").Code)
}

func TestRateLimit_EvictsIdleEntries(t *testing.T) {
	t.Parallel()

	rl := newTestLimiter(t, 1, 1)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.getLimiter("10.0.0.1")
	now = now.Add(limiterTTL - time.Second)
	rl.getLimiter("10.0.0.2")
	now = now.Add(2 * time.Second)
	rl.evict()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.limiters, "10.0.0.1")
	assert.Contains(t, rl.limiters, "10.0.0.2")
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	cases := []struct {
		remoteAddr string
		wantIP     string
	}{
		{"127.0.0.1:54321", "127.0.0.1"},
		{"10.0.0.1:80", "10.0.0.1"},
		{"::1:8080", "::1"},
		{"noport", "noport"},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tc.remoteAddr
		assert.Equal(t, tc.wantIP, clientIP(req), "remoteAddr=%q", tc.remoteAddr)
	}
}
