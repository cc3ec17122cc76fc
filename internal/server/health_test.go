package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/waiterbot-go/internal/provider"
)

// fakePinger is a test double for the Pinger interface.
type fakePinger struct {
	name  string
	err   error
	delay time.Duration
}

func (f *fakePinger) Name() string { return f.name }

func (f *fakePinger) Ping(ctx context.Context) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

func getReady(t *testing.T, pingers ...Pinger) (*httptest.ResponseRecorder, readyResponse) {
	t.Helper()
	ts := newTestServer(t, func(c *Config) { c.Pingers = pingers })
	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)

	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var resp readyResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return w, resp
}

func TestHandleHealth_OK(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, func(c *Config) {
		c.Pingers = []Pinger{&fakePinger{name: "store/sqlite", err: errors.New("down")}}
	})
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestHandleReady_NoPingers(t *testing.T) {
	t.Parallel()

	w, resp := getReady(t)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Ready)
	assert.Empty(t, resp.Checks)
}

func TestHandleReady_AllHealthy(t *testing.T) {
	t.Parallel()

	w, resp := getReady(t,
		&fakePinger{name: "store/sqlite"},
		&fakePinger{name: "qdrant"},
	)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Ready)
	require.Len(t, resp.Checks, 2)
	for _, c := range resp.Checks {
		assert.True(t, c.OK, c.Name)
		assert.Empty(t, c.Error, c.Name)
	}
}

func TestHandleReady_OneFailing(t *testing.T) {
	t.Parallel()

	w, resp := getReady(t,
		&fakePinger{name: "store/firestore"},
		&fakePinger{name: "qdrant", err: errors.New("connection refused")},
	)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.False(t, resp.Ready)
	require.Len(t, resp.Checks, 2)
	assert.Equal(t, readyCheck{Name: "store/firestore", OK: true}, resp.Checks[0])
	assert.Equal(t, readyCheck{Name: "qdrant", Error: "connection refused"}, resp.Checks[1])
}

func TestHandleReady_ProbesRunConcurrentlyInOrder(t *testing.T) {
	t.Parallel()

	start := time.Now()
	w, resp := getReady(t,
		&fakePinger{name: "a", delay: 100 * time.Millisecond},
		&fakePinger{name: "b", delay: 100 * time.Millisecond},
		&fakePinger{name: "c", delay: 100 * time.Millisecond},
	)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Less(t, time.Since(start), 250*time.Millisecond)
	require.Len(t, resp.Checks, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{resp.Checks[0].Name, resp.Checks[1].Name, resp.Checks[2].Name})
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestDependencyPingers(t *testing.T) {
	t.Parallel()

	ok := NewStorePinger(pingFunc(func(context.Context) error { return nil }), "sqlite")
	assert.Equal(t, "store/sqlite", ok.Name())
	assert.NoError(t, ok.Ping(context.Background()))

	down := NewQdrantPinger(pingFunc(func(context.Context) error { return errors.New("unavailable") }))
	assert.Equal(t, "qdrant", down.Name())
	assert.ErrorContains(t, down.Ping(context.Background()), "unavailable")
}

func TestLLMPinger(t *testing.T) {
	t.Parallel()

	assert.Nil(t, NewLLMPinger(nil, "ark"))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	p := NewLLMPinger(&provider.ProviderOllama{Host: srv.URL, Model: "llama3"}, "ollama")
	require.NotNil(t, p)
	assert.Equal(t, "ollama", p.Name())
	assert.NoError(t, p.Ping(context.Background()))
}
