package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"

	"github.com/54b3r/waiterbot-go/internal/chat"
	"github.com/54b3r/waiterbot-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// exceed HandlerTimeout.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// HandlerTimeout bounds a single event invocation (default: 60s).
	HandlerTimeout time.Duration
	// MaxInstances caps concurrent event invocations. Requests beyond the cap
	// receive 429 (default: 5).
	MaxInstances int
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default() is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks.
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on the event
	// routes (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on the event routes.
	// If empty, authentication is disabled.
	APIKey string
	// MetricsRegistry receives the server metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Ingester embeds a menu item document. *ingest.Handler satisfies it.
type Ingester interface {
	Handle(ctx context.Context, id string, data map[string]any) (store.EmbeddingRecord, error)
}

// Responder answers a chat message. *chat.Handler satisfies it.
type Responder interface {
	Handle(ctx context.Context, msg chat.Message) (chat.Result, error)
}

// Server receives document events over HTTP and dispatches them to the
// ingestion and chat handlers.
type Server struct {
	// ingester handles POST /events/food/{documentId}.
	ingester Ingester
	// responder handles POST /events/query/{documentId}/chats/{chatId}.
	responder Responder
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors.
	metrics *serverMetrics
	// slots caps in-flight event invocations.
	slots *semaphore.Weighted
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// chatEvent is the JSON body of a chat document event.
type chatEvent struct {
	// Source is the message author ("user", "bot", ...).
	Source string `json:"source"`
	// Message is the message text.
	Message string `json:"message"`
}

// ingestResponse is the JSON response for a menu item event.
type ingestResponse struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Dimensions int    `json:"dimensions"`
}

// passageResponse is one retrieved passage in a chatResponse.
type passageResponse struct {
	ID    string  `json:"id"`
	Score float32 `json:"score"`
}

// chatResponse is the JSON response for a chat event.
type chatResponse struct {
	Skipped   bool              `json:"skipped"`
	Reason    string            `json:"reason,omitempty"`
	Reply     string            `json:"reply,omitempty"`
	MessageID string            `json:"messageId,omitempty"`
	Resynced  bool              `json:"resynced,omitempty"`
	Passages  []passageResponse `json:"passages,omitempty"`
}

// errorResponse is the JSON body of every failed event.
type errorResponse struct {
	Error string `json:"error"`
}
