package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/54b3r/waiterbot-go/internal/chat"
	"github.com/54b3r/waiterbot-go/internal/ingest"
	"github.com/54b3r/waiterbot-go/internal/logging"
	"github.com/54b3r/waiterbot-go/internal/rag"
)

// maxEventBytes bounds the size of an event body.
const maxEventBytes = 1 << 20

// Handler labels used in invocation metrics and logs.
const (
	handlerFood = "food"
	handlerChat = "chat"
)

// Invocation outcomes.
const (
	outcomeOK       = "ok"
	outcomeSkipped  = "skipped"
	outcomeRejected = "rejected"
	outcomeUpstream = "upstream_error"
	outcomeTimeout  = "timeout"
	outcomeError    = "error"
)

// badRequestError marks a malformed event.
type badRequestError struct{ msg string }

func (e *badRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &badRequestError{msg: fmt.Sprintf(format, args...)}
}

// handleFoodEvent handles POST /events/food/{documentId}. The body is the
// menu item document.
func (s *Server) handleFoodEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("documentId")
	s.invoke(w, r, handlerFood, func(ctx context.Context) (any, string, error) {
		var data map[string]any
		if err := decodeEvent(r, &data); err != nil {
			return nil, "", err
		}
		rec, err := s.ingester.Handle(ctx, id, data)
		if err != nil {
			return nil, "", err
		}
		return ingestResponse{ID: rec.ID, Text: rec.Text, Dimensions: len(rec.Vector)}, outcomeOK, nil
	})
}

// handleChatEvent handles POST /events/query/{documentId}/chats/{chatId}.
// The body is the chat document {"source", "message"}.
func (s *Server) handleChatEvent(w http.ResponseWriter, r *http.Request) {
	convID := r.PathValue("documentId")
	s.invoke(w, r, handlerChat, func(ctx context.Context) (any, string, error) {
		var ev chatEvent
		if err := decodeEvent(r, &ev); err != nil {
			return nil, "", err
		}
		res, err := s.responder.Handle(ctx, chat.Message{
			ConversationID: convID,
			Author:         ev.Source,
			Content:        ev.Message,
		})
		if err != nil {
			return nil, "", err
		}
		out := chatResponse{
			Skipped:   res.Skipped,
			Reason:    res.Reason,
			Reply:     res.Reply,
			MessageID: res.MessageID,
			Resynced:  res.Resynced,
		}
		for _, p := range res.Passages {
			out.Passages = append(out.Passages, passageResponse{ID: p.ID, Score: p.Score})
		}
		if res.Skipped {
			return out, outcomeSkipped, nil
		}
		return out, outcomeOK, nil
	})
}

// invoke runs fn under the concurrency cap and the handler timeout, records
// metrics and writes the JSON result or mapped error.
func (s *Server) invoke(w http.ResponseWriter, r *http.Request, handler string, fn func(ctx context.Context) (any, string, error)) {
	log := logging.FromContext(r.Context()).With(slog.String("handler", handler))

	if !s.slots.TryAcquire(1) {
		log.Warn("server: invocation cap reached", slog.Int("max_instances", s.cfg.MaxInstances))
		s.metrics.invocationsTotal.WithLabelValues(handler, outcomeRejected).Inc()
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many concurrent invocations"}, log)
		return
	}
	defer s.slots.Release(1)

	s.metrics.inFlight.Inc()
	defer s.metrics.inFlight.Dec()

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HandlerTimeout)
	defer cancel()
	ctx = logging.WithLogger(ctx, log)

	start := time.Now()
	body, outcome, err := fn(ctx)
	s.metrics.invocationDurationSeconds.WithLabelValues(handler).Observe(time.Since(start).Seconds())

	if err != nil {
		status := statusFor(err)
		outcome = outcomeFor(err, status)
		s.metrics.invocationsTotal.WithLabelValues(handler, outcome).Inc()
		if status >= http.StatusInternalServerError {
			log.Error("server: invocation failed", slog.Int("status", status), slog.Any("error", err))
		} else {
			log.Warn("server: event rejected", slog.Int("status", status), slog.Any("error", err))
		}
		writeJSON(w, status, errorResponse{Error: err.Error()}, log)
		return
	}

	s.metrics.invocationsTotal.WithLabelValues(handler, outcome).Inc()
	writeJSON(w, http.StatusOK, body, log)
}

// statusFor maps a handler error to an HTTP status. 4xx statuses tell push
// platforms not to redeliver.
func statusFor(err error) int {
	var missing *ingest.MissingFieldError
	var bad *badRequestError
	switch {
	case errors.As(err, &missing), errors.As(err, &bad):
		return http.StatusBadRequest
	case rag.IsUpstream(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func outcomeFor(err error, status int) string {
	switch {
	case status == http.StatusBadRequest:
		return outcomeRejected
	case status == http.StatusBadGateway:
		return outcomeUpstream
	case errors.Is(err, context.DeadlineExceeded):
		return outcomeTimeout
	default:
		return outcomeError
	}
}

// decodeEvent decodes the JSON request body into v.
func decodeEvent(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxEventBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("empty event body")
		}
		return badRequest("invalid event body: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any, log *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("server: encode response", slog.Any("error", err))
	}
}
