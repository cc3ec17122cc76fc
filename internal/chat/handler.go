// Package chat answers customer chat messages: it syncs the menu index,
// retrieves the closest menu passages, asks the completion client for a
// reply and appends the exchange to the conversation.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/54b3r/waiterbot-go/internal/completion"
	"github.com/54b3r/waiterbot-go/internal/menuindex"
	"github.com/54b3r/waiterbot-go/internal/rag"
	"github.com/54b3r/waiterbot-go/internal/store"
)

// Skip reasons reported in Result.Reason.
const (
	ReasonNoAuthor   = "message has no author"
	ReasonBotMessage = "message was written by the bot"
)

// Message is an incoming chat message.
type Message struct {
	// ConversationID is the query document id.
	ConversationID string
	// Author is the message source; "" and "bot" are ignored.
	Author string
	// Content is the message text.
	Content string
}

// Result is the outcome of handling one message.
type Result struct {
	// Skipped is true when the message was ignored without side effects.
	Skipped bool
	// Reason explains a skip.
	Reason string
	// Reply is the bot reply.
	Reply string
	// MessageID is the id of the stored bot message.
	MessageID string
	// Passages are the retrieved menu passages, most similar first.
	Passages []rag.Passage
	// Resynced reports whether the index was rebuilt before retrieval.
	Resynced bool
}

// Completer produces a reply from history and passages.
type Completer interface {
	Complete(ctx context.Context, req completion.Request) (completion.Response, error)
}

// Config holds the dependencies of a Handler.
type Config struct {
	// Syncer keeps the index in step with the embedding store.
	Syncer *menuindex.Syncer
	// Conversations reads and writes history and bot messages.
	Conversations store.ConversationStore
	// Settings supplies the sampling temperature.
	Settings store.SettingsStore
	// Completer generates the reply.
	Completer Completer
	// TopK is the number of passages retrieved. Defaults to 2.
	TopK int
	// Temperature is used when the settings document has none.
	Temperature float32
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Handler answers chat messages.
type Handler struct {
	syncer        *menuindex.Syncer
	conversations store.ConversationStore
	settings      store.SettingsStore
	completer     Completer
	topK          int
	temperature   float32
	log           *slog.Logger
}

// NewHandler returns a Handler.
func NewHandler(cfg Config) (*Handler, error) {
	switch {
	case cfg.Syncer == nil:
		return nil, errors.New("chat: index syncer must not be nil")
	case cfg.Conversations == nil:
		return nil, errors.New("chat: conversation store must not be nil")
	case cfg.Settings == nil:
		return nil, errors.New("chat: settings store must not be nil")
	case cfg.Completer == nil:
		return nil, errors.New("chat: completer must not be nil")
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 2
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		syncer:        cfg.Syncer,
		conversations: cfg.Conversations,
		settings:      cfg.Settings,
		completer:     cfg.Completer,
		topK:          topK,
		temperature:   cfg.Temperature,
		log:           log,
	}, nil
}

// Handle answers msg. Messages without an author or written by the bot are
// skipped before any read or write.
//
// Handle is not idempotent: a re-delivered message is answered again and a
// second reply is appended. Concurrent messages in one conversation race on
// the stored history.
func (h *Handler) Handle(ctx context.Context, msg Message) (Result, error) {
	switch strings.TrimSpace(msg.Author) {
	case "":
		return Result{Skipped: true, Reason: ReasonNoAuthor}, nil
	case store.SourceBot:
		return Result{Skipped: true, Reason: ReasonBotMessage}, nil
	}
	if msg.ConversationID == "" {
		return Result{}, errors.New("chat: conversation id is required")
	}
	log := h.log.With(slog.String("conversation", msg.ConversationID))

	resynced, err := h.syncer.Sync(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("chat: %w", err)
	}

	conv, err := h.conversations.Conversation(ctx, msg.ConversationID)
	if err != nil {
		return Result{}, fmt.Errorf("chat: %w", err)
	}
	history := append(conv.History, store.ChatMessage{Author: msg.Author, Content: msg.Content})

	passages, err := h.syncer.Query(ctx, msg.Content, h.topK)
	if err != nil {
		return Result{}, fmt.Errorf("chat: retrieve: %w", err)
	}
	log.Debug("chat: retrieved passages", slog.Int("count", len(passages)))

	temp, err := h.temperatureFor(ctx)
	if err != nil {
		return Result{}, err
	}

	resp, err := h.completer.Complete(ctx, completion.Request{
		History:     history,
		Passages:    rag.Texts(passages),
		Temperature: temp,
	})
	if err != nil {
		return Result{}, fmt.Errorf("chat: %w", err)
	}

	history = append(history, store.ChatMessage{Author: store.SourceBot, Content: resp.Reply})
	if err := h.conversations.SaveConversation(ctx, msg.ConversationID, store.Conversation{
		History: history,
		Context: resp.Context,
	}); err != nil {
		return Result{}, fmt.Errorf("chat: %w", err)
	}
	id, err := h.conversations.AddMessage(ctx, msg.ConversationID, resp.Reply, store.SourceBot)
	if err != nil {
		return Result{}, fmt.Errorf("chat: %w", err)
	}

	log.Info("chat: replied",
		slog.Int("history", len(history)),
		slog.Int("passages", len(passages)),
		slog.Bool("resynced", resynced),
	)
	return Result{
		Reply:     resp.Reply,
		MessageID: id,
		Passages:  passages,
		Resynced:  resynced,
	}, nil
}

// temperatureFor returns the settings temperature, or the configured
// fallback when the document has none.
func (h *Handler) temperatureFor(ctx context.Context) (float32, error) {
	st, err := h.settings.Settings(ctx)
	if err != nil {
		return 0, fmt.Errorf("chat: %w", err)
	}
	if st.Temperature != nil {
		return *st.Temperature, nil
	}
	return h.temperature, nil
}
