// Package store persists the records waiterbot reads and writes: menu items,
// their embeddings, conversations with their bot replies, and the model
// settings document. Two backends satisfy the same interfaces: Firestore for
// deployed handlers and SQLite for local development and tests.
package store

import (
	"context"
	"errors"
	"time"
)

// Source values carried by chat message documents.
const (
	// SourceUser marks a message written by a customer.
	SourceUser = "user"
	// SourceBot marks a message written by the query handler.
	SourceBot = "bot"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// MenuItem is a loosely typed menu document keyed by id.
type MenuItem struct {
	// ID is the document id.
	ID string
	// Data holds the raw document fields (name, description, ingredients, price).
	Data map[string]any
}

// EmbeddingRecord is the stored embedding of one menu item.
type EmbeddingRecord struct {
	// ID equals the MenuItem id.
	ID string
	// Text is the flattened menu text that was embedded.
	Text string
	// Vector is the embedding of Text.
	Vector []float32
}

// ChatMessage is one entry of a conversation history.
type ChatMessage struct {
	// Author is "user", "bot" or any other source label.
	Author string `json:"author" firestore:"author"`
	// Content is the message text.
	Content string `json:"content" firestore:"content"`
}

// Conversation is the persisted state of one chat session.
type Conversation struct {
	// History is the ordered message history, oldest first.
	History []ChatMessage `json:"history" firestore:"history"`
	// Context is the grounding context used for the latest reply.
	Context string `json:"context" firestore:"context"`
}

// Message is a chat message document under a conversation.
type Message struct {
	// ID is the message document id.
	ID string
	// Message is the text.
	Message string
	// Source is the author label.
	Source string
	// Timestamp is the server-assigned write time.
	Timestamp time.Time
}

// Settings is the model settings document.
type Settings struct {
	// Temperature is the sampling temperature, nil when unset.
	Temperature *float32
}

// MenuStore reads and writes menu item documents.
type MenuStore interface {
	// MenuItem returns one item or ErrNotFound.
	MenuItem(ctx context.Context, id string) (MenuItem, error)
	// MenuItems returns every item ordered by id.
	MenuItems(ctx context.Context) ([]MenuItem, error)
	// PutMenuItem creates or replaces an item.
	PutMenuItem(ctx context.Context, item MenuItem) error
}

// EmbeddingStore maps menu item ids to their embeddings.
type EmbeddingStore interface {
	// PutEmbedding creates or overwrites the record for rec.ID.
	PutEmbedding(ctx context.Context, rec EmbeddingRecord) error
	// CountEmbeddings returns the number of stored records.
	CountEmbeddings(ctx context.Context) (int, error)
	// Embeddings returns every stored record in a stable order.
	Embeddings(ctx context.Context) ([]EmbeddingRecord, error)
}

// ConversationStore reads and writes conversations and their messages.
type ConversationStore interface {
	// Conversation returns the conversation, or an empty one if none exists.
	Conversation(ctx context.Context, id string) (Conversation, error)
	// SaveConversation replaces the history and context of a conversation.
	SaveConversation(ctx context.Context, id string, conv Conversation) error
	// AddMessage appends a message document stamped with the server time and
	// returns its id.
	AddMessage(ctx context.Context, conversationID, message, source string) (string, error)
	// Messages returns the message documents of a conversation, oldest first.
	Messages(ctx context.Context, conversationID string) ([]Message, error)
}

// SettingsStore reads and writes the model settings document.
type SettingsStore interface {
	// Settings returns the current settings; a missing document yields the
	// zero Settings.
	Settings(ctx context.Context) (Settings, error)
	// PutSettings replaces the settings document.
	PutSettings(ctx context.Context, s Settings) error
}

// Store is the union of every record family. Both backends implement it.
type Store interface {
	MenuStore
	EmbeddingStore
	ConversationStore
	SettingsStore
	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases any resources held by the store.
	Close() error
}

// toFloat32 converts a loosely typed numeric document value.
func toFloat32(v any) (float32, bool) {
	switch n := v.(type) {
	case float64:
		return float32(n), true
	case float32:
		return n, true
	case int64:
		return float32(n), true
	case int:
		return float32(n), true
	default:
		return 0, false
	}
}
