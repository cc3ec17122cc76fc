package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// SQLiteStore is a Store backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// Open opens (or creates) a SQLiteStore at the given path and runs the
// schema migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// A single connection avoids SQLITE_BUSY and keeps ":memory:" databases
	// shared across calls.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS menu_items (
    id          TEXT PRIMARY KEY,
    data        TEXT    NOT NULL,
    updated_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS embeddings (
    seq         INTEGER PRIMARY KEY AUTOINCREMENT,
    id          TEXT    NOT NULL UNIQUE,
    text        TEXT    NOT NULL,
    vector      TEXT    NOT NULL,
    updated_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS conversations (
    id          TEXT PRIMARY KEY,
    history     TEXT    NOT NULL,
    context     TEXT    NOT NULL,
    updated_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS chat_messages (
    seq             INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT    NOT NULL,
    message         TEXT    NOT NULL,
    source          TEXT    NOT NULL,
    created_at      INTEGER NOT NULL  -- Unix nanoseconds
);
CREATE INDEX IF NOT EXISTS idx_chat_messages_conversation
    ON chat_messages (conversation_id, seq);
CREATE TABLE IF NOT EXISTS settings (
    name        TEXT PRIMARY KEY,
    temperature REAL
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// MenuItem returns one menu item or ErrNotFound.
func (s *SQLiteStore) MenuItem(ctx context.Context, id string) (MenuItem, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM menu_items WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return MenuItem{}, fmt.Errorf("store: menu item %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return MenuItem{}, fmt.Errorf("store: menu item: %w", err)
	}
	item := MenuItem{ID: id}
	if err := json.Unmarshal([]byte(raw), &item.Data); err != nil {
		return MenuItem{}, fmt.Errorf("store: menu item %q decode: %w", id, err)
	}
	return item, nil
}

// MenuItems returns every menu item ordered by id.
func (s *SQLiteStore) MenuItems(ctx context.Context) ([]MenuItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, data FROM menu_items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: menu items: %w", err)
	}
	defer rows.Close()

	var items []MenuItem
	for rows.Next() {
		var item MenuItem
		var raw string
		if err := rows.Scan(&item.ID, &raw); err != nil {
			return nil, fmt.Errorf("store: menu items scan: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &item.Data); err != nil {
			return nil, fmt.Errorf("store: menu item %q decode: %w", item.ID, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: menu items rows: %w", err)
	}
	return items, nil
}

// PutMenuItem creates or replaces a menu item.
func (s *SQLiteStore) PutMenuItem(ctx context.Context, item MenuItem) error {
	raw, err := json.Marshal(item.Data)
	if err != nil {
		return fmt.Errorf("store: menu item %q encode: %w", item.ID, err)
	}
	const q = `
INSERT INTO menu_items (id, data, updated_at) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, q, item.ID, string(raw), time.Now().Unix()); err != nil {
		return fmt.Errorf("store: put menu item: %w", err)
	}
	return nil
}

// PutEmbedding creates or overwrites the embedding for rec.ID. An overwrite
// keeps the record's original position in Embeddings.
func (s *SQLiteStore) PutEmbedding(ctx context.Context, rec EmbeddingRecord) error {
	raw, err := json.Marshal(rec.Vector)
	if err != nil {
		return fmt.Errorf("store: embedding %q encode: %w", rec.ID, err)
	}
	const q = `
INSERT INTO embeddings (id, text, vector, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET text = excluded.text, vector = excluded.vector, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, q, rec.ID, rec.Text, string(raw), time.Now().Unix()); err != nil {
		return fmt.Errorf("store: put embedding: %w", err)
	}
	return nil
}

// CountEmbeddings returns the number of stored embeddings.
func (s *SQLiteStore) CountEmbeddings(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count embeddings: %w", err)
	}
	return n, nil
}

// Embeddings returns every embedding in first-insertion order.
func (s *SQLiteStore) Embeddings(ctx context.Context) ([]EmbeddingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, text, vector FROM embeddings ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("store: embeddings: %w", err)
	}
	defer rows.Close()

	var recs []EmbeddingRecord
	for rows.Next() {
		var rec EmbeddingRecord
		var raw string
		if err := rows.Scan(&rec.ID, &rec.Text, &raw); err != nil {
			return nil, fmt.Errorf("store: embeddings scan: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &rec.Vector); err != nil {
			return nil, fmt.Errorf("store: embedding %q decode: %w", rec.ID, err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: embeddings rows: %w", err)
	}
	return recs, nil
}

// Conversation returns the conversation with id, or an empty one.
func (s *SQLiteStore) Conversation(ctx context.Context, id string) (Conversation, error) {
	var history, convCtx string
	err := s.db.QueryRowContext(ctx, `SELECT history, context FROM conversations WHERE id = ?`, id).Scan(&history, &convCtx)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, nil
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("store: conversation: %w", err)
	}
	conv := Conversation{Context: convCtx}
	if err := json.Unmarshal([]byte(history), &conv.History); err != nil {
		return Conversation{}, fmt.Errorf("store: conversation %q decode: %w", id, err)
	}
	return conv, nil
}

// SaveConversation replaces the history and context of conversation id.
func (s *SQLiteStore) SaveConversation(ctx context.Context, id string, conv Conversation) error {
	history := conv.History
	if history == nil {
		history = []ChatMessage{}
	}
	raw, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("store: conversation %q encode: %w", id, err)
	}
	const q = `
INSERT INTO conversations (id, history, context, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET history = excluded.history, context = excluded.context, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, q, id, string(raw), conv.Context, time.Now().Unix()); err != nil {
		return fmt.Errorf("store: save conversation: %w", err)
	}
	return nil
}

// AddMessage appends a message document to conversationID.
func (s *SQLiteStore) AddMessage(ctx context.Context, conversationID, message, source string) (string, error) {
	const q = `INSERT INTO chat_messages (conversation_id, message, source, created_at) VALUES (?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q, conversationID, message, source, time.Now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("store: add message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("store: add message id: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

// Messages returns the message documents of conversationID, oldest first.
func (s *SQLiteStore) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	const q = `SELECT seq, message, source, created_at FROM chat_messages WHERE conversation_id = ? ORDER BY seq`
	rows, err := s.db.QueryContext(ctx, q, conversationID)
	if err != nil {
		return nil, fmt.Errorf("store: messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var seq, ts int64
		if err := rows.Scan(&seq, &m.Message, &m.Source, &ts); err != nil {
			return nil, fmt.Errorf("store: messages scan: %w", err)
		}
		m.ID = strconv.FormatInt(seq, 10)
		m.Timestamp = time.Unix(0, ts)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: messages rows: %w", err)
	}
	return msgs, nil
}

// settingsName is the key of the single settings row.
const settingsName = "model"

// Settings returns the model settings, or the zero value when unset.
func (s *SQLiteStore) Settings(ctx context.Context) (Settings, error) {
	var temp sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `SELECT temperature FROM settings WHERE name = ?`, settingsName).Scan(&temp)
	if errors.Is(err, sql.ErrNoRows) {
		return Settings{}, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("store: settings: %w", err)
	}
	var out Settings
	if temp.Valid {
		t := float32(temp.Float64)
		out.Temperature = &t
	}
	return out, nil
}

// PutSettings replaces the model settings.
func (s *SQLiteStore) PutSettings(ctx context.Context, st Settings) error {
	var temp sql.NullFloat64
	if st.Temperature != nil {
		temp = sql.NullFloat64{Float64: float64(*st.Temperature), Valid: true}
	}
	const q = `
INSERT INTO settings (name, temperature) VALUES (?, ?)
ON CONFLICT(name) DO UPDATE SET temperature = excluded.temperature`
	if _, err := s.db.ExecContext(ctx, q, settingsName, temp); err != nil {
		return fmt.Errorf("store: put settings: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
