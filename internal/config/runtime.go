package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Defaults applied by FromEnv when the corresponding variable is unset.
const (
	DefaultBotName          = "WaiterBot"
	DefaultRestaurant       = "Whatever-Also-Good Restaurant"
	DefaultTopK             = 2
	DefaultTemperature      = 0.25
	DefaultMaxContextTokens = 6000
	DefaultMaxInstances     = 5
	DefaultHandlerTimeout   = 60 * time.Second
	DefaultBackfillCron     = "0 0 1 * *"
	DefaultBackfillRPS      = 2
	DefaultBackfillPrefix   = "backfill"
	DefaultQdrantCollection = "menu"
)

// Chat modes understood by the query handler.
const (
	// ModeChat sends the grounding context as a system instruction and the
	// history as individual messages.
	ModeChat = "chat"
	// ModePrompt renders context and history into a single user prompt.
	ModePrompt = "prompt"
)

// Runtime is the resolved, typed view of every setting the commands need
// beyond the model and embedding providers (which resolve their own env).
type Runtime struct {
	// Bot holds persona and prompt settings.
	Bot BotRuntime
	// Index holds vector index settings.
	Index IndexRuntime
	// Store holds document store settings.
	Store StoreRuntime
	// Server holds HTTP transport settings.
	Server ServerRuntime
	// Backfill holds export job settings.
	Backfill BackfillRuntime
}

// BotRuntime holds persona and prompt settings.
type BotRuntime struct {
	// Name is the bot persona name (BOT_NAME).
	Name string
	// Restaurant is the restaurant name (RESTAURANT_NAME).
	Restaurant string
	// Mode is ModeChat or ModePrompt (CHAT_MODE).
	Mode string
	// Temperature is the fallback sampling temperature (MODEL_TEMPERATURE).
	Temperature float32
	// MaxContextTokens bounds the prompt size (MAX_CONTEXT_TOKENS).
	MaxContextTokens int
}

// IndexRuntime holds vector index settings.
type IndexRuntime struct {
	// Backend is "memory" or "qdrant" (INDEX_BACKEND).
	Backend string
	// TopK is the number of passages retrieved (RAG_TOP_K).
	TopK int
	// MinScore drops weaker neighbours on the qdrant backend (INDEX_MIN_SCORE).
	MinScore float32
	// QdrantHost is the Qdrant hostname (QDRANT_HOST).
	QdrantHost string
	// QdrantPort is the Qdrant gRPC port (QDRANT_PORT).
	QdrantPort int
	// QdrantCollection is the Qdrant collection name (QDRANT_COLLECTION).
	QdrantCollection string
	// QdrantAPIKey authenticates against managed clusters (QDRANT_API_KEY).
	QdrantAPIKey string
	// QdrantTLS enables TLS (QDRANT_TLS).
	QdrantTLS bool
}

// StoreRuntime holds document store settings.
type StoreRuntime struct {
	// Backend is "sqlite" or "firestore" (STORE_BACKEND).
	Backend string
	// SQLitePath is the database file (WAITERBOT_DB).
	SQLitePath string
	// FirestoreProject is the GCP project (FIRESTORE_PROJECT, GOOGLE_CLOUD_PROJECT).
	FirestoreProject string
	// FirestoreDatabase is the database id (FIRESTORE_DATABASE).
	FirestoreDatabase string
}

// ServerRuntime holds HTTP transport settings.
type ServerRuntime struct {
	// Host is the bind address (WAITERBOT_HOST).
	Host string
	// Port is the listen port (PORT).
	Port int
	// APIKey is the bearer token guarding the event routes (WAITERBOT_API_KEY).
	APIKey string
	// RateLimit is the per-IP sustained rate (RATE_LIMIT_RPS).
	RateLimit float64
	// RateBurst is the per-IP burst (RATE_LIMIT_BURST).
	RateBurst int
	// MaxInstances caps concurrent handler invocations (MAX_INSTANCES).
	MaxInstances int
	// HandlerTimeout bounds each invocation (HANDLER_TIMEOUT).
	HandlerTimeout time.Duration
}

// BackfillRuntime holds export job settings.
type BackfillRuntime struct {
	// Cron is the schedule, or "off" (BACKFILL_CRON).
	Cron string
	// RPS throttles embedding calls (BACKFILL_RPS).
	RPS float64
	// Bucket is the GCS destination bucket (BACKFILL_BUCKET).
	Bucket string
	// Prefix is the object name prefix (BACKFILL_OBJECT_PREFIX).
	Prefix string
	// Dir is the local fallback destination (BACKFILL_DIR).
	Dir string
}

// FromEnv resolves a Runtime from the process environment and validates it.
func FromEnv() (*Runtime, error) {
	rt := &Runtime{
		Bot: BotRuntime{
			Name:             envOr("BOT_NAME", DefaultBotName),
			Restaurant:       envOr("RESTAURANT_NAME", DefaultRestaurant),
			Mode:             strings.ToLower(envOr("CHAT_MODE", ModeChat)),
			Temperature:      float32(envFloat("MODEL_TEMPERATURE", DefaultTemperature)),
			MaxContextTokens: envInt("MAX_CONTEXT_TOKENS", DefaultMaxContextTokens),
		},
		Index: IndexRuntime{
			Backend:          strings.ToLower(envOr("INDEX_BACKEND", "memory")),
			TopK:             envInt("RAG_TOP_K", DefaultTopK),
			MinScore:         float32(envFloat("INDEX_MIN_SCORE", 0)),
			QdrantHost:       envOr("QDRANT_HOST", "localhost"),
			QdrantPort:       envInt("QDRANT_PORT", 6334),
			QdrantCollection: envOr("QDRANT_COLLECTION", DefaultQdrantCollection),
			QdrantAPIKey:     os.Getenv("QDRANT_API_KEY"),
			QdrantTLS:        strings.EqualFold(os.Getenv("QDRANT_TLS"), "true"),
		},
		Store: StoreRuntime{
			Backend:           strings.ToLower(envOr("STORE_BACKEND", "sqlite")),
			SQLitePath:        os.Getenv("WAITERBOT_DB"),
			FirestoreProject:  envOr("FIRESTORE_PROJECT", os.Getenv("GOOGLE_CLOUD_PROJECT")),
			FirestoreDatabase: envOr("FIRESTORE_DATABASE", "(default)"),
		},
		Server: ServerRuntime{
			Host:           envOr("WAITERBOT_HOST", "0.0.0.0"),
			Port:           envInt("PORT", 8080),
			APIKey:         os.Getenv("WAITERBOT_API_KEY"),
			RateLimit:      envFloat("RATE_LIMIT_RPS", 10),
			RateBurst:      envInt("RATE_LIMIT_BURST", 20),
			MaxInstances:   envInt("MAX_INSTANCES", DefaultMaxInstances),
			HandlerTimeout: parseDuration(os.Getenv("HANDLER_TIMEOUT"), DefaultHandlerTimeout),
		},
		Backfill: BackfillRuntime{
			Cron:   envOr("BACKFILL_CRON", DefaultBackfillCron),
			RPS:    envFloat("BACKFILL_RPS", DefaultBackfillRPS),
			Bucket: os.Getenv("BACKFILL_BUCKET"),
			Prefix: envOr("BACKFILL_OBJECT_PREFIX", DefaultBackfillPrefix),
			Dir:    os.Getenv("BACKFILL_DIR"),
		},
	}
	if err := rt.Validate(); err != nil {
		return nil, err
	}
	return rt, nil
}

// Validate reports the first setting that cannot work.
func (rt *Runtime) Validate() error {
	switch rt.Bot.Mode {
	case ModeChat, ModePrompt:
	default:
		return fmt.Errorf("config: CHAT_MODE %q is invalid; valid values: chat, prompt", rt.Bot.Mode)
	}
	switch rt.Index.Backend {
	case "memory", "qdrant":
	default:
		return fmt.Errorf("config: INDEX_BACKEND %q is invalid; valid values: memory, qdrant", rt.Index.Backend)
	}
	switch rt.Store.Backend {
	case "sqlite":
	case "firestore":
		if rt.Store.FirestoreProject == "" {
			return fmt.Errorf("config: STORE_BACKEND=firestore requires FIRESTORE_PROJECT or GOOGLE_CLOUD_PROJECT")
		}
	default:
		return fmt.Errorf("config: STORE_BACKEND %q is invalid; valid values: sqlite, firestore", rt.Store.Backend)
	}
	if rt.Index.TopK <= 0 {
		return fmt.Errorf("config: RAG_TOP_K must be positive, got %d", rt.Index.TopK)
	}
	if rt.Server.MaxInstances <= 0 {
		return fmt.Errorf("config: MAX_INSTANCES must be positive, got %d", rt.Server.MaxInstances)
	}
	if rt.Backfill.RPS <= 0 {
		return fmt.Errorf("config: BACKFILL_RPS must be positive, got %g", rt.Backfill.RPS)
	}
	return nil
}

// SQLitePathOrDefault returns Store.SQLitePath, or ~/.waiterbot/waiterbot.db
// (creating the directory) when it is unset.
func (s StoreRuntime) SQLitePathOrDefault() (string, error) {
	if s.SQLitePath != "" {
		return s.SQLitePath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".waiterbot")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("config: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "waiterbot.db"), nil
}

// envOr returns the value of key, or fallback if it is unset or empty.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt returns the integer value of key, or fallback if unset or unparseable.
func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// envFloat returns the float value of key, or fallback if unset or unparseable.
func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
