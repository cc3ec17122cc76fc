// Package tracing wires opt-in Langfuse tracing of Eino model calls.
package tracing

import (
	"os"
	"strconv"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"

	"github.com/54b3r/waiterbot-go/internal/version"
)

const defaultHost = "http://localhost:3000"

// Config holds the Langfuse connection settings.
type Config struct {
	// Host is the Langfuse base URL (LANGFUSE_HOST).
	Host string
	// PublicKey and SecretKey authenticate the project
	// (LANGFUSE_PUBLIC_KEY, LANGFUSE_SECRET_KEY).
	PublicKey string
	SecretKey string
	// SampleRate is the fraction of traces sent, 0 < rate <= 1
	// (LANGFUSE_SAMPLE_RATE). Zero means 1.
	SampleRate float64
}

// ConfigFromEnv reads the LANGFUSE_* variables.
func ConfigFromEnv() Config {
	cfg := Config{
		Host:      os.Getenv("LANGFUSE_HOST"),
		PublicKey: os.Getenv("LANGFUSE_PUBLIC_KEY"),
		SecretKey: os.Getenv("LANGFUSE_SECRET_KEY"),
	}
	if v, err := strconv.ParseFloat(os.Getenv("LANGFUSE_SAMPLE_RATE"), 64); err == nil {
		cfg.SampleRate = v
	}
	return cfg
}

// Enabled reports whether both keys are set.
func (c Config) Enabled() bool {
	return c.PublicKey != "" && c.SecretKey != ""
}

// langfuseConfig maps c to the handler options. Traces are named after the
// service and tagged with the binary version.
func (c Config) langfuseConfig() *langfuse.Config {
	host := c.Host
	if host == "" {
		host = defaultHost
	}
	rate := c.SampleRate
	if rate <= 0 || rate > 1 {
		rate = 1
	}
	return &langfuse.Config{
		Host:       host,
		PublicKey:  c.PublicKey,
		SecretKey:  c.SecretKey,
		SampleRate: rate,
		Name:       "waiterbot",
		Release:    version.Version,
	}
}

// Setup initialises the Langfuse callback handler when both keys are set.
// The returned flush function must be called before process exit so queued
// traces are sent. When Langfuse is not configured the handler and flush are
// nil and ok is false.
func Setup(cfg Config) (handler callbacks.Handler, flush func(), ok bool) {
	if !cfg.Enabled() {
		return nil, nil, false
	}
	handler, flush = langfuse.NewLangfuseHandler(cfg.langfuseConfig())
	return handler, flush, true
}

// Install registers the Langfuse handler globally so every Eino model call
// is traced. It returns a flush function that is a no-op when tracing is
// disabled.
func Install(cfg Config) (flush func(), ok bool) {
	handler, flush, ok := Setup(cfg)
	if !ok {
		return func() {}, false
	}
	callbacks.AppendGlobalHandlers(handler)
	return flush, true
}
