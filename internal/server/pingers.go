package server

import (
	"context"
	"fmt"

	"github.com/54b3r/waiterbot-go/internal/provider"
)

// LLMPinger probes an LLM backend with its zero-token list-models request.
type LLMPinger struct {
	// healthCheck is the backend probe from provider.Config.HealthCheck.
	healthCheck provider.HealthCheckConfig
	// name identifies the backend in readiness responses (e.g. "gemini").
	name string
}

// NewLLMPinger returns nil when hc is nil so backends without a probe can
// be skipped by the caller.
func NewLLMPinger(hc provider.HealthCheckConfig, name string) *LLMPinger {
	if hc == nil {
		return nil
	}
	return &LLMPinger{healthCheck: hc, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping runs the backend health check.
func (p *LLMPinger) Ping(ctx context.Context) error {
	if err := p.healthCheck.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%s health check failed: %w", p.name, err)
	}
	return nil
}

// pingable is satisfied by store.Store and *menuindex.Qdrant.
type pingable interface {
	Ping(ctx context.Context) error
}

// DependencyPinger adapts anything with a Ping method to Pinger.
type DependencyPinger struct {
	target pingable
	name   string
}

// NewStorePinger probes the document store backend (sqlite or firestore).
func NewStorePinger(s pingable, backend string) *DependencyPinger {
	return &DependencyPinger{target: s, name: "store/" + backend}
}

// NewQdrantPinger probes a Qdrant index using its native HealthCheck RPC.
func NewQdrantPinger(q pingable) *DependencyPinger {
	return &DependencyPinger{target: q, name: "qdrant"}
}

// Name returns the dependency label used in readiness responses.
func (p *DependencyPinger) Name() string { return p.name }

// Ping probes the dependency.
func (p *DependencyPinger) Ping(ctx context.Context) error {
	if err := p.target.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}
