package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// healthClient is shared by every probe; a hung backend must not stall
// /api/ready.
var healthClient = &http.Client{Timeout: 5 * time.Second}

// probe issues a GET and treats any 2xx as healthy.
func probe(ctx context.Context, target string, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := healthClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// HealthCheck lists models on the Gemini API.
func (p *ProviderGemini) HealthCheck(ctx context.Context) error {
	base := p.BaseURL
	if base == "" {
		base = "https://generativelanguage.googleapis.com"
	}
	return probe(ctx, strings.TrimRight(base, "/")+"/v1beta/models?pageSize=1",
		map[string]string{"x-goog-api-key": p.APIKey})
}

// HealthCheck lists models on the OpenAI API.
func (p *ProviderOpenAI) HealthCheck(ctx context.Context) error {
	base := p.BaseURL
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	return probe(ctx, strings.TrimRight(base, "/")+"/models",
		map[string]string{"Authorization": "Bearer " + p.APIKey})
}

// HealthCheck lists models on the Azure OpenAI resource.
func (p *ProviderAzureOpenAI) HealthCheck(ctx context.Context) error {
	target := strings.TrimRight(p.Endpoint, "/") + "/openai/models?api-version=" + url.QueryEscape(p.APIVersion)
	return probe(ctx, target, map[string]string{"api-key": p.APIKey})
}

// HealthCheck lists local models on the Ollama server.
func (p *ProviderOllama) HealthCheck(ctx context.Context) error {
	return probe(ctx, strings.TrimRight(p.Host, "/")+"/api/tags", nil)
}
