package provider

import (
	"errors"
	"fmt"
)

// Validate reports missing settings for the selected backend.
func (c *Config) Validate() error {
	var missing []string
	need := func(v, env string) {
		if v == "" {
			missing = append(missing, env)
		}
	}
	switch c.Backend {
	case BackendGemini:
		need(c.Gemini.APIKey, "GOOGLE_API_KEY")
		need(c.Gemini.Model, "GEMINI_MODEL")
	case BackendOpenAI:
		need(c.OpenAI.APIKey, "OPENAI_API_KEY")
		need(c.OpenAI.Model, "OPENAI_MODEL")
	case BackendAzure:
		need(c.AzureOpenAI.APIKey, "AZURE_OPENAI_API_KEY")
		need(c.AzureOpenAI.Endpoint, "AZURE_OPENAI_ENDPOINT")
		need(c.AzureOpenAI.Deployment, "AZURE_OPENAI_DEPLOYMENT")
	case BackendOllama:
		need(c.Ollama.Host, "OLLAMA_HOST")
		need(c.Ollama.Model, "OLLAMA_MODEL")
	case BackendArk:
		need(c.Ark.APIKey, "ARK_API_KEY")
		need(c.Ark.Model, "ARK_MODEL")
	default:
		return fmt.Errorf("provider: unknown backend %q; valid values: gemini, openai, azure, ollama, ark", c.Backend)
	}
	if len(missing) > 0 {
		return fmt.Errorf("provider: %s backend requires %v", c.Backend, missing)
	}
	if c.Tuning.Temperature < 0 || c.Tuning.Temperature > 2 {
		return errors.New("provider: MODEL_TEMPERATURE must be between 0 and 2")
	}
	return nil
}

// ModelName returns the model or deployment the selected backend targets.
func (c *Config) ModelName() string {
	switch c.Backend {
	case BackendGemini:
		return c.Gemini.Model
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendAzure:
		return c.AzureOpenAI.Deployment
	case BackendOllama:
		return c.Ollama.Model
	case BackendArk:
		return c.Ark.Model
	default:
		return ""
	}
}

// HealthCheck returns the zero-cost probe for the selected backend, or nil
// when the backend has none.
func (c *Config) HealthCheck() HealthCheckConfig {
	switch c.Backend {
	case BackendGemini:
		return &c.Gemini
	case BackendOpenAI:
		return &c.OpenAI
	case BackendAzure:
		return &c.AzureOpenAI
	case BackendOllama:
		return &c.Ollama
	default:
		return nil
	}
}
