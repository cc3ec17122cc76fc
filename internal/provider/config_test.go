package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "gemini/valid",
			cfg:  Config{Backend: BackendGemini, Gemini: ProviderGemini{APIKey: "AIza-test", Model: "gemini-2.0-flash"}},
		},
		{
			name:    "gemini/missing api key",
			cfg:     Config{Backend: BackendGemini, Gemini: ProviderGemini{Model: "gemini-2.0-flash"}},
			wantErr: "GOOGLE_API_KEY",
		},
		{
			name:    "gemini/missing model",
			cfg:     Config{Backend: BackendGemini, Gemini: ProviderGemini{APIKey: "AIza-test"}},
			wantErr: "GEMINI_MODEL",
		},
		{
			name: "openai/valid",
			cfg:  Config{Backend: BackendOpenAI, OpenAI: ProviderOpenAI{APIKey: "sk-test", Model: "gpt-4o"}},
		},
		{
			name:    "openai/missing api key",
			cfg:     Config{Backend: BackendOpenAI, OpenAI: ProviderOpenAI{Model: "gpt-4o"}},
			wantErr: "OPENAI_API_KEY",
		},
		{
			name: "azure/valid",
			cfg: Config{Backend: BackendAzure, AzureOpenAI: ProviderAzureOpenAI{
				APIKey: "key", Endpoint: "https://my.openai.azure.com", Deployment: "gpt-4o", APIVersion: "2024-02-01",
			}},
		},
		{
			name:    "azure/missing endpoint and deployment",
			cfg:     Config{Backend: BackendAzure, AzureOpenAI: ProviderAzureOpenAI{APIKey: "key"}},
			wantErr: "AZURE_OPENAI_ENDPOINT AZURE_OPENAI_DEPLOYMENT",
		},
		{
			name: "ollama/valid",
			cfg:  Config{Backend: BackendOllama, Ollama: ProviderOllama{Host: "http://localhost:11434", Model: "llama3"}},
		},
		{
			name:    "ollama/missing model",
			cfg:     Config{Backend: BackendOllama, Ollama: ProviderOllama{Host: "http://localhost:11434"}},
			wantErr: "OLLAMA_MODEL",
		},
		{
			name: "ark/valid",
			cfg:  Config{Backend: BackendArk, Ark: ProviderArk{APIKey: "k", Model: "ep-123"}},
		},
		{
			name:    "ark/missing model",
			cfg:     Config{Backend: BackendArk, Ark: ProviderArk{APIKey: "k"}},
			wantErr: "ARK_MODEL",
		},
		{
			name: "temperature out of range",
			cfg: Config{
				Backend: BackendOllama,
				Ollama:  ProviderOllama{Host: "http://localhost:11434", Model: "llama3"},
				Tuning:  SharedTuning{Temperature: 3},
			},
			wantErr: "MODEL_TEMPERATURE",
		},
		{
			name:    "unknown backend",
			cfg:     Config{Backend: "bedrock"},
			wantErr: "unknown backend",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"MODEL_PROVIDER", "GEMINI_MODEL", "MODEL_TEMPERATURE", "MODEL_MAX_TOKENS"} {
		t.Setenv(k, "")
	}
	t.Setenv("GOOGLE_API_KEY", "AIza-test")

	cfg := ConfigFromEnv()
	assert.Equal(t, BackendGemini, cfg.Backend)
	assert.Equal(t, "gemini-2.0-flash", cfg.ModelName())
	assert.InDelta(t, 0.25, cfg.Tuning.Temperature, 1e-6)
	assert.Equal(t, 1024, cfg.Tuning.MaxTokens)
	assert.NoError(t, cfg.Validate())
}

func TestConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "ollama")
	t.Setenv("OLLAMA_MODEL", "mistral")
	t.Setenv("MODEL_TEMPERATURE", "0.7")
	t.Setenv("MODEL_MAX_TOKENS", "not-a-number")

	cfg := ConfigFromEnv()
	assert.Equal(t, BackendOllama, cfg.Backend)
	assert.Equal(t, "mistral", cfg.ModelName())
	assert.InDelta(t, 0.7, cfg.Tuning.Temperature, 1e-6)
	assert.Equal(t, 1024, cfg.Tuning.MaxTokens, "unparseable values fall back")
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	_, err := New(context.Background(), &Config{Backend: BackendOpenAI})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestHealthCheck_Selection(t *testing.T) {
	t.Parallel()
	assert.NotNil(t, (&Config{Backend: BackendGemini}).HealthCheck())
	assert.NotNil(t, (&Config{Backend: BackendOllama}).HealthCheck())
	assert.Nil(t, (&Config{Backend: BackendArk}).HealthCheck())
}

func TestHealthCheck_Ollama(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	p := &ProviderOllama{Host: srv.URL + "/", Model: "llama3"}
	assert.NoError(t, p.HealthCheck(context.Background()))
}

func TestHealthCheck_OpenAIUnauthorized(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		assert.Equal(t, "Bearer sk-bad", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := &ProviderOpenAI{APIKey: "sk-bad", BaseURL: srv.URL + "/v1"}
	err := p.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestHealthCheck_GeminiAndAzure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1beta/models":
			assert.Equal(t, "AIza", r.Header.Get("x-goog-api-key"))
		case "/openai/models":
			assert.Equal(t, "2024-02-01", r.URL.Query().Get("api-version"))
			assert.Equal(t, "az", r.Header.Get("api-key"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	assert.NoError(t, (&ProviderGemini{APIKey: "AIza", BaseURL: srv.URL}).HealthCheck(context.Background()))
	assert.NoError(t, (&ProviderAzureOpenAI{APIKey: "az", Endpoint: srv.URL, APIVersion: "2024-02-01"}).HealthCheck(context.Background()))
}
