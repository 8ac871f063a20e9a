package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// mapBackend is an in-memory ConfigBackend holding raw text values.
type mapBackend map[string]string

func newMapBackend() mapBackend { return mapBackend{} }

func (m mapBackend) Lookup(key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

func (m mapBackend) Store(key string, value any) error {
	m[key] = fmt.Sprint(value)
	return nil
}

// mockSecrets is a test double for the secret store.
type mockSecrets map[string]string

func (m mockSecrets) Get(name string) (string, error) {
	v, ok := m[name]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func TestDefaults(t *testing.T) {
	cfg, err := loadWith(newMapBackend(), mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.LLM.Provider != ProviderOllama {
		t.Errorf("LLM.Provider = %q, want %q", cfg.LLM.Provider, ProviderOllama)
	}
	if cfg.LLM.BaseURL != "http://localhost:11434" {
		t.Errorf("LLM.BaseURL = %q", cfg.LLM.BaseURL)
	}
	if cfg.Retrieval.TopK != 5 {
		t.Errorf("Retrieval.TopK = %d, want 5", cfg.Retrieval.TopK)
	}
	if cfg.Retrieval.FilterConfidence != 0.7 {
		t.Errorf("Retrieval.FilterConfidence = %v, want 0.7", cfg.Retrieval.FilterConfidence)
	}
	if cfg.Synthesis.ContextChars != 500 || cfg.Synthesis.SnippetChars != 150 {
		t.Errorf("Synthesis chars = %d/%d, want 500/150", cfg.Synthesis.ContextChars, cfg.Synthesis.SnippetChars)
	}
	if cfg.Synthesis.Temperature != 0.7 || cfg.Synthesis.MaxTokens != 500 {
		t.Errorf("Synthesis sampling = %v/%d, want 0.7/500", cfg.Synthesis.Temperature, cfg.Synthesis.MaxTokens)
	}
	if cfg.Intent.Timeout != 5*time.Second {
		t.Errorf("Intent.Timeout = %v, want 5s", cfg.Intent.Timeout)
	}
}

func TestBackendValues(t *testing.T) {
	b := newMapBackend()
	b["retrieval.top_k"] = "8"
	b["retrieval.filter_confidence"] = "0.8"
	b["retrieval.rerank_enabled"] = "true"
	b["retrieval.rerank_timeout"] = "2s"
	b["llm.chat_model"] = "mistral"

	cfg, err := loadWith(b, mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Retrieval.TopK != 8 {
		t.Errorf("TopK = %d, want 8", cfg.Retrieval.TopK)
	}
	if cfg.Retrieval.FilterConfidence != 0.8 {
		t.Errorf("FilterConfidence = %v, want 0.8", cfg.Retrieval.FilterConfidence)
	}
	if !cfg.Retrieval.RerankEnabled {
		t.Error("RerankEnabled = false, want true")
	}
	if cfg.Retrieval.RerankTimeout != 2*time.Second {
		t.Errorf("RerankTimeout = %v, want 2s", cfg.Retrieval.RerankTimeout)
	}
	if cfg.LLM.ChatModel != "mistral" {
		t.Errorf("ChatModel = %q, want mistral", cfg.LLM.ChatModel)
	}
}

func TestEnvOverride(t *testing.T) {
	b := newMapBackend()
	b["retrieval.top_k"] = "8"
	t.Setenv("CIVICNAV_RETRIEVAL_TOP_K", "12")
	t.Setenv("CIVICNAV_LLM_PROVIDER", "openai")
	t.Setenv("CIVICNAV_LLM_API_KEY", "env-key")

	cfg, err := loadWith(b, mockSecrets{"llm.api_key": "file-key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Retrieval.TopK != 12 {
		t.Errorf("TopK = %d, want 12", cfg.Retrieval.TopK)
	}
	if cfg.LLM.APIKey != "env-key" {
		t.Errorf("APIKey = %q, want env-key", cfg.LLM.APIKey)
	}
}

func TestSecretsFallback(t *testing.T) {
	t.Setenv("CIVICNAV_LLM_PROVIDER", "openai")
	t.Setenv("CIVICNAV_LLM_API_KEY", "")

	cfg, err := loadWith(newMapBackend(), mockSecrets{"llm.api_key": "file-key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.APIKey != "file-key" {
		t.Errorf("APIKey = %q, want file-key", cfg.LLM.APIKey)
	}
}

func TestMissingAPIKeyForOpenAI(t *testing.T) {
	t.Setenv("CIVICNAV_LLM_PROVIDER", "openai")
	t.Setenv("CIVICNAV_LLM_API_KEY", "")

	_, err := loadWith(newMapBackend(), mockSecrets{})
	if err == nil {
		t.Fatal("expected error for missing API key, got nil")
	}
	if !strings.Contains(err.Error(), "missing required config") {
		t.Errorf("error = %q, want it to mention missing required config", err)
	}
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"top_k zero", func(c *Config) { c.Retrieval.TopK = 0 }},
		{"top_k too large", func(c *Config) { c.Retrieval.TopK = 21 }},
		{"filter confidence above one", func(c *Config) { c.Retrieval.FilterConfidence = 1.1 }},
		{"negative snippet", func(c *Config) { c.Synthesis.SnippetChars = -1 }},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "bedrock" }},
		{"zero intent timeout", func(c *Config) { c.Intent.Timeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestInvalidEnvKeepsDefault(t *testing.T) {
	t.Setenv("CIVICNAV_RETRIEVAL_TOP_K", "many")
	cfg, err := loadWith(newMapBackend(), mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Retrieval.TopK != 5 {
		t.Errorf("TopK = %d, want default 5", cfg.Retrieval.TopK)
	}
}

func TestSetKey(t *testing.T) {
	b := newMapBackend()
	if err := setKey(b, "retrieval.top_k", "7"); err != nil {
		t.Fatalf("setKey: %v", err)
	}
	if b["retrieval.top_k"] != "7" {
		t.Errorf("stored top_k = %q, want 7", b["retrieval.top_k"])
	}
	if err := setKey(b, "retrieval.top_k", "50"); err == nil {
		t.Error("expected out-of-range top_k to be rejected")
	}
	if err := setKey(b, "llm.api_key", "x"); err == nil {
		t.Error("expected secret key to be rejected")
	}
	if err := setKey(b, "nope", "x"); err == nil {
		t.Error("expected unknown key to be rejected")
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.LLM.APIKey = "sk-secret"
	for _, ki := range ShowAll(cfg) {
		if ki.Key == "llm.api_key" || ki.Key == "server.api_token" {
			t.Errorf("ShowAll exposed secret key %s", ki.Key)
		}
		if ki.Value == "sk-secret" {
			t.Error("ShowAll exposed secret value")
		}
	}
}

func TestFileBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "civicnav", "config.json")
	b := newFileBackend(path)
	for key, v := range map[string]any{
		"server.port":                 9000,
		"retrieval.filter_confidence": 0.75,
		"retrieval.rerank_enabled":    false,
		"llm.chat_model":              "llama3.2",
	} {
		if err := b.Store(key, v); err != nil {
			t.Fatalf("Store(%s): %v", key, err)
		}
	}

	reloaded := newFileBackend(path)
	for key, want := range map[string]string{
		"server.port":                 "9000",
		"retrieval.filter_confidence": "0.75",
		"retrieval.rerank_enabled":    "false",
		"llm.chat_model":              "llama3.2",
	} {
		if got, ok, err := reloaded.Lookup(key); err != nil || !ok || got != want {
			t.Errorf("Lookup(%s) = %q, %v, %v; want %q", key, got, ok, err, want)
		}
	}
	if _, ok, _ := reloaded.Lookup("log.level"); ok {
		t.Error("Lookup(log.level) found a key that was never stored")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"server.port": 9000`) {
		t.Errorf("port not written as a JSON number:\n%s", raw)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestFileBackend_CorruptFileFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadWith(newFileBackend(path), mockSecrets{})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != Defaults().Server.Port {
		t.Errorf("port = %d, want default", cfg.Server.Port)
	}
}

func TestWriteSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	if err := writeSecret(path, "llm.api_key", "sk-1"); err != nil {
		t.Fatal(err)
	}
	got, err := fileSecrets{path: path}.Get("llm.api_key")
	if err != nil || got != "sk-1" {
		t.Errorf("Get = %q, %v; want sk-1", got, err)
	}
}
