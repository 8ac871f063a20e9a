package config

import (
	"errors"
	"fmt"
	"time"
)

type Config struct {
	Server    ServerConfig
	LLM       LLMConfig
	Storage   StorageConfig
	Retrieval RetrievalConfig
	Synthesis SynthesisConfig
	Intent    IntentConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port      int
	StaticDir string
	APIToken  string
}

// LLMConfig selects the inference backend. Provider is "ollama" or "openai";
// the latter targets any OpenAI-compatible endpoint and requires APIKey.
type LLMConfig struct {
	Provider   string
	BaseURL    string
	ChatModel  string
	EmbedModel string
	APIKey     string
}

type StorageConfig struct {
	DataDir string
}

type RetrievalConfig struct {
	TopK             int
	FilterConfidence float64
	RerankEnabled    bool
	RerankTimeout    time.Duration
}

type SynthesisConfig struct {
	ContextChars int
	SnippetChars int
	Temperature  float64
	MaxTokens    int
}

type IntentConfig struct {
	Timeout time.Duration
}

type LogConfig struct {
	Level string
}

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"

	MinTopK = 1
	MaxTopK = 20
)

// Defaults returns the built-in configuration before any backend or env
// overrides.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8000,
		},
		LLM: LLMConfig{
			Provider:   ProviderOllama,
			BaseURL:    "http://localhost:11434",
			ChatModel:  "llama3.2",
			EmbedModel: "nomic-embed-text",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Retrieval: RetrievalConfig{
			TopK:             5,
			FilterConfidence: 0.7,
			RerankTimeout:    5 * time.Second,
		},
		Synthesis: SynthesisConfig{
			ContextChars: 500,
			SnippetChars: 150,
			Temperature:  0.7,
			MaxTokens:    500,
		},
		Intent: IntentConfig{
			Timeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/civicnav/config.json (or $CIVICNAV_CONFIG), then applies
// CIVICNAV_* environment overrides. Secrets come from the environment or the
// secrets file under the data dir, never from config.json.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()), fileSecrets{path: secretsFilePath()})
}

func loadWith(b ConfigBackend, secrets secretStore) (Config, error) {
	cfg := Defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	for _, s := range specs {
		if !s.secret || s.extract(cfg) != "" {
			continue
		}
		if v, err := secrets.Get(s.key); err == nil && v != "" {
			s.apply(&cfg, v)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every out-of-range or inconsistent setting.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.LLM.Provider {
	case ProviderOllama:
	case ProviderOpenAI:
		if c.LLM.APIKey == "" {
			errs = append(errs, errors.New("missing required config: llm.api_key for provider openai; set CIVICNAV_LLM_API_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q must be %q or %q", c.LLM.Provider, ProviderOllama, ProviderOpenAI))
	}
	if c.Retrieval.TopK < MinTopK || c.Retrieval.TopK > MaxTopK {
		errs = append(errs, fmt.Errorf("retrieval.top_k %d must be between %d and %d", c.Retrieval.TopK, MinTopK, MaxTopK))
	}
	if c.Retrieval.FilterConfidence < 0 || c.Retrieval.FilterConfidence > 1 {
		errs = append(errs, fmt.Errorf("retrieval.filter_confidence %v must be within [0,1]", c.Retrieval.FilterConfidence))
	}
	if c.Retrieval.RerankTimeout <= 0 {
		errs = append(errs, errors.New("retrieval.rerank_timeout must be positive"))
	}
	if c.Synthesis.ContextChars <= 0 || c.Synthesis.SnippetChars <= 0 {
		errs = append(errs, errors.New("synthesis.context_chars and synthesis.snippet_chars must be positive"))
	}
	if c.Synthesis.Temperature < 0 || c.Synthesis.Temperature > 2 {
		errs = append(errs, fmt.Errorf("synthesis.temperature %v must be within [0,2]", c.Synthesis.Temperature))
	}
	if c.Synthesis.MaxTokens <= 0 {
		errs = append(errs, errors.New("synthesis.max_tokens must be positive"))
	}
	if c.Intent.Timeout <= 0 {
		errs = append(errs, errors.New("intent.timeout must be positive"))
	}
	return errors.Join(errs...)
}
