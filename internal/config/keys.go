package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "CIVICNAV_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.static_dir", typ: kString, env: "CIVICNAV_SERVER_STATIC_DIR",
		apply:   func(cfg *Config, v any) { cfg.Server.StaticDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.StaticDir },
	},
	{
		key: "server.api_token", typ: kString, env: "CIVICNAV_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "llm.provider", typ: kString, env: "CIVICNAV_LLM_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.LLM.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Provider },
	},
	{
		key: "llm.base_url", typ: kString, env: "CIVICNAV_LLM_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.BaseURL },
	},
	{
		key: "llm.chat_model", typ: kString, env: "CIVICNAV_LLM_CHAT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.ChatModel },
	},
	{
		key: "llm.embed_model", typ: kString, env: "CIVICNAV_LLM_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.EmbedModel },
	},
	{
		key: "llm.api_key", typ: kString, env: "CIVICNAV_LLM_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.LLM.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.APIKey },
	},
	{
		key: "storage.data_dir", typ: kString, env: "CIVICNAV_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "CIVICNAV_RETRIEVAL_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.TopK },
	},
	{
		key: "retrieval.filter_confidence", typ: kFloat, env: "CIVICNAV_RETRIEVAL_FILTER_CONFIDENCE",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.FilterConfidence = v.(float64) },
		extract: func(cfg Config) any { return cfg.Retrieval.FilterConfidence },
	},
	{
		key: "retrieval.rerank_enabled", typ: kBool, env: "CIVICNAV_RETRIEVAL_RERANK_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.RerankEnabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Retrieval.RerankEnabled },
	},
	{
		key: "retrieval.rerank_timeout", typ: kDuration, env: "CIVICNAV_RETRIEVAL_RERANK_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.RerankTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Retrieval.RerankTimeout },
	},
	{
		key: "synthesis.context_chars", typ: kInt, env: "CIVICNAV_SYNTHESIS_CONTEXT_CHARS",
		apply:   func(cfg *Config, v any) { cfg.Synthesis.ContextChars = v.(int) },
		extract: func(cfg Config) any { return cfg.Synthesis.ContextChars },
	},
	{
		key: "synthesis.snippet_chars", typ: kInt, env: "CIVICNAV_SYNTHESIS_SNIPPET_CHARS",
		apply:   func(cfg *Config, v any) { cfg.Synthesis.SnippetChars = v.(int) },
		extract: func(cfg Config) any { return cfg.Synthesis.SnippetChars },
	},
	{
		key: "synthesis.temperature", typ: kFloat, env: "CIVICNAV_SYNTHESIS_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.Synthesis.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.Synthesis.Temperature },
	},
	{
		key: "synthesis.max_tokens", typ: kInt, env: "CIVICNAV_SYNTHESIS_MAX_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Synthesis.MaxTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Synthesis.MaxTokens },
	},
	{
		key: "intent.timeout", typ: kDuration, env: "CIVICNAV_INTENT_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Intent.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Intent.Timeout },
	},
	{
		key: "log.level", typ: kString, env: "CIVICNAV_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// parseValue converts raw text to the Go type expected by s.apply.
func parseValue(s keySpec, raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		raw, ok, err := b.Lookup(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || (raw == "" && s.typ != kString) {
			continue
		}
		v, err := parseValue(s, raw)
		if err != nil {
			slog.Warn("could not parse config key, using default", "key", s.key, "value", raw, "error", err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := parseValue(s, raw)
		if err != nil {
			slog.Warn("could not parse env var, using default", "env", s.env, "value", raw, "error", err)
			continue
		}
		s.apply(cfg, v)
	}
}
