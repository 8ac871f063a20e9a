package engine

import (
	"context"

	"github.com/civicnav/civicnav/internal/ollama"
)

// OllamaEngine serves chat, embeddings and model management from a local
// Ollama server. Structured output passes the schema as Ollama's "format".
type OllamaEngine struct {
	client *ollama.Client
}

func NewOllamaEngine(baseURL string) *OllamaEngine {
	return &OllamaEngine{client: ollama.New(baseURL)}
}

func (e *OllamaEngine) Chat(ctx context.Context, model string, messages []Message, opts ChatOptions) (string, error) {
	return e.client.Chat(ctx, model, toOllamaMessages(messages), toOllamaOptions(opts))
}

func (e *OllamaEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	return e.client.Embed(ctx, model, text)
}

// EmbedMany sends all texts in a single /api/embed request.
func (e *OllamaEngine) EmbedMany(ctx context.Context, model string, texts []string) ([][]float32, error) {
	return e.client.EmbedMany(ctx, model, texts)
}

func (e *OllamaEngine) IsRunning(ctx context.Context) bool { return e.client.IsRunning(ctx) }

func (e *OllamaEngine) ListModels(ctx context.Context) ([]string, error) {
	return e.client.ListModels(ctx)
}

func (e *OllamaEngine) HasModel(ctx context.Context, name string) bool {
	return e.client.HasModel(ctx, name)
}

func (e *OllamaEngine) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	if onProgress == nil {
		return e.client.PullModel(ctx, name, nil)
	}
	return e.client.PullModel(ctx, name, func(p ollama.PullProgress) {
		onProgress(PullProgress(p))
	})
}

func toOllamaMessages(messages []Message) []ollama.Message {
	out := make([]ollama.Message, len(messages))
	for i, m := range messages {
		out[i] = ollama.Message(m)
	}
	return out
}

func toOllamaOptions(opts ChatOptions) ollama.ChatOptions {
	co := ollama.ChatOptions{Temperature: opts.Temperature, NumPredict: opts.MaxTokens}
	if opts.Schema != nil {
		co.Format = opts.Schema
	}
	return co
}
