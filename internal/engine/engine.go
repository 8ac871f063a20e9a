package engine

import "context"

// Engine abstracts an inference backend (Ollama or any OpenAI-compatible
// server). Intent classification, retrieval embedding, re-ranking and answer
// synthesis all go through this interface instead of a concrete client.
type Engine interface {
	// Chat sends messages to the given model and returns the assistant's response.
	Chat(ctx context.Context, model string, messages []Message, opts ChatOptions) (string, error)

	// Embed returns the embedding vector for the given text using the specified model.
	Embed(ctx context.Context, model string, text string) ([]float32, error)

	// IsRunning reports whether the inference backend is reachable.
	IsRunning(ctx context.Context) bool

	// ListModels returns the names of all available models.
	ListModels(ctx context.Context) ([]string, error)

	// HasModel reports whether the given model name is available.
	HasModel(ctx context.Context, name string) bool

	// PullModel downloads a model. The optional callback receives progress updates.
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}

// MultiEmbedder is implemented by engines that embed several texts in one
// request. Vectors come back in input order.
type MultiEmbedder interface {
	EmbedMany(ctx context.Context, model string, texts []string) ([][]float32, error)
}

var (
	_ MultiEmbedder = (*OllamaEngine)(nil)
	_ MultiEmbedder = (*OpenAIEngine)(nil)
)
