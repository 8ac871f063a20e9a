package retrieval

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/civicnav/civicnav/internal/domain"
	"github.com/civicnav/civicnav/internal/engine"
)

const (
	// batchConcurrency bounds parallel embedding calls during indexing.
	batchConcurrency = 4
	multiEmbedChunk  = 16
)

// Embedder wraps an Engine to generate text embeddings.
type Embedder struct {
	engine engine.Engine
	model  string
}

// NewEmbedder creates an Embedder using the given Engine and model name.
func NewEmbedder(e engine.Engine, model string) *Embedder {
	return &Embedder{engine: e, model: model}
}

// Model returns the embedding model name stored alongside vectors.
func (e *Embedder) Model() string {
	return e.model
}

// Embed returns the embedding vector for a single text. Failures wrap
// domain.ErrEmbeddingUnavailable.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.engine.Embed(ctx, e.model, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: empty vector from %s", domain.ErrEmbeddingUnavailable, e.model)
	}
	return vec, nil
}

// EmbedBatch returns embedding vectors for multiple texts, in input order.
// Engines that accept several inputs per request get chunks of
// multiEmbedChunk texts; others get one call per text. Calls run
// concurrently and the first failure cancels the rest. Empty input returns
// nil.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)

	if multi, ok := e.engine.(engine.MultiEmbedder); ok {
		for start := 0; start < len(texts); start += multiEmbedChunk {
			end := min(start+multiEmbedChunk, len(texts))
			g.Go(func() error {
				vecs, err := multi.EmbedMany(gCtx, e.model, texts[start:end])
				if err != nil {
					return fmt.Errorf("embedding texts %d-%d: %w: %v", start, end-1, domain.ErrEmbeddingUnavailable, err)
				}
				for j, vec := range vecs {
					if len(vec) == 0 {
						return fmt.Errorf("%w: empty vector for text %d", domain.ErrEmbeddingUnavailable, start+j)
					}
					results[start+j] = vec
				}
				return nil
			})
		}
	} else {
		for i, text := range texts {
			g.Go(func() error {
				vec, err := e.Embed(gCtx, text)
				if err != nil {
					return fmt.Errorf("embedding text %d: %w", i, err)
				}
				results[i] = vec
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
