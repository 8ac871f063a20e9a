package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/civicnav/civicnav/internal/domain"
	"github.com/civicnav/civicnav/internal/search"
)

// Search paths reported in Result.Path.
const (
	PathHybrid  = "hybrid"
	PathKeyword = "keyword"
)

// queryPreviewLen bounds the query text quoted in the reasoning trace.
const queryPreviewLen = 30

// QueryEmbedder computes the query vector. *Embedder satisfies it.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Result is the retrieval stage output.
type Result struct {
	Results   []domain.SearchResult
	Path      string
	Filter    domain.Category
	Reasoning string
	ToolsUsed []string
}

// Options configures a HybridRetriever.
type Options struct {
	TopK             int
	FilterConfidence float64
}

// HybridRetriever finds candidate passages for a classified query. It asks
// the search service for fused results when a query vector is available and
// falls back to keyword-only search when embedding fails.
type HybridRetriever struct {
	embedder QueryEmbedder
	search   search.Service
	opts     Options
}

// NewHybridRetriever creates a retriever. A nil embedder always takes the
// keyword path.
func NewHybridRetriever(embedder QueryEmbedder, svc search.Service, opts Options) *HybridRetriever {
	return &HybridRetriever{embedder: embedder, search: svc, opts: opts}
}

// Retrieve returns ranked results in the order the search service produced
// them. Embedding failure degrades to keyword search; a search failure is
// returned as an error and never retried.
func (r *HybridRetriever) Retrieve(ctx context.Context, query string, intent domain.IntentClassification) (Result, error) {
	var tools []string

	var vec []float32
	if r.embedder != nil {
		tools = append(tools, domain.ToolEmbedding)
		v, err := r.embedder.Embed(ctx, query)
		if err != nil {
			slog.Warn("retrieval: embedding failed, falling back to keyword search",
				"query", domain.Preview(query, 50), "error", err)
		} else {
			vec = v
		}
	}

	filter := FilterFor(intent, r.opts.FilterConfidence)

	var (
		results []domain.SearchResult
		path    string
		err     error
	)
	if len(vec) > 0 {
		path = PathHybrid
		tools = append(tools, domain.ToolSearchHybrid)
		results, err = r.search.FusedSearch(ctx, query, vec, r.opts.TopK, filter)
	} else {
		path = PathKeyword
		tools = append(tools, domain.ToolSearchKeyword)
		results, err = r.search.KeywordSearch(ctx, query, r.opts.TopK, filter)
	}
	if err != nil {
		return Result{Path: path, Filter: filter, ToolsUsed: tools}, fmt.Errorf("%s search: %w", path, err)
	}
	if results == nil {
		results = []domain.SearchResult{}
	}

	slog.Info("retrieval: search complete", "path", path, "filter", filter, "results", len(results))

	return Result{
		Results:   results,
		Path:      path,
		Filter:    filter,
		Reasoning: reasoning(query, path, filter, results),
		ToolsUsed: tools,
	}, nil
}

// FilterFor returns the category filter for an intent: the classified
// category when confidence reaches threshold, otherwise no filter.
func FilterFor(intent domain.IntentClassification, threshold float64) domain.Category {
	if intent.Confidence >= threshold && intent.Category.Valid() {
		return intent.Category
	}
	return ""
}

func reasoning(query, path string, filter domain.Category, results []domain.SearchResult) string {
	parts := []string{
		fmt.Sprintf("Performed %s search", path),
		fmt.Sprintf("for query: '%s...'", firstRunes(query, queryPreviewLen)),
	}
	if filter != "" {
		parts = append(parts, fmt.Sprintf("filtered by category: %s", filter))
	}
	parts = append(parts, fmt.Sprintf("Found %d results", len(results)))
	if len(results) > 0 {
		parts = append(parts, fmt.Sprintf("Top result: '%s' (score: %.2f)", results[0].Title, results[0].RelevanceScore))
	}
	return strings.Join(parts, ". ") + "."
}

func firstRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
