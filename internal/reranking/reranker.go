package reranking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/civicnav/civicnav/internal/domain"
	"github.com/civicnav/civicnav/internal/engine"
)

const defaultConcurrency = 3

// maxPassageChars bounds the passage text sent per scoring prompt.
const maxPassageChars = 1200

// Reranker re-scores fused search candidates by semantic relevance to the query.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []domain.SearchResult) ([]domain.SearchResult, error)
}

// NewReranker returns an LLMReranker if enabled, NoOpReranker otherwise.
func NewReranker(eng engine.Engine, model string, enabled bool, timeout time.Duration) Reranker {
	if !enabled || eng == nil {
		return &NoOpReranker{}
	}
	return &LLMReranker{
		engine:  eng,
		model:   model,
		timeout: timeout,
	}
}

// LLMReranker asks the chat model to score (query, passage) relevance pairs.
// Scoring runs concurrently, bounded to defaultConcurrency goroutines.
type LLMReranker struct {
	engine  engine.Engine
	model   string
	timeout time.Duration
}

type scored struct {
	idx   int
	score float64
}

// Rerank scores every candidate against the query and returns all of them
// sorted by score. A candidate whose call fails, or is still pending when
// the timeout fires, keeps its fused score. Ties keep the fused order, so a
// reranker that scores nothing returns the input order.
func (r *LLMReranker) Rerank(ctx context.Context, query string, results []domain.SearchResult) ([]domain.SearchResult, error) {
	if len(results) == 0 {
		return results, nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// Buffered so workers never block on send after collection stops.
	out := make(chan scored, len(results))
	sem := make(chan struct{}, defaultConcurrency)
	var wg sync.WaitGroup

	for i, res := range results {
		wg.Add(1)
		go func(i int, res domain.SearchResult) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-timeoutCtx.Done():
				return
			}
			defer func() { <-sem }()

			score, err := r.score(timeoutCtx, query, res)
			if err != nil {
				if timeoutCtx.Err() == nil {
					slog.Debug("reranker: score failed, keeping fused score", "entry_id", res.EntryID, "error", err)
				}
				return
			}
			out <- scored{idx: i, score: score}
		}(i, res)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	reranked := slices.Clone(results)
	n := 0
collect:
	for {
		select {
		case s, ok := <-out:
			if !ok {
				break collect
			}
			reranked[s.idx].RelevanceScore = s.score
			n++
		case <-timeoutCtx.Done():
			slog.Debug("reranker: timeout, unscored candidates keep fused score", "scored", n, "total", len(results))
			break collect
		}
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].RelevanceScore > reranked[j].RelevanceScore
	})
	return reranked, nil
}

func (r *LLMReranker) score(ctx context.Context, query string, res domain.SearchResult) (float64, error) {
	passage, _ := domain.Truncate(res.Content, maxPassageChars)
	prompt := "Rate how well the following city services passage answers the resident's question, on a scale of 0.0 to 1.0.\n" +
		"Question: " + query + "\n" +
		"Passage title: " + res.Title + "\n" +
		"Passage: " + passage + "\n" +
		`Respond with only a JSON object: {"score": <float>}`

	schema := &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"score": {Type: "number", Description: "Relevance score 0.0-1.0"},
		},
		Required: []string{"score"},
	}

	resp, err := r.engine.Chat(ctx, r.model, []engine.Message{
		{Role: "user", Content: prompt},
	}, engine.ChatOptions{Schema: schema, Temperature: engine.Temperature(0)})
	if err != nil {
		return res.RelevanceScore, err
	}

	score, parseErr := parseScore(resp, res.RelevanceScore)
	if parseErr != nil {
		slog.Debug("reranker: parse failed, using fused score", "resp", resp, "error", parseErr)
		return res.RelevanceScore, nil
	}
	return score, nil
}

// parseScore extracts a relevance score from an LLM response. Small local
// models often wrap JSON in markdown fences or add conversational filler, so
// the parser strips fences, takes the outermost {...} and clamps to [0,1].
// On failure it returns fallback.
func parseScore(resp string, fallback float64) (float64, error) {
	raw, err := engine.ExtractJSON(resp)
	if err != nil {
		return fallback, err
	}

	var obj struct {
		Score *float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return fallback, fmt.Errorf("unmarshal score: %w", err)
	}
	if obj.Score == nil {
		return fallback, fmt.Errorf("missing score field")
	}
	return min(max(*obj.Score, 0), 1), nil
}

// NoOpReranker passes results through unchanged. Used when re-ranking is disabled.
type NoOpReranker struct{}

func (n *NoOpReranker) Rerank(_ context.Context, _ string, results []domain.SearchResult) ([]domain.SearchResult, error) {
	return results, nil
}
