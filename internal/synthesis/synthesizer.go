// Package synthesis turns ranked search results into a grounded answer with
// citations.
package synthesis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/civicnav/civicnav/internal/domain"
	"github.com/civicnav/civicnav/internal/engine"
)

// Chatter is the subset of engine.Engine the synthesizer needs.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []engine.Message, opts engine.ChatOptions) (string, error)
}

// Options holds the synthesis tunables.
type Options struct {
	ContextChars     int
	SnippetChars     int
	Temperature      float64
	MaxTokens        int
	MaxContextTokens int
}

// Result is the synthesis stage output. Fallback is set when Answer is one of
// the fixed responses rather than model output.
type Result struct {
	Answer    string
	Citations []domain.Citation
	Fallback  bool
	Reasoning string
	ToolsUsed []string
}

// Synthesizer generates answers with the chat model.
type Synthesizer struct {
	client    Chatter
	model     string
	opts      Options
	citations CitationExtractor
}

// NewSynthesizer creates a Synthesizer. A nil extractor uses the rank-marker rule.
func NewSynthesizer(client Chatter, model string, opts Options, citations CitationExtractor) *Synthesizer {
	if citations == nil {
		citations = NewRankMarkerExtractor(opts.SnippetChars)
	}
	return &Synthesizer{client: client, model: model, opts: opts, citations: citations}
}

// Synthesize answers query from results. It does not fail: no results yields
// NoResultsResponse and a completion failure yields ApologyResponse, both
// without citations.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, results []domain.SearchResult, intent domain.IntentClassification) Result {
	if len(results) == 0 {
		slog.Info("synthesis: no search results, returning fallback response")
		return Result{
			Answer:    NoResultsResponse,
			Citations: []domain.Citation{},
			Fallback:  true,
			Reasoning: noResultsReasoning,
			ToolsUsed: []string{},
		}
	}

	tools := []string{domain.ToolChat}
	messages := BuildPrompt(query, BuildContext(results, s.opts.ContextChars, s.opts.MaxContextTokens))

	answer, err := s.client.Chat(ctx, s.model, messages, engine.ChatOptions{
		Temperature: engine.Temperature(s.opts.Temperature),
		MaxTokens:   s.opts.MaxTokens,
	})
	if err == nil && strings.TrimSpace(answer) == "" {
		err = fmt.Errorf("%w: empty completion", domain.ErrCompletionUnavailable)
	}
	if err != nil {
		slog.Warn("synthesis: completion failed", "query", domain.Preview(query, 50), "category", intent.Category, "error", err)
		return Result{
			Answer:    ApologyResponse,
			Citations: []domain.Citation{},
			Fallback:  true,
			Reasoning: fmt.Sprintf("Synthesis failed: %v", err),
			ToolsUsed: tools,
		}
	}

	answer = strings.TrimSpace(answer)
	citations := s.citations.Extract(results, answer)
	slog.Debug("synthesis: answer generated", "chars", len(answer), "citations", len(citations))

	return Result{
		Answer:    answer,
		Citations: citations,
		Reasoning: fmt.Sprintf("Synthesized answer from %d search results. Generated %d citations.", len(results), len(citations)),
		ToolsUsed: tools,
	}
}
