// Package pipeline runs the three query stages in order: intent
// classification, hybrid retrieval and answer synthesis.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/civicnav/civicnav/internal/domain"
	"github.com/civicnav/civicnav/internal/intent"
	"github.com/civicnav/civicnav/internal/retrieval"
	"github.com/civicnav/civicnav/internal/synthesis"
)

// Stage names used in reasoning traces and logs.
const (
	StageClassification = "IntentClassifier"
	StageRetrieval      = "HybridRetriever"
	StageSynthesis      = "AnswerSynthesizer"
)

// ReasoningSeparator joins the per-stage reasoning traces.
const ReasoningSeparator = " | "

var (
	ErrClassificationFailed = errors.New("query classification failed")
	ErrSynthesisFailed      = errors.New("answer synthesis failed")
)

// Classifier is satisfied by *intent.Classifier.
type Classifier interface {
	Classify(ctx context.Context, query string) intent.Result
}

// Retriever is satisfied by *retrieval.HybridRetriever.
type Retriever interface {
	Retrieve(ctx context.Context, query string, ic domain.IntentClassification) (retrieval.Result, error)
}

// Synthesizer is satisfied by *synthesis.Synthesizer.
type Synthesizer interface {
	Synthesize(ctx context.Context, query string, results []domain.SearchResult, ic domain.IntentClassification) synthesis.Result
}

// StageSummary reports one stage of a run.
type StageSummary struct {
	Name      string   `json:"name"`
	OK        bool     `json:"ok"`
	Reasoning string   `json:"reasoning"`
	ToolsUsed []string `json:"tools_used"`
	LatencyMs float64  `json:"latency_ms"`
}

// Response is the answer to one query.
type Response struct {
	ID             uuid.UUID                   `json:"id"`
	Answer         string                      `json:"answer"`
	Citations      []domain.Citation           `json:"citations"`
	Intent         domain.IntentClassification `json:"intent"`
	Reasoning      string                      `json:"reasoning"`
	TotalLatencyMs float64                     `json:"latency_ms"`
	Stages         []StageSummary              `json:"-"`
}

// Orchestrator sequences the stages. It holds no per-request state and is
// safe for concurrent use.
type Orchestrator struct {
	classifier  Classifier
	retriever   Retriever
	synthesizer Synthesizer
}

func New(c Classifier, r Retriever, s Synthesizer) *Orchestrator {
	return &Orchestrator{classifier: c, retriever: r, synthesizer: s}
}

// Run answers q. Classification or synthesis without usable output aborts
// with ErrClassificationFailed or ErrSynthesisFailed; a retrieval failure
// continues with no results.
func (o *Orchestrator) Run(ctx context.Context, q domain.Query) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	slog.Info("pipeline: query received", "query", domain.Preview(q.Text, 50), "session_id", q.SessionID)

	classified := runStage(ctx, StageClassification, func(ctx context.Context) (stageOutput[intent.Result], error) {
		r := o.classifier.Classify(ctx, q.Text)
		return stageOutput[intent.Result]{value: r, reasoning: r.Reasoning, tools: r.ToolsUsed}, nil
	})
	if classified.Output == nil {
		return nil, fmt.Errorf("%w: %s", ErrClassificationFailed, classified.Reasoning)
	}
	ic := classified.Output.Classification

	retrieved := runStage(ctx, StageRetrieval, func(ctx context.Context) (stageOutput[retrieval.Result], error) {
		r, err := o.retriever.Retrieve(ctx, q.Text, ic)
		return stageOutput[retrieval.Result]{value: r, reasoning: r.Reasoning, tools: r.ToolsUsed}, err
	})
	results := []domain.SearchResult{}
	if retrieved.Output != nil {
		results = retrieved.Output.Results
	}

	synthesized := runStage(ctx, StageSynthesis, func(ctx context.Context) (stageOutput[synthesis.Result], error) {
		r := o.synthesizer.Synthesize(ctx, q.Text, results, ic)
		return stageOutput[synthesis.Result]{value: r, reasoning: r.Reasoning, tools: r.ToolsUsed}, nil
	})
	if synthesized.Output == nil {
		return nil, fmt.Errorf("%w: %s", ErrSynthesisFailed, synthesized.Reasoning)
	}

	stages := []StageSummary{
		summarize(StageClassification, classified),
		summarize(StageRetrieval, retrieved),
		summarize(StageSynthesis, synthesized),
	}
	reasoning := make([]string, len(stages))
	var total float64
	for i, s := range stages {
		reasoning[i] = s.Reasoning
		total += s.LatencyMs
	}

	citations := synthesized.Output.Citations
	if citations == nil {
		citations = []domain.Citation{}
	}
	resp := &Response{
		ID:             uuid.New(),
		Answer:         synthesized.Output.Answer,
		Citations:      citations,
		Intent:         ic,
		Reasoning:      strings.Join(reasoning, ReasoningSeparator),
		TotalLatencyMs: total,
		Stages:         stages,
	}
	slog.Info("pipeline: query completed", "id", resp.ID, "latency_ms", int64(total), "citations", len(citations))
	return resp, nil
}

func summarize[T any](name string, r StageResult[T]) StageSummary {
	return StageSummary{
		Name:      name,
		OK:        r.Output != nil,
		Reasoning: r.Reasoning,
		ToolsUsed: r.ToolsUsed,
		LatencyMs: r.LatencyMs,
	}
}
