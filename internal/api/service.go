// Package api exposes the answering pipeline and the knowledge base over
// HTTP (chi) and MCP (mcp-go). Both transports share Service, which owns
// request validation and the calls into the pipeline, search and feedback
// collaborators.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/civicnav/civicnav/internal/domain"
	"github.com/civicnav/civicnav/internal/pipeline"
	"github.com/civicnav/civicnav/internal/search"
	"github.com/civicnav/civicnav/internal/storage"
)

const (
	defaultSearchTopK  = 5
	minSearchTopK      = 1
	maxSearchTopK      = 20
	maxCommentLength   = 500
	minRating          = 1
	maxRating          = 5
	healthCheckTimeout = 2 * time.Second
)

// QueryRunner runs the answering pipeline for one query.
type QueryRunner interface {
	Run(ctx context.Context, q domain.Query) (*pipeline.Response, error)
}

// FeedbackStore persists answer ratings.
type FeedbackStore interface {
	SaveFeedback(ctx context.Context, f storage.Feedback) error
}

// LLMStatus reports whether the inference backend is reachable.
type LLMStatus interface {
	IsRunning(ctx context.Context) bool
}

// Deps holds the collaborators shared by the HTTP and MCP surfaces.
type Deps struct {
	Pipeline QueryRunner
	Search   search.Service
	Feedback FeedbackStore
	LLM      LLMStatus
	Version  string
}

// Service validates requests and dispatches them to the collaborators.
type Service struct {
	deps Deps
	now  func() time.Time
}

func NewService(deps Deps) *Service {
	return &Service{deps: deps, now: time.Now}
}

// ValidationError describes a rejected request field. It matches
// domain.ErrInvalidInput with errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return domain.ErrInvalidInput }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

type QueryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

type SearchRequest struct {
	Query    string `json:"query"`
	TopK     *int   `json:"top_k,omitempty"`
	Category string `json:"category,omitempty"`
}

type SearchResponse struct {
	Results    []domain.SearchResult `json:"results"`
	TotalCount int                   `json:"total_count"`
}

type CategoryCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type CategoriesResponse struct {
	Categories []CategoryCount `json:"categories"`
}

type FeedbackRequest struct {
	AnswerID string `json:"answer_id"`
	Rating   int    `json:"rating"`
	Comment  string `json:"comment,omitempty"`
}

type FeedbackResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Health statuses.
const (
	StatusHealthy      = "healthy"
	StatusDegraded     = "degraded"
	StatusUnhealthy    = "unhealthy"
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
)

type HealthResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version"`
	Services map[string]string `json:"services"`
}

// Query validates req and runs the pipeline. Validation failures return a
// *ValidationError; pipeline aborts are returned unchanged.
func (s *Service) Query(ctx context.Context, req QueryRequest) (*pipeline.Response, error) {
	q, err := domain.NewQuery(req.Query, req.SessionID)
	if err != nil {
		return nil, invalid("query", "%s", trimSentinel(err, domain.ErrInvalidQuery))
	}
	if req.SessionID != "" {
		if _, err := uuid.Parse(req.SessionID); err != nil {
			return nil, invalid("session_id", "must be a valid UUID")
		}
	}
	return s.deps.Pipeline.Run(ctx, q)
}

// Search runs a keyword-only search without synthesizing an answer.
func (s *Service) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	if err := domain.ValidateQueryText(req.Query); err != nil {
		return SearchResponse{}, invalid("query", "%s", trimSentinel(err, domain.ErrInvalidQuery))
	}
	topK := defaultSearchTopK
	if req.TopK != nil {
		topK = *req.TopK
	}
	if topK < minSearchTopK || topK > maxSearchTopK {
		return SearchResponse{}, invalid("top_k", "must be between %d and %d", minSearchTopK, maxSearchTopK)
	}
	var category domain.Category
	if req.Category != "" {
		c, err := domain.ParseCategory(req.Category)
		if err != nil {
			return SearchResponse{}, invalid("category", "must be one of %v", domain.CategoryNames())
		}
		category = c
	}

	results, err := s.deps.Search.KeywordSearch(ctx, req.Query, topK, category)
	if err != nil {
		return SearchResponse{}, fmt.Errorf("keyword search: %w", err)
	}
	if results == nil {
		results = []domain.SearchResult{}
	}
	return SearchResponse{Results: results, TotalCount: len(results)}, nil
}

// Categories lists every category present in the index with its entry count,
// in display order.
func (s *Service) Categories(ctx context.Context) (CategoriesResponse, error) {
	counts, err := s.deps.Search.FacetCounts(ctx, search.FacetCategory)
	if err != nil {
		return CategoriesResponse{}, fmt.Errorf("category facets: %w", err)
	}
	out := CategoriesResponse{Categories: []CategoryCount{}}
	for _, c := range domain.Categories {
		if n := counts[string(c)]; n > 0 {
			out.Categories = append(out.Categories, CategoryCount{Name: string(c), Count: n})
		}
	}
	return out, nil
}

// SubmitFeedback validates and stores a rating for a previously returned answer.
func (s *Service) SubmitFeedback(ctx context.Context, req FeedbackRequest) (FeedbackResponse, error) {
	if _, err := uuid.Parse(req.AnswerID); err != nil {
		return FeedbackResponse{}, invalid("answer_id", "must be a valid UUID")
	}
	if req.Rating < minRating || req.Rating > maxRating {
		return FeedbackResponse{}, invalid("rating", "must be between %d and %d", minRating, maxRating)
	}
	if utf8.RuneCountInString(req.Comment) > maxCommentLength {
		return FeedbackResponse{}, invalid("comment", "must be at most %d characters", maxCommentLength)
	}

	fb := storage.Feedback{
		ID:        uuid.New().String(),
		AnswerID:  req.AnswerID,
		Rating:    req.Rating,
		Comment:   req.Comment,
		CreatedAt: s.now(),
	}
	if err := s.deps.Feedback.SaveFeedback(ctx, fb); err != nil {
		return FeedbackResponse{}, err
	}
	slog.Info("feedback received", "answer_id", fb.AnswerID, "rating", fb.Rating)
	return FeedbackResponse{ID: fb.ID, Status: "received"}, nil
}

// Health probes the LLM backend and the search index.
func (s *Service) Health(ctx context.Context) HealthResponse {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	llmUp := s.deps.LLM != nil && s.deps.LLM.IsRunning(ctx)
	searchUp := s.deps.Search != nil && s.deps.Search.Ping(ctx) == nil

	status := StatusUnhealthy
	switch {
	case llmUp && searchUp:
		status = StatusHealthy
	case llmUp || searchUp:
		status = StatusDegraded
	}
	return HealthResponse{
		Status:  status,
		Version: s.deps.Version,
		Services: map[string]string{
			"llm":    connection(llmUp),
			"search": connection(searchUp),
		},
	}
}

func connection(up bool) string {
	if up {
		return StatusConnected
	}
	return StatusDisconnected
}

// trimSentinel drops the "invalid query: " prefix so the message reads as a
// field error.
func trimSentinel(err, sentinel error) string {
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if errors.Is(err, sentinel) && len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return msg
}
