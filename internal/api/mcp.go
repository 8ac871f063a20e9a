package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/civicnav/civicnav/internal/domain"
	"github.com/civicnav/civicnav/internal/synthesis"
)

const categoriesURI = "civicnav://categories"

// NewMCPServer exposes the query, search, categories and feedback operations
// as MCP tools backed by svc.
func NewMCPServer(svc *Service, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"civicnav",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("CivicNav answers questions about city services (schedules, events, reports, permits, emergencies) with citations to the city knowledge base."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("civicnav_query",
			mcp.WithDescription("Ask a natural language question about city services. Returns an answer with source citations."),
			mcp.WithString("query", mcp.Description("The question to answer (3 to 1000 characters)"), mcp.Required()),
		),
		mcpQuery(svc),
	)

	s.AddTool(
		mcp.NewTool("civicnav_search",
			mcp.WithDescription("Search the city services knowledge base directly without synthesizing an answer."),
			mcp.WithString("query", mcp.Description("Search terms"), mcp.Required()),
			mcp.WithNumber("top_k", mcp.Description("Maximum number of results, 1 to 20 (default 5)")),
			mcp.WithString("category", mcp.Description("Optional category filter"), mcp.Enum(domain.CategoryNames()...)),
		),
		mcpSearch(svc),
	)

	s.AddTool(
		mcp.NewTool("civicnav_categories",
			mcp.WithDescription("List all available service categories and the number of entries in each."),
		),
		mcpCategories(svc),
	)

	s.AddTool(
		mcp.NewTool("civicnav_feedback",
			mcp.WithDescription("Submit feedback on an answer to help improve the system."),
			mcp.WithString("answer_id", mcp.Description("ID of the answer returned by civicnav_query"), mcp.Required()),
			mcp.WithNumber("rating", mcp.Description("Rating from 1 (poor) to 5 (excellent)"), mcp.Required()),
			mcp.WithString("comment", mcp.Description("Optional comment, at most 500 characters")),
		),
		mcpFeedback(svc),
	)

	s.AddResource(
		mcp.NewResource(
			categoriesURI,
			"Service Categories",
			mcp.WithResourceDescription("Categories present in the knowledge base with entry counts"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceCategories(svc),
	)

	return s
}

// queryResult is the civicnav_query payload. ID is included so clients can
// send feedback on the answer.
type queryResult struct {
	ID        string                      `json:"id,omitempty"`
	Answer    string                      `json:"answer"`
	Citations []domain.Citation           `json:"citations"`
	Intent    domain.IntentClassification `json:"intent"`
	LatencyMs float64                     `json:"latency_ms"`
}

func mcpQuery(svc *Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		resp, err := svc.Query(ctx, QueryRequest{Query: query})
		if err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				return mcpError(verr.Error()), nil
			}
			slog.Error("mcp query failed", "error", err)
			res := mcpJSON(queryResult{
				Answer:    synthesis.FallbackAnswer(domain.CategoryGeneral),
				Citations: []domain.Citation{},
				Intent:    domain.DefaultClassification(),
			})
			res.IsError = true
			return res, nil
		}

		return mcpJSON(queryResult{
			ID:        resp.ID.String(),
			Answer:    resp.Answer,
			Citations: resp.Citations,
			Intent:    resp.Intent,
			LatencyMs: resp.TotalLatencyMs,
		}), nil
	}
}

func mcpSearch(svc *Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		topK := req.GetInt("top_k", defaultSearchTopK)

		resp, err := svc.Search(ctx, SearchRequest{
			Query:    query,
			TopK:     &topK,
			Category: req.GetString("category", ""),
		})
		if err != nil {
			return mcpServiceError("search", err), nil
		}
		return mcpJSON(resp), nil
	}
}

func mcpCategories(svc *Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp, err := svc.Categories(ctx)
		if err != nil {
			return mcpServiceError("categories", err), nil
		}
		return mcpJSON(resp), nil
	}
}

func mcpFeedback(svc *Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		answerID, err := req.RequireString("answer_id")
		if err != nil {
			return mcpError("answer_id is required"), nil
		}
		rating, err := req.RequireInt("rating")
		if err != nil {
			return mcpError("rating is required"), nil
		}

		resp, err := svc.SubmitFeedback(ctx, FeedbackRequest{
			AnswerID: answerID,
			Rating:   rating,
			Comment:  req.GetString("comment", ""),
		})
		if err != nil {
			return mcpServiceError("feedback", err), nil
		}
		return mcpJSON(resp), nil
	}
}

func mcpResourceCategories(svc *Service) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		resp, err := svc.Categories(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing categories: %w", err)
		}
		b, err := json.Marshal(resp)
		if err != nil {
			return nil, fmt.Errorf("marshaling categories: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpServiceError(op string, err error) *mcp.CallToolResult {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return mcpError(verr.Error())
	}
	slog.Error("mcp tool failed", "op", op, "error", err)
	return mcpError(internalErrorMessage)
}

func mcpJSON(v any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return mcpText(string(b))
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
