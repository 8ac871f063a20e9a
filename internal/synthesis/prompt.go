package synthesis

import (
	"fmt"
	"strings"

	"github.com/civicnav/civicnav/internal/domain"
	"github.com/civicnav/civicnav/internal/engine"
)

const systemPrompt = "You are a helpful city services assistant. Provide accurate, helpful answers based on the provided search results."

const userPromptTemplate = `You are a helpful city services assistant. Based on the search results provided, answer the user's question.

Guidelines:
1. Provide a clear, helpful answer based ONLY on the search results
2. If the search results don't contain relevant information, say so politely
3. Reference sources by number [1], [2], etc. when citing specific information
4. Keep the response concise but informative
5. If relevant, suggest next steps or additional resources

User Question: %s

Search Results:
%s

Provide a helpful answer:`

// defaultMaxContextTokens bounds the search results block in the prompt.
const defaultMaxContextTokens = 4000

// BuildContext formats results as numbered source blocks. Each content is
// cut to contentChars runes. Blocks are added in rank order until the token
// budget is spent, so source numbers always match result ranks.
func BuildContext(results []domain.SearchResult, contentChars, maxTokens int) string {
	if maxTokens <= 0 {
		maxTokens = defaultMaxContextTokens
	}

	blocks := make([]string, 0, len(results))
	remaining := maxTokens
	for i, r := range results {
		content, _ := domain.Truncate(r.Content, contentChars)
		block := fmt.Sprintf("[%d] %s\nCategory: %s\nContent: %s\n", i+1, r.Title, r.Category, content)
		tokens := EstimateTokens(block)
		if tokens > remaining && len(blocks) > 0 {
			break
		}
		blocks = append(blocks, block)
		remaining -= tokens
	}
	return strings.Join(blocks, "\n")
}

// BuildPrompt constructs the synthesis chat messages.
func BuildPrompt(query, context string) []engine.Message {
	return []engine.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf(userPromptTemplate, query, context)},
	}
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
