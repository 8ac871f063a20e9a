package domain

// Tool identifiers recorded in a stage's tools_used list.
const (
	ToolEmbedding     = "llm_embedding"
	ToolSearchHybrid  = "search_hybrid"
	ToolSearchKeyword = "search_keyword"
	ToolChat          = "llm_chat"
)
