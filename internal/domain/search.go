package domain

import "unicode/utf8"

// SearchResult is one ranked passage returned by the search service.
// Lists of results are ordered by RelevanceScore descending and are not
// mutated after creation.
type SearchResult struct {
	ID             string   `json:"id"`
	EntryID        string   `json:"entry_id"`
	Title          string   `json:"title"`
	Content        string   `json:"content"`
	Category       Category `json:"category"`
	ServiceType    string   `json:"service_type,omitempty"`
	Department     string   `json:"department,omitempty"`
	RelevanceScore float64  `json:"relevance_score"`
	Highlight      string   `json:"highlight,omitempty"`
}

// Citation references a knowledge entry that grounded an answer.
type Citation struct {
	EntryID string `json:"entry_id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Ellipsis is appended to text shortened by Truncate.
const Ellipsis = "..."

// Truncate returns s unchanged if it has at most n runes; otherwise the first
// n runes followed by Ellipsis. The boolean reports whether truncation happened.
func Truncate(s string, n int) (string, bool) {
	if n < 0 || utf8.RuneCountInString(s) <= n {
		return s, false
	}
	runes := []rune(s)
	return string(runes[:n]) + Ellipsis, true
}
