package synthesis

import (
	"strconv"
	"strings"

	"github.com/civicnav/civicnav/internal/domain"
)

// CitationExtractor derives the citation list for an answer from the ranked
// results it was generated from.
type CitationExtractor interface {
	Extract(results []domain.SearchResult, answer string) []domain.Citation
}

// defaultAlwaysCite is how many top-ranked results are cited unconditionally.
const defaultAlwaysCite = 3

// RankMarkerExtractor cites every result ranked within AlwaysCite, plus any
// lower-ranked result whose marker ("[4]") appears literally in the answer.
// Snippets come from the highlight when present, otherwise from content cut
// to SnippetChars runes.
type RankMarkerExtractor struct {
	AlwaysCite   int
	SnippetChars int
}

// NewRankMarkerExtractor returns an extractor citing the top three results.
func NewRankMarkerExtractor(snippetChars int) *RankMarkerExtractor {
	return &RankMarkerExtractor{AlwaysCite: defaultAlwaysCite, SnippetChars: snippetChars}
}

func (x *RankMarkerExtractor) Extract(results []domain.SearchResult, answer string) []domain.Citation {
	citations := make([]domain.Citation, 0, min(len(results), x.AlwaysCite))
	for i, r := range results {
		rank := i + 1
		if rank > x.AlwaysCite && !strings.Contains(answer, "["+strconv.Itoa(rank)+"]") {
			continue
		}
		citations = append(citations, domain.Citation{
			EntryID: r.EntryID,
			Title:   r.Title,
			Snippet: x.snippet(r),
		})
	}
	return citations
}

func (x *RankMarkerExtractor) snippet(r domain.SearchResult) string {
	if r.Highlight != "" {
		return r.Highlight
	}
	s, _ := domain.Truncate(r.Content, x.SnippetChars)
	return s
}
