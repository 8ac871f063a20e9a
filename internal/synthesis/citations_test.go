package synthesis

import (
	"strings"
	"testing"

	"github.com/civicnav/civicnav/internal/domain"
)

func ids(cs []domain.Citation) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.EntryID
	}
	return out
}

func ranked(n int) []domain.SearchResult {
	results := make([]domain.SearchResult, n)
	for i := range results {
		id := string(rune('A' + i))
		results[i] = domain.SearchResult{EntryID: id, Title: "Entry " + id, Content: "content " + id}
	}
	return results
}

func TestRankMarkerExtractor(t *testing.T) {
	x := NewRankMarkerExtractor(150)

	tests := []struct {
		name    string
		results []domain.SearchResult
		answer  string
		want    string
	}{
		{"top three always cited", ranked(3), "See [2] for details.", "A,B,C"},
		{"marker pulls in rank four", ranked(5), "Both [4] and [1] apply.", "A,B,C,D"},
		{"rank five without marker", ranked(5), "No markers at all.", "A,B,C"},
		{"marker beyond results ignored", ranked(2), "See [7].", "A,B"},
		{"no results", nil, "[1]", ""},
		{"rank ten not matched by [1]", ranked(10), "See [1].", "A,B,C"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := strings.Join(ids(x.Extract(tt.results, tt.answer)), ",")
			if got != tt.want {
				t.Errorf("cited %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRankMarkerExtractor_Snippets(t *testing.T) {
	x := NewRankMarkerExtractor(150)
	long := strings.Repeat("b", 200)
	longHighlight := "<em>trash</em> " + strings.Repeat("c", 300)
	results := []domain.SearchResult{
		{EntryID: "short", Content: "Short content."},
		{EntryID: "long", Content: long},
		{EntryID: "hl", Content: long, Highlight: longHighlight},
	}

	cs := x.Extract(results, "")
	if cs[0].Snippet != "Short content." {
		t.Errorf("short snippet = %q", cs[0].Snippet)
	}
	if cs[1].Snippet != strings.Repeat("b", 150)+"..." {
		t.Errorf("long snippet has %d chars, want 150 plus ellipsis", len(cs[1].Snippet))
	}
	if cs[2].Snippet != longHighlight {
		t.Error("highlight should be used verbatim without a length bound")
	}
}
