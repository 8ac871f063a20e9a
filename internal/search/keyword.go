package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode"

	"github.com/civicnav/civicnav/internal/domain"
)

const (
	highlightOpen  = "<em>"
	highlightClose = "</em>"
	snippetTokens  = 32
	// bm25 column weights: title, content.
	titleWeight   = 10.0
	contentWeight = 1.0
)

var keywordSelect = fmt.Sprintf(`SELECT e.id, e.title, e.content, e.category, e.service_type, e.department, e.updated_date,
		bm25(knowledge_fts, %.1f, %.1f) AS rank,
		snippet(knowledge_fts, 1, '%s', '%s', '...', %d)
	FROM knowledge_fts
	JOIN knowledge_entries e ON e.seq = knowledge_fts.rowid`,
	titleWeight, contentWeight, highlightOpen, highlightClose, snippetTokens)

// keywordHit is one FTS5 match with its full entry row.
type keywordHit struct {
	entry     domain.KnowledgeEntry
	score     float64
	highlight string
}

// KeywordIndex runs BM25 queries against knowledge_fts.
type KeywordIndex struct {
	db *sql.DB
}

func NewKeywordIndex(db *sql.DB) *KeywordIndex {
	return &KeywordIndex{db: db}
}

// search returns up to limit matches, best first. A query without any
// searchable terms matches nothing.
func (k *KeywordIndex) search(ctx context.Context, query string, limit int, category domain.Category) ([]keywordHit, error) {
	match := matchExpression(query)
	if match == "" || limit <= 0 {
		return nil, nil
	}

	args := []any{match}
	q := keywordSelect + ` WHERE knowledge_fts MATCH ?`
	if category != "" {
		q += ` AND e.category = ?`
		args = append(args, string(category))
	}
	q += ` ORDER BY rank LIMIT ?`
	args = append(args, limit)

	rows, err := k.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("keyword query: %w", err)
	}
	defer rows.Close()

	var hits []keywordHit
	for rows.Next() {
		var h keywordHit
		var category, updated string
		var rank float64
		if err := rows.Scan(&h.entry.ID, &h.entry.Title, &h.entry.Content, &category,
			&h.entry.ServiceType, &h.entry.Department, &updated, &rank, &h.highlight); err != nil {
			return nil, fmt.Errorf("scanning keyword hit: %w", err)
		}
		h.entry.Category = domain.Category(category)
		h.entry.UpdatedDate = parseTime(updated)
		h.score = bm25Relevance(rank)
		// A title-only match yields a snippet without markers; that is not a highlight.
		if !strings.Contains(h.highlight, highlightOpen) {
			h.highlight = ""
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// bm25Relevance maps an FTS5 bm25 rank (more negative is better) onto [0,1).
func bm25Relevance(rank float64) float64 {
	s := -rank
	if s <= 0 {
		return 0
	}
	return s / (1 + s)
}

// matchExpression turns free text into an FTS5 query: every letter/digit
// term quoted and OR-ed, so punctuation in user input cannot break the
// MATCH syntax.
func matchExpression(query string) string {
	terms := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(terms))
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		if len([]rune(t)) < 2 || stopwords[t] || seen[t] {
			continue
		}
		seen[t] = true
		quoted = append(quoted, `"`+t+`"`)
	}
	return strings.Join(quoted, " OR ")
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "at": true, "be": true, "by": true,
	"can": true, "do": true, "does": true, "for": true, "from": true, "how": true,
	"i": true, "in": true, "is": true, "it": true, "me": true, "my": true, "of": true,
	"on": true, "or": true, "the": true, "to": true, "what": true, "when": true,
	"where": true, "which": true, "who": true, "why": true, "with": true,
}
