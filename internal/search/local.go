package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/civicnav/civicnav/internal/domain"
	"github.com/civicnav/civicnav/internal/reranking"
	"github.com/civicnav/civicnav/internal/storage"
)

// Compile-time check that Local implements Service.
var _ Service = (*Local)(nil)

// minCandidates is the per-list candidate floor for fusion.
const minCandidates = 20

// Local implements Service on the SQLite store.
type Local struct {
	store    *storage.Store
	keyword  *KeywordIndex
	vector   *VectorIndex
	reranker reranking.Reranker
}

// NewLocal builds the search service. A nil reranker disables re-ranking.
func NewLocal(store *storage.Store, reranker reranking.Reranker) *Local {
	if reranker == nil {
		reranker = &reranking.NoOpReranker{}
	}
	return &Local{
		store:    store,
		keyword:  NewKeywordIndex(store.DB()),
		vector:   NewVectorIndex(store.DB()),
		reranker: reranker,
	}
}

// FusedSearch fuses keyword and vector candidates with RRF, re-ranks the
// head of the fused list and returns the best topK.
func (l *Local) FusedSearch(ctx context.Context, query string, vector []float32, topK int, category domain.Category) ([]domain.SearchResult, error) {
	if topK <= 0 {
		return []domain.SearchResult{}, nil
	}
	candidates := max(topK*3, minCandidates)

	kw, err := l.keyword.search(ctx, query, candidates, category)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSearchUnavailable, err)
	}
	vec, err := l.vector.search(ctx, vector, candidates, category)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSearchUnavailable, err)
	}

	fused := fuseRRF(kw, vec)
	if len(fused) > topK*2 {
		fused = fused[:topK*2]
	}

	known := make(map[string]keywordHit, len(kw))
	for _, h := range kw {
		known[h.entry.ID] = h
	}
	var missing []string
	for _, f := range fused {
		if _, ok := known[f.entryID]; !ok {
			missing = append(missing, f.entryID)
		}
	}
	loaded, err := l.entriesByID(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSearchUnavailable, err)
	}

	results := make([]domain.SearchResult, 0, len(fused))
	for _, f := range fused {
		if h, ok := known[f.entryID]; ok {
			results = append(results, toResult(h.entry, f.score, h.highlight))
		} else if e, ok := loaded[f.entryID]; ok {
			results = append(results, toResult(e, f.score, ""))
		}
	}

	reranked, err := l.reranker.Rerank(ctx, query, results)
	if err != nil {
		slog.Warn("search: rerank failed, keeping fused order", "error", err)
		reranked = results
	}
	if len(reranked) > topK {
		reranked = reranked[:topK]
	}
	return reranked, nil
}

// KeywordSearch returns BM25 matches only.
func (l *Local) KeywordSearch(ctx context.Context, query string, topK int, category domain.Category) ([]domain.SearchResult, error) {
	kw, err := l.keyword.search(ctx, query, topK, category)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSearchUnavailable, err)
	}
	results := make([]domain.SearchResult, len(kw))
	for i, h := range kw {
		results[i] = toResult(h.entry, h.score, h.highlight)
	}
	return results, nil
}

// FacetCounts counts entries per distinct value of field.
func (l *Local) FacetCounts(ctx context.Context, field string) (map[string]int, error) {
	switch field {
	case FacetCategory, FacetDepartment, FacetServiceType:
	default:
		return nil, fmt.Errorf("%w: unsupported facet field %q", domain.ErrInvalidInput, field)
	}

	// field is whitelisted above.
	rows, err := l.store.DB().QueryContext(ctx,
		`SELECT `+field+`, COUNT(*) FROM knowledge_entries WHERE `+field+` != '' GROUP BY `+field)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSearchUnavailable, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var value string
		var n int
		if err := rows.Scan(&value, &n); err != nil {
			return nil, err
		}
		counts[value] = n
	}
	return counts, rows.Err()
}

func (l *Local) Ping(ctx context.Context) error {
	if err := l.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSearchUnavailable, err)
	}
	return nil
}

func (l *Local) entriesByID(ctx context.Context, ids []string) (map[string]domain.KnowledgeEntry, error) {
	out := make(map[string]domain.KnowledgeEntry, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	q := `SELECT id, title, content, category, service_type, department, updated_date
		FROM knowledge_entries WHERE id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`

	rows, err := l.store.DB().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("loading entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e domain.KnowledgeEntry
		var category, updated string
		if err := rows.Scan(&e.ID, &e.Title, &e.Content, &category, &e.ServiceType, &e.Department, &updated); err != nil {
			return nil, err
		}
		e.Category = domain.Category(category)
		e.UpdatedDate = parseTime(updated)
		out[e.ID] = e
	}
	return out, rows.Err()
}

func toResult(e domain.KnowledgeEntry, score float64, highlight string) domain.SearchResult {
	return domain.SearchResult{
		ID:             DocumentID(e.ID),
		EntryID:        e.ID,
		Title:          e.Title,
		Content:        e.Content,
		Category:       e.Category,
		ServiceType:    e.ServiceType,
		Department:     e.Department,
		RelevanceScore: score,
		Highlight:      highlight,
	}
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
