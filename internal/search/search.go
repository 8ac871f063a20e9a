// Package search is the search collaborator behind retrieval: keyword search
// over an FTS5 index, brute-force vector similarity, reciprocal rank fusion
// and optional semantic re-ranking, all on the local SQLite store.
package search

import (
	"context"

	"github.com/google/uuid"

	"github.com/civicnav/civicnav/internal/domain"
)

// Service is the contract retrieval and the API depend on. Results are
// ordered by RelevanceScore descending with scores in [0,1]. An empty
// category means no filter.
type Service interface {
	FusedSearch(ctx context.Context, query string, vector []float32, topK int, category domain.Category) ([]domain.SearchResult, error)
	KeywordSearch(ctx context.Context, query string, topK int, category domain.Category) ([]domain.SearchResult, error)
	FacetCounts(ctx context.Context, field string) (map[string]int, error)
	Ping(ctx context.Context) error
}

// Facet fields accepted by FacetCounts.
const (
	FacetCategory    = "category"
	FacetDepartment  = "department"
	FacetServiceType = "service_type"
)

var docNamespace = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("search.civicnav"))

// DocumentID is the stable search document key for an entry.
func DocumentID(entryID string) string {
	return uuid.NewSHA1(docNamespace, []byte(entryID)).String()
}
