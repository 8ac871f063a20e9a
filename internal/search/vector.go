package search

import (
	"container/heap"
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/civicnav/civicnav/internal/domain"
	"github.com/civicnav/civicnav/internal/storage"
)

// VectorIndex does brute-force cosine similarity over entry_vectors. The
// corpus is a city knowledge base of a few thousand entries at most, so a
// full scan with a top-K heap is fast enough.
type VectorIndex struct {
	db *sql.DB
}

func NewVectorIndex(db *sql.DB) *VectorIndex {
	return &VectorIndex{db: db}
}

// vectorHit holds only the entry ID and score; entry rows are loaded for
// the fused winners only.
type vectorHit struct {
	entryID string
	score   float64
}

func (v *VectorIndex) search(ctx context.Context, vector []float32, limit int, category domain.Category) ([]vectorHit, error) {
	queryNorm := norm(vector)
	if queryNorm == 0 || limit <= 0 {
		return nil, nil
	}

	q := `SELECT v.entry_id, v.embedding FROM entry_vectors v`
	var args []any
	if category != "" {
		q += ` JOIN knowledge_entries e ON e.id = v.entry_id WHERE e.category = ?`
		args = append(args, string(category))
	}

	rows, err := v.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	h := &hitHeap{}
	heap.Init(h)

	var buf []float32
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scanning vector row: %w", err)
		}
		buf, err = storage.DecodeVectorInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", id, err)
		}

		score := cosine(vector, buf, queryNorm)
		if h.Len() < limit {
			heap.Push(h, vectorHit{entryID: id, score: score})
		} else if score > (*h)[0].score {
			(*h)[0] = vectorHit{entryID: id, score: score}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vectors: %w", err)
	}

	hits := make([]vectorHit, h.Len())
	for i := len(hits) - 1; i >= 0; i-- {
		hits[i] = heap.Pop(h).(vectorHit)
	}
	return hits, nil
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

// cosine computes dot(a,b) / (aNorm * |b|). Vectors of different
// dimensions score 0.
func cosine(a, b []float32, aNorm float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	if bNormSq == 0 {
		return 0
	}
	return dot / (aNorm * math.Sqrt(bNormSq))
}

// hitHeap is a min-heap of vectorHit ordered by score.
type hitHeap []vectorHit

func (h hitHeap) Len() int           { return len(h) }
func (h hitHeap) Less(i, j int) bool { return h[i].score < h[j].score }
func (h hitHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *hitHeap) Push(x any)        { *h = append(*h, x.(vectorHit)) }
func (h *hitHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
