package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/civicnav/civicnav/internal/domain"
	"github.com/civicnav/civicnav/internal/storage"
)

// EntryStore persists entries with their vectors.
type EntryStore interface {
	UpsertEntry(ctx context.Context, e domain.KnowledgeEntry, vec *storage.EntryVector) error
}

// BatchEmbedder generates embeddings for many texts. *retrieval.Embedder
// satisfies it.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// Skipped records an entry rejected by validation.
type Skipped struct {
	ID     string
	Title  string
	Reason string
}

// Report summarises an Index run.
type Report struct {
	Indexed  int
	Skipped  []Skipped
	Duration time.Duration
}

// Indexer validates, embeds and stores knowledge entries.
type Indexer struct {
	store    EntryStore
	embedder BatchEmbedder
	now      func() time.Time
	logger   *slog.Logger
}

// NewIndexer creates an Indexer. A nil embedder stores entries without
// vectors; they are then reachable by keyword search only.
func NewIndexer(store EntryStore, embedder BatchEmbedder) *Indexer {
	return &Indexer{
		store:    store,
		embedder: embedder,
		now:      time.Now,
		logger:   slog.Default(),
	}
}

// Index stores every valid entry. Invalid entries are skipped and reported.
// An embedding failure aborts the run before anything is written.
func (ix *Indexer) Index(ctx context.Context, entries []domain.KnowledgeEntry) (Report, error) {
	start := ix.now()
	var report Report

	valid := make([]domain.KnowledgeEntry, 0, len(entries))
	seen := make(map[string]int, len(entries))
	for _, e := range entries {
		if err := e.Validate(start); err != nil {
			ix.logger.Warn("skipping invalid entry", "id", e.ID, "title", e.Title, "error", err)
			report.Skipped = append(report.Skipped, Skipped{ID: e.ID, Title: e.Title, Reason: err.Error()})
			continue
		}
		// The last occurrence of a repeated id wins, as it would on re-index.
		if i, ok := seen[e.ID]; ok {
			valid[i] = e
			continue
		}
		seen[e.ID] = len(valid)
		valid = append(valid, e)
	}
	if len(valid) == 0 {
		report.Duration = ix.now().Sub(start)
		return report, nil
	}

	var vectors [][]float32
	if ix.embedder != nil {
		texts := make([]string, len(valid))
		for i, e := range valid {
			texts[i] = embeddingText(e)
		}
		var err error
		vectors, err = ix.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return report, fmt.Errorf("embedding entries: %w", err)
		}
	}

	for i, e := range valid {
		var vec *storage.EntryVector
		if vectors != nil {
			vec = &storage.EntryVector{EntryID: e.ID, Model: ix.embedder.Model(), Embedding: vectors[i]}
		}
		if err := ix.store.UpsertEntry(ctx, e, vec); err != nil {
			return report, fmt.Errorf("storing entry %s: %w", e.ID, err)
		}
		report.Indexed++
	}

	report.Duration = ix.now().Sub(start)
	ix.logger.Info("index run complete", "indexed", report.Indexed, "skipped", len(report.Skipped), "duration", report.Duration)
	return report, nil
}

// embeddingText is what gets embedded for an entry: the title carries most
// of the topical signal for short service descriptions.
func embeddingText(e domain.KnowledgeEntry) string {
	return e.Title + "\n\n" + e.Content
}
