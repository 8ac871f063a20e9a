package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/civicnav/civicnav/internal/domain"
)

const entryColumns = `id, title, content, category, service_type, department, updated_date`

// UpsertEntry inserts or replaces a knowledge entry and, when vec is non-nil,
// its embedding. Both writes happen in one transaction.
func (s *Store) UpsertEntry(ctx context.Context, e domain.KnowledgeEntry, vec *EntryVector) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning upsert transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO knowledge_entries (id, title, content, category, service_type, department, updated_date, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			category = excluded.category,
			service_type = excluded.service_type,
			department = excluded.department,
			updated_date = excluded.updated_date,
			indexed_at = excluded.indexed_at`,
		e.ID, e.Title, e.Content, string(e.Category), e.ServiceType, e.Department,
		e.UpdatedDate.UTC().Format(time.RFC3339), now,
	)
	if err != nil {
		return fmt.Errorf("upserting entry %s: %w", e.ID, err)
	}

	if vec != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO entry_vectors (entry_id, model, dims, embedding, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(entry_id) DO UPDATE SET
				model = excluded.model,
				dims = excluded.dims,
				embedding = excluded.embedding,
				created_at = excluded.created_at`,
			e.ID, vec.Model, len(vec.Embedding), EncodeVector(vec.Embedding), now,
		)
		if err != nil {
			return fmt.Errorf("upserting vector for %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

// GetEntry returns the entry with the given id or domain.ErrNotFound.
func (s *Store) GetEntry(ctx context.Context, id string) (domain.KnowledgeEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM knowledge_entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.KnowledgeEntry{}, fmt.Errorf("entry %s: %w", id, domain.ErrNotFound)
	}
	return e, err
}

// ListEntries returns entries ordered by id, at most limit of them.
func (s *Store) ListEntries(ctx context.Context, limit int) ([]domain.KnowledgeEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM knowledge_entries ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.KnowledgeEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteEntry removes an entry; its vector goes with it.
func (s *Store) DeleteEntry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM knowledge_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting entry %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("entry %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Counts holds index size figures for status output.
type Counts struct {
	Entries  int
	Vectors  int
	Feedback int
}

func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM knowledge_entries),
		(SELECT COUNT(*) FROM entry_vectors),
		(SELECT COUNT(*) FROM feedback)`).Scan(&c.Entries, &c.Vectors, &c.Feedback)
	return c, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (domain.KnowledgeEntry, error) {
	var e domain.KnowledgeEntry
	var category, updated string
	if err := sc.Scan(&e.ID, &e.Title, &e.Content, &category, &e.ServiceType, &e.Department, &updated); err != nil {
		return domain.KnowledgeEntry{}, err
	}
	e.Category = domain.Category(category)
	t, err := time.Parse(time.RFC3339, updated)
	if err != nil {
		return domain.KnowledgeEntry{}, fmt.Errorf("parsing updated_date for %s: %w", e.ID, err)
	}
	e.UpdatedDate = t
	return e, nil
}
