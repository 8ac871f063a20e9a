package storage

import (
	"context"
	"fmt"
	"time"
)

func (s *Store) SaveFeedback(ctx context.Context, f Feedback) error {
	createdAt := f.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (id, answer_id, rating, comment, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		f.ID, f.AnswerID, f.Rating, f.Comment, createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving feedback %s: %w", f.ID, err)
	}
	return nil
}

// ListFeedback returns the most recent feedback first.
func (s *Store) ListFeedback(ctx context.Context, limit int) ([]Feedback, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, answer_id, rating, comment, created_at
		FROM feedback ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Feedback
	for rows.Next() {
		var f Feedback
		var createdAt string
		if err := rows.Scan(&f.ID, &f.AnswerID, &f.Rating, &f.Comment, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		f.CreatedAt = t
		out = append(out, f)
	}
	return out, rows.Err()
}
