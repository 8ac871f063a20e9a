package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxTitleLength   = 200
	MinContentLength = 50
	MaxContentLength = 10000
)

// KnowledgeEntry is a unit of city services information held by the search index.
type KnowledgeEntry struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Category    Category  `json:"category"`
	ServiceType string    `json:"service_type"`
	Department  string    `json:"department"`
	UpdatedDate time.Time `json:"updated_date"`
}

// Validate checks field bounds. now is the reference time for the
// updated_date check.
func (e KnowledgeEntry) Validate(now time.Time) error {
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("%w: title must not be empty or whitespace-only", ErrInvalidInput)
	}
	if utf8.RuneCountInString(e.Title) > MaxTitleLength {
		return fmt.Errorf("%w: title exceeds %d characters", ErrInvalidInput, MaxTitleLength)
	}
	n := utf8.RuneCountInString(e.Content)
	if n < MinContentLength || n > MaxContentLength {
		return fmt.Errorf("%w: content length %d outside %d-%d", ErrInvalidInput, n, MinContentLength, MaxContentLength)
	}
	if !e.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidInput, e.Category)
	}
	if e.UpdatedDate.After(now) {
		return fmt.Errorf("%w: updated_date cannot be in the future", ErrInvalidInput)
	}
	return nil
}
