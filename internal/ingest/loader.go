// Package ingest provisions the knowledge base: it loads entries from JSON
// files and documents, then validates, embeds and stores them.
package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/civicnav/civicnav/internal/domain"
)

// Metadata supplies the fields a document cannot carry itself.
type Metadata struct {
	Category    domain.Category
	Department  string
	ServiceType string
	UpdatedDate time.Time
}

// entryNamespace seeds deterministic IDs for document-derived entries, so
// re-indexing the same file replaces its entries.
var entryNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("civicnav:entry"))

// jsonEntry is the on-disk shape of a knowledge entry.
type jsonEntry struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	Category    string `json:"category"`
	ServiceType string `json:"service_type"`
	Department  string `json:"department"`
	UpdatedDate string `json:"updated_date"`
}

// dateLayouts are accepted for updated_date.
var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// LoadJSON decodes a JSON array of entries. Entries without an id get a
// random one; entries without updated_date get now.
func LoadJSON(r io.Reader, now time.Time) ([]domain.KnowledgeEntry, error) {
	var raw []jsonEntry
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding entries: %w", err)
	}

	entries := make([]domain.KnowledgeEntry, 0, len(raw))
	for i, je := range raw {
		cat, err := domain.ParseCategory(strings.ToLower(strings.TrimSpace(je.Category)))
		if err != nil {
			return nil, fmt.Errorf("entry %d (%q): %w", i, je.Title, err)
		}
		updated := now
		if je.UpdatedDate != "" {
			updated, err = parseDate(je.UpdatedDate)
			if err != nil {
				return nil, fmt.Errorf("entry %d (%q): %w", i, je.Title, err)
			}
		}
		id := je.ID
		if id == "" {
			id = uuid.New().String()
		}
		entries = append(entries, domain.KnowledgeEntry{
			ID:          id,
			Title:       strings.TrimSpace(je.Title),
			Content:     strings.TrimSpace(je.Content),
			Category:    cat,
			ServiceType: je.ServiceType,
			Department:  je.Department,
			UpdatedDate: updated,
		})
	}
	return entries, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognised updated_date %q", domain.ErrInvalidInput, s)
}

// LoadFile loads entries from path, choosing the loader by extension.
// Documents (PDF, HTML, plain text) need meta.Category.
func LoadFile(path string, meta Metadata, now time.Time) ([]domain.KnowledgeEntry, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return LoadJSON(f, now)
	}

	if !meta.Category.Valid() {
		return nil, fmt.Errorf("%w: %s needs a category", domain.ErrInvalidInput, filepath.Base(path))
	}
	if meta.UpdatedDate.IsZero() {
		meta.UpdatedDate = now
	}

	var (
		doc document
		err error
	)
	switch ext {
	case ".pdf":
		doc, err = loadPDF(path)
	case ".html", ".htm":
		doc, err = loadHTMLFile(path)
	case ".txt", ".md":
		doc, err = loadText(path)
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q", domain.ErrInvalidInput, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return doc.entries(path, meta), nil
}

// document is extracted title and body text.
type document struct {
	title string
	text  string
}

func loadText(path string) (document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return document{}, err
	}
	return document{title: titleFromPath(path), text: string(b)}, nil
}

func titleFromPath(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(base))
}

// entries splits the document into entries no longer than the content
// limit. Parts after the first get a numbered title.
func (d document) entries(path string, meta Metadata) []domain.KnowledgeEntry {
	title := d.title
	if title == "" {
		title = titleFromPath(path)
	}

	source := path
	if abs, err := filepath.Abs(path); err == nil {
		source = abs
	}

	chunks := chunkText(normalizeSpace(d.text), domain.MaxContentLength)
	entries := make([]domain.KnowledgeEntry, len(chunks))
	for i, chunk := range chunks {
		var suffix string
		if len(chunks) > 1 {
			suffix = fmt.Sprintf(" (part %d)", i+1)
		}
		entries[i] = domain.KnowledgeEntry{
			ID:          uuid.NewSHA1(entryNamespace, fmt.Appendf(nil, "%s#%d", source, i)).String(),
			Title:       fitTitle(title, suffix),
			Content:     chunk,
			Category:    meta.Category,
			ServiceType: meta.ServiceType,
			Department:  meta.Department,
			UpdatedDate: meta.UpdatedDate,
		}
	}
	return entries
}

// fitTitle appends suffix to title, shortening title so that the result,
// ellipsis included, stays within the title limit.
func fitTitle(title, suffix string) string {
	limit := domain.MaxTitleLength - utf8.RuneCountInString(suffix)
	if utf8.RuneCountInString(title) > limit {
		title, _ = domain.Truncate(title, limit-utf8.RuneCountInString(domain.Ellipsis))
	}
	return title + suffix
}

// normalizeSpace collapses runs of blank lines and trailing spaces left by
// text extraction.
func normalizeSpace(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// chunkText splits s into pieces of at most limit runes, breaking at the
// last paragraph or space boundary when one exists.
func chunkText(s string, limit int) []string {
	var chunks []string
	runes := []rune(s)
	for len(runes) > limit {
		cut := limit
		if i := lastIndex(runes[:limit], "\n\n"); i > limit/2 {
			cut = i
		} else if i := lastIndex(runes[:limit], " "); i > limit/2 {
			cut = i
		}
		chunks = append(chunks, strings.TrimSpace(string(runes[:cut])))
		runes = []rune(strings.TrimSpace(string(runes[cut:])))
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

func lastIndex(runes []rune, sep string) int {
	sr := []rune(sep)
outer:
	for i := len(runes) - len(sr); i >= 0; i-- {
		for j, r := range sr {
			if runes[i+j] != r {
				continue outer
			}
		}
		return i
	}
	return -1
}
