package ingest

import (
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

// loadPDF extracts the plain text of every page. The title comes from the
// file name; PDF metadata titles are too often empty or generator names.
func loadPDF(path string) (document, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return document{}, fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return document{}, fmt.Errorf("extracting pdf text: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return document{}, fmt.Errorf("reading pdf text: %w", err)
	}
	return document{title: titleFromPath(path), text: string(b)}, nil
}
