package engine

import (
	"context"
	"fmt"
	"io"
)

// EnsureReady fails when the backend is unreachable and pulls any of the
// named models it does not have. Empty model names are skipped. Pull
// progress is written to w as whole-percent steps, one line per change.
func EnsureReady(ctx context.Context, e Engine, chatModel, embedModel string, w io.Writer) error {
	if !e.IsRunning(ctx) {
		return fmt.Errorf("inference backend is not reachable; start Ollama with: ollama serve")
	}

	for _, model := range requiredModels(chatModel, embedModel) {
		if !e.HasModel(ctx, model) {
			fmt.Fprintf(w, "model %s: pulling\n", model)
			if err := e.PullModel(ctx, model, progressPrinter(w)); err != nil {
				return fmt.Errorf("pulling model %s: %w", model, err)
			}
		}
		fmt.Fprintf(w, "model %s: ready\n", model)
	}
	return nil
}

func requiredModels(names ...string) []string {
	var out []string
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// progressPrinter drops progress updates that would print the same line as
// the previous one.
func progressPrinter(w io.Writer) func(PullProgress) {
	var last string
	return func(p PullProgress) {
		line := "  " + p.Status
		if p.Total > 0 {
			line = fmt.Sprintf("  %s %d%%", p.Status, p.Completed*100/p.Total)
		}
		if line == last {
			return
		}
		last = line
		fmt.Fprintln(w, line)
	}
}
