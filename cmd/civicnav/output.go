package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/civicnav/civicnav/internal/domain"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

// answerView is the subset of the query response the CLI renders.
type answerView struct {
	ID        string                      `json:"id"`
	Answer    string                      `json:"answer"`
	Citations []domain.Citation           `json:"citations"`
	Intent    domain.IntentClassification `json:"intent"`
	Reasoning string                      `json:"reasoning"`
	LatencyMs float64                     `json:"latency_ms"`
}

func renderAnswer(w io.Writer, a answerView, verbose bool) {
	fmt.Fprintln(w, a.Answer)
	if len(a.Citations) > 0 {
		fmt.Fprintf(w, "\n%s\n", colorize(colorBold, "Sources"))
		for i, c := range a.Citations {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, c.Title)
			if c.Snippet != "" {
				fmt.Fprintf(w, "      %s\n", c.Snippet)
			}
		}
	}
	fmt.Fprintf(w, "\n%s %s (%.2f)  %s %.0f ms  %s %s\n",
		colorize(colorCyan, "intent"), a.Intent.Category, a.Intent.Confidence,
		colorize(colorCyan, "latency"), a.LatencyMs,
		colorize(colorCyan, "id"), a.ID,
	)
	if verbose {
		for _, step := range strings.Split(a.Reasoning, " | ") {
			fmt.Fprintf(w, "  - %s\n", step)
		}
	}
}

func renderResults(w io.Writer, results []domain.SearchResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}
	for i, r := range results {
		fmt.Fprintf(w, "\n%s %s [%s, score: %.3f]\n",
			colorize(colorBold, fmt.Sprintf("%d.", i+1)), r.Title, r.Category, r.RelevanceScore)
		text := r.Highlight
		if text == "" {
			text, _ = domain.Truncate(r.Content, 300)
		}
		fmt.Fprintf(w, "   %s\n", text)
	}
}
