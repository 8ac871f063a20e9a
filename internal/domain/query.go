package domain

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MinQueryLength = 3
	MaxQueryLength = 1000
)

// Query is a validated natural language question. Construct it with NewQuery;
// the fields are not modified afterwards.
type Query struct {
	Text      string
	SessionID string
}

// NewQuery validates text and returns a Query. Length is counted in runes.
func NewQuery(text, sessionID string) (Query, error) {
	if err := ValidateQueryText(text); err != nil {
		return Query{}, err
	}
	return Query{Text: text, SessionID: sessionID}, nil
}

// ValidateQueryText checks the length bounds and requires at least one
// letter or digit.
func ValidateQueryText(text string) error {
	n := utf8.RuneCountInString(text)
	if n < MinQueryLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrInvalidQuery, MinQueryLength)
	}
	if n > MaxQueryLength {
		return fmt.Errorf("%w: must be at most %d characters", ErrInvalidQuery, MaxQueryLength)
	}
	if strings.IndexFunc(text, isAlnum) < 0 {
		return fmt.Errorf("%w: must not contain only special characters", ErrInvalidQuery)
	}
	return nil
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Preview returns at most n runes of s followed by "..." when shortened.
// Used for log lines and reasoning traces.
func Preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
