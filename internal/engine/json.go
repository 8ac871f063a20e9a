package engine

import (
	"errors"
	"strings"
)

// ErrNoJSON is returned by ExtractJSON when a response holds no JSON object.
var ErrNoJSON = errors.New("no JSON object in response")

// ExtractJSON returns the outermost JSON object in a model response. Small
// local models wrap structured output in markdown fences or prose even when
// a schema is requested.
func ExtractJSON(resp string) (string, error) {
	s := strings.TrimSpace(resp)

	if idx := strings.Index(s, "```"); idx != -1 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return "", ErrNoJSON
	}
	return s[start : end+1], nil
}
