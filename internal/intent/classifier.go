// Package intent classifies a resident's question into a city service
// category and extracts the entities it mentions.
package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/civicnav/civicnav/internal/domain"
	"github.com/civicnav/civicnav/internal/engine"
)

const (
	defaultTimeout = 5 * time.Second
	maxTokens      = 300
)

// Chatter is the subset of engine.Engine the classifier needs.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []engine.Message, opts engine.ChatOptions) (string, error)
}

// Result is the classifier output. Classification is always usable; when
// Defaulted is set it is domain.DefaultClassification and Reason says why.
type Result struct {
	Classification domain.IntentClassification
	Defaulted      bool
	Reason         string
	Reasoning      string
	ToolsUsed      []string
}

// Classifier asks the chat model for a structured classification.
type Classifier struct {
	client  Chatter
	model   string
	timeout time.Duration
}

// NewClassifier creates a Classifier. A non-positive timeout uses the default.
func NewClassifier(client Chatter, model string, timeout time.Duration) *Classifier {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Classifier{client: client, model: model, timeout: timeout}
}

// Classify never fails: a chat error, timeout or malformed response yields
// the default classification.
func (c *Classifier) Classify(ctx context.Context, query string) Result {
	tools := []string{domain.ToolChat}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.client.Chat(ctx, c.model, BuildPrompt(query), engine.ChatOptions{
		Schema:      classificationSchema(),
		Temperature: engine.Temperature(0),
		MaxTokens:   maxTokens,
	})
	if err != nil {
		slog.Warn("intent classification chat failed", "query", domain.Preview(query, 50), "error", err)
		return defaulted(fmt.Sprintf("classification call failed: %v", err), tools)
	}

	ic, err := parseClassification(raw, query)
	if err != nil {
		slog.Warn("intent classification response unusable", "error", err, "response", domain.Preview(raw, 200))
		return defaulted(fmt.Sprintf("malformed classification: %v", err), tools)
	}

	return Result{
		Classification: ic,
		Reasoning:      describe(ic),
		ToolsUsed:      tools,
	}
}

func defaulted(reason string, tools []string) Result {
	ic := domain.DefaultClassification()
	return Result{
		Classification: ic,
		Defaulted:      true,
		Reason:         reason,
		Reasoning:      fmt.Sprintf("Classification unavailable (%s); defaulted to %s with confidence %.2f.", reason, ic.Category, ic.Confidence),
		ToolsUsed:      tools,
	}
}

type rawEntity struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	StartPos *int   `json:"start_pos"`
	EndPos   *int   `json:"end_pos"`
}

type rawClassification struct {
	Category   *string      `json:"category"`
	Confidence *float64     `json:"confidence"`
	Entities   *[]rawEntity `json:"entities"`
}

var errMissingField = errors.New("missing required field")

// parseClassification validates a model response. Category, confidence and
// entities are required, and a null entities list counts as missing.
// Confidence is clamped to [0,1]. Entities of unknown type or
// with empty values are dropped, and offsets outside the query are cleared.
func parseClassification(resp, query string) (domain.IntentClassification, error) {
	body, err := engine.ExtractJSON(resp)
	if err != nil {
		return domain.IntentClassification{}, err
	}

	var raw rawClassification
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return domain.IntentClassification{}, fmt.Errorf("unmarshal classification: %w", err)
	}
	if raw.Category == nil {
		return domain.IntentClassification{}, fmt.Errorf("%w: category", errMissingField)
	}
	if raw.Confidence == nil {
		return domain.IntentClassification{}, fmt.Errorf("%w: confidence", errMissingField)
	}
	if raw.Entities == nil {
		return domain.IntentClassification{}, fmt.Errorf("%w: entities", errMissingField)
	}
	cat, err := domain.ParseCategory(strings.ToLower(strings.TrimSpace(*raw.Category)))
	if err != nil {
		return domain.IntentClassification{}, err
	}

	queryLen := utf8.RuneCountInString(query)
	entities := make([]domain.Entity, 0, len(*raw.Entities))
	for _, re := range *raw.Entities {
		t := domain.EntityType(strings.ToLower(strings.TrimSpace(re.Type)))
		v := strings.TrimSpace(re.Value)
		if !t.Valid() || v == "" {
			continue
		}
		e := domain.Entity{Type: t, Value: v}
		if re.StartPos != nil && re.EndPos != nil &&
			*re.StartPos >= 0 && *re.StartPos <= *re.EndPos && *re.EndPos <= queryLen {
			e.StartPos, e.EndPos = re.StartPos, re.EndPos
		}
		entities = append(entities, e)
	}

	return domain.IntentClassification{
		Category:   cat,
		Confidence: min(max(*raw.Confidence, 0), 1),
		Entities:   entities,
	}, nil
}

func describe(ic domain.IntentClassification) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Classified as %s with confidence %.2f", ic.Category, ic.Confidence)
	if ic.IsLowConfidence() {
		sb.WriteString(" (low confidence)")
	}
	if len(ic.Entities) > 0 {
		parts := make([]string, len(ic.Entities))
		for i, e := range ic.Entities {
			parts[i] = fmt.Sprintf("%s '%s'", e.Type, e.Value)
		}
		fmt.Fprintf(&sb, ". Extracted %d entities: %s", len(ic.Entities), strings.Join(parts, ", "))
	}
	sb.WriteString(".")
	return sb.String()
}
