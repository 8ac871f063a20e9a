package intent

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/civicnav/civicnav/internal/domain"
	"github.com/civicnav/civicnav/internal/engine"
)

// mockChatter implements Chatter for testing.
type mockChatter struct {
	response string
	err      error
	delay    time.Duration

	gotOpts engine.ChatOptions
}

func (m *mockChatter) Chat(ctx context.Context, _ string, _ []engine.Message, opts engine.ChatOptions) (string, error) {
	m.gotOpts = opts
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return m.response, m.err
}

func intPtr(i int) *int { return &i }

func TestClassify_ScheduleWithEntities(t *testing.T) {
	mock := &mockChatter{
		response: `{"category":"schedule","confidence":0.92,"entities":[
			{"type":"service_type","value":"trash pickup","start_pos":8,"end_pos":20},
			{"type":"location","value":"Oak Street"}]}`,
	}
	c := NewClassifier(mock, "llama3.2", time.Second)

	got := c.Classify(context.Background(), "When is trash pickup on Oak Street?")

	want := domain.IntentClassification{
		Category:   domain.CategorySchedule,
		Confidence: 0.92,
		Entities: []domain.Entity{
			{Type: domain.EntityServiceType, Value: "trash pickup", StartPos: intPtr(8), EndPos: intPtr(20)},
			{Type: domain.EntityLocation, Value: "Oak Street"},
		},
	}
	if got.Defaulted {
		t.Fatalf("unexpected default: %s", got.Reason)
	}
	if !reflect.DeepEqual(got.Classification, want) {
		t.Errorf("Classification = %+v, want %+v", got.Classification, want)
	}
	if got.Reasoning != "Classified as schedule with confidence 0.92. Extracted 2 entities: service_type 'trash pickup', location 'Oak Street'." {
		t.Errorf("Reasoning = %q", got.Reasoning)
	}
	if !reflect.DeepEqual(got.ToolsUsed, []string{domain.ToolChat}) {
		t.Errorf("ToolsUsed = %v", got.ToolsUsed)
	}
	if mock.gotOpts.Schema == nil || mock.gotOpts.Temperature == nil || *mock.gotOpts.Temperature != 0 {
		t.Errorf("chat options = %+v, want schema and temperature 0", mock.gotOpts)
	}
}

func TestClassify_MarkdownFence(t *testing.T) {
	mock := &mockChatter{response: "Here you go:\n```json\n{\"category\":\"Permit\",\"confidence\":0.8,\"entities\":[]}\n```"}
	got := NewClassifier(mock, "llama3.2", time.Second).Classify(context.Background(), "How do I get a permit?")

	if got.Defaulted {
		t.Fatalf("unexpected default: %s", got.Reason)
	}
	if got.Classification.Category != domain.CategoryPermit {
		t.Errorf("Category = %s, want permit", got.Classification.Category)
	}
}

func TestClassify_LowConfidenceNoted(t *testing.T) {
	mock := &mockChatter{response: `{"category":"general","confidence":0.3,"entities":[]}`}
	got := NewClassifier(mock, "llama3.2", time.Second).Classify(context.Background(), "hello there")

	if !got.Classification.IsLowConfidence() {
		t.Error("expected low confidence classification")
	}
	if !strings.Contains(got.Reasoning, "(low confidence)") {
		t.Errorf("Reasoning = %q", got.Reasoning)
	}
}

func TestClassify_DefaultsOnFailure(t *testing.T) {
	tests := []struct {
		name string
		mock *mockChatter
	}{
		{"chat error", &mockChatter{err: errors.New("connection refused")}},
		{"not json", &mockChatter{response: "I think this is about trash."}},
		{"truncated json", &mockChatter{response: `{"category":"schedule","confidence":`}},
		{"missing category", &mockChatter{response: `{"confidence":0.9,"entities":[]}`}},
		{"missing confidence", &mockChatter{response: `{"category":"event","entities":[]}`}},
		{"missing entities", &mockChatter{response: `{"category":"permit","confidence":0.9}`}},
		{"null entities", &mockChatter{response: `{"category":"permit","confidence":0.9,"entities":null}`}},
		{"unknown category", &mockChatter{response: `{"category":"parking","confidence":0.9,"entities":[]}`}},
		{"wrong type", &mockChatter{response: `{"category":"event","confidence":"high","entities":[]}`}},
		{"timeout", &mockChatter{delay: time.Second, response: `{"category":"event","confidence":0.9,"entities":[]}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier(tt.mock, "llama3.2", 50*time.Millisecond)
			got := c.Classify(context.Background(), "When is the farmers market?")

			if !got.Defaulted {
				t.Fatalf("Defaulted = false, classification %+v", got.Classification)
			}
			if !reflect.DeepEqual(got.Classification, domain.DefaultClassification()) {
				t.Errorf("Classification = %+v, want default", got.Classification)
			}
			if got.Reason == "" {
				t.Error("Reason is empty")
			}
			if !strings.Contains(got.Reasoning, "defaulted to general with confidence 0.00") {
				t.Errorf("Reasoning = %q", got.Reasoning)
			}
		})
	}
}

func TestParseClassification_SanitizesEntities(t *testing.T) {
	resp := `{"category":"REPORT","confidence":1.7,"entities":[
		{"type":"location","value":" Main St ","start_pos":5,"end_pos":99},
		{"type":"person","value":"Bob"},
		{"type":"date","value":""},
		{"type":"Department","value":"Public Works","start_pos":3,"end_pos":1}]}`

	got, err := parseClassification(resp, "Pothole on Main St")
	if err != nil {
		t.Fatalf("parseClassification: %v", err)
	}
	if got.Category != domain.CategoryReport || got.Confidence != 1 {
		t.Errorf("category/confidence = %s/%g, want report/1", got.Category, got.Confidence)
	}
	want := []domain.Entity{
		{Type: domain.EntityLocation, Value: "Main St"},
		{Type: domain.EntityDepartment, Value: "Public Works"},
	}
	if !reflect.DeepEqual(got.Entities, want) {
		t.Errorf("Entities = %+v, want %+v", got.Entities, want)
	}
}

func TestParseClassification_EntitiesRequired(t *testing.T) {
	for _, resp := range []string{
		`{"category":"event","confidence":0.75}`,
		`{"category":"event","confidence":0.75,"entities":null}`,
	} {
		if _, err := parseClassification(resp, "concerts"); !errors.Is(err, errMissingField) {
			t.Errorf("parseClassification(%s) error = %v, want errMissingField", resp, err)
		}
	}

	got, err := parseClassification(`{"category":"event","confidence":0.75,"entities":[]}`, "concerts")
	if err != nil {
		t.Fatalf("parseClassification: %v", err)
	}
	if got.Entities == nil || len(got.Entities) != 0 {
		t.Errorf("Entities = %#v, want empty non-nil slice", got.Entities)
	}
}
