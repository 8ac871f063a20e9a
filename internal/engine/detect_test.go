package engine

import "testing"

func TestDetect_ReturnsOllama(t *testing.T) {
	e, err := Detect(DetectConfig{BaseURL: "http://localhost:11434"})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if _, ok := e.(*OllamaEngine); !ok {
		t.Errorf("Detect returned %T, want *OllamaEngine", e)
	}
}

func TestDetect_OpenAI(t *testing.T) {
	e, err := Detect(DetectConfig{Provider: "openai", APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if _, ok := e.(*OpenAIEngine); !ok {
		t.Errorf("Detect returned %T, want *OpenAIEngine", e)
	}
}

func TestDetect_Errors(t *testing.T) {
	if _, err := Detect(DetectConfig{Provider: "openai"}); err == nil {
		t.Error("expected error for openai without API key")
	}
	if _, err := Detect(DetectConfig{Provider: "bedrock"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}
