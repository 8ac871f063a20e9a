package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/civicnav/civicnav/internal/domain"
	"github.com/civicnav/civicnav/internal/engine"
)

// mockEngine implements engine.Engine for testing.
type mockEngine struct {
	embedFn func(ctx context.Context, model string, text string) ([]float32, error)
}

func (m *mockEngine) Chat(_ context.Context, _ string, _ []engine.Message, _ engine.ChatOptions) (string, error) {
	return "", fmt.Errorf("not implemented")
}
func (m *mockEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	return m.embedFn(ctx, model, text)
}
func (m *mockEngine) IsRunning(_ context.Context) bool               { return false }
func (m *mockEngine) ListModels(_ context.Context) ([]string, error) { return nil, nil }
func (m *mockEngine) HasModel(_ context.Context, _ string) bool      { return false }
func (m *mockEngine) PullModel(_ context.Context, _ string, _ func(engine.PullProgress)) error {
	return fmt.Errorf("not implemented")
}

func makeVector(dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(i) * 0.001
	}
	return v
}

func TestEmbed_ReturnsDimension(t *testing.T) {
	mock := &mockEngine{
		embedFn: func(_ context.Context, model string, _ string) ([]float32, error) {
			if model != "nomic-embed-text" {
				t.Errorf("model = %q, want nomic-embed-text", model)
			}
			return makeVector(768), nil
		},
	}
	e := NewEmbedder(mock, "nomic-embed-text")

	vec, err := e.Embed(context.Background(), "when is trash pickup")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 768 {
		t.Errorf("got %d dimensions, want 768", len(vec))
	}
}

func TestEmbed_EngineError(t *testing.T) {
	mock := &mockEngine{
		embedFn: func(_ context.Context, _ string, _ string) ([]float32, error) {
			return nil, errors.New("connection refused")
		},
	}
	e := NewEmbedder(mock, "nomic-embed-text")

	_, err := e.Embed(context.Background(), "hello")
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("error = %v, want ErrEmbeddingUnavailable", err)
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("error %q lost the cause", err)
	}
}

func TestEmbed_EmptyVector(t *testing.T) {
	mock := &mockEngine{
		embedFn: func(_ context.Context, _ string, _ string) ([]float32, error) {
			return []float32{}, nil
		},
	}
	e := NewEmbedder(mock, "nomic-embed-text")

	if _, err := e.Embed(context.Background(), "hello"); !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Errorf("error = %v, want ErrEmbeddingUnavailable", err)
	}
}

func TestEmbedBatch_PreservesOrder(t *testing.T) {
	mock := &mockEngine{
		embedFn: func(_ context.Context, _ string, text string) ([]float32, error) {
			return []float32{float32(len(text))}, nil
		},
	}
	e := NewEmbedder(mock, "nomic-embed-text")

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee", "ffffff"}
	vecs, err := e.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(vecs), len(texts))
	}
	for i, v := range vecs {
		if int(v[0]) != len(texts[i]) {
			t.Errorf("vecs[%d] = %v, want vector for %q", i, v, texts[i])
		}
	}
}

func TestEmbedBatch_BoundedConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	release := make(chan struct{})
	mock := &mockEngine{
		embedFn: func(_ context.Context, _ string, _ string) ([]float32, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-release
			inFlight.Add(-1)
			return makeVector(4), nil
		},
	}
	e := NewEmbedder(mock, "nomic-embed-text")

	done := make(chan error, 1)
	go func() {
		_, err := e.EmbedBatch(context.Background(), make([]string, 10))
		done <- err
	}()
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if peak.Load() > batchConcurrency {
		t.Errorf("peak concurrency = %d, want <= %d", peak.Load(), batchConcurrency)
	}
}

func TestEmbedBatch_EngineError(t *testing.T) {
	mock := &mockEngine{
		embedFn: func(_ context.Context, _ string, text string) ([]float32, error) {
			if text == "b" {
				return nil, errors.New("embedding failed")
			}
			return makeVector(384), nil
		},
	}
	e := NewEmbedder(mock, "nomic-embed-text")

	_, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "embedding failed") {
		t.Errorf("unexpected error message: %v", err)
	}
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Errorf("error = %v, want ErrEmbeddingUnavailable", err)
	}
}

func TestEmbedBatch_EmptyInput(t *testing.T) {
	mock := &mockEngine{
		embedFn: func(_ context.Context, _ string, _ string) ([]float32, error) {
			t.Fatal("should not be called for empty input")
			return nil, nil
		},
	}
	e := NewEmbedder(mock, "nomic-embed-text")

	vecs, err := e.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if vecs != nil {
		t.Errorf("got %v, want nil", vecs)
	}
}

// multiEngine adds single-request batch embedding to mockEngine.
type multiEngine struct {
	mockEngine
	calls atomic.Int32
	size  atomic.Int32
}

func (m *multiEngine) EmbedMany(_ context.Context, _ string, texts []string) ([][]float32, error) {
	m.calls.Add(1)
	n := int32(len(texts))
	for {
		cur := m.size.Load()
		if n <= cur || m.size.CompareAndSwap(cur, n) {
			break
		}
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func TestEmbedBatch_UsesMultiEmbedder(t *testing.T) {
	m := &multiEngine{mockEngine: mockEngine{
		embedFn: func(_ context.Context, _ string, _ string) ([]float32, error) {
			t.Fatal("single Embed called on a multi-embedding engine")
			return nil, nil
		},
	}}
	e := NewEmbedder(m, "nomic-embed-text")

	texts := make([]string, multiEmbedChunk*2+3)
	for i := range texts {
		texts[i] = strings.Repeat("x", i+1)
	}
	vecs, err := e.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if got := m.calls.Load(); got != 3 {
		t.Errorf("EmbedMany calls = %d, want 3", got)
	}
	if got := m.size.Load(); got != multiEmbedChunk {
		t.Errorf("largest chunk = %d, want %d", got, multiEmbedChunk)
	}
	for i, v := range vecs {
		if int(v[0]) != i+1 {
			t.Errorf("vecs[%d] = %v, out of order", i, v)
		}
	}
}
