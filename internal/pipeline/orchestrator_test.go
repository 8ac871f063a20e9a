package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/civicnav/civicnav/internal/domain"
	"github.com/civicnav/civicnav/internal/intent"
	"github.com/civicnav/civicnav/internal/retrieval"
	"github.com/civicnav/civicnav/internal/synthesis"
)

type classifierFunc func(ctx context.Context, query string) intent.Result

func (f classifierFunc) Classify(ctx context.Context, query string) intent.Result { return f(ctx, query) }

type retrieverFunc func(ctx context.Context, query string, ic domain.IntentClassification) (retrieval.Result, error)

func (f retrieverFunc) Retrieve(ctx context.Context, query string, ic domain.IntentClassification) (retrieval.Result, error) {
	return f(ctx, query, ic)
}

type synthesizerFunc func(ctx context.Context, query string, results []domain.SearchResult, ic domain.IntentClassification) synthesis.Result

func (f synthesizerFunc) Synthesize(ctx context.Context, query string, results []domain.SearchResult, ic domain.IntentClassification) synthesis.Result {
	return f(ctx, query, results, ic)
}

var scheduleIntent = domain.IntentClassification{Category: domain.CategorySchedule, Confidence: 0.9, Entities: []domain.Entity{}}

func okClassifier() Classifier {
	return classifierFunc(func(_ context.Context, _ string) intent.Result {
		return intent.Result{Classification: scheduleIntent, Reasoning: "classified", ToolsUsed: []string{domain.ToolChat}}
	})
}

func okRetriever(results ...domain.SearchResult) Retriever {
	return retrieverFunc(func(_ context.Context, _ string, _ domain.IntentClassification) (retrieval.Result, error) {
		return retrieval.Result{Results: results, Reasoning: "retrieved", ToolsUsed: []string{domain.ToolSearchHybrid}}, nil
	})
}

// echoSynthesizer cites every result it receives.
func echoSynthesizer() Synthesizer {
	return synthesizerFunc(func(_ context.Context, _ string, results []domain.SearchResult, _ domain.IntentClassification) synthesis.Result {
		cs := make([]domain.Citation, len(results))
		for i, r := range results {
			cs[i] = domain.Citation{EntryID: r.EntryID, Title: r.Title}
		}
		return synthesis.Result{Answer: "answer", Citations: cs, Reasoning: "synthesized", ToolsUsed: []string{domain.ToolChat}}
	})
}

func query(text string) domain.Query {
	return domain.Query{Text: text}
}

func TestRun_HappyPath(t *testing.T) {
	o := New(okClassifier(), okRetriever(domain.SearchResult{EntryID: "trash-001", Title: "Trash"}), echoSynthesizer())

	resp, err := o.Run(context.Background(), query("When is trash pickup?"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Answer != "answer" || len(resp.Citations) != 1 || resp.Citations[0].EntryID != "trash-001" {
		t.Errorf("response = %+v", resp)
	}
	if resp.Intent.Category != domain.CategorySchedule {
		t.Errorf("Intent = %+v", resp.Intent)
	}
	if resp.Reasoning != "classified | retrieved | synthesized" {
		t.Errorf("Reasoning = %q", resp.Reasoning)
	}
	if resp.ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("response ID not set")
	}

	var sum float64
	for _, s := range resp.Stages {
		if s.LatencyMs < 0 {
			t.Errorf("stage %s latency %g < 0", s.Name, s.LatencyMs)
		}
		if !s.OK {
			t.Errorf("stage %s not ok", s.Name)
		}
		sum += s.LatencyMs
	}
	if resp.TotalLatencyMs != sum {
		t.Errorf("TotalLatencyMs = %g, want sum of stages %g", resp.TotalLatencyMs, sum)
	}
	if got := resp.Stages[1].ToolsUsed; len(got) != 1 || got[0] != domain.ToolSearchHybrid {
		t.Errorf("retrieval tools = %v", got)
	}
}

func TestRun_RetrievalErrorContinuesWithNoResults(t *testing.T) {
	failing := retrieverFunc(func(_ context.Context, _ string, _ domain.IntentClassification) (retrieval.Result, error) {
		return retrieval.Result{ToolsUsed: []string{domain.ToolSearchKeyword}}, domain.ErrSearchUnavailable
	})
	var got []domain.SearchResult
	synth := synthesizerFunc(func(_ context.Context, _ string, results []domain.SearchResult, _ domain.IntentClassification) synthesis.Result {
		got = results
		return synthesis.Result{Answer: synthesis.NoResultsResponse, Citations: []domain.Citation{}, Reasoning: "fallback"}
	})

	resp, err := New(okClassifier(), failing, synth).Run(context.Background(), query("pothole on Main"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("synthesizer received %#v, want empty non-nil list", got)
	}
	if resp.Answer != synthesis.NoResultsResponse {
		t.Errorf("Answer = %q", resp.Answer)
	}
	if !strings.Contains(resp.Reasoning, "| Error in HybridRetriever: search service unavailable") {
		t.Errorf("Reasoning = %q", resp.Reasoning)
	}
	if resp.Stages[1].OK {
		t.Error("retrieval stage reported ok")
	}
	if tools := resp.Stages[1].ToolsUsed; len(tools) != 1 || tools[0] != domain.ToolSearchKeyword {
		t.Errorf("failed stage tools = %v", tools)
	}
}

func TestRun_RetrievalPanicIsIsolated(t *testing.T) {
	panicky := retrieverFunc(func(_ context.Context, _ string, _ domain.IntentClassification) (retrieval.Result, error) {
		panic("index corrupted")
	})

	resp, err := New(okClassifier(), panicky, echoSynthesizer()).Run(context.Background(), query("library hours"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(resp.Reasoning, "Error in HybridRetriever: panic: index corrupted") {
		t.Errorf("Reasoning = %q", resp.Reasoning)
	}
	if len(resp.Citations) != 0 {
		t.Errorf("Citations = %+v, want none", resp.Citations)
	}
}

func TestRun_ClassificationPanicAborts(t *testing.T) {
	panicky := classifierFunc(func(_ context.Context, _ string) intent.Result { panic("boom") })
	retrieverCalled := false
	r := retrieverFunc(func(_ context.Context, _ string, _ domain.IntentClassification) (retrieval.Result, error) {
		retrieverCalled = true
		return retrieval.Result{}, nil
	})

	_, err := New(panicky, r, echoSynthesizer()).Run(context.Background(), query("anything at all"))
	if !errors.Is(err, ErrClassificationFailed) {
		t.Fatalf("error = %v, want ErrClassificationFailed", err)
	}
	if retrieverCalled {
		t.Error("retrieval ran after classification failed")
	}
}

func TestRun_DefaultedClassificationContinues(t *testing.T) {
	defaulted := classifierFunc(func(_ context.Context, _ string) intent.Result {
		return intent.Result{Classification: domain.DefaultClassification(), Defaulted: true, Reasoning: "defaulted"}
	})
	var seen domain.IntentClassification
	r := retrieverFunc(func(_ context.Context, _ string, ic domain.IntentClassification) (retrieval.Result, error) {
		seen = ic
		return retrieval.Result{Results: []domain.SearchResult{}}, nil
	})

	resp, err := New(defaulted, r, echoSynthesizer()).Run(context.Background(), query("anything at all"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if seen.Category != domain.CategoryGeneral || seen.Confidence != 0 {
		t.Errorf("retriever saw %+v, want default classification", seen)
	}
	if resp.Intent.Category != domain.CategoryGeneral {
		t.Errorf("Intent = %+v", resp.Intent)
	}
}

func TestRun_SynthesisPanicAborts(t *testing.T) {
	panicky := synthesizerFunc(func(_ context.Context, _ string, _ []domain.SearchResult, _ domain.IntentClassification) synthesis.Result {
		panic("nil map")
	})

	_, err := New(okClassifier(), okRetriever(), panicky).Run(context.Background(), query("anything at all"))
	if !errors.Is(err, ErrSynthesisFailed) {
		t.Fatalf("error = %v, want ErrSynthesisFailed", err)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(okClassifier(), okRetriever(), echoSynthesizer()).Run(ctx, query("anything at all"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestRun_ConcurrentRequestsDoNotShareTools(t *testing.T) {
	o := New(okClassifier(), okRetriever(domain.SearchResult{EntryID: "a"}), echoSynthesizer())

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := o.Run(context.Background(), query("concurrent query"))
			if err != nil {
				errs <- err
				return
			}
			for _, s := range resp.Stages {
				if len(s.ToolsUsed) != 1 {
					errs <- errors.New(s.Name + " accumulated tools from another request")
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestRunStage_RecordsLatencyOnFailure(t *testing.T) {
	res := runStage(context.Background(), "Probe", func(context.Context) (stageOutput[int], error) {
		return stageOutput[int]{tools: []string{"x"}}, errors.New("nope")
	})
	if res.Output != nil {
		t.Error("Output set on failure")
	}
	if res.Reasoning != "Error in Probe: nope" {
		t.Errorf("Reasoning = %q", res.Reasoning)
	}
	if res.LatencyMs < 0 {
		t.Errorf("LatencyMs = %g", res.LatencyMs)
	}
}
