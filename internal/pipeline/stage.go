package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
)

// StageResult is the outcome of one stage invocation. A nil Output means the
// stage produced nothing usable; Reasoning then describes the failure.
type StageResult[T any] struct {
	Output    *T
	Reasoning string
	ToolsUsed []string
	LatencyMs float64
}

// stageOutput is what a stage body reports on success.
type stageOutput[T any] struct {
	value     T
	reasoning string
	tools     []string
}

// runStage times fn and converts an error or panic into a failed result.
// Each call builds its own result, so nothing is shared between requests.
func runStage[T any](ctx context.Context, name string, fn func(context.Context) (stageOutput[T], error)) (res StageResult[T]) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("pipeline: stage panicked", "stage", name, "panic", r, "stack", string(debug.Stack()))
			res = StageResult[T]{
				Reasoning: fmt.Sprintf("Error in %s: panic: %v", name, r),
				ToolsUsed: []string{},
			}
		}
		res.LatencyMs = elapsedMs(start)
	}()

	out, err := fn(ctx)
	tools := out.tools
	if tools == nil {
		tools = []string{}
	}
	if err != nil {
		slog.Warn("pipeline: stage failed", "stage", name, "error", err)
		return StageResult[T]{
			Reasoning: fmt.Sprintf("Error in %s: %v", name, err),
			ToolsUsed: tools,
		}
	}
	return StageResult[T]{
		Output:    &out.value,
		Reasoning: out.reasoning,
		ToolsUsed: tools,
	}
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}
