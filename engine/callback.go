package engine

import (
	"context"

	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/tools"
)

// TaskInfo describes a running task to callbacks.
type TaskInfo struct {
	ID        string
	Input     string
	Model     string
	Tools     []string
	MaxRounds int
}

// Callback receives loop events.
// Tool events may be delivered concurrently within a round.
type Callback interface {
	tools.Callback

	OnTaskStart(ctx context.Context, task *TaskInfo)
	OnTaskEnd(ctx context.Context, task *TaskInfo, result *Result)
	OnTaskError(ctx context.Context, task *TaskInfo, err error)
	OnRoundStart(ctx context.Context, task *TaskInfo, round int)
	OnLLMCallStart(ctx context.Context, task *TaskInfo, llm llms.Model, payload []llms.Message)
	OnLLMCallEnd(ctx context.Context, task *TaskInfo, llm llms.Model, resp *llms.ContentResponse)
	OnToolNotFound(ctx context.Context, task *TaskInfo, tool string)
}

type taskKey struct{}

// WithTask returns a context carrying the task.
func WithTask(ctx context.Context, task *TaskInfo) context.Context {
	return context.WithValue(ctx, taskKey{}, task)
}

// TaskFromContext returns the task of the context, or nil.
func TaskFromContext(ctx context.Context) *TaskInfo {
	v, _ := ctx.Value(taskKey{}).(*TaskInfo)
	return v
}
