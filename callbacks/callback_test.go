package callbacks_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/effective-security/mcpbridge/callbacks"
	"github.com/effective-security/mcpbridge/engine"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/xlog"
	"github.com/stretchr/testify/assert"
)

type fakeTool struct{ name string }

func (t *fakeTool) Name() string                                           { return t.name }
func (t *fakeTool) Description() string                                    { return "desc" }
func (t *fakeTool) Parameters() map[string]any                             { return nil }
func (t *fakeTool) Call(ctx context.Context, input string) (string, error) { return "", nil }

func task() *engine.TaskInfo {
	return &engine.TaskInfo{
		ID:        "task1",
		Input:     "test input",
		Model:     "llama3.2",
		Tools:     []string{"test-tool"},
		MaxRounds: 5,
	}
}

func fire(cb engine.Callback) {
	ctx := context.Background()
	ti := task()
	tool := &fakeTool{name: "test-tool"}
	resp := &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: "test output"}},
	}

	cb.OnTaskStart(ctx, ti)
	cb.OnRoundStart(ctx, ti, 1)
	cb.OnLLMCallStart(ctx, ti, nil, []llms.Message{llms.MessageFromTextParts(llms.RoleHuman, "test input")})
	cb.OnLLMCallEnd(ctx, ti, nil, resp)
	cb.OnToolStart(ctx, tool, "test input")
	cb.OnToolEnd(ctx, tool, "test input", "test output")
	cb.OnToolError(ctx, tool, "test input", errors.New("test error"))
	cb.OnToolNotFound(ctx, ti, "missing-tool")
	cb.OnTaskEnd(ctx, ti, &engine.Result{
		TaskID:    ti.ID,
		Status:    engine.StatusDone,
		Answer:    "final answer",
		Rounds:    1,
		MaxRounds: 5,
	})
	cb.OnTaskError(ctx, ti, errors.New("task failed"))
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	fire(callbacks.NewPrinter(&buf, callbacks.ModeVerbose))

	res := buf.String()
	assert.Contains(t, res, "Task Start: task1 (llama3.2 model, 1 tools, 5 max rounds)")
	assert.Contains(t, res, "Input: test input")
	assert.Contains(t, res, "Round 1/5")
	assert.Contains(t, res, "LLM Call: llama3.2 model, 1 messages\nHUMAN: test input\n")
	assert.Contains(t, res, "LLM Call End: llama3.2 model, 1 choices, 0 tool calls")
	assert.Contains(t, res, "Tool Start: test-tool")
	assert.Contains(t, res, "Tool End: test-tool")
	assert.Contains(t, res, "Output: test output")
	assert.Contains(t, res, "Tool Error: test-tool: test error")
	assert.Contains(t, res, "Tool Not Found: missing-tool")
	assert.Contains(t, res, "Task End: task1: DONE after 1 rounds, 0 tool calls")
	assert.Contains(t, res, "final answer")
	assert.Contains(t, res, "Task Error: task1: task failed")
}

func TestPrinter_Default(t *testing.T) {
	var buf bytes.Buffer
	fire(callbacks.NewPrinter(&buf, callbacks.ModeDefault))

	res := buf.String()
	assert.Contains(t, res, "Tool End: test-tool")
	assert.NotContains(t, res, "Output: test output")
	assert.NotContains(t, res, "HUMAN: test input")
	assert.NotContains(t, res, "final answer")
}

func TestFanout(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	fan := callbacks.NewFanout(callbacks.NewPrinter(&buf1, callbacks.ModeDefault))
	fan.Add(callbacks.NewPrinter(&buf2, callbacks.ModeDefault))
	fan.Add(callbacks.NewNoop())
	fan.Add(callbacks.NewPackageLogger(xlog.NewPackageLogger("github.com/effective-security/mcpbridge", "callbacks_test")))

	fire(fan)

	assert.NotEmpty(t, buf1.String())
	assert.Equal(t, buf1.String(), buf2.String())
}
