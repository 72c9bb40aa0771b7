package callbacks

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/effective-security/mcpbridge/engine"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/llmutils"
	"github.com/effective-security/mcpbridge/tools"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
)

// ensure that the callbacks implement the correct interfaces
var (
	_ engine.Callback = (*Noop)(nil)
	_ tools.Callback  = (*Noop)(nil)
	_ engine.Callback = (*Printer)(nil)
	_ tools.Callback  = (*Printer)(nil)
	_ engine.Callback = (*PackageLogger)(nil)
	_ tools.Callback  = (*PackageLogger)(nil)
	_ engine.Callback = (*Fanout)(nil)
	_ tools.Callback  = (*Fanout)(nil)
)

// Mode defines the mode for callback printing
type Mode int

const (
	// ModeDefault is the default mode for callback printing
	ModeDefault Mode = iota
	// ModeVerbose is the verbose mode for callback printing
	ModeVerbose
)

// Fanout is a callback handler that forwards the events to multiple callbacks.
type Fanout struct {
	callbacks []engine.Callback
}

func NewFanout(callbacks ...engine.Callback) *Fanout {
	return &Fanout{callbacks: callbacks}
}

func (l *Fanout) Add(callback engine.Callback) {
	l.callbacks = append(l.callbacks, callback)
}

func (l *Fanout) OnTaskStart(ctx context.Context, task *engine.TaskInfo) {
	for _, callback := range l.callbacks {
		callback.OnTaskStart(ctx, task)
	}
}

func (l *Fanout) OnTaskEnd(ctx context.Context, task *engine.TaskInfo, result *engine.Result) {
	for _, callback := range l.callbacks {
		callback.OnTaskEnd(ctx, task, result)
	}
}

func (l *Fanout) OnTaskError(ctx context.Context, task *engine.TaskInfo, err error) {
	for _, callback := range l.callbacks {
		callback.OnTaskError(ctx, task, err)
	}
}

func (l *Fanout) OnRoundStart(ctx context.Context, task *engine.TaskInfo, round int) {
	for _, callback := range l.callbacks {
		callback.OnRoundStart(ctx, task, round)
	}
}

func (l *Fanout) OnLLMCallStart(ctx context.Context, task *engine.TaskInfo, llm llms.Model, payload []llms.Message) {
	for _, callback := range l.callbacks {
		callback.OnLLMCallStart(ctx, task, llm, payload)
	}
}

func (l *Fanout) OnLLMCallEnd(ctx context.Context, task *engine.TaskInfo, llm llms.Model, resp *llms.ContentResponse) {
	for _, callback := range l.callbacks {
		callback.OnLLMCallEnd(ctx, task, llm, resp)
	}
}

func (l *Fanout) OnToolNotFound(ctx context.Context, task *engine.TaskInfo, tool string) {
	for _, callback := range l.callbacks {
		callback.OnToolNotFound(ctx, task, tool)
	}
}

func (l *Fanout) OnToolStart(ctx context.Context, tool tools.ITool, input string) {
	for _, callback := range l.callbacks {
		callback.OnToolStart(ctx, tool, input)
	}
}

func (l *Fanout) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {
	for _, callback := range l.callbacks {
		callback.OnToolEnd(ctx, tool, input, output)
	}
}

func (l *Fanout) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {
	for _, callback := range l.callbacks {
		callback.OnToolError(ctx, tool, input, err)
	}
}

// Noop does nothing.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (l *Noop) OnTaskStart(ctx context.Context, task *engine.TaskInfo)                       {}
func (l *Noop) OnTaskEnd(ctx context.Context, task *engine.TaskInfo, result *engine.Result)  {}
func (l *Noop) OnTaskError(ctx context.Context, task *engine.TaskInfo, err error)            {}
func (l *Noop) OnRoundStart(ctx context.Context, task *engine.TaskInfo, round int)           {}
func (l *Noop) OnToolNotFound(ctx context.Context, task *engine.TaskInfo, tool string)       {}
func (l *Noop) OnToolStart(ctx context.Context, tool tools.ITool, input string)              {}
func (l *Noop) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {}
func (l *Noop) OnToolError(ctx context.Context, tool tools.ITool, input string, err error)   {}
func (l *Noop) OnLLMCallStart(ctx context.Context, task *engine.TaskInfo, llm llms.Model, payload []llms.Message) {
}
func (l *Noop) OnLLMCallEnd(ctx context.Context, task *engine.TaskInfo, llm llms.Model, resp *llms.ContentResponse) {
}

// Printer is a callback handler that prints to the Writer.
type Printer struct {
	Out  io.Writer
	Mode Mode

	lock sync.Mutex
}

func NewPrinter(out io.Writer, mode Mode) *Printer {
	return &Printer{Out: out, Mode: mode}
}

func (l *Printer) OnTaskStart(ctx context.Context, task *engine.TaskInfo) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Task Start: %s (%s model, %d tools, %d max rounds)\n", task.ID, task.Model, len(task.Tools), task.MaxRounds)
	fmt.Fprintf(l.Out, "Input: %s\n", task.Input)
}

func (l *Printer) OnTaskEnd(ctx context.Context, task *engine.TaskInfo, result *engine.Result) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Task End: %s: %s after %d rounds, %d tool calls\n", task.ID, result.Status, result.Rounds, result.ToolCalls)
	if l.Mode == ModeVerbose {
		fmt.Fprintln(l.Out, result.Output())
	}
}

func (l *Printer) OnTaskError(ctx context.Context, task *engine.TaskInfo, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Task Error: %s: %s\n", task.ID, err.Error())
}

func (l *Printer) OnRoundStart(ctx context.Context, task *engine.TaskInfo, round int) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Round %d/%d\n", round, task.MaxRounds)
}

func (l *Printer) OnLLMCallStart(ctx context.Context, task *engine.TaskInfo, llm llms.Model, payload []llms.Message) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "LLM Call: %s model, %d messages\n", task.Model, len(payload))
	if l.Mode == ModeVerbose {
		llmutils.PrintMessages(l.Out, payload)
	}
}

func (l *Printer) OnLLMCallEnd(ctx context.Context, task *engine.TaskInfo, llm llms.Model, resp *llms.ContentResponse) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "LLM Call End: %s model, %d choices, %d tool calls\n", task.Model, len(resp.Choices), len(resp.ToolCalls()))
}

func (l *Printer) OnToolNotFound(ctx context.Context, task *engine.TaskInfo, tool string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Not Found: %s\n", tool)
}

func (l *Printer) OnToolStart(ctx context.Context, tool tools.ITool, input string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Start: %s\n", tool.Name())
	fmt.Fprintf(l.Out, "Input: %s\n", input)
}

func (l *Printer) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool End: %s\n", tool.Name())
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Output: %s\n", output)
	}
}

func (l *Printer) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Error: %s: %s\n", tool.Name(), err.Error())
}

// PackageLogger is a callback handler that prints to the logger.
type PackageLogger struct {
	logger *xlog.PackageLogger
}

func NewPackageLogger(logger *xlog.PackageLogger) *PackageLogger {
	return &PackageLogger{logger: logger}
}

func (l *PackageLogger) OnTaskStart(ctx context.Context, task *engine.TaskInfo) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "task_start",
		"task_id", task.ID,
		"model", task.Model,
		"tools", len(task.Tools),
		"input", slices.StringUpto(task.Input, 128),
	)
}

func (l *PackageLogger) OnTaskEnd(ctx context.Context, task *engine.TaskInfo, result *engine.Result) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "task_end",
		"task_id", task.ID,
		"state", result.Status,
		"rounds", result.Rounds,
		"tool_calls", result.ToolCalls,
	)
}

func (l *PackageLogger) OnTaskError(ctx context.Context, task *engine.TaskInfo, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "task_error",
		"task_id", task.ID,
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnRoundStart(ctx context.Context, task *engine.TaskInfo, round int) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "round_start",
		"task_id", task.ID,
		"round", round,
	)
}

func (l *PackageLogger) OnLLMCallStart(ctx context.Context, task *engine.TaskInfo, llm llms.Model, payload []llms.Message) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "llm_call_start",
		"task_id", task.ID,
		"model", task.Model,
		"messages", len(payload),
	)
}

func (l *PackageLogger) OnLLMCallEnd(ctx context.Context, task *engine.TaskInfo, llm llms.Model, resp *llms.ContentResponse) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "llm_call_end",
		"task_id", task.ID,
		"model", task.Model,
		"choices", len(resp.Choices),
	)
}

func (l *PackageLogger) OnToolNotFound(ctx context.Context, task *engine.TaskInfo, tool string) {
	l.logger.ContextKV(ctx, xlog.WARNING,
		"event", "tool_not_found",
		"task_id", task.ID,
		"tool", tool,
	)
}

func (l *PackageLogger) OnToolStart(ctx context.Context, tool tools.ITool, input string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_start",
		"tool", tool.Name(),
		"input", input,
	)
}

func (l *PackageLogger) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_end",
		"tool", tool.Name(),
		"output", slices.StringUpto(output, 256),
	)
}

func (l *PackageLogger) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "tool_error",
		"tool", tool.Name(),
		"err", err.Error(),
	)
}
