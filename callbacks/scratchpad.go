package callbacks

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/effective-security/mcpbridge/engine"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/llmutils"
	"github.com/effective-security/mcpbridge/tools"
)

// ensure Scratchpad implements engine.Callback
var _ engine.Callback = (*Scratchpad)(nil)

var TimeNowFn = time.Now

type RunStats struct {
	TaskID string
	Model  string
	Status string

	Duration            time.Duration
	Rounds              uint32
	TotalMessages       uint32
	LLMCalls            uint32
	LLMBytesOut         uint64
	LLMBytesIn          uint64
	LLMInputTokens      uint64
	LLMOutputTokens     uint64
	LLMTotalTokens      uint64
	ToolsCalls          uint32
	ToolsCallsSucceeded uint32
	ToolsCallsFailed    uint32
	ToolNotFound        uint32
}

// FinishedFunc receives the stats and the journal of a finished task.
type FinishedFunc func(ctx context.Context, stats *RunStats, journal []byte)

// Scratchpad keeps a journal and stats per running task.
// Tool events are attributed to the task found in the context.
type Scratchpad struct {
	runs       map[string]*run
	mode       Mode
	onFinished FinishedFunc
	lock       sync.Mutex
}

func NewScratchpad(mode Mode, onFinished FinishedFunc) *Scratchpad {
	return &Scratchpad{
		runs:       make(map[string]*run),
		mode:       mode,
		onFinished: onFinished,
	}
}

// Running returns the number of tasks in progress.
func (l *Scratchpad) Running() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return len(l.runs)
}

func (l *Scratchpad) OnTaskStart(ctx context.Context, task *engine.TaskInfo) {
	r := &run{
		taskID: task.ID,
		stats: RunStats{
			TaskID: task.ID,
			Model:  task.Model,
		},
		started: time.Now(),
	}

	l.lock.Lock()
	l.runs[task.ID] = r
	l.lock.Unlock()

	r.print("*** Task Started ***")
	r.print("Input:", task.Input)
	r.print("Tools:", strings.Join(task.Tools, ", "))
}

func (l *Scratchpad) OnTaskEnd(ctx context.Context, task *engine.TaskInfo, result *engine.Result) {
	r := l.getRun(task)
	if r == nil {
		return
	}
	r.stats.Status = string(result.Status)
	if l.mode == ModeVerbose {
		r.print("Output:", result.Output())
		r.print(l.printMessages(result.Conversation))
	}
	l.endRun(ctx, r)
}

func (l *Scratchpad) OnTaskError(ctx context.Context, task *engine.TaskInfo, err error) {
	r := l.getRun(task)
	if r == nil {
		return
	}
	r.stats.Status = "error"
	r.print("*** Error ***", err.Error())
	l.endRun(ctx, r)
}

func (l *Scratchpad) endRun(ctx context.Context, r *run) {
	l.lock.Lock()
	delete(l.runs, r.taskID)
	l.lock.Unlock()

	stats := r.stats
	stats.Duration = time.Since(r.started)

	r.print(fmt.Sprintf("Rounds: %d, Status: %s", stats.Rounds, stats.Status))
	r.print(fmt.Sprintf("Tool calls: %d, Failed: %d, Not Found: %d",
		stats.ToolsCalls,
		stats.ToolsCallsFailed,
		stats.ToolNotFound,
	))
	r.print(fmt.Sprintf("LLM calls: %d, Messages: %d, Bytes Out: %d, Bytes In: %d, Bytes Total: %d, Input Tokens: %d, Output Tokens: %d, Total Tokens: %d",
		stats.LLMCalls,
		stats.TotalMessages,
		stats.LLMBytesOut,
		stats.LLMBytesIn,
		stats.LLMBytesOut+stats.LLMBytesIn,
		stats.LLMInputTokens,
		stats.LLMOutputTokens,
		stats.LLMTotalTokens,
	))
	r.print(fmt.Sprintf("*** Task Ended. Duration: %s ***", stats.Duration))

	if l.onFinished != nil {
		l.onFinished(ctx, &stats, r.bytes())
	}
}

func (l *Scratchpad) getRun(task *engine.TaskInfo) *run {
	if task == nil {
		return nil
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.runs[task.ID]
}

func (l *Scratchpad) printMessages(messages []llms.Message) string {
	var buf strings.Builder
	buf.WriteString("Messages:\n")
	for idx, msg := range messages {
		fmt.Fprintf(&buf, "[%d] %s:\n", idx, msg.Role)
		textParts := 0
		toolParts := 0
		toolResponseParts := 0
		for _, part := range msg.Parts {
			switch typ := part.(type) {
			case llms.TextContent:
				textParts++
			case llms.ToolCall:
				toolParts++
				buf.WriteString("  - ")
				buf.WriteString(typ.String())
				buf.WriteString("\n")
			case llms.ToolCallResponse:
				toolResponseParts++
				buf.WriteString("  - ")
				buf.WriteString(typ.String())
				buf.WriteString("\n")
			}
		}

		fmt.Fprintf(&buf, "  - %d texts, %d tool calls, %d tool responses\n", textParts, toolParts, toolResponseParts)
	}
	return buf.String()
}

func (l *Scratchpad) OnRoundStart(ctx context.Context, task *engine.TaskInfo, round int) {
	r := l.getRun(task)
	if r == nil {
		return
	}
	atomic.StoreUint32(&r.stats.Rounds, uint32(round))
	r.print(fmt.Sprintf("*** Round %d/%d ***", round, task.MaxRounds))
}

func (l *Scratchpad) OnLLMCallStart(ctx context.Context, task *engine.TaskInfo, llm llms.Model, payload []llms.Message) {
	r := l.getRun(task)
	if r == nil {
		return
	}

	atomic.AddUint64(&r.stats.LLMBytesOut, llmutils.CountMessagesContentSize(payload))
	atomic.AddUint32(&r.stats.LLMCalls, 1)
	count := uint32(len(payload))
	atomic.AddUint32(&r.stats.TotalMessages, count)

	r.print("*** LLM Call ***", fmt.Sprintf("%s model, %d messages", task.Model, count))
	if l.mode == ModeVerbose {
		r.print(l.printMessages(payload))
	}
}

func (l *Scratchpad) OnLLMCallEnd(ctx context.Context, task *engine.TaskInfo, llm llms.Model, resp *llms.ContentResponse) {
	r := l.getRun(task)
	if r == nil {
		return
	}

	atomic.AddUint64(&r.stats.LLMBytesIn, llmutils.CountResponseContentSize(resp))
	tokensIn, tokensOut, tokensTotal := llmutils.CountTokens(resp)
	atomic.AddUint64(&r.stats.LLMInputTokens, uint64(tokensIn))
	atomic.AddUint64(&r.stats.LLMOutputTokens, uint64(tokensOut))
	atomic.AddUint64(&r.stats.LLMTotalTokens, uint64(tokensTotal))

	r.print("*** LLM Call End ***", fmt.Sprintf("%s model, %d input tokens, %d output tokens, %d total tokens", task.Model, tokensIn, tokensOut, tokensTotal))
}

func (l *Scratchpad) OnToolStart(ctx context.Context, tool tools.ITool, input string) {
	r := l.getRun(engine.TaskFromContext(ctx))
	if r == nil {
		return
	}
	atomic.AddUint32(&r.stats.ToolsCalls, 1)
	r.print(tool.Name(), "*** Tool Start ***")
	r.print(tool.Name(), "Input:", input)
}

func (l *Scratchpad) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {
	r := l.getRun(engine.TaskFromContext(ctx))
	if r == nil {
		return
	}
	atomic.AddUint32(&r.stats.ToolsCallsSucceeded, 1)
	if l.mode == ModeVerbose {
		r.print(tool.Name(), "Output:", output)
	}
	r.print(tool.Name(), "*** Tool End ***")
}

func (l *Scratchpad) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {
	r := l.getRun(engine.TaskFromContext(ctx))
	if r == nil {
		return
	}
	atomic.AddUint32(&r.stats.ToolsCallsFailed, 1)
	r.print(tool.Name(), "*** Tool Error ***", err.Error())
}

func (l *Scratchpad) OnToolNotFound(ctx context.Context, task *engine.TaskInfo, tool string) {
	r := l.getRun(task)
	if r == nil {
		return
	}
	atomic.AddUint32(&r.stats.ToolNotFound, 1)
	r.print("*** Tool Not Found ***", tool)
}

type run struct {
	taskID  string
	w       bytes.Buffer
	started time.Time
	lock    sync.Mutex
	stats   RunStats
}

// print writes the entries to the run's output.
// The entries are written in the following format:
// [timestamp taskID] entry entry\n
func (r *run) print(entries ...string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	now := TimeNowFn()
	ts := now.Format("2006-01-02 15:04:05")

	_, _ = r.w.WriteString(ts)
	_, _ = r.w.WriteString(" ")
	_, _ = r.w.WriteString(r.taskID)
	_, _ = r.w.WriteString(" ")

	for i, entry := range entries {
		if i > 0 {
			_, _ = r.w.WriteString(" ")
		}
		_, _ = r.w.WriteString(entry)
	}
	_, _ = r.w.WriteString("\n")
}

func (r *run) bytes() []byte {
	r.lock.Lock()
	defer r.lock.Unlock()
	return bytes.Clone(r.w.Bytes())
}
