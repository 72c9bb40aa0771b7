package engine

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/llmutils"
	"github.com/effective-security/mcpbridge/pkg/metricskey"
	"github.com/effective-security/mcpbridge/tools"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
)

//go:generate mockgen -destination=../mocks/mockllms/llm_mock.gen.go -package mockllms github.com/effective-security/mcpbridge/pkg/llms Model,ModelLister

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge", "engine")

var (
	// ErrNoModel is returned when the engine has no model to call.
	ErrNoModel = errors.New("no model configured")
	// ErrEmptyResponse is returned when the model keeps returning no choices.
	ErrEmptyResponse = errors.New("model returned empty response")
)

// MarkerMaxRounds starts the output of a task stopped by the round ceiling.
const MarkerMaxRounds = "MAX ROUNDS REACHED:"

// Status is the loop state.
type Status string

const (
	// StatusAwaitingModel is the state while the model call is in flight.
	StatusAwaitingModel Status = "AWAITING_MODEL"
	// StatusExecutingTools is the state while the requested tool calls run.
	StatusExecutingTools Status = "EXECUTING_TOOLS"
	// StatusDone is the final state after the model returned an answer.
	StatusDone Status = "DONE"
	// StatusAborted is the final state after the round ceiling was reached.
	StatusAborted Status = "ABORTED"
)

// Result of a task.
type Result struct {
	// TaskID identifies the task in logs and callbacks.
	TaskID string
	// Status is StatusDone or StatusAborted.
	Status Status
	// Answer is the final answer, or the last model text when aborted.
	Answer string
	// Rounds is the number of model calls made.
	Rounds int
	// MaxRounds is the configured ceiling.
	MaxRounds int
	// ToolCalls is the number of tool calls executed.
	ToolCalls int
	// Conversation is the complete conversation, including the task and the answer.
	Conversation []llms.Message
}

// MaxRoundsReached returns true if the task stopped at the round ceiling.
func (r *Result) MaxRoundsReached() bool {
	return r.Status == StatusAborted
}

// Output returns the user visible result of the task.
func (r *Result) Output() string {
	if r.Status != StatusAborted {
		return r.Answer
	}
	out := fmt.Sprintf("%s the task did not finish within %d rounds; raise max_rounds or narrow the task.", MarkerMaxRounds, r.MaxRounds)
	if r.Answer != "" {
		out += "\n\nLast model output:\n" + r.Answer
	}
	return out
}

// Engine runs tasks against a model and a tool catalogue.
// An Engine may run several tasks concurrently, every task owns its conversation.
type Engine struct {
	LLM       llms.Model
	catalogue *tools.Catalogue
	cfg       *Config
}

// New returns an engine for the model and the tool catalogue.
func New(llm llms.Model, catalogue *tools.Catalogue, opts ...Option) *Engine {
	if catalogue == nil {
		catalogue = tools.NewCatalogue()
	}
	return &Engine{
		LLM:       llm,
		catalogue: catalogue,
		cfg:       NewConfig(opts...),
	}
}

// Catalogue returns the tool catalogue offered to the model.
func (e *Engine) Catalogue() *tools.Catalogue {
	return e.catalogue
}

// Run executes the task until the model returns a final answer
// or the round ceiling is reached.
// Tool failures are returned to the model; only model failures
// and cancellation end the task with an error.
func (e *Engine) Run(ctx context.Context, task string, opts ...Option) (*Result, error) {
	if e.LLM == nil {
		return nil, errors.WithStack(ErrNoModel)
	}
	cfg := e.cfg.Apply(opts...)
	modelName := values.StringsCoalesce(cfg.Model, e.LLM.GetName())
	if modelName == "" {
		return nil, errors.WithStack(ErrNoModel)
	}

	info := &TaskInfo{
		ID:        uuid.NewString(),
		Input:     task,
		Model:     modelName,
		Tools:     e.catalogue.Names(),
		MaxRounds: cfg.MaxRounds,
	}
	ctx = WithTask(ctx, info)

	var toolDefs []llms.Tool
	if e.catalogue.Len() > 0 {
		if !e.LLM.GetProviderType().Supports(llms.CapabilityFunctionCalling) {
			return nil, errors.Newf("model %s does not support function calling", modelName)
		}
		toolDefs = e.catalogue.Definitions()
	}
	callOpts := cfg.GetCallOptions(toolDefs)

	var messages []llms.Message
	if cfg.SystemPrompt != "" {
		messages = append(messages, llms.MessageFromTextParts(llms.RoleSystem, cfg.SystemPrompt))
	}
	messages = append(messages, llms.MessageFromTextParts(llms.RoleHuman, task))

	if cfg.CallbackHandler != nil {
		cfg.CallbackHandler.OnTaskStart(ctx, info)
	}
	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "task_started",
		"task_id", info.ID,
		"model", modelName,
		"tools", len(info.Tools),
		"max_rounds", cfg.MaxRounds,
		"input", slices.StringUpto(task, 64),
	)

	result := &Result{
		TaskID:    info.ID,
		MaxRounds: cfg.MaxRounds,
	}

	fail := func(err error) (*Result, error) {
		metricskey.StatsLoopRounds.IncrCounter(float64(result.Rounds), modelName)
		metricskey.StatsTasksCompleted.IncrCounter(1, "error")
		if cfg.CallbackHandler != nil {
			cfg.CallbackHandler.OnTaskError(ctx, info, err)
		}
		logger.ContextKV(ctx, xlog.ERROR,
			"status", "task_failed",
			"task_id", info.ID,
			"rounds", result.Rounds,
			"err", err.Error(),
		)
		return nil, err
	}

	state := StatusAwaitingModel
	for state == StatusAwaitingModel {
		if err := ctx.Err(); err != nil {
			return fail(errors.WithStack(err))
		}

		result.Rounds++
		if cfg.CallbackHandler != nil {
			cfg.CallbackHandler.OnRoundStart(ctx, info, result.Rounds)
		}

		resp, err := e.generate(ctx, cfg, info, messages, callOpts)
		if err != nil {
			return fail(err)
		}

		toolCalls := resp.ToolCalls()
		result.Answer = resp.Content()
		if len(toolCalls) == 0 {
			messages = append(messages, llms.MessageFromTextParts(llms.RoleAI, result.Answer))
			state = StatusDone
			break
		}

		state = StatusExecutingTools
		logger.ContextKV(ctx, xlog.DEBUG,
			"status", "executing_tools",
			"task_id", info.ID,
			"round", result.Rounds,
			"tool_calls", len(toolCalls),
		)
		messages = e.executeToolCalls(ctx, cfg, info, messages, toolCalls)
		result.ToolCalls += len(toolCalls)

		if result.Rounds >= cfg.MaxRounds {
			state = StatusAborted
		} else {
			state = StatusAwaitingModel
		}
	}

	result.Status = state
	result.Conversation = messages

	metricskey.StatsLoopRounds.IncrCounter(float64(result.Rounds), modelName)
	metricskey.StatsTasksCompleted.IncrCounter(1, string(state))
	if cfg.CallbackHandler != nil {
		cfg.CallbackHandler.OnTaskEnd(ctx, info, result)
	}

	lvl := xlog.DEBUG
	if state == StatusAborted {
		lvl = xlog.WARNING
	}
	logger.ContextKV(ctx, lvl,
		"status", "task_finished",
		"task_id", info.ID,
		"state", state,
		"rounds", result.Rounds,
		"tool_calls", result.ToolCalls,
		"answer", slices.StringUpto(result.Answer, 64),
	)
	return result, nil
}

// generate calls the model, a response without choices is retried.
func (e *Engine) generate(ctx context.Context, cfg *Config, info *TaskInfo, messages []llms.Message, callOpts []llms.CallOption) (*llms.ContentResponse, error) {
	modelName := info.Model
	for retry := 1; ; retry++ {
		bytesSent := llmutils.CountMessagesContentSize(messages)
		metricskey.StatsLLMMessagesSent.IncrCounter(float64(len(messages)), modelName)
		metricskey.StatsLLMBytesSent.IncrCounter(float64(bytesSent), modelName)

		if cfg.CallbackHandler != nil {
			cfg.CallbackHandler.OnLLMCallStart(ctx, info, e.LLM, messages)
		}

		resp, err := e.LLM.GenerateContent(ctx, messages, callOpts...)
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to generate content with model %s", modelName)
		}

		if cfg.CallbackHandler != nil {
			cfg.CallbackHandler.OnLLMCallEnd(ctx, info, e.LLM, resp)
		}

		metricskey.StatsLLMBytesReceived.IncrCounter(float64(llmutils.CountResponseContentSize(resp)), modelName)
		tokensIn, tokensOut, tokensTotal := llmutils.CountTokens(resp)
		metricskey.StatsLLMInputTokens.IncrCounter(float64(tokensIn), modelName)
		metricskey.StatsLLMOutputTokens.IncrCounter(float64(tokensOut), modelName)
		metricskey.StatsLLMTotalTokens.IncrCounter(float64(tokensTotal), modelName)

		if len(resp.Choices) > 0 {
			return resp, nil
		}

		metricskey.StatsLLMEmptyResponses.IncrCounter(1, modelName)
		if retry >= cfg.MaxRetries {
			return nil, errors.WithMessagef(ErrEmptyResponse, "after %d attempts", retry)
		}
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "retrying_empty_response",
			"task_id", info.ID,
			"retry_count", retry,
		)
	}
}
