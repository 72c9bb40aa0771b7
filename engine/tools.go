package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/llmutils"
	"github.com/effective-security/mcpbridge/pkg/metricskey"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
)

type toolCallResult struct {
	toolCall llms.ToolCall
	response string
	// notFound marks the response as the synthesized unknown tool error
	notFound bool
	err      error
	index    int
}

// executeToolCalls runs the requested tool calls and appends the request
// message followed by one result message per call, in request order.
func (e *Engine) executeToolCalls(ctx context.Context, cfg *Config, info *TaskInfo, messages []llms.Message, toolCalls []llms.ToolCall) []llms.Message {
	calls := make([]llms.ToolCall, 0, len(toolCalls))
	for _, tc := range toolCalls {
		if tc.FunctionCall == nil {
			tc.FunctionCall = &llms.FunctionCall{}
		}
		if tc.ID == "" {
			tc.ID = "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
		}
		tc.Type = values.StringsCoalesce(tc.Type, "function")
		calls = append(calls, tc)

		logger.ContextKV(ctx, xlog.DEBUG,
			"status", "tool_call_found",
			"task_id", info.ID,
			"tool_call_id", tc.ID,
			"tool_call_name", tc.FunctionCall.Name,
		)
	}
	messages = append(messages, llms.MessageFromToolCalls(llms.RoleAI, calls...))

	results := make([]toolCallResult, len(calls))
	if cfg.SequentialTools || len(calls) == 1 {
		for i, tc := range calls {
			results[i] = e.callTool(ctx, cfg, info, i, tc)
		}
	} else {
		resultChan := make(chan toolCallResult, len(calls))
		var wg sync.WaitGroup
		wg.Add(len(calls))
		for i, tc := range calls {
			go func(index int, tc llms.ToolCall) {
				defer wg.Done()
				resultChan <- e.callTool(ctx, cfg, info, index, tc)
			}(i, tc)
		}
		wg.Wait()
		close(resultChan)

		for result := range resultChan {
			if result.index >= 0 && result.index < len(results) {
				results[result.index] = result
			}
		}
	}

	for i, result := range results {
		if result.toolCall.ID == "" {
			result = toolCallResult{
				toolCall: calls[i],
				err:      errors.New("no response received from tool"),
				index:    i,
			}
		}

		resp := llms.ToolCallResponse{
			ToolCallID: result.toolCall.ID,
			Name:       result.toolCall.FunctionCall.Name,
			Content:    result.response,
			IsError:    result.notFound,
		}
		if result.err != nil {
			resp.Content = fmt.Sprintf("Tool call failed: %s", result.err.Error())
			resp.IsError = true
			logger.ContextKV(ctx, xlog.WARNING,
				"status", "tool_call_failed",
				"task_id", info.ID,
				"tool", resp.Name,
				"err", result.err.Error(),
			)
		}

		logger.ContextKV(ctx, xlog.DEBUG,
			"status", "tool_call_response",
			"task_id", info.ID,
			"tool_call_id", resp.ToolCallID,
			"tool_name", resp.Name,
			"content_length", len(resp.Content),
		)
		messages = append(messages, llms.MessageFromToolResponse(llms.RoleTool, resp))
	}
	return messages
}

func (e *Engine) callTool(ctx context.Context, cfg *Config, info *TaskInfo, index int, tc llms.ToolCall) toolCallResult {
	toolName := tc.FunctionCall.Name
	toolArgs := tc.FunctionCall.Arguments

	tool, ok := e.catalogue.Lookup(toolName)
	if !ok {
		metricskey.StatsToolCallsNotFound.IncrCounter(1, toolName)
		if cfg.CallbackHandler != nil {
			cfg.CallbackHandler.OnToolNotFound(ctx, info, toolName)
		}
		available := strings.Join(e.catalogue.Names(), ", ")
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "tool_not_found",
			"task_id", info.ID,
			"tool_name", toolName,
			"available_tools", available,
		)
		return toolCallResult{
			toolCall: tc,
			response: fmt.Sprintf("Tool `%s` not found. Please check the tool name and try again with exact match. Available tools: %s", toolName, available),
			notFound: true,
			index:    index,
		}
	}

	if cfg.CallbackHandler != nil {
		cfg.CallbackHandler.OnToolStart(ctx, tool, toolArgs)
	}

	started := time.Now()
	res, err := tool.Call(ctx, toolArgs)
	metricskey.PerfToolCall.MeasureSince(started, tool.Provider(), tool.ToolName())

	if err != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, tool.Provider(), tool.ToolName())
		if cfg.CallbackHandler != nil {
			cfg.CallbackHandler.OnToolError(ctx, tool, toolArgs, err)
		}
		if errors.Is(err, llmutils.ErrInvalidArguments) {
			err = errors.WithMessage(err, "check the JSON schema of the tool and try again")
		}
		return toolCallResult{
			toolCall: tc,
			err:      errors.WithMessagef(err, "failed to call tool %s", toolName),
			index:    index,
		}
	}

	metricskey.StatsToolCallsSucceeded.IncrCounter(1, tool.Provider(), tool.ToolName())
	if cfg.CallbackHandler != nil {
		cfg.CallbackHandler.OnToolEnd(ctx, tool, toolArgs, res)
	}
	return toolCallResult{
		toolCall: tc,
		response: res,
		index:    index,
	}
}
