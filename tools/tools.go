package tools

import (
	"context"

	"github.com/cockroachdb/errors"
)

// ErrToolFailed is returned when the provider reports the call as failed.
var ErrToolFailed = errors.New("tool reported an error")

// ITool is a tool for the llm agent to interact with different applications.
type ITool interface {
	// Name returns the name of the Tool, as seen by the model.
	Name() string
	// Description returns the description of the tool, to be used in the prompt.
	// Should not exceed LLM model limit.
	Description() string
	// Parameters returns the parameters definition of the function, to be used in the prompt.
	Parameters() map[string]any

	// Call executes the tool with the given input and returns the result.
	// If the tool fails to parse the input, it should return llmutils.ErrInvalidArguments error.
	Call(context.Context, string) (string, error)
}

// IProviderTool is a tool served by a provider session.
type IProviderTool interface {
	ITool
	// Provider returns the name of the provider serving the tool.
	Provider() string
	// ToolName returns the name of the tool as reported by the provider.
	ToolName() string
}

type Callback interface {
	OnToolStart(context.Context, ITool, string)
	OnToolEnd(context.Context, ITool, string, string)
	OnToolError(context.Context, ITool, string, error)
}
