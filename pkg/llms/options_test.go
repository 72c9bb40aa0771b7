package llms_test

import (
	"testing"

	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/stretchr/testify/assert"
)

func TestOptions(t *testing.T) {
	tools := []llms.Tool{
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:       "test",
				Parameters: map[string]any{"type": "object"},
			},
		},
	}

	opts := llms.NewCallOptions(
		llms.WithModel("qwen3"),
		llms.WithMaxTokens(512),
		llms.WithTemperature(0.2),
		llms.WithTools(tools),
		llms.WithToolChoice("auto"),
	)

	assert.Equal(t, "qwen3", opts.Model)
	assert.Equal(t, 512, opts.MaxTokens)
	assert.Equal(t, 0.2, opts.Temperature)
	assert.Equal(t, tools, opts.Tools)
	assert.Equal(t, "auto", opts.ToolChoice)
}
