package llms_test

import (
	"testing"

	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/stretchr/testify/assert"
)

func TestTextParts(t *testing.T) {
	t.Parallel()
	mc := llms.MessageFromTextParts(llms.RoleHuman, "a", "b", "c")
	assert.Equal(t, llms.RoleHuman, mc.Role)
	assert.Len(t, mc.Parts, 3)
	assert.Equal(t, "a\nb\nc\n", mc.GetContent())
}

func Test_MessageFromToolCalls_Copies(t *testing.T) {
	t.Parallel()
	tc := llms.ToolCall{
		ID:           "1",
		Type:         "function",
		FunctionCall: &llms.FunctionCall{Name: "read", Arguments: `{"path":"A.txt"}`},
	}
	msg := llms.MessageFromToolCalls(llms.RoleAI, tc)
	tc.FunctionCall.Name = "changed"

	got := msg.Parts[0].(llms.ToolCall)
	assert.Equal(t, "read", got.FunctionCall.Name)
	assert.Equal(t, `Tool Call: {"id":"1","type":"function","function":{"name":"read","arguments":"{\"path\":\"A.txt\"}"}}`+"\n", msg.GetContent())
}

func Test_MessageFromToolResponse(t *testing.T) {
	t.Parallel()
	msg := llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{
		ToolCallID: "1",
		Name:       "read",
		Content:    "boom",
		IsError:    true,
	})
	assert.Equal(t, llms.RoleTool, msg.Role)
	assert.Equal(t, `Response: {"tool_call_id":"1","name":"read","content":"boom","is_error":true}`+"\n", msg.GetContent())
	assert.Equal(t, "ToolCallResponse: 1 (read), response size: 4", msg.Parts[0].(llms.ToolCallResponse).String())
}

func Test_ContentResponse(t *testing.T) {
	t.Parallel()
	resp := &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{Content: "first", ToolCalls: []llms.ToolCall{{ID: "a"}}},
			{Content: ""},
			{Content: "second", ToolCalls: []llms.ToolCall{{ID: "b"}, {ID: "c"}}},
		},
	}
	assert.Equal(t, "first\n\nsecond", resp.Content())
	calls := resp.ToolCalls()
	assert.Len(t, calls, 3)
	assert.Equal(t, "c", calls[2].ID)
}

func Test_ProviderCapabilities(t *testing.T) {
	t.Parallel()
	assert.True(t, llms.ProviderOllama.Supports(llms.CapabilityFunctionCalling))
	assert.True(t, llms.ProviderOllama.Supports(llms.CapabilitySelfHosted))
	assert.False(t, llms.ProviderOpenAI.Supports(llms.CapabilitySelfHosted))
	assert.False(t, llms.ProviderType("unknown").Supports(llms.CapabilityText))
}
