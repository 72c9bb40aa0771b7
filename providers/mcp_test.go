package providers_test

import (
	"encoding/json"
	"testing"

	"github.com/effective-security/mcpbridge/providers"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_FlattenResult(t *testing.T) {
	assert.Equal(t, &providers.CallResult{}, providers.FlattenResult(nil))

	res := providers.FlattenResult(&mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent("line 1"),
			mcp.NewTextContent("line 2"),
		},
	})
	assert.Equal(t, "line 1\nline 2", res.Content)
	assert.False(t, res.IsError)

	res = providers.FlattenResult(mcp.NewToolResultError("boom"))
	assert.Equal(t, "boom", res.Content)
	assert.True(t, res.IsError)

	res = providers.FlattenResult(&mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewImageContent("AAAA", "image/png"),
		},
	})
	assert.Contains(t, res.Content, `"mimeType":"image/png"`)

	res = providers.FlattenResult(&mcp.CallToolResult{
		StructuredContent: map[string]any{"temp": 21},
	})
	assert.Equal(t, `{"temp":21}`, res.Content)
}

func Test_InputSchema(t *testing.T) {
	tool := mcp.NewTool("search",
		mcp.WithString("query", mcp.Required(), mcp.Description("search query")),
		mcp.WithNumber("limit"),
	)
	schema, err := providers.InputSchema(tool)
	require.NoError(t, err)
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []any{"query"}, schema["required"])
	props := schema["properties"].(map[string]any)
	query := props["query"].(map[string]any)
	assert.Equal(t, "string", query["type"])
	assert.Equal(t, "search query", query["description"])

	raw := json.RawMessage(`{"type":"object","properties":{"x":{"type":"integer"}},"additionalProperties":false}`)
	schema, err = providers.InputSchema(mcp.NewToolWithRawSchema("raw", "raw schema", raw))
	require.NoError(t, err)
	assert.Equal(t, false, schema["additionalProperties"])

	schema, err = providers.InputSchema(mcp.Tool{Name: "bare"})
	require.NoError(t, err)
	assert.Equal(t, "object", schema["type"])
}
