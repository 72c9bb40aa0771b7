package openai_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/llms/openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHost struct {
	lock      sync.Mutex
	requests  []map[string]any
	responses []string
}

func (f *fakeHost) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/v1/models":
		_, _ = io.WriteString(w, `{"object":"list","data":[{"id":"llama3.2","object":"model","owned_by":"library"},{"id":"qwen3:8b","object":"model","owned_by":"library"}]}`)
	case "/v1/chat/completions":
		body, _ := io.ReadAll(r.Body)
		req := map[string]any{}
		_ = json.Unmarshal(body, &req)

		f.lock.Lock()
		defer f.lock.Unlock()
		f.requests = append(f.requests, req)
		if len(f.responses) == 0 {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":{"message":"model not found","type":"not_found_error"}}`)
			return
		}
		resp := f.responses[0]
		f.responses = f.responses[1:]
		_, _ = io.WriteString(w, resp)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestLLM(t *testing.T, host *fakeHost) *openai.LLM {
	t.Helper()
	srv := httptest.NewServer(host)
	t.Cleanup(srv.Close)

	llm, err := openai.New(
		openai.WithProvider(llms.ProviderOllama),
		openai.WithBaseURL(srv.URL+"/v1"),
		openai.WithModel("llama3.2"),
		openai.WithMaxRetries(0),
	)
	require.NoError(t, err)
	return llm
}

func Test_New(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_BASE_URL", "")
	t.Setenv("OPENAI_MODEL", "")

	_, err := openai.New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")

	_, err = openai.New(openai.WithProvider(llms.ProviderOllama))
	require.Error(t, err)

	llm, err := openai.New(openai.WithToken("sk-test"), openai.WithModel("gpt-test"))
	require.NoError(t, err)
	assert.Equal(t, "gpt-test", llm.GetName())
	assert.Equal(t, llms.ProviderOpenAI, llm.GetProviderType())
	assert.Equal(t, openai.DefaultBaseURL, llm.BaseURL())

	llm, err = openai.New(openai.WithProvider(llms.ProviderOllama), openai.WithBaseURL("http://localhost:11434/v1"))
	require.NoError(t, err)
	assert.Equal(t, llms.ProviderOllama, llm.GetProviderType())
	assert.Equal(t, "http://localhost:11434/v1", llm.BaseURL())
}

func Test_ListModels(t *testing.T) {
	llm := newTestLLM(t, &fakeHost{})
	list, err := llm.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3.2", "qwen3:8b"}, list)
}

func Test_GenerateContent_ToolCalls(t *testing.T) {
	host := &fakeHost{
		responses: []string{`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "llama3.2",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [
						{"id": "call_1", "type": "function", "function": {"name": "weather__forecast", "arguments": "{\"city\":\"Paris\"}"}},
						{"id": "call_2", "type": "function", "function": {"name": "files__read", "arguments": "{}"}}
					]
				}
			}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19}
		}`},
	}
	llm := newTestLLM(t, host)

	tool := llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        "weather__forecast",
			Description: "Returns a forecast",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"city": map[string]any{"type": "string"},
				},
				"required": []any{"city"},
			},
		},
	}

	messages := []llms.Message{
		llms.MessageFromTextParts(llms.RoleSystem, "be brief"),
		llms.MessageFromTextParts(llms.RoleHuman, "weather in Paris?"),
		llms.MessageFromToolCalls(llms.RoleAI, llms.ToolCall{
			ID:           "call_0",
			Type:         "function",
			FunctionCall: &llms.FunctionCall{Name: "weather__forecast", Arguments: `{"city":"Lyon"}`},
		}),
		llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{
			ToolCallID: "call_0",
			Name:       "weather__forecast",
			Content:    "sunny",
		}),
	}

	resp, err := llm.GenerateContent(context.Background(), messages,
		llms.WithTools([]llms.Tool{tool}),
		llms.WithMaxTokens(256),
	)
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "tool_calls", resp.Choices[0].StopReason)

	calls := resp.ToolCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "call_1", calls[0].ID)
	assert.Equal(t, "weather__forecast", calls[0].FunctionCall.Name)
	assert.Equal(t, `{"city":"Paris"}`, calls[0].FunctionCall.Arguments)
	assert.Equal(t, "files__read", calls[1].FunctionCall.Name)
	assert.EqualValues(t, 19, resp.Choices[0].GenerationInfo["TotalTokens"])

	require.Len(t, host.requests, 1)
	req := host.requests[0]
	assert.Equal(t, "llama3.2", req["model"])
	assert.Equal(t, "auto", req["tool_choice"])
	assert.EqualValues(t, 256, req["max_tokens"])

	msgs := req["messages"].([]any)
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
	ai := msgs[2].(map[string]any)
	assert.Equal(t, "assistant", ai["role"])
	require.Len(t, ai["tool_calls"], 1)
	toolMsg := msgs[3].(map[string]any)
	assert.Equal(t, "tool", toolMsg["role"])
	assert.Equal(t, "call_0", toolMsg["tool_call_id"])
	assert.Equal(t, "sunny", toolMsg["content"])

	tools := req["tools"].([]any)
	require.Len(t, tools, 1)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "weather__forecast", fn["name"])
	assert.Equal(t, tool.Function.Parameters["required"], fn["parameters"].(map[string]any)["required"])
}

func Test_GenerateContent_Text(t *testing.T) {
	host := &fakeHost{
		responses: []string{`{"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Paris is sunny."}}]}`},
	}
	llm := newTestLLM(t, host)

	resp, err := llm.GenerateContent(context.Background(),
		[]llms.Message{llms.MessageFromTextParts(llms.RoleHuman, "weather?")},
		llms.WithModel("qwen3:8b"),
	)
	require.NoError(t, err)
	assert.Equal(t, "Paris is sunny.", resp.Content())
	assert.Empty(t, resp.ToolCalls())

	require.Len(t, host.requests, 1)
	assert.Equal(t, "qwen3:8b", host.requests[0]["model"])
	assert.NotContains(t, host.requests[0], "tools")
	assert.NotContains(t, host.requests[0], "tool_choice")
}

func Test_GenerateContent_Errors(t *testing.T) {
	ctx := context.Background()
	msgs := []llms.Message{llms.MessageFromTextParts(llms.RoleHuman, "hi")}

	// API error: the host answered
	llm := newTestLLM(t, &fakeHost{})
	_, err := llm.GenerateContent(ctx, msgs)
	require.Error(t, err)
	assert.False(t, errors.Is(err, llms.ErrModelUnreachable))
	assert.Contains(t, err.Error(), "404")

	// transport error: nothing listens
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	llm, err = openai.New(
		openai.WithProvider(llms.ProviderOllama),
		openai.WithBaseURL(url+"/v1"),
		openai.WithModel("llama3.2"),
		openai.WithMaxRetries(0),
	)
	require.NoError(t, err)
	_, err = llm.GenerateContent(ctx, msgs)
	require.Error(t, err)
	assert.True(t, errors.Is(err, llms.ErrModelUnreachable))

	_, err = llm.ListModels(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, llms.ErrModelUnreachable))

	// unsupported role
	_, err = llm.GenerateContent(ctx, []llms.Message{{Role: "robot", Parts: []llms.ContentPart{llms.TextPart("x")}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported")

	// no model
	t.Setenv("OPENAI_MODEL", "")
	llm, err = openai.New(openai.WithProvider(llms.ProviderOllama), openai.WithBaseURL(url))
	require.NoError(t, err)
	_, err = llm.GenerateContent(ctx, msgs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model is not specified")
}
