package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/engine"
	"github.com/effective-security/mcpbridge/mocks/mockllms"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/providers/providertest"
	"github.com/effective-security/mcpbridge/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func openCatalogue(t *testing.T, fx *providertest.Fixture, names ...string) *tools.Catalogue {
	t.Helper()
	g := fx.Manager().OpenMany(context.Background(), fx.Registry, names)
	require.NoError(t, g.Err())
	t.Cleanup(func() { _ = g.Close() })
	return tools.NewCatalogue(g.Sessions...)
}

func newModel(ctrl *gomock.Controller) *mockllms.MockModel {
	m := mockllms.NewMockModel(ctrl)
	m.EXPECT().GetName().Return("llama3.2").AnyTimes()
	m.EXPECT().GetProviderType().Return(llms.ProviderOllama).AnyTimes()
	return m
}

func toolCallResponse(id, name, args string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			ToolCalls: []llms.ToolCall{{
				ID:   id,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      name,
					Arguments: args,
				},
			}},
		}},
	}
}

func textResponse(text string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: text, StopReason: "stop"}},
	}
}

func toolResponses(msgs []llms.Message) []llms.ToolCallResponse {
	var list []llms.ToolCallResponse
	for _, m := range msgs {
		for _, p := range m.Parts {
			if r, ok := p.(llms.ToolCallResponse); ok {
				list = append(list, r)
			}
		}
	}
	return list
}

func Test_Run_TwoRounds(t *testing.T) {
	ctrl := gomock.NewController(t)
	fx := providertest.NewFixture().Add("files", providertest.Echo("read"))
	cat := openCatalogue(t, fx, "files")
	require.False(t, cat.Namespaced())

	m := newModel(ctrl)
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msgs []llms.Message, opts ...llms.CallOption) (*llms.ContentResponse, error) {
			require.Len(t, msgs, 2)
			assert.Equal(t, llms.RoleSystem, msgs[0].Role)
			assert.Equal(t, llms.RoleHuman, msgs[1].Role)

			co := llms.NewCallOptions(opts...)
			require.Len(t, co.Tools, 1)
			assert.Equal(t, "read", co.Tools[0].Function.Name)
			assert.Equal(t, "auto", co.ToolChoice)
			return toolCallResponse("call_1", "read", `{"text":"a.txt"}`), nil
		}).Times(1)
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msgs []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
			require.Len(t, msgs, 4)
			return textResponse("the file says a.txt"), nil
		}).Times(1)

	e := engine.New(m, cat, engine.WithSystemPrompt("You are a helpful assistant."))
	res, err := e.Run(context.Background(), "read a.txt")
	require.NoError(t, err)

	assert.Equal(t, engine.StatusDone, res.Status)
	assert.False(t, res.MaxRoundsReached())
	assert.Equal(t, 2, res.Rounds)
	assert.Equal(t, 1, res.ToolCalls)
	assert.Equal(t, "the file says a.txt", res.Answer)
	assert.Equal(t, "the file says a.txt", res.Output())
	assert.NotEmpty(t, res.TaskID)
	require.Len(t, res.Conversation, 5)
	assert.Equal(t, llms.RoleAI, res.Conversation[4].Role)

	resps := toolResponses(res.Conversation)
	require.Len(t, resps, 1)
	assert.Equal(t, "call_1", resps[0].ToolCallID)
	assert.Equal(t, "read", resps[0].Name)
	assert.Equal(t, "read: a.txt", resps[0].Content)
	assert.False(t, resps[0].IsError)
}

func Test_Run_MaxRounds(t *testing.T) {
	ctrl := gomock.NewController(t)
	fx := providertest.NewFixture().Add("files", providertest.Echo("read"))
	cat := openCatalogue(t, fx, "files")

	m := newModel(ctrl)
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(toolCallResponse("call_1", "read", `{"text":"x"}`), nil).Times(1)

	e := engine.New(m, cat)
	res, err := e.Run(context.Background(), "loop forever", engine.WithMaxRounds(1))
	require.NoError(t, err)

	assert.Equal(t, engine.StatusAborted, res.Status)
	assert.True(t, res.MaxRoundsReached())
	assert.Equal(t, 1, res.Rounds)
	assert.Equal(t, 1, res.MaxRounds)
	assert.Contains(t, res.Output(), engine.MarkerMaxRounds)
	assert.Contains(t, res.Output(), "within 1 rounds")
	// the executed tool result is kept
	require.Len(t, toolResponses(res.Conversation), 1)
}

func Test_Run_UnknownTool(t *testing.T) {
	ctrl := gomock.NewController(t)
	fx := providertest.NewFixture().Add("files", providertest.Echo("read"))
	cat := openCatalogue(t, fx, "files")

	m := newModel(ctrl)
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(toolCallResponse("call_1", "write", `{}`), nil).Times(1)
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(textResponse("sorry"), nil).Times(1)

	res, err := engine.New(m, cat).Run(context.Background(), "write a file")
	require.NoError(t, err)
	assert.Equal(t, engine.StatusDone, res.Status)

	resps := toolResponses(res.Conversation)
	require.Len(t, resps, 1)
	assert.True(t, resps[0].IsError)
	assert.Contains(t, resps[0].Content, "Tool `write` not found")
	assert.Contains(t, resps[0].Content, "Available tools: read")
}

func Test_Run_ToolErrorContinues(t *testing.T) {
	ctrl := gomock.NewController(t)
	fx := providertest.NewFixture().Add("svc", providertest.Fail("broken"), providertest.Add("add"))
	cat := openCatalogue(t, fx, "svc")

	m := newModel(ctrl)
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(toolCallResponse("call_1", "broken", `{}`), nil).Times(1)
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(toolCallResponse("call_2", "add", `{"a": 2, "b": 3}`), nil).Times(1)
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(textResponse("5"), nil).Times(1)

	res, err := engine.New(m, cat).Run(context.Background(), "add 2 and 3")
	require.NoError(t, err)
	assert.Equal(t, engine.StatusDone, res.Status)
	assert.Equal(t, 3, res.Rounds)

	resps := toolResponses(res.Conversation)
	require.Len(t, resps, 2)
	assert.True(t, resps[0].IsError)
	assert.Contains(t, resps[0].Content, "Tool call failed:")
	assert.Contains(t, resps[0].Content, "tool is broken")
	assert.False(t, resps[1].IsError)
	assert.Equal(t, "5", resps[1].Content)
}

func Test_Run_InvalidArguments(t *testing.T) {
	ctrl := gomock.NewController(t)
	fx := providertest.NewFixture().Add("files", providertest.Echo("read"))
	cat := openCatalogue(t, fx, "files")

	m := newModel(ctrl)
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(toolCallResponse("call_1", "read", `[1, 2]`), nil).Times(1)
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(textResponse("gave up"), nil).Times(1)

	res, err := engine.New(m, cat).Run(context.Background(), "read")
	require.NoError(t, err)

	resps := toolResponses(res.Conversation)
	require.Len(t, resps, 1)
	assert.True(t, resps[0].IsError)
	assert.Contains(t, resps[0].Content, "JSON schema")
}

func Test_Run_MultiProviderOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	// notes__list blocks until files__list has run, so the results arrive out of order
	released := make(chan struct{})
	var release sync.Once
	var finished []string
	var lock sync.Mutex
	done := func(name string) {
		lock.Lock()
		finished = append(finished, name)
		lock.Unlock()
	}

	filesList := server.ServerTool{
		Tool: mcp.NewTool("list", mcp.WithString("text")),
		Handler: func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			release.Do(func() { close(released) })
			done("files__list")
			return mcp.NewToolResultText("files: " + req.GetString("text", "")), nil
		},
	}
	notesList := server.ServerTool{
		Tool: mcp.NewTool("list", mcp.WithString("text")),
		Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			select {
			case <-released:
			case <-time.After(5 * time.Second):
				return mcp.NewToolResultError("not released"), nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			done("notes__list")
			return mcp.NewToolResultText("notes: " + req.GetString("text", "")), nil
		},
	}

	fx := providertest.NewFixture().
		Add("files", filesList, providertest.Echo("read")).
		Add("notes", notesList)
	cat := openCatalogue(t, fx, "files", "notes")
	require.True(t, cat.Namespaced())
	assert.Equal(t, []string{"files__list", "files__read", "notes__list"}, cat.Names())

	calls := &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			ToolCalls: []llms.ToolCall{
				{ID: "c1", Type: "function", FunctionCall: &llms.FunctionCall{Name: "notes__list", Arguments: `{"text":"1"}`}},
				{ID: "c2", Type: "function", FunctionCall: &llms.FunctionCall{Name: "files__list", Arguments: `{"text":"2"}`}},
				{ID: "c3", Type: "function", FunctionCall: &llms.FunctionCall{Name: "files__read", Arguments: `{"text":"3"}`}},
				{ID: "", FunctionCall: &llms.FunctionCall{Name: "list", Arguments: `{}`}},
			},
		}},
	}

	m := newModel(ctrl)
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).Return(calls, nil).Times(1)
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).Return(textResponse("ok"), nil).Times(1)

	res, err := engine.New(m, cat).Run(context.Background(), "list everything")
	require.NoError(t, err)
	assert.Equal(t, 4, res.ToolCalls)

	resps := toolResponses(res.Conversation)
	require.Len(t, resps, 4)
	assert.Equal(t, "c1", resps[0].ToolCallID)
	assert.Equal(t, "notes: 1", resps[0].Content)
	assert.False(t, resps[0].IsError)
	assert.Equal(t, "c2", resps[1].ToolCallID)
	assert.Equal(t, "files: 2", resps[1].Content)
	assert.Equal(t, "c3", resps[2].ToolCallID)
	assert.Equal(t, "read: 3", resps[2].Content)
	lock.Lock()
	assert.Equal(t, []string{"files__list", "notes__list"}, finished)
	lock.Unlock()

	// un-prefixed names are unknown in a namespaced catalogue
	assert.NotEmpty(t, resps[3].ToolCallID)
	assert.True(t, resps[3].IsError)
	assert.Contains(t, resps[3].Content, "files__list, files__read, notes__list")

	// the request message precedes the results and carries the generated ID
	reqMsg := res.Conversation[1]
	require.Len(t, reqMsg.Parts, 4)
	last, ok := reqMsg.Parts[3].(llms.ToolCall)
	require.True(t, ok)
	assert.Equal(t, resps[3].ToolCallID, last.ID)
	assert.Equal(t, "function", last.Type)
}

func Test_Run_Sequential(t *testing.T) {
	ctrl := gomock.NewController(t)
	fx := providertest.NewFixture().Add("calc", providertest.Add("add"))
	cat := openCatalogue(t, fx, "calc")

	calls := &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			ToolCalls: []llms.ToolCall{
				{ID: "c1", FunctionCall: &llms.FunctionCall{Name: "add", Arguments: `{"a":1,"b":1}`}},
				{ID: "c2", FunctionCall: &llms.FunctionCall{Name: "add", Arguments: `{"a":2,"b":2}`}},
			},
		}},
	}
	m := newModel(ctrl)
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).Return(calls, nil).Times(1)
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).Return(textResponse("2 and 4"), nil).Times(1)

	res, err := engine.New(m, cat, engine.WithSequentialTools(true)).Run(context.Background(), "add")
	require.NoError(t, err)
	resps := toolResponses(res.Conversation)
	require.Len(t, resps, 2)
	assert.Equal(t, "2", resps[0].Content)
	assert.Equal(t, "4", resps[1].Content)
}

func Test_Run_EmptyResponseRetry(t *testing.T) {
	ctrl := gomock.NewController(t)

	m := newModel(ctrl)
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&llms.ContentResponse{}, nil).Times(1)
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(textResponse("hello"), nil).Times(1)

	res, err := engine.New(m, nil).Run(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rounds)
	assert.Equal(t, "hello", res.Answer)
}

func Test_Run_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("no_model", func(t *testing.T) {
		_, err := engine.New(nil, nil).Run(ctx, "hi")
		assert.True(t, errors.Is(err, engine.ErrNoModel))
	})

	t.Run("empty_exhausted", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		m := newModel(ctrl)
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(&llms.ContentResponse{}, nil).Times(2)

		_, err := engine.New(m, nil, engine.WithMaxRetries(2)).Run(ctx, "hi")
		require.Error(t, err)
		assert.True(t, errors.Is(err, engine.ErrEmptyResponse))
	})

	t.Run("unreachable", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		m := newModel(ctrl)
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, errors.Mark(errors.New("connection refused"), llms.ErrModelUnreachable)).Times(1)

		_, err := engine.New(m, nil).Run(ctx, "hi")
		require.Error(t, err)
		assert.True(t, errors.Is(err, llms.ErrModelUnreachable))
		assert.Contains(t, err.Error(), "llama3.2")
	})

	t.Run("cancelled", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		m := newModel(ctrl)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := engine.New(m, nil).Run(cctx, "hi")
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

type recorder struct {
	lock   sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) OnTaskStart(context.Context, *engine.TaskInfo)               { r.add("task_start") }
func (r *recorder) OnTaskEnd(context.Context, *engine.TaskInfo, *engine.Result) { r.add("task_end") }
func (r *recorder) OnTaskError(context.Context, *engine.TaskInfo, error)        { r.add("task_error") }
func (r *recorder) OnRoundStart(context.Context, *engine.TaskInfo, int)         { r.add("round") }
func (r *recorder) OnLLMCallStart(context.Context, *engine.TaskInfo, llms.Model, []llms.Message) {
	r.add("llm_start")
}
func (r *recorder) OnLLMCallEnd(context.Context, *engine.TaskInfo, llms.Model, *llms.ContentResponse) {
	r.add("llm_end")
}
func (r *recorder) OnToolNotFound(context.Context, *engine.TaskInfo, string) { r.add("not_found") }
func (r *recorder) OnToolStart(context.Context, tools.ITool, string)         { r.add("tool_start") }
func (r *recorder) OnToolEnd(context.Context, tools.ITool, string, string)   { r.add("tool_end") }
func (r *recorder) OnToolError(context.Context, tools.ITool, string, error)  { r.add("tool_error") }

func Test_Run_Callbacks(t *testing.T) {
	ctrl := gomock.NewController(t)
	fx := providertest.NewFixture().Add("svc", providertest.Echo("echo"), providertest.Fail("fail"))
	cat := openCatalogue(t, fx, "svc")

	m := newModel(ctrl)
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(toolCallResponse("c1", "echo", `{"text":"x"}`), nil).Times(1)
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(toolCallResponse("c2", "fail", `{}`), nil).Times(1)
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(toolCallResponse("c3", "missing", `{}`), nil).Times(1)
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(textResponse("done"), nil).Times(1)

	rec := &recorder{}
	_, err := engine.New(m, cat).Run(context.Background(), "go", engine.WithCallback(rec))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"task_start",
		"round", "llm_start", "llm_end", "tool_start", "tool_end",
		"round", "llm_start", "llm_end", "tool_start", "tool_error",
		"round", "llm_start", "llm_end", "not_found",
		"round", "llm_start", "llm_end",
		"task_end",
	}, rec.events)
}
