package openai

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/metricskey"
	"github.com/effective-security/xlog"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge/pkg/llms", "openai")

// ollamaToken is sent when a local host does not require a token.
const ollamaToken = "ollama" //nolint:gosec

// LLM is a chat model served by an OpenAI-compatible endpoint,
// including the local Ollama host.
type LLM struct {
	client   openai.Client
	model    string
	baseURL  string
	provider llms.ProviderType
}

var (
	_ llms.Model       = (*LLM)(nil)
	_ llms.ModelLister = (*LLM)(nil)
)

// New returns a new OpenAI-compatible LLM.
func New(opts ...Option) (*LLM, error) {
	o := &options{
		token:    os.Getenv(tokenEnvVarName),
		model:    os.Getenv(modelEnvVarName),
		baseURL:  os.Getenv(baseURLEnvVarName),
		provider: llms.ProviderOpenAI,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.baseURL == "" {
		if o.provider == llms.ProviderOllama {
			return nil, errors.New("base URL is required for the local model host")
		}
		o.baseURL = DefaultBaseURL
	}
	if o.token == "" {
		if o.provider != llms.ProviderOllama {
			return nil, errors.Newf("missing the API key, set it in the %s environment variable", tokenEnvVarName)
		}
		o.token = ollamaToken
	}

	ropts := []option.RequestOption{
		option.WithBaseURL(strings.TrimSuffix(o.baseURL, "/") + "/"),
		option.WithAPIKey(o.token),
		option.WithMaxRetries(o.maxRetries),
	}
	if o.httpClient != nil {
		ropts = append(ropts, option.WithHTTPClient(o.httpClient))
	}
	if o.requestTimeout > 0 {
		ropts = append(ropts, option.WithRequestTimeout(o.requestTimeout))
	}

	return &LLM{
		client:   openai.NewClient(ropts...),
		model:    o.model,
		baseURL:  o.baseURL,
		provider: o.provider,
	}, nil
}

// GetName returns the default model name.
func (o *LLM) GetName() string {
	return o.model
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return o.provider
}

// BaseURL returns the host endpoint.
func (o *LLM) BaseURL() string {
	return o.baseURL
}

// ListModels returns the model identifiers available on the host.
func (o *LLM) ListModels(ctx context.Context) ([]string, error) {
	page, err := o.client.Models.List(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	list := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		list = append(list, m.ID)
	}
	return list, nil
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.NewCallOptions(options...)

	model := opts.Model
	if model == "" {
		model = o.model
	}
	if model == "" {
		return nil, errors.New("model is not specified")
	}

	msgs, err := chatMessages(messages)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: msgs,
	}
	if opts.MaxTokens > 0 {
		if o.provider == llms.ProviderOllama {
			params.MaxTokens = openai.Int(int64(opts.MaxTokens))
		} else {
			params.MaxCompletionTokens = openai.Int(int64(opts.MaxTokens))
		}
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}
	for _, t := range opts.Tools {
		tool, err := toolFromTool(t)
		if err != nil {
			return nil, err
		}
		params.Tools = append(params.Tools, tool)
	}
	if len(params.Tools) > 0 {
		params.ToolChoice = toolChoice(opts.ToolChoice)
	}

	started := time.Now()
	completion, err := o.client.Chat.Completions.New(ctx, params)
	metricskey.PerfModelCall.MeasureSince(started, model)
	if err != nil {
		logger.ContextKV(ctx, xlog.DEBUG,
			"status", "chat_completion_failed",
			"model", model,
			"err", err.Error(),
		)
		return nil, mapError(err)
	}

	choices := make([]*llms.ContentChoice, len(completion.Choices))
	for i, c := range completion.Choices {
		choices[i] = &llms.ContentChoice{
			Content:    c.Message.Content,
			StopReason: c.FinishReason,
			GenerationInfo: map[string]any{
				"CompletionTokens": completion.Usage.CompletionTokens,
				"PromptTokens":     completion.Usage.PromptTokens,
				"TotalTokens":      completion.Usage.TotalTokens,
			},
		}
		for _, tc := range c.Message.ToolCalls {
			choices[i].ToolCalls = append(choices[i].ToolCalls, llms.ToolCall{
				ID:   tc.ID,
				Type: tc.Type,
				FunctionCall: &llms.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
	}
	return &llms.ContentResponse{Choices: choices}, nil
}

func chatMessages(messages []llms.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, mc := range messages {
		var text []string
		var toolCalls []openai.ChatCompletionMessageToolCallUnionParam
		var responses []llms.ToolCallResponse
		for _, part := range mc.Parts {
			switch p := part.(type) {
			case llms.TextContent:
				text = append(text, p.Text)
			case llms.ToolCall:
				tc := openai.ChatCompletionMessageFunctionToolCallParam{
					ID: p.ID,
				}
				if p.FunctionCall != nil {
					tc.Function = openai.ChatCompletionMessageFunctionToolCallFunctionParam{
						Name:      p.FunctionCall.Name,
						Arguments: p.FunctionCall.Arguments,
					}
				}
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &tc,
				})
			case llms.ToolCallResponse:
				responses = append(responses, p)
			default:
				return nil, errors.Errorf("content part %T not supported", part)
			}
		}
		content := strings.Join(text, "\n")

		switch mc.Role {
		case llms.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(content))
		case llms.RoleHuman:
			msgs = append(msgs, openai.UserMessage(content))
		case llms.RoleAI:
			if len(toolCalls) == 0 {
				msgs = append(msgs, openai.AssistantMessage(content))
				continue
			}
			msg := openai.ChatCompletionAssistantMessageParam{
				ToolCalls: toolCalls,
			}
			if content != "" {
				msg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(content),
				}
			}
			msgs = append(msgs, openai.ChatCompletionMessageParamUnion{OfAssistant: &msg})
		case llms.RoleTool:
			if len(responses) == 0 {
				return nil, errors.Errorf("expected tool call response for role %v", mc.Role)
			}
			for _, r := range responses {
				msgs = append(msgs, openai.ToolMessage(r.Content, r.ToolCallID))
			}
		default:
			return nil, errors.Errorf("role %v not supported", mc.Role)
		}
	}
	return msgs, nil
}

// toolFromTool converts an llms.Tool to the function tool parameter.
func toolFromTool(t llms.Tool) (openai.ChatCompletionToolUnionParam, error) {
	if t.Type != "function" || t.Function == nil {
		return openai.ChatCompletionToolUnionParam{}, errors.Errorf("tool type %v not supported", t.Type)
	}
	fn := openai.FunctionDefinitionParam{
		Name: t.Function.Name,
	}
	if t.Function.Description != "" {
		fn.Description = openai.String(t.Function.Description)
	}
	if t.Function.Parameters != nil {
		fn.Parameters = openai.FunctionParameters(t.Function.Parameters)
	}
	return openai.ChatCompletionToolUnionParam{
		OfFunction: &openai.ChatCompletionFunctionToolParam{
			Function: fn,
		},
	}, nil
}

func toolChoice(choice any) openai.ChatCompletionToolChoiceOptionUnionParam {
	switch c := choice.(type) {
	case string:
		if c != "" {
			return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String(c)}
		}
	case llms.FunctionCallBehavior:
		if c != "" {
			return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String(string(c))}
		}
	case llms.ToolChoice:
		if c.Function != nil {
			return namedToolChoice(c.Function.Name)
		}
	case *llms.ToolChoice:
		if c != nil && c.Function != nil {
			return namedToolChoice(c.Function.Name)
		}
	}
	return openai.ChatCompletionToolChoiceOptionUnionParam{
		OfAuto: openai.String(string(llms.FunctionCallBehaviorAuto)),
	}
}

func namedToolChoice(name string) openai.ChatCompletionToolChoiceOptionUnionParam {
	return openai.ChatCompletionToolChoiceOptionUnionParam{
		OfFunctionToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
			Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: name},
		},
	}
}

// mapError marks transport failures as llms.ErrModelUnreachable,
// API errors returned by the host are wrapped as is.
func mapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errors.WithStack(err)
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return errors.Wrapf(err, "model host returned status %d", apiErr.StatusCode)
	}
	return errors.Mark(errors.Wrap(err, "model request failed"), llms.ErrModelUnreachable)
}
