package llmutils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/bububa/ljson"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/x/values"
	"gopkg.in/yaml.v3"
)

// ErrInvalidArguments is returned when tool arguments emitted by the model
// can not be decoded into a JSON object.
var ErrInvalidArguments = errors.New("invalid arguments")

// CleanJSON returns JSON by trimming prefixes and postfixes,
// as LLM can reply like `Here you go: {json}`
func CleanJSON(bs []byte) []byte {
	return trimPostfixAfterJSON(trimPrefixBeforeJSON(bs))
}

func trimPrefixBeforeJSON(bs []byte) []byte {
	startObject := bytes.IndexByte(bs, '{')
	startArray := bytes.IndexByte(bs, '[')

	var start int
	switch {
	case startObject == -1 && startArray == -1:
		return bs
	case startObject == -1:
		start = startArray
	case startArray == -1:
		start = startObject
	default:
		start = min(startObject, startArray)
	}
	return bs[start:]
}

func trimPostfixAfterJSON(bs []byte) []byte {
	endObject := bytes.LastIndexByte(bs, '}')
	endArray := bytes.LastIndexByte(bs, ']')

	var end int
	switch {
	case endObject == -1 && endArray == -1:
		return bs
	case endObject == -1:
		end = endArray
	case endArray == -1:
		end = endObject
	default:
		end = max(endObject, endArray)
	}
	return bs[:end+1]
}

// TrimBackticks removes ```json or ```
func TrimBackticks(text string) string {
	return string(BytesTrimBackticks([]byte(text)))
}

var backtick = []byte("```")

// BytesTrimBackticks removes ```json or ```
func BytesTrimBackticks(bs []byte) []byte {
	size := len(bs)
	startIndex := bytes.Index(bs, backtick)
	if startIndex == -1 {
		return bs
	}
	startIndex += len(backtick)

	for i := startIndex; i < size && bs[i] != '{' && bs[i] != '['; i++ {
		if bs[i] == '\n' {
			startIndex = i + 1
			break
		}
	}

	contentAfterStart := bs[startIndex:]
	endIndex := bytes.LastIndex(contentAfterStart, backtick)
	if endIndex == -1 {
		return contentAfterStart
	}
	return bytes.TrimSpace(contentAfterStart[:endIndex])
}

// ParseArguments decodes tool call arguments emitted by the model into a JSON object.
// Empty arguments produce an empty object. Strict JSON is tried first,
// then the arguments are cleaned and decoded leniently.
func ParseArguments(arguments string) (map[string]any, error) {
	args := map[string]any{}
	trimmed := strings.TrimSpace(arguments)
	if trimmed == "" || trimmed == "null" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(trimmed), &args); err == nil {
		return args, nil
	}

	cleaned := CleanJSON(BytesTrimBackticks([]byte(trimmed)))
	args = map[string]any{}
	if err := ljson.Unmarshal(cleaned, &args); err != nil {
		return nil, errors.WithMessagef(ErrInvalidArguments, "%s", err.Error())
	}
	return args, nil
}

// ToJSON returns JSON string of the value, or empty string on error
func ToJSON(val any) string {
	js, _ := json.Marshal(val)
	return string(js)
}

// ToJSONIndent returns indented JSON string of the value
func ToJSONIndent(val any) string {
	js, _ := json.MarshalIndent(val, "", "\t")
	return string(js)
}

// ToYAML returns YAML string of the value
func ToYAML(val any) string {
	js, _ := yaml.Marshal(val)
	return string(js)
}

// PrintMessages writes the messages with their roles.
func PrintMessages(w io.Writer, msgs []llms.Message) {
	for _, mc := range msgs {
		fmt.Fprintf(w, "%s: %s", strings.ToUpper(string(mc.Role)), mc.GetContent())
	}
}

// CountMessagesContentSize counts the size of the content in the messages
func CountMessagesContentSize(msgs []llms.Message) uint64 {
	var size uint64
	for _, mc := range msgs {
		size += uint64(len(mc.Role))
		for _, p := range mc.Parts {
			switch pp := p.(type) {
			case llms.TextContent:
				size += uint64(len(pp.Text))
			case llms.ToolCall:
				size += uint64(len(pp.ID))
				size += uint64(len(pp.Type))
				if pp.FunctionCall != nil {
					size += uint64(len(pp.FunctionCall.Name))
					size += uint64(len(pp.FunctionCall.Arguments))
				}
			case llms.ToolCallResponse:
				size += uint64(len(pp.ToolCallID))
				size += uint64(len(pp.Name))
				size += uint64(len(pp.Content))
			}
		}
	}
	return size
}

// CountResponseContentSize counts the size of the content in the content response
func CountResponseContentSize(resp *llms.ContentResponse) uint64 {
	var size uint64
	for _, choice := range resp.Choices {
		size += uint64(len(choice.Content))
		for _, toolCall := range choice.ToolCalls {
			size += uint64(len(toolCall.ID))
			size += uint64(len(toolCall.Type))
			if toolCall.FunctionCall != nil {
				size += uint64(len(toolCall.FunctionCall.Name))
				size += uint64(len(toolCall.FunctionCall.Arguments))
			}
		}
	}
	return size
}

// CountTokens returns token usage reported in the generation info.
// Usage is reported per response, so only the first choice is counted.
func CountTokens(resp *llms.ContentResponse) (in, out, total int64) {
	if len(resp.Choices) == 0 {
		return
	}
	ma := values.MapAny(resp.Choices[0].GenerationInfo)
	in = ma.Int64("PromptTokens")
	out = ma.Int64("CompletionTokens")
	total = ma.Int64("TotalTokens")
	return
}
