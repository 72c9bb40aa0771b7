// Package llms defines the provider-neutral conversation types exchanged with a
// chat model: messages made of text, tool calls and tool results, the tool
// definitions offered to the model, and the Model interface a gateway implements.
//
// The `openai` subpackage implements Model against any OpenAI-compatible
// chat-completions endpoint, which is how locally hosted models are served.
package llms
