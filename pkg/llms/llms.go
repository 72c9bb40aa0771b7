package llms

import (
	"context"

	"github.com/cockroachdb/errors"
)

// ErrModelUnreachable is returned when the model host cannot be reached.
var ErrModelUnreachable = errors.New("model host unreachable")

// ProviderType is the type of provider.
type ProviderType string

const (
	// ProviderOpenAI is an OpenAI-compatible hosted endpoint.
	ProviderOpenAI ProviderType = "OPENAI"
	// ProviderOllama is a locally hosted model server with an OpenAI-compatible API.
	ProviderOllama ProviderType = "OLLAMA"
)

// Model is an interface chat models implement.
type Model interface {
	// GetName returns the model name used for requests.
	GetName() string
	// GetProviderType returns the type of provider.
	GetProviderType() ProviderType
	// GenerateContent sends the conversation to the model and returns
	// either the final content or the tool calls requested by the model.
	GenerateContent(ctx context.Context, messages []Message, options ...CallOption) (*ContentResponse, error)
}

// ModelLister is implemented by hosts that can enumerate available models.
type ModelLister interface {
	// ListModels returns identifiers of the models currently available on the host.
	ListModels(ctx context.Context) ([]string, error)
}

// Capability is a bitmask indicating supported features of an LLM provider.
type Capability uint64

const (
	// CapabilityText is basic text or chat generation
	CapabilityText Capability = 1 << iota
	// CapabilityFunctionCalling is tool calling
	CapabilityFunctionCalling
	// CapabilityMultiToolCalling is more than one tool call per response
	CapabilityMultiToolCalling
	// CapabilitySelfHosted is an open weight or self-hosted model
	CapabilitySelfHosted
	// CapabilitySystemPrompt is system prompt support
	CapabilitySystemPrompt
	// CapabilityModelListing is support for the models listing endpoint
	CapabilityModelListing
)

var providerCapabilities = map[ProviderType]Capability{
	ProviderOpenAI: CapabilityText |
		CapabilityFunctionCalling |
		CapabilityMultiToolCalling |
		CapabilitySystemPrompt |
		CapabilityModelListing,

	ProviderOllama: CapabilityText |
		CapabilityFunctionCalling |
		CapabilityMultiToolCalling |
		CapabilitySelfHosted |
		CapabilitySystemPrompt |
		CapabilityModelListing,
}

// ProviderCapabilities returns the capabilities of the provider type
func ProviderCapabilities(pt ProviderType) Capability {
	return providerCapabilities[pt]
}

// Supports returns true if the provider type supports the capability
func (p ProviderType) Supports(cap Capability) bool {
	return ProviderCapabilities(p)&cap != 0
}
