package providers

import (
	"context"

	"github.com/effective-security/mcpbridge/pkg/registry"
)

//go:generate mockgen -source=client.go -destination=../mocks/mockproviders/providers_mock.gen.go -package mockproviders

// ToolDescriptor describes a tool exposed by a provider.
type ToolDescriptor struct {
	// Provider is the registry name of the provider exposing the tool.
	Provider string `json:"provider" yaml:"provider"`
	// Name is the tool name as reported by the provider.
	Name string `json:"name" yaml:"name"`
	// Description is the human readable description.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// Parameters is the JSON schema of the tool arguments.
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// CallResult is the flattened outcome of a tool invocation.
type CallResult struct {
	Content string
	IsError bool
}

// ServerInfo is reported by the provider during initialization.
type ServerInfo struct {
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
}

// Client is a connection to a single provider.
type Client interface {
	// Initialize negotiates the protocol with the provider.
	Initialize(ctx context.Context) (*ServerInfo, error)
	// ListTools returns the complete tool catalogue.
	ListTools(ctx context.Context) ([]*ToolDescriptor, error)
	// CallTool invokes the tool with decoded arguments.
	CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error)
	// Close releases the transport and terminates a launched subprocess.
	Close() error
}

// Dialer establishes the transport to a provider.
// The context bounds the life of a launched subprocess.
type Dialer interface {
	Dial(ctx context.Context, cfg *registry.ProviderConfig) (Client, error)
}
