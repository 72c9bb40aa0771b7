package bridge

import (
	"sort"

	"github.com/effective-security/mcpbridge/pkg/registry"
)

// TaskOptions are the optional task parameters shared by all run requests.
type TaskOptions struct {
	MaxRounds int    `json:"max_rounds,omitempty" yaml:"max_rounds,omitempty" jsonschema:"description=Maximum number of model rounds before the task is stopped,minimum=1"`
	MaxTokens int    `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" jsonschema:"description=Maximum number of tokens generated per model call,minimum=1"`
	Model     string `json:"model,omitempty" yaml:"model,omitempty" jsonschema:"description=Model name on the model host; the configured default is used when empty"`
}

// OneProviderRequest runs a task with a single provider.
type OneProviderRequest struct {
	Provider string `json:"provider" yaml:"provider" jsonschema:"description=Name of the provider in the registry"`
	Task     string `json:"task" yaml:"task" jsonschema:"description=The task to complete in natural language"`
	TaskOptions
}

// ManyProvidersRequest runs a task with several providers.
type ManyProvidersRequest struct {
	Providers []string `json:"providers,omitempty" yaml:"providers,omitempty" jsonschema:"description=Names of the providers in the registry; all enabled providers are used when empty"`
	Task      string   `json:"task" yaml:"task" jsonschema:"description=The task to complete in natural language"`
	TaskOptions
}

// AllProvidersRequest runs a task with every enabled provider.
type AllProvidersRequest struct {
	Task string `json:"task" yaml:"task" jsonschema:"description=The task to complete in natural language"`
	TaskOptions
}

// ListProvidersRequest has no parameters.
type ListProvidersRequest struct{}

// ListModelsRequest has no parameters.
type ListModelsRequest struct{}

// ProviderInfo is the launch metadata of an enabled provider.
type ProviderInfo struct {
	Name        string   `json:"name" yaml:"name"`
	Transport   string   `json:"transport" yaml:"transport"`
	Command     string   `json:"command,omitempty" yaml:"command,omitempty"`
	Args        []string `json:"args,omitempty" yaml:"args,omitempty"`
	URL         string   `json:"url,omitempty" yaml:"url,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	// Env lists the names of the environment overrides, values are not reported.
	Env []string `json:"env,omitempty" yaml:"env,omitempty"`
}

// ProvidersList is the result of ListProviders.
type ProvidersList struct {
	// Registry is the path of the registry document.
	Registry  string          `json:"registry" yaml:"registry"`
	Providers []*ProviderInfo `json:"providers" yaml:"providers"`
}

func newProviderInfo(p *registry.ProviderConfig) *ProviderInfo {
	info := &ProviderInfo{
		Name:        p.Name,
		Transport:   string(p.Transport()),
		Command:     p.Command,
		Args:        p.Args,
		URL:         p.URL,
		Description: p.Description,
	}
	for k := range p.Env {
		info.Env = append(info.Env, k)
	}
	sort.Strings(info.Env)
	return info
}
