package tools

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/llmutils"
	"github.com/effective-security/mcpbridge/pkg/registry"
	"github.com/effective-security/mcpbridge/providers"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge", "tools")

// Separator joins the provider and tool names when several providers are active.
const Separator = registry.NameSeparator

// QualifiedName returns the name of the tool as seen by the model.
func QualifiedName(provider, tool string, namespaced bool) string {
	if !namespaced {
		return tool
	}
	return provider + Separator + tool
}

// SplitName splits a namespaced name at the first separator.
func SplitName(name string) (provider, tool string, ok bool) {
	return strings.Cut(name, Separator)
}

// Catalogue is the merged tool catalogue of the task sessions
// and the dispatch table from visible names to provider tools.
type Catalogue struct {
	namespaced bool
	tools      []IProviderTool
	byName     map[string]IProviderTool
}

// NewCatalogue merges the session catalogues.
// With more than one session every tool is exposed as `{provider}__{tool}`,
// otherwise the provider names are used as is.
// Duplicate visible names keep the first tool.
func NewCatalogue(sessions ...*providers.Session) *Catalogue {
	c := &Catalogue{
		namespaced: len(sessions) > 1,
		byName:     map[string]IProviderTool{},
	}
	for _, s := range sessions {
		for _, d := range s.Tools {
			t := &providerTool{
				name:    QualifiedName(s.Provider, d.Name, c.namespaced),
				desc:    d,
				session: s,
			}
			if _, exists := c.byName[t.name]; exists {
				logger.KV(xlog.WARNING,
					"status", "duplicate_tool",
					"provider", s.Provider,
					"tool", t.name,
				)
				continue
			}
			c.byName[t.name] = t
			c.tools = append(c.tools, t)
		}
	}
	return c
}

// Namespaced returns true if tool names are prefixed with the provider name.
func (c *Catalogue) Namespaced() bool {
	return c.namespaced
}

// Len returns the number of tools.
func (c *Catalogue) Len() int {
	return len(c.tools)
}

// Names returns visible tool names in catalogue order.
func (c *Catalogue) Names() []string {
	names := make([]string, 0, len(c.tools))
	for _, t := range c.tools {
		names = append(names, t.Name())
	}
	return names
}

// List returns the tools in catalogue order.
func (c *Catalogue) List() []IProviderTool {
	return c.tools
}

// Lookup returns the tool by its visible name.
func (c *Catalogue) Lookup(name string) (IProviderTool, bool) {
	t, ok := c.byName[name]
	return t, ok
}

// Definitions returns the function-calling schemas of all tools.
// Parameter schemas are passed through as supplied by the provider.
func (c *Catalogue) Definitions() []llms.Tool {
	list := make([]llms.Tool, 0, len(c.tools))
	for _, t := range c.tools {
		list = append(list, Definition(t))
	}
	return list
}

// Definition returns the function-calling schema of the tool.
func Definition(t ITool) llms.Tool {
	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		},
	}
}

type providerTool struct {
	name    string
	desc    *providers.ToolDescriptor
	session *providers.Session
}

var _ IProviderTool = (*providerTool)(nil)

func (t *providerTool) Name() string {
	return t.name
}

func (t *providerTool) Description() string {
	return t.desc.Description
}

func (t *providerTool) Parameters() map[string]any {
	return t.desc.Parameters
}

func (t *providerTool) Provider() string {
	return t.session.Provider
}

func (t *providerTool) ToolName() string {
	return t.desc.Name
}

// Call decodes the model arguments and invokes the provider tool.
// A result flagged as error by the provider is returned as ErrToolFailed.
func (t *providerTool) Call(ctx context.Context, input string) (string, error) {
	args, err := llmutils.ParseArguments(input)
	if err != nil {
		return "", err
	}

	res, err := t.session.CallTool(ctx, t.desc.Name, args)
	if err != nil {
		return "", err
	}
	if res.IsError {
		return "", errors.WithMessage(ErrToolFailed, res.Content)
	}
	return res.Content, nil
}
