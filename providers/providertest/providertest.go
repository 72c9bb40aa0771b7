// Package providertest provides in-process tool providers for tests.
package providertest

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/effective-security/mcpbridge/pkg/registry"
	"github.com/effective-security/mcpbridge/providers"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Calls counts tool invocations across all test servers.
var Calls atomic.Int64

// NewServer returns a server with the given tools.
func NewServer(name string, tools ...server.ServerTool) *server.MCPServer {
	s := server.NewMCPServer(name, "1.0.0", server.WithToolCapabilities(true))
	if len(tools) > 0 {
		s.AddTools(tools...)
	}
	return s
}

// Echo returns a tool that replies with its `text` argument,
// prefixed with the tool name.
func Echo(name string) server.ServerTool {
	return server.ServerTool{
		Tool: mcp.NewTool(name,
			mcp.WithDescription("Echoes the text back"),
			mcp.WithString("text", mcp.Required(), mcp.Description("text to echo")),
		),
		Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			Calls.Add(1)
			return mcp.NewToolResultText(fmt.Sprintf("%s: %s", name, req.GetString("text", ""))), nil
		},
	}
}

// Add returns a tool that sums `a` and `b`.
func Add(name string) server.ServerTool {
	return server.ServerTool{
		Tool: mcp.NewTool(name,
			mcp.WithDescription("Adds two numbers"),
			mcp.WithNumber("a", mcp.Required()),
			mcp.WithNumber("b", mcp.Required()),
		),
		Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			Calls.Add(1)
			a, err := req.RequireFloat("a")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			b, err := req.RequireFloat("b")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText(fmt.Sprintf("%g", a+b)), nil
		},
	}
}

// Fail returns a tool that always reports an error result.
func Fail(name string) server.ServerTool {
	return server.ServerTool{
		Tool: mcp.NewTool(name, mcp.WithDescription("Always fails")),
		Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			Calls.Add(1)
			return mcp.NewToolResultError("tool is broken"), nil
		},
	}
}

// Upper returns a tool that upper-cases its `text` argument.
func Upper(name string) server.ServerTool {
	return server.ServerTool{
		Tool: mcp.NewTool(name,
			mcp.WithDescription("Converts text to upper case"),
			mcp.WithString("text", mcp.Required()),
		),
		Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			Calls.Add(1)
			return mcp.NewToolResultText(strings.ToUpper(req.GetString("text", ""))), nil
		},
	}
}

// Fixture is a registry with in-process servers for each provider.
type Fixture struct {
	Registry *registry.Registry
	Servers  map[string]*server.MCPServer
}

// NewFixture returns an empty fixture.
func NewFixture() *Fixture {
	return &Fixture{
		Registry: registry.New(),
		Servers:  map[string]*server.MCPServer{},
	}
}

// Add registers an enabled in-process provider.
func (f *Fixture) Add(name string, tools ...server.ServerTool) *Fixture {
	return f.add(name, false, tools...)
}

// AddDisabled registers a disabled in-process provider.
func (f *Fixture) AddDisabled(name string, tools ...server.ServerTool) *Fixture {
	return f.add(name, true, tools...)
}

// AddBroken registers a provider whose command does not exist.
func (f *Fixture) AddBroken(name string) *Fixture {
	list := append(f.Registry.Providers(), &registry.ProviderConfig{
		Name:    name,
		Command: "/nonexistent/mcpbridge-provider-" + name,
	})
	f.Registry = registry.New(list...)
	return f
}

func (f *Fixture) add(name string, disabled bool, tools ...server.ServerTool) *Fixture {
	list := append(f.Registry.Providers(), &registry.ProviderConfig{
		Name:     name,
		Command:  "in-process",
		Disabled: disabled,
	})
	f.Registry = registry.New(list...)
	f.Servers[name] = NewServer(name, tools...)
	return f
}

// Dialer returns a dialer serving the fixture providers in-process.
func (f *Fixture) Dialer() *providers.MCPDialer {
	return &providers.MCPDialer{InProcess: f.Servers}
}

// Manager returns a session manager for the fixture.
func (f *Fixture) Manager() *providers.Manager {
	return providers.NewManager(providers.WithDialer(f.Dialer()))
}
