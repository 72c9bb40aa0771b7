// Package mcpserver exposes the task entry points as MCP tools.
package mcpserver

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/bridge"
	"github.com/effective-security/mcpbridge/pkg/llmutils"
	"github.com/effective-security/mcpbridge/pkg/schema"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge", "mcpserver")

// ServerName is reported to MCP clients.
const ServerName = "mcpbridge"

// Tool names.
const (
	ToolRunWithOneProvider            = "run_with_one_provider"
	ToolRunWithManyProviders          = "run_with_many_providers"
	ToolRunWithAllDiscoveredProviders = "run_with_all_discovered_providers"
	ToolListProviders                 = "list_providers"
	ToolListModels                    = "list_models"
)

// Runner runs tasks, it is implemented by bridge.Bridge.
type Runner interface {
	RunWithOneProvider(ctx context.Context, req *bridge.OneProviderRequest) (*bridge.Report, error)
	RunWithManyProviders(ctx context.Context, req *bridge.ManyProvidersRequest) (*bridge.Report, error)
	RunWithAllDiscoveredProviders(ctx context.Context, req *bridge.AllProvidersRequest) (*bridge.Report, error)
	ListProviders(ctx context.Context) (*bridge.ProvidersList, error)
	ListModels(ctx context.Context) ([]string, error)
}

var _ Runner = (*bridge.Bridge)(nil)

const instructions = `Runs tasks with a local model that calls the tools of the configured MCP providers.
Use list_providers to discover the providers, then run a task with one, several or all of them.`

// New returns an MCP server with the entry point tools.
func New(runner Runner, version string, opts ...server.ServerOption) (*server.MCPServer, error) {
	list, err := Tools(runner)
	if err != nil {
		return nil, err
	}
	opts = append([]server.ServerOption{
		server.WithToolCapabilities(false),
		server.WithInstructions(instructions),
		server.WithRecovery(),
	}, opts...)

	s := server.NewMCPServer(ServerName, version, opts...)
	s.AddTools(list...)
	return s, nil
}

// Serve serves the MCP server over stdio until the process is signalled.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

// Tools returns the entry point tools of the runner.
func Tools(runner Runner) ([]server.ServerTool, error) {
	var list []server.ServerTool
	for _, build := range []func(Runner) (server.ServerTool, error){
		runOneTool,
		runManyTool,
		runAllTool,
		listProvidersTool,
		listModelsTool,
	} {
		t, err := build(runner)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, nil
}

func runOneTool(r Runner) (server.ServerTool, error) {
	return newTool(ToolRunWithOneProvider,
		"Runs a task with the tools of a single provider. The model calls the tools until it has a final answer.",
		func(ctx context.Context, req *bridge.OneProviderRequest) (string, error) {
			rep, err := r.RunWithOneProvider(ctx, req)
			if err != nil {
				return "", err
			}
			return rep.Output(), nil
		})
}

func runManyTool(r Runner) (server.ServerTool, error) {
	return newTool(ToolRunWithManyProviders,
		"Runs a task with the tools of several providers. Tool names are prefixed with the provider name. "+
			"Providers that fail to open are reported after the answer.",
		func(ctx context.Context, req *bridge.ManyProvidersRequest) (string, error) {
			rep, err := r.RunWithManyProviders(ctx, req)
			if err != nil {
				return "", err
			}
			return rep.Output(), nil
		})
}

func runAllTool(r Runner) (server.ServerTool, error) {
	return newTool(ToolRunWithAllDiscoveredProviders,
		"Runs a task with the tools of every enabled provider in the registry.",
		func(ctx context.Context, req *bridge.AllProvidersRequest) (string, error) {
			rep, err := r.RunWithAllDiscoveredProviders(ctx, req)
			if err != nil {
				return "", err
			}
			return rep.Output(), nil
		})
}

func listProvidersTool(r Runner) (server.ServerTool, error) {
	return newTool(ToolListProviders,
		"Lists the enabled providers of the registry with their launch metadata.",
		func(ctx context.Context, _ *bridge.ListProvidersRequest) (string, error) {
			res, err := r.ListProviders(ctx)
			if err != nil {
				return "", err
			}
			return llmutils.ToJSONIndent(res), nil
		})
}

func listModelsTool(r Runner) (server.ServerTool, error) {
	return newTool(ToolListModels,
		"Lists the models available on the model host.",
		func(ctx context.Context, _ *bridge.ListModelsRequest) (string, error) {
			models, err := r.ListModels(ctx)
			if err != nil {
				return "", err
			}
			if len(models) == 0 {
				return "No models are available.", nil
			}
			return strings.Join(models, "\n"), nil
		})
}

// newTool binds the arguments to T and returns the text of fn,
// errors are returned as text starting with bridge.MarkerError.
func newTool[T any](name, description string, fn func(context.Context, *T) (string, error)) (server.ServerTool, error) {
	s, err := schema.For[T]()
	if err != nil {
		return server.ServerTool{}, err
	}
	js, err := s.JSON()
	if err != nil {
		return server.ServerTool{}, err
	}

	return server.ServerTool{
		Tool: mcp.NewToolWithRawSchema(name, description, js),
		Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			started := time.Now()
			in := new(T)
			if err := req.BindArguments(in); err != nil {
				return mcp.NewToolResultError(bridge.ErrorOutput(errors.Wrap(err, "invalid arguments"))), nil
			}

			out, err := fn(ctx, in)
			if err != nil {
				logger.ContextKV(ctx, xlog.WARNING,
					"status", "tool_failed",
					"tool", name,
					"err", err.Error(),
				)
				return mcp.NewToolResultError(bridge.ErrorOutput(err)), nil
			}

			logger.ContextKV(ctx, xlog.DEBUG,
				"status", "tool_completed",
				"tool", name,
				"elapsed", time.Since(started).String(),
				"output", slices.StringUpto(out, 256),
			)
			return mcp.NewToolResultText(out), nil
		},
	}, nil
}
