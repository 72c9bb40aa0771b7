package providers

import (
	"bufio"
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/registry"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ClientName is reported to providers during initialization.
const ClientName = "mcpbridge"

// Version is reported to providers during initialization.
var Version = "0.1.0"

// MCPDialer connects to providers with the mcp-go client.
// Stdio providers are launched as subprocesses, URL providers use streamable HTTP.
type MCPDialer struct {
	// InProcess maps provider names to servers hosted in this process,
	// such providers are served without a transport.
	InProcess map[string]*server.MCPServer
	// CommandFunc optionally overrides how stdio subprocesses are created.
	CommandFunc transport.CommandFunc
}

var _ Dialer = (*MCPDialer)(nil)

// Dial creates and starts an mcp-go client for the provider.
func (d *MCPDialer) Dial(ctx context.Context, cfg *registry.ProviderConfig) (Client, error) {
	var (
		c   *client.Client
		err error
	)

	if srv, ok := d.InProcess[cfg.Name]; ok {
		c, err = client.NewInProcessClient(srv)
		if err != nil {
			return nil, errors.WithStack(err)
		}
	} else {
		switch cfg.Transport() {
		case registry.TransportHTTP:
			var opts []transport.StreamableHTTPCOption
			if len(cfg.Headers) > 0 {
				opts = append(opts, transport.WithHTTPHeaders(cfg.Headers))
			}
			c, err = client.NewStreamableHttpClient(cfg.URL, opts...)
			if err != nil {
				return nil, errors.WithStack(err)
			}
		default:
			env, err := cfg.Environ()
			if err != nil {
				return nil, err
			}
			var opts []transport.StdioOption
			if d.CommandFunc != nil {
				opts = append(opts, transport.WithCommandFunc(d.CommandFunc))
			}
			c = client.NewClient(transport.NewStdioWithOptions(cfg.Command, env, cfg.Args, opts...))
		}
	}

	if err = c.Start(ctx); err != nil {
		_ = c.Close()
		return nil, errors.WithStack(err)
	}

	mc := &mcpClient{
		provider: cfg.Name,
		c:        c,
	}
	if stderr, ok := client.GetStderr(c); ok {
		mc.wg.Add(1)
		go func() {
			defer mc.wg.Done()
			scanner := bufio.NewScanner(stderr)
			for scanner.Scan() {
				logger.KV(xlog.DEBUG,
					"provider", cfg.Name,
					"stderr", slices.StringUpto(scanner.Text(), 256),
				)
			}
		}()
	}
	return mc, nil
}

type mcpClient struct {
	provider string
	c        *client.Client
	wg       sync.WaitGroup
}

func (m *mcpClient) Initialize(ctx context.Context) (*ServerInfo, error) {
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{
		Name:    ClientName,
		Version: Version,
	}

	res, err := m.c.Initialize(ctx, req)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &ServerInfo{
		Name:    res.ServerInfo.Name,
		Version: res.ServerInfo.Version,
	}, nil
}

func (m *mcpClient) ListTools(ctx context.Context) ([]*ToolDescriptor, error) {
	res, err := m.c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	list := make([]*ToolDescriptor, 0, len(res.Tools))
	for _, t := range res.Tools {
		params, err := InputSchema(t)
		if err != nil {
			return nil, errors.WithMessagef(err, "invalid schema for tool %q", t.Name)
		}
		list = append(list, &ToolDescriptor{
			Provider:    m.provider,
			Name:        t.Name,
			Description: t.Description,
			Parameters:  params,
		})
	}
	return list, nil
}

func (m *mcpClient) CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := m.c.CallTool(ctx, req)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return FlattenResult(res), nil
}

func (m *mcpClient) Close() error {
	err := m.c.Close()
	m.wg.Wait()
	return err
}

// InputSchema returns the tool input schema as a generic JSON object.
func InputSchema(t mcp.Tool) (map[string]any, error) {
	var raw []byte
	var err error
	if len(t.RawInputSchema) > 0 {
		raw = t.RawInputSchema
	} else {
		raw, err = json.Marshal(t.InputSchema)
		if err != nil {
			return nil, errors.WithStack(err)
		}
	}

	schema := map[string]any{}
	if err = json.Unmarshal(raw, &schema); err != nil {
		return nil, errors.WithStack(err)
	}
	if _, ok := schema["type"]; !ok || schema["type"] == "" {
		schema["type"] = "object"
	}
	return schema, nil
}

// FlattenResult joins the result content into a single string.
// Text parts are joined with new lines, other parts are encoded as JSON.
func FlattenResult(res *mcp.CallToolResult) *CallResult {
	if res == nil {
		return &CallResult{}
	}

	parts := make([]string, 0, len(res.Content))
	for _, content := range res.Content {
		switch c := content.(type) {
		case mcp.TextContent:
			parts = append(parts, c.Text)
		case *mcp.TextContent:
			parts = append(parts, c.Text)
		default:
			js, err := json.Marshal(content)
			if err == nil {
				parts = append(parts, string(js))
			}
		}
	}
	if len(parts) == 0 && res.StructuredContent != nil {
		if js, err := json.Marshal(res.StructuredContent); err == nil {
			parts = append(parts, string(js))
		}
	}

	return &CallResult{
		Content: strings.Join(parts, "\n"),
		IsError: res.IsError,
	}
}
