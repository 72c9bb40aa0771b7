package providers

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/metricskey"
	"github.com/effective-security/mcpbridge/pkg/registry"
	"github.com/effective-security/xlog"
)

// Session is an open connection to one provider and its tool catalogue.
// A Session belongs to a single task.
type Session struct {
	// Provider is the registry name of the provider.
	Provider string
	// Config is the provider configuration the session was opened with.
	Config *registry.ProviderConfig
	// Server is reported by the provider during initialization.
	Server *ServerInfo
	// Tools is the catalogue in the order reported by the provider.
	Tools []*ToolDescriptor

	client    Client
	closeOnce sync.Once
	closeErr  error
}

// NewSession wraps an initialized client.
func NewSession(provider string, client Client, tools []*ToolDescriptor) *Session {
	return &Session{
		Provider: provider,
		Tools:    tools,
		client:   client,
	}
}

// CallTool invokes the tool by its provider name.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error) {
	started := time.Now()
	res, err := s.client.CallTool(ctx, name, args)
	metricskey.PerfToolCall.MeasureSince(started, s.Provider, name)
	if err != nil {
		return nil, errors.WithMessagef(err, "%s/%s", s.Provider, name)
	}
	return res, nil
}

// Close closes the transport, it is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.client.Close()
		logger.KV(xlog.DEBUG,
			"status", "session_closed",
			"provider", s.Provider,
			"err", s.closeErr,
		)
	})
	return s.closeErr
}

// Group is the outcome of opening several providers.
type Group struct {
	// Sessions are open sessions in the requested order.
	Sessions []*Session
	// Failures are providers that could not be opened, in the requested order.
	Failures []*ProviderError
}

// Names returns the providers with open sessions.
func (g *Group) Names() []string {
	names := make([]string, 0, len(g.Sessions))
	for _, s := range g.Sessions {
		names = append(names, s.Provider)
	}
	return names
}

// Err returns the combined failures, or nil.
func (g *Group) Err() error {
	var err error
	for _, f := range g.Failures {
		err = errors.CombineErrors(err, f)
	}
	return err
}

// Close closes all sessions of the group.
func (g *Group) Close() error {
	var err error
	for _, s := range g.Sessions {
		err = errors.CombineErrors(err, s.Close())
	}
	return err
}
