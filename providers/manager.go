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

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge", "providers")

// DefaultOpenTimeout bounds initialization and tool listing.
const DefaultOpenTimeout = 30 * time.Second

// Manager opens provider sessions.
type Manager struct {
	dialer      Dialer
	openTimeout time.Duration
}

// Option configures the Manager.
type Option func(*Manager)

// WithDialer sets the dialer, MCPDialer is used by default.
func WithDialer(d Dialer) Option {
	return func(m *Manager) {
		m.dialer = d
	}
}

// WithOpenTimeout bounds initialization and tool listing of a single provider.
func WithOpenTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.openTimeout = d
	}
}

// NewManager returns a session manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		dialer:      &MCPDialer{},
		openTimeout: DefaultOpenTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open opens a session to the named provider:
// dial, initialize, and list tools.
// The transport is closed on every failure path.
// The returned error is a *ProviderError.
func (m *Manager) Open(ctx context.Context, reg *registry.Registry, name string) (*Session, error) {
	started := time.Now()

	sess, err := m.open(ctx, reg, name)
	if err != nil {
		metricskey.StatsSessionsFailed.IncrCounter(1, name, Reason(err))
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "session_open_failed",
			"provider", name,
			"err", err.Error(),
		)
		return nil, &ProviderError{Provider: name, Err: err}
	}

	metricskey.StatsSessionsOpened.IncrCounter(1, name)
	metricskey.PerfSessionOpen.MeasureSince(started, name)
	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "session_opened",
		"provider", name,
		"tools", len(sess.Tools),
		"elapsed", time.Since(started).String(),
	)
	return sess, nil
}

func (m *Manager) open(ctx context.Context, reg *registry.Registry, name string) (_ *Session, err error) {
	cfg, ok := reg.Get(name)
	if !ok {
		return nil, &NotFoundError{Requested: name, Available: reg.Names()}
	}
	if cfg.Disabled {
		return nil, errors.WithStack(ErrProviderDisabled)
	}

	client, err := m.dialer.Dial(ctx, cfg)
	if err != nil {
		return nil, connectError(err, "start transport")
	}

	sess := &Session{
		Provider: name,
		Config:   cfg,
		client:   client,
	}
	defer func() {
		if err != nil {
			_ = sess.Close()
		}
	}()

	octx := ctx
	if m.openTimeout > 0 {
		var cancel context.CancelFunc
		octx, cancel = context.WithTimeout(ctx, m.openTimeout)
		defer cancel()
	}

	sess.Server, err = client.Initialize(octx)
	if err != nil {
		return nil, connectError(err, "initialize")
	}

	sess.Tools, err = client.ListTools(octx)
	if err != nil {
		return nil, connectError(err, "list tools")
	}
	if len(sess.Tools) == 0 {
		return nil, errors.WithStack(ErrProviderNoTools)
	}
	for _, t := range sess.Tools {
		t.Provider = name
	}
	return sess, nil
}

// OpenMany opens sessions concurrently.
// A failing provider does not affect the others,
// the caller owns the returned group and must Close it.
// Duplicate names are opened once.
func (m *Manager) OpenMany(ctx context.Context, reg *registry.Registry, names []string) *Group {
	names = unique(names)

	type openResult struct {
		sess  *Session
		err   *ProviderError
		index int
	}

	results := make([]openResult, len(names))
	ch := make(chan openResult, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			sess, err := m.Open(ctx, reg, name)
			r := openResult{sess: sess, index: i}
			if err != nil {
				r.err = err.(*ProviderError)
			}
			ch <- r
		}(i, name)
	}
	wg.Wait()
	close(ch)

	for r := range ch {
		results[r.index] = r
	}

	g := &Group{}
	for _, r := range results {
		if r.err != nil {
			g.Failures = append(g.Failures, r.err)
		} else if r.sess != nil {
			g.Sessions = append(g.Sessions, r.sess)
		}
	}
	return g
}

func unique(names []string) []string {
	seen := make(map[string]bool, len(names))
	list := make([]string, 0, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		list = append(list, n)
	}
	return list
}
