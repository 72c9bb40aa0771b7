package bridge

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/callbacks"
	"github.com/effective-security/mcpbridge/config"
	"github.com/effective-security/mcpbridge/engine"
	"github.com/effective-security/mcpbridge/modelcheck"
	"github.com/effective-security/mcpbridge/pkg/llmfactory"
	"github.com/effective-security/mcpbridge/pkg/metricskey"
	"github.com/effective-security/mcpbridge/pkg/prompts"
	"github.com/effective-security/mcpbridge/pkg/registry"
	"github.com/effective-security/mcpbridge/providers"
	"github.com/effective-security/mcpbridge/store"
	"github.com/effective-security/mcpbridge/tools"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge", "bridge")

// ErrNoEnabledProviders is returned when a task asks for all providers
// and the registry has none enabled.
var ErrNoEnabledProviders = errors.New("no enabled providers")

// Mode tags the entry point of a task in metrics and logs.
type Mode string

const (
	ModeOne  Mode = "one"
	ModeMany Mode = "many"
	ModeAll  Mode = "all"
)

// RegistryLoader returns a fresh registry snapshot.
type RegistryLoader func() (*registry.Registry, error)

// Bridge runs tasks with the providers of the registry.
// It holds no registry or session state between calls.
type Bridge struct {
	cfg       *config.Config
	factory   llmfactory.Factory
	manager   *providers.Manager
	validator *modelcheck.Validator
	loader    RegistryLoader
	callback  *callbacks.Fanout
}

// Option configures the Bridge.
type Option func(*Bridge)

// WithFactory sets the model factory.
func WithFactory(f llmfactory.Factory) Option {
	return func(b *Bridge) {
		b.factory = f
	}
}

// WithManager sets the provider session manager.
func WithManager(m *providers.Manager) Option {
	return func(b *Bridge) {
		b.manager = m
	}
}

// WithValidator sets the model validator.
func WithValidator(v *modelcheck.Validator) Option {
	return func(b *Bridge) {
		b.validator = v
	}
}

// WithRegistryLoader replaces the registry search.
func WithRegistryLoader(l RegistryLoader) Option {
	return func(b *Bridge) {
		b.loader = l
	}
}

// WithCallback adds a task observer.
func WithCallback(cb engine.Callback) Option {
	return func(b *Bridge) {
		b.callback.Add(cb)
	}
}

// New returns a Bridge for the host configuration.
// The model validation cache uses Redis when cfg.Cache.RedisURL is set.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Bridge, error) {
	b := &Bridge{
		cfg:      cfg,
		callback: callbacks.NewFanout(),
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.factory == nil {
		b.factory = llmfactory.New(&cfg.Model)
	}
	if b.manager == nil {
		b.manager = providers.NewManager()
	}
	if b.loader == nil {
		b.loader = func() (*registry.Registry, error) {
			l := registry.NewLocator(cfg.Registry.Path)
			l.AppName = cfg.Registry.AppName
			return l.Load()
		}
	}
	if b.validator == nil {
		ms := store.NewMemoryStore()
		if cfg.Cache.RedisURL != "" {
			var err error
			ms, err = store.NewRedisStoreFromURL(ctx, cfg.Cache.RedisURL, cfg.Cache.Prefix)
			if err != nil {
				return nil, err
			}
		}
		b.validator = modelcheck.NewValidator(b.factory, cfg.Model.Address(),
			modelcheck.WithStore(ms),
			modelcheck.WithTTL(cfg.Cache.TTLDuration()),
		)
	}
	return b, nil
}

// Config returns the host configuration.
func (b *Bridge) Config() *config.Config {
	return b.cfg
}

// RunWithOneProvider runs the task with a single provider.
// The provider is opened even if it is disabled in the registry,
// in which case the task fails with providers.ErrProviderDisabled.
func (b *Bridge) RunWithOneProvider(ctx context.Context, req *OneProviderRequest) (*Report, error) {
	if req.Provider == "" {
		return nil, errors.New("provider name is required")
	}
	return b.run(ctx, ModeOne, []string{req.Provider}, req.Task, &req.TaskOptions)
}

// RunWithManyProviders runs the task with the named providers.
// An empty list runs the task with every enabled provider.
func (b *Bridge) RunWithManyProviders(ctx context.Context, req *ManyProvidersRequest) (*Report, error) {
	if len(req.Providers) == 0 {
		return b.run(ctx, ModeAll, nil, req.Task, &req.TaskOptions)
	}
	return b.run(ctx, ModeMany, req.Providers, req.Task, &req.TaskOptions)
}

// RunWithAllDiscoveredProviders runs the task with every enabled provider.
func (b *Bridge) RunWithAllDiscoveredProviders(ctx context.Context, req *AllProvidersRequest) (*Report, error) {
	return b.run(ctx, ModeAll, nil, req.Task, &req.TaskOptions)
}

// ListProviders returns the enabled providers of a fresh registry snapshot,
// in document order.
func (b *Bridge) ListProviders(_ context.Context) (*ProvidersList, error) {
	reg, err := b.loader()
	if err != nil {
		return nil, err
	}
	res := &ProvidersList{
		Registry:  reg.Path,
		Providers: []*ProviderInfo{},
	}
	for _, name := range reg.Enabled() {
		p, _ := reg.Get(name)
		res.Providers = append(res.Providers, newProviderInfo(p))
	}
	return res, nil
}

// ListModels returns the models available on the model host.
func (b *Bridge) ListModels(ctx context.Context) ([]string, error) {
	return b.validator.Available(ctx)
}

func (b *Bridge) run(ctx context.Context, mode Mode, names []string, task string, opts *TaskOptions) (*Report, error) {
	if task == "" {
		return nil, errors.New("task is required")
	}
	started := time.Now()
	defer metricskey.PerfTaskRun.MeasureSince(started, string(mode))

	reg, err := b.loader()
	if err != nil {
		return nil, err
	}
	if mode == ModeAll {
		names = reg.Enabled()
		if len(names) == 0 {
			return nil, errors.WithMessagef(ErrNoEnabledProviders, "registry %s", reg.Path)
		}
	}

	// provider names are resolved before the model host is contacted
	group := b.manager.OpenMany(ctx, reg, names)
	defer func() {
		if cerr := group.Close(); cerr != nil {
			logger.ContextKV(ctx, xlog.WARNING, "status", "close_sessions", "err", cerr.Error())
		}
	}()

	if err = b.checkGroup(mode, group); err != nil {
		return nil, err
	}

	llm, err := b.selectModel(ctx, opts.Model)
	if err != nil {
		return nil, err
	}

	catalogue := tools.NewCatalogue(group.Sessions...)
	systemPrompt, err := b.systemPrompt(group, catalogue)
	if err != nil {
		return nil, err
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "task_started",
		"mode", mode,
		"providers", group.Names(),
		"failed", len(group.Failures),
		"tools", catalogue.Len(),
		"model", llm.GetName(),
	)

	eng := engine.New(llm, catalogue, engine.WithCallback(b.callback))
	res, err := eng.Run(ctx, task,
		engine.WithMaxRounds(values.NumbersCoalesce(opts.MaxRounds, b.cfg.Loop.MaxRounds)),
		engine.WithMaxTokens(values.NumbersCoalesce(opts.MaxTokens, b.cfg.Loop.MaxTokens)),
		engine.WithTemperature(b.cfg.Loop.Temperature),
		engine.WithSystemPrompt(systemPrompt),
		engine.WithSequentialTools(!b.cfg.Loop.Parallel()),
	)
	if err != nil {
		return nil, err
	}

	return &Report{
		Result:    res,
		Mode:      mode,
		Providers: group.Names(),
		Failures:  group.Failures,
	}, nil
}

// checkGroup applies the partial failure policy.
func (b *Bridge) checkGroup(mode Mode, group *providers.Group) error {
	if len(group.Failures) == 0 {
		return nil
	}
	if mode == ModeOne {
		return group.Failures[0]
	}
	if len(group.Sessions) == 0 {
		return errors.WithMessage(group.Err(), "no provider could be opened")
	}
	if b.cfg.Loop.PartialFailure == config.AllOrNothing {
		return errors.WithMessagef(group.Err(), "%d of %d providers failed to open",
			len(group.Failures), len(group.Failures)+len(group.Sessions))
	}
	return nil
}

// selectModel returns the gateway for the requested model.
// A requested model is validated against the host; without a request
// the configured default is used, or the first model available on the host.
func (b *Bridge) selectModel(ctx context.Context, model string) (llmfactory.Gateway, error) {
	if model != "" {
		if b.cfg.Loop.ShouldValidateModel() {
			if err := b.validator.Validate(ctx, model); err != nil {
				return nil, err
			}
		}
		return b.factory.ModelByName(model)
	}
	if b.cfg.Model.DefaultModel != "" {
		return b.factory.DefaultModel()
	}

	available, err := b.validator.Available(ctx)
	if err != nil {
		return nil, err
	}
	if len(available) == 0 {
		return nil, errors.WithMessagef(engine.ErrNoModel, "no models are available on %s", b.cfg.Model.Address())
	}
	logger.ContextKV(ctx, xlog.DEBUG, "status", "model_selected", "model", available[0])
	return b.factory.ModelByName(available[0])
}

func (b *Bridge) systemPrompt(group *providers.Group, catalogue *tools.Catalogue) (string, error) {
	data := &prompts.SystemPromptData{
		Namespaced:   catalogue.Namespaced(),
		Instructions: b.cfg.Loop.SystemPrompt,
	}
	byProvider := map[string][]string{}
	for _, t := range catalogue.List() {
		byProvider[t.Provider()] = append(byProvider[t.Provider()], t.Name())
	}
	for _, s := range group.Sessions {
		p := prompts.Provider{
			Name:  s.Provider,
			Tools: byProvider[s.Provider],
		}
		if s.Config != nil {
			p.Description = s.Config.Description
		}
		data.Providers = append(data.Providers, p)
	}
	return prompts.SystemPrompt(data)
}
