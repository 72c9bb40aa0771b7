package llmfactory

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/config"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/llms/openai"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge/pkg", "llmfactory")

// Gateway is a model that can also list the models of its host.
type Gateway interface {
	llms.Model
	llms.ModelLister
}

// NewLLM is a wrapper for CreateLLM to allow for overriding the default implementation.
var NewLLM = CreateLLM

// Factory is the interface for creating model gateways.
type Factory interface {
	// DefaultModel returns the gateway for the configured default model.
	DefaultModel() (Gateway, error)
	// ModelByName returns the gateway for the first non-empty name,
	// or the default model when none is given.
	ModelByName(preferredModels ...string) (Gateway, error)
	// ListModels returns the models available on the host.
	ListModels(ctx context.Context) ([]string, error)
}

type factory struct {
	cfg    *config.Model
	byName map[string]Gateway
	lock   sync.Mutex
}

// New creates a new factory for the model endpoint.
func New(cfg *config.Model) Factory {
	return &factory{
		cfg:    cfg,
		byName: make(map[string]Gateway),
	}
}

func (f *factory) DefaultModel() (Gateway, error) {
	return f.ModelByName()
}

func (f *factory) ModelByName(preferredModels ...string) (Gateway, error) {
	name := values.StringsCoalesce(append(preferredModels, f.cfg.DefaultModel)...)

	f.lock.Lock()
	defer f.lock.Unlock()

	if m, ok := f.byName[name]; ok {
		return m, nil
	}

	m, err := NewLLM(f.cfg, name)
	if err != nil {
		return nil, err
	}
	f.byName[name] = m
	return m, nil
}

func (f *factory) ListModels(ctx context.Context) ([]string, error) {
	m, err := f.ModelByName()
	if err != nil {
		return nil, err
	}
	return m.ListModels(ctx)
}

// CreateLLM returns a gateway to the OpenAI-compatible endpoint of the model host.
// An empty model name is allowed for listing only.
func CreateLLM(cfg *config.Model, model string) (Gateway, error) {
	provider := llms.ProviderType(values.StringsCoalesce(cfg.Provider, string(llms.ProviderOllama)))
	opts := []openai.Option{
		openai.WithProvider(provider),
		openai.WithBaseURL(cfg.BaseURL()),
		openai.WithModel(model),
		openai.WithRequestTimeout(cfg.TimeoutDuration()),
		openai.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to create model %q", model)
	}

	logger.KV(xlog.DEBUG,
		"status", "created_llm",
		"provider", provider,
		"model", model,
		"base_url", llm.BaseURL(),
	)
	return llm, nil
}
