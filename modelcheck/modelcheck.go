package modelcheck

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/metricskey"
	"github.com/effective-security/mcpbridge/store"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge", "modelcheck")

// ErrModelNotFound is returned when the model is not available on the host.
var ErrModelNotFound = errors.New("model not found")

// NotFoundError carries the models available on the host.
type NotFoundError struct {
	Model     string
	Available []string
}

func (e *NotFoundError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("model %q not found, no models are available", e.Model)
	}
	return fmt.Sprintf("model %q not found, available: %s", e.Model, strings.Join(e.Available, ", "))
}

func (e *NotFoundError) Unwrap() error {
	return ErrModelNotFound
}

// Option configures the Validator.
type Option func(*Validator)

// WithStore sets the cache backend.
func WithStore(s store.ModelStore) Option {
	return func(v *Validator) {
		v.store = s
	}
}

// WithTTL sets the lifetime of cached validations.
func WithTTL(ttl time.Duration) Option {
	return func(v *Validator) {
		v.ttl = ttl
	}
}

// Validator checks model names against the listing endpoint of a host.
type Validator struct {
	lister llms.ModelLister
	host   string
	store  store.ModelStore
	ttl    time.Duration
}

// NewValidator returns a validator for the host, the in-memory store is used by default.
func NewValidator(lister llms.ModelLister, host string, opts ...Option) *Validator {
	v := &Validator{
		lister: lister,
		host:   host,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.store == nil {
		v.store = store.NewMemoryStore()
	}
	if v.ttl <= 0 {
		v.ttl = store.DefaultTTL
	}
	return v
}

// Validate returns nil if the model is available,
// or NotFoundError with the available models.
func (v *Validator) Validate(ctx context.Context, model string) error {
	if model == "" {
		return errors.New("model name is empty")
	}
	backend := v.store.Name()

	e, err := v.store.Get(ctx, v.host, model)
	if err != nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "cache_get_failed",
			"backend", backend,
			"err", err.Error(),
		)
	}
	if e != nil {
		metricskey.StatsModelCacheHits.IncrCounter(1, backend)
		if e.Exists {
			return nil
		}
		return errors.WithStack(&NotFoundError{Model: model, Available: e.Available})
	}
	metricskey.StatsModelCacheMisses.IncrCounter(1, backend)

	available, err := v.Available(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	exists := Match(available, model)
	entries := make([]*store.Entry, 0, len(available)+1)
	for _, name := range available {
		entries = append(entries, &store.Entry{Model: name, Exists: true, CheckedAt: now})
	}
	entry := &store.Entry{Model: model, Exists: exists, CheckedAt: now}
	if !exists {
		entry.Available = available
	}
	entries = append(entries, entry)

	if err = v.store.Put(ctx, v.host, v.ttl, entries...); err != nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "cache_put_failed",
			"backend", backend,
			"err", err.Error(),
		)
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "model_validated",
		"host", v.host,
		"model", model,
		"exists", exists,
		"available", len(available),
	)

	if !exists {
		return errors.WithStack(&NotFoundError{Model: model, Available: available})
	}
	return nil
}

// Available returns the sorted models of the host, bypassing the cache.
func (v *Validator) Available(ctx context.Context) ([]string, error) {
	list, err := v.lister.ListModels(ctx)
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to list models on %s", v.host)
	}
	list = slices.Clone(list)
	slices.Sort(list)
	return slices.Compact(list), nil
}

// Reset drops the cached validations of the host.
func (v *Validator) Reset(ctx context.Context) error {
	return v.store.Reset(ctx, v.host)
}

// Match returns true if the model is in the list.
// A name without a tag matches the `latest` tag.
func Match(available []string, model string) bool {
	if slices.Contains(available, model) {
		return true
	}
	return !strings.Contains(model, ":") && slices.Contains(available, model+":latest")
}
