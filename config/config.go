// Package config provides the host configuration: the model endpoint,
// the provider registry override, loop defaults and the validation cache.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/registry"
	"github.com/effective-security/x/configloader"
	"github.com/effective-security/x/values"
	"github.com/go-playground/validator/v10"
)

const (
	// EnvOllamaHost overrides the model endpoint, as `host`, `host:port` or a URL.
	EnvOllamaHost = "OLLAMA_HOST"

	// DefaultHost of the model endpoint.
	DefaultHost = "localhost"
	// DefaultPort of the model endpoint.
	DefaultPort = 11434
	// DefaultScheme of the model endpoint.
	DefaultScheme = "http"
	// DefaultTimeout of a model call.
	DefaultTimeout = 5 * time.Minute
	// DefaultMaxRounds is the round ceiling of a task.
	DefaultMaxRounds = 1000
	// DefaultCacheTTL is the lifetime of a model validation.
	DefaultCacheTTL = 60 * time.Second
	// DefaultCachePrefix of Redis keys.
	DefaultCachePrefix = "mcpbridge"
)

// PartialFailurePolicy decides what happens when some providers of a task fail to open.
type PartialFailurePolicy string

const (
	// BestEffort runs the task with the providers that opened
	// and reports the failures with the answer.
	BestEffort PartialFailurePolicy = "best_effort"
	// AllOrNothing fails the task if any provider failed to open.
	AllOrNothing PartialFailurePolicy = "all_or_nothing"
)

// Config of the host process.
type Config struct {
	Model    Model    `json:"model" yaml:"model"`
	Registry Registry `json:"registry" yaml:"registry"`
	Loop     Loop     `json:"loop" yaml:"loop"`
	Cache    Cache    `json:"cache" yaml:"cache"`
}

// Model specifies the model endpoint.
type Model struct {
	// Provider is the gateway type: OLLAMA or OPENAI.
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty" validate:"omitempty,oneof=OLLAMA OPENAI"`
	Host     string `json:"host,omitempty" yaml:"host,omitempty" validate:"required,hostname_rfc1123|ip"`
	Port     int    `json:"port,omitempty" yaml:"port,omitempty" validate:"gte=0,lte=65535"`
	Scheme   string `json:"scheme,omitempty" yaml:"scheme,omitempty" validate:"omitempty,oneof=http https"`
	APIKey   string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	// DefaultModel is used when a task does not name a model.
	DefaultModel string `json:"default_model,omitempty" yaml:"default_model,omitempty"`
	// Timeout of a model call, as a duration string.
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// MaxRetries of a failed model request.
	MaxRetries int `json:"max_retries,omitempty" yaml:"max_retries,omitempty" validate:"gte=0"`

	timeout time.Duration
}

// Registry specifies the provider registry lookup.
type Registry struct {
	// Path overrides the registry search.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
	// AppName is the per-user configuration directory name.
	AppName string `json:"app_name,omitempty" yaml:"app_name,omitempty"`
}

// Loop specifies the task defaults.
type Loop struct {
	MaxRounds      int                  `json:"max_rounds,omitempty" yaml:"max_rounds,omitempty" validate:"gte=0"`
	MaxTokens      int                  `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" validate:"gte=0"`
	Temperature    float64              `json:"temperature,omitempty" yaml:"temperature,omitempty" validate:"gte=0,lte=2"`
	PartialFailure PartialFailurePolicy `json:"partial_failure,omitempty" yaml:"partial_failure,omitempty" validate:"omitempty,oneof=best_effort all_or_nothing"`
	// ParallelTools executes the tool calls of a round concurrently, true by default.
	ParallelTools *bool  `json:"parallel_tools,omitempty" yaml:"parallel_tools,omitempty"`
	SystemPrompt  string `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	// ValidateModel checks that a requested model exists before the task starts, true by default.
	ValidateModel *bool `json:"validate_model,omitempty" yaml:"validate_model,omitempty"`
}

// Cache specifies the model validation cache.
type Cache struct {
	// TTL of a validation, as a duration string.
	TTL string `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	// RedisURL selects the Redis backend, the in-memory backend is used when empty.
	RedisURL string `json:"redis_url,omitempty" yaml:"redis_url,omitempty" validate:"omitempty,url"`
	Prefix   string `json:"prefix,omitempty" yaml:"prefix,omitempty"`

	ttl time.Duration
}

var validate = validator.New()

// Load returns the configuration from the file, with environment
// fallbacks and defaults applied. An empty file name returns the defaults.
func Load(file string) (*Config, error) {
	cfg := new(Config)
	if file != "" {
		if err := configloader.UnmarshalAndExpand(file, cfg); err != nil {
			return nil, errors.WithMessagef(err, "unable to load config %s", file)
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv applies the environment overrides.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvOllamaHost); v != "" {
		scheme, host, port, err := ParseHost(v)
		if err != nil {
			return errors.WithMessagef(err, "invalid %s", EnvOllamaHost)
		}
		c.Model.Scheme = values.StringsCoalesce(scheme, c.Model.Scheme)
		c.Model.Host = host
		c.Model.Port = values.NumbersCoalesce(port, c.Model.Port)
	}
	if v := getenv(registry.EnvConfigPath); v != "" {
		c.Registry.Path = v
	}
	return nil
}

// Validate applies the defaults and validates the configuration.
func (c *Config) Validate() error {
	c.Model.Provider = strings.ToUpper(values.StringsCoalesce(c.Model.Provider, "OLLAMA"))
	c.Model.Host = values.StringsCoalesce(c.Model.Host, DefaultHost)
	c.Model.Port = values.NumbersCoalesce(c.Model.Port, DefaultPort)
	c.Model.Scheme = strings.ToLower(values.StringsCoalesce(c.Model.Scheme, DefaultScheme))
	c.Registry.AppName = values.StringsCoalesce(c.Registry.AppName, registry.DefaultAppName)
	c.Loop.MaxRounds = values.NumbersCoalesce(c.Loop.MaxRounds, DefaultMaxRounds)
	c.Loop.PartialFailure = PartialFailurePolicy(values.StringsCoalesce(string(c.Loop.PartialFailure), string(BestEffort)))
	c.Cache.Prefix = values.StringsCoalesce(c.Cache.Prefix, DefaultCachePrefix)

	var err error
	if c.Model.timeout, err = parseDuration(c.Model.Timeout, DefaultTimeout); err != nil {
		return errors.WithMessagef(err, "invalid model.timeout")
	}
	if c.Cache.ttl, err = parseDuration(c.Cache.TTL, DefaultCacheTTL); err != nil {
		return errors.WithMessagef(err, "invalid cache.ttl")
	}

	if err = validate.Struct(c); err != nil {
		return errors.WithMessage(err, "invalid configuration")
	}
	return nil
}

// BaseURL returns the OpenAI-compatible base URL of the model endpoint.
func (m *Model) BaseURL() string {
	return fmt.Sprintf("%s://%s/v1", m.Scheme, m.Address())
}

// Address returns `host:port` of the model endpoint.
func (m *Model) Address() string {
	return net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
}

// TimeoutDuration returns the model call timeout.
func (m *Model) TimeoutDuration() time.Duration {
	if m.timeout > 0 {
		return m.timeout
	}
	return DefaultTimeout
}

// TTLDuration returns the lifetime of a cached validation.
func (c *Cache) TTLDuration() time.Duration {
	if c.ttl > 0 {
		return c.ttl
	}
	return DefaultCacheTTL
}

// Parallel returns true if the tool calls of a round run concurrently.
func (l *Loop) Parallel() bool {
	return l.ParallelTools == nil || *l.ParallelTools
}

// ShouldValidateModel returns true if a requested model is checked before a task.
func (l *Loop) ShouldValidateModel() bool {
	return l.ValidateModel == nil || *l.ValidateModel
}

// ParseHost parses a model host given as `host`, `host:port`, `:port` or a URL.
// Missing parts are returned empty.
func ParseHost(value string) (scheme, host string, port int, err error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", "", 0, errors.New("host is empty")
	}

	if strings.Contains(value, "://") {
		u, err := url.Parse(value)
		if err != nil {
			return "", "", 0, errors.Wrapf(err, "invalid URL %q", value)
		}
		scheme = u.Scheme
		value = u.Host
	}

	host = value
	if h, p, splitErr := net.SplitHostPort(value); splitErr == nil {
		host = h
		if port, err = strconv.Atoi(p); err != nil || port < 0 || port > 65535 {
			return "", "", 0, errors.Errorf("invalid port in %q", value)
		}
	}
	host = values.StringsCoalesce(strings.Trim(host, "[]"), DefaultHost)
	if host == "0.0.0.0" {
		host = DefaultHost
	}
	return scheme, host, port, nil
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	if d <= 0 {
		return 0, errors.Errorf("duration must be positive: %s", s)
	}
	return d, nil
}
