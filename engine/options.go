package engine

import (
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/x/values"
)

const (
	// DefaultMaxRounds is the round ceiling when none is configured.
	DefaultMaxRounds = 1000
	// DefaultMaxRetries is the number of attempts for a model call
	// that returned no choices.
	DefaultMaxRetries = 3
)

// Option is a function that can be used to modify the behavior of the engine Config.
type Option func(*Config)

// Config of a task run.
type Config struct {
	// Model is the model name sent with every call,
	// the default name of the LLM is used when empty.
	Model string
	// MaxRounds is the maximum number of model calls in a task.
	MaxRounds int
	// MaxTokens is the maximum number of tokens to generate per call.
	MaxTokens int
	// Temperature is the sampling temperature, between 0 and 1.
	Temperature float64
	// SystemPrompt is prepended to the conversation when not empty.
	SystemPrompt string
	// SequentialTools executes the tool calls of a round one by one.
	SequentialTools bool
	// MaxRetries is the number of attempts for a model call returning no choices.
	MaxRetries int
	// CallbackHandler receives loop events.
	CallbackHandler Callback
}

// NewConfig returns a Config with defaults.
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		MaxRounds:  DefaultMaxRounds,
		MaxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Apply returns a copy of the config with the options applied.
func (c *Config) Apply(opts ...Option) *Config {
	cfg := *c
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.MaxRounds = values.NumbersCoalesce(cfg.MaxRounds, DefaultMaxRounds)
	cfg.MaxRetries = values.NumbersCoalesce(cfg.MaxRetries, DefaultMaxRetries)
	return &cfg
}

// GetCallOptions returns the model call options.
func (c *Config) GetCallOptions(toolDefs []llms.Tool) []llms.CallOption {
	var opts []llms.CallOption
	if c.Model != "" {
		opts = append(opts, llms.WithModel(c.Model))
	}
	if c.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.MaxTokens))
	}
	if c.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(c.Temperature))
	}
	if len(toolDefs) > 0 {
		opts = append(opts,
			llms.WithTools(toolDefs),
			llms.WithToolChoice(string(llms.FunctionCallBehaviorAuto)),
		)
	}
	return opts
}

// WithModel sets the model name.
func WithModel(model string) Option {
	return func(o *Config) {
		if model != "" {
			o.Model = model
		}
	}
}

// WithMaxRounds sets the round ceiling, values below 1 are ignored.
func WithMaxRounds(n int) Option {
	return func(o *Config) {
		if n > 0 {
			o.MaxRounds = n
		}
	}
}

// WithMaxTokens sets the maximum number of tokens to generate per call.
func WithMaxTokens(n int) Option {
	return func(o *Config) {
		if n > 0 {
			o.MaxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Config) {
		o.Temperature = t
	}
}

// WithSystemPrompt sets the system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(o *Config) {
		o.SystemPrompt = prompt
	}
}

// WithSequentialTools disables concurrent execution of the tool calls of a round.
func WithSequentialTools(sequential bool) Option {
	return func(o *Config) {
		o.SequentialTools = sequential
	}
}

// WithMaxRetries sets the number of attempts for a model call returning no choices.
func WithMaxRetries(n int) Option {
	return func(o *Config) {
		o.MaxRetries = n
	}
}

// WithCallback sets the callback handler.
func WithCallback(callback Callback) Option {
	return func(o *Config) {
		o.CallbackHandler = callback
	}
}
