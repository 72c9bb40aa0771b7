package openai

import (
	"time"

	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/openai/openai-go/v3/option"
)

const (
	tokenEnvVarName   = "OPENAI_API_KEY"  //nolint:gosec
	modelEnvVarName   = "OPENAI_MODEL"    //nolint:gosec
	baseURLEnvVarName = "OPENAI_BASE_URL" //nolint:gosec
)

// DefaultBaseURL is the OpenAI API endpoint.
const DefaultBaseURL = "https://api.openai.com/v1"

type options struct {
	token          string
	model          string
	baseURL        string
	provider       llms.ProviderType
	httpClient     option.HTTPClient
	maxRetries     int
	requestTimeout time.Duration
}

// Option is a functional option for the OpenAI client.
type Option func(*options)

// WithToken passes the API token to the client. If not set, the token
// is read from the OPENAI_API_KEY environment variable.
func WithToken(token string) Option {
	return func(opts *options) {
		opts.token = token
	}
}

// WithModel passes the default model to the client. If not set, the model
// is read from the OPENAI_MODEL environment variable.
func WithModel(model string) Option {
	return func(opts *options) {
		opts.model = model
	}
}

// WithBaseURL passes the base url to the client. If not set, the base url
// is read from the OPENAI_BASE_URL environment variable,
// and DefaultBaseURL is used if the variable is not set.
func WithBaseURL(baseURL string) Option {
	return func(opts *options) {
		opts.baseURL = baseURL
	}
}

// WithProvider sets the provider type, ProviderOpenAI by default.
func WithProvider(provider llms.ProviderType) Option {
	return func(opts *options) {
		opts.provider = provider
	}
}

// WithHTTPClient allows setting a custom HTTP client.
func WithHTTPClient(client option.HTTPClient) Option {
	return func(opts *options) {
		opts.httpClient = client
	}
}

// WithMaxRetries sets the number of transport retries of the client.
func WithMaxRetries(retries int) Option {
	return func(opts *options) {
		opts.maxRetries = retries
	}
}

// WithRequestTimeout bounds every request to the host.
func WithRequestTimeout(d time.Duration) Option {
	return func(opts *options) {
		opts.requestTimeout = d
	}
}
