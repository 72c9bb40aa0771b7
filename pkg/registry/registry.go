package registry

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/joho/godotenv"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge", "registry")

var (
	// ErrConfigNotFound is returned when no registry document exists in any candidate location.
	ErrConfigNotFound = errors.New("provider registry not found")
	// ErrConfigParse is returned when the registry document exists but is malformed.
	ErrConfigParse = errors.New("provider registry malformed")
)

// NameSeparator joins provider and tool names when tools of several
// providers are offered together. A provider name may not contain it
// or end with its first character, so every joined name splits back uniquely.
const NameSeparator = "__"

// ValidName returns an error if the provider name is not usable.
func ValidName(name string) error {
	if strings.Contains(name, NameSeparator) || strings.HasSuffix(name, NameSeparator[:1]) {
		return errors.Newf("name must not contain %q or end with %q", NameSeparator, NameSeparator[:1])
	}
	return nil
}

// Transport identifies how a provider is reached.
type Transport string

const (
	// TransportStdio launches the provider as a subprocess speaking over stdio.
	TransportStdio Transport = "stdio"
	// TransportHTTP connects to a running provider over streamable HTTP.
	TransportHTTP Transport = "http"
)

// ProviderConfig identifies one tool provider.
type ProviderConfig struct {
	// Name is the registry key of the provider.
	Name string `json:"-" yaml:"-" toml:"-"`
	// Command is the executable launched for stdio providers.
	Command string `json:"command,omitempty" yaml:"command,omitempty" toml:"command,omitempty" validate:"required_without=URL"`
	// Args is the argument list of Command.
	Args []string `json:"args,omitempty" yaml:"args,omitempty" toml:"args,omitempty"`
	// Env specifies environment overrides for the subprocess.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty" toml:"env,omitempty"`
	// EnvFile is a dotenv file merged under Env,
	// relative paths are resolved against the registry document folder.
	EnvFile string `json:"envFile,omitempty" yaml:"envFile,omitempty" toml:"envFile,omitempty"`
	// URL is the streamable HTTP endpoint of a running provider.
	URL string `json:"url,omitempty" yaml:"url,omitempty" toml:"url,omitempty" validate:"omitempty,url"`
	// Headers are sent with every HTTP request to URL.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty" toml:"headers,omitempty"`
	// Description is an optional human readable description.
	Description string `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	// Disabled excludes the provider from discovery,
	// naming it explicitly fails with ErrProviderDisabled.
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty" toml:"disabled,omitempty"`

	baseDir string
}

// Transport returns the transport used to reach the provider.
func (p *ProviderConfig) Transport() Transport {
	if p.URL != "" && p.Command == "" {
		return TransportHTTP
	}
	return TransportStdio
}

// Environ returns the environment overrides as sorted KEY=VALUE pairs.
// Values from EnvFile are applied first and Env wins on conflict.
func (p *ProviderConfig) Environ() ([]string, error) {
	merged := map[string]string{}
	if p.EnvFile != "" {
		file := p.EnvFile
		if !filepath.IsAbs(file) && p.baseDir != "" {
			file = filepath.Join(p.baseDir, file)
		}
		vals, err := godotenv.Read(file)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to read env file for provider %q", p.Name)
		}
		for k, v := range vals {
			merged[k] = v
		}
	}
	for k, v := range p.Env {
		merged[k] = v
	}

	env := make([]string, 0, len(merged))
	for k, v := range merged {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env, nil
}

func (p *ProviderConfig) expand() {
	p.Command = os.ExpandEnv(p.Command)
	p.URL = os.ExpandEnv(p.URL)
	p.EnvFile = os.ExpandEnv(p.EnvFile)
	for i, a := range p.Args {
		p.Args[i] = os.ExpandEnv(a)
	}
	for k, v := range p.Env {
		p.Env[k] = os.ExpandEnv(v)
	}
	for k, v := range p.Headers {
		p.Headers[k] = os.ExpandEnv(v)
	}
}

// Registry is an ordered mapping from provider name to ProviderConfig,
// loaded from a single registry document.
type Registry struct {
	// Path is the location of the document the registry was loaded from.
	Path string
	// Format is the document format.
	Format Format
	// Fingerprint is the hash of the document content.
	Fingerprint uint64

	providers *orderedmap.OrderedMap[string, *ProviderConfig]
}

// New returns a registry with the providers in the given order.
// Providers with a duplicate name replace the earlier entry in place.
func New(list ...*ProviderConfig) *Registry {
	r := &Registry{
		providers: orderedmap.New[string, *ProviderConfig](),
	}
	for _, p := range list {
		r.providers.Set(p.Name, p)
	}
	return r
}

// Len returns the number of providers, including disabled ones.
func (r *Registry) Len() int {
	return r.providers.Len()
}

// Get returns the provider by name.
func (r *Registry) Get(name string) (*ProviderConfig, bool) {
	return r.providers.Get(name)
}

// Names returns all provider names in document order.
func (r *Registry) Names() []string {
	names := make([]string, 0, r.providers.Len())
	for pair := r.providers.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Enabled returns the names of enabled providers in document order.
func (r *Registry) Enabled() []string {
	var names []string
	for pair := r.providers.Oldest(); pair != nil; pair = pair.Next() {
		if !pair.Value.Disabled {
			names = append(names, pair.Key)
		}
	}
	return names
}

// Providers returns all providers in document order.
func (r *Registry) Providers() []*ProviderConfig {
	list := make([]*ProviderConfig, 0, r.providers.Len())
	for pair := r.providers.Oldest(); pair != nil; pair = pair.Next() {
		list = append(list, pair.Value)
	}
	return list
}
