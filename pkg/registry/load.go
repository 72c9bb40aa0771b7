package registry

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/metricskey"
	"github.com/effective-security/xlog"
	"github.com/go-playground/validator/v10"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"
)

// Format is the registry document format.
type Format string

const (
	// FormatJSON is the default registry format.
	FormatJSON Format = "json"
	// FormatYAML is a YAML registry.
	FormatYAML Format = "yaml"
	// FormatTOML is a TOML registry.
	FormatTOML Format = "toml"
)

// FormatFromPath returns the document format by the file extension,
// JSON is assumed for unknown extensions.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	default:
		return FormatJSON
	}
}

type providersMap = orderedmap.OrderedMap[string, *ProviderConfig]

// document is the registry file layout, `servers` is accepted as an alias.
type document struct {
	MCPServers *providersMap `json:"mcpServers" yaml:"mcpServers"`
	Servers    *providersMap `json:"servers" yaml:"servers"`
}

type tomlDocument struct {
	MCPServers map[string]*ProviderConfig `toml:"mcpServers"`
	Servers    map[string]*ProviderConfig `toml:"servers"`
}

var validate = validator.New()

// LoadFile reads and parses the registry document at path.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WithMessagef(ErrConfigNotFound, "%s", path)
		}
		return nil, errors.Wrapf(err, "unable to read provider registry %s", path)
	}
	return Parse(path, data)
}

// Parse parses the registry document content,
// path is used to select the format and to resolve relative env files.
func Parse(path string, data []byte) (*Registry, error) {
	format := FormatFromPath(path)

	var list []*ProviderConfig
	var err error
	switch format {
	case FormatTOML:
		list, err = parseTOML(data)
	case FormatYAML:
		list, err = parseOrdered(data, yaml.Unmarshal)
	default:
		list, err = parseOrdered(data, json.Unmarshal)
	}
	if err != nil {
		return nil, errors.WithMessagef(ErrConfigParse, "%s: %s", path, err.Error())
	}

	baseDir := filepath.Dir(path)
	for _, p := range list {
		if err = ValidName(p.Name); err != nil {
			return nil, errors.WithMessagef(ErrConfigParse, "%s: provider %q: %s", path, p.Name, err.Error())
		}
		p.baseDir = baseDir
		p.expand()
		if err = validate.Struct(p); err != nil {
			return nil, errors.WithMessagef(ErrConfigParse, "%s: provider %q: %s", path, p.Name, err.Error())
		}
	}

	r := New(list...)
	r.Path = path
	r.Format = format
	r.Fingerprint = xxhash.Sum64(data)

	metricskey.StatsRegistryLoads.IncrCounter(1, string(format))
	logger.KV(xlog.DEBUG,
		"status", "registry_loaded",
		"path", path,
		"format", format,
		"providers", r.Len(),
		"fingerprint", r.Fingerprint,
	)
	return r, nil
}

func parseOrdered(data []byte, unmarshal func([]byte, any) error) ([]*ProviderConfig, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("empty document")
	}

	doc := document{
		MCPServers: orderedmap.New[string, *ProviderConfig](),
		Servers:    orderedmap.New[string, *ProviderConfig](),
	}
	if err := unmarshal(data, &doc); err != nil {
		return nil, err
	}

	src := doc.MCPServers
	if src == nil || src.Len() == 0 {
		src = doc.Servers
	}
	if src == nil {
		return nil, nil
	}

	list := make([]*ProviderConfig, 0, src.Len())
	for pair := src.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value == nil {
			return nil, errors.Newf("provider %q has no parameters", pair.Key)
		}
		if pair.Key == "" {
			return nil, errors.New("provider name is empty")
		}
		pair.Value.Name = pair.Key
		list = append(list, pair.Value)
	}
	return list, nil
}

func parseTOML(data []byte) ([]*ProviderConfig, error) {
	var doc tomlDocument
	md, err := toml.Decode(string(data), &doc)
	if err != nil {
		return nil, err
	}

	section := "mcpServers"
	src := doc.MCPServers
	if len(src) == 0 {
		section = "servers"
		src = doc.Servers
	}

	// map order is lost, recover it from the document keys
	var list []*ProviderConfig
	seen := map[string]bool{}
	for _, key := range md.Keys() {
		if len(key) < 2 || key[0] != section || seen[key[1]] {
			continue
		}
		name := key[1]
		seen[name] = true
		p := src[name]
		if p == nil {
			return nil, errors.Newf("provider %q has no parameters", name)
		}
		p.Name = name
		list = append(list, p)
	}
	return list, nil
}
