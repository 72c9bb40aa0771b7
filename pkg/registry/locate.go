package registry

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
)

const (
	// EnvConfigPath is the environment variable naming the registry document explicitly.
	EnvConfigPath = "MCP_CONFIG_PATH"
	// DefaultAppName is the folder name under the per-user configuration directory.
	DefaultAppName = "mcpbridge"
)

// FileNames lists the registry document names searched in every candidate folder,
// in priority order.
var FileNames = []string{
	"mcp-config.json",
	"mcp-config.yaml",
	"mcp-config.yml",
	"mcp-config.toml",
}

// Locator searches the candidate locations for the registry document.
// The zero value searches the default locations.
type Locator struct {
	// OverridePath names the registry document, or a folder containing it.
	// When empty, EnvConfigPath is consulted.
	OverridePath string
	// AppName is the folder under the per-user configuration directory.
	AppName string

	// Getenv, Getwd, UserHomeDir, UserConfigDir and Stat
	// default to the os package functions.
	Getenv        func(string) string
	Getwd         func() (string, error)
	UserHomeDir   func() (string, error)
	UserConfigDir func() (string, error)
	Stat          func(string) (os.FileInfo, error)
}

// NewLocator returns a Locator with an optional override path.
func NewLocator(overridePath string) *Locator {
	return &Locator{OverridePath: overridePath}
}

// Load locates the registry document and parses it.
// It fails with ErrConfigNotFound when no candidate exists,
// and ErrConfigParse when the document is malformed.
func (l *Locator) Load() (*Registry, error) {
	path, err := l.Locate()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// Locate returns the path of the first existing registry document.
func (l *Locator) Locate() (string, error) {
	candidates := l.Candidates()
	for _, path := range candidates {
		fi, err := l.stat(path)
		if err == nil && !fi.IsDir() {
			logger.KV(xlog.DEBUG, "status", "registry_located", "path", path)
			return path, nil
		}
	}
	return "", errors.WithMessagef(ErrConfigNotFound, "searched: %v", candidates)
}

// Candidates returns the candidate document paths in priority order:
// the explicit override, the per-user application folder, the working folder,
// the home folder, and the parent of the working folder.
func (l *Locator) Candidates() []string {
	var list []string
	seen := map[string]bool{}
	add := func(path string) {
		if path == "" || seen[path] {
			return
		}
		seen[path] = true
		list = append(list, path)
	}
	addDir := func(dir string) {
		if dir == "" {
			return
		}
		for _, name := range FileNames {
			add(filepath.Join(dir, name))
		}
	}

	if override := l.override(); override != "" {
		if fi, err := l.stat(override); err == nil && fi.IsDir() {
			addDir(override)
		} else {
			add(override)
		}
	}

	if dir, err := l.userConfigDir(); err == nil && dir != "" {
		appName := l.AppName
		if appName == "" {
			appName = DefaultAppName
		}
		addDir(filepath.Join(dir, appName))
	}

	cwd, _ := l.getwd()
	addDir(cwd)

	if home, err := l.userHomeDir(); err == nil {
		addDir(home)
	}

	if cwd != "" {
		if parent := filepath.Dir(cwd); parent != cwd {
			addDir(parent)
		}
	}
	return list
}

func (l *Locator) override() string {
	if l.OverridePath != "" {
		return l.OverridePath
	}
	if l.Getenv != nil {
		return l.Getenv(EnvConfigPath)
	}
	return os.Getenv(EnvConfigPath)
}

func (l *Locator) stat(path string) (os.FileInfo, error) {
	if l.Stat != nil {
		return l.Stat(path)
	}
	return os.Stat(path)
}

func (l *Locator) getwd() (string, error) {
	if l.Getwd != nil {
		return l.Getwd()
	}
	return os.Getwd()
}

func (l *Locator) userHomeDir() (string, error) {
	if l.UserHomeDir != nil {
		return l.UserHomeDir()
	}
	return os.UserHomeDir()
}

func (l *Locator) userConfigDir() (string, error) {
	if l.UserConfigDir != nil {
		return l.UserConfigDir()
	}
	return os.UserConfigDir()
}

// Load locates and parses the registry using the default locations
// and an optional override path.
func Load(overridePath string) (*Registry, error) {
	return NewLocator(overridePath).Load()
}
