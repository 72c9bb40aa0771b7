package main

import (
	"context"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/bridge"
	"github.com/effective-security/mcpbridge/config"
	"github.com/effective-security/mcpbridge/providers"
	"github.com/effective-security/xlog"
	"github.com/spf13/cobra"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge", "cmd")

// Version is set at build time.
var Version = "dev"

type globalFlags struct {
	configFile string
	registry   string
	host       string
	logLevel   string
}

type app struct {
	flags  globalFlags
	stdout io.Writer
	stderr io.Writer
	cfg    *config.Config
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "mcpbridge",
		Short:         "Run tasks with a local model and the tools of MCP providers",
		Long:          `mcpbridge discovers MCP tool providers from the registry document and lets a local model call their tools until the task is done.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVarP(&a.flags.configFile, "config", "c", "", "host configuration file, YAML or JSON")
	pf.StringVar(&a.flags.registry, "registry", "", "registry document or folder, overrides the search")
	pf.StringVar(&a.flags.host, "host", "", "model host as host[:port] or URL, overrides "+config.EnvOllamaHost)
	pf.StringVar(&a.flags.logLevel, "log-level", "warning", "log level: error, warning, info, debug")

	root.AddCommand(
		newServeCmd(a),
		newRunCmd(a),
		newListCmd(a),
		newModelsCmd(a),
	)
	return root
}

func (a *app) init() error {
	level, err := parseLevel(a.flags.logLevel)
	if err != nil {
		return err
	}
	// stdout carries the MCP transport when serving
	xlog.SetFormatter(xlog.NewStringFormatter(a.stderr))
	xlog.SetGlobalLogLevel(level)

	cfg, err := config.Load(a.flags.configFile)
	if err != nil {
		return err
	}
	if a.flags.registry != "" {
		cfg.Registry.Path = a.flags.registry
	}
	if a.flags.host != "" {
		err = cfg.ApplyEnv(func(name string) string {
			if name == config.EnvOllamaHost {
				return a.flags.host
			}
			return ""
		})
		if err != nil {
			return err
		}
		if err = cfg.Validate(); err != nil {
			return err
		}
	}
	a.cfg = cfg

	logger.KV(xlog.DEBUG,
		"status", "config_loaded",
		"model_host", cfg.Model.Address(),
		"registry", cfg.Registry.Path,
		"max_rounds", cfg.Loop.MaxRounds,
		"partial_failure", cfg.Loop.PartialFailure,
	)
	return nil
}

func (a *app) bridge(ctx context.Context, opts ...bridge.Option) (*bridge.Bridge, error) {
	providers.Version = Version
	return bridge.New(ctx, a.cfg, opts...)
}

// fail prints the error with the error marker and returns it for the exit code.
func (a *app) fail(err error) error {
	_, _ = io.WriteString(a.stdout, bridge.ErrorOutput(err)+"\n")
	return err
}

func parseLevel(s string) (xlog.LogLevel, error) {
	switch strings.ToLower(s) {
	case "error":
		return xlog.ERROR, nil
	case "warning", "warn":
		return xlog.WARNING, nil
	case "info":
		return xlog.INFO, nil
	case "debug":
		return xlog.DEBUG, nil
	default:
		return xlog.WARNING, errors.Errorf("unsupported log level: %s", s)
	}
}
