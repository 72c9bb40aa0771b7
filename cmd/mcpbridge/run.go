package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/bridge"
	"github.com/effective-security/mcpbridge/callbacks"
	"github.com/spf13/cobra"
)

type runFlags struct {
	providers []string
	all       bool
	opts      bridge.TaskOptions
	verbose   bool
	journal   string
}

func newRunCmd(a *app) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run [flags] TASK...",
		Short: "Run a task with one, several or all providers",
		Example: `  mcpbridge run -p files "summarize README.md"
  mcpbridge run -p files -p notes "copy the TODO list to notes"
  mcpbridge run --all --max-rounds 20 "what changed today?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), f, strings.Join(args, " "))
		},
	}

	fl := cmd.Flags()
	fl.StringSliceVarP(&f.providers, "provider", "p", nil, "provider name, may be repeated")
	fl.BoolVar(&f.all, "all", false, "use every enabled provider")
	fl.IntVar(&f.opts.MaxRounds, "max-rounds", 0, "round ceiling, the configured value by default")
	fl.IntVar(&f.opts.MaxTokens, "max-tokens", 0, "maximum tokens per model call")
	fl.StringVarP(&f.opts.Model, "model", "m", "", "model name, the configured default by default")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "print the loop events to stderr")
	fl.StringVar(&f.journal, "journal", "", "write the task journal to the file")
	return cmd
}

func (a *app) run(ctx context.Context, f *runFlags, task string) error {
	if f.all && len(f.providers) > 0 {
		return errors.New("--all and --provider are mutually exclusive")
	}
	if !f.all && len(f.providers) == 0 {
		return errors.New("specify --provider or --all")
	}

	var opts []bridge.Option
	if f.verbose {
		opts = append(opts, bridge.WithCallback(callbacks.NewPrinter(a.stderr, callbacks.ModeVerbose)))
	}
	if f.journal != "" {
		opts = append(opts, bridge.WithCallback(callbacks.NewScratchpad(callbacks.ModeVerbose,
			func(_ context.Context, _ *callbacks.RunStats, journal []byte) {
				if err := os.WriteFile(f.journal, journal, 0o600); err != nil {
					fmt.Fprintf(a.stderr, "unable to write journal: %s\n", err.Error())
				}
			})))
	}

	b, err := a.bridge(ctx, opts...)
	if err != nil {
		return a.fail(err)
	}

	var rep *bridge.Report
	switch {
	case f.all:
		rep, err = b.RunWithAllDiscoveredProviders(ctx, &bridge.AllProvidersRequest{Task: task, TaskOptions: f.opts})
	case len(f.providers) == 1:
		rep, err = b.RunWithOneProvider(ctx, &bridge.OneProviderRequest{Provider: f.providers[0], Task: task, TaskOptions: f.opts})
	default:
		rep, err = b.RunWithManyProviders(ctx, &bridge.ManyProvidersRequest{Providers: f.providers, Task: task, TaskOptions: f.opts})
	}
	if err != nil {
		return a.fail(err)
	}

	fmt.Fprintln(a.stdout, rep.Output())
	if rep.MaxRoundsReached() {
		return errors.Newf("max rounds reached: %d", rep.MaxRounds)
	}
	return nil
}
