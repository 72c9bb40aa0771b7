package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/bridge"
	"github.com/effective-security/mcpbridge/pkg/llmutils"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

func newListCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the enabled providers of the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := a.bridge(cmd.Context())
			if err != nil {
				return a.fail(err)
			}
			list, err := b.ListProviders(cmd.Context())
			if err != nil {
				return a.fail(err)
			}
			return a.printProviders(list, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text, json or yaml")
	return cmd
}

func (a *app) printProviders(list *bridge.ProvidersList, output string) error {
	switch output {
	case "json":
		fmt.Fprintln(a.stdout, llmutils.ToJSONIndent(list))
	case "yaml":
		js, err := yaml.Marshal(list)
		if err != nil {
			return errors.WithStack(err)
		}
		fmt.Fprint(a.stdout, string(js))
	case "text", "":
		fmt.Fprintf(a.stdout, "Registry: %s\n", list.Registry)
		if len(list.Providers) == 0 {
			fmt.Fprintln(a.stdout, "No enabled providers.")
			return nil
		}
		w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tTRANSPORT\tTARGET\tDESCRIPTION")
		for _, p := range list.Providers {
			target := p.URL
			if target == "" {
				target = strings.TrimSpace(p.Command + " " + strings.Join(p.Args, " "))
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Name, p.Transport, target, p.Description)
		}
		return w.Flush()
	default:
		return errors.Errorf("unsupported output format: %s", output)
	}
	return nil
}
