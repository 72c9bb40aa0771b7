package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newModelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models available on the model host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := a.bridge(cmd.Context())
			if err != nil {
				return a.fail(err)
			}
			models, err := b.ListModels(cmd.Context())
			if err != nil {
				return a.fail(err)
			}
			for _, m := range models {
				fmt.Fprintln(a.stdout, m)
			}
			return nil
		},
	}
}
