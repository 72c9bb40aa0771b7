package main

import (
	"context"

	"github.com/effective-security/mcpbridge/bridge"
	"github.com/effective-security/mcpbridge/callbacks"
	"github.com/effective-security/mcpbridge/mcpserver"
	"github.com/effective-security/xlog"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the task entry points as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pad := callbacks.NewScratchpad(callbacks.ModeDefault, logFinished)
			b, err := a.bridge(cmd.Context(),
				bridge.WithCallback(callbacks.NewPackageLogger(logger)),
				bridge.WithCallback(pad),
			)
			if err != nil {
				return err
			}

			s, err := mcpserver.New(b, Version)
			if err != nil {
				return err
			}
			logger.KV(xlog.INFO, "status", "serving", "transport", "stdio", "version", Version)
			return mcpserver.Serve(s)
		},
	}
}

func logFinished(ctx context.Context, stats *callbacks.RunStats, _ []byte) {
	logger.ContextKV(ctx, xlog.INFO,
		"status", "task_finished",
		"task_id", stats.TaskID,
		"model", stats.Model,
		"result", stats.Status,
		"rounds", stats.Rounds,
		"tool_calls", stats.ToolsCalls,
		"tool_failures", stats.ToolsCallsFailed+stats.ToolNotFound,
		"tokens", stats.LLMTotalTokens,
		"duration", stats.Duration.String(),
	)
}
