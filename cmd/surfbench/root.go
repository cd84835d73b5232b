package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "surfbench",
		Short: "Surfbench - multi-agent web-automation backend and benchmark harness",
		Long: `Surfbench hosts the session/run backend for multi-agent web-automation
teams and the benchmark harness that evaluates them.

The serve command runs the WebSocket/REST backend; bench dispatches and
scores benchmark runs; audit reconciles expected runs against artifacts on
disk; tasks compile derives the benchmark task manifest from the UI route
registry.`,
		Version:      version,
		SilenceUsage: true,
	}

	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if *debugLogging {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newBenchCommand())
	cmd.AddCommand(newAuditCommand())
	cmd.AddCommand(newTasksCommand())

	return cmd
}

func execute() error {
	return newRootCommand().Execute()
}
