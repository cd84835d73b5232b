package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/magneticlabs/surfbench/internal/sentinel"
)

func newTasksCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Benchmark task manifest tooling",
	}
	cmd.AddCommand(newTasksCompileCommand())
	return cmd
}

func newTasksCompileCommand() *cobra.Command {
	var (
		registry  string
		constants []string
		secrets   []string
		out       string
		baseURL   string
	)

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile the task manifest from the UI route registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver := sentinel.NewResolver()
			for _, path := range constants {
				if err := resolver.AddConstantsFile(path); err != nil {
					return err
				}
			}
			for _, path := range secrets {
				if err := resolver.AddSecretsFile(path); err != nil {
					return err
				}
			}

			var opts []sentinel.CompilerOption
			if baseURL != "" {
				opts = append(opts, sentinel.WithBaseURL(baseURL))
			}
			compiler := sentinel.NewCompiler(resolver, slog.Default(), opts...)

			n, err := compiler.CompileFile(registry, out)
			if err != nil {
				return err
			}
			fmt.Printf("Compiled %d task(s) to %s\n", n, out)
			return nil
		},
	}

	cmd.Flags().StringVar(&registry, "registry", "", "Path to the route registry source file (required)")
	cmd.Flags().StringArrayVar(&constants, "constants", nil, "Constants source file (repeatable)")
	cmd.Flags().StringArrayVar(&secrets, "secrets", nil, "Secret-table source file (repeatable)")
	cmd.Flags().StringVar(&out, "out", "tasks.jsonl", "Output manifest path")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Base URL substituted into task URLs")

	_ = cmd.MarkFlagRequired("registry")
	return cmd
}
