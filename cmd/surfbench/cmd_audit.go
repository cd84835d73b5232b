package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/magneticlabs/surfbench/internal/audit"
	"github.com/magneticlabs/surfbench/internal/bench"
)

func newAuditCommand() *cobra.Command {
	var (
		dataset         string
		output          string
		runDirs         string
		useTestVariants bool
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Reconcile expected benchmark runs against artifacts on disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := bench.LoadManifest(dataset)
			if err != nil {
				return err
			}
			dirs := bench.SplitList(runDirs)
			if len(dirs) == 0 {
				return fmt.Errorf("no run directories given")
			}

			variants := bench.FullVariants()
			if useTestVariants {
				variants = bench.TestVariants()
			}

			report := audit.New(output, dirs, tasks, variants).Audit()
			report.Print()
			return nil
		},
	}

	cmd.Flags().StringVar(&dataset, "dataset", "", "Path to the JSONL task manifest (required)")
	cmd.Flags().StringVar(&output, "output", "runs", "Artifact base path")
	cmd.Flags().StringVar(&runDirs, "run-dirs", "0", "Comma-separated run directory names to audit")
	cmd.Flags().BoolVar(&useTestVariants, "use-test-variants", false, "Use the reduced dimension variant table")

	_ = cmd.MarkFlagRequired("dataset")
	return cmd
}
