package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/magneticlabs/surfbench/internal/bench"
	"github.com/magneticlabs/surfbench/internal/team"
)

type benchFlags struct {
	mode            string
	dataset         string
	taskID          string
	baseTask        string
	difficulty      string
	parallel        int
	runID           string
	subsample       int
	timeoutMinutes  int
	redoEval        bool
	rerunTimedout   bool
	useTestVariants bool
	useFullVariants bool
	output          string
	engine          string
	model           string
}

func newBenchCommand() *cobra.Command {
	flags := &benchFlags{}

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Dispatch or score benchmark runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.mode, "mode", "run", "run or eval")
	cmd.Flags().StringVar(&flags.dataset, "dataset", "", "Path to the JSONL task manifest (required)")
	cmd.Flags().StringVar(&flags.taskID, "task-id", "", "Comma-separated task ids to include")
	cmd.Flags().StringVar(&flags.baseTask, "base-task", "", "Comma-separated base-task names to include")
	cmd.Flags().StringVar(&flags.difficulty, "difficulty", "", "Comma-separated difficulties (easy,medium,hard)")
	cmd.Flags().IntVar(&flags.parallel, "parallel", 4, "Worker-pool size")
	cmd.Flags().StringVar(&flags.runID, "run-id", "0", "Run directory name under the output path")
	cmd.Flags().IntVar(&flags.subsample, "subsample", 0, "Keep only the first N tasks after sorting")
	cmd.Flags().IntVar(&flags.timeoutMinutes, "timeout-minutes", 15, "Per-task execution timeout")
	cmd.Flags().BoolVar(&flags.redoEval, "redo-eval", false, "Re-execute and re-score complete instances")
	cmd.Flags().BoolVar(&flags.rerunTimedout, "rerun-timedout", false, "Re-execute interrupted or timed-out instances")
	cmd.Flags().BoolVar(&flags.useTestVariants, "use-test-variants", false, "Use the reduced dimension variant table")
	cmd.Flags().BoolVar(&flags.useFullVariants, "use-full-variants", false, "Use the full dimension variant table")
	cmd.Flags().StringVar(&flags.output, "output", "runs", "Artifact base path")
	cmd.Flags().StringVar(&flags.engine, "engine", "mock", "Team engine type for the system under test")
	cmd.Flags().StringVar(&flags.model, "model", "", "Model identifier passed to the engine")

	_ = cmd.MarkFlagRequired("dataset")
	return cmd
}

func runBench(cmd *cobra.Command, flags *benchFlags) error {
	if flags.mode != "run" && flags.mode != "eval" {
		return fmt.Errorf("invalid mode %q (want run or eval)", flags.mode)
	}
	if flags.useTestVariants && flags.useFullVariants {
		return fmt.Errorf("--use-test-variants and --use-full-variants are mutually exclusive")
	}

	tasks, err := bench.LoadManifest(flags.dataset)
	if err != nil {
		return err
	}

	filter := bench.Filter{
		TaskIDs:      bench.SplitList(flags.taskID),
		BaseTasks:    bench.SplitList(flags.baseTask),
		Difficulties: bench.SplitList(flags.difficulty),
		Subsample:    flags.subsample,
	}
	if err := filter.Validate(); err != nil {
		return err
	}
	tasks = filter.Apply(tasks)
	if len(tasks) == 0 {
		return fmt.Errorf("no tasks matched the given filters")
	}
	fmt.Printf("Matched %d task(s)\n", len(tasks))

	variants := bench.FullVariants()
	if flags.useTestVariants {
		variants = bench.TestVariants()
	}

	teamConfig := map[string]any{"engine": flags.engine}
	if flags.model != "" {
		teamConfig["model"] = flags.model
	}
	cfg, err := team.ParseConfig(teamConfig)
	if err != nil {
		return err
	}

	dispatcher := bench.NewDispatcher(
		bench.EngineFactory(cfg),
		flags.output,
		flags.runID,
		bench.WithParallel(flags.parallel),
		bench.WithTimeoutMinutes(flags.timeoutMinutes),
		bench.WithRedoEval(flags.redoEval),
		bench.WithRerunTimedout(flags.rerunTimedout),
		bench.WithVariants(variants),
	)

	switch flags.mode {
	case "run":
		summary, err := dispatcher.Run(cmd.Context(), tasks)
		if err != nil {
			return err
		}
		summary.PrintSummary()

	case "eval":
		summary, err := dispatcher.Evaluate(tasks)
		if err != nil {
			return err
		}
		fmt.Printf("Scored %d instance(s): %d passed, %d already scored, %d incomplete\n",
			summary.Scored, summary.Passed, summary.Skipped, summary.Invalid)
	}
	return nil
}
