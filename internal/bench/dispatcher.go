package bench

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Dispatcher fans task×dimension instances out across a bounded worker pool
// and records one artifact set per instance.
type Dispatcher struct {
	factory  SystemFactory
	basePath string
	runDir   string
	variants map[string][]int

	parallel       int
	timeoutMinutes int
	redoEval       bool
	rerunTimedout  bool
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithParallel bounds worker-pool concurrency.
func WithParallel(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.parallel = n
		}
	}
}

// WithTimeoutMinutes sets the per-task execution timeout.
func WithTimeoutMinutes(m int) DispatcherOption {
	return func(d *Dispatcher) {
		if m > 0 {
			d.timeoutMinutes = m
		}
	}
}

// WithRedoEval forces re-execution and re-scoring of instances whose
// artifacts are already complete.
func WithRedoEval(redo bool) DispatcherOption {
	return func(d *Dispatcher) {
		d.redoEval = redo
	}
}

// WithRerunTimedout treats interrupted or timeout-marked instances as pending.
func WithRerunTimedout(rerun bool) DispatcherOption {
	return func(d *Dispatcher) {
		d.rerunTimedout = rerun
	}
}

// WithVariants overrides the dimension variant table.
func WithVariants(table map[string][]int) DispatcherOption {
	return func(d *Dispatcher) {
		d.variants = table
	}
}

// NewDispatcher creates a dispatcher writing artifacts under
// <basePath>/<runDir>/.
func NewDispatcher(factory SystemFactory, basePath, runDir string, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		factory:        factory,
		basePath:       basePath,
		runDir:         runDir,
		variants:       FullVariants(),
		parallel:       4,
		timeoutMinutes: 15,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *Dispatcher) artifactSet(taskID string, dim int) ArtifactSet {
	return ArtifactSet{BasePath: d.basePath, RunDir: d.runDir, TaskID: taskID, Dimension: dim}
}

// RunSummary aggregates one dispatch pass.
type RunSummary struct {
	mu       sync.Mutex
	Total    int
	Executed int
	Skipped  int
	TimedOut int
	Failed   int
}

type instance struct {
	task Task
	dim  int
}

// Run executes every pending (task, dimension) instance with bounded
// parallelism. Instances whose artifact set is already complete are skipped
// unless redo_eval forces a rerun or rerun_timedout matches a timed-out prior
// run. A single instance failing or timing out is recorded in its artifacts
// and never aborts the batch.
func (d *Dispatcher) Run(ctx context.Context, tasks []Task) (*RunSummary, error) {
	var pending []instance
	summary := &RunSummary{}

	for _, task := range tasks {
		for _, dim := range DimensionsFor(d.variants, task) {
			summary.Total++
			a := d.artifactSet(task.ID, dim)
			if a.Valid() && !d.redoEval && !(d.rerunTimedout && a.TimedOut()) {
				summary.Skipped++
				continue
			}
			pending = append(pending, instance{task: task, dim: dim})
		}
	}

	fmt.Printf("Dispatching %d instance(s) (%d skipped, parallel=%d, timeout=%dm)\n",
		len(pending), summary.Skipped, d.parallel, d.timeoutMinutes)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.parallel)

	for _, inst := range pending {
		g.Go(func() error {
			d.runInstance(ctx, inst, summary)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return summary, err
	}
	return summary, ctx.Err()
}

// runInstance executes one (task, dimension) and writes its full artifact
// set. All failure modes are captured in the artifacts.
func (d *Dispatcher) runInstance(ctx context.Context, inst instance, summary *RunSummary) {
	a := d.artifactSet(inst.task.ID, inst.dim)
	start := time.Now()

	// A rerun replaces the whole artifact set. Clearing the old score keeps a
	// later eval pass from pairing it with the fresh answer.
	if err := a.RemoveScore(); err != nil {
		fmt.Printf("[ERROR] %s/%d: %v\n", inst.task.ID, inst.dim, err)
	}

	record := func(times Times, answer string) {
		if err := a.WriteTimes(times); err != nil {
			fmt.Printf("[ERROR] %s/%d: %v\n", inst.task.ID, inst.dim, err)
		}
		if err := a.WriteAnswer(Answer{Answer: answer}); err != nil {
			fmt.Printf("[ERROR] %s/%d: %v\n", inst.task.ID, inst.dim, err)
		}
	}

	system, err := d.factory()
	if err != nil {
		fmt.Printf("[ERROR] %s/%d: constructing system: %v\n", inst.task.ID, inst.dim, err)
		record(Times{Completed: false, Interrupted: false, Duration: time.Since(start).Seconds()},
			fmt.Sprintf("ERROR: %v", err))
		if err := a.WriteTokens(nil); err != nil {
			fmt.Printf("[ERROR] %s/%d: %v\n", inst.task.ID, inst.dim, err)
		}
		summary.mu.Lock()
		summary.Failed++
		summary.mu.Unlock()
		return
	}

	taskCtx, cancel := context.WithTimeout(ctx, time.Duration(d.timeoutMinutes)*time.Minute)
	defer cancel()

	res, err := system.Run(taskCtx, inst.task.Prompt())
	elapsed := time.Since(start).Seconds()

	// A result that arrives despite the deadline expiring still counts; only a
	// failed run under an expired deadline is a timeout.
	switch {
	case err != nil && errors.Is(taskCtx.Err(), context.DeadlineExceeded):
		record(Times{Completed: false, Interrupted: true, Duration: elapsed},
			fmt.Sprintf("%s after %d minutes", TimeoutMarker, d.timeoutMinutes))
		if err := a.WriteTokens(nil); err != nil {
			fmt.Printf("[ERROR] %s/%d: %v\n", inst.task.ID, inst.dim, err)
		}
		fmt.Printf("[WARN] %s/%d: timed out after %d minutes\n", inst.task.ID, inst.dim, d.timeoutMinutes)
		summary.mu.Lock()
		summary.Executed++
		summary.TimedOut++
		summary.mu.Unlock()

	case err != nil:
		record(Times{Completed: false, Interrupted: false, Duration: elapsed},
			fmt.Sprintf("ERROR: %v", err))
		if err := a.WriteTokens(nil); err != nil {
			fmt.Printf("[ERROR] %s/%d: %v\n", inst.task.ID, inst.dim, err)
		}
		fmt.Printf("[ERROR] %s/%d: %v\n", inst.task.ID, inst.dim, err)
		summary.mu.Lock()
		summary.Executed++
		summary.Failed++
		summary.mu.Unlock()

	default:
		record(Times{Completed: true, Interrupted: false, Duration: elapsed}, res.Answer)
		if err := a.WriteTokens(res.Tokens); err != nil {
			fmt.Printf("[ERROR] %s/%d: %v\n", inst.task.ID, inst.dim, err)
		}
		summary.mu.Lock()
		summary.Executed++
		summary.mu.Unlock()
	}
}

// PrintSummary writes the operator-facing roll-up after a dispatch pass.
func (s *RunSummary) PrintSummary() {
	fmt.Println()
	fmt.Println("════════════════════════════════════════")
	fmt.Printf("Instances: %d total, %d executed, %d skipped\n", s.Total, s.Executed, s.Skipped)
	fmt.Printf("Timed out: %d, failed: %d\n", s.TimedOut, s.Failed)
	fmt.Println("════════════════════════════════════════")
}
