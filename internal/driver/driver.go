// Package driver runs one task-to-completion attempt per run, translating
// incremental team output into persisted messages and forwarded frames, and
// terminal outcomes into a single run status transition.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/magneticlabs/surfbench/internal/store"
	"github.com/magneticlabs/surfbench/internal/team"
)

// ErrAlreadyRunning is returned when a second start arrives for a run that
// already has an in-flight task.
var ErrAlreadyRunning = errors.New("run already has an in-flight task")

// Forwarder delivers driver output to the socket currently bound to a run, if
// any. Implementations must treat an unbound run as a no-op: runs keep
// progressing headless.
type Forwarder interface {
	ForwardMessage(runID string, msg store.Message)
	ForwardInputRequest(runID string, prompt string)
	ForwardCompletion(runID string, status store.RunStatus, result string)
}

// Driver owns the in-flight task for each run.
type Driver struct {
	store  *store.Store
	fwd    Forwarder
	logger *slog.Logger

	mu     sync.Mutex
	active map[string]*activeRun
}

type activeRun struct {
	ctrl       *team.Controls
	cancel     context.CancelFunc
	done       chan struct{}
	stopReason string
}

// New creates a driver. fwd may be nil for fully headless operation.
func New(s *store.Store, fwd Forwarder, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		store:  s,
		fwd:    fwd,
		logger: logger,
		active: make(map[string]*activeRun),
	}
}

// StartStream launches the team task for a run as a background unit of work.
// It is idempotent per run: a second start while one is in flight is rejected
// with ErrAlreadyRunning. The run transitions to active before the first
// event is emitted.
func (d *Driver) StartStream(runID, task string, teamConfig map[string]any, settingsConfig map[string]any) error {
	cfg, err := team.ParseConfig(teamConfig)
	if err != nil {
		return err
	}
	if settingsConfig != nil {
		if cfg.Extra == nil {
			cfg.Extra = make(map[string]any)
		}
		cfg.Extra["settings"] = settingsConfig
	}

	engine, err := team.New(cfg)
	if err != nil {
		return err
	}

	d.mu.Lock()
	if _, inFlight := d.active[runID]; inFlight {
		d.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	ar := &activeRun{
		ctrl:   team.NewControls(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	d.active[runID] = ar
	d.mu.Unlock()

	if err := d.store.SetTask(runID, task); err != nil {
		d.clearActive(runID, ar)
		cancel()
		return err
	}
	if _, err := d.store.TransitionRun(runID, store.StatusActive); err != nil {
		d.clearActive(runID, ar)
		cancel()
		return err
	}

	go d.runTask(ctx, runID, ar, engine, task)
	return nil
}

func (d *Driver) runTask(ctx context.Context, runID string, ar *activeRun, engine team.Engine, task string) {
	defer close(ar.done)
	defer ar.cancel()

	var runErr error
	var finalResult string

	events, err := engine.Run(ctx, task, ar.ctrl)
	if err != nil {
		runErr = err
	} else {
		for ev := range events {
			switch ev.Kind {
			case team.EventAgentMessage:
				d.persistAndForward(runID, ev.Source, ev.Content)
			case team.EventInputRequest:
				prompt := ev.Content
				if err := d.store.SetInputRequest(runID, &prompt); err != nil {
					d.logger.Warn("failed to record input request", "run_id", runID, "error", err)
				}
				d.persistAndForward(runID, ev.Source, ev.Content)
				if d.fwd != nil {
					d.fwd.ForwardInputRequest(runID, prompt)
				}
			case team.EventFinalResult:
				finalResult = ev.Content
				d.persistAndForward(runID, ev.Source, ev.Content)
			}
		}
	}

	d.mu.Lock()
	stopReason := ar.stopReason
	delete(d.active, runID)
	d.mu.Unlock()

	ar.ctrl.State.Transition(team.PhaseDone)

	status := store.StatusComplete
	result := finalResult
	switch {
	case stopReason != "":
		status = store.StatusStopped
		if result == "" {
			result = fmt.Sprintf("Run stopped: %s", stopReason)
		}
	case runErr != nil:
		status = store.StatusError
		result = runErr.Error()
	case finalResult == "":
		// The engine wound down without a final result and without an
		// explicit stop; treat it as stopped rather than complete.
		status = store.StatusStopped
		result = "Run ended without a result"
	}

	if result != "" {
		if err := d.store.SetTeamResult(runID, result); err != nil {
			d.logger.Warn("failed to record team result", "run_id", runID, "error", err)
		}
	}

	applied, err := d.store.TransitionRun(runID, status)
	if err != nil {
		d.logger.Error("failed to transition run", "run_id", runID, "status", status, "error", err)
		return
	}
	if !applied {
		// Another writer already set a terminal status; keep theirs.
		d.logger.Debug("terminal status already set", "run_id", runID, "attempted", status)
		return
	}

	if d.fwd != nil {
		d.fwd.ForwardCompletion(runID, status, result)
	}
	d.logger.Info("run finished", "run_id", runID, "status", status)
}

func (d *Driver) persistAndForward(runID, source, content string) {
	msg, err := d.store.AppendMessage(runID, source, content)
	if err != nil {
		d.logger.Warn("failed to persist message", "run_id", runID, "source", source, "error", err)
		return
	}
	if d.fwd != nil {
		d.fwd.ForwardMessage(runID, *msg)
	}
}

func (d *Driver) clearActive(runID string, ar *activeRun) {
	d.mu.Lock()
	if d.active[runID] == ar {
		delete(d.active, runID)
	}
	d.mu.Unlock()
	close(ar.done)
}

// StopRun requests cooperative cancellation of the in-flight task and waits
// for it to wind down. Already-emitted messages remain persisted. Stopping a
// run with nothing in flight is a no-op.
func (d *Driver) StopRun(ctx context.Context, runID, reason string) error {
	d.mu.Lock()
	ar, ok := d.active[runID]
	if ok && ar.stopReason == "" {
		ar.stopReason = reason
	}
	d.mu.Unlock()
	if !ok {
		return nil
	}

	ar.ctrl.State.Transition(team.PhaseStopping)

	select {
	case <-ar.done:
		return nil
	case <-ctx.Done():
		// Give up waiting but leave the cooperative signal in place.
		return ctx.Err()
	}
}

// PauseRun pauses the in-flight task at its next checkpoint. Buffered output
// already emitted is not dropped.
func (d *Driver) PauseRun(runID string) bool {
	d.mu.Lock()
	ar, ok := d.active[runID]
	d.mu.Unlock()
	if !ok {
		return false
	}
	ar.ctrl.State.Transition(team.PhasePaused)
	return true
}

// ResumeRun resumes a paused task from its next unprocessed step.
func (d *Driver) ResumeRun(runID string) bool {
	d.mu.Lock()
	ar, ok := d.active[runID]
	d.mu.Unlock()
	if !ok {
		return false
	}
	ar.ctrl.State.Transition(team.PhaseRunning)
	return true
}

// HandleInputResponse resolves the outstanding input request for a run.
// Delivering a response when no request is outstanding is a no-op.
func (d *Driver) HandleInputResponse(runID, response string) {
	d.mu.Lock()
	ar, ok := d.active[runID]
	d.mu.Unlock()
	if !ok {
		return
	}
	if !ar.ctrl.DeliverInput(response) {
		d.logger.Warn("input response with no outstanding request", "run_id", runID)
		return
	}
	if err := d.store.SetInputRequest(runID, nil); err != nil {
		d.logger.Warn("failed to clear input request", "run_id", runID, "error", err)
	}
}

// InFlight reports whether a run currently has an in-flight task.
func (d *Driver) InFlight(runID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.active[runID]
	return ok
}
