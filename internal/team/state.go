package team

import (
	"context"
	"errors"
	"sync"
)

// ErrStopped is returned from Checkpoint once a stop has been requested.
var ErrStopped = errors.New("run stopped")

// Phase is the cooperative execution state polled by engines between steps.
type Phase string

const (
	PhaseRunning  Phase = "running"
	PhasePaused   Phase = "paused"
	PhaseStopping Phase = "stopping"
	PhaseDone     Phase = "done"
)

// State is a small state machine shared between the driver and a running
// engine. Transitions come from outside (stop/pause/resume control frames);
// the engine observes them at checkpoints. Waiters are woken through a
// broadcast channel that is replaced on every transition.
type State struct {
	mu      sync.Mutex
	phase   Phase
	changed chan struct{}
}

// NewState returns a State in the running phase.
func NewState() *State {
	return &State{
		phase:   PhaseRunning,
		changed: make(chan struct{}),
	}
}

// Phase returns the current phase.
func (s *State) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Transition moves the state machine to the given phase and wakes any
// checkpoint waiters. Transitions out of a finished state are ignored.
func (s *State) Transition(to Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseDone {
		return
	}
	if s.phase == PhaseStopping && to != PhaseDone {
		return
	}
	if s.phase == to {
		return
	}
	s.phase = to
	close(s.changed)
	s.changed = make(chan struct{})
}

// Checkpoint is called by engines between agent steps. It returns nil while
// running, blocks while paused (without dropping buffered output), and returns
// ErrStopped once a stop has been requested. Context cancellation unblocks a
// paused wait.
func (s *State) Checkpoint(ctx context.Context) error {
	for {
		s.mu.Lock()
		phase := s.phase
		changed := s.changed
		s.mu.Unlock()

		switch phase {
		case PhaseRunning:
			return nil
		case PhaseStopping, PhaseDone:
			return ErrStopped
		case PhasePaused:
			select {
			case <-changed:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
