package team

import (
	"context"
	"sync"
)

// Controls carries the signals a running engine must observe: the pause/stop
// state machine and the human-input channel. One Controls instance belongs to
// exactly one run.
type Controls struct {
	State *State

	mu       sync.Mutex
	awaiting bool
	input    chan string
}

// NewControls returns Controls with a fresh running State.
func NewControls() *Controls {
	return &Controls{
		State: NewState(),
		input: make(chan string, 1),
	}
}

// Checkpoint delegates to the underlying state machine.
func (c *Controls) Checkpoint(ctx context.Context) error {
	return c.State.Checkpoint(ctx)
}

// RequestInput marks an input request outstanding. Engines call it before
// emitting the input_request event, so a response arriving between the event
// and AwaitInput is buffered instead of dropped.
func (c *Controls) RequestInput() {
	c.mu.Lock()
	c.awaiting = true
	c.mu.Unlock()
}

// AwaitInput blocks until a response is delivered, the run is stopped, or the
// context is cancelled. Engines call RequestInput, emit the input_request
// event, then call this.
func (c *Controls) AwaitInput(ctx context.Context) (string, error) {
	c.mu.Lock()
	c.awaiting = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.awaiting = false
		c.mu.Unlock()
	}()

	for {
		s := c.State
		s.mu.Lock()
		phase := s.phase
		changed := s.changed
		s.mu.Unlock()

		if phase == PhaseStopping || phase == PhaseDone {
			return "", ErrStopped
		}

		select {
		case resp := <-c.input:
			return resp, nil
		case <-changed:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// DeliverInput resolves one outstanding input request. Delivering when no
// request is outstanding is a no-op and returns false.
func (c *Controls) DeliverInput(response string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.awaiting {
		return false
	}
	select {
	case c.input <- response:
		return true
	default:
		return false
	}
}
