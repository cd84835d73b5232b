package bench

import (
	"context"
	"fmt"

	"github.com/magneticlabs/surfbench/internal/team"
)

// Result is what a system-under-test produces for one task instance.
type Result struct {
	Answer string
	Tokens map[string]team.TokenUsage
}

// System executes one task to completion.
type System interface {
	Run(ctx context.Context, task string) (*Result, error)
}

// SystemFactory builds a fresh System per worker invocation, so instances
// never share state across parallel tasks.
type SystemFactory func() (System, error)

// EngineFactory adapts a team engine configuration into a SystemFactory. Each
// call constructs a new engine through the registry.
func EngineFactory(cfg *team.Config) SystemFactory {
	return func() (System, error) {
		engine, err := team.New(cfg)
		if err != nil {
			return nil, err
		}
		return &engineSystem{engine: engine}, nil
	}
}

// engineSystem drives a team engine non-interactively: input requests are
// answered with an empty response so an agent that asks for help cannot stall
// a batch worker forever.
type engineSystem struct {
	engine team.Engine
}

func (s *engineSystem) Run(ctx context.Context, task string) (*Result, error) {
	ctrl := team.NewControls()
	events, err := s.engine.Run(ctx, task, ctrl)
	if err != nil {
		return nil, fmt.Errorf("starting team: %w", err)
	}

	res := &Result{Tokens: map[string]team.TokenUsage{}}
	sawFinal := false

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				if !sawFinal {
					return nil, fmt.Errorf("team ended without a final result")
				}
				return res, nil
			}
			switch ev.Kind {
			case team.EventInputRequest:
				// The engine arms the request before emitting the event, so a
				// synchronous delivery always lands.
				if !ctrl.DeliverInput("") {
					return nil, fmt.Errorf("input request was not outstanding")
				}
			case team.EventFinalResult:
				sawFinal = true
				res.Answer = ev.Content
				for role, usage := range ev.Usage {
					res.Tokens[role] = usage
				}
			}
		}
	}
}
