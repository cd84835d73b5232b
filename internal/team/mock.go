package team

import (
	"context"
	"fmt"
	"time"
)

// MockEngine is a scriptable engine for tests and hermetic benchmark runs,
// standing in for the real multi-agent team.
type MockEngine struct {
	cfg *Config

	// Script holds intermediate events to emit before the final result. When
	// empty, a small default exchange is used.
	Script []Event
	// FinalAnswer is the content of the final_result event.
	FinalAnswer string
	// AskInput makes the engine emit an input_request and block for a
	// response before finishing.
	AskInput bool
	// StepDelay adds latency before each emitted event.
	StepDelay time.Duration
	// Err, when set, is returned from Run before any event is emitted.
	Err error
}

// NewMockEngine creates a mock engine for the given config.
func NewMockEngine(cfg *Config) *MockEngine {
	return &MockEngine{cfg: cfg}
}

func (m *MockEngine) defaultScript(task string) []Event {
	return []Event{
		{Kind: EventAgentMessage, Source: "orchestrator", Content: fmt.Sprintf("Planning task: %s", task)},
		{Kind: EventAgentMessage, Source: "web_surfer", Content: "Visited the target page"},
	}
}

func (m *MockEngine) Run(ctx context.Context, task string, ctrl *Controls) (<-chan Event, error) {
	if m.Err != nil {
		return nil, m.Err
	}

	script := m.Script
	if len(script) == 0 {
		script = m.defaultScript(task)
	}
	final := m.FinalAnswer
	if final == "" {
		final = fmt.Sprintf("Mock result for: %s", task)
	}

	events := make(chan Event)
	go func() {
		defer close(events)

		emit := func(ev Event) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for _, ev := range script {
			if err := ctrl.Checkpoint(ctx); err != nil {
				return
			}
			if m.StepDelay > 0 {
				time.Sleep(m.StepDelay)
			}
			if !emit(ev) {
				return
			}
		}

		if m.AskInput {
			if err := ctrl.Checkpoint(ctx); err != nil {
				return
			}
			ctrl.RequestInput()
			if !emit(Event{Kind: EventInputRequest, Source: "orchestrator", Content: "Need your approval to continue"}) {
				return
			}
			resp, err := ctrl.AwaitInput(ctx)
			if err != nil {
				return
			}
			if !emit(Event{Kind: EventAgentMessage, Source: "user_proxy", Content: resp}) {
				return
			}
		}

		if err := ctrl.Checkpoint(ctx); err != nil {
			return
		}
		emit(Event{
			Kind:    EventFinalResult,
			Source:  "orchestrator",
			Content: final,
			Usage: map[string]TokenUsage{
				"orchestrator": {PromptTokens: 120, CompletionTokens: 40},
				"web_surfer":   {PromptTokens: 300, CompletionTokens: 80},
			},
		})
	}()

	return events, nil
}
