// Package team defines the boundary to the multi-agent team that actually
// performs tasks. The agent framework itself (LLM calls, tool use, browser
// control) lives behind the Engine interface; this package owns the contract
// the driver and benchmark dispatcher program against.
package team

import "context"

// EventKind classifies events emitted by a running team.
type EventKind string

const (
	// EventAgentMessage is an incremental message from one of the agents.
	EventAgentMessage EventKind = "agent_message"
	// EventInputRequest asks the human operator for input; the team blocks
	// until a response is delivered through Controls.
	EventInputRequest EventKind = "input_request"
	// EventFinalResult carries the team's terminal output and token usage.
	EventFinalResult EventKind = "final_result"
)

// TokenUsage is the prompt/completion token count for one agent role.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Event is a single unit of team output.
type Event struct {
	Kind    EventKind
	Source  string // agent name, or "user_proxy" for echoed user input
	Content string
	// Usage is populated on the final event, keyed by agent role.
	Usage map[string]TokenUsage
}

// Engine runs one task to completion, streaming events on the returned
// channel. The channel is closed when the team finishes, errors, or is
// stopped. Implementations must call ctrl.Checkpoint between steps so pause
// and stop signals take effect, and must treat a Checkpoint error as a request
// to wind down after emitting any already-produced output.
type Engine interface {
	Run(ctx context.Context, task string, ctrl *Controls) (<-chan Event, error)
}
