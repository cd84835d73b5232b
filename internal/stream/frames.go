package stream

import (
	"time"

	"github.com/magneticlabs/surfbench/internal/store"
)

// Client-to-server control frame types.
const (
	FrameStart         = "start"
	FrameStop          = "stop"
	FramePause         = "pause"
	FrameResume        = "resume"
	FrameInputResponse = "input_response"
	FrameTerminalInput = "terminal_input"
	FramePing          = "ping"
)

// ClientFrame is the envelope for all client control messages. Type is
// mandatory; the remaining fields are populated per frame type.
type ClientFrame struct {
	Type           string           `json:"type"`
	Task           string           `json:"task,omitempty"`
	TeamConfig     map[string]any   `json:"team_config,omitempty"`
	SettingsConfig map[string]any   `json:"settings_config,omitempty"`
	Files          []FileAttachment `json:"files,omitempty"`
	Reason         string           `json:"reason,omitempty"`
	TerminalReason string           `json:"terminal_reason,omitempty"`
	Response       *string          `json:"response,omitempty"`
}

// FileAttachment is a file uploaded alongside a start frame, saved into the
// run's workspace before the task is launched.
type FileAttachment struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// ErrorFrame reports a protocol error without closing the connection.
type ErrorFrame struct {
	Type      string `json:"type"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

// PongFrame answers a ping.
type PongFrame struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// MessageFrame forwards one persisted agent message.
type MessageFrame struct {
	Type    string        `json:"type"`
	Message store.Message `json:"message"`
}

// InputRequestFrame asks the client for human input.
type InputRequestFrame struct {
	Type      string `json:"type"`
	Prompt    string `json:"prompt"`
	Timestamp string `json:"timestamp"`
}

// CompletionFrame reports the terminal outcome of a run.
type CompletionFrame struct {
	Type      string          `json:"type"`
	Status    store.RunStatus `json:"status"`
	Result    string          `json:"result,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func newErrorFrame(msg string) ErrorFrame {
	return ErrorFrame{Type: "error", Error: msg, Timestamp: timestamp()}
}

func newPongFrame() PongFrame {
	return PongFrame{Type: "pong", Timestamp: timestamp()}
}
