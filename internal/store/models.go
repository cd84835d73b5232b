package store

import "time"

// RunStatus tracks the lifecycle of a run.
type RunStatus string

const (
	StatusCreated  RunStatus = "created"
	StatusActive   RunStatus = "active"
	StatusStopped  RunStatus = "stopped"
	StatusComplete RunStatus = "complete"
	StatusError    RunStatus = "error"
)

// Terminal reports whether the status is a final state. Terminal statuses are
// first-writer-wins: once a run is stopped, complete, or errored, later
// transition attempts are no-ops.
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusStopped, StatusComplete, StatusError:
		return true
	}
	return false
}

// Session groups runs for one user.
type Session struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"index" json:"user_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`

	Runs []Run `gorm:"constraint:OnDelete:CASCADE" json:"runs,omitempty"`
}

// Run is one execution attempt of a task bound to a session. At most one live
// WebSocket connection may be bound to a run at a time; that constraint is
// enforced by the stream manager, not here.
type Run struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	SessionID    string    `gorm:"index" json:"session_id"`
	UserID       string    `json:"user_id"`
	Status       RunStatus `json:"status"`
	Task         string    `json:"task"`
	TeamResult   string    `json:"team_result,omitempty"`
	InputRequest *string   `json:"input_request,omitempty"`
	CreatedAt    time.Time `json:"created_at"`

	Messages []Message `gorm:"constraint:OnDelete:CASCADE" json:"messages,omitempty"`
}

// Message is a single agent or user-proxy utterance within a run. Messages are
// append-only and ordered by the auto-incrementing Seq.
type Message struct {
	Seq       uint64    `gorm:"primaryKey;autoIncrement" json:"seq"`
	RunID     string    `gorm:"index" json:"run_id"`
	Source    string    `json:"source"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
