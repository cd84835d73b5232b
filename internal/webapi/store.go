package webapi

import "github.com/magneticlabs/surfbench/internal/store"

// SessionStore is the narrow persistence surface the REST handlers need.
// *store.Store satisfies it.
type SessionStore interface {
	CreateSession(userID, name string) (*store.Session, error)
	GetSession(id string) (*store.Session, error)
	ListSessions(userID string) ([]store.Session, error)
	RenameSession(id, name string) error
	DeleteSession(id string) error
	CreateRun(sessionID, userID string) (*store.Run, error)
	GetRun(id string) (*store.Run, error)
	ListRuns(sessionID string) ([]store.Run, error)
	ListMessages(runID string) ([]store.Message, error)
}
