// Package store persists sessions, runs, and run messages. It is the single
// source of truth for run status: terminal transitions are first-writer-wins so
// the stream manager and task driver can both request one without racing.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when a session or run ID does not match any record.
var ErrNotFound = errors.New("not found")

// Store wraps the sqlite database holding sessions, runs, and messages.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the sqlite database at path and migrates the
// schema. Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}

	if err := db.AutoMigrate(&Session{}, &Run{}, &Message{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// CreateSession creates a session owned by userID.
func (s *Store) CreateSession(userID, name string) (*Session, error) {
	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.Create(sess).Error; err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	return sess, nil
}

// GetSession returns the session with the given ID.
func (s *Store) GetSession(id string) (*Session, error) {
	var sess Session
	err := s.db.First(&sess, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// ListSessions returns all sessions for a user, newest first.
func (s *Store) ListSessions(userID string) ([]Session, error) {
	var sessions []Session
	err := s.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&sessions).Error
	return sessions, err
}

// RenameSession updates the display name of a session.
func (s *Store) RenameSession(id, name string) error {
	res := s.db.Model(&Session{}).Where("id = ?", id).Update("name", name)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSession removes a session and cascades to its runs and their messages.
func (s *Store) DeleteSession(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var runIDs []string
		if err := tx.Model(&Run{}).Where("session_id = ?", id).Pluck("id", &runIDs).Error; err != nil {
			return err
		}
		if len(runIDs) > 0 {
			if err := tx.Where("run_id IN ?", runIDs).Delete(&Message{}).Error; err != nil {
				return err
			}
			if err := tx.Where("session_id = ?", id).Delete(&Run{}).Error; err != nil {
				return err
			}
		}
		res := tx.Where("id = ?", id).Delete(&Session{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// CreateRun creates a run in the created state under the given session.
func (s *Store) CreateRun(sessionID, userID string) (*Run, error) {
	if _, err := s.GetSession(sessionID); err != nil {
		return nil, err
	}
	run := &Run{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		Status:    StatusCreated,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.Create(run).Error; err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}
	return run, nil
}

// GetRun returns the run with the given ID.
func (s *Store) GetRun(id string) (*Run, error) {
	var run Run
	err := s.db.First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns all runs for a session, oldest first.
func (s *Store) ListRuns(sessionID string) ([]Run, error) {
	var runs []Run
	err := s.db.Where("session_id = ?", sessionID).Order("created_at ASC").Find(&runs).Error
	return runs, err
}

// SetTask records the task text for a run.
func (s *Store) SetTask(runID, task string) error {
	return s.updateRun(runID, map[string]any{"task": task})
}

// SetTeamResult records the terminal team output for a run.
func (s *Store) SetTeamResult(runID, result string) error {
	return s.updateRun(runID, map[string]any{"team_result": result})
}

// SetInputRequest records (or clears, with nil) the pending human-input prompt.
func (s *Store) SetInputRequest(runID string, prompt *string) error {
	return s.updateRun(runID, map[string]any{"input_request": prompt})
}

func (s *Store) updateRun(runID string, fields map[string]any) error {
	res := s.db.Model(&Run{}).Where("id = ?", runID).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TransitionRun moves a run to the given status. Transitions into a terminal
// status only succeed if the run is not already terminal; the second writer's
// attempt is a silent no-op and returns false. Non-terminal transitions always
// apply.
func (s *Store) TransitionRun(runID string, to RunStatus) (bool, error) {
	if _, err := s.GetRun(runID); err != nil {
		return false, err
	}

	q := s.db.Model(&Run{}).Where("id = ?", runID)
	if to.Terminal() {
		q = q.Where("status NOT IN ?", []RunStatus{StatusStopped, StatusComplete, StatusError})
	}
	res := q.Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// AppendMessage appends a message to a run and returns it with its assigned
// sequence number. Messages are never mutated after insertion.
func (s *Store) AppendMessage(runID, source, content string) (*Message, error) {
	if _, err := s.GetRun(runID); err != nil {
		return nil, err
	}
	msg := &Message{
		RunID:     runID,
		Source:    source,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.Create(msg).Error; err != nil {
		return nil, fmt.Errorf("appending message: %w", err)
	}
	return msg, nil
}

// ListMessages returns all messages for a run in strict emission order.
func (s *Store) ListMessages(runID string) ([]Message, error) {
	var msgs []Message
	err := s.db.Where("run_id = ?", runID).Order("seq ASC").Find(&msgs).Error
	return msgs, err
}
