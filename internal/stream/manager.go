// Package stream owns the WebSocket side of the run protocol: the registry
// binding runs to live sockets, the control-frame receive loop, and the
// forwarding of driver output back to clients.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/magneticlabs/surfbench/internal/store"
)

// writeTimeout bounds a single frame write so one stuck client cannot block
// the driver's forwarding path.
const writeTimeout = 10 * time.Second

// boundConn wraps a socket with a write mutex; WebSocket connections do not
// support concurrent writes.
type boundConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (b *boundConn) writeJSON(v any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return b.conn.Write(ctx, websocket.MessageText, data)
}

// Manager maps run IDs to their single live connection. At most one socket
// may be bound to a run at any instant.
type Manager struct {
	logger *slog.Logger

	mu    sync.Mutex
	conns map[string]*boundConn
}

// NewManager creates an empty connection registry.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger: logger,
		conns:  make(map[string]*boundConn),
	}
}

// Connect binds a socket to a run. It refuses (returning false, with no other
// side effect) when the run already has an active connection.
func (m *Manager) Connect(conn *websocket.Conn, runID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, bound := m.conns[runID]; bound {
		return false
	}
	m.conns[runID] = &boundConn{conn: conn}
	return true
}

// Disconnect unbinds the run's socket. It is safe to call for a run that is
// not bound.
func (m *Manager) Disconnect(runID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, runID)
}

// Connected reports whether a socket is currently bound to the run.
func (m *Manager) Connected(runID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, bound := m.conns[runID]
	return bound
}

// send marshals and writes a frame to the run's socket. An unbound run is a
// no-op, not an error: runs progress headless when nobody is watching.
func (m *Manager) send(runID string, v any) {
	m.mu.Lock()
	bc, bound := m.conns[runID]
	m.mu.Unlock()
	if !bound {
		return
	}
	if err := bc.writeJSON(v); err != nil {
		m.logger.Debug("dropping frame for run", "run_id", runID, "error", err)
	}
}

// ForwardMessage implements driver.Forwarder.
func (m *Manager) ForwardMessage(runID string, msg store.Message) {
	m.send(runID, MessageFrame{Type: "message", Message: msg})
}

// ForwardInputRequest implements driver.Forwarder.
func (m *Manager) ForwardInputRequest(runID string, prompt string) {
	m.send(runID, InputRequestFrame{Type: "input_request", Prompt: prompt, Timestamp: timestamp()})
}

// ForwardCompletion implements driver.Forwarder.
func (m *Manager) ForwardCompletion(runID string, status store.RunStatus, result string) {
	m.send(runID, CompletionFrame{Type: "completion", Status: status, Result: result, Timestamp: timestamp()})
}
