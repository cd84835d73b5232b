package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/magneticlabs/surfbench/internal/driver"
	"github.com/magneticlabs/surfbench/internal/store"
)

// DefaultIdleTimeout closes a connection after this much silence.
const DefaultIdleTimeout = 7200 * time.Second

// Handler upgrades run connections and runs the control-frame receive loop.
type Handler struct {
	mgr           *Manager
	drv           *driver.Driver
	store         *store.Store
	logger        *slog.Logger
	workspaceRoot string
	idleTimeout   time.Duration
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithIdleTimeout overrides the idle-timeout window.
func WithIdleTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) {
		h.idleTimeout = d
	}
}

// WithWorkspaceRoot sets the directory under which per-run workspaces are
// created for uploaded files.
func WithWorkspaceRoot(root string) HandlerOption {
	return func(h *Handler) {
		h.workspaceRoot = root
	}
}

// NewHandler creates a handler bound to the given registry, driver, and store.
func NewHandler(mgr *Manager, drv *driver.Driver, s *store.Store, logger *slog.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		mgr:         mgr,
		drv:         drv,
		store:       s,
		logger:      logger,
		idleTimeout: DefaultIdleTimeout,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// ServeRun handles GET /runs/{id}: upgrades to a WebSocket, binds the run,
// and processes control frames until the loop exits.
func (h *Handler) ServeRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")

	run, err := h.store.GetRun(runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", "run_id", runID, "error", err)
		return
	}

	if !h.mgr.Connect(conn, runID) {
		// Refuse without disturbing the existing connection.
		bc := &boundConn{conn: conn}
		if err := bc.writeJSON(newErrorFrame("run already has an active connection")); err != nil {
			h.logger.Debug("failed to notify refused connection", "run_id", runID, "error", err)
		}
		conn.Close(websocket.StatusPolicyViolation, "run already connected")
		return
	}

	h.logger.Info("run connected", "run_id", runID, "session_id", run.SessionID)
	h.serve(r.Context(), conn, run)
}

// serve is the per-connection receive loop. Every exit path unbinds the
// socket; unexpected errors and idle timeouts additionally stop the in-flight
// task so it is never left running with no observer and no explicit detach.
func (h *Handler) serve(ctx context.Context, conn *websocket.Conn, run *store.Run) {
	runID := run.ID
	stopRunning := false
	stopReason := ""

	defer func() {
		h.mgr.Disconnect(runID)
		if stopRunning {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := h.drv.StopRun(stopCtx, runID, stopReason); err != nil {
				h.logger.Warn("stop on disconnect did not finish", "run_id", runID, "error", err)
			}
		}
		conn.Close(websocket.StatusNormalClosure, "closing")
		h.logger.Info("run disconnected", "run_id", runID, "stop_running", stopRunning)
	}()

	lastActivity := time.Now()

	for {
		remaining := h.idleTimeout - time.Since(lastActivity)
		if remaining <= 0 {
			h.logger.Info("idle timeout reached", "run_id", runID, "timeout", h.idleTimeout)
			stopRunning = true
			stopReason = "Connection idle timeout"
			return
		}

		readCtx, cancel := context.WithTimeout(ctx, remaining)
		_, data, err := conn.Read(readCtx)
		cancel()

		if err != nil {
			// The idle check is polled per loop iteration: a read deadline
			// while the outer context is still live means the window lapsed.
			if readCtx.Err() != nil && ctx.Err() == nil {
				h.logger.Info("idle timeout reached", "run_id", runID, "timeout", h.idleTimeout)
				stopRunning = true
				stopReason = "Connection idle timeout"
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				// Clean disconnect: the run keeps progressing headless.
				return
			default:
				h.logger.Warn("connection error", "run_id", runID, "error", err)
				stopRunning = true
				stopReason = "Connection lost"
				return
			}
		}

		var frame ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.mgr.send(runID, newErrorFrame("invalid JSON frame"))
			continue
		}

		// Any frame that parses as JSON counts as a liveness signal.
		lastActivity = time.Now()

		switch frame.Type {
		case FrameStart:
			h.handleStart(run, frame)

		case FrameStop:
			reason := frame.Reason
			if reason == "" {
				reason = "Stop requested by user"
			}
			if err := h.drv.StopRun(ctx, runID, reason); err != nil {
				h.logger.Warn("stop did not finish cleanly", "run_id", runID, "error", err)
			}
			return

		case FrameTerminalInput:
			reason := frame.TerminalReason
			if reason == "" {
				reason = "Stop requested from terminal"
			}
			if err := h.drv.StopRun(ctx, runID, reason); err != nil {
				h.logger.Warn("terminal stop did not finish cleanly", "run_id", runID, "error", err)
			}
			stopRunning = true
			stopReason = reason
			return

		case FramePause:
			if !h.drv.PauseRun(runID) {
				h.logger.Warn("pause with no in-flight task", "run_id", runID)
			}

		case FrameResume:
			if !h.drv.ResumeRun(runID) {
				h.logger.Warn("resume with no in-flight task", "run_id", runID)
			}

		case FrameInputResponse:
			if frame.Response == nil {
				h.logger.Warn("input_response frame missing response field", "run_id", runID)
				continue
			}
			h.drv.HandleInputResponse(runID, *frame.Response)

		case FramePing:
			h.mgr.send(runID, newPongFrame())

		default:
			// Unknown but well-formed frames reset the idle clock above and
			// are otherwise ignored.
			h.logger.Debug("ignoring unknown frame type", "run_id", runID, "type", frame.Type)
		}
	}
}

func (h *Handler) handleStart(run *store.Run, frame ClientFrame) {
	if frame.Task == "" || frame.TeamConfig == nil {
		h.mgr.send(run.ID, newErrorFrame("start frame requires task and team_config"))
		return
	}

	task := frame.Task
	if len(frame.Files) > 0 {
		saved, err := h.saveAttachments(run, frame.Files)
		if err != nil {
			h.mgr.send(run.ID, newErrorFrame(fmt.Sprintf("saving attached files: %v", err)))
			return
		}
		if len(saved) > 0 {
			task = fmt.Sprintf("%s\n\nAttached files: %s", task, strings.Join(saved, ", "))
		}
	}

	if err := h.drv.StartStream(run.ID, task, frame.TeamConfig, frame.SettingsConfig); err != nil {
		h.mgr.send(run.ID, newErrorFrame(err.Error()))
	}
}

// saveAttachments writes uploaded files into the per-(user, session, run)
// workspace directory and returns the saved file names.
func (h *Handler) saveAttachments(run *store.Run, files []FileAttachment) ([]string, error) {
	root := h.workspaceRoot
	if root == "" {
		root = os.TempDir()
	}
	dir := filepath.Join(root, run.UserID, run.SessionID, run.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	var saved []string
	for _, f := range files {
		name := filepath.Base(filepath.Clean(f.Name))
		if name == "" || name == "." || name == string(filepath.Separator) {
			h.logger.Warn("skipping attachment with unusable name", "run_id", run.ID, "name", f.Name)
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, name), []byte(f.Content), 0o644); err != nil {
			return nil, err
		}
		saved = append(saved, name)
	}
	return saved, nil
}
