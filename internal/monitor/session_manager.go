package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/noisewatch/internal/observe"
)

// ErrSessionActive is returned by [SessionManager.Start] when a session is
// already running.
var ErrSessionActive = errors.New("monitor: a session is already active")

// ErrNoSession is returned by [SessionManager.Stop] when no session is
// running.
var ErrNoSession = errors.New("monitor: no active session")

// SessionInfo holds metadata about a monitoring session.
type SessionInfo struct {
	// SessionID is the unique identifier for this session.
	SessionID string `json:"sessionId"`

	// StartedAt is when the session was started.
	StartedAt time.Time `json:"startedAt"`

	// StartedBy identifies who requested the session (API caller, "startup").
	StartedBy string `json:"startedBy,omitempty"`
}

// Factory builds a fresh [Monitor] for a new session. ctx is the caller's
// Start context and bounds any setup the factory does.
type Factory func(ctx context.Context) *Monitor

// SessionManager manages the lifecycle of monitoring sessions.
// Only one session can be active at a time (enforced by mutex).
// All exported methods are safe for concurrent use.
type SessionManager struct {
	factory Factory

	mu      sync.Mutex
	active  bool
	info    SessionInfo
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error
}

// NewSessionManager creates a SessionManager that builds monitors with
// factory.
func NewSessionManager(factory Factory) *SessionManager {
	return &SessionManager{factory: factory}
}

// Start opens the audio input and begins a session in the background. It
// returns [ErrSessionActive] if a session is running and an error wrapping
// [ErrMonitoringUnavailable] if the input cannot be opened.
func (sm *SessionManager) Start(ctx context.Context, startedBy string) (SessionInfo, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.active {
		return SessionInfo{}, fmt.Errorf("%w (id=%s)", ErrSessionActive, sm.info.SessionID)
	}

	mon := sm.factory(ctx)
	if err := mon.Open(ctx); err != nil {
		sm.lastErr = err
		return SessionInfo{}, err
	}

	info := SessionInfo{
		SessionID: "session-" + uuid.NewString(),
		StartedAt: time.Now().UTC(),
		StartedBy: startedBy,
	}
	// The session outlives the request that started it.
	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sessionCtx = observe.WithSession(sessionCtx, info.SessionID)
	done := make(chan struct{})

	sm.active = true
	sm.info = info
	sm.cancel = cancel
	sm.done = done
	sm.lastErr = nil

	go func() {
		defer close(done)
		spanCtx, span := observe.StartSpan(sessionCtx, observe.SpanSession)
		err := mon.Serve(spanCtx)
		if err != nil {
			observe.Logger(spanCtx).Error("monitor: session failed", "err", err)
		}
		observe.EndSpan(span, err)
		sm.finish(done, err)
	}()

	slog.Info("monitor: session manager started session",
		"session_id", info.SessionID,
		"started_by", startedBy,
	)
	return info, nil
}

// finish clears the active session if done still identifies it.
func (sm *SessionManager) finish(done chan struct{}, err error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.done != done {
		return
	}
	sm.lastErr = err
	sm.active = false
	sm.info = SessionInfo{}
	sm.cancel = nil
	sm.done = nil
}

// Stop cancels the active session and waits for it to release the input or
// for ctx to expire. Returns [ErrNoSession] if no session is active.
func (sm *SessionManager) Stop(ctx context.Context) error {
	sm.mu.Lock()
	if !sm.active {
		sm.mu.Unlock()
		return ErrNoSession
	}
	sessionID := sm.info.SessionID
	cancel, done := sm.cancel, sm.done
	sm.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("monitor: stop session %s: %w", sessionID, ctx.Err())
	}

	slog.Info("monitor: session stopped", "session_id", sessionID)
	return nil
}

// IsActive reports whether a session is currently running.
func (sm *SessionManager) IsActive() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.active
}

// Info returns metadata about the active session.
// Returns zero value if no session is active.
func (sm *SessionManager) Info() SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.info
}

// LastError returns the error that ended the previous session, or the error
// of the last failed Start. Nil after a clean stop.
func (sm *SessionManager) LastError() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.lastErr
}

// Check is a readiness probe that fails while no session is running.
func (sm *SessionManager) Check(_ context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.active {
		return nil
	}
	if sm.lastErr != nil {
		return fmt.Errorf("not monitoring: %w", sm.lastErr)
	}
	return errors.New("not monitoring")
}
