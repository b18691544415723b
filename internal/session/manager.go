package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fieldvoice/fieldvoice/internal/models"
)

// Archiver receives the durable record of a session that has ended.
type Archiver interface {
	ArchiveSession(ctx context.Context, archive models.SessionArchive) error
}

// Manager serializes all work per session. Commands for the same session
// run strictly one at a time in arrival order; commands for different
// sessions run concurrently. It also owns the inactivity sweep that
// archives and removes expired sessions.
type Manager struct {
	store    Store
	archiver Archiver
	logger   *slog.Logger
	timeout  time.Duration

	mu    sync.Mutex
	locks map[string]*sessionLock
}

// sessionLock is a per-session mutex with a reference count so the lock
// table can shrink once every waiter for a session is done.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithArchiver sets the sink for ended-session records.
func WithArchiver(a Archiver) ManagerOption {
	return func(m *Manager) { m.archiver = a }
}

// WithManagerLogger sets the logger.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a session manager over a Store. timeout is the
// inactivity window after which a session is expired by Sweep.
func NewManager(store Store, timeout time.Duration, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:   store,
		logger:  slog.Default(),
		timeout: timeout,
		locks:   make(map[string]*sessionLock),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Do runs fn with exclusive ownership of the session, creating it if it
// does not exist. The session passed to fn may be mutated freely; the
// manager persists it afterwards, or archives and deletes it if fn left
// it closed.
func (m *Manager) Do(ctx context.Context, id string, fn func(sess *models.Session) error) error {
	lock := m.acquire(id)
	defer m.release(id)

	lock.mu.Lock()
	defer lock.mu.Unlock()

	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load session %s: %w", id, err)
	}
	if sess == nil {
		sess = models.NewSession(id)
		m.logger.Debug("session created", "session_id", id)
	}

	fnErr := fn(sess)
	sess.Touch()

	if sess.State == models.StateClosed {
		m.finish(ctx, sess, "closed")
		return fnErr
	}

	if err := m.store.Put(ctx, sess); err != nil {
		if fnErr != nil {
			return fnErr
		}
		return fmt.Errorf("persist session %s: %w", id, err)
	}
	return fnErr
}

// Sweep expires sessions whose last activity is older than the timeout.
// Expired sessions are archived with reason "timeout" and removed. The
// per-session lock is held during expiry so a command racing the sweep
// never observes a half-removed session.
func (m *Manager) Sweep(ctx context.Context, now time.Time) error {
	sessions, err := m.store.List(ctx)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	for _, sess := range sessions {
		if now.Sub(sess.LastActivity) < m.timeout {
			continue
		}
		m.expire(ctx, sess.ID, now)
	}
	return nil
}

// RunSweeper blocks, sweeping at the given interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := m.Sweep(ctx, now); err != nil {
				m.logger.Warn("session sweep failed", "error", err)
			}
		}
	}
}

// Close releases the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}

func (m *Manager) expire(ctx context.Context, id string, now time.Time) {
	lock := m.acquire(id)
	defer m.release(id)

	lock.mu.Lock()
	defer lock.mu.Unlock()

	// Re-check under the lock: a command may have landed since List.
	sess, err := m.store.Get(ctx, id)
	if err != nil || sess == nil {
		return
	}
	if now.Sub(sess.LastActivity) < m.timeout {
		return
	}

	m.finish(ctx, sess, "timeout")
}

// finish archives the session and removes it from the live store.
func (m *Manager) finish(ctx context.Context, sess *models.Session, reason string) {
	if m.archiver != nil {
		archive := models.SessionArchive{
			SessionID:   sess.ID,
			ProcedureID: sess.ProcedureID,
			Completed:   completed(sess),
			Commands:    len(sess.History),
			Transitions: sess.Transitions,
			StartedAt:   sess.CreatedAt,
			ClosedAt:    time.Now(),
			Reason:      reason,
		}
		if err := m.archiver.ArchiveSession(ctx, archive); err != nil {
			m.logger.Warn("session archive failed", "session_id", sess.ID, "error", err)
		}
	}

	if err := m.store.Delete(ctx, sess.ID); err != nil {
		m.logger.Warn("session delete failed", "session_id", sess.ID, "error", err)
		return
	}
	m.logger.Info("session ended", "session_id", sess.ID, "reason", reason, "commands", len(sess.History))
}

// completed reports whether the session's last transition landed in the
// closed state via an explicit completion rather than a cancel or sweep.
func completed(sess *models.Session) bool {
	n := len(sess.Transitions)
	if n == 0 {
		return false
	}
	last := sess.Transitions[n-1]
	return last.To == models.StateClosed && last.Intent == models.IntentNavigateComplete
}

func (m *Manager) acquire(id string) *sessionLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[id]
	if !ok {
		lock = &sessionLock{}
		m.locks[id] = lock
	}
	lock.refs++
	return lock
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[id]
	if !ok {
		return
	}
	lock.refs--
	if lock.refs == 0 {
		delete(m.locks, id)
	}
}
