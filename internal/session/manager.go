// Package session maintains the companion's single source of truth for
// "is this client authenticated, and as whom".
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/asthmacare/companion/internal/domain"
	"github.com/asthmacare/companion/internal/gateway"
)

// HintStore persists the locally cached identity hint between runs.
// store.Repository satisfies it.
type HintStore interface {
	IdentityHint(ctx context.Context) (string, error)
	SaveIdentityHint(ctx context.Context, username string) error
	ClearIdentityHint(ctx context.Context) error
}

// Manager owns the session state and reconciles the local hint against
// the remote authority. All mutation goes through its methods.
type Manager struct {
	gw     gateway.Client
	hints  HintStore
	logger *slog.Logger

	mu   sync.RWMutex
	sess domain.Session

	wg sync.WaitGroup
}

// NewManager creates a session manager starting in the unauthenticated
// state.
func NewManager(gw gateway.Client, hints HintStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{gw: gw, hints: hints, logger: logger}
}

// Current returns a snapshot of the session belief.
func (m *Manager) Current() domain.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sess
}

// Initialize restores the session from the cached identity hint. With no
// hint the session stays unauthenticated and no network call is made.
// With a hint the session becomes authenticated optimistically and a
// background check against the server reconciles it; the rest of the
// application is never blocked on that check.
func (m *Manager) Initialize(ctx context.Context) {
	hint, err := m.hints.IdentityHint(ctx)
	if err != nil {
		m.logger.Warn("failed to read identity hint, starting unauthenticated", "error", err)
		return
	}
	if hint == "" {
		return
	}

	m.setSession(domain.Session{IsAuthenticated: true, Username: hint})
	m.logger.Info("restored session from cached hint", "username", hint)

	reconcileCtx := context.WithoutCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.reconcile(reconcileCtx)
	}()
}

// reconcile verifies the optimistic state against the server. A definite
// "not authenticated" forces a local logout and clears the hint; a
// transport failure preserves the optimistic state so flaky connectivity
// does not log people out spuriously.
func (m *Manager) reconcile(ctx context.Context) {
	remote, err := m.gw.CheckSession(ctx)
	if err != nil {
		m.logger.Warn("session check failed, keeping optimistic state", "error", err)
		return
	}

	if !remote.IsAuthenticated {
		m.logger.Info("server disowned cached session, logging out locally")
		m.setSession(domain.Session{})
		if err := m.hints.ClearIdentityHint(ctx); err != nil {
			m.logger.Warn("failed to clear identity hint", "error", err)
		}
		return
	}

	if remote.Username != "" {
		// Adopt the server's view of who we are.
		m.setSession(domain.Session{IsAuthenticated: true, Username: remote.Username})
	}
}

// Login authenticates the credentials with the server. A rejection comes
// back as a *gateway.RejectionError for the caller to surface; it is
// never retried here. On success the hint is cached for the next run.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	if err := m.gw.Login(ctx, username, password); err != nil {
		return err
	}

	m.setSession(domain.Session{IsAuthenticated: true, Username: username})
	if err := m.hints.SaveIdentityHint(ctx, username); err != nil {
		m.logger.Warn("failed to cache identity hint", "error", err)
	}
	m.logger.Info("logged in", "username", username)
	return nil
}

// Signup registers a new account. It does not change session state; the
// person logs in afterwards.
func (m *Manager) Signup(ctx context.Context, username, password, confirmPassword string) error {
	return m.gw.Signup(ctx, username, password, confirmPassword)
}

// Logout ends the session. The local transition always completes, even
// when the remote call cannot be confirmed.
func (m *Manager) Logout(ctx context.Context) {
	if err := m.gw.Logout(ctx); err != nil {
		m.logger.Warn("remote logout failed, logging out locally anyway", "error", err)
	}

	m.setSession(domain.Session{})
	if err := m.hints.ClearIdentityHint(ctx); err != nil {
		m.logger.Warn("failed to clear identity hint", "error", err)
	}
	m.logger.Info("logged out")
}

// Wait blocks until any in-flight background reconciliation finishes.
// Used during shutdown and in tests.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) setSession(sess domain.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sess = sess
}
