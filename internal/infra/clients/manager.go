// Package clients maps live mount handles to their session and child
// teardown.
package clients

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/tsoernes/mcp-registry/internal/domain"
	"github.com/tsoernes/mcp-registry/internal/infra/session"
	"github.com/tsoernes/mcp-registry/internal/infra/telemetry"
)

type client struct {
	session *session.Session
	stop    domain.StopFn
}

// Manager owns the handle -> (session, child) table. A session is registered
// exactly once, when its mount becomes active, and removed on teardown.
type Manager struct {
	logger *zap.Logger

	mu      sync.Mutex
	clients map[domain.Handle]client
}

func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		logger:  logger.Named("clients"),
		clients: make(map[domain.Handle]client),
	}
}

// Register records a live session+child pair under its handle.
func (m *Manager) Register(handle domain.Handle, sess *session.Session, stop domain.StopFn) {
	m.mu.Lock()
	m.clients[handle] = client{session: sess, stop: stop}
	m.mu.Unlock()
}

// Get resolves the session for a handle.
func (m *Manager) Get(handle domain.Handle) (*session.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[handle]
	if !ok {
		return nil, false
	}
	return c.session, true
}

// Remove closes the session (which closes the child's stdin) and waits on
// the child. Removing an unknown handle is a no-op.
func (m *Manager) Remove(ctx context.Context, handle domain.Handle) {
	m.mu.Lock()
	c, ok := m.clients[handle]
	delete(m.clients, handle)
	m.mu.Unlock()
	if !ok {
		return
	}

	if err := c.session.Close(); err != nil {
		m.logger.Debug("session close failed", telemetry.HandleField(string(handle)), zap.Error(err))
	}
	if c.stop != nil {
		if err := c.stop(ctx); err != nil {
			m.logger.Warn("child teardown failed", telemetry.HandleField(string(handle)), zap.Error(err))
		}
	}
}

// Len reports how many live pairs are registered.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}
