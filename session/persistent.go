// ABOUTME: Server-backed session manager for stateless environments.
// ABOUTME: Local cache fast path, backend lookup, in-memory fallback.

package session

import (
	"context"
	"log/slog"
	"time"
)

// Backend resolves sessions against the collection API so that session
// continuity survives process restarts (REST handlers, serverless
// workers). The client package implements this.
type Backend interface {
	// GetOrCreateSession returns the active server-side session id for the
	// pair, creating one when needed, and whether an existing session was
	// reused.
	GetOrCreateSession(ctx context.Context, namespace, userID string, inactivityTimeout time.Duration, forceNew bool) (sessionID string, reused bool, err error)
}

// PersistentManager resolves sessions in three steps: local cache fast
// path, backend lookup, and in-memory fallback when the backend is
// unreachable. It behaves exactly like Manager when the backend never
// answers.
type PersistentManager struct {
	local   *Manager
	backend Backend
	logger  *slog.Logger
}

// NewPersistentManager creates a manager backed by the given Backend.
func NewPersistentManager(backend Backend, timeout time.Duration, logger *slog.Logger) *PersistentManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &PersistentManager{
		local:   NewManager(timeout, logger),
		backend: backend,
		logger:  logger.With("component", "session"),
	}
}

// GetOrCreateSession returns the active session id for (namespace,
// userID). Sequential calls in the same process hit the local cache and
// skip the HTTP round trip; cache misses consult the backend; backend
// failures degrade to purely local behavior. Never fails.
func (p *PersistentManager) GetOrCreateSession(ctx context.Context, userID, namespace string, forceNew bool) string {
	if userID == "" {
		userID = AnonymousUser
	}

	if !forceNew {
		if id, ok := p.local.lookupActive(userID, namespace); ok {
			return id
		}
	}

	id, reused, err := p.backend.GetOrCreateSession(ctx, namespace, userID, p.local.Timeout(), forceNew)
	if err != nil {
		p.logger.Warn("backend session lookup failed, using local fallback", "error", err)
		return p.local.GetOrCreateSession(userID, namespace, forceNew)
	}

	p.local.install(userID, namespace, id)
	p.logger.Debug("resolved server-side session",
		"session_id", id,
		"reused", reused,
	)
	return id
}

// UpdateActivity refreshes the local cache entry for the user.
func (p *PersistentManager) UpdateActivity(userID, namespace string) {
	p.local.UpdateActivity(userID, namespace)
}

// CloseSession drops the local cache entry so the next lookup consults the
// backend again with forceNew semantics left to the caller.
func (p *PersistentManager) CloseSession(userID, namespace string) {
	p.local.CloseSession(userID, namespace)
}

// lookupActive returns the cached session id for the pair when it is still
// active, renewing its window. Unlike GetOrCreateSession it never creates.
func (m *Manager) lookupActive(userID, namespace string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[tableKey(namespace, userID)]
	if !ok {
		return "", false
	}
	now := m.now()
	if now.Sub(e.lastActivity) >= m.timeout {
		return "", false
	}
	e.lastActivity = now
	return e.sessionID, true
}

// install caches a backend-resolved session id for the pair.
func (m *Manager) install(userID, namespace, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sessions[tableKey(namespace, userID)] = &entry{
		sessionID:    sessionID,
		createdAt:    now,
		lastActivity: now,
	}
}
