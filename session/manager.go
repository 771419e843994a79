// ABOUTME: Thread-safe session table with sliding-window inactivity expiry.
// ABOUTME: One active session per (namespace, user) pair at any instant.

package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultInactivityTimeout is how long a session survives without activity.
const DefaultInactivityTimeout = 120 * time.Second

// AnonymousUser is the user id assigned when the caller supplies none.
// All anonymous callers in the same namespace share one session within the
// timeout window; set an explicit user id for multi-tenant isolation.
const AnonymousUser = "anonymous"

// stampFormat is the timestamp suffix of generated session ids.
const stampFormat = "20060102-150405"

// entry is one row of the session table.
type entry struct {
	sessionID    string
	createdAt    time.Time
	lastActivity time.Time
}

// Info is a read-only snapshot of an active session, for diagnostics.
type Info struct {
	SessionID    string
	CreatedAt    time.Time
	LastActivity time.Time
	Duration     time.Duration
	InactiveFor  time.Duration
}

// Manager owns the session table. All methods are safe for concurrent use;
// a single coarse lock guards the table since every operation is O(1).
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*entry
	timeout  time.Duration
	logger   *slog.Logger

	// lastStamp enforces a strictly increasing id timestamp so that a
	// close-then-create within the same second cannot reuse an id.
	lastStamp time.Time

	// now is swappable in tests.
	now func() time.Time
}

// NewManager creates a session manager. A non-positive timeout falls back
// to DefaultInactivityTimeout.
func NewManager(timeout time.Duration, logger *slog.Logger) *Manager {
	if timeout <= 0 {
		timeout = DefaultInactivityTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions: make(map[string]*entry),
		timeout:  timeout,
		logger:   logger.With("component", "session"),
		now:      time.Now,
	}
}

// Timeout returns the configured inactivity timeout.
func (m *Manager) Timeout() time.Duration {
	return m.timeout
}

// GetOrCreateSession returns the active session id for (namespace, userID),
// creating a new one when none exists, the existing one has expired, or
// forceNew is set. Hitting an active session renews its expiry window.
// An empty userID maps to AnonymousUser. Never fails.
func (m *Manager) GetOrCreateSession(userID, namespace string, forceNew bool) string {
	if userID == "" {
		userID = AnonymousUser
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	key := tableKey(namespace, userID)

	if e, ok := m.sessions[key]; ok && !forceNew {
		idle := now.Sub(e.lastActivity)
		if idle < m.timeout {
			e.lastActivity = now
			return e.sessionID
		}
		m.logger.Debug("session expired",
			"user_id", userID,
			"namespace", namespace,
			"inactive_for", idle,
		)
	}

	sessionID := fmt.Sprintf("%s-%s-%s", namespace, userID, m.nextStamp(now).Format(stampFormat))
	m.sessions[key] = &entry{
		sessionID:    sessionID,
		createdAt:    now,
		lastActivity: now,
	}
	m.logger.Debug("session created", "session_id", sessionID, "user_id", userID)
	return sessionID
}

// UpdateActivity refreshes the last-activity timestamp of the user's
// current session without minting a new id. No-op when no session exists.
func (m *Manager) UpdateActivity(userID, namespace string) {
	if userID == "" {
		userID = AnonymousUser
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.sessions[tableKey(namespace, userID)]; ok {
		e.lastActivity = m.now()
	}
}

// CloseSession force-closes the user's session. The next
// GetOrCreateSession call is guaranteed to mint a new id regardless of
// elapsed time.
func (m *Manager) CloseSession(userID, namespace string) {
	if userID == "" {
		userID = AnonymousUser
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, tableKey(namespace, userID))
}

// CleanupExpired removes expired sessions from the table and returns how
// many were removed. Purely housekeeping: lazy expiry in
// GetOrCreateSession is sufficient for correctness, cleanup only bounds
// memory. Safe to call on a timer or never.
func (m *Manager) CleanupExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for key, e := range m.sessions {
		if now.Sub(e.lastActivity) >= m.timeout {
			delete(m.sessions, key)
			removed++
		}
	}
	return removed
}

// GetSessionInfo returns a snapshot of the user's current session, or
// ok=false when none exists.
func (m *Manager) GetSessionInfo(userID, namespace string) (Info, bool) {
	if userID == "" {
		userID = AnonymousUser
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[tableKey(namespace, userID)]
	if !ok {
		return Info{}, false
	}
	now := m.now()
	return Info{
		SessionID:    e.sessionID,
		CreatedAt:    e.createdAt,
		LastActivity: e.lastActivity,
		Duration:     now.Sub(e.createdAt),
		InactiveFor:  now.Sub(e.lastActivity),
	}, true
}

// nextStamp returns a creation timestamp that is strictly later (at second
// granularity) than any previously issued one, so consecutive creates for
// the same user never collide. Must be called with the mutex held.
func (m *Manager) nextStamp(now time.Time) time.Time {
	stamp := now.Truncate(time.Second)
	if !stamp.After(m.lastStamp) {
		stamp = m.lastStamp.Add(time.Second)
	}
	m.lastStamp = stamp
	return stamp
}

func tableKey(namespace, userID string) string {
	return namespace + "/" + userID
}
