// Package sessions owns session lifecycle and conversation history:
// creation, loading, turn appends, bounded retrieval, and idle-TTL
// pruning. All mutation goes through the Manager.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/halcyon-ai/halcyon/internal/audit"
	"github.com/halcyon-ai/halcyon/internal/observability"
	"github.com/halcyon-ai/halcyon/pkg/models"
)

// maxTurnsPerSession bounds history per session. Appends beyond the
// limit drop the oldest turns: a sliding window, never a rejected
// write.
const maxTurnsPerSession = 1000

// recentContextTurns is how many trailing turns RelevantContext folds
// into its text assembly.
const recentContextTurns = 5

// Default idle TTL and sweep cadence.
const (
	DefaultSessionTTL    = 24 * time.Hour
	DefaultSweepInterval = time.Hour
)

// ErrSessionNotFound indicates an operation against an unknown or
// already-pruned session.
var ErrSessionNotFound = errors.New("session not found")

// Manager is the in-memory session store. Mutations on one session are
// serialized by the store lock; cross-session reads proceed
// concurrently.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	history  map[string][]*models.ConversationTurn

	audit   *audit.Logger
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewManager creates an empty session manager. Audit and metrics may
// be nil.
func NewManager(auditLog *audit.Logger, metrics *observability.Metrics, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions: map[string]*models.Session{},
		history:  map[string][]*models.ConversationTurn{},
		audit:    auditLog,
		metrics:  metrics,
		logger:   logger,
	}
}

// CreateSession allocates a fresh session with empty metadata,
// preferences, and history.
func (m *Manager) CreateSession(ctx context.Context, userID, orgID string) (*models.Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("user id is required")
	}

	now := time.Now()
	session := &models.Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		OrgID:          orgID,
		CreatedAt:      now,
		LastActivityAt: now,
		Metadata:       map[string]any{},
		Preferences:    map[string]any{},
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.history[session.ID] = nil
	total := len(m.sessions)
	m.mu.Unlock()

	if m.audit != nil {
		m.audit.SessionCreated(ctx, session.ID, userID, orgID)
	}
	if m.metrics != nil {
		m.metrics.ActiveSessions.Set(float64(total))
	}
	return cloneSession(session), nil
}

// LoadSession returns the session and bumps its activity timestamp.
func (m *Manager) LoadSession(_ context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	touch(session)
	return cloneSession(session), nil
}

// AddTurn appends a turn to the session's history, trims the window to
// the most recent entries, and bumps activity.
func (m *Manager) AddTurn(_ context.Context, sessionID string, turn models.ConversationTurn) error {
	if !turn.Role.Valid() {
		return fmt.Errorf("invalid turn role %q", turn.Role)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	clone := turn
	clone.SessionID = sessionID
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if clone.Timestamp.IsZero() {
		clone.Timestamp = time.Now()
	}

	m.history[sessionID] = append(m.history[sessionID], &clone)
	if excess := len(m.history[sessionID]) - maxTurnsPerSession; excess > 0 {
		m.history[sessionID] = m.history[sessionID][excess:]
	}
	touch(session)
	return nil
}

// History returns the most recent limit turns, oldest first. A
// non-positive limit returns the whole window.
func (m *Manager) History(_ context.Context, sessionID string, limit int) ([]models.ConversationTurn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	turns := m.history[sessionID]
	start := 0
	if limit > 0 && len(turns) > limit {
		start = len(turns) - limit
	}
	out := make([]models.ConversationTurn, 0, len(turns)-start)
	for _, t := range turns[start:] {
		out = append(out, *t)
	}
	return out, nil
}

// SetPreference records a user preference on the session and bumps
// activity.
func (m *Manager) SetPreference(_ context.Context, sessionID, key string, value any) error {
	return m.mutate(sessionID, func(s *models.Session) {
		if s.Preferences == nil {
			s.Preferences = map[string]any{}
		}
		s.Preferences[key] = value
	})
}

// SetMetadata records free-form session metadata and bumps activity.
func (m *Manager) SetMetadata(_ context.Context, sessionID, key string, value any) error {
	return m.mutate(sessionID, func(s *models.Session) {
		if s.Metadata == nil {
			s.Metadata = map[string]any{}
		}
		s.Metadata[key] = value
	})
}

func (m *Manager) mutate(sessionID string, fn func(*models.Session)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	fn(session)
	touch(session)
	return nil
}

// Delete removes a session and its history.
func (m *Manager) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(m.sessions, id)
	delete(m.history, id)
	if m.metrics != nil {
		m.metrics.ActiveSessions.Set(float64(len(m.sessions)))
	}
	return nil
}

// RelevantContext assembles a best-effort text block from the
// session's preferences, its trailing turns, and its metadata. This is
// a placeholder for retrieval-augmented context, not semantic search.
func (m *Manager) RelevantContext(session *models.Session, _ string) string {
	if session == nil {
		return ""
	}

	var b strings.Builder
	if len(session.Preferences) > 0 {
		b.WriteString("User preferences:\n")
		for k, v := range session.Preferences {
			fmt.Fprintf(&b, "- %s: %v\n", k, v)
		}
	}

	m.mu.RLock()
	turns := m.history[session.ID]
	start := 0
	if len(turns) > recentContextTurns {
		start = len(turns) - recentContextTurns
	}
	recent := make([]models.ConversationTurn, 0, len(turns)-start)
	for _, t := range turns[start:] {
		recent = append(recent, *t)
	}
	m.mu.RUnlock()

	if len(recent) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, t := range recent {
			fmt.Fprintf(&b, "[%s] %s\n", t.Role, t.Content)
		}
	}

	if len(session.Metadata) > 0 {
		b.WriteString("Session context:\n")
		for k, v := range session.Metadata {
			fmt.Fprintf(&b, "- %s: %v\n", k, v)
		}
	}
	return b.String()
}

// Prune deletes sessions idle longer than maxAge, along with their
// history, and returns the count removed.
func (m *Manager) Prune(ctx context.Context, maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	var pruned int
	for id, session := range m.sessions {
		if session.LastActivityAt.Before(cutoff) {
			delete(m.sessions, id)
			delete(m.history, id)
			pruned++
		}
	}
	remaining := len(m.sessions)
	m.mu.Unlock()

	if pruned > 0 {
		if m.audit != nil {
			m.audit.SessionsPruned(ctx, pruned, maxAge)
		}
		m.logger.Info("pruned idle sessions", "count", pruned, "remaining", remaining)
	}
	if m.metrics != nil {
		m.metrics.ActiveSessions.Set(float64(remaining))
	}
	return pruned
}

// Stats summarizes the store for observability endpoints.
type Stats struct {
	Sessions int     `json:"sessions"`
	Turns    int     `json:"turns"`
	AvgTurns float64 `json:"avg_turns_per_session"`
}

// Stats returns counts and the average conversation length.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var turns int
	for _, h := range m.history {
		turns += len(h)
	}
	stats := Stats{Sessions: len(m.sessions), Turns: turns}
	if stats.Sessions > 0 {
		stats.AvgTurns = float64(turns) / float64(stats.Sessions)
	}
	return stats
}

// touch bumps LastActivityAt, keeping it monotonically non-decreasing.
func touch(session *models.Session) {
	if now := time.Now(); now.After(session.LastActivityAt) {
		session.LastActivityAt = now
	}
}

func cloneSession(session *models.Session) *models.Session {
	clone := *session
	if session.Metadata != nil {
		clone.Metadata = deepCloneMap(session.Metadata)
	}
	if session.Preferences != nil {
		clone.Preferences = deepCloneMap(session.Preferences)
	}
	return &clone
}

// deepCloneMap copies a map[string]any so callers can't mutate stored
// state through returned sessions.
func deepCloneMap(m map[string]any) map[string]any {
	clone := make(map[string]any, len(m))
	for k, v := range m {
		clone[k] = deepCloneValue(v)
	}
	return clone
}

func deepCloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCloneMap(val)
	case []any:
		cloned := make([]any, len(val))
		for i, item := range val {
			cloned[i] = deepCloneValue(item)
		}
		return cloned
	case []string:
		cloned := make([]string, len(val))
		copy(cloned, val)
		return cloned
	default:
		// Primitives are safe to copy by value.
		return v
	}
}
