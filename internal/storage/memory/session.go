package memory

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/avolkova/quizauth/internal/models"
	"github.com/avolkova/quizauth/internal/storage"
)

type sessionEntry struct {
	session   models.Session
	expiresAt time.Time
}

// InMemorySessionStore mirrors the Redis store's contract, including the
// atomic compare-and-rotate, for handler tests and local development.
type InMemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]sessionEntry
	log      *zap.SugaredLogger
}

func NewSessionStore(log *zap.SugaredLogger) *InMemorySessionStore {
	return &InMemorySessionStore{
		sessions: make(map[string]sessionEntry),
		log:      log,
	}
}

func (m *InMemorySessionStore) Create(ctx context.Context, sessionID string, session models.Session, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[sessionID] = sessionEntry{session: session, expiresAt: time.Now().Add(ttl)}
	m.log.Debugw("Session created", "sessionID", sessionID, "userID", session.UserID, "ttl", ttl)

	return nil
}

func (m *InMemorySessionStore) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.liveEntry(sessionID)
	if !ok {
		return nil, storage.ErrSessionNotFound
	}

	session := entry.session
	return &session, nil
}

func (m *InMemorySessionStore) Rotate(ctx context.Context, sessionID, presentedJTI, nextJTI string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.liveEntry(sessionID)
	if !ok {
		return storage.ErrSessionNotFound
	}

	if entry.session.RefreshJTI != presentedJTI {
		delete(m.sessions, sessionID)
		return storage.ErrRefreshMismatch
	}

	entry.session.RefreshJTI = nextJTI
	entry.expiresAt = time.Now().Add(ttl)
	m.sessions[sessionID] = entry

	return nil
}

func (m *InMemorySessionStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, sessionID)

	return nil
}

// liveEntry must be called with the lock held.
func (m *InMemorySessionStore) liveEntry(sessionID string) (sessionEntry, bool) {
	entry, ok := m.sessions[sessionID]
	if !ok {
		return sessionEntry{}, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(m.sessions, sessionID)
		return sessionEntry{}, false
	}
	return entry, true
}
