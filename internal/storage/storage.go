package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/avolkova/quizauth/internal/models"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	// ErrRefreshMismatch is returned by SessionStore.Rotate when the presented
	// refresh id is not the current one. The store has already deleted the
	// session by the time this is returned.
	ErrRefreshMismatch = errors.New("refresh token id mismatch")
	ErrUserNotFound    = errors.New("user not found")
)

// SessionStore is the key-value store holding one record per logical session.
// Implementations must provide per-key atomicity; Rotate in particular is a
// single atomic read-compare-write.
type SessionStore interface {
	Create(ctx context.Context, sessionID string, session models.Session, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (*models.Session, error)
	// Rotate compares presentedJTI against the stored refresh id. On match it
	// swaps in nextJTI and resets the TTL. On mismatch it deletes the session
	// and returns ErrRefreshMismatch. A missing session returns
	// ErrSessionNotFound.
	Rotate(ctx context.Context, sessionID, presentedJTI, nextJTI string, ttl time.Duration) error
	// Delete is idempotent: deleting an absent session is not an error.
	Delete(ctx context.Context, sessionID string) error
}

// TokenDenylist marks individual tokens as invalid before their natural
// expiry. Callers treat it as best-effort.
type TokenDenylist interface {
	Deny(ctx context.Context, token string, ttl time.Duration) error
	IsDenied(ctx context.Context, token string) (bool, error)
}

type UserRepository interface {
	GetUserByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

type DBTX interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
