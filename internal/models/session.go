package models

import "time"

// Scope is the coarse permission level bound to a session at creation.
// It never changes for the lifetime of the session.
type Scope string

const (
	ScopeUser  Scope = "user"
	ScopeAdmin Scope = "admin"
)

func (s Scope) Valid() bool {
	return s == ScopeUser || s == ScopeAdmin
}

// Session is the server-side record binding a session id to a subject,
// a scope and the currently valid refresh-token id. Its presence in the
// session store is the sole source of truth for validity.
type Session struct {
	UserID     string `json:"user_id"`
	Scope      Scope  `json:"scope"`
	RefreshJTI string `json:"refresh_jti"`
}

// Identity is the authenticated principal attached to a request by the
// authentication gate.
type Identity struct {
	User      *User
	Scope     Scope
	SessionID string
}

type User struct {
	ID           string    `json:"id"`
	FullName     string    `json:"full_name"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	IsVerified   bool      `json:"is_verified"`
	IsUser       bool      `json:"is_user"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
