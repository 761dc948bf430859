package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/avolkova/quizauth/internal/models"
	"github.com/avolkova/quizauth/internal/storage"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountNotVerified = errors.New("account not verified")
	ErrScopeNotAllowed    = errors.New("scope not allowed for this account")
	ErrReplayDetected     = errors.New("refresh token reuse detected")
	ErrScopeMismatch      = errors.New("invalid scope for this endpoint")
)

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AuthService owns the session lifecycle: create, validate-and-rotate,
// revoke. A session's record in the session store is the sole source of
// truth for its validity.
type AuthService struct {
	tokens   *TokenService
	sessions storage.SessionStore
	denylist storage.TokenDenylist
	users    storage.UserRepository
	limiter  *LoginLimiter
	webhook  *SecurityWebhook
	log      *zap.SugaredLogger
}

func NewAuthService(
	tokens *TokenService,
	sessions storage.SessionStore,
	denylist storage.TokenDenylist,
	users storage.UserRepository,
	limiter *LoginLimiter,
	webhook *SecurityWebhook,
	log *zap.SugaredLogger,
) *AuthService {
	return &AuthService{
		tokens:   tokens,
		sessions: sessions,
		denylist: denylist,
		users:    users,
		limiter:  limiter,
		webhook:  webhook,
		log:      log,
	}
}

// Login verifies credentials and eligibility for the requested scope, then
// opens a fresh session.
func (s *AuthService) Login(ctx context.Context, identifier, password string, scope models.Scope) (*models.User, *TokenPair, error) {
	if s.limiter != nil {
		if err := s.limiter.Check(ctx, identifier); err != nil {
			return nil, nil, err
		}
	}

	user, err := s.users.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			s.recordLoginFailure(ctx, identifier)
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.recordLoginFailure(ctx, identifier)
		return nil, nil, ErrInvalidCredentials
	}

	if !user.IsVerified {
		return nil, nil, ErrAccountNotVerified
	}
	if scope == models.ScopeAdmin && user.IsUser {
		return nil, nil, ErrScopeNotAllowed
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, identifier); err != nil {
			s.log.Warnw("failed to reset login limiter", "error", err)
		}
	}

	pair, _, err := s.CreateSession(ctx, user, scope)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// CreateSession generates a session id, mints the initial token pair and
// persists the session record with TTL equal to the refresh token life.
// The scope is fixed here for the session's lifetime.
func (s *AuthService) CreateSession(ctx context.Context, user *models.User, scope models.Scope) (*TokenPair, string, error) {
	sessionID := uuid.NewString()
	now := time.Now()

	refreshToken, refreshJTI, err := s.tokens.CreateRefreshToken(user.ID, sessionID, scope, now)
	if err != nil {
		return nil, "", fmt.Errorf("create refresh token: %w", err)
	}
	accessToken, err := s.tokens.CreateAccessToken(user.ID, sessionID, scope, now)
	if err != nil {
		return nil, "", fmt.Errorf("create access token: %w", err)
	}

	session := models.Session{
		UserID:     user.ID,
		Scope:      scope,
		RefreshJTI: refreshJTI,
	}
	if err := s.sessions.Create(ctx, sessionID, session, s.tokens.RefreshTTL()); err != nil {
		return nil, "", fmt.Errorf("persist session: %w", err)
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, sessionID, nil
}

// Rotate exchanges a valid refresh token for a new pair. A presented token
// whose id no longer matches the session's current refresh id is a replay:
// the session is revoked outright, not merely rejected.
func (s *AuthService) Rotate(ctx context.Context, refreshToken string, requiredScope models.Scope) (*TokenPair, error) {
	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}
	if claims.SessionID == "" {
		return nil, ErrTokenMalformed
	}

	// Tokens land on the denylist only when superseded or logged out, so a
	// hit here is a replay even before the store compare runs.
	if s.denylist != nil {
		denied, derr := s.denylist.IsDenied(ctx, refreshToken)
		if derr != nil {
			s.log.Warnw("token denylist unavailable, continuing", "error", derr)
		} else if denied {
			s.log.Warnw("denylisted refresh token presented, session revoked",
				"session_id", claims.SessionID, "user_id", claims.Subject)
			if err := s.sessions.Delete(ctx, claims.SessionID); err != nil {
				s.log.Warnw("failed to revoke session", "error", err, "session_id", claims.SessionID)
			}
			if s.webhook != nil {
				s.webhook.NotifyReplayDetected(ctx, claims.SessionID, claims.Subject)
			}
			return nil, ErrReplayDetected
		}
	}

	session, err := s.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}

	// Routing-level rejection, not a security revocation: no state change.
	if requiredScope != "" && session.Scope != requiredScope {
		return nil, ErrScopeMismatch
	}

	nextJTI := uuid.NewString()
	err = s.sessions.Rotate(ctx, claims.SessionID, claims.ID, nextJTI, s.tokens.RefreshTTL())
	switch {
	case errors.Is(err, storage.ErrRefreshMismatch):
		s.log.Warnw("refresh token reuse detected, session revoked",
			"session_id", claims.SessionID, "user_id", session.UserID)
		s.denyToken(ctx, refreshToken, claims)
		if s.webhook != nil {
			s.webhook.NotifyReplayDetected(ctx, claims.SessionID, session.UserID)
		}
		return nil, ErrReplayDetected
	case errors.Is(err, storage.ErrSessionNotFound):
		return nil, err
	case err != nil:
		return nil, err
	}

	// The superseded token stays syntactically valid until its exp; the
	// denylist shortens that window. Failure here must not fail the rotation.
	s.denyToken(ctx, refreshToken, claims)

	now := time.Now()
	newRefresh, err := s.tokens.CreateRefreshTokenWithJTI(session.UserID, claims.SessionID, session.Scope, now, nextJTI)
	if err != nil {
		return nil, fmt.Errorf("create refresh token: %w", err)
	}
	newAccess, err := s.tokens.CreateAccessToken(session.UserID, claims.SessionID, session.Scope, now)
	if err != nil {
		return nil, fmt.Errorf("create access token: %w", err)
	}

	return &TokenPair{AccessToken: newAccess, RefreshToken: newRefresh}, nil
}

// Revoke deletes the session unconditionally. Revoking an absent session is
// not an error.
func (s *AuthService) Revoke(ctx context.Context, sessionID string) error {
	return s.sessions.Delete(ctx, sessionID)
}

// RevokeByTokens is the logout path: the caller may hold only one of the two
// tokens. The session id is resolved from the refresh token when present and
// valid, falling back to the access token. When the route binds a scope, a
// session of a different scope is rejected without being revoked.
func (s *AuthService) RevokeByTokens(ctx context.Context, refreshToken, accessToken string, requiredScope models.Scope) error {
	var sessionID string
	var refreshClaims *Claims

	if refreshToken != "" {
		if claims, err := s.tokens.VerifyRefreshToken(refreshToken); err == nil && claims.SessionID != "" {
			sessionID = claims.SessionID
			refreshClaims = claims
		}
	}
	if sessionID == "" && accessToken != "" {
		if claims, err := s.tokens.VerifyAccessToken(accessToken); err == nil {
			sessionID = claims.SessionID
		}
	}
	if sessionID == "" {
		// No resolvable session. Logout stays a success for the client.
		return nil
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if errors.Is(err, storage.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if requiredScope != "" && session.Scope != requiredScope {
		return ErrScopeMismatch
	}

	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return err
	}
	if refreshClaims != nil {
		s.denyToken(ctx, refreshToken, refreshClaims)
	}
	return nil
}

// Authenticate resolves an access token into an Identity. Read-only: the
// session TTL is never touched here.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*models.Identity, error) {
	claims, err := s.tokens.VerifyAccessToken(accessToken)
	if err != nil {
		return nil, err
	}
	if claims.SessionID == "" {
		return nil, ErrTokenMalformed
	}

	session, err := s.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	return &models.Identity{
		User:      user,
		Scope:     session.Scope,
		SessionID: claims.SessionID,
	}, nil
}

// denyToken denylists a token until its natural expiry. Denylist failures
// are logged and ignored; the session store stays authoritative.
func (s *AuthService) denyToken(ctx context.Context, token string, claims *Claims) {
	if s.denylist == nil || claims.ExpiresAt == nil {
		return
	}
	if err := s.denylist.Deny(ctx, token, time.Until(claims.ExpiresAt.Time)); err != nil {
		s.log.Warnw("token denylist unavailable, continuing", "error", err)
	}
}

func (s *AuthService) recordLoginFailure(ctx context.Context, identifier string) {
	if s.limiter == nil {
		return
	}
	if err := s.limiter.RecordFailure(ctx, identifier); err != nil {
		s.log.Warnw("failed to record login failure", "error", err)
	}
}
