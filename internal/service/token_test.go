package service

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/avolkova/quizauth/internal/models"
	"github.com/avolkova/quizauth/internal/util"
)

func newTestTokenService() *TokenService {
	return NewTokenService(&util.TokenConfig{
		JwtSecretKey: []byte("test-secret-key"),
		AccessTTL:    15 * time.Minute,
		RefreshTTL:   24 * time.Hour,
	})
}

func TestAccessTokenRoundTrip(t *testing.T) {
	ts := newTestTokenService()

	token, err := ts.CreateAccessToken("user-1", "sess-1", models.ScopeUser, time.Now())
	if err != nil {
		t.Fatalf("CreateAccessToken failed: %v", err)
	}

	claims, err := ts.VerifyAccessToken(token)
	if err != nil {
		t.Fatalf("VerifyAccessToken failed: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("subject = %q, want %q", claims.Subject, "user-1")
	}
	if claims.SessionID != "sess-1" {
		t.Errorf("session id = %q, want %q", claims.SessionID, "sess-1")
	}
	if claims.Scope != models.ScopeUser {
		t.Errorf("scope = %q, want %q", claims.Scope, models.ScopeUser)
	}
	if claims.ID == "" {
		t.Error("expected non-empty jti")
	}
}

func TestRefreshTokenCarriesRequestedJTI(t *testing.T) {
	ts := newTestTokenService()

	token, err := ts.CreateRefreshTokenWithJTI("user-1", "sess-1", models.ScopeAdmin, time.Now(), "jti-42")
	if err != nil {
		t.Fatalf("CreateRefreshTokenWithJTI failed: %v", err)
	}

	claims, err := ts.VerifyRefreshToken(token)
	if err != nil {
		t.Fatalf("VerifyRefreshToken failed: %v", err)
	}
	if claims.ID != "jti-42" {
		t.Errorf("jti = %q, want %q", claims.ID, "jti-42")
	}
	if claims.Kind != TokenKindRefresh {
		t.Errorf("kind = %q, want %q", claims.Kind, TokenKindRefresh)
	}
}

func TestVerifyRejectsWrongKind(t *testing.T) {
	ts := newTestTokenService()

	access, err := ts.CreateAccessToken("user-1", "sess-1", models.ScopeUser, time.Now())
	if err != nil {
		t.Fatalf("CreateAccessToken failed: %v", err)
	}
	refresh, _, err := ts.CreateRefreshToken("user-1", "sess-1", models.ScopeUser, time.Now())
	if err != nil {
		t.Fatalf("CreateRefreshToken failed: %v", err)
	}

	if _, err := ts.VerifyRefreshToken(access); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("access token accepted as refresh: %v", err)
	}
	if _, err := ts.VerifyAccessToken(refresh); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("refresh token accepted as access: %v", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	ts := newTestTokenService()

	// Issued far enough in the past to be outside leeway.
	token, err := ts.CreateAccessToken("user-1", "sess-1", models.ScopeUser, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("CreateAccessToken failed: %v", err)
	}

	if _, err := ts.VerifyAccessToken(token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid for expired token, got %v", err)
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	ts := newTestTokenService()

	token, err := ts.CreateAccessToken("user-1", "sess-1", models.ScopeUser, time.Now())
	if err != nil {
		t.Fatalf("CreateAccessToken failed: %v", err)
	}

	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + ".AAAA" + parts[2][4:]

	if _, err := ts.VerifyAccessToken(tampered); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid for tampered token, got %v", err)
	}
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	ts := newTestTokenService()
	other := NewTokenService(&util.TokenConfig{
		JwtSecretKey: []byte("different-secret"),
		AccessTTL:    15 * time.Minute,
		RefreshTTL:   24 * time.Hour,
	})

	token, err := other.CreateAccessToken("user-1", "sess-1", models.ScopeUser, time.Now())
	if err != nil {
		t.Fatalf("CreateAccessToken failed: %v", err)
	}

	if _, err := ts.VerifyAccessToken(token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid for foreign key, got %v", err)
	}
}
