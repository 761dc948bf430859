package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/avolkova/quizauth/internal/models"
	"github.com/avolkova/quizauth/internal/storage"
	storageredis "github.com/avolkova/quizauth/internal/storage/redis"
	"github.com/avolkova/quizauth/internal/util"
)

const testPassword = "correct-password-123"

type fakeUserRepository struct {
	users map[string]*models.User
}

func (f *fakeUserRepository) GetUserByIdentifier(_ context.Context, identifier string) (*models.User, error) {
	identifier = strings.ToLower(identifier)
	for _, u := range f.users {
		if u.Email == identifier || u.Username == identifier {
			return u, nil
		}
	}
	return nil, storage.ErrUserNotFound
}

func (f *fakeUserRepository) GetUserByID(_ context.Context, id string) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return u, nil
}

func testUsers(t *testing.T) *fakeUserRepository {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt hash failed: %v", err)
	}

	return &fakeUserRepository{users: map[string]*models.User{
		"u-alice": {
			ID: "u-alice", FullName: "Alice", Email: "alice@example.com",
			Username: "alice", PasswordHash: string(hash), IsVerified: true, IsUser: true,
		},
		"u-bob": {
			ID: "u-bob", FullName: "Bob", Email: "bob@example.com",
			Username: "bob", PasswordHash: string(hash), IsVerified: true, IsUser: false,
		},
		"u-carol": {
			ID: "u-carol", FullName: "Carol", Email: "carol@example.com",
			Username: "carol", PasswordHash: string(hash), IsVerified: false, IsUser: true,
		},
	}}
}

func newTestAuthService(t *testing.T) (*AuthService, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	tokens := newTestTokenService()
	sessions := storageredis.NewSessionStore(client)
	denylist := storageredis.NewTokenDenylist(client)
	limiter := NewLoginLimiter(client, &util.RateLimiterConfig{
		LoginAttemptLimit: 3,
		LoginBlockTime:    time.Minute,
	})

	auth := NewAuthService(tokens, sessions, denylist, testUsers(t), limiter, nil, zap.NewNop().Sugar())

	return auth, mr, func() {
		_ = client.Close()
		mr.Close()
	}
}

func TestLoginIssuesBoundTokenPair(t *testing.T) {
	auth, _, done := newTestAuthService(t)
	defer done()
	ctx := context.Background()

	user, pair, err := auth.Login(ctx, "alice", testPassword, models.ScopeUser)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if user.ID != "u-alice" {
		t.Errorf("user id = %q, want u-alice", user.ID)
	}

	accessClaims, err := auth.tokens.VerifyAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("access token invalid: %v", err)
	}
	refreshClaims, err := auth.tokens.VerifyRefreshToken(pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh token invalid: %v", err)
	}
	if accessClaims.SessionID == "" || accessClaims.SessionID != refreshClaims.SessionID {
		t.Errorf("tokens not bound to the same session: %q vs %q", accessClaims.SessionID, refreshClaims.SessionID)
	}

	identity, err := auth.Authenticate(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if identity.Scope != models.ScopeUser {
		t.Errorf("identity scope = %q, want user", identity.Scope)
	}
	if identity.User.ID != "u-alice" {
		t.Errorf("identity user = %q, want u-alice", identity.User.ID)
	}
}

func TestLoginRejections(t *testing.T) {
	auth, _, done := newTestAuthService(t)
	defer done()
	ctx := context.Background()

	if _, _, err := auth.Login(ctx, "alice", "wrong-password", models.ScopeUser); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: got %v, want ErrInvalidCredentials", err)
	}
	if _, _, err := auth.Login(ctx, "nobody", testPassword, models.ScopeUser); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user: got %v, want ErrInvalidCredentials", err)
	}
	if _, _, err := auth.Login(ctx, "carol", testPassword, models.ScopeUser); !errors.Is(err, ErrAccountNotVerified) {
		t.Errorf("unverified user: got %v, want ErrAccountNotVerified", err)
	}
	if _, _, err := auth.Login(ctx, "alice", testPassword, models.ScopeAdmin); !errors.Is(err, ErrScopeNotAllowed) {
		t.Errorf("plain user on admin scope: got %v, want ErrScopeNotAllowed", err)
	}
	if _, _, err := auth.Login(ctx, "bob", testPassword, models.ScopeAdmin); err != nil {
		t.Errorf("admin-eligible user on admin scope: got %v, want success", err)
	}
}

func TestLoginRateLimited(t *testing.T) {
	auth, _, done := newTestAuthService(t)
	defer done()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, _, err := auth.Login(ctx, "alice", "wrong-password", models.ScopeUser); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: got %v, want ErrInvalidCredentials", i, err)
		}
	}

	// Limit reached: even the correct password is refused until cooldown.
	if _, _, err := auth.Login(ctx, "alice", testPassword, models.ScopeUser); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("got %v, want ErrRateLimited", err)
	}
}

func TestRotateReplayLockout(t *testing.T) {
	auth, _, done := newTestAuthService(t)
	defer done()
	ctx := context.Background()

	_, pair0, err := auth.Login(ctx, "alice", testPassword, models.ScopeUser)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	pair1, err := auth.Rotate(ctx, pair0.RefreshToken, models.ScopeUser)
	if err != nil {
		t.Fatalf("first rotation failed: %v", err)
	}

	// Replaying the superseded token revokes the whole session.
	if _, err := auth.Rotate(ctx, pair0.RefreshToken, models.ScopeUser); !errors.Is(err, ErrReplayDetected) {
		t.Fatalf("replay: got %v, want ErrReplayDetected", err)
	}

	// The current token is now dead too: the session is gone.
	if _, err := auth.Rotate(ctx, pair1.RefreshToken, models.ScopeUser); !errors.Is(err, storage.ErrSessionNotFound) {
		t.Fatalf("post-replay rotation: got %v, want ErrSessionNotFound", err)
	}

	// And the access path agrees.
	if _, err := auth.Authenticate(ctx, pair1.AccessToken); !errors.Is(err, storage.ErrSessionNotFound) {
		t.Fatalf("post-replay authenticate: got %v, want ErrSessionNotFound", err)
	}
}

func TestRotateScopeMismatchLeavesSessionIntact(t *testing.T) {
	auth, _, done := newTestAuthService(t)
	defer done()
	ctx := context.Background()

	_, pair, err := auth.Login(ctx, "alice", testPassword, models.ScopeUser)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if _, err := auth.Rotate(ctx, pair.RefreshToken, models.ScopeAdmin); !errors.Is(err, ErrScopeMismatch) {
		t.Fatalf("got %v, want ErrScopeMismatch", err)
	}

	// Routing-level rejection: the same token still rotates on its own route.
	if _, err := auth.Rotate(ctx, pair.RefreshToken, models.ScopeUser); err != nil {
		t.Fatalf("rotation after scope mismatch failed: %v", err)
	}
}

func TestScopeImmutableAcrossRotations(t *testing.T) {
	auth, _, done := newTestAuthService(t)
	defer done()
	ctx := context.Background()

	_, pair, err := auth.Login(ctx, "alice", testPassword, models.ScopeUser)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		pair, err = auth.Rotate(ctx, pair.RefreshToken, models.ScopeUser)
		if err != nil {
			t.Fatalf("rotation %d failed: %v", i, err)
		}
	}

	identity, err := auth.Authenticate(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if identity.Scope != models.ScopeUser {
		t.Errorf("scope drifted to %q after rotations", identity.Scope)
	}
	if Authorize("/api/admin/me", identity.Scope) {
		t.Error("user-scope session authorized for an admin route")
	}
}

func TestLogoutIdempotent(t *testing.T) {
	auth, _, done := newTestAuthService(t)
	defer done()
	ctx := context.Background()

	_, pair, err := auth.Login(ctx, "alice", testPassword, models.ScopeUser)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := auth.RevokeByTokens(ctx, pair.RefreshToken, pair.AccessToken, models.ScopeUser); err != nil {
		t.Fatalf("first logout failed: %v", err)
	}
	if err := auth.RevokeByTokens(ctx, pair.RefreshToken, pair.AccessToken, models.ScopeUser); err != nil {
		t.Fatalf("second logout not idempotent: %v", err)
	}

	if _, err := auth.Authenticate(ctx, pair.AccessToken); !errors.Is(err, storage.ErrSessionNotFound) {
		t.Fatalf("post-logout authenticate: got %v, want ErrSessionNotFound", err)
	}
}

func TestLogoutScopeMismatchDoesNotRevoke(t *testing.T) {
	auth, _, done := newTestAuthService(t)
	defer done()
	ctx := context.Background()

	_, pair, err := auth.Login(ctx, "alice", testPassword, models.ScopeUser)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	err = auth.RevokeByTokens(ctx, pair.RefreshToken, pair.AccessToken, models.ScopeAdmin)
	if !errors.Is(err, ErrScopeMismatch) {
		t.Fatalf("got %v, want ErrScopeMismatch", err)
	}

	if _, err := auth.Authenticate(ctx, pair.AccessToken); err != nil {
		t.Fatalf("session should have survived the mismatched logout: %v", err)
	}
}

func TestLogoutWithAccessTokenOnly(t *testing.T) {
	auth, _, done := newTestAuthService(t)
	defer done()
	ctx := context.Background()

	_, pair, err := auth.Login(ctx, "alice", testPassword, models.ScopeUser)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := auth.RevokeByTokens(ctx, "", pair.AccessToken, models.ScopeUser); err != nil {
		t.Fatalf("access-only logout failed: %v", err)
	}

	if _, err := auth.Rotate(ctx, pair.RefreshToken, models.ScopeUser); !errors.Is(err, storage.ErrSessionNotFound) {
		t.Fatalf("rotation after access-only logout: got %v, want ErrSessionNotFound", err)
	}
}

func TestRevokeIdempotent(t *testing.T) {
	auth, _, done := newTestAuthService(t)
	defer done()
	ctx := context.Background()

	if err := auth.Revoke(ctx, "never-existed"); err != nil {
		t.Fatalf("revoking an absent session must not fail: %v", err)
	}
}

func TestRotateConcurrencySingleWinner(t *testing.T) {
	auth, _, done := newTestAuthService(t)
	defer done()
	ctx := context.Background()

	_, pair, err := auth.Login(ctx, "alice", testPassword, models.ScopeUser)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	const n = 16
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(n)

	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			<-start
			_, err := auth.Rotate(ctx, pair.RefreshToken, models.ScopeUser)
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	success := 0
	fail := 0
	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrReplayDetected), errors.Is(err, storage.ErrSessionNotFound):
			fail++
		default:
			t.Fatalf("unexpected rotate error: %v", err)
		}
	}

	if success != 1 {
		t.Fatalf("expected exactly one rotation success, got %d", success)
	}
	if fail != n-1 {
		t.Fatalf("expected %d rotation failures, got %d", n-1, fail)
	}
}
