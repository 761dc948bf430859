package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/avolkova/quizauth/internal/models"
	"github.com/avolkova/quizauth/internal/util"
)

var (
	ErrTokenInvalid         = errors.New("token invalid or expired")
	ErrTokenMalformed       = errors.New("token missing session id")
	ErrInvalidSigningMethod = errors.New("invalid signing method")
)

const (
	TokenKindAccess  = "access"
	TokenKindRefresh = "refresh"
)

// Claims is the single claim shape for both token kinds. Kind discriminates
// access from refresh so one can never stand in for the other.
type Claims struct {
	SessionID string       `json:"sid,omitempty"`
	Scope     models.Scope `json:"scope,omitempty"`
	Kind      string       `json:"kind"`
	jwt.RegisteredClaims
}

type TokenService struct {
	jwtSecretKey []byte
	accessTTL    time.Duration
	refreshTTL   time.Duration
}

func NewTokenService(cfg *util.TokenConfig) *TokenService {
	return &TokenService{
		jwtSecretKey: cfg.JwtSecretKey,
		accessTTL:    cfg.AccessTTL,
		refreshTTL:   cfg.RefreshTTL,
	}
}

func (ts *TokenService) AccessTTL() time.Duration  { return ts.accessTTL }
func (ts *TokenService) RefreshTTL() time.Duration { return ts.refreshTTL }

// CreateAccessToken создает SHA512 signed access токен, привязанный к сессии.
func (ts *TokenService) CreateAccessToken(userID, sessionID string, scope models.Scope, now time.Time) (string, error) {
	return ts.sign(userID, sessionID, scope, TokenKindAccess, uuid.NewString(), now, ts.accessTTL)
}

// CreateRefreshToken создает refresh токен с новым JTI.
func (ts *TokenService) CreateRefreshToken(userID, sessionID string, scope models.Scope, now time.Time) (string, string, error) {
	jti := uuid.NewString()
	signedToken, err := ts.CreateRefreshTokenWithJTI(userID, sessionID, scope, now, jti)
	if err != nil {
		return "", "", err
	}
	return signedToken, jti, nil
}

// CreateRefreshTokenWithJTI создает refresh токен с заданным JTI. Ротация
// сначала фиксирует новый JTI в сторе и только потом подписывает токен.
func (ts *TokenService) CreateRefreshTokenWithJTI(userID, sessionID string, scope models.Scope, now time.Time, jti string) (string, error) {
	return ts.sign(userID, sessionID, scope, TokenKindRefresh, jti, now, ts.refreshTTL)
}

func (ts *TokenService) sign(userID, sessionID string, scope models.Scope, kind, jti string, now time.Time, ttl time.Duration) (string, error) {
	claims := &Claims{
		SessionID: sessionID,
		Scope:     scope,
		Kind:      kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signedToken, err := token.SignedString(ts.jwtSecretKey)
	if err != nil {
		return "", fmt.Errorf("signed string: %w", err)
	}

	return signedToken, nil
}

func (ts *TokenService) VerifyAccessToken(token string) (*Claims, error) {
	return ts.verify(token, TokenKindAccess)
}

func (ts *TokenService) VerifyRefreshToken(token string) (*Claims, error) {
	return ts.verify(token, TokenKindRefresh)
}

func (ts *TokenService) verify(token, kind string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithLeeway(util.JWTLeeWay),
		jwt.WithExpirationRequired(),
	}

	parsedToken, err := jwt.ParseWithClaims(
		token,
		&Claims{},
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS512.Alg() {
				return nil, ErrInvalidSigningMethod
			}
			return ts.jwtSecretKey, nil
		},
		opts...,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	if parsedToken == nil || !parsedToken.Valid {
		return nil, ErrTokenInvalid
	}

	claims, ok := parsedToken.Claims.(*Claims)
	if !ok || claims.Kind != kind || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
