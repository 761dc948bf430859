package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/avolkova/quizauth/internal/models"
	"github.com/avolkova/quizauth/internal/storage"
)

const sessionKeyPrefix = "session:"

const (
	rotateStatusNotFound    int64 = 0
	rotateStatusInvalidBlob int64 = 1
	rotateStatusMismatch    int64 = 2
	rotateStatusRotated     int64 = 3
)

// rotateLua is the read-compare-write for refresh rotation. Running it as a
// single script keeps the anti-replay invariant under concurrent rotation:
// only one caller can observe a match before the stored id changes. A
// mismatch means the presented token was superseded, so the session is
// deleted right here rather than merely rejected.
var rotateLua = redis.NewScript(`
local raw = redis.call("GET", KEYS[1])
if not raw then
  return 0
end
local ok, sess = pcall(cjson.decode, raw)
if not ok or type(sess) ~= "table" or not sess.refresh_jti then
  redis.call("DEL", KEYS[1])
  return 1
end
if sess.refresh_jti ~= ARGV[1] then
  redis.call("DEL", KEYS[1])
  return 2
end
sess.refresh_jti = ARGV[2]
redis.call("SET", KEYS[1], cjson.encode(sess), "PX", ARGV[3])
return 3
`)

type SessionStore struct {
	client *redis.Client
}

func NewSessionStore(client *redis.Client) *SessionStore {
	return &SessionStore{client: client}
}

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

func (s *SessionStore) Create(ctx context.Context, sessionID string, session models.Session, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(sessionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, storage.ErrSessionNotFound
	} else if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}

func (s *SessionStore) Rotate(ctx context.Context, sessionID, presentedJTI, nextJTI string, ttl time.Duration) error {
	status, err := rotateLua.Run(
		ctx,
		s.client,
		[]string{sessionKey(sessionID)},
		presentedJTI,
		nextJTI,
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return fmt.Errorf("rotate session: %w", err)
	}

	switch status {
	case rotateStatusRotated:
		return nil
	case rotateStatusMismatch:
		return storage.ErrRefreshMismatch
	case rotateStatusNotFound, rotateStatusInvalidBlob:
		return storage.ErrSessionNotFound
	default:
		return fmt.Errorf("rotate session: unexpected status %d", status)
	}
}

func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
