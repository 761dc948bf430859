package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const denylistKeyPrefix = "denylist:"

// TokenDenylist marks individual tokens as invalid until their natural
// expiry. Entries outlive their usefulness automatically via TTL.
type TokenDenylist struct {
	client *redis.Client
}

func NewTokenDenylist(client *redis.Client) *TokenDenylist {
	return &TokenDenylist{client: client}
}

func (d *TokenDenylist) Deny(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		// Already expired on its own.
		return nil
	}
	return d.client.Set(ctx, denylistKeyPrefix+token, "denied", ttl).Err()
}

func (d *TokenDenylist) IsDenied(ctx context.Context, token string) (bool, error) {
	result, err := d.client.Get(ctx, denylistKeyPrefix+token).Result()
	if err == redis.Nil {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return result == "denied", nil
}
