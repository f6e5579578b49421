package access

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// SetMemberChecker is the subset of the redis client RedisCapabilities needs.
type SetMemberChecker interface {
	SIsMember(ctx context.Context, key string, member interface{}) *redis.BoolCmd
}

// RedisCapabilities stores grants as redis sets: the members of
// "<prefix><capability>" are the principals holding that capability.
type RedisCapabilities struct {
	client SetMemberChecker
	prefix string
}

func NewRedisCapabilities(client SetMemberChecker, prefix string) *RedisCapabilities {
	if prefix == "" {
		prefix = "capability:"
	}
	return &RedisCapabilities{client: client, prefix: prefix}
}

func (r *RedisCapabilities) HasCapability(ctx context.Context, principalID, capability string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, r.prefix+capability, principalID).Result()
	if err != nil {
		return false, fmt.Errorf("check capability %s: %w", capability, err)
	}
	return ok, nil
}
