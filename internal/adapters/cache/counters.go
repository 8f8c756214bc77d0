package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/swaptacular/swpt-login/internal/domain"
)

// RedisCounterStore implements fixed-window counters. The window starts
// with the first increment on a fresh key.
type RedisCounterStore struct {
	client *redis.Client
}

func NewRedisCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

// IncrementWithLimit runs SET NX EX and INCR in one MULTI block, so the
// expiration is only set by the first increment and racing callers always
// observe distinct values. A non-positive limit disables the check.
func (s *RedisCounterStore) IncrementWithLimit(ctx context.Context, key string, limit int64, period time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SetNX(ctx, key, 0, period)
		incr = p.Incr(ctx, key)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", key, err)
	}

	value := incr.Val()
	if limit > 0 && value > limit {
		return value, domain.ErrRateLimited
	}
	return value, nil
}

const failuresPrefix = "vcfails:"

// minFailuresTTL keeps failure counters for at least a day, even when
// verification codes expire sooner.
const minFailuresTTL = 24 * time.Hour

// RedisFailureCounter counts failed code attempts per user ID.
type RedisFailureCounter struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisFailureCounter(client *redis.Client, codeExpiration time.Duration) *RedisFailureCounter {
	return &RedisFailureCounter{client: client, ttl: max(codeExpiration, minFailuresTTL)}
}

func (c *RedisFailureCounter) RegisterFailure(ctx context.Context, userID string) (int64, error) {
	key := failuresPrefix + userID
	var incr *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		p.Expire(ctx, key, c.ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("register failure: %w", err)
	}
	return incr.Val(), nil
}

func (c *RedisFailureCounter) Clear(ctx context.Context, userID string) error {
	return c.client.Del(ctx, failuresPrefix+userID).Err()
}
