package cache

import (
	"context"
	"crypto/sha256"
	"encoding/ascii85"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
)

const deviceHistoryPrefix = "cc:"

// RedisDeviceHistory keeps, per user, a sorted set of hashed computer codes
// scored by the time they were last added. The set never holds more than
// maxCount members; adding beyond that evicts the oldest.
type RedisDeviceHistory struct {
	client   *redis.Client
	maxCount int64
	ttl      time.Duration
	nowFn    func() time.Time
}

func NewRedisDeviceHistory(client *redis.Client, maxCount int, ttl time.Duration) *RedisDeviceHistory {
	if maxCount <= 0 {
		maxCount = 10
	}
	return &RedisDeviceHistory{
		client:   client,
		maxCount: int64(maxCount),
		ttl:      ttl,
		nowFn:    time.Now,
	}
}

func deviceHash(computerCodeHash string) string {
	sum := sha256.Sum224([]byte(computerCodeHash))
	out := make([]byte, ascii85.MaxEncodedLen(len(sum)))
	n := ascii85.Encode(out, sum[:])
	return string(out[:n])
}

// Add inserts the entry as the most recent one. Room is always made first by
// evicting the oldest entries, so re-adding an entry that is already present
// can leave the set one member short of the maximum.
func (h *RedisDeviceHistory) Add(ctx context.Context, userID, computerCodeHash string) error {
	key := deviceHistoryPrefix + userID
	score := float64(h.nowFn().UnixNano()) / 1e9
	_, err := h.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRemRangeByRank(ctx, key, 0, -h.maxCount)
		p.ZAdd(ctx, key, redis.Z{Score: score, Member: deviceHash(computerCodeHash)})
		p.Expire(ctx, key, h.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("add device: %w", err)
	}
	return nil
}

func (h *RedisDeviceHistory) Contains(ctx context.Context, userID, computerCodeHash string) (bool, error) {
	members, err := h.client.ZRevRange(ctx, deviceHistoryPrefix+userID, 0, h.maxCount-1).Result()
	if err != nil {
		return false, fmt.Errorf("load devices: %w", err)
	}
	return slices.Contains(members, deviceHash(computerCodeHash)), nil
}

func (h *RedisDeviceHistory) Clear(ctx context.Context, userID string) error {
	return h.client.Del(ctx, deviceHistoryPrefix+userID).Err()
}
