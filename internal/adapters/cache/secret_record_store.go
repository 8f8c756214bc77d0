package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/swaptacular/swpt-login/internal/domain"
)

// RedisSecretRecordStore keeps each secret record in a hash named
// "<kind prefix><secret>" whose TTL is the record lifetime.
type RedisSecretRecordStore struct {
	client *redis.Client
}

func NewRedisSecretRecordStore(client *redis.Client) *RedisSecretRecordStore {
	return &RedisSecretRecordStore{client: client}
}

func recordKey(kind domain.RecordKind, secret string) string {
	return kind.Prefix() + secret
}

func (s *RedisSecretRecordStore) Create(ctx context.Context, record domain.SecretRecord, ttl time.Duration) error {
	if record.Secret() == "" {
		return fmt.Errorf("%w: empty secret", domain.ErrInvalidInput)
	}
	fields := record.Fields()
	values := make([]any, 0, 2*len(fields))
	for name, value := range fields {
		values = append(values, name, value)
	}

	key := recordKey(record.Kind(), record.Secret())
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, values...)
		p.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store %s record: %w", record.Kind(), err)
	}
	return nil
}

func (s *RedisSecretRecordStore) Lookup(ctx context.Context, kind domain.RecordKind, secret string) (domain.SecretRecord, error) {
	names := domain.RecordFieldNames(kind)
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: unknown record kind %q", domain.ErrInvalidInput, kind)
	}
	if secret == "" {
		return nil, nil
	}

	values, err := s.client.HMGet(ctx, recordKey(kind, secret), names...).Result()
	if err != nil {
		return nil, fmt.Errorf("load %s record: %w", kind, err)
	}
	if len(values) == 0 || values[0] == nil {
		return nil, nil
	}

	fields := make(map[string]string, len(names))
	for i, name := range names {
		if v, ok := values[i].(string); ok {
			fields[name] = v
		}
	}
	return domain.DecodeSecretRecord(kind, secret, fields)
}

func (s *RedisSecretRecordStore) Delete(ctx context.Context, kind domain.RecordKind, secret string) error {
	return s.client.Del(ctx, recordKey(kind, secret)).Err()
}
