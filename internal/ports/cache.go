package ports

import (
	"context"
	"time"

	"github.com/swaptacular/swpt-login/internal/domain"
)

// SecretRecordStore keeps ephemeral secret records with store-native TTL.
// Lookup returns (nil, nil) for missing and expired records alike.
type SecretRecordStore interface {
	Create(ctx context.Context, record domain.SecretRecord, ttl time.Duration) error
	Lookup(ctx context.Context, kind domain.RecordKind, secret string) (domain.SecretRecord, error)
	Delete(ctx context.Context, kind domain.RecordKind, secret string) error
}

// CounterStore implements fixed-window counters. IncrementWithLimit returns
// domain.ErrRateLimited together with the new value once it exceeds limit.
type CounterStore interface {
	IncrementWithLimit(ctx context.Context, key string, limit int64, period time.Duration) (int64, error)
}

// FailureCounter counts failed secret-code attempts per subject. The count
// survives the records it was registered through.
type FailureCounter interface {
	RegisterFailure(ctx context.Context, userID string) (int64, error)
	Clear(ctx context.Context, userID string) error
}

// DeviceHistory is the bounded set of recently verified devices of a user.
type DeviceHistory interface {
	Add(ctx context.Context, userID, computerCodeHash string) error
	Contains(ctx context.Context, userID, computerCodeHash string) (bool, error)
	Clear(ctx context.Context, userID string) error
}
