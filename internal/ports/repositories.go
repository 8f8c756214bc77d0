package ports

import (
	"context"
	"time"

	"github.com/swaptacular/swpt-login/internal/domain"
)

// CredentialRepository persists registered accounts. Reads go to the
// replica; writes go to the primary.
type CredentialRepository interface {
	GetByEmail(ctx context.Context, email string) (domain.CredentialRecord, error)
	GetByUserID(ctx context.Context, userID string) (domain.CredentialRecord, error)
	UpdatePasswordHash(ctx context.Context, email, passwordHash string) error
	UpdateRecoveryCodeHash(ctx context.Context, email, recoveryCodeHash string) error
	// ChangeEmail rewrites the email of the account identified by userID and
	// oldEmail. A collision on the new email returns
	// domain.ErrEmailAlreadyRegistered and changes nothing. When update is not
	// nil it is inserted in the same transaction.
	ChangeEmail(ctx context.Context, userID, oldEmail, newEmail string, update *domain.UserUpdateSignal) error
	// SetStatus updates the status of the listed accounts and ignores unknown
	// IDs. It returns the number of rows changed.
	SetStatus(ctx context.Context, userIDs []string, status domain.CredentialStatus) (int64, error)
	// DeleteWithDeactivation removes the account and writes a deactivation
	// signal in one transaction. It reports false when the account is absent.
	DeleteWithDeactivation(ctx context.Context, userID string, at time.Time) (bool, error)
}

// ActivationDelivery performs the remote activation call for one signal.
type ActivationDelivery func(ctx context.Context, signal domain.ActivationSignal) error

// DeactivationDelivery performs the remote deactivation call for one signal.
type DeactivationDelivery func(ctx context.Context, signal domain.DeactivationSignal) error

// UserUpdateDelivery publishes one user update signal.
type UserUpdateDelivery func(ctx context.Context, signal domain.UserUpdateSignal) error

// ActivationSignalRepository is the activation outbox. Process runs one row
// in its own transaction: the row is locked without waiting (rows held by
// another worker are skipped), delivered, and deleted on success or terminal
// rejection. On success the CredentialRecord is inserted in the same
// transaction. Transient delivery errors leave the row in place and are
// returned together with domain.DeliveryDeferred.
type ActivationSignalRepository interface {
	Enqueue(ctx context.Context, signal domain.ActivationSignal) error
	PendingKeys(ctx context.Context, limit int) ([]domain.ActivationKey, error)
	Process(ctx context.Context, key domain.ActivationKey, deliver ActivationDelivery) (domain.DeliveryOutcome, error)
}

type DeactivationSignalRepository interface {
	PendingUserIDs(ctx context.Context, limit int) ([]string, error)
	Process(ctx context.Context, userID string, deliver DeactivationDelivery) (domain.DeliveryOutcome, error)
}

type UserUpdateSignalRepository interface {
	PendingIDs(ctx context.Context, limit int) ([]int64, error)
	Process(ctx context.Context, id int64, deliver UserUpdateDelivery) (domain.DeliveryOutcome, error)
}

// HealthChecker is implemented by backing stores probed by /readyz.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
