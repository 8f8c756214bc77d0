package domain

import (
	"fmt"
	"time"
)

// SignalType names an outbox table drained by the flush engine.
type SignalType string

const (
	SignalActivateUser   SignalType = "activate_user_signal"
	SignalDeactivateUser SignalType = "deactivate_user_signal"
	SignalUserUpdate     SignalType = "user_update_signal"
)

// AllSignalTypes lists every flushable signal type in flush order.
func AllSignalTypes() []SignalType {
	return []SignalType{SignalActivateUser, SignalDeactivateUser, SignalUserUpdate}
}

// ParseSignalType accepts either the table name or its short form
// ("activate", "deactivate", "user_update").
func ParseSignalType(name string) (SignalType, error) {
	switch name {
	case string(SignalActivateUser), "activate", "ActivateUserSignal":
		return SignalActivateUser, nil
	case string(SignalDeactivateUser), "deactivate", "DeactivateUserSignal":
		return SignalDeactivateUser, nil
	case string(SignalUserUpdate), "user_update", "UserUpdateSignal":
		return SignalUserUpdate, nil
	default:
		return "", fmt.Errorf("%w: unknown signal type %q", ErrInvalidInput, name)
	}
}

// ActivationKey identifies one in-flight reservation.
type ActivationKey struct {
	UserID        string
	ReservationID string
}

// ActivationSignal is a write-ahead record of a reserved, not yet activated
// user. Its fields mirror the CredentialRecord created after activation.
type ActivationSignal struct {
	UserID           string
	ReservationID    string
	Email            string
	Salt             string
	PasswordHash     string
	RecoveryCodeHash string
	RegisteredFromIP string
	InsertedAt       time.Time
}

func (s ActivationSignal) Key() ActivationKey {
	return ActivationKey{UserID: s.UserID, ReservationID: s.ReservationID}
}

// Credential returns the record inserted once activation is confirmed.
func (s ActivationSignal) Credential(registeredAt time.Time) CredentialRecord {
	return CredentialRecord{
		Email:            s.Email,
		UserID:           s.UserID,
		Salt:             s.Salt,
		PasswordHash:     s.PasswordHash,
		RecoveryCodeHash: s.RecoveryCodeHash,
		RegisteredFromIP: s.RegisteredFromIP,
		RegisteredAt:     registeredAt,
		Status:           StatusActive,
	}
}

type DeactivationSignal struct {
	UserID     string
	InsertedAt time.Time
}

// UserUpdateSignal announces an email change to other services.
type UserUpdateSignal struct {
	ID         int64
	UserID     string
	Email      string
	InsertedAt time.Time
}

// DeliveryOutcome is the result of processing one outbox row.
type DeliveryOutcome int

const (
	// DeliverySkipped means the row was gone or locked by another worker.
	DeliverySkipped DeliveryOutcome = iota
	// DeliveryCompleted means the remote call succeeded and the row was deleted.
	DeliveryCompleted
	// DeliveryRejected means the remote side permanently refused the row and
	// it was deleted.
	DeliveryRejected
	// DeliveryDeferred means the row was kept for a later cycle.
	DeliveryDeferred
)

func (o DeliveryOutcome) String() string {
	switch o {
	case DeliverySkipped:
		return "skipped"
	case DeliveryCompleted:
		return "completed"
	case DeliveryRejected:
		return "rejected"
	case DeliveryDeferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// Processed reports whether the row left the outbox.
func (o DeliveryOutcome) Processed() bool {
	return o == DeliveryCompleted || o == DeliveryRejected
}
