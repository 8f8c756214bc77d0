package domain

import "time"

// CredentialStatus is the administrative state of a registered account.
type CredentialStatus int16

const (
	StatusActive    CredentialStatus = 0
	StatusSuspended CredentialStatus = 1
)

func (s CredentialStatus) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// CredentialRecord is one registered account. Email is the login identifier
// and UserID is the identity API's canonical identifier; both are unique.
type CredentialRecord struct {
	Email            string
	UserID           string
	Salt             string
	PasswordHash     string
	RecoveryCodeHash string
	RegisteredFromIP string
	RegisteredAt     time.Time
	Status           CredentialStatus
}

func (r CredentialRecord) Suspended() bool {
	return r.Status == StatusSuspended
}
