package domain

import "errors"

var (
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidCredentials hides whether the email or the password failed.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidInput       = errors.New("invalid input")
	ErrAccountSuspended   = errors.New("account suspended")
	// ErrExceededMaxAttempts is returned once a subject's failure counter
	// exceeds the configured ceiling. The secret record involved is already
	// deleted when this error is returned.
	ErrExceededMaxAttempts       = errors.New("exceeded max attempts")
	ErrIncorrectRecoveryCode     = errors.New("incorrect recovery code")
	ErrIncorrectVerificationCode = errors.New("incorrect verification code")
	ErrRecordExpired             = errors.New("secret record expired or missing")
	// ErrEmailAlreadyRegistered is returned when an email change collides with
	// another account. No partial mutation is persisted.
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrRateLimited            = errors.New("rate limited")

	// ErrReservationExpired marks a terminal identity API rejection. The
	// outbox row is deleted and never retried.
	ErrReservationExpired = errors.New("reservation expired")
	// ErrDeliveryFailed marks a retryable identity API failure.
	ErrDeliveryFailed = errors.New("delivery failed")
	// ErrUserIDReused means two different emails were activated with the same
	// user ID. It must never be swallowed.
	ErrUserIDReused = errors.New("user id reused by another registration")

	ErrUnsupportedHashMethod = errors.New("unsupported hashing method")
	ErrSecretTooLong         = errors.New("secret too long")
)
