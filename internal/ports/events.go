package ports

import "context"

// EventPublisher is the outbound message bus port.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error
}

// Email templates sent by the workflows.
const (
	EmailConfirmRegistration   = "confirm_registration"
	EmailDuplicateRegistration = "duplicate_registration"
	EmailChangePassword        = "change_password"
	EmailChangePasswordSuccess = "change_password_success"
	EmailVerificationCode      = "verification_code"
	EmailChangeEmailRequest    = "change_email_request"
	EmailChangeEmailAddress    = "change_email_address"
	EmailChangeRecoveryCode    = "change_recovery_code"
)

// Email is one outbound notification. Secret links are built by the
// presentation layer from Secret.
type Email struct {
	Template string
	To       string
	Secret   string
	Code     string
	Values   map[string]string
}

// Mailer delivers notifications. Composition and transport are external.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// SignalFlusher drains one outbox table a burst at a time.
type SignalFlusher interface {
	SignalType() string
	FlushBurst(ctx context.Context) (int, error)
}
