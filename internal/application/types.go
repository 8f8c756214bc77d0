package application

import (
	"time"

	"github.com/swaptacular/swpt-login/internal/ports"
)

type Config struct {
	SubjectPrefix string

	SecretCodeMaxAttempts               int64
	SignupRequestExpiration             time.Duration
	LoginVerificationCodeExpiration     time.Duration
	ChangeEmailRequestExpiration        time.Duration
	ChangeRecoveryCodeRequestExpiration time.Duration

	SignupIPMaxRegistrations int64
	SignupIPBlockPeriod      time.Duration
	MaxLoginsPerMonth        int64

	PasswordMinLength int
	PasswordMaxLength int

	SendUserUpdateSignal bool
	UserUpdateEventType  string

	ActivationBurstCount   int
	DeactivationBurstCount int
	UserUpdateBurstCount   int
}

// loginCountPeriod is the window of the per-subject login ceiling, a bit
// longer than a month.
const loginCountPeriod = 2600000 * time.Second

const (
	tooManyLoginsError       = "too_many_logins"
	tooManyLoginsDescription = "Too many login attempts have been made in a given period of time."
)

type SignupRequest struct {
	Email   string
	Recover bool
	// ComputerCode is the device cookie of the browser. A new one is issued
	// when empty.
	ComputerCode string
}

type SignupResult struct {
	Email        string
	ComputerCode string
}

type CompleteSignupRequest struct {
	Secret       string
	Password     string
	RecoveryCode string
	RemoteAddr   string
}

type CompleteSignupResult struct {
	Email     string
	UserID    string
	Recovered bool
	// RecoveryCode is returned once, to new users only.
	RecoveryCode string
	// RecoveryCodeDisplay is RecoveryCode in blocks of four, for showing.
	RecoveryCodeDisplay string
	// ActivationPending is set when the immediate activation attempt failed
	// and the flush engine will retry it.
	ActivationPending bool
}

type LoginAttempt struct {
	Challenge    string
	Email        string
	Password     string
	ComputerCode string
	UserAgent    string
}

// LoginResult either decides the challenge (RedirectTo) or asks for a
// verification code (VerificationCookie).
type LoginResult struct {
	RedirectTo         string
	VerificationCookie string
	ComputerCode       string
}

type VerifyLoginRequest struct {
	VerificationCookie string
	Code               string
	ComputerCode       string
}

type StartEmailChangeRequest struct {
	Email     string
	Password  string
	Challenge string
}

type ChooseNewEmailRequest struct {
	Secret       string
	NewEmail     string
	RecoveryCode string
}

type ChooseNewEmailResult struct {
	NewEmail  string
	Challenge string
}

type CompleteEmailChangeRequest struct {
	Secret   string
	Password string
}

type EmailChangeResult struct {
	UserID   string
	OldEmail string
	NewEmail string
}

type CompleteRecoveryCodeChangeRequest struct {
	Secret   string
	Password string
}

type RecoveryCodeChangeResult struct {
	Email               string
	RecoveryCode        string
	RecoveryCodeDisplay string
}

// ConsentPrompt is returned when the user must pick the scopes to grant.
// RedirectTo is set instead when nothing needs to be asked.
type ConsentPrompt struct {
	RedirectTo string
	Request    ports.ConsentRequest
}

// AdminResult summarizes an admin command over a list of user IDs.
type AdminResult struct {
	Requested int
	Changed   int64
}
