package application

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/swaptacular/swpt-login/internal/domain"
)

func normalizeEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if err := domain.ValidateEmail(email); err != nil {
		return "", err
	}
	return email, nil
}

// authenticate checks email and password against the credential store.
// Unknown emails and wrong passwords are indistinguishable.
func (s *Service) authenticate(ctx context.Context, email, password string) (domain.CredentialRecord, error) {
	record, err := s.credentials.GetByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, domain.ErrNotFound) {
		return domain.CredentialRecord{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return domain.CredentialRecord{}, fmt.Errorf("load credentials: %w", err)
	}
	ok, err := s.passwordMatches(record, password)
	if err != nil {
		return domain.CredentialRecord{}, err
	}
	if !ok {
		return domain.CredentialRecord{}, domain.ErrInvalidCredentials
	}
	return record, nil
}

func (s *Service) passwordMatches(record domain.CredentialRecord, password string) (bool, error) {
	hash, err := s.hasher.Hash(record.Salt, password)
	if errors.Is(err, domain.ErrSecretTooLong) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}
	return subtle.ConstantTimeCompare([]byte(hash), []byte(record.PasswordHash)) == 1, nil
}

// recoveryCodeMatches compares a user-typed recovery code with the one
// stored for email.
func (s *Service) recoveryCodeMatches(ctx context.Context, email, code string) (bool, error) {
	record, err := s.credentials.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load credentials: %w", err)
	}
	if record.RecoveryCodeHash == "" {
		return false, nil
	}
	hash, err := s.hasher.HashRecoveryCode(code)
	if errors.Is(err, domain.ErrSecretTooLong) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("hash recovery code: %w", err)
	}
	return subtle.ConstantTimeCompare([]byte(hash), []byte(record.RecoveryCodeHash)) == 1, nil
}

func (s *Service) validatePassword(password string) error {
	return domain.ValidatePassword(password, s.cfg.PasswordMinLength, s.cfg.PasswordMaxLength)
}

// InvalidateCredentials forgets the user's recognized devices and revokes
// every session and token the authorization server issued for the user.
func (s *Service) InvalidateCredentials(ctx context.Context, userID string) error {
	if err := s.devices.Clear(ctx, userID); err != nil {
		return fmt.Errorf("clear device history: %w", err)
	}
	subject := s.Subject(userID)
	if err := s.authServer.RevokeConsentSessions(ctx, subject); err != nil {
		return fmt.Errorf("revoke consent sessions: %w", err)
	}
	if err := s.authServer.InvalidateLoginSessions(ctx, subject); err != nil {
		return fmt.Errorf("invalidate login sessions: %w", err)
	}
	return nil
}

// computerCode returns the browser's device code, issuing a new one when
// the browser has none, together with its digest.
func (s *Service) computerCode(current string) (code, digest string, err error) {
	code = current
	if code == "" {
		code, err = s.secrets.NewSecret()
		if err != nil {
			return "", "", fmt.Errorf("generate computer code: %w", err)
		}
	}
	return code, s.secrets.Digest(code), nil
}
