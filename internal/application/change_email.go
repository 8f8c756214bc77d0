package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/swaptacular/swpt-login/internal/domain"
	"github.com/swaptacular/swpt-login/internal/ports"
)

// StartEmailChange is a login without a verification code: knowing the old
// email and the password yields a secret that only allows choosing a new
// email. The owner of the old address is notified.
func (s *Service) StartEmailChange(ctx context.Context, req StartEmailChangeRequest) (string, error) {
	user, err := s.authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return "", err
	}
	secret, err := s.secrets.NewSecret()
	if err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	record := &domain.LoginVerificationRecord{
		Token:       secret,
		UserID:      user.UserID,
		Email:       user.Email,
		ChallengeID: req.Challenge,
	}
	if err := s.newLoginVerification(ctx, record); err != nil {
		return "", err
	}
	s.sendEmail(ctx, ports.Email{Template: ports.EmailChangeEmailRequest, To: user.Email})
	return secret, nil
}

// ChooseNewEmail checks the recovery code and sends a confirmation link to
// the new address.
func (s *Service) ChooseNewEmail(ctx context.Context, req ChooseNewEmailRequest) (ChooseNewEmailResult, error) {
	record, err := lookupAs[*domain.LoginVerificationRecord](ctx, s, domain.KindLoginVerification, req.Secret)
	if err != nil {
		return ChooseNewEmailResult{}, err
	}
	newEmail, err := normalizeEmail(req.NewEmail)
	if err != nil {
		return ChooseNewEmailResult{}, err
	}
	ok, err := s.recoveryCodeMatches(ctx, record.Email, req.RecoveryCode)
	if err != nil {
		return ChooseNewEmailResult{}, err
	}
	if !ok {
		if err := s.registerFailure(ctx, record); err != nil {
			return ChooseNewEmailResult{}, err
		}
		return ChooseNewEmailResult{}, domain.ErrIncorrectRecoveryCode
	}

	if err := s.consumeRecord(ctx, record); err != nil {
		return ChooseNewEmailResult{}, err
	}
	secret, err := s.secrets.NewSecret()
	if err != nil {
		return ChooseNewEmailResult{}, fmt.Errorf("generate secret: %w", err)
	}
	change := &domain.ChangeEmailRecord{
		Token:    secret,
		UserID:   record.UserID,
		Email:    newEmail,
		OldEmail: record.Email,
	}
	if err := s.createRecord(ctx, change, s.cfg.ChangeEmailRequestExpiration); err != nil {
		return ChooseNewEmailResult{}, err
	}
	s.sendEmail(ctx, ports.Email{Template: ports.EmailChangeEmailAddress, To: newEmail, Secret: secret})
	return ChooseNewEmailResult{NewEmail: newEmail, Challenge: record.ChallengeID}, nil
}

// LookupEmailChange returns the pending email change for secret.
func (s *Service) LookupEmailChange(ctx context.Context, secret string) (*domain.ChangeEmailRecord, error) {
	return lookupAs[*domain.ChangeEmailRecord](ctx, s, domain.KindChangeEmail, secret)
}

// CompleteEmailChange asks for the password once more, so that someone
// reading the new mailbox alone cannot finish the change.
func (s *Service) CompleteEmailChange(ctx context.Context, req CompleteEmailChangeRequest) (EmailChangeResult, error) {
	record, err := s.LookupEmailChange(ctx, req.Secret)
	if err != nil {
		return EmailChangeResult{}, err
	}
	user, err := s.authenticate(ctx, record.OldEmail, req.Password)
	if err != nil {
		return EmailChangeResult{}, err
	}
	if user.UserID != record.UserID {
		return EmailChangeResult{}, domain.ErrInvalidCredentials
	}

	if err := s.consumeRecord(ctx, record); err != nil {
		return EmailChangeResult{}, err
	}
	var update *domain.UserUpdateSignal
	if s.cfg.SendUserUpdateSignal {
		update = &domain.UserUpdateSignal{UserID: record.UserID, Email: record.Email, InsertedAt: s.nowFn()}
	}
	err = s.credentials.ChangeEmail(ctx, record.UserID, record.OldEmail, record.Email, update)
	if errors.Is(err, domain.ErrEmailAlreadyRegistered) {
		return EmailChangeResult{}, err
	}
	if err != nil {
		return EmailChangeResult{}, fmt.Errorf("change email: %w", err)
	}

	if err := s.failures.Clear(ctx, record.UserID); err != nil {
		return EmailChangeResult{}, fmt.Errorf("clear failures: %w", err)
	}
	if err := s.InvalidateCredentials(ctx, record.UserID); err != nil {
		return EmailChangeResult{}, err
	}
	s.logger.InfoContext(ctx, "email changed",
		"module", "application",
		"layer", "service",
		"operation", "complete_email_change",
		"outcome", "success",
		"user_id", record.UserID,
	)
	return EmailChangeResult{UserID: record.UserID, OldEmail: record.OldEmail, NewEmail: record.Email}, nil
}
