package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/swaptacular/swpt-login/internal/domain"
	"github.com/swaptacular/swpt-login/internal/ports"
)

// Signup starts either a registration or, with Recover set, a password
// reset. The outcome is not revealed to the caller: registered and unknown
// emails look the same, only the email sent differs.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (SignupResult, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return SignupResult{}, err
	}
	computerCode, computerCodeHash, err := s.computerCode(req.ComputerCode)
	if err != nil {
		return SignupResult{}, err
	}
	result := SignupResult{Email: email, ComputerCode: computerCode}

	existing, err := s.credentials.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		if !req.Recover {
			record, err := s.newSignupRecord(ctx, email, computerCodeHash, "")
			if err != nil {
				return SignupResult{}, err
			}
			s.sendEmail(ctx, ports.Email{Template: ports.EmailConfirmRegistration, To: email, Secret: record.Token})
		}
		return result, nil
	case err != nil:
		return SignupResult{}, fmt.Errorf("load credentials: %w", err)
	}

	if !req.Recover {
		s.sendEmail(ctx, ports.Email{Template: ports.EmailDuplicateRegistration, To: email})
		return result, nil
	}
	record, err := s.newSignupRecord(ctx, email, computerCodeHash, existing.UserID)
	if err != nil {
		return SignupResult{}, err
	}
	s.sendEmail(ctx, ports.Email{Template: ports.EmailChangePassword, To: email, Secret: record.Token})
	return result, nil
}

func (s *Service) newSignupRecord(ctx context.Context, email, computerCodeHash, recoverUserID string) (*domain.SignupRecord, error) {
	secret, err := s.secrets.NewSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	record := &domain.SignupRecord{
		Token:            secret,
		Email:            email,
		ComputerCodeHash: computerCodeHash,
		Recover:          recoverUserID != "",
		UserID:           recoverUserID,
	}
	if err := s.createRecord(ctx, record, s.cfg.SignupRequestExpiration); err != nil {
		return nil, err
	}
	return record, nil
}

// LookupSignup returns the live signup record for secret, so that the
// presentation layer knows whether to ask for a recovery code.
func (s *Service) LookupSignup(ctx context.Context, secret string) (*domain.SignupRecord, error) {
	return lookupAs[*domain.SignupRecord](ctx, s, domain.KindSignup, secret)
}

// CompleteSignup accepts the password chosen through a signup link.
func (s *Service) CompleteSignup(ctx context.Context, req CompleteSignupRequest) (CompleteSignupResult, error) {
	record, err := s.LookupSignup(ctx, req.Secret)
	if err != nil {
		return CompleteSignupResult{}, err
	}
	if err := s.validatePassword(req.Password); err != nil {
		return CompleteSignupResult{}, err
	}
	if record.Recover {
		return s.completeRecovery(ctx, record, req)
	}
	return s.completeRegistration(ctx, record, req)
}

func (s *Service) completeRecovery(ctx context.Context, record *domain.SignupRecord, req CompleteSignupRequest) (CompleteSignupResult, error) {
	ok, err := s.recoveryCodeMatches(ctx, record.Email, req.RecoveryCode)
	if err != nil {
		return CompleteSignupResult{}, err
	}
	if !ok {
		if err := s.registerFailure(ctx, record); err != nil {
			return CompleteSignupResult{}, err
		}
		return CompleteSignupResult{}, domain.ErrIncorrectRecoveryCode
	}

	if err := s.consumeRecord(ctx, record); err != nil {
		return CompleteSignupResult{}, err
	}
	user, err := s.credentials.GetByEmail(ctx, record.Email)
	if err != nil {
		return CompleteSignupResult{}, fmt.Errorf("load credentials: %w", err)
	}
	passwordHash, err := s.hasher.Hash(user.Salt, req.Password)
	if err != nil {
		return CompleteSignupResult{}, fmt.Errorf("hash password: %w", err)
	}
	if err := s.credentials.UpdatePasswordHash(ctx, record.Email, passwordHash); err != nil {
		return CompleteSignupResult{}, fmt.Errorf("update password: %w", err)
	}
	// The user must be able to log in right away.
	if err := s.failures.Clear(ctx, user.UserID); err != nil {
		return CompleteSignupResult{}, fmt.Errorf("clear failures: %w", err)
	}
	// Invalidation clears the device history, so the browser that proved
	// ownership of the email is added back afterwards.
	if err := s.InvalidateCredentials(ctx, user.UserID); err != nil {
		return CompleteSignupResult{}, err
	}
	if err := s.devices.Add(ctx, user.UserID, record.ComputerCodeHash); err != nil {
		return CompleteSignupResult{}, fmt.Errorf("add device: %w", err)
	}
	s.sendEmail(ctx, ports.Email{Template: ports.EmailChangePasswordSuccess, To: record.Email})

	s.logger.InfoContext(ctx, "password recovered",
		"module", "application",
		"layer", "service",
		"operation", "complete_signup",
		"outcome", "recovered",
		"user_id", user.UserID,
	)
	return CompleteSignupResult{Email: record.Email, UserID: user.UserID, Recovered: true}, nil
}

func (s *Service) completeRegistration(ctx context.Context, record *domain.SignupRecord, req CompleteSignupRequest) (CompleteSignupResult, error) {
	if req.RemoteAddr != "" {
		if _, err := s.counters.IncrementWithLimit(ctx, "ip:"+req.RemoteAddr, s.cfg.SignupIPMaxRegistrations, s.cfg.SignupIPBlockPeriod); err != nil {
			return CompleteSignupResult{}, err
		}
	}
	if err := s.consumeRecord(ctx, record); err != nil {
		return CompleteSignupResult{}, err
	}

	activation, err := s.RegisterUser(ctx, record.Email, req.Password, req.RemoteAddr)
	if err != nil {
		return CompleteSignupResult{}, err
	}
	if err := s.devices.Add(ctx, activation.UserID, record.ComputerCodeHash); err != nil {
		return CompleteSignupResult{}, fmt.Errorf("add device: %w", err)
	}
	return CompleteSignupResult{
		Email:               record.Email,
		UserID:              activation.UserID,
		RecoveryCode:        activation.RecoveryCode,
		RecoveryCodeDisplay: domain.SplitRecoveryCode(activation.RecoveryCode, recoveryCodeBlockSize),
		ActivationPending:   !activation.Activated,
	}, nil
}
