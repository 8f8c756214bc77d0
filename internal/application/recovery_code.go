package application

import (
	"context"
	"fmt"

	"github.com/swaptacular/swpt-login/internal/domain"
	"github.com/swaptacular/swpt-login/internal/ports"
)

const recoveryCodeBlockSize = 4

// RequestRecoveryCodeChange emails a link for generating a new recovery
// code. Unknown emails get the same treatment, so registration is not
// revealed.
func (s *Service) RequestRecoveryCodeChange(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	secret, err := s.secrets.NewSecret()
	if err != nil {
		return fmt.Errorf("generate secret: %w", err)
	}
	record := &domain.ChangeRecoveryCodeRecord{Token: secret, Email: email}
	if err := s.createRecord(ctx, record, s.cfg.ChangeRecoveryCodeRequestExpiration); err != nil {
		return err
	}
	s.sendEmail(ctx, ports.Email{Template: ports.EmailChangeRecoveryCode, To: email, Secret: secret})
	return nil
}

func (s *Service) LookupRecoveryCodeChange(ctx context.Context, secret string) (*domain.ChangeRecoveryCodeRecord, error) {
	return lookupAs[*domain.ChangeRecoveryCodeRecord](ctx, s, domain.KindChangeRecoveryCode, secret)
}

// CompleteRecoveryCodeChange replaces the recovery code. The new code is
// only ever returned here.
func (s *Service) CompleteRecoveryCodeChange(ctx context.Context, req CompleteRecoveryCodeChangeRequest) (RecoveryCodeChangeResult, error) {
	record, err := s.LookupRecoveryCodeChange(ctx, req.Secret)
	if err != nil {
		return RecoveryCodeChangeResult{}, err
	}
	if _, err := s.authenticate(ctx, record.Email, req.Password); err != nil {
		return RecoveryCodeChangeResult{}, err
	}
	if err := s.consumeRecord(ctx, record); err != nil {
		return RecoveryCodeChangeResult{}, err
	}

	code, err := s.secrets.NewRecoveryCode()
	if err != nil {
		return RecoveryCodeChangeResult{}, fmt.Errorf("generate recovery code: %w", err)
	}
	hash, err := s.hasher.HashRecoveryCode(code)
	if err != nil {
		return RecoveryCodeChangeResult{}, fmt.Errorf("hash recovery code: %w", err)
	}
	if err := s.credentials.UpdateRecoveryCodeHash(ctx, record.Email, hash); err != nil {
		return RecoveryCodeChangeResult{}, fmt.Errorf("update recovery code: %w", err)
	}
	return RecoveryCodeChangeResult{
		Email:               record.Email,
		RecoveryCode:        code,
		RecoveryCodeDisplay: domain.SplitRecoveryCode(code, recoveryCodeBlockSize),
	}, nil
}
