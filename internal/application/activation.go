package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/swaptacular/swpt-login/internal/domain"
)

// Activation is the outcome of registering a new user.
type Activation struct {
	UserID        string
	ReservationID string
	RecoveryCode  string
	// Activated is false when the immediate attempt was deferred to the
	// flush engine.
	Activated bool
}

// RegisterUser reserves a user ID, persists the activation signal and then
// tries to activate it once. The persisted signal guarantees that a failed
// attempt is retried by the flush engine, so transient failures are not
// returned.
func (s *Service) RegisterUser(ctx context.Context, email, password, remoteAddr string) (Activation, error) {
	reservation, err := s.identity.ReserveUserID(ctx)
	if err != nil {
		return Activation{}, fmt.Errorf("reserve user id: %w", err)
	}

	recoveryCode, err := s.secrets.NewRecoveryCode()
	if err != nil {
		return Activation{}, fmt.Errorf("generate recovery code: %w", err)
	}
	salt, err := s.secrets.NewSalt()
	if err != nil {
		return Activation{}, fmt.Errorf("generate salt: %w", err)
	}
	passwordHash, err := s.hasher.Hash(salt, password)
	if err != nil {
		return Activation{}, fmt.Errorf("hash password: %w", err)
	}
	recoveryCodeHash, err := s.hasher.HashRecoveryCode(recoveryCode)
	if err != nil {
		return Activation{}, fmt.Errorf("hash recovery code: %w", err)
	}

	signal := domain.ActivationSignal{
		UserID:           reservation.UserID,
		ReservationID:    reservation.ReservationID,
		Email:            email,
		Salt:             salt,
		PasswordHash:     passwordHash,
		RecoveryCodeHash: recoveryCodeHash,
		RegisteredFromIP: remoteAddr,
		InsertedAt:       s.nowFn(),
	}
	if err := s.activations.Enqueue(ctx, signal); err != nil {
		return Activation{}, fmt.Errorf("enqueue activation: %w", err)
	}

	result := Activation{
		UserID:        reservation.UserID,
		ReservationID: reservation.ReservationID,
		RecoveryCode:  recoveryCode,
	}
	outcome, err := s.activations.Process(ctx, signal.Key(), s.deliverActivation)
	switch {
	case errors.Is(err, domain.ErrUserIDReused):
		s.logger.ErrorContext(ctx, "user id reused by the identity api",
			"module", "application",
			"layer", "service",
			"operation", "register_user",
			"outcome", "consistency_violation",
			"user_id", reservation.UserID,
			"reservation_id", reservation.ReservationID,
			"error", err,
		)
		return Activation{}, err
	case err != nil:
		s.logger.WarnContext(ctx, "immediate activation failed; left for the flush engine",
			"module", "application",
			"layer", "service",
			"operation", "register_user",
			"outcome", "deferred",
			"user_id", reservation.UserID,
			"reservation_id", reservation.ReservationID,
			"error", err,
		)
		return result, nil
	case outcome == domain.DeliveryRejected:
		return Activation{}, fmt.Errorf("activate user %s: %w", reservation.UserID, domain.ErrReservationExpired)
	}

	result.Activated = outcome == domain.DeliveryCompleted
	s.logger.InfoContext(ctx, "user registered",
		"module", "application",
		"layer", "service",
		"operation", "register_user",
		"outcome", outcome.String(),
		"user_id", reservation.UserID,
	)
	return result, nil
}

func (s *Service) deliverActivation(ctx context.Context, signal domain.ActivationSignal) error {
	return s.identity.ActivateUser(ctx, signal.UserID, signal.ReservationID)
}

func (s *Service) deliverDeactivation(ctx context.Context, signal domain.DeactivationSignal) error {
	return s.identity.DeactivateUser(ctx, signal.UserID)
}
