package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/swaptacular/swpt-login/internal/domain"
	"github.com/swaptacular/swpt-login/internal/ports"
)

// Flushers returns one flusher per requested signal type. No types means
// all of them.
func (s *Service) Flushers(types ...domain.SignalType) []ports.SignalFlusher {
	if len(types) == 0 {
		types = domain.AllSignalTypes()
	}
	flushers := make([]ports.SignalFlusher, 0, len(types))
	for _, t := range types {
		switch t {
		case domain.SignalActivateUser:
			flushers = append(flushers, signalFlusher{signalType: t, flush: s.flushActivations})
		case domain.SignalDeactivateUser:
			flushers = append(flushers, signalFlusher{signalType: t, flush: s.flushDeactivations})
		case domain.SignalUserUpdate:
			flushers = append(flushers, signalFlusher{signalType: t, flush: s.flushUserUpdates})
		}
	}
	return flushers
}

type signalFlusher struct {
	signalType domain.SignalType
	flush      func(ctx context.Context) (int, error)
}

func (f signalFlusher) SignalType() string { return string(f.signalType) }

func (f signalFlusher) FlushBurst(ctx context.Context) (int, error) { return f.flush(ctx) }

// processBurst runs process over keys. Transient failures are logged and
// leave their rows for the next cycle; ErrUserIDReused aborts the burst.
func processBurst[K any](ctx context.Context, s *Service, signalType domain.SignalType, keys []K, process func(context.Context, K) (domain.DeliveryOutcome, error)) (int, error) {
	processed := 0
	for _, key := range keys {
		outcome, err := process(ctx, key)
		if errors.Is(err, domain.ErrUserIDReused) {
			return processed, err
		}
		if err != nil {
			s.logger.WarnContext(ctx, "signal delivery deferred",
				"module", "application",
				"layer", "service",
				"operation", "flush_signal",
				"outcome", outcome.String(),
				"signal_type", string(signalType),
				"key", fmt.Sprint(key),
				"error", err,
			)
			continue
		}
		if outcome.Processed() {
			processed++
		}
	}
	return processed, nil
}

func (s *Service) flushActivations(ctx context.Context) (int, error) {
	keys, err := s.activations.PendingKeys(ctx, s.cfg.ActivationBurstCount)
	if err != nil {
		return 0, fmt.Errorf("list pending activations: %w", err)
	}
	return processBurst(ctx, s, domain.SignalActivateUser, keys, func(ctx context.Context, key domain.ActivationKey) (domain.DeliveryOutcome, error) {
		return s.activations.Process(ctx, key, s.deliverActivation)
	})
}

func (s *Service) flushDeactivations(ctx context.Context) (int, error) {
	userIDs, err := s.deactivations.PendingUserIDs(ctx, s.cfg.DeactivationBurstCount)
	if err != nil {
		return 0, fmt.Errorf("list pending deactivations: %w", err)
	}
	return processBurst(ctx, s, domain.SignalDeactivateUser, userIDs, func(ctx context.Context, userID string) (domain.DeliveryOutcome, error) {
		return s.deactivations.Process(ctx, userID, s.deliverDeactivation)
	})
}

func (s *Service) flushUserUpdates(ctx context.Context) (int, error) {
	ids, err := s.userUpdates.PendingIDs(ctx, s.cfg.UserUpdateBurstCount)
	if err != nil {
		return 0, fmt.Errorf("list pending user updates: %w", err)
	}
	return processBurst(ctx, s, domain.SignalUserUpdate, ids, func(ctx context.Context, id int64) (domain.DeliveryOutcome, error) {
		return s.userUpdates.Process(ctx, id, s.publishUserUpdate)
	})
}

type userUpdatePayload struct {
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	InsertedAt string `json:"inserted_at"`
}

func (s *Service) publishUserUpdate(ctx context.Context, signal domain.UserUpdateSignal) error {
	payload, err := json.Marshal(userUpdatePayload{
		UserID:     signal.UserID,
		Email:      signal.Email,
		InsertedAt: signal.InsertedAt.UTC().Format("2006-01-02T15:04:05.000000Z07:00"),
	})
	if err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, s.cfg.UserUpdateEventType, payload, signal.UserID); err != nil {
		return fmt.Errorf("%w: publish user update: %v", domain.ErrDeliveryFailed, err)
	}
	return nil
}
