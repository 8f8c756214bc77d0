package application

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/swaptacular/swpt-login/internal/domain"
)

func normalizeUserIDs(userIDs []string) ([]string, error) {
	ids := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if err := domain.ValidateUserID(id); err != nil {
			return nil, err
		}
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// SuspendUsers blocks logins of the listed users and revokes their sessions.
// Unknown IDs are ignored.
func (s *Service) SuspendUsers(ctx context.Context, userIDs []string) (AdminResult, error) {
	ids, err := normalizeUserIDs(userIDs)
	if err != nil {
		return AdminResult{}, err
	}
	changed, err := s.credentials.SetStatus(ctx, ids, domain.StatusSuspended)
	if err != nil {
		return AdminResult{}, fmt.Errorf("suspend users: %w", err)
	}
	var errs []error
	for _, id := range ids {
		if err := s.InvalidateCredentials(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", id, err))
		}
	}
	s.logAdmin(ctx, "suspend_users", len(ids), changed)
	return AdminResult{Requested: len(ids), Changed: changed}, errors.Join(errs...)
}

// ResumeUsers lifts a suspension. Unknown IDs are ignored.
func (s *Service) ResumeUsers(ctx context.Context, userIDs []string) (AdminResult, error) {
	ids, err := normalizeUserIDs(userIDs)
	if err != nil {
		return AdminResult{}, err
	}
	changed, err := s.credentials.SetStatus(ctx, ids, domain.StatusActive)
	if err != nil {
		return AdminResult{}, fmt.Errorf("resume users: %w", err)
	}
	s.logAdmin(ctx, "resume_users", len(ids), changed)
	return AdminResult{Requested: len(ids), Changed: changed}, nil
}

// DeleteUsers removes the accounts together with a write-ahead deactivation
// signal, then tries to deliver the deactivation right away. Failed
// deliveries are left to the flush engine.
func (s *Service) DeleteUsers(ctx context.Context, userIDs []string) (AdminResult, error) {
	ids, err := normalizeUserIDs(userIDs)
	if err != nil {
		return AdminResult{}, err
	}
	var (
		changed int64
		errs    []error
	)
	for _, id := range ids {
		deleted, err := s.credentials.DeleteWithDeactivation(ctx, id, s.nowFn())
		if err != nil {
			errs = append(errs, fmt.Errorf("delete user %s: %w", id, err))
			continue
		}
		if !deleted {
			continue
		}
		changed++
		if err := s.InvalidateCredentials(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", id, err))
		}
		if _, err := s.deactivations.Process(ctx, id, s.deliverDeactivation); err != nil {
			s.logger.WarnContext(ctx, "immediate deactivation failed; left for the flush engine",
				"module", "application",
				"layer", "service",
				"operation", "delete_users",
				"outcome", "deferred",
				"user_id", id,
				"error", err,
			)
		}
	}
	s.logAdmin(ctx, "delete_users", len(ids), changed)
	return AdminResult{Requested: len(ids), Changed: changed}, errors.Join(errs...)
}

func (s *Service) logAdmin(ctx context.Context, operation string, requested int, changed int64) {
	s.logger.InfoContext(ctx, "admin command applied",
		"module", "application",
		"layer", "service",
		"operation", operation,
		"outcome", "success",
		"requested", requested,
		"changed", changed,
	)
}
