package application

import (
	"context"
	"fmt"
	"time"

	"github.com/swaptacular/swpt-login/internal/domain"
)

// createRecord stores record for ttl. The record must already carry its
// secret.
func (s *Service) createRecord(ctx context.Context, record domain.SecretRecord, ttl time.Duration) error {
	if record.Secret() == "" {
		return fmt.Errorf("%w: secret record without a secret", domain.ErrInvalidInput)
	}
	if err := s.records.Create(ctx, record, ttl); err != nil {
		return fmt.Errorf("create %s record: %w", record.Kind(), err)
	}
	return nil
}

// lookupRecord returns domain.ErrRecordExpired for records that are missing,
// expired or already used.
func (s *Service) lookupRecord(ctx context.Context, kind domain.RecordKind, secret string) (domain.SecretRecord, error) {
	if secret == "" {
		return nil, domain.ErrRecordExpired
	}
	record, err := s.records.Lookup(ctx, kind, secret)
	if err != nil {
		return nil, fmt.Errorf("lookup %s record: %w", kind, err)
	}
	if record == nil {
		return nil, domain.ErrRecordExpired
	}
	return record, nil
}

func lookupAs[T domain.SecretRecord](ctx context.Context, s *Service, kind domain.RecordKind, secret string) (T, error) {
	var zero T
	record, err := s.lookupRecord(ctx, kind, secret)
	if err != nil {
		return zero, err
	}
	typed, ok := record.(T)
	if !ok {
		return zero, fmt.Errorf("%w: unexpected %s record type %T", domain.ErrInvalidInput, kind, record)
	}
	return typed, nil
}

// consumeRecord deletes a record on acceptance. Records are single-use.
func (s *Service) consumeRecord(ctx context.Context, record domain.SecretRecord) error {
	if err := s.records.Delete(ctx, record.Kind(), record.Secret()); err != nil {
		return fmt.Errorf("delete %s record: %w", record.Kind(), err)
	}
	return nil
}

// registerFailure counts a failed attempt against the record's subject. Once
// the count exceeds the ceiling the record is deleted and
// domain.ErrExceededMaxAttempts is returned.
func (s *Service) registerFailure(ctx context.Context, record domain.SecretRecord) error {
	subject := record.Subject()
	if subject == "" {
		return nil
	}
	failures, err := s.failures.RegisterFailure(ctx, subject)
	if err != nil {
		return fmt.Errorf("register failure: %w", err)
	}
	if failures > s.cfg.SecretCodeMaxAttempts {
		if err := s.consumeRecord(ctx, record); err != nil {
			return err
		}
		s.logger.WarnContext(ctx, "secret record attempts exhausted",
			"module", "application",
			"layer", "service",
			"operation", "register_failure",
			"outcome", "exceeded",
			"record_kind", string(record.Kind()),
			"user_id", subject,
			"failures", failures,
		)
		return domain.ErrExceededMaxAttempts
	}
	return nil
}
