package events

import (
	"context"
	"log/slog"

	"github.com/swaptacular/swpt-login/internal/ports"
)

// LoggingPublisher stands in for the message bus when no brokers are
// configured.
type LoggingPublisher struct {
	logger *slog.Logger
}

func NewLoggingPublisher(logger *slog.Logger) *LoggingPublisher {
	return &LoggingPublisher{logger: logger}
}

func (p *LoggingPublisher) Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	p.logger.InfoContext(ctx, "published event",
		"event_type", eventType,
		"partition_key", partitionKey,
		"payload", string(payload),
	)
	return nil
}

// LoggingMailer records outbound notifications without delivering them.
// Secrets and codes are never logged.
type LoggingMailer struct {
	logger *slog.Logger
}

func NewLoggingMailer(logger *slog.Logger) *LoggingMailer {
	return &LoggingMailer{logger: logger}
}

func (m *LoggingMailer) Send(ctx context.Context, email ports.Email) error {
	m.logger.InfoContext(ctx, "email queued",
		"module", "events.mailer",
		"layer", "adapter",
		"operation", "send_email",
		"outcome", "logged",
		"template", email.Template,
		"to", email.To,
		"has_secret", email.Secret != "",
		"has_code", email.Code != "",
	)
	return nil
}
