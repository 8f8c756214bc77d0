package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/swaptacular/swpt-login/internal/ports"
)

type Service struct {
	cfg           Config
	credentials   ports.CredentialRepository
	activations   ports.ActivationSignalRepository
	deactivations ports.DeactivationSignalRepository
	userUpdates   ports.UserUpdateSignalRepository
	records       ports.SecretRecordStore
	counters      ports.CounterStore
	failures      ports.FailureCounter
	devices       ports.DeviceHistory
	hasher        ports.CredentialHasher
	secrets       ports.SecretGenerator
	identity      ports.IdentityAPI
	authServer    ports.AuthorizationServer
	publisher     ports.EventPublisher
	mailer        ports.Mailer
	logger        *slog.Logger
	nowFn         func() time.Time
}

type Dependencies struct {
	Config        Config
	Credentials   ports.CredentialRepository
	Activations   ports.ActivationSignalRepository
	Deactivations ports.DeactivationSignalRepository
	UserUpdates   ports.UserUpdateSignalRepository
	Records       ports.SecretRecordStore
	Counters      ports.CounterStore
	Failures      ports.FailureCounter
	Devices       ports.DeviceHistory
	Hasher        ports.CredentialHasher
	Secrets       ports.SecretGenerator
	IdentityAPI   ports.IdentityAPI
	AuthServer    ports.AuthorizationServer
	Publisher     ports.EventPublisher
	Mailer        ports.Mailer
	Logger        *slog.Logger
}

func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config
	if cfg.SecretCodeMaxAttempts <= 0 {
		cfg.SecretCodeMaxAttempts = 10
	}
	if cfg.UserUpdateEventType == "" {
		cfg.UserUpdateEventType = "user.updated"
	}
	return &Service{
		cfg:           cfg,
		credentials:   deps.Credentials,
		activations:   deps.Activations,
		deactivations: deps.Deactivations,
		userUpdates:   deps.UserUpdates,
		records:       deps.Records,
		counters:      deps.Counters,
		failures:      deps.Failures,
		devices:       deps.Devices,
		hasher:        deps.Hasher,
		secrets:       deps.Secrets,
		identity:      deps.IdentityAPI,
		authServer:    deps.AuthServer,
		publisher:     deps.Publisher,
		mailer:        deps.Mailer,
		logger:        logger,
		nowFn:         func() time.Time { return time.Now().UTC() },
	}
}

// Subject maps a user ID to the subject known by the authorization server.
func (s *Service) Subject(userID string) string {
	return s.cfg.SubjectPrefix + userID
}

func (s *Service) sendEmail(ctx context.Context, email ports.Email) {
	if s.mailer == nil {
		return
	}
	if err := s.mailer.Send(ctx, email); err != nil {
		s.logger.ErrorContext(ctx, "email delivery failed",
			"module", "application",
			"layer", "service",
			"operation", "send_email",
			"outcome", "failure",
			"template", email.Template,
			"error", err,
		)
	}
}
