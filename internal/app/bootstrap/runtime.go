package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	cacheadapter "github.com/swaptacular/swpt-login/internal/adapters/cache"
	eventadapter "github.com/swaptacular/swpt-login/internal/adapters/events"
	httpadapter "github.com/swaptacular/swpt-login/internal/adapters/http"
	"github.com/swaptacular/swpt-login/internal/adapters/hydra"
	"github.com/swaptacular/swpt-login/internal/adapters/identityapi"
	"github.com/swaptacular/swpt-login/internal/adapters/postgres"
	"github.com/swaptacular/swpt-login/internal/adapters/security"
	"github.com/swaptacular/swpt-login/internal/application"
	"github.com/swaptacular/swpt-login/internal/domain"
	"github.com/swaptacular/swpt-login/internal/ports"
)

// userUpdateEventType is the event type of published user updates; the
// Kafka topic is mapped from it.
const userUpdateEventType = "user.updated"

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	service    *application.Service
	httpServer *http.Server
	cleanupFns []func()
}

// NewLogger builds the process logger. Unknown levels fall back to warn.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelWarn
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger := NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	logger.Info("bootstrapping swpt-login", "http_port", cfg.HTTPPort)

	r := &Runtime{cfg: cfg, logger: logger}
	if err := r.wire(ctx); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Runtime) wire(ctx context.Context) error {
	cfg := r.cfg

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	r.onClose(func() { _ = postgres.Close(db) })
	if err := postgres.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	replica := db
	if cfg.DatabaseReplicaURL != cfg.DatabaseURL {
		replica, err = postgres.Connect(ctx, cfg.DatabaseReplicaURL, cfg.MaxDBConns)
		if err != nil {
			return fmt.Errorf("connect postgres replica: %w", err)
		}
		r.onClose(func() { _ = postgres.Close(replica) })
	}

	redisClient, err := cacheadapter.Connect(ctx, cfg.RedisURL, cfg.RedisTimeout)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	r.onClose(func() { _ = redisClient.Close() })
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}

	apiHTTP := &http.Client{Timeout: cfg.APITimeout}
	tokens := identityapi.NewTokenCache(identityapi.ClientCredentials(
		cfg.SupervisorClientID,
		cfg.SupervisorClientSecret,
		cfg.APITokenURL,
		[]string{"activate"},
		apiHTTP,
	))
	identity, err := identityapi.NewClient(identityapi.Config{
		ResourceServer:          cfg.APIResourceServer,
		ReservePath:             cfg.APIReserveUserIDPath,
		UserIDField:             cfg.APIUserIDFieldName,
		DeactivationRequestType: cfg.APIDeactivationRequestType,
		Timeout:                 cfg.APITimeout,
	}, tokens, http.DefaultTransport)
	if err != nil {
		return fmt.Errorf("init identity api client: %w", err)
	}

	authServer, err := hydra.NewAdminClient(hydra.AdminConfig{
		BaseURL: cfg.HydraAdminURL,
		Timeout: cfg.HydraRequestTimeout,
	})
	if err != nil {
		return fmt.Errorf("init hydra admin client: %w", err)
	}

	publisher, err := r.newPublisher()
	if err != nil {
		return err
	}

	r.service = application.NewService(application.Dependencies{
		Config: application.Config{
			SubjectPrefix:                       cfg.SubjectPrefix,
			SecretCodeMaxAttempts:               cfg.SecretCodeMaxAttempts,
			SignupRequestExpiration:             cfg.SignupRequestExpiration,
			LoginVerificationCodeExpiration:     cfg.LoginVerificationCodeExpiration,
			ChangeEmailRequestExpiration:        cfg.ChangeEmailRequestExpiration,
			ChangeRecoveryCodeRequestExpiration: cfg.ChangeRecoveryCodeRequestExpiration,
			SignupIPMaxRegistrations:            cfg.SignupIPMaxRegistrations,
			SignupIPBlockPeriod:                 cfg.SignupIPBlockPeriod,
			MaxLoginsPerMonth:                   cfg.MaxLoginsPerMonth,
			PasswordMinLength:                   cfg.PasswordMinLength,
			PasswordMaxLength:                   cfg.PasswordMaxLength,
			SendUserUpdateSignal:                cfg.SendUserUpdateSignal,
			UserUpdateEventType:                 userUpdateEventType,
			ActivationBurstCount:                cfg.ActivationBurstCount,
			DeactivationBurstCount:              cfg.DeactivationBurstCount,
			UserUpdateBurstCount:                cfg.UserUpdateBurstCount,
		},
		Credentials:   postgres.NewCredentialRepository(db, replica),
		Activations:   postgres.NewActivationSignalRepository(db),
		Deactivations: postgres.NewDeactivationSignalRepository(db),
		UserUpdates:   postgres.NewUserUpdateSignalRepository(db),
		Records:       cacheadapter.NewRedisSecretRecordStore(redisClient),
		Counters:      cacheadapter.NewRedisCounterStore(redisClient),
		Failures:      cacheadapter.NewRedisFailureCounter(redisClient, cfg.LoginVerificationCodeExpiration),
		Devices:       cacheadapter.NewRedisDeviceHistory(redisClient, cfg.LoginVerifiedDevicesMaxCount, cfg.LoginHistoryExpiration()),
		Hasher:        security.NewScryptHasher(),
		Secrets:       security.NewRandomGenerator(),
		IdentityAPI:   identity,
		AuthServer:    authServer,
		Publisher:     publisher,
		Mailer:        eventadapter.NewLoggingMailer(r.logger),
		Logger:        r.logger,
	})

	r.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           httpadapter.NewRouter(r.newHealthHandler(db, redisClient)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return nil
}

func (r *Runtime) newPublisher() (ports.EventPublisher, error) {
	if len(r.cfg.KafkaBrokers) == 0 {
		r.logger.Warn("no kafka brokers configured; user updates are only logged")
		return eventadapter.NewLoggingPublisher(r.logger), nil
	}
	publisher, err := eventadapter.NewKafkaPublisher(r.cfg.KafkaBrokers, map[string]string{
		userUpdateEventType: r.cfg.KafkaTopicUserUpdate,
	}, r.cfg.APITimeout)
	if err != nil {
		return nil, fmt.Errorf("init kafka publisher: %w", err)
	}
	r.onClose(func() { _ = publisher.Close() })
	return publisher, nil
}

func (r *Runtime) newHealthHandler(db *gorm.DB, redisClient *redis.Client) *httpadapter.Handler {
	return httpadapter.NewHandler(r.logger, 2*time.Second,
		httpadapter.ReadinessCheck{Name: "postgres", Check: postgres.NewPinger(db).Ping},
		httpadapter.ReadinessCheck{Name: "redis", Check: cacheadapter.NewPinger(redisClient).Ping},
	)
}

func (r *Runtime) onClose(fn func()) {
	r.cleanupFns = append(r.cleanupFns, fn)
}

// Close releases connections in reverse order of acquisition.
func (r *Runtime) Close() {
	for i := len(r.cleanupFns) - 1; i >= 0; i-- {
		r.cleanupFns[i]()
	}
	r.cleanupFns = nil
}

func (r *Runtime) Logger() *slog.Logger { return r.logger }

func (r *Runtime) Service() *application.Service { return r.service }

func (r *Runtime) Config() Config { return r.cfg }

// RunAPI serves the ops endpoints until a termination signal arrives.
func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case serveErr = <-errCh:
		r.logger.Error("server failure", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	return serveErr
}

type FlushOptions struct {
	SignalTypes []domain.SignalType
	Processes   int
	Period      time.Duration
	QuitEarly   bool
}

// RunFlush drains the outbox tables until a termination signal arrives or a
// worker hits a consistency violation. Zero options fall back to the
// configured values.
func (r *Runtime) RunFlush(ctx context.Context, opts FlushOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.Processes <= 0 {
		opts.Processes = r.cfg.FlushProcesses
	}
	if opts.Period <= 0 {
		opts.Period = r.cfg.FlushPeriod
	}
	engine := eventadapter.NewFlushEngine(r.logger, r.service.Flushers(opts.SignalTypes...), eventadapter.FlushConfig{
		Period:    opts.Period,
		Processes: opts.Processes,
		QuitEarly: opts.QuitEarly,
	})
	r.logger.Info("flush started", "processes", opts.Processes, "period", opts.Period.String())
	err := engine.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
