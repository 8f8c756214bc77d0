package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/swaptacular/swpt-login/internal/domain"
	"github.com/swaptacular/swpt-login/internal/ports"
	"golang.org/x/sync/errgroup"
)

type FlushConfig struct {
	Period    time.Duration
	Processes int
	// QuitEarly makes every worker return after its first cycle.
	QuitEarly bool
}

// FlushEngine drains the signal outbox tables. Several workers may poll the
// same tables; the stores skip rows another worker holds.
type FlushEngine struct {
	logger   *slog.Logger
	flushers []ports.SignalFlusher
	cfg      FlushConfig
}

func NewFlushEngine(logger *slog.Logger, flushers []ports.SignalFlusher, cfg FlushConfig) *FlushEngine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Period <= 0 {
		cfg.Period = 10 * time.Second
	}
	if cfg.Processes <= 0 {
		cfg.Processes = 1
	}
	return &FlushEngine{logger: logger, flushers: flushers, cfg: cfg}
}

// Run starts the workers and blocks until one of them fails with a
// consistency violation, ctx is cancelled, or all of them quit early.
func (e *FlushEngine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for range e.cfg.Processes {
		g.Go(func() error {
			return e.runWorker(ctx, uuid.NewString())
		})
	}
	return g.Wait()
}

func (e *FlushEngine) runWorker(ctx context.Context, workerID string) error {
	ticker := time.NewTicker(e.cfg.Period)
	defer ticker.Stop()

	e.logger.InfoContext(ctx, "flush worker started",
		"module", "events.flush_engine",
		"layer", "adapter",
		"operation", "flush_worker",
		"outcome", "started",
		"worker_id", workerID,
		"period", e.cfg.Period.String(),
	)
	for {
		// A started cycle is never abandoned half way.
		_, err := e.FlushOnce(context.WithoutCancel(ctx), workerID)
		if errors.Is(err, domain.ErrUserIDReused) {
			return err
		}
		if e.cfg.QuitEarly {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// FlushOnce processes one burst of every signal type and returns the number
// of rows processed. Errors of one signal type do not prevent flushing the
// others, except domain.ErrUserIDReused which is returned at once.
func (e *FlushEngine) FlushOnce(ctx context.Context, workerID string) (int, error) {
	total := 0
	var errs []error
	for _, flusher := range e.flushers {
		n, err := flusher.FlushBurst(ctx)
		total += n
		if errors.Is(err, domain.ErrUserIDReused) {
			e.logger.ErrorContext(ctx, "user id reused; flushing stopped",
				"module", "events.flush_engine",
				"layer", "adapter",
				"operation", "flush_burst",
				"outcome", "consistency_violation",
				"worker_id", workerID,
				"signal_type", flusher.SignalType(),
				"error", err,
			)
			return total, err
		}
		if err != nil {
			e.logger.ErrorContext(ctx, "flush burst failed",
				"module", "events.flush_engine",
				"layer", "adapter",
				"operation", "flush_burst",
				"outcome", "failure",
				"worker_id", workerID,
				"signal_type", flusher.SignalType(),
				"error", err,
			)
			errs = append(errs, err)
			continue
		}

		level := slog.LevelDebug
		if n > 0 {
			level = slog.LevelInfo
		}
		e.logger.Log(ctx, level, "flush burst processed",
			"module", "events.flush_engine",
			"layer", "adapter",
			"operation", "flush_burst",
			"outcome", "success",
			"worker_id", workerID,
			"signal_type", flusher.SignalType(),
			"count", n,
		)
	}
	return total, errors.Join(errs...)
}
