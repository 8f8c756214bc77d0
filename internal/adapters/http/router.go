package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

// ReadinessCheck probes one backing service.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type checkResult struct {
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

type readinessReport struct {
	Ready  bool                   `json:"ready"`
	Checks map[string]checkResult `json:"checks"`
}

// Handler serves the liveness and readiness probes of the process.
type Handler struct {
	logger  *slog.Logger
	checks  []ReadinessCheck
	timeout time.Duration
}

func NewHandler(logger *slog.Logger, timeout time.Duration, checks ...ReadinessCheck) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Handler{
		logger:  logger.With("module", "http.probes", "layer", "adapter"),
		checks:  checks,
		timeout: timeout,
	}
}

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(handler.observe)
	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)
	return r
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	report := readinessReport{Ready: true, Checks: make(map[string]checkResult, len(h.checks))}
	for _, c := range h.checks {
		result := h.runCheck(ctx, c)
		report.Checks[c.Name] = result
		if !result.OK {
			report.Ready = false
		}
	}

	status := http.StatusOK
	if !report.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// runCheck turns a panicking check into a failed one.
func (h *Handler) runCheck(ctx context.Context, c ReadinessCheck) (result checkResult) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.ErrorContext(ctx, "readiness check panicked",
				"operation", "readiness_check",
				"outcome", "panic",
				"check", c.Name,
				"request_id", requestIDFromContext(ctx),
				"panic", rec,
			)
			result = checkResult{Error: fmt.Sprintf("panic: %v", rec)}
		}
		result.DurationMS = time.Since(start).Milliseconds()
	}()

	if err := c.Check(ctx); err != nil {
		h.logger.WarnContext(ctx, "readiness check failed",
			"operation", "readiness_check",
			"outcome", "failure",
			"check", c.Name,
			"request_id", requestIDFromContext(ctx),
			"error", err,
		)
		return checkResult{Error: err.Error()}
	}
	return checkResult{OK: true}
}

type requestIDKey struct{}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// observe tags the probe with a request id, logs it and answers 500 if the
// handler panics. Successful probes are logged at DEBUG.
func (h *Handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, reqID)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, reqID))

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.ErrorContext(r.Context(), "probe handler panicked",
					"operation", "probe",
					"outcome", "panic",
					"path", r.URL.Path,
					"request_id", reqID,
					"panic", rec,
				)
				writeJSON(sw, http.StatusInternalServerError, map[string]string{"status": "error"})
			}

			level := slog.LevelDebug
			if sw.status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			h.logger.Log(r.Context(), level, "probe served",
				"operation", "probe",
				"path", r.URL.Path,
				"status_code", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", reqID,
			)
		}()
		next.ServeHTTP(sw, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
