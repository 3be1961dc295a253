// Package trigger exposes the HTTP entry point that starts a hand-off job
// on a remote runner.
package trigger

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/alekspetrov/qa-handoff/internal/logging"
	"github.com/alekspetrov/qa-handoff/internal/metrics"
)

// SecretHeader carries the shared secret when it is not in the body.
const SecretHeader = "X-Trigger-Secret"

// Config configures the trigger server.
type Config struct {
	Listen  string        `yaml:"listen"`
	Secret  string        `yaml:"secret"`
	Timeout time.Duration `yaml:"timeout"`
	GitHub  *GitHubConfig `yaml:"github"`
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:  ":8080",
		Timeout: 30 * time.Second,
		GitHub:  DefaultGitHubConfig(),
	}
}

// Server handles trigger, webhook, health and metrics requests.
type Server struct {
	cfg        *Config
	dispatcher Dispatcher
	webhook    http.Handler
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithWebhook mounts the tracker webhook handler at /webhooks/asana.
func WithWebhook(h http.Handler) Option {
	return func(s *Server) {
		s.webhook = h
	}
}

// WithMetrics instruments requests and serves /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// NewServer creates a trigger server.
func NewServer(cfg *Config, dispatcher Dispatcher, opts ...Option) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		logger:     logging.WithComponent("trigger"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if s.cfg.Timeout > 0 {
		r.Use(middleware.Timeout(s.cfg.Timeout))
	}
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Get("/health", s.health)
	r.Post("/trigger", s.trigger)
	if s.webhook != nil {
		r.Handle("/webhooks/asana", s.webhook)
	}

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Trigger server listening", slog.String("addr", s.cfg.Listen))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("trigger server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("Shutting down trigger server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("trigger server shutdown: %w", err)
	}
	return nil
}

type triggerRequest struct {
	TaskID string `json:"task_id"`
	Secret string `json:"secret"`
	Mode   string `json:"mode"`
}

func (s *Server) trigger(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Secret == "" || s.dispatcher == nil {
		writeError(w, http.StatusServiceUnavailable, "trigger is not configured")
		return
	}

	var req triggerRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	secret := req.Secret
	if secret == "" {
		secret = r.Header.Get(SecretHeader)
	}
	if subtle.ConstantTimeCompare([]byte(secret), []byte(s.cfg.Secret)) != 1 {
		s.logger.Warn("Rejected trigger request", slog.String("remote", r.RemoteAddr))
		writeError(w, http.StatusUnauthorized, "invalid secret")
		return
	}

	if req.TaskID == "" {
		writeError(w, http.StatusBadRequest, "task_id is required")
		return
	}
	switch req.Mode {
	case "", "draft", "final":
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown mode %q", req.Mode))
		return
	}

	job := Job{TaskID: req.TaskID, Mode: req.Mode}
	if err := s.dispatcher.Dispatch(r.Context(), job); err != nil {
		var upstream *UpstreamError
		if errors.As(err, &upstream) {
			s.logger.Error("Job runner rejected dispatch",
				slog.String("task_id", job.TaskID),
				slog.Int("status", upstream.StatusCode),
				slog.String("body", upstream.Body))
			writeJSON(w, upstream.StatusCode, map[string]any{
				"error":           "job dispatch rejected",
				"upstream_status": upstream.StatusCode,
				"upstream_body":   upstream.Body,
			})
			return
		}
		s.logger.Error("Dispatch failed", slog.String("task_id", job.TaskID), slog.Any("error", err))
		writeError(w, http.StatusBadGateway, "job dispatch failed")
		return
	}

	s.logger.Info("Dispatched hand-off job", slog.String("task_id", job.TaskID), slog.String("mode", job.Mode))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "dispatched", "task_id": job.TaskID})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
