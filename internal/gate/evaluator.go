// Package gate decides whether a work item may be handed off to QA.
package gate

import (
	"context"
	"log/slog"
	"time"

	"github.com/alekspetrov/qa-handoff/internal/logging"
	"github.com/alekspetrov/qa-handoff/internal/textnorm"
)

// DefaultRecheckDelay is how long the evaluator waits before re-reading a
// work item whose status is still in a pending state.
const DefaultRecheckDelay = 1500 * time.Millisecond

// Config holds gate settings.
type Config struct {
	RequiredStatus  string        `yaml:"required_status"`
	PendingStatuses []string      `yaml:"pending_statuses"`
	RecheckDelay    time.Duration `yaml:"recheck_delay"`
	CheckboxField   string        `yaml:"checkbox_field"`
}

// DefaultConfig returns the default gate settings.
func DefaultConfig() *Config {
	return &Config{
		RequiredStatus:  "Needs Approval (Dev)",
		PendingStatuses: []string{"QA", "QA (Dev)"},
		RecheckDelay:    DefaultRecheckDelay,
		CheckboxField:   "Ready for QA",
	}
}

// Observation is the gate-relevant state of a work item.
type Observation struct {
	Status  string
	Checked bool
}

// Decision is the outcome of a gate evaluation.
type Decision struct {
	Passed           bool
	StatusObserved   string
	RequiredStatus   string
	CheckboxObserved bool
	Rechecked        bool
}

// StatusNormalizer canonicalizes a status label before comparison.
type StatusNormalizer func(string) string

// Refetcher re-reads the work item for the single re-check.
type Refetcher func(ctx context.Context) (Observation, error)

// Evaluator applies the gate and its one-shot re-check.
type Evaluator struct {
	required  string
	pending   map[string]bool
	delay     time.Duration
	normalize StatusNormalizer
	sleep     func(ctx context.Context, d time.Duration) error
	logger    *slog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithSleep replaces the delay function, mainly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Evaluator) {
		e.sleep = fn
	}
}

// WithNormalizer replaces the status normalizer.
func WithNormalizer(fn StatusNormalizer) Option {
	return func(e *Evaluator) {
		e.normalize = fn
	}
}

// NewEvaluator creates an evaluator from cfg.
func NewEvaluator(cfg *Config, opts ...Option) *Evaluator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	e := &Evaluator{
		required:  cfg.RequiredStatus,
		delay:     cfg.RecheckDelay,
		normalize: textnorm.Status,
		sleep:     sleepContext,
		logger:    logging.WithComponent("gate"),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.pending = make(map[string]bool, len(cfg.PendingStatuses))
	for _, s := range cfg.PendingStatuses {
		if n := e.normalize(s); n != "" {
			e.pending[n] = true
		}
	}
	if e.delay < 0 {
		e.delay = 0
	}
	return e
}

// Decide evaluates a single observation without any re-check.
func (e *Evaluator) Decide(obs Observation) Decision {
	return Decision{
		Passed:           e.statusMatches(obs.Status) && obs.Checked,
		StatusObserved:   obs.Status,
		RequiredStatus:   e.required,
		CheckboxObserved: obs.Checked,
	}
}

// Evaluate decides the gate for obs. When only the status fails, the box is
// checked and the status is a pending label, it waits once, calls refetch
// and decides again from the fresh observation. No further retries happen.
// If the re-check cannot run, the original decision stands.
func (e *Evaluator) Evaluate(ctx context.Context, obs Observation, refetch Refetcher) Decision {
	d := e.Decide(obs)
	if d.Passed || !e.shouldRecheck(obs) || refetch == nil {
		return d
	}

	e.logger.Info("Status still pending, re-checking once",
		slog.String("status", obs.Status),
		slog.Duration("delay", e.delay))

	if err := e.sleep(ctx, e.delay); err != nil {
		e.logger.Warn("Re-check aborted", slog.Any("error", err))
		return d
	}

	fresh, err := refetch(ctx)
	if err != nil {
		e.logger.Warn("Re-check fetch failed, keeping initial decision", slog.Any("error", err))
		return d
	}

	d = e.Decide(fresh)
	d.Rechecked = true
	return d
}

func (e *Evaluator) statusMatches(status string) bool {
	return e.normalize(status) == e.normalize(e.required)
}

func (e *Evaluator) shouldRecheck(obs Observation) bool {
	return obs.Checked && !e.statusMatches(obs.Status) && e.pending[e.normalize(obs.Status)]
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
