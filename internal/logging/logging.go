// Package logging provides structured logging for the QA hand-off tool
// using Go's slog.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

// contextKey is a type for context keys to avoid collisions.
type contextKey string

const (
	runIDKey     contextKey = "run_id"
	itemIDKey    contextKey = "item_id"
	componentKey contextKey = "component"
)

var (
	defaultLogger *slog.Logger
	loggerMu      sync.RWMutex
)

func init() {
	defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// Config holds logging configuration.
type Config struct {
	Level    string          `yaml:"level"`    // debug, info, warn, error
	Format   string          `yaml:"format"`   // json, text
	Output   string          `yaml:"output"`   // stdout, stderr, or file path
	Rotation *RotationConfig `yaml:"rotation"` // only used for file output
}

// RotationConfig holds log rotation settings.
type RotationConfig struct {
	MaxSize    string `yaml:"max_size"`    // e.g., "50MB"
	MaxAge     string `yaml:"max_age"`     // e.g., "14d"
	MaxBackups int    `yaml:"max_backups"` // number of rotated files kept
	Compress   bool   `yaml:"compress"`    // gzip rotated files
}

// DefaultConfig returns defaults suited to CI job logs: text on stderr so
// stdout stays free for command output.
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: "text",
		Output: "stderr",
	}
}

// Init initializes the global logger with the given configuration.
func Init(cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	level := parseLevel(cfg.Level)
	writer, err := getWriter(cfg)
	if err != nil {
		return err
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(writer, opts)
	default:
		handler = slog.NewTextHandler(writer, opts)
	}

	SetLogger(slog.New(handler))
	return nil
}

// SetLogger replaces the global logger.
func SetLogger(l *slog.Logger) {
	loggerMu.Lock()
	defaultLogger = l
	loggerMu.Unlock()
}

// Discard silences all logging. Used by tests and quiet CLI modes.
func Discard() {
	SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getWriter(cfg *Config) (io.Writer, error) {
	switch cfg.Output {
	case "stderr", "":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	default:
		w, err := newRollingFile(cfg.Output, cfg.Rotation)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
}

// Logger returns the global logger.
func Logger() *slog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return defaultLogger
}

// WithComponent returns a logger with a component attribute.
func WithComponent(component string) *slog.Logger {
	return Logger().With(slog.String("component", component))
}

// WithRun returns a logger tagged with a pipeline run and its work item.
func WithRun(runID, itemID string) *slog.Logger {
	return Logger().With(slog.String("run_id", runID), slog.String("item_id", itemID))
}

// WithContext returns a logger carrying the values stored in ctx.
func WithContext(ctx context.Context) *slog.Logger {
	logger := Logger()
	if v, ok := ctx.Value(runIDKey).(string); ok {
		logger = logger.With(slog.String("run_id", v))
	}
	if v, ok := ctx.Value(itemIDKey).(string); ok {
		logger = logger.With(slog.String("item_id", v))
	}
	if v, ok := ctx.Value(componentKey).(string); ok {
		logger = logger.With(slog.String("component", v))
	}
	return logger
}

// ContextWithRun stores the run and item IDs in ctx.
func ContextWithRun(ctx context.Context, runID, itemID string) context.Context {
	ctx = context.WithValue(ctx, runIDKey, runID)
	return context.WithValue(ctx, itemIDKey, itemID)
}

// ContextWithComponent stores a component name in ctx.
func ContextWithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	Logger().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	Logger().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	Logger().Error(msg, args...)
}
