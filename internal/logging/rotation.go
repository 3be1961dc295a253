package logging

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultMaxSizeMB  = 50
	defaultMaxAgeDays = 14
	defaultMaxBackups = 5

	megabyte = 1024 * 1024
	day      = 24 * time.Hour
)

// newRollingFile returns a size-rotated log file. Sizes round up to whole
// megabytes and ages to whole days, the units lumberjack works in.
func newRollingFile(path string, cfg *RotationConfig) (*lumberjack.Logger, error) {
	w := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    defaultMaxSizeMB,
		MaxAge:     defaultMaxAgeDays,
		MaxBackups: defaultMaxBackups,
		LocalTime:  true,
	}
	if cfg == nil {
		return w, nil
	}

	if cfg.MaxSize != "" {
		size, err := parseSize(cfg.MaxSize)
		if err != nil {
			return nil, fmt.Errorf("invalid max_size: %w", err)
		}
		w.MaxSize = int((size + megabyte - 1) / megabyte)
		if w.MaxSize < 1 {
			w.MaxSize = 1
		}
	}
	if cfg.MaxAge != "" {
		age, err := parseDuration(cfg.MaxAge)
		if err != nil {
			return nil, fmt.Errorf("invalid max_age: %w", err)
		}
		w.MaxAge = int((age + day - 1) / day)
	}
	if cfg.MaxBackups > 0 {
		w.MaxBackups = cfg.MaxBackups
	}
	w.Compress = cfg.Compress
	return w, nil
}

// parseSize parses a size string like "50MB" into bytes.
func parseSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))

	mult := int64(1)
	for _, u := range []struct {
		suffix string
		mult   int64
	}{
		{"GB", 1024 * megabyte},
		{"MB", megabyte},
		{"KB", 1024},
		{"B", 1},
	} {
		if strings.HasSuffix(s, u.suffix) {
			mult = u.mult
			s = strings.TrimSuffix(s, u.suffix)
			break
		}
	}

	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative size %d", n)
	}
	return n * mult, nil
}

// parseDuration accepts Go durations plus "d" (days) and "w" (weeks).
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))

	for suffix, unit := range map[string]time.Duration{"d": day, "w": 7 * day} {
		if strings.HasSuffix(s, suffix) {
			n, err := strconv.Atoi(strings.TrimSuffix(s, suffix))
			if err != nil {
				return 0, err
			}
			return time.Duration(n) * unit, nil
		}
	}
	return time.ParseDuration(s)
}
