package logger

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/go-co-op/gocron/v2"

	"github.com/edgard/shamebot/internal/errs"
)

// gocronLogger implements gocron.Logger on top of slog.
type gocronLogger struct {
	log *slog.Logger
}

// NewGocronLogger returns a gocron.Logger that forwards to log.
//
//nolint:ireturn // Interface return is required by gocron's API contract
func NewGocronLogger(log *slog.Logger) gocron.Logger {
	if log == nil {
		log = Discard()
	}
	return &gocronLogger{log: log.With("component", "gocron")}
}

// gocron is chatty at debug level; its debug output stays at debug.
func (l *gocronLogger) Debug(msg string, args ...any) {
	l.log.Debug(msg, processSchedulerArgs(args...)...)
}

func (l *gocronLogger) Error(msg string, args ...any) {
	l.log.Error(msg, processSchedulerArgs(args...)...)
}

func (l *gocronLogger) Info(msg string, args ...any) {
	l.log.Info(msg, processSchedulerArgs(args...)...)
}

func (l *gocronLogger) Warn(msg string, args ...any) {
	l.log.Warn(msg, processSchedulerArgs(args...)...)
}

// processSchedulerArgs wraps error values with a coded scheduler error so they
// are grouped consistently with the rest of the service's logs.
func processSchedulerArgs(args ...any) []any {
	processed := make([]any, 0, len(args))

	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			processed = append(processed, args[i])
			break
		}

		key, val := args[i], args[i+1]
		if k, ok := key.(string); ok && k == "error" {
			if err, ok := val.(error); ok {
				processed = append(processed, key, classifySchedulerError(err))
				continue
			}
		}
		processed = append(processed, key, val)
	}

	return processed
}

func classifySchedulerError(err error) error {
	switch {
	case errors.Is(err, gocron.ErrJobNotFound):
		return errs.NewSchedulerError("scheduled job not found", err)
	case strings.Contains(err.Error(), "shutdown"):
		return errs.NewSchedulerError("scheduler is shut down", err)
	default:
		return errs.NewSchedulerError("scheduler error", err)
	}
}
