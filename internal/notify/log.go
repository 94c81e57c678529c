package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/edgard/shamebot/internal/database"
	"github.com/edgard/shamebot/internal/logger"
)

// Log records firings without contacting anyone. It is used when the Telegram
// transport is disabled.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a logging notifier.
func NewLog(log *slog.Logger) *Log {
	if log == nil {
		log = logger.Discard()
	}
	return &Log{logger: log.With("component", "log_notifier")}
}

func (n *Log) OnPesterFired(ctx context.Context, taskID uuid.UUID) error {
	return n.record(ctx, taskID, database.TriggerPester)
}

func (n *Log) OnReminderFired(ctx context.Context, taskID uuid.UUID) error {
	return n.record(ctx, taskID, database.TriggerReminder)
}

func (n *Log) OnOverdueFired(ctx context.Context, taskID uuid.UUID) error {
	return n.record(ctx, taskID, database.TriggerOverdue)
}

func (n *Log) record(ctx context.Context, taskID uuid.UUID, t database.TriggerType) error {
	n.logger.InfoContext(ctx, "Trigger fired", "task_id", taskID, "trigger_type", t)
	return nil
}
