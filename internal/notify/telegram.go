// Package notify delivers trigger firings to people. The Telegram notifier
// posts to a configured chat; the Log notifier only records the firing.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/edgard/shamebot/internal/database"
	"github.com/edgard/shamebot/internal/errs"
	"github.com/edgard/shamebot/internal/logger"
)

// TaskSource loads the current state of a task.
type TaskSource interface {
	GetTask(ctx context.Context, id uuid.UUID) (*database.Task, error)
}

// Sender posts a message to Telegram. *bot.Bot satisfies it.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Circuit breaker defaults for the Telegram API.
const (
	DefaultMaxFailures = 5
	DefaultCooldown    = time.Minute
)

// TelegramOptions configures a Telegram notifier.
type TelegramOptions struct {
	ChatID   int64
	AppURL   string
	Location *time.Location
	Logger   *slog.Logger

	// MaxFailures consecutive send failures open the breaker for Cooldown.
	MaxFailures int
	Cooldown    time.Duration
}

// Telegram sends pester, reminder and overdue messages to a single chat.
// Sends are serialized so the messages of one firing are never interleaved
// with another's.
type Telegram struct {
	sender Sender
	tasks  TaskSource
	chatID int64
	appURL string
	loc    *time.Location
	logger *slog.Logger

	sem     chan struct{}
	breaker *gobreaker.CircuitBreaker
}

// NewTelegram creates a Telegram notifier.
func NewTelegram(sender Sender, tasks TaskSource, opts TelegramOptions) (*Telegram, error) {
	if sender == nil {
		return nil, errs.NewValidationError("nil telegram sender", nil)
	}
	if tasks == nil {
		return nil, errs.NewValidationError("nil task source", nil)
	}
	if opts.ChatID == 0 {
		return nil, errs.NewValidationError("telegram chat id is required", nil)
	}

	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	maxFailures := opts.MaxFailures
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}
	cooldown := opts.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}

	log = log.With("component", "telegram_notifier")
	return &Telegram{
		sender:  sender,
		tasks:   tasks,
		chatID:  opts.ChatID,
		appURL:  opts.AppURL,
		loc:     loc,
		logger:  log,
		sem:     make(chan struct{}, 1),
		breaker: newBreaker(uint32(maxFailures), cooldown, log),
	}, nil
}

func newBreaker(maxFailures uint32, cooldown time.Duration, log *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "telegram_send",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// Our own cancellations say nothing about the health of the API.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
}

// OnPesterFired nags the owner of an unfinished task.
func (n *Telegram) OnPesterFired(ctx context.Context, taskID uuid.UUID) error {
	task, err := n.pending(ctx, taskID, database.TriggerPester)
	if err != nil || task == nil {
		return err
	}
	return n.send(ctx, task, pesterMessage(task, n.loc))
}

// OnReminderFired warns the owner one hour before the deadline.
func (n *Telegram) OnReminderFired(ctx context.Context, taskID uuid.UUID) error {
	task, err := n.pending(ctx, taskID, database.TriggerReminder)
	if err != nil || task == nil {
		return err
	}
	return n.send(ctx, task, reminderMessage(task), summaryMessage(task, n.appURL))
}

// OnOverdueFired tells the owner the deadline passed.
func (n *Telegram) OnOverdueFired(ctx context.Context, taskID uuid.UUID) error {
	task, err := n.pending(ctx, taskID, database.TriggerOverdue)
	if err != nil || task == nil {
		return err
	}
	return n.send(ctx, task, overdueMessage(task), summaryMessage(task, n.appURL))
}

// pending loads a task that still needs a notification. It returns nil without
// error when the task was deleted or already checked off.
func (n *Telegram) pending(ctx context.Context, taskID uuid.UUID, t database.TriggerType) (*database.Task, error) {
	log := n.logger.With("task_id", taskID, "trigger_type", t)

	task, err := n.tasks.GetTask(ctx, taskID)
	if errors.Is(err, database.ErrNotFound) {
		log.DebugContext(ctx, "Task deleted, skipping notification")
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewNotifyError(fmt.Sprintf("failed to load task %s", taskID), err)
	}
	if task.Checked {
		log.DebugContext(ctx, "Task already finished, skipping notification")
		return nil, nil
	}
	return task, nil
}

func (n *Telegram) send(ctx context.Context, task *database.Task, texts ...string) error {
	select {
	case n.sem <- struct{}{}:
	case <-ctx.Done():
		return errs.NewNotifyError("timed out waiting to send", ctx.Err())
	}
	defer func() { <-n.sem }()

	for _, text := range texts {
		_, err := n.breaker.Execute(func() (interface{}, error) {
			return n.sender.SendMessage(ctx, &bot.SendMessageParams{
				ChatID:    n.chatID,
				Text:      text,
				ParseMode: models.ParseModeHTML,
			})
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			n.logger.WarnContext(ctx, "Telegram unavailable, dropping notification", "task_id", task.ID)
			return errs.NewNotifyError("telegram circuit open", err)
		}
		if err != nil {
			n.logger.ErrorContext(ctx, "Failed to send message", "task_id", task.ID, "chat_id", n.chatID, "error", err)
			return errs.NewNotifyError("failed to send telegram message", err)
		}
	}

	n.logger.DebugContext(ctx, "Notification sent", "task_id", task.ID, "messages", len(texts))
	return nil
}
