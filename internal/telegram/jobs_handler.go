package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"

	"github.com/edgard/shamebot/internal/database"
)

const commandTimeout = 30 * time.Second

// NewJobsHandler returns a handler for the /jobs <task-id> command.
func NewJobsHandler(deps HandlerDeps) bot.HandlerFunc {
	return jobsHandler{deps: deps, name: "jobs", call: deps.Jobs.GetJobs}.Handle
}

// NewRescheduleHandler returns a handler for the /reschedule <task-id> command.
func NewRescheduleHandler(deps HandlerDeps) bot.HandlerFunc {
	return jobsHandler{deps: deps, name: "reschedule", call: deps.Jobs.RegisterAll}.Handle
}

type jobsHandler struct {
	deps HandlerDeps
	name string
	call func(ctx context.Context, taskID uuid.UUID) (database.TriggerRecord, error)
}

func (h jobsHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", h.name)
	if update.Message == nil {
		log.ErrorContext(ctx, "Handler called with nil Message", "update_id", update.ID)
		return
	}
	chatID := update.Message.Chat.ID

	reply := func(text string) {
		if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
			log.ErrorContext(ctx, "Failed to send reply", "error", err, "chat_id", chatID)
		}
	}

	taskID, err := parseTaskID(update.Message.Text)
	if err != nil {
		reply(fmt.Sprintf("usage: /%s <task-id>", h.name))
		return
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	record, err := h.call(timeoutCtx, taskID)
	switch {
	case errors.Is(err, database.ErrNotFound):
		reply(fmt.Sprintf("task %s not found", taskID))
	case err != nil:
		log.ErrorContext(ctx, "Command failed", "task_id", taskID, "error", err)
		reply("something went wrong, check the logs.")
	default:
		log.InfoContext(ctx, "Command handled", "task_id", taskID, "chat_id", chatID)
		reply(formatRecord(record))
	}
}

// parseTaskID extracts the task id argument from "/cmd <id>" or "/cmd@bot <id>".
func parseTaskID(text string) (uuid.UUID, error) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return uuid.Nil, fmt.Errorf("expected exactly one argument, got %d", len(fields)-1)
	}
	return uuid.Parse(fields[1])
}

func formatRecord(r database.TriggerRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "triggers for %s", r.TaskID)
	for _, t := range database.TriggerTypes {
		id := "none"
		if v := r.Get(t); v != nil {
			id = v.String()
		}
		fmt.Fprintf(&b, "\n%s: %s", t, id)
	}
	return b.String()
}
