package telegram

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/google/uuid"

	"github.com/edgard/shamebot/internal/database"
)

// JobsService is the part of the scheduler the admin commands use.
type JobsService interface {
	GetJobs(ctx context.Context, taskID uuid.UUID) (database.TriggerRecord, error)
	RegisterAll(ctx context.Context, taskID uuid.UUID) (database.TriggerRecord, error)
}

// HandlerDeps provides dependencies for Telegram command handlers.
type HandlerDeps struct {
	Logger      *slog.Logger
	AdminUserID int64
	Jobs        JobsService
}

// RegisteredHandler is a command handler with its match rules and middleware.
type RegisteredHandler struct {
	HandlerType bot.HandlerType
	Pattern     string
	Handler     bot.HandlerFunc
	Middleware  []bot.Middleware
	MatchType   bot.MatchType
}

// RegisterAllCommands returns the admin commands keyed by command name.
func RegisterAllCommands(deps HandlerDeps) map[string]RegisteredHandler {
	adminMiddleware := []bot.Middleware{AdminOnly(deps)}

	return map[string]RegisteredHandler{
		"/jobs": {
			HandlerType: bot.HandlerTypeMessageText,
			Pattern:     "jobs",
			Handler:     NewJobsHandler(deps),
			MatchType:   bot.MatchTypeCommandStartOnly,
			Middleware:  adminMiddleware,
		},
		"/reschedule": {
			HandlerType: bot.HandlerTypeMessageText,
			Pattern:     "reschedule",
			Handler:     NewRescheduleHandler(deps),
			MatchType:   bot.MatchTypeCommandStartOnly,
			Middleware:  adminMiddleware,
		},
	}
}
