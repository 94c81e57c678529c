package telegram

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const unauthorizedMsg = "you are not allowed to do that."

// AdminOnly rejects messages from anyone but the configured admin user.
// With no admin configured every command is rejected.
func AdminOnly(deps HandlerDeps) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			if update.Message == nil || update.Message.From == nil {
				return
			}

			userID := update.Message.From.ID
			if deps.AdminUserID == 0 || userID != deps.AdminUserID {
				chatID := update.Message.Chat.ID
				log := deps.Logger.With("middleware", "AdminOnly")
				log.WarnContext(ctx, "Unauthorized access attempt", "user_id", userID, "chat_id", chatID)

				if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: unauthorizedMsg}); err != nil {
					log.ErrorContext(ctx, "Failed to send unauthorized message", "error", err, "chat_id", chatID)
				}
				return
			}

			next(ctx, b, update)
		}
	}
}
