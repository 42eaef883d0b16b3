// Package handlers contains Telegram bot command and message handlers,
// along with their registration logic and middleware.
package handlers

import (
	"context"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// isAdminContext reports whether a chat is a place admin commands may be
// issued from: any private chat (identity is checked separately) or the
// configured admin group.
func (d HandlerDeps) isAdminContext(chat models.Chat) bool {
	if chat.Type == models.ChatTypePrivate {
		return true
	}
	return d.Config.Relay.GroupChatID() != 0 && chat.ID == d.Config.Relay.GroupChatID()
}

// AdminOnly creates a middleware that requires the sender to be a
// configured admin and the chat to be an admin context. Unauthorized
// attempts get a refusal and stop processing.
func AdminOnly(deps HandlerDeps) tgbot.Middleware {
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
			if update.Message == nil || update.Message.From == nil {
				next(ctx, b, update)
				return
			}

			userID := update.Message.From.ID
			chat := update.Message.Chat

			if !deps.Config.Telegram.IsAdmin(userID) || !deps.isAdminContext(chat) {
				log := deps.Logger.With("middleware", "AdminOnly")
				log.WarnContext(ctx, "Unauthorized command attempt", "user_id", userID, "chat_id", chat.ID)

				_, err := b.SendMessage(ctx, &tgbot.SendMessageParams{
					ChatID: chat.ID,
					Text:   deps.Config.Messages.NotAuthorized,
				})
				if err != nil {
					log.ErrorContext(ctx, "Failed to send unauthorized message", "error", err, "chat_id", chat.ID)
				}
				return
			}

			next(ctx, b, update)
		}
	}
}
