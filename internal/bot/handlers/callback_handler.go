package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/nkoval/relaybot/internal/relay"
	"github.com/nkoval/relaybot/internal/telegram"
)

// NewCallbackHandler returns the handler for all inline keyboard
// callbacks. The payload format is prefix:args, see the telegram package
// for the vocabulary.
func NewCallbackHandler(deps HandlerDeps) bot.HandlerFunc {
	return callbackHandler{deps}.Handle
}

type callbackHandler struct {
	deps HandlerDeps
}

func (h callbackHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "callback")
	if update.CallbackQuery == nil {
		return
	}
	cb := update.CallbackQuery

	if !h.deps.Config.Telegram.IsAdmin(cb.From.ID) {
		log.WarnContext(ctx, "Unauthorized callback", "user_id", cb.From.ID, "data", cb.Data)
		h.answer(ctx, b, log, cb, h.deps.Config.Messages.NotAuthorized, true)
		return
	}

	// The originating message can be inaccessible (too old, or deleted);
	// actions that edit or reference it are then refused.
	msg := cb.Message.Message

	parts := strings.Split(cb.Data, ":")
	switch parts[0] {
	case telegram.CBSession:
		h.setSession(ctx, b, log, cb, msg, parts)
	case telegram.CBSessionClear:
		h.clearSession(ctx, b, log, cb, msg)
	case telegram.CBBan:
		h.ban(ctx, b, log, cb, parts, nil)
	case telegram.CBBanFor:
		h.banFor(ctx, b, log, cb, msg, parts)
	case telegram.CBUnban:
		h.unban(ctx, b, log, cb, parts)
	case telegram.CBShowID:
		if len(parts) == 2 {
			h.answer(ctx, b, log, cb, "User ID: "+parts[1], true)
		}
	case telegram.CBDeletePair:
		h.deletePair(ctx, b, log, cb, msg, parts)
	case telegram.CBBanMenu:
		h.swapKeyboard(ctx, b, log, cb, msg, parts, true)
	case telegram.CBActionMenu:
		h.swapKeyboard(ctx, b, log, cb, msg, parts, false)
	default:
		log.WarnContext(ctx, "Unknown callback payload", "data", cb.Data)
		h.answer(ctx, b, log, cb, "", false)
	}
}

func (h callbackHandler) setSession(ctx context.Context, b *bot.Bot, log *slog.Logger, cb *models.CallbackQuery, msg *models.Message, parts []string) {
	userID, ok := callbackID(parts, 1)
	if !ok || msg == nil {
		h.answer(ctx, b, log, cb, "", false)
		return
	}

	switch err := h.deps.Service.SetSession(ctx, msg.Chat.ID, userID); {
	case errors.Is(err, relay.ErrTargetBanned):
		h.answer(ctx, b, log, cb, fmt.Sprintf("User %d is banned.", userID), true)
	case err != nil:
		log.ErrorContext(ctx, "Failed to set session", "user_id", userID, "error", err)
		h.answer(ctx, b, log, cb, "Failed to set session.", true)
	default:
		h.answer(ctx, b, log, cb, fmt.Sprintf("Session target: %d", userID), false)
	}
}

func (h callbackHandler) clearSession(ctx context.Context, b *bot.Bot, log *slog.Logger, cb *models.CallbackQuery, msg *models.Message) {
	if msg == nil {
		h.answer(ctx, b, log, cb, "", false)
		return
	}
	if err := h.deps.Service.SetSession(ctx, msg.Chat.ID, 0); err != nil {
		log.ErrorContext(ctx, "Failed to clear session", "error", err)
		h.answer(ctx, b, log, cb, "Failed to clear session.", true)
		return
	}
	h.answer(ctx, b, log, cb, "Session cleared.", false)
}

func (h callbackHandler) ban(ctx context.Context, b *bot.Bot, log *slog.Logger, cb *models.CallbackQuery, parts []string, expiresAt *time.Time) {
	userID, ok := callbackID(parts, 1)
	if !ok {
		h.answer(ctx, b, log, cb, "", false)
		return
	}

	if _, err := h.deps.Service.Ledger().Ban(ctx, userID, cb.From.ID, "", "", expiresAt); err != nil {
		log.ErrorContext(ctx, "Ban failed", "user_id", userID, "error", err)
		h.answer(ctx, b, log, cb, "Failed to save the ban.", true)
		return
	}
	if expiresAt == nil {
		h.answer(ctx, b, log, cb, fmt.Sprintf("User %d banned permanently.", userID), false)
		return
	}
	h.answer(ctx, b, log, cb, fmt.Sprintf("User %d banned until %s.", userID, expiresAt.UTC().Format("2006-01-02 15:04 MST")), false)
}

func (h callbackHandler) banFor(ctx context.Context, b *bot.Bot, log *slog.Logger, cb *models.CallbackQuery, msg *models.Message, parts []string) {
	if len(parts) != 4 {
		h.answer(ctx, b, log, cb, "", false)
		return
	}
	expiry, err := relay.ParseExpiry(parts[2], time.Now())
	if err != nil {
		log.WarnContext(ctx, "Bad expiry in callback", "data", cb.Data)
		h.answer(ctx, b, log, cb, "", false)
		return
	}
	h.ban(ctx, b, log, cb, parts, &expiry)

	// Collapse the duration submenu back into the moderation keyboard.
	h.restoreModerationKeyboard(ctx, b, log, msg, parts[1], parts[3])
}

func (h callbackHandler) unban(ctx context.Context, b *bot.Bot, log *slog.Logger, cb *models.CallbackQuery, parts []string) {
	userID, ok := callbackID(parts, 1)
	if !ok {
		h.answer(ctx, b, log, cb, "", false)
		return
	}

	existed, err := h.deps.Service.Ledger().Unban(ctx, userID)
	if err != nil {
		log.ErrorContext(ctx, "Unban failed", "user_id", userID, "error", err)
		h.answer(ctx, b, log, cb, "Failed to lift the ban.", true)
		return
	}
	if !existed {
		h.answer(ctx, b, log, cb, fmt.Sprintf("User %d is not banned.", userID), false)
		return
	}
	h.answer(ctx, b, log, cb, fmt.Sprintf("Ban lifted for user %d.", userID), false)
}

func (h callbackHandler) deletePair(ctx context.Context, b *bot.Bot, log *slog.Logger, cb *models.CallbackQuery, msg *models.Message, parts []string) {
	adminMessageID, ok := callbackID(parts, 1)
	if !ok || msg == nil {
		h.answer(ctx, b, log, cb, "", false)
		return
	}

	deleted, err := h.deps.Service.DeleteRelayedPair(ctx, msg.Chat.ID, int(adminMessageID))
	if err != nil {
		log.ErrorContext(ctx, "Delete pair failed", "error", err)
		h.answer(ctx, b, log, cb, "Failed to delete the pair.", true)
		return
	}

	if _, err := b.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    msg.Chat.ID,
		MessageID: int(adminMessageID),
	}); err != nil {
		log.WarnContext(ctx, "Failed to delete admin-side copy", "error", err)
	}
	h.answer(ctx, b, log, cb, fmt.Sprintf("Deleted %d relayed message(s).", deleted), false)
}

// swapKeyboard toggles between the moderation keyboard and the ban
// duration submenu on the relayed message the button sits on.
func (h callbackHandler) swapKeyboard(ctx context.Context, b *bot.Bot, log *slog.Logger, cb *models.CallbackQuery, msg *models.Message, parts []string, toBanMenu bool) {
	if len(parts) != 3 || msg == nil {
		h.answer(ctx, b, log, cb, "", false)
		return
	}
	userID, ok := callbackID(parts, 1)
	if !ok {
		h.answer(ctx, b, log, cb, "", false)
		return
	}
	adminMessageID, err := strconv.Atoi(parts[2])
	if err != nil {
		h.answer(ctx, b, log, cb, "", false)
		return
	}

	markup := telegram.ModerationKeyboard(userID, adminMessageID)
	if toBanMenu {
		markup = telegram.BanDurationKeyboard(userID, adminMessageID)
	}
	if _, err := b.EditMessageReplyMarkup(ctx, &bot.EditMessageReplyMarkupParams{
		ChatID:      msg.Chat.ID,
		MessageID:   msg.ID,
		ReplyMarkup: markup,
	}); err != nil {
		log.WarnContext(ctx, "Failed to swap keyboard", "error", err)
	}
	h.answer(ctx, b, log, cb, "", false)
}

func (h callbackHandler) restoreModerationKeyboard(ctx context.Context, b *bot.Bot, log *slog.Logger, msg *models.Message, userIDRaw, adminMessageIDRaw string) {
	if msg == nil {
		return
	}
	userID, err := strconv.ParseInt(userIDRaw, 10, 64)
	if err != nil {
		return
	}
	adminMessageID, err := strconv.Atoi(adminMessageIDRaw)
	if err != nil {
		return
	}
	if _, err := b.EditMessageReplyMarkup(ctx, &bot.EditMessageReplyMarkupParams{
		ChatID:      msg.Chat.ID,
		MessageID:   msg.ID,
		ReplyMarkup: telegram.ModerationKeyboard(userID, adminMessageID),
	}); err != nil {
		log.WarnContext(ctx, "Failed to restore keyboard", "error", err)
	}
}

func (h callbackHandler) answer(ctx context.Context, b *bot.Bot, log *slog.Logger, cb *models.CallbackQuery, text string, alert bool) {
	_, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: cb.ID,
		Text:            text,
		ShowAlert:       alert,
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to answer callback", "error", err)
	}
}

func callbackID(parts []string, idx int) (int64, bool) {
	if len(parts) <= idx {
		return 0, false
	}
	id, err := strconv.ParseInt(parts[idx], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
