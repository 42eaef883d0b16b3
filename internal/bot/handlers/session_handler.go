package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/nkoval/relaybot/internal/relay"
)

// commandArgs splits a command message into its arguments, dropping the
// leading "/command" (possibly suffixed with @botname).
func commandArgs(text string) []string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	return fields[1:]
}

// commandTail returns everything after the command token, preserving
// inner spacing. Used where arguments are free text.
func commandTail(text string) string {
	if idx := strings.IndexAny(text, " \n"); idx != -1 {
		return strings.TrimSpace(text[idx+1:])
	}
	return ""
}

// NewSessionHandler returns a handler for the /session command:
// "/session" shows the current target with a recent-users panel,
// "/session <id>" switches it, "/session clear" drops it.
func NewSessionHandler(deps HandlerDeps) bot.HandlerFunc {
	return sessionHandler{deps}.Handle
}

type sessionHandler struct {
	deps HandlerDeps
}

func (h sessionHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "session")
	if update.Message == nil {
		return
	}
	msg := update.Message
	args := commandArgs(msg.Text)

	if len(args) == 0 {
		h.showPanel(ctx, b, msg)
		return
	}

	if strings.EqualFold(args[0], "clear") {
		if err := h.deps.Service.SetSession(ctx, msg.Chat.ID, 0); err != nil {
			log.ErrorContext(ctx, "Failed to clear session", "error", err)
			reply(ctx, b, log, msg, "Failed to clear session.")
			return
		}
		reply(ctx, b, log, msg, "Session cleared.")
		return
	}

	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || userID <= 0 {
		reply(ctx, b, log, msg, "Usage: /session <user ID> or /session clear")
		return
	}

	switch err := h.deps.Service.SetSession(ctx, msg.Chat.ID, userID); {
	case errors.Is(err, relay.ErrTargetBanned):
		reply(ctx, b, log, msg, fmt.Sprintf("User %d is banned; unban them before starting a session.", userID))
	case err != nil:
		log.ErrorContext(ctx, "Failed to set session", "user_id", userID, "error", err)
		reply(ctx, b, log, msg, "Failed to set session.")
	default:
		reply(ctx, b, log, msg, fmt.Sprintf("Session target set to %d. Messages without a reply now go to them.", userID))
	}
}

func (h sessionHandler) showPanel(ctx context.Context, b *bot.Bot, msg *models.Message) {
	log := h.deps.Logger.With("handler", "session")

	target, err := h.deps.Store.SessionTarget(ctx, msg.Chat.ID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to read session", "error", err)
		reply(ctx, b, log, msg, "Failed to read session.")
		return
	}

	text := "No active session."
	if target != 0 {
		text = fmt.Sprintf("Current session target: %d", target)
	}

	users, err := h.deps.Store.RecentUsers(ctx, 10, h.deps.Config.Telegram.AdminIDs)
	if err != nil {
		log.ErrorContext(ctx, "Failed to list recent users", "error", err)
		reply(ctx, b, log, msg, text)
		return
	}

	params := &bot.SendMessageParams{
		ChatID:      msg.Chat.ID,
		Text:        text + "\nPick a user to talk to:",
		ReplyMarkup: recentUsersKeyboard(users),
	}
	if msg.MessageThreadID != 0 {
		params.MessageThreadID = msg.MessageThreadID
	}
	if _, err := b.SendMessage(ctx, params); err != nil {
		log.ErrorContext(ctx, "Failed to send session panel", "error", err)
	}
}

// NewRecentHandler returns a handler for the /recent command: the most
// recently active users with their last-activity timestamps.
func NewRecentHandler(deps HandlerDeps) bot.HandlerFunc {
	return recentHandler{deps}.Handle
}

type recentHandler struct {
	deps HandlerDeps
}

func (h recentHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "recent")
	if update.Message == nil {
		return
	}
	msg := update.Message

	users, err := h.deps.Store.RecentUsers(ctx, 10, h.deps.Config.Telegram.AdminIDs)
	if err != nil {
		log.ErrorContext(ctx, "Failed to list recent users", "error", err)
		reply(ctx, b, log, msg, "Failed to list recent users.")
		return
	}
	if len(users) == 0 {
		reply(ctx, b, log, msg, "No users yet.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Recently active users:\n")
	for _, u := range users {
		fmt.Fprintf(&sb, "• %s — last active %s\n", userLabel(u), u.LastActiveAt)
	}
	reply(ctx, b, log, msg, sb.String())
}
