package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// reply sends a plain text response into the chat (and thread) the
// triggering message came from.
func reply(ctx context.Context, b *bot.Bot, log *slog.Logger, msg *models.Message, text string) {
	params := &bot.SendMessageParams{ChatID: msg.Chat.ID, Text: text}
	if msg.MessageThreadID != 0 {
		params.MessageThreadID = msg.MessageThreadID
	}
	if _, err := b.SendMessage(ctx, params); err != nil {
		log.ErrorContext(ctx, "Failed to send reply", "error", err, "chat_id", msg.Chat.ID)
	}
}

// NewStartHandler returns a handler for the /start command.
func NewStartHandler(deps HandlerDeps) bot.HandlerFunc {
	return startHandler{deps}.Handle
}

type startHandler struct {
	deps HandlerDeps
}

func (h startHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "start")

	if update.Message == nil || update.Message.From == nil {
		return
	}
	if update.Message.Chat.Type != models.ChatTypePrivate {
		return
	}

	from := update.Message.From
	if !h.deps.Config.Telegram.IsAdmin(from.ID) {
		fullName := from.FirstName
		if from.LastName != "" {
			fullName += " " + from.LastName
		}
		if err := h.deps.Store.UpsertUser(ctx, from.ID, from.Username, fullName); err != nil {
			log.ErrorContext(ctx, "Failed to record user on /start", "user_id", from.ID, "error", err)
		}
	}

	reply(ctx, b, log, update.Message, h.deps.Config.Messages.Start)
}

// NewIDHandler returns a handler for the /id command.
func NewIDHandler(deps HandlerDeps) bot.HandlerFunc {
	return idHandler{deps}.Handle
}

type idHandler struct {
	deps HandlerDeps
}

func (h idHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	log := h.deps.Logger.With("handler", "id")
	reply(ctx, b, log, update.Message, fmt.Sprintf("Your user ID: %d", update.Message.From.ID))
}

// NewChatIDHandler returns a handler for the /chatid command. Useful when
// configuring the admin group id.
func NewChatIDHandler(deps HandlerDeps) bot.HandlerFunc {
	return chatIDHandler{deps}.Handle
}

type chatIDHandler struct {
	deps HandlerDeps
}

func (h chatIDHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	log := h.deps.Logger.With("handler", "chatid")
	msg := update.Message

	text := fmt.Sprintf("Chat ID: %d", msg.Chat.ID)
	if msg.MessageThreadID != 0 {
		text += fmt.Sprintf("\nThread ID: %d", msg.MessageThreadID)
	}
	reply(ctx, b, log, msg, text)
}

// NewVersionHandler returns a handler for the /version command.
func NewVersionHandler(deps HandlerDeps) bot.HandlerFunc {
	return versionHandler{deps}.Handle
}

type versionHandler struct {
	deps HandlerDeps
}

func (h versionHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	log := h.deps.Logger.With("handler", "version")

	version := h.deps.Version
	if version == "" {
		version = "dev"
	}
	reply(ctx, b, log, update.Message, "relaybot "+version)
}
