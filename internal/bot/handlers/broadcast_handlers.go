package handlers

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewBroadcastHandler returns a handler for the /broadcast command. The
// payload is either the command's own text or, when the command is a
// reply, the replied-to message (copied, so media works too).
func NewBroadcastHandler(deps HandlerDeps) bot.HandlerFunc {
	return broadcastHandler{deps}.Handle
}

type broadcastHandler struct {
	deps HandlerDeps
}

func (h broadcastHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "broadcast")
	if update.Message == nil {
		return
	}
	msg := update.Message

	text := commandTail(msg.Text)
	sourceMessageID := msg.ID
	if text == "" {
		if msg.ReplyToMessage == nil {
			reply(ctx, b, log, msg, "Usage: /broadcast <text>, or reply to a message with /broadcast.")
			return
		}
		sourceMessageID = msg.ReplyToMessage.ID
	}

	result, err := h.deps.Service.Broadcast(ctx, msg.Chat.ID, sourceMessageID, text)
	if err != nil {
		log.ErrorContext(ctx, "Broadcast failed", "error", err)
		reply(ctx, b, log, msg, "Broadcast failed.")
		return
	}
	reply(ctx, b, log, msg, fmt.Sprintf("Broadcast done: %d delivered, %d failed.", result.Sent, result.Failed))
}

// NewSenderHandler returns a handler for the /sender command: reply to a
// relayed message to see who originally sent it.
func NewSenderHandler(deps HandlerDeps) bot.HandlerFunc {
	return senderHandler{deps}.Handle
}

type senderHandler struct {
	deps HandlerDeps
}

func (h senderHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "sender")
	if update.Message == nil {
		return
	}
	msg := update.Message

	if msg.ReplyToMessage == nil {
		reply(ctx, b, log, msg, "Reply to a relayed message with /sender.")
		return
	}

	m, err := h.deps.Store.LatestMappingByAdminMessage(ctx, msg.Chat.ID, msg.ReplyToMessage.ID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to look up mapping", "error", err)
		reply(ctx, b, log, msg, "Failed to look up the sender.")
		return
	}
	if m == nil {
		reply(ctx, b, log, msg, "That message is not a relayed one.")
		return
	}

	u, err := h.deps.Store.User(ctx, m.UserChatID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load user", "user_id", m.UserChatID, "error", err)
		reply(ctx, b, log, msg, "Failed to look up the sender.")
		return
	}
	if u == nil {
		reply(ctx, b, log, msg, fmt.Sprintf("Sender ID: %d", m.UserChatID))
		return
	}
	reply(ctx, b, log, msg, fmt.Sprintf("Sender: %s\nLast active: %s", userLabel(*u), u.LastActiveAt))
}

// NewDeletePairHandler returns a handler for the /deletepair command:
// reply to a relayed message to remove it on both sides, mappings
// included.
func NewDeletePairHandler(deps HandlerDeps) bot.HandlerFunc {
	return deletePairHandler{deps}.Handle
}

type deletePairHandler struct {
	deps HandlerDeps
}

func (h deletePairHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "deletepair")
	if update.Message == nil {
		return
	}
	msg := update.Message

	if msg.ReplyToMessage == nil {
		reply(ctx, b, log, msg, "Reply to a relayed message with /deletepair.")
		return
	}

	deleted, err := h.deps.Service.DeleteRelayedPair(ctx, msg.Chat.ID, msg.ReplyToMessage.ID)
	if err != nil {
		log.ErrorContext(ctx, "Delete pair failed", "error", err)
		reply(ctx, b, log, msg, "Failed to delete the pair.")
		return
	}
	if deleted == 0 {
		reply(ctx, b, log, msg, "That message is not a relayed one.")
		return
	}

	// The admin-side copy is removed here; the user-side counterparts
	// were handled above.
	if _, err := b.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    msg.Chat.ID,
		MessageID: msg.ReplyToMessage.ID,
	}); err != nil {
		log.WarnContext(ctx, "Failed to delete admin-side copy", "error", err)
	}
	reply(ctx, b, log, msg, fmt.Sprintf("Deleted %d relayed message(s).", deleted))
}
