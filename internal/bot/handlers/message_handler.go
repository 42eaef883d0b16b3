package handlers

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/nkoval/relaybot/internal/relay"
)

// NewMessageHandler returns the default handler: every non-command
// update flows through here and is routed to the relay service.
func NewMessageHandler(deps HandlerDeps) bot.HandlerFunc {
	return messageHandler{deps}.Handle
}

type messageHandler struct {
	deps HandlerDeps
}

func (h messageHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	switch {
	case update.Message != nil:
		h.handleMessage(ctx, b, update.Message)
	case update.EditedMessage != nil:
		h.handleEdit(ctx, update.EditedMessage)
	}
}

func (h messageHandler) handleMessage(ctx context.Context, b *bot.Bot, msg *models.Message) {
	log := h.deps.Logger.With("handler", "message")

	if msg.From == nil || msg.From.IsBot {
		return
	}
	if msg.ForumTopicCreated != nil || msg.ForumTopicEdited != nil {
		return
	}

	isAdmin := h.deps.Config.Telegram.IsAdmin(msg.From.ID)

	switch {
	case msg.Chat.Type == models.ChatTypePrivate && !isAdmin:
		if err := h.deps.Service.RelayUserMessage(ctx, identityOf(msg.From), inbound(msg)); err != nil {
			log.ErrorContext(ctx, "User relay failed", "user_id", msg.From.ID, "error", err)
		}

	case msg.Chat.Type == models.ChatTypePrivate && isAdmin:
		if err := h.deps.Service.RelayAdminMessage(ctx, adminContext(msg), inbound(msg)); err != nil {
			log.ErrorContext(ctx, "Admin relay failed", "admin_id", msg.From.ID, "error", err)
		}

	case msg.Chat.ID == h.deps.Config.Relay.GroupChatID():
		// Non-admin chatter in the admin group is none of our business.
		if !isAdmin {
			return
		}
		if err := h.deps.Service.RelayAdminMessage(ctx, adminContext(msg), inbound(msg)); err != nil {
			log.ErrorContext(ctx, "Admin relay failed", "admin_id", msg.From.ID, "error", err)
		}

	default:
		// Unknown group. Answer only when directly addressed.
		if strings.HasPrefix(msg.Text, "/") {
			reply(ctx, b, log, msg, h.deps.Config.Messages.PrivateOnly)
		}
	}
}

func (h messageHandler) handleEdit(ctx context.Context, msg *models.Message) {
	log := h.deps.Logger.With("handler", "edit")

	if msg.From == nil || msg.From.IsBot {
		return
	}
	isAdmin := h.deps.Config.Telegram.IsAdmin(msg.From.ID)

	switch {
	case msg.Chat.Type == models.ChatTypePrivate && !isAdmin:
		if err := h.deps.Service.PropagateUserEdit(ctx, inbound(msg)); err != nil {
			log.ErrorContext(ctx, "User edit propagation failed", "user_id", msg.From.ID, "error", err)
		}
	case isAdmin && h.deps.isAdminContext(msg.Chat):
		if err := h.deps.Service.PropagateAdminEdit(ctx, adminContext(msg), inbound(msg)); err != nil {
			log.ErrorContext(ctx, "Admin edit propagation failed", "admin_id", msg.From.ID, "error", err)
		}
	}
}

func identityOf(from *models.User) relay.Identity {
	fullName := from.FirstName
	if from.LastName != "" {
		fullName += " " + from.LastName
	}
	return relay.Identity{ID: from.ID, Username: from.Username, FullName: fullName}
}

func adminContext(msg *models.Message) relay.AdminContext {
	ac := relay.AdminContext{AdminChatID: msg.Chat.ID, ThreadID: msg.MessageThreadID}
	if msg.ReplyToMessage != nil {
		ac.ReplyToMessageID = msg.ReplyToMessage.ID
	}
	return ac
}

// inbound normalizes a Telegram message for the relay service: the text
// body when there is one, otherwise the caption plus a media kind.
func inbound(msg *models.Message) relay.InboundMessage {
	m := relay.InboundMessage{
		ChatID:    msg.Chat.ID,
		MessageID: msg.ID,
	}
	if msg.Text != "" {
		m.Text = msg.Text
		m.PlainText = true
		m.Kind = "text"
		return m
	}
	m.Text = msg.Caption
	m.Kind = messageKind(msg)
	return m
}

func messageKind(msg *models.Message) string {
	switch {
	case len(msg.Photo) > 0:
		return "photo"
	case msg.Video != nil:
		return "video"
	case msg.Document != nil:
		return "document"
	case msg.Voice != nil:
		return "voice"
	case msg.Audio != nil:
		return "audio"
	case msg.Sticker != nil:
		return "sticker"
	case msg.Animation != nil:
		return "animation"
	default:
		return "other"
	}
}
