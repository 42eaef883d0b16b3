// Package telegram implements the messaging gateway over the
// go-telegram/bot library, plus bot construction and command-menu setup.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"

	"github.com/nkoval/relaybot/internal/relay"
)

// Gateway adapts go-telegram/bot to the relay.Gateway interface. Every
// call gets its own deadline so a stalled API request bounds out as a
// delivery failure instead of wedging the relay.
type Gateway struct {
	bot     *bot.Bot
	timeout time.Duration
	logger  *slog.Logger
}

// NewGateway wraps a bot instance as a relay gateway.
func NewGateway(b *bot.Bot, timeout time.Duration, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		bot:     b,
		timeout: timeout,
		logger:  logger.With("component", "gateway"),
	}
}

func (g *Gateway) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, g.timeout)
}

// classify maps transport errors onto the relay failure taxonomy.
// Forbidden means the recipient blocked the bot or deleted their account:
// permanently rejected, never retried. Bad request is a malformed call on
// our side. Everything else, including rate limiting and timeouts, is
// transient.
func classify(err error) error {
	if err == nil {
		return nil
	}

	kind := relay.KindTransient
	switch {
	case errors.Is(err, bot.ErrorForbidden):
		kind = relay.KindRejected
	case bot.IsTooManyRequestsError(err):
		kind = relay.KindTransient
	case errors.Is(err, bot.ErrorBadRequest):
		kind = relay.KindMalformed
	}
	return &relay.GatewayError{Kind: kind, Err: err}
}

// SendText implements relay.Gateway.
func (g *Gateway) SendText(ctx context.Context, chatID int64, threadID int, text string) (int, error) {
	cctx, cancel := g.callCtx(ctx)
	defer cancel()

	params := &bot.SendMessageParams{ChatID: chatID, Text: text}
	if threadID != 0 {
		params.MessageThreadID = threadID
	}

	msg, err := g.bot.SendMessage(cctx, params)
	if err != nil {
		return 0, classify(err)
	}
	return msg.ID, nil
}

// CopyMessage implements relay.Gateway.
func (g *Gateway) CopyMessage(ctx context.Context, fromChatID int64, messageID int, toChatID int64, threadID int) (int, error) {
	cctx, cancel := g.callCtx(ctx)
	defer cancel()

	params := &bot.CopyMessageParams{
		ChatID:     toChatID,
		FromChatID: fromChatID,
		MessageID:  messageID,
	}
	if threadID != 0 {
		params.MessageThreadID = threadID
	}

	copied, err := g.bot.CopyMessage(cctx, params)
	if err != nil {
		return 0, classify(err)
	}
	return copied.ID, nil
}

// ForwardMessage implements relay.Gateway.
func (g *Gateway) ForwardMessage(ctx context.Context, fromChatID int64, messageID int, toChatID int64) (int, error) {
	cctx, cancel := g.callCtx(ctx)
	defer cancel()

	msg, err := g.bot.ForwardMessage(cctx, &bot.ForwardMessageParams{
		ChatID:     toChatID,
		FromChatID: fromChatID,
		MessageID:  messageID,
	})
	if err != nil {
		return 0, classify(err)
	}
	return msg.ID, nil
}

// EditText implements relay.Gateway.
func (g *Gateway) EditText(ctx context.Context, chatID int64, messageID int, text string) error {
	cctx, cancel := g.callCtx(ctx)
	defer cancel()

	_, err := g.bot.EditMessageText(cctx, &bot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
	})
	return classify(err)
}

// EditCaption implements relay.Gateway.
func (g *Gateway) EditCaption(ctx context.Context, chatID int64, messageID int, caption string) error {
	cctx, cancel := g.callCtx(ctx)
	defer cancel()

	_, err := g.bot.EditMessageCaption(cctx, &bot.EditMessageCaptionParams{
		ChatID:    chatID,
		MessageID: messageID,
		Caption:   caption,
	})
	return classify(err)
}

// DeleteMessage implements relay.Gateway.
func (g *Gateway) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	cctx, cancel := g.callCtx(ctx)
	defer cancel()

	ok, err := g.bot.DeleteMessage(cctx, &bot.DeleteMessageParams{
		ChatID:    chatID,
		MessageID: messageID,
	})
	if err != nil {
		return classify(err)
	}
	if !ok {
		return &relay.GatewayError{Kind: relay.KindTransient, Err: fmt.Errorf("delete not confirmed for message %d", messageID)}
	}
	return nil
}

// CreateThread implements relay.Gateway.
func (g *Gateway) CreateThread(ctx context.Context, chatID int64, title string) (int, error) {
	cctx, cancel := g.callCtx(ctx)
	defer cancel()

	topic, err := g.bot.CreateForumTopic(cctx, &bot.CreateForumTopicParams{
		ChatID: chatID,
		Name:   title,
	})
	if err != nil {
		return 0, classify(err)
	}

	g.logger.DebugContext(ctx, "Forum topic created", "chat_id", chatID, "thread_id", topic.MessageThreadID)
	return topic.MessageThreadID, nil
}

// RenameThread implements relay.Gateway.
func (g *Gateway) RenameThread(ctx context.Context, chatID int64, threadID int, title string) error {
	cctx, cancel := g.callCtx(ctx)
	defer cancel()

	_, err := g.bot.EditForumTopic(cctx, &bot.EditForumTopicParams{
		ChatID:          chatID,
		MessageThreadID: threadID,
		Name:            title,
	})
	return classify(err)
}

// AttachModerationActions implements relay.Gateway by putting the
// moderation inline keyboard on a relayed copy.
func (g *Gateway) AttachModerationActions(ctx context.Context, chatID int64, messageID int, userID int64) error {
	cctx, cancel := g.callCtx(ctx)
	defer cancel()

	_, err := g.bot.EditMessageReplyMarkup(cctx, &bot.EditMessageReplyMarkupParams{
		ChatID:      chatID,
		MessageID:   messageID,
		ReplyMarkup: ModerationKeyboard(userID, messageID),
	})
	return classify(err)
}
