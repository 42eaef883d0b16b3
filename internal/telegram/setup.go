package telegram

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewTelegramBot creates a new Telegram bot instance using the
// go-telegram/bot library.
func NewTelegramBot(token string, logger *slog.Logger, opts ...bot.Option) (*bot.Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "telegram_bot")

	b, err := bot.New(token, opts...)
	if err != nil {
		log.Error("Failed to create Telegram bot instance", "error", err)
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	log.Info("Telegram bot instance created successfully", "token_prefix", token[:8]+"...")
	return b, nil
}

var userCommands = []models.BotCommand{
	{Command: "start", Description: "Connect to the relay"},
	{Command: "id", Description: "Show your Telegram user ID"},
}

var adminCommands = []models.BotCommand{
	{Command: "recent", Description: "Recently active users"},
	{Command: "session", Description: "Show or set the session target"},
	{Command: "ban", Description: "Ban a user: /ban <id> [expiry] [reason | note]"},
	{Command: "unban", Description: "Lift a ban"},
	{Command: "banlist", Description: "Active bans"},
	{Command: "baninfo", Description: "Ban details for a user"},
	{Command: "rule", Description: "Auto-reply rules: list|add|on|off|del|test"},
	{Command: "stats", Description: "Relay statistics"},
	{Command: "broadcast", Description: "Send to all known users"},
	{Command: "sender", Description: "Show the mapped sender of a reply"},
	{Command: "deletepair", Description: "Delete a relayed pair (reply to it)"},
	{Command: "chatid", Description: "Show this chat's ID"},
	{Command: "version", Description: "Bot version"},
}

// SetupCommands publishes the command menus: the user menu for all
// private chats, the admin menu scoped to each admin chat and to the
// admin group when one is configured. A failure here is logged but not
// fatal; the bot works without menus.
func SetupCommands(ctx context.Context, b *bot.Bot, logger *slog.Logger, adminChatIDs []int64, adminGroupChatID int64) {
	log := logger.With("component", "command_menu")

	if _, err := b.SetMyCommands(ctx, &bot.SetMyCommandsParams{
		Commands: userCommands,
		Scope:    &models.BotCommandScopeAllPrivateChats{},
	}); err != nil {
		log.WarnContext(ctx, "Failed to publish user command menu", "error", err)
	}

	adminScopes := make([]models.BotCommandScope, 0, len(adminChatIDs)+1)
	for _, chatID := range adminChatIDs {
		adminScopes = append(adminScopes, &models.BotCommandScopeChat{ChatID: chatID})
	}
	if adminGroupChatID != 0 {
		adminScopes = append(adminScopes, &models.BotCommandScopeChat{ChatID: adminGroupChatID})
	}

	for _, scope := range adminScopes {
		if _, err := b.SetMyCommands(ctx, &bot.SetMyCommandsParams{
			Commands: append(append([]models.BotCommand{}, userCommands...), adminCommands...),
			Scope:    scope,
		}); err != nil {
			log.WarnContext(ctx, "Failed to publish admin command menu", "scope", fmt.Sprintf("%+v", scope), "error", err)
		}
	}

	log.InfoContext(ctx, "Command menus published", "admin_scopes", len(adminScopes))
}
