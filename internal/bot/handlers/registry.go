package handlers

import (
	"log/slog"

	tgbot "github.com/go-telegram/bot"
)

// RegisteredHandler represents a command handler with its middleware.
// It encapsulates all information needed to register a command.
type RegisteredHandler struct {
	HandlerType tgbot.HandlerType
	Pattern     string
	Handler     tgbot.HandlerFunc
	Middleware  []tgbot.Middleware
	MatchType   tgbot.MatchType
}

// RegisterAllCommands initializes and returns a map of all bot commands
// and the callback-query handler, each configured with its middleware.
func RegisterAllCommands(deps HandlerDeps) map[string]RegisteredHandler {
	handlers := make(map[string]RegisteredHandler)

	command := func(pattern string, h tgbot.HandlerFunc, mw ...tgbot.Middleware) RegisteredHandler {
		return RegisteredHandler{
			HandlerType: tgbot.HandlerTypeMessageText,
			Pattern:     pattern,
			Handler:     h,
			MatchType:   tgbot.MatchTypeCommandStartOnly,
			Middleware:  mw,
		}
	}

	handlers["/start"] = command("start", NewStartHandler(deps))
	handlers["/id"] = command("id", NewIDHandler(deps))

	admin := AdminOnly(deps)

	handlers["/chatid"] = command("chatid", NewChatIDHandler(deps), admin)
	handlers["/version"] = command("version", NewVersionHandler(deps), admin)
	handlers["/recent"] = command("recent", NewRecentHandler(deps), admin)
	handlers["/session"] = command("session", NewSessionHandler(deps), admin)
	handlers["/ban"] = command("ban", NewBanHandler(deps), admin)
	handlers["/unban"] = command("unban", NewUnbanHandler(deps), admin)
	handlers["/banlist"] = command("banlist", NewBanListHandler(deps), admin)
	handlers["/baninfo"] = command("baninfo", NewBanInfoHandler(deps), admin)
	handlers["/rule"] = command("rule", NewRuleHandler(deps), admin)
	handlers["/stats"] = command("stats", NewStatsHandler(deps), admin)
	handlers["/broadcast"] = command("broadcast", NewBroadcastHandler(deps), admin)
	handlers["/sender"] = command("sender", NewSenderHandler(deps), admin)
	handlers["/deletepair"] = command("deletepair", NewDeletePairHandler(deps), admin)

	handlers["callbacks"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeCallbackQueryData,
		Pattern:     "",
		Handler:     NewCallbackHandler(deps),
		MatchType:   tgbot.MatchTypePrefix,
	}

	return handlers
}

// applyMiddleware wraps a handler function with a slice of middleware.
// Middleware are applied in reverse order so the first one in the slice
// is the outermost.
func applyMiddleware(handler tgbot.HandlerFunc, mw []tgbot.Middleware) tgbot.HandlerFunc {
	for i := len(mw) - 1; i >= 0; i-- {
		handler = mw[i](handler)
	}
	return handler
}

// Register registers all handlers with the Telegram bot instance,
// applying each handler's middleware.
func Register(b *tgbot.Bot, logger *slog.Logger, registeredHandlers map[string]RegisteredHandler) {
	log := logger.With("component", "handler_registry")

	for name, regHandler := range registeredHandlers {
		if regHandler.Handler == nil {
			log.Warn("Skipping registration for nil handler", "name", name)
			continue
		}

		finalHandler := applyMiddleware(regHandler.Handler, regHandler.Middleware)
		b.RegisterHandler(regHandler.HandlerType, regHandler.Pattern, regHandler.MatchType, finalHandler)
		log.Debug("Registered handler", "name", name, "middleware_count", len(regHandler.Middleware))
	}

	log.Info("Registered Telegram handlers successfully", "count", len(registeredHandlers))
}
