package handlers

import (
	"log/slog"

	"github.com/nkoval/relaybot/internal/config"
	"github.com/nkoval/relaybot/internal/database"
	"github.com/nkoval/relaybot/internal/relay"
)

// HandlerDeps provides dependencies for Telegram command handlers.
type HandlerDeps struct {
	Logger  *slog.Logger
	Config  *config.Config
	Store   database.Store
	Service *relay.Service
	Version string
}
