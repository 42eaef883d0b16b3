// Package main contains the entrypoint for the relay bot application.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/joho/godotenv"

	"github.com/nkoval/relaybot/internal/bot"
	"github.com/nkoval/relaybot/internal/bot/handlers"
	"github.com/nkoval/relaybot/internal/config"
	"github.com/nkoval/relaybot/internal/database"
	"github.com/nkoval/relaybot/internal/logger"
	"github.com/nkoval/relaybot/internal/relay"
	"github.com/nkoval/relaybot/internal/telegram"
)

// version is set at build time via -ldflags "-X main.version=...".
var version string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes all application components (config, logger, db, relay
// service, bot, scheduler), handles graceful shutdown, and returns an
// exit code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	// A .env file is a convenience for local runs; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to open database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	// deps is captured by the default handler closure and filled in
	// below, before the bot starts polling.
	var deps handlers.HandlerDeps

	botOpts := []tgbot.Option{
		tgbot.WithMiddlewares(logger.Middleware(log)),
		tgbot.WithDefaultHandler(func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
			handlers.NewMessageHandler(deps)(ctx, b, update)
		}),
	}
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	gateway := telegram.NewGateway(tg, cfg.Relay.GatewayTimeout, log)
	ledger := relay.NewLedger(store, log)
	matcher := relay.NewMatcher(store, log)

	var binder *relay.TopicBinder
	if cfg.Relay.Mode == config.ModeGroupTopic {
		binder = relay.NewTopicBinder(store, gateway, cfg.Relay.GroupChatID(), log)
	}
	resolver := relay.NewResolver(store, binder, log)

	service := relay.NewService(store, gateway, ledger, matcher, binder, resolver, relay.Options{
		GroupTopicMode:   cfg.Relay.Mode == config.ModeGroupTopic,
		AdminChatIDs:     cfg.Telegram.AdminIDs,
		AdminUserIDs:     cfg.Telegram.AdminIDs,
		AdminGroupChatID: cfg.Relay.GroupChatID(),
		BroadcastDelay:   cfg.Relay.BroadcastDelay,
		Messages: relay.Messages{
			Banned:           cfg.Messages.Banned,
			RelayFailed:      cfg.Messages.RelayFailed,
			NoTarget:         cfg.Messages.NoTarget,
			NoTargetTopic:    cfg.Messages.NoTargetTopic,
			DeliveryRejected: cfg.Messages.DeliveryRejected,
			TargetBanned:     cfg.Messages.TargetBanned,
		},
	}, log)

	deps = handlers.HandlerDeps{
		Logger:  log,
		Config:  cfg,
		Store:   store,
		Service: service,
		Version: version,
	}

	handlers.Register(tg, log, handlers.RegisterAllCommands(deps))
	telegram.SetupCommands(ctx, tg, log, cfg.Telegram.AdminIDs, cfg.Relay.GroupChatID())

	sched, err := bot.NewScheduler(log, ledger, cfg.Scheduler.BanSweepInterval)
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	app := bot.NewBot(log, cfg, db, tg, sched)

	log.Info("Starting bot...", "mode", cfg.Relay.Mode)
	runErr := app.Run(ctx)
	log.Info("Bot run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
