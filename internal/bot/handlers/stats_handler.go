package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/nkoval/relaybot/internal/database"
)

// NewStatsHandler returns a handler for the /stats command: relay
// activity counts over the last day and week, plus the busiest users.
func NewStatsHandler(deps HandlerDeps) bot.HandlerFunc {
	return statsHandler{deps}.Handle
}

type statsHandler struct {
	deps HandlerDeps
}

func (h statsHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "stats")
	if update.Message == nil {
		return
	}
	msg := update.Message

	dayCounts, _, err := h.deps.Service.Stats(ctx, 24*time.Hour)
	if err != nil {
		log.ErrorContext(ctx, "Failed to compute stats", "error", err)
		reply(ctx, b, log, msg, "Failed to compute stats.")
		return
	}
	weekCounts, topUsers, err := h.deps.Service.Stats(ctx, 7*24*time.Hour)
	if err != nil {
		log.ErrorContext(ctx, "Failed to compute stats", "error", err)
		reply(ctx, b, log, msg, "Failed to compute stats.")
		return
	}
	monthCounts, _, err := h.deps.Service.Stats(ctx, 30*24*time.Hour)
	if err != nil {
		log.ErrorContext(ctx, "Failed to compute stats", "error", err)
		reply(ctx, b, log, msg, "Failed to compute stats.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Last 24 hours:\n")
	writeStatCounts(&sb, dayCounts)
	sb.WriteString("\nLast 7 days:\n")
	writeStatCounts(&sb, weekCounts)
	sb.WriteString("\nLast 30 days:\n")
	writeStatCounts(&sb, monthCounts)

	if len(topUsers) > 0 {
		sb.WriteString("\nMost active users (7d):\n")
		for _, u := range topUsers {
			fmt.Fprintf(&sb, "• %d — %d events\n", u.UserID, u.Count)
		}
	}
	reply(ctx, b, log, msg, sb.String())
}

func writeStatCounts(sb *strings.Builder, counts []database.StatCount) {
	if len(counts) == 0 {
		sb.WriteString("• no activity\n")
		return
	}
	for _, c := range counts {
		fmt.Fprintf(sb, "• %s/%s: %d\n", c.EventType, c.Outcome, c.Count)
	}
}
