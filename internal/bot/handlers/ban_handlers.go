package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/nkoval/relaybot/internal/relay"
)

// banArgs is the parsed form of "/ban <id> [expiry] [reason | note]".
type banArgs struct {
	UserID    int64
	ExpiresAt *time.Time
	Reason    string
	Note      string
}

// parseBanArgs parses the /ban argument list. The expiry token is
// optional; a second token that doesn't parse as an expiry is taken as
// the start of the reason. Reason and note split on "|".
func parseBanArgs(tail string, now time.Time) (banArgs, error) {
	var args banArgs

	fields := strings.Fields(tail)
	if len(fields) == 0 {
		return args, fmt.Errorf("missing user id")
	}

	userID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || userID <= 0 {
		return args, fmt.Errorf("invalid user id %q", fields[0])
	}
	args.UserID = userID

	rest := fields[1:]
	if len(rest) > 0 {
		if expiry, err := relay.ParseExpiry(rest[0], now); err == nil {
			args.ExpiresAt = &expiry
			rest = rest[1:]
		}
	}

	freeText := strings.Join(rest, " ")
	if idx := strings.Index(freeText, "|"); idx != -1 {
		args.Reason = strings.TrimSpace(freeText[:idx])
		args.Note = strings.TrimSpace(freeText[idx+1:])
	} else {
		args.Reason = strings.TrimSpace(freeText)
	}
	return args, nil
}

// NewBanHandler returns a handler for the /ban command. The target comes
// from the first argument, or from the replied-to relayed message.
func NewBanHandler(deps HandlerDeps) bot.HandlerFunc {
	return banHandler{deps}.Handle
}

type banHandler struct {
	deps HandlerDeps
}

func (h banHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "ban")
	if update.Message == nil || update.Message.From == nil {
		return
	}
	msg := update.Message
	tail := commandTail(msg.Text)

	// Allow "/ban [expiry] [reason]" as a reply to a relayed message.
	if msg.ReplyToMessage != nil && !startsWithUserID(tail) {
		m, err := h.deps.Store.LatestMappingByAdminMessage(ctx, msg.Chat.ID, msg.ReplyToMessage.ID)
		if err == nil && m != nil {
			tail = strings.TrimSpace(fmt.Sprintf("%d %s", m.UserChatID, tail))
		}
	}

	args, err := parseBanArgs(tail, time.Now())
	if err != nil {
		reply(ctx, b, log, msg, "Usage: /ban <user ID> [expiry like 2h, 3d, 1w or 2026-12-31] [reason | note]\nOr reply to a relayed message with /ban [expiry] [reason].")
		return
	}

	already, err := h.deps.Service.Ledger().Ban(ctx, args.UserID, msg.From.ID, args.Reason, args.Note, args.ExpiresAt)
	if err != nil {
		log.ErrorContext(ctx, "Ban failed", "user_id", args.UserID, "error", err)
		reply(ctx, b, log, msg, "Failed to save the ban.")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "User %d banned", args.UserID)
	if args.ExpiresAt != nil {
		fmt.Fprintf(&sb, " until %s", args.ExpiresAt.UTC().Format("2006-01-02 15:04 MST"))
	} else {
		sb.WriteString(" permanently")
	}
	if already {
		sb.WriteString(" (updated an existing ban)")
	}
	sb.WriteString(".")
	reply(ctx, b, log, msg, sb.String())
}

func startsWithUserID(tail string) bool {
	fields := strings.Fields(tail)
	if len(fields) == 0 {
		return false
	}
	id, err := strconv.ParseInt(fields[0], 10, 64)
	return err == nil && id > 0
}

// NewUnbanHandler returns a handler for the /unban command.
func NewUnbanHandler(deps HandlerDeps) bot.HandlerFunc {
	return unbanHandler{deps}.Handle
}

type unbanHandler struct {
	deps HandlerDeps
}

func (h unbanHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "unban")
	if update.Message == nil {
		return
	}
	msg := update.Message
	args := commandArgs(msg.Text)

	if len(args) == 0 {
		reply(ctx, b, log, msg, "Usage: /unban <user ID>")
		return
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || userID <= 0 {
		reply(ctx, b, log, msg, "Usage: /unban <user ID>")
		return
	}

	existed, err := h.deps.Service.Ledger().Unban(ctx, userID)
	if err != nil {
		log.ErrorContext(ctx, "Unban failed", "user_id", userID, "error", err)
		reply(ctx, b, log, msg, "Failed to lift the ban.")
		return
	}
	if !existed {
		reply(ctx, b, log, msg, fmt.Sprintf("User %d is not banned.", userID))
		return
	}
	reply(ctx, b, log, msg, fmt.Sprintf("Ban lifted for user %d.", userID))
}

// NewBanListHandler returns a handler for the /banlist command.
func NewBanListHandler(deps HandlerDeps) bot.HandlerFunc {
	return banListHandler{deps}.Handle
}

type banListHandler struct {
	deps HandlerDeps
}

func (h banListHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "banlist")
	if update.Message == nil {
		return
	}
	msg := update.Message

	bans, err := h.deps.Service.Ledger().ActiveBans(ctx, 20)
	if err != nil {
		log.ErrorContext(ctx, "Failed to list bans", "error", err)
		reply(ctx, b, log, msg, "Failed to list bans.")
		return
	}
	if len(bans) == 0 {
		reply(ctx, b, log, msg, "No active bans.")
		return
	}

	now := time.Now()
	var sb strings.Builder
	fmt.Fprintf(&sb, "Active bans (%d):\n", len(bans))
	for _, ban := range bans {
		fmt.Fprintf(&sb, "• %d — %s", ban.UserID, relay.RemainingText(&ban, now))
		if ban.Reason.Valid && ban.Reason.String != "" {
			fmt.Fprintf(&sb, " — %s", ban.Reason.String)
		}
		sb.WriteString("\n")
	}
	reply(ctx, b, log, msg, sb.String())
}

// NewBanInfoHandler returns a handler for the /baninfo command.
func NewBanInfoHandler(deps HandlerDeps) bot.HandlerFunc {
	return banInfoHandler{deps}.Handle
}

type banInfoHandler struct {
	deps HandlerDeps
}

func (h banInfoHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "baninfo")
	if update.Message == nil {
		return
	}
	msg := update.Message
	args := commandArgs(msg.Text)

	if len(args) == 0 {
		reply(ctx, b, log, msg, "Usage: /baninfo <user ID>")
		return
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || userID <= 0 {
		reply(ctx, b, log, msg, "Usage: /baninfo <user ID>")
		return
	}

	ban, err := h.deps.Service.Ledger().ActiveBan(ctx, userID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to read ban", "user_id", userID, "error", err)
		reply(ctx, b, log, msg, "Failed to read ban info.")
		return
	}
	if ban == nil {
		reply(ctx, b, log, msg, fmt.Sprintf("User %d is not banned.", userID))
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Ban for user %d:\n", ban.UserID)
	fmt.Fprintf(&sb, "• remaining: %s\n", relay.RemainingText(ban, time.Now()))
	fmt.Fprintf(&sb, "• imposed by: %d at %s\n", ban.OperatorAdminID, ban.UpdatedAt)
	if ban.Reason.Valid && ban.Reason.String != "" {
		fmt.Fprintf(&sb, "• reason: %s\n", ban.Reason.String)
	}
	if ban.Note.Valid && ban.Note.String != "" {
		fmt.Fprintf(&sb, "• note: %s\n", ban.Note.String)
	}
	reply(ctx, b, log, msg, sb.String())
}
