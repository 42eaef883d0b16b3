package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/nkoval/relaybot/internal/database"
	"github.com/nkoval/relaybot/internal/relay"
)

const ruleUsage = `Usage:
/rule list
/rule add <exact|contains|prefix|regex> <priority> <trigger> | <reply>
/rule on <id>
/rule off <id>
/rule del <id>
/rule test <text>`

// NewRuleHandler returns a handler for the /rule command and its
// subcommands for managing auto-reply rules.
func NewRuleHandler(deps HandlerDeps) bot.HandlerFunc {
	return ruleHandler{deps}.Handle
}

type ruleHandler struct {
	deps HandlerDeps
}

func (h ruleHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "rule")
	if update.Message == nil || update.Message.From == nil {
		return
	}
	msg := update.Message
	args := commandArgs(msg.Text)

	if len(args) == 0 {
		reply(ctx, b, log, msg, ruleUsage)
		return
	}

	sub := strings.ToLower(args[0])
	tail := commandTail(commandTail(msg.Text))

	switch sub {
	case "list":
		h.list(ctx, b, msg)
	case "add":
		h.add(ctx, b, msg, tail)
	case "on", "off":
		h.toggle(ctx, b, msg, args[1:], sub == "on")
	case "del":
		h.remove(ctx, b, msg, args[1:])
	case "test":
		h.test(ctx, b, msg, tail)
	default:
		reply(ctx, b, log, msg, ruleUsage)
	}
}

func (h ruleHandler) list(ctx context.Context, b *bot.Bot, msg *models.Message) {
	log := h.deps.Logger.With("handler", "rule")

	rules, err := h.deps.Store.Rules(ctx, 50)
	if err != nil {
		log.ErrorContext(ctx, "Failed to list rules", "error", err)
		reply(ctx, b, log, msg, "Failed to list rules.")
		return
	}
	if len(rules) == 0 {
		reply(ctx, b, log, msg, "No auto-reply rules.")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Auto-reply rules (%d):\n", len(rules))
	for _, r := range rules {
		state := "on"
		if !r.IsEnabled {
			state = "off"
		}
		fmt.Fprintf(&sb, "#%d [%s, p%d, %s] %q → %q\n",
			r.ID, r.TriggerType, r.Priority, state, r.TriggerText, r.ReplyText)
	}
	reply(ctx, b, log, msg, sb.String())
}

func (h ruleHandler) add(ctx context.Context, b *bot.Bot, msg *models.Message, tail string) {
	log := h.deps.Logger.With("handler", "rule")

	left, replyText, found := strings.Cut(tail, "|")
	replyText = strings.TrimSpace(replyText)
	fields := strings.Fields(left)
	if len(fields) < 3 || !found || replyText == "" {
		reply(ctx, b, log, msg, "Separate the trigger and the reply with |, for example:\n/rule add exact 10 hello | Hi! An operator will answer shortly.")
		return
	}

	triggerType := strings.ToLower(fields[0])
	if !relay.ValidTriggerType(triggerType) {
		reply(ctx, b, log, msg, "Trigger type must be one of: exact, contains, prefix, regex.")
		return
	}

	priority, err := strconv.Atoi(fields[1])
	if err != nil {
		reply(ctx, b, log, msg, "Priority must be a number; lower fires first.")
		return
	}

	trigger := strings.Join(fields[2:], " ")

	rule := &database.AutoReplyRule{
		TriggerType:      triggerType,
		TriggerText:      trigger,
		ReplyText:        replyText,
		Priority:         priority,
		IsEnabled:        true,
		CreatedByAdminID: msg.From.ID,
	}
	if err := h.deps.Store.InsertRule(ctx, rule); err != nil {
		log.ErrorContext(ctx, "Failed to insert rule", "error", err)
		reply(ctx, b, log, msg, "Failed to save the rule.")
		return
	}
	reply(ctx, b, log, msg, fmt.Sprintf("Rule #%d added.", rule.ID))
}

func (h ruleHandler) toggle(ctx context.Context, b *bot.Bot, msg *models.Message, args []string, enabled bool) {
	log := h.deps.Logger.With("handler", "rule")

	ruleID, ok := parseRuleID(args)
	if !ok {
		reply(ctx, b, log, msg, ruleUsage)
		return
	}

	found, err := h.deps.Store.SetRuleEnabled(ctx, ruleID, enabled)
	if err != nil {
		log.ErrorContext(ctx, "Failed to toggle rule", "rule_id", ruleID, "error", err)
		reply(ctx, b, log, msg, "Failed to update the rule.")
		return
	}
	if !found {
		reply(ctx, b, log, msg, fmt.Sprintf("Rule #%d does not exist.", ruleID))
		return
	}
	state := "enabled"
	if !enabled {
		state = "disabled"
	}
	reply(ctx, b, log, msg, fmt.Sprintf("Rule #%d %s.", ruleID, state))
}

func (h ruleHandler) remove(ctx context.Context, b *bot.Bot, msg *models.Message, args []string) {
	log := h.deps.Logger.With("handler", "rule")

	ruleID, ok := parseRuleID(args)
	if !ok {
		reply(ctx, b, log, msg, ruleUsage)
		return
	}

	found, err := h.deps.Store.DeleteRule(ctx, ruleID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to delete rule", "rule_id", ruleID, "error", err)
		reply(ctx, b, log, msg, "Failed to delete the rule.")
		return
	}
	if !found {
		reply(ctx, b, log, msg, fmt.Sprintf("Rule #%d does not exist.", ruleID))
		return
	}
	reply(ctx, b, log, msg, fmt.Sprintf("Rule #%d deleted.", ruleID))
}

// test runs a sample text through the enabled rules and reports the
// first match, exactly as an incoming user message would be handled.
func (h ruleHandler) test(ctx context.Context, b *bot.Bot, msg *models.Message, tail string) {
	log := h.deps.Logger.With("handler", "rule")

	if tail == "" {
		reply(ctx, b, log, msg, "Usage: /rule test <text>")
		return
	}

	rules, err := h.deps.Store.EnabledRules(ctx)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load rules", "error", err)
		reply(ctx, b, log, msg, "Failed to load rules.")
		return
	}
	for i := range rules {
		if relay.Matches(&rules[i], tail) {
			reply(ctx, b, log, msg, fmt.Sprintf("Matched rule #%d, would reply:\n%s", rules[i].ID, rules[i].ReplyText))
			return
		}
	}
	reply(ctx, b, log, msg, "No rule matches; the message would be relayed.")
}

func parseRuleID(args []string) (int64, bool) {
	if len(args) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
