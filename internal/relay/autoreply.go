package relay

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/nkoval/relaybot/internal/database"
)

// Auto-reply trigger types.
const (
	TriggerExact    = "exact"
	TriggerContains = "contains"
	TriggerPrefix   = "prefix"
	TriggerRegex    = "regex"
)

// ValidTriggerType reports whether s names a known trigger type.
func ValidTriggerType(s string) bool {
	switch s {
	case TriggerExact, TriggerContains, TriggerPrefix, TriggerRegex:
		return true
	}
	return false
}

// Matcher evaluates auto-reply rules against inbound text. It is a pure
// query over current rule state; matching has no side effects.
type Matcher struct {
	store  database.Store
	logger *slog.Logger
}

// NewMatcher creates an auto-reply matcher over the store.
func NewMatcher(store database.Store, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Matcher{
		store:  store,
		logger: logger.With("component", "auto_reply"),
	}
}

// Match returns the first enabled rule that matches text, in
// (priority, id) order, or nil when none match.
func (m *Matcher) Match(ctx context.Context, text string) (*database.AutoReplyRule, error) {
	rules, err := m.store.EnabledRules(ctx)
	if err != nil {
		return nil, err
	}

	for i := range rules {
		if Matches(&rules[i], text) {
			m.logger.DebugContext(ctx, "Auto-reply rule matched",
				"rule_id", rules[i].ID, "trigger_type", rules[i].TriggerType)
			return &rules[i], nil
		}
	}
	return nil, nil
}

// Matches reports whether a single rule's trigger matches text. A regex
// trigger that fails to compile never matches.
func Matches(rule *database.AutoReplyRule, text string) bool {
	trimmed := strings.TrimSpace(text)

	switch rule.TriggerType {
	case TriggerExact:
		return trimmed == rule.TriggerText
	case TriggerContains:
		return strings.Contains(text, rule.TriggerText)
	case TriggerPrefix:
		return strings.HasPrefix(trimmed, rule.TriggerText)
	case TriggerRegex:
		re, err := regexp.Compile(rule.TriggerText)
		if err != nil {
			return false
		}
		return re.MatchString(text)
	}
	return false
}
