package relay_test

import (
	"context"
	"testing"

	"github.com/nkoval/relaybot/internal/database"
	"github.com/nkoval/relaybot/internal/relay"
)

func TestMatches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rule database.AutoReplyRule
		text string
		want bool
	}{
		{
			name: "exact match after trimming",
			rule: database.AutoReplyRule{TriggerType: relay.TriggerExact, TriggerText: "hello"},
			text: "  hello  ",
			want: true,
		},
		{
			name: "exact rejects superstring",
			rule: database.AutoReplyRule{TriggerType: relay.TriggerExact, TriggerText: "hello"},
			text: "hello there",
			want: false,
		},
		{
			name: "contains anywhere",
			rule: database.AutoReplyRule{TriggerType: relay.TriggerContains, TriggerText: "price"},
			text: "what is the price of this",
			want: true,
		},
		{
			name: "prefix match",
			rule: database.AutoReplyRule{TriggerType: relay.TriggerPrefix, TriggerText: "help"},
			text: "help me please",
			want: true,
		},
		{
			name: "prefix rejects mid-string",
			rule: database.AutoReplyRule{TriggerType: relay.TriggerPrefix, TriggerText: "help"},
			text: "I need help",
			want: false,
		},
		{
			name: "regex search anywhere",
			rule: database.AutoReplyRule{TriggerType: relay.TriggerRegex, TriggerText: `order #\d+`},
			text: "about order #123 please",
			want: true,
		},
		{
			name: "invalid regex never matches",
			rule: database.AutoReplyRule{TriggerType: relay.TriggerRegex, TriggerText: `([`},
			text: "anything",
			want: false,
		},
		{
			name: "unknown trigger type never matches",
			rule: database.AutoReplyRule{TriggerType: "glob", TriggerText: "*"},
			text: "anything",
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := relay.Matches(&tt.rule, tt.text); got != tt.want {
				t.Errorf("Matches(%q, %q) = %v, want %v", tt.rule.TriggerType, tt.text, got, tt.want)
			}
		})
	}
}

func TestMatcher_PriorityOrder(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	matcher := relay.NewMatcher(store, nil)
	ctx := context.Background()

	rules := []*database.AutoReplyRule{
		{TriggerType: relay.TriggerContains, TriggerText: "hello", ReplyText: "low priority", Priority: 20, IsEnabled: true, CreatedByAdminID: 42},
		{TriggerType: relay.TriggerContains, TriggerText: "hello", ReplyText: "high priority", Priority: 10, IsEnabled: true, CreatedByAdminID: 42},
		{TriggerType: relay.TriggerContains, TriggerText: "hello", ReplyText: "disabled", Priority: 1, IsEnabled: false, CreatedByAdminID: 42},
	}
	for _, r := range rules {
		if err := store.InsertRule(ctx, r); err != nil {
			t.Fatalf("InsertRule() error = %v", err)
		}
	}
	rule, err := matcher.Match(ctx, "well hello there")
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if rule == nil {
		t.Fatal("Match() = nil, want a rule")
	}
	if rule.ReplyText != "high priority" {
		t.Errorf("Match() picked %q, want the priority-10 rule", rule.ReplyText)
	}

	rule, err = matcher.Match(ctx, "no trigger here")
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if rule != nil {
		t.Errorf("Match() = %+v, want nil for non-matching text", rule)
	}
}

func TestValidTriggerType(t *testing.T) {
	t.Parallel()

	for _, valid := range []string{"exact", "contains", "prefix", "regex"} {
		if !relay.ValidTriggerType(valid) {
			t.Errorf("ValidTriggerType(%q) = false, want true", valid)
		}
	}
	for _, invalid := range []string{"", "glob", "EXACT", "fuzzy"} {
		if relay.ValidTriggerType(invalid) {
			t.Errorf("ValidTriggerType(%q) = true, want false", invalid)
		}
	}
}
