package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/nkoval/relaybot/internal/database"
)

// newTestStore opens a fresh in-memory SQLite database with migrations
// applied. Each test gets its own database.
func newTestStore(t *testing.T) database.Store {
	t.Helper()

	db, err := database.NewDB(":memory:")
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	return database.NewStore(db, nil)
}

func TestUpsertUser_PreservesFirstSeen(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertUser(ctx, 1001, "alice", "Alice A"); err != nil {
		t.Fatalf("UpsertUser() error = %v", err)
	}

	first, err := store.User(ctx, 1001)
	if err != nil {
		t.Fatalf("User() error = %v", err)
	}
	if first == nil {
		t.Fatal("User() = nil, want record")
	}

	if err := store.UpsertUser(ctx, 1001, "alice_new", "Alice B"); err != nil {
		t.Fatalf("UpsertUser() second call error = %v", err)
	}

	second, err := store.User(ctx, 1001)
	if err != nil {
		t.Fatalf("User() error = %v", err)
	}
	if second.FirstSeenAt != first.FirstSeenAt {
		t.Errorf("first_seen_at changed on refresh: %q -> %q", first.FirstSeenAt, second.FirstSeenAt)
	}
	if second.FullName != "Alice B" {
		t.Errorf("full_name = %q, want %q", second.FullName, "Alice B")
	}
	if !second.Username.Valid || second.Username.String != "alice_new" {
		t.Errorf("username = %+v, want alice_new", second.Username)
	}
}

func TestUser_NotFound(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	user, err := store.User(context.Background(), 9999)
	if err != nil {
		t.Fatalf("User() error = %v", err)
	}
	if user != nil {
		t.Errorf("User() = %+v, want nil for unknown id", user)
	}
}

func TestRecentUsers_ExcludesGivenIDs(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		if err := store.UpsertUser(ctx, id, "", "User"); err != nil {
			t.Fatalf("UpsertUser(%d) error = %v", id, err)
		}
	}

	users, err := store.RecentUsers(ctx, 10, []int64{2})
	if err != nil {
		t.Fatalf("RecentUsers() error = %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("RecentUsers() returned %d users, want 2", len(users))
	}
	for _, u := range users {
		if u.UserID == 2 {
			t.Errorf("RecentUsers() included excluded id %d", u.UserID)
		}
	}
}

func TestMappings_LatestWinsAcrossDirections(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	older := &database.MessageMapping{
		UserChatID: 100, AdminChatID: 200,
		UserMessageID: 10, AdminMessageID: 50,
		Direction: database.DirectionUserToAdmin,
	}
	if err := store.InsertMapping(ctx, older); err != nil {
		t.Fatalf("InsertMapping() error = %v", err)
	}

	newer := &database.MessageMapping{
		UserChatID: 100, AdminChatID: 200,
		UserMessageID: 11, AdminMessageID: 50,
		Direction: database.DirectionAdminToUser,
	}
	if err := store.InsertMapping(ctx, newer); err != nil {
		t.Fatalf("InsertMapping() error = %v", err)
	}

	got, err := store.LatestMappingByAdminMessage(ctx, 200, 50)
	if err != nil {
		t.Fatalf("LatestMappingByAdminMessage() error = %v", err)
	}
	if got == nil {
		t.Fatal("LatestMappingByAdminMessage() = nil, want mapping")
	}
	if got.Direction != database.DirectionAdminToUser || got.UserMessageID != 11 {
		t.Errorf("latest mapping = %+v, want the newer admin_to_user row", got)
	}

	missing, err := store.LatestMappingByAdminMessage(ctx, 200, 999)
	if err != nil {
		t.Fatalf("LatestMappingByAdminMessage() error = %v", err)
	}
	if missing != nil {
		t.Errorf("LatestMappingByAdminMessage() = %+v, want nil for unknown message", missing)
	}
}

func TestMappings_FilterByDirection(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	rows := []*database.MessageMapping{
		{UserChatID: 100, AdminChatID: 200, UserMessageID: 1, AdminMessageID: 70, Direction: database.DirectionUserToAdmin},
		{UserChatID: 101, AdminChatID: 200, UserMessageID: 2, AdminMessageID: 70, Direction: database.DirectionBroadcast},
		{UserChatID: 102, AdminChatID: 200, UserMessageID: 3, AdminMessageID: 70, Direction: database.DirectionBroadcast},
	}
	for _, m := range rows {
		if err := store.InsertMapping(ctx, m); err != nil {
			t.Fatalf("InsertMapping() error = %v", err)
		}
	}

	broadcasts, err := store.MappingsByAdminMessage(ctx, 200, 70, database.DirectionBroadcast)
	if err != nil {
		t.Fatalf("MappingsByAdminMessage() error = %v", err)
	}
	if len(broadcasts) != 2 {
		t.Errorf("broadcast mappings = %d, want 2", len(broadcasts))
	}

	all, err := store.MappingsByAdminMessage(ctx, 200, 70)
	if err != nil {
		t.Fatalf("MappingsByAdminMessage() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("all mappings = %d, want 3", len(all))
	}

	byUser, err := store.MappingsByUserMessage(ctx, 100, 1, database.DirectionUserToAdmin)
	if err != nil {
		t.Fatalf("MappingsByUserMessage() error = %v", err)
	}
	if len(byUser) != 1 {
		t.Errorf("user mappings = %d, want 1", len(byUser))
	}
}

func TestDeleteMappingsByAdminMessage(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		m := &database.MessageMapping{
			UserChatID: int64(100 + i), AdminChatID: 200,
			UserMessageID: i, AdminMessageID: 80,
			Direction: database.DirectionBroadcast,
		}
		if err := store.InsertMapping(ctx, m); err != nil {
			t.Fatalf("InsertMapping() error = %v", err)
		}
	}

	count, err := store.DeleteMappingsByAdminMessage(ctx, 200, 80)
	if err != nil {
		t.Fatalf("DeleteMappingsByAdminMessage() error = %v", err)
	}
	if count != 3 {
		t.Errorf("deleted %d mappings, want 3", count)
	}

	count, err = store.DeleteMappingsByAdminMessage(ctx, 200, 80)
	if err != nil {
		t.Fatalf("DeleteMappingsByAdminMessage() second call error = %v", err)
	}
	if count != 0 {
		t.Errorf("second delete removed %d mappings, want 0", count)
	}
}

func TestSessionTarget_Lifecycle(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	target, err := store.SessionTarget(ctx, 300)
	if err != nil {
		t.Fatalf("SessionTarget() error = %v", err)
	}
	if target != 0 {
		t.Errorf("SessionTarget() = %d, want 0 before any session", target)
	}

	if err := store.SetSessionTarget(ctx, 300, 1001); err != nil {
		t.Fatalf("SetSessionTarget() error = %v", err)
	}
	target, err = store.SessionTarget(ctx, 300)
	if err != nil {
		t.Fatalf("SessionTarget() error = %v", err)
	}
	if target != 1001 {
		t.Errorf("SessionTarget() = %d, want 1001", target)
	}

	// Clearing writes NULL, not a deleted row.
	if err := store.SetSessionTarget(ctx, 300, 0); err != nil {
		t.Fatalf("SetSessionTarget(clear) error = %v", err)
	}
	target, err = store.SessionTarget(ctx, 300)
	if err != nil {
		t.Fatalf("SessionTarget() error = %v", err)
	}
	if target != 0 {
		t.Errorf("SessionTarget() after clear = %d, want 0", target)
	}
}

func TestClearSessionsTargeting(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SetSessionTarget(ctx, 300, 1001); err != nil {
		t.Fatalf("SetSessionTarget() error = %v", err)
	}
	if err := store.SetSessionTarget(ctx, 301, 1001); err != nil {
		t.Fatalf("SetSessionTarget() error = %v", err)
	}
	if err := store.SetSessionTarget(ctx, 302, 2002); err != nil {
		t.Fatalf("SetSessionTarget() error = %v", err)
	}

	count, err := store.ClearSessionsTargeting(ctx, 1001)
	if err != nil {
		t.Fatalf("ClearSessionsTargeting() error = %v", err)
	}
	if count != 2 {
		t.Errorf("cleared %d sessions, want 2", count)
	}

	remaining, err := store.SessionTarget(ctx, 302)
	if err != nil {
		t.Fatalf("SessionTarget() error = %v", err)
	}
	if remaining != 2002 {
		t.Errorf("unrelated session changed: got %d, want 2002", remaining)
	}
}

func TestUserTopic_Lifecycle(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	topic, err := store.UserTopic(ctx, 1001)
	if err != nil {
		t.Fatalf("UserTopic() error = %v", err)
	}
	if topic != nil {
		t.Errorf("UserTopic() = %+v, want nil before binding", topic)
	}

	binding := &database.UserTopic{
		UserID:           1001,
		AdminGroupChatID: -1001234567890,
		TopicThreadID:    42,
		TopicTitle:       "Alice (1001)",
	}
	if err := store.UpsertUserTopic(ctx, binding); err != nil {
		t.Fatalf("UpsertUserTopic() error = %v", err)
	}

	topic, err = store.UserTopic(ctx, 1001)
	if err != nil {
		t.Fatalf("UserTopic() error = %v", err)
	}
	if topic == nil || topic.TopicThreadID != 42 {
		t.Fatalf("UserTopic() = %+v, want thread 42", topic)
	}

	userID, err := store.UserIDByTopic(ctx, -1001234567890, 42)
	if err != nil {
		t.Fatalf("UserIDByTopic() error = %v", err)
	}
	if userID != 1001 {
		t.Errorf("UserIDByTopic() = %d, want 1001", userID)
	}

	userID, err = store.UserIDByTopic(ctx, -1001234567890, 999)
	if err != nil {
		t.Fatalf("UserIDByTopic() error = %v", err)
	}
	if userID != 0 {
		t.Errorf("UserIDByTopic() for unbound thread = %d, want 0", userID)
	}

	if err := store.UpdateUserTopicTitle(ctx, 1001, "Alice Renamed (1001)"); err != nil {
		t.Fatalf("UpdateUserTopicTitle() error = %v", err)
	}
	topic, err = store.UserTopic(ctx, 1001)
	if err != nil {
		t.Fatalf("UserTopic() error = %v", err)
	}
	if topic.TopicTitle != "Alice Renamed (1001)" {
		t.Errorf("topic_title = %q, want renamed title", topic.TopicTitle)
	}
}

func TestUpsertBan_RefreshPreservesCreatedAt(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	ban := &database.BanRecord{
		UserID:          1001,
		OperatorAdminID: 42,
		Reason:          database.NullString("spam"),
		ExpiresAt:       database.NullString(database.TimeText(time.Now().Add(24 * time.Hour))),
	}
	if err := store.UpsertBan(ctx, ban); err != nil {
		t.Fatalf("UpsertBan() error = %v", err)
	}

	first, err := store.BanRow(ctx, 1001)
	if err != nil {
		t.Fatalf("BanRow() error = %v", err)
	}
	if first == nil {
		t.Fatal("BanRow() = nil, want record")
	}

	refresh := &database.BanRecord{
		UserID:          1001,
		OperatorAdminID: 43,
		Reason:          database.NullString("spam again"),
	}
	if err := store.UpsertBan(ctx, refresh); err != nil {
		t.Fatalf("UpsertBan() refresh error = %v", err)
	}

	second, err := store.BanRow(ctx, 1001)
	if err != nil {
		t.Fatalf("BanRow() error = %v", err)
	}
	if second.CreatedAt != first.CreatedAt {
		t.Errorf("created_at changed on refresh: %q -> %q", first.CreatedAt, second.CreatedAt)
	}
	if second.OperatorAdminID != 43 {
		t.Errorf("operator_admin_id = %d, want 43", second.OperatorAdminID)
	}
	if second.ExpiresAt.Valid {
		t.Errorf("expires_at = %+v, want NULL after permanent refresh", second.ExpiresAt)
	}
}

func TestDeleteBan(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	existed, err := store.DeleteBan(ctx, 1001)
	if err != nil {
		t.Fatalf("DeleteBan() error = %v", err)
	}
	if existed {
		t.Error("DeleteBan() = true for unknown user, want false")
	}

	if err := store.UpsertBan(ctx, &database.BanRecord{UserID: 1001, OperatorAdminID: 42}); err != nil {
		t.Fatalf("UpsertBan() error = %v", err)
	}

	existed, err = store.DeleteBan(ctx, 1001)
	if err != nil {
		t.Fatalf("DeleteBan() error = %v", err)
	}
	if !existed {
		t.Error("DeleteBan() = false, want true")
	}
}

func TestDeleteExpiredBans(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	bans := []*database.BanRecord{
		{UserID: 1, OperatorAdminID: 42, ExpiresAt: database.NullString(database.TimeText(now.Add(-time.Hour)))},
		{UserID: 2, OperatorAdminID: 42, ExpiresAt: database.NullString(database.TimeText(now.Add(time.Hour)))},
		{UserID: 3, OperatorAdminID: 42}, // permanent
	}
	for _, b := range bans {
		if err := store.UpsertBan(ctx, b); err != nil {
			t.Fatalf("UpsertBan(%d) error = %v", b.UserID, err)
		}
	}

	count, err := store.DeleteExpiredBans(ctx, database.TimeText(now))
	if err != nil {
		t.Fatalf("DeleteExpiredBans() error = %v", err)
	}
	if count != 1 {
		t.Errorf("swept %d bans, want 1", count)
	}

	for _, tc := range []struct {
		userID int64
		want   bool
	}{
		{1, false},
		{2, true},
		{3, true},
	} {
		row, err := store.BanRow(ctx, tc.userID)
		if err != nil {
			t.Fatalf("BanRow(%d) error = %v", tc.userID, err)
		}
		if (row != nil) != tc.want {
			t.Errorf("BanRow(%d) present = %v, want %v", tc.userID, row != nil, tc.want)
		}
	}
}

func TestRules_OrderAndToggle(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	rules := []*database.AutoReplyRule{
		{TriggerType: "contains", TriggerText: "price", ReplyText: "See /pricing", Priority: 100, IsEnabled: true, CreatedByAdminID: 42},
		{TriggerType: "exact", TriggerText: "hello", ReplyText: "Hi there", Priority: 10, IsEnabled: true, CreatedByAdminID: 42},
		{TriggerType: "prefix", TriggerText: "help", ReplyText: "Use /start", Priority: 10, IsEnabled: true, CreatedByAdminID: 42},
	}
	for _, r := range rules {
		if err := store.InsertRule(ctx, r); err != nil {
			t.Fatalf("InsertRule() error = %v", err)
		}
	}

	enabled, err := store.EnabledRules(ctx)
	if err != nil {
		t.Fatalf("EnabledRules() error = %v", err)
	}
	if len(enabled) != 3 {
		t.Fatalf("EnabledRules() returned %d rules, want 3", len(enabled))
	}
	// Same priority resolves by insertion order (id ascending).
	if enabled[0].TriggerText != "hello" || enabled[1].TriggerText != "help" || enabled[2].TriggerText != "price" {
		t.Errorf("rule order = %q, %q, %q; want hello, help, price",
			enabled[0].TriggerText, enabled[1].TriggerText, enabled[2].TriggerText)
	}

	existed, err := store.SetRuleEnabled(ctx, enabled[0].ID, false)
	if err != nil {
		t.Fatalf("SetRuleEnabled() error = %v", err)
	}
	if !existed {
		t.Error("SetRuleEnabled() = false, want true")
	}

	enabled, err = store.EnabledRules(ctx)
	if err != nil {
		t.Fatalf("EnabledRules() error = %v", err)
	}
	if len(enabled) != 2 {
		t.Errorf("EnabledRules() after disable returned %d rules, want 2", len(enabled))
	}

	existed, err = store.DeleteRule(ctx, 9999)
	if err != nil {
		t.Fatalf("DeleteRule() error = %v", err)
	}
	if existed {
		t.Error("DeleteRule() = true for unknown rule, want false")
	}

	all, err := store.Rules(ctx, 50)
	if err != nil {
		t.Fatalf("Rules() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Rules() returned %d rules, want 3", len(all))
	}
}

func TestAuditEvents_StatsAndTopUsers(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	events := []*database.AuditEvent{
		{EventType: "user_msg_in", UserID: database.NullInt64(1), Outcome: "ok"},
		{EventType: "user_msg_in", UserID: database.NullInt64(1), Outcome: "ok"},
		{EventType: "user_msg_in", UserID: database.NullInt64(2), Outcome: "ok"},
		{EventType: "forward_user_to_admin", UserID: database.NullInt64(1), Outcome: "error", ErrorClass: database.NullString("transient")},
		// Outside the window.
		{EventType: "user_msg_in", UserID: database.NullInt64(3), Outcome: "ok", CreatedAt: database.TimeText(now.Add(-48 * time.Hour))},
	}
	for _, ev := range events {
		if err := store.RecordAuditEvent(ctx, ev); err != nil {
			t.Fatalf("RecordAuditEvent() error = %v", err)
		}
	}

	since := database.TimeText(now.Add(-24 * time.Hour))

	counts, err := store.StatsCounts(ctx, since)
	if err != nil {
		t.Fatalf("StatsCounts() error = %v", err)
	}
	got := make(map[string]int64)
	for _, c := range counts {
		got[c.EventType+"/"+c.Outcome] = c.Count
	}
	if got["user_msg_in/ok"] != 3 {
		t.Errorf("user_msg_in/ok = %d, want 3", got["user_msg_in/ok"])
	}
	if got["forward_user_to_admin/error"] != 1 {
		t.Errorf("forward_user_to_admin/error = %d, want 1", got["forward_user_to_admin/error"])
	}

	top, err := store.TopUsersByEvents(ctx, since, 5)
	if err != nil {
		t.Fatalf("TopUsersByEvents() error = %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("TopUsersByEvents() returned %d users, want 2", len(top))
	}
	if top[0].UserID != 1 || top[0].Count != 3 {
		t.Errorf("top user = %+v, want user 1 with 3 events", top[0])
	}
}
