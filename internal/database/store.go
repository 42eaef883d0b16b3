package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jmoiron/sqlx"
)

// Store defines the interface for database operations.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// UpsertUser creates or refreshes a user identity record.
	UpsertUser(ctx context.Context, userID int64, username, fullName string) error

	// User retrieves a user record by ID. Returns nil, nil if not found.
	User(ctx context.Context, userID int64) (*User, error)

	// RecentUsers retrieves the most recently active users, excluding the
	// given IDs (typically the admins themselves).
	RecentUsers(ctx context.Context, limit int, exclude []int64) ([]User, error)

	// AllUserIDs retrieves every known user ID, excluding the given IDs.
	AllUserIDs(ctx context.Context, exclude []int64) ([]int64, error)

	// InsertMapping records a new message correspondence.
	InsertMapping(ctx context.Context, m *MessageMapping) error

	// LatestMappingByAdminMessage retrieves the newest mapping for an
	// admin-side message, regardless of direction. Returns nil, nil if not found.
	LatestMappingByAdminMessage(ctx context.Context, adminChatID int64, adminMessageID int) (*MessageMapping, error)

	// MappingsByAdminMessage retrieves all mappings for an admin-side
	// message matching any of the given directions.
	MappingsByAdminMessage(ctx context.Context, adminChatID int64, adminMessageID int, directions ...Direction) ([]MessageMapping, error)

	// MappingsByUserMessage retrieves all mappings for a user-side message
	// in the given direction.
	MappingsByUserMessage(ctx context.Context, userChatID int64, userMessageID int, direction Direction) ([]MessageMapping, error)

	// DeleteMappingsByAdminMessage removes every mapping row for an
	// admin-side message and reports how many were removed.
	DeleteMappingsByAdminMessage(ctx context.Context, adminChatID int64, adminMessageID int) (int64, error)

	// SessionTarget retrieves the session target user for an admin chat.
	// Returns 0 when no session is set.
	SessionTarget(ctx context.Context, adminChatID int64) (int64, error)

	// SetSessionTarget sets the session target user for an admin chat.
	// A zero userID clears the session.
	SetSessionTarget(ctx context.Context, adminChatID, userID int64) error

	// ClearSessionsTargeting clears every admin session that points at the
	// given user and reports how many were cleared.
	ClearSessionsTargeting(ctx context.Context, userID int64) (int64, error)

	// UserTopic retrieves the topic binding for a user. Returns nil, nil if none.
	UserTopic(ctx context.Context, userID int64) (*UserTopic, error)

	// UpsertUserTopic creates or replaces a user's topic binding.
	UpsertUserTopic(ctx context.Context, t *UserTopic) error

	// UpdateUserTopicTitle updates the cached topic title for a user.
	UpdateUserTopicTitle(ctx context.Context, userID int64, title string) error

	// UserIDByTopic retrieves the user bound to a forum topic.
	// Returns 0 when the thread is not bound to any user.
	UserIDByTopic(ctx context.Context, groupChatID int64, threadID int) (int64, error)

	// UpsertBan creates a ban or refreshes an existing one in place,
	// preserving the original created_at.
	UpsertBan(ctx context.Context, b *BanRecord) error

	// DeleteBan removes a ban and reports whether a row existed.
	DeleteBan(ctx context.Context, userID int64) (bool, error)

	// BanRow retrieves the raw ban row for a user without applying expiry
	// semantics. Returns nil, nil if no row exists.
	BanRow(ctx context.Context, userID int64) (*BanRecord, error)

	// RecentBans retrieves ban rows ordered by most recently updated.
	RecentBans(ctx context.Context, limit int) ([]BanRecord, error)

	// DeleteExpiredBans removes every ban whose expiry is at or before the
	// given timestamp and reports how many were removed.
	DeleteExpiredBans(ctx context.Context, now string) (int64, error)

	// InsertRule adds a new auto-reply rule and fills in its ID.
	InsertRule(ctx context.Context, r *AutoReplyRule) error

	// Rules retrieves rules in evaluation order (priority, then ID).
	Rules(ctx context.Context, limit int) ([]AutoReplyRule, error)

	// EnabledRules retrieves only enabled rules in evaluation order.
	EnabledRules(ctx context.Context) ([]AutoReplyRule, error)

	// SetRuleEnabled toggles a rule and reports whether it existed.
	SetRuleEnabled(ctx context.Context, ruleID int64, enabled bool) (bool, error)

	// DeleteRule removes a rule and reports whether it existed.
	DeleteRule(ctx context.Context, ruleID int64) (bool, error)

	// RecordAuditEvent appends one audit log entry.
	RecordAuditEvent(ctx context.Context, ev *AuditEvent) error

	// StatsCounts aggregates audit events by (type, outcome) since the
	// given timestamp.
	StatsCounts(ctx context.Context, since string) ([]StatCount, error)

	// TopUsersByEvents retrieves the users with the most audit events
	// since the given timestamp.
	TopUsersByEvents(ctx context.Context, since string, limit int) ([]UserEventCount, error)
}

// sqlxStore provides an implementation of the Store interface using sqlx.
// The connection pool is capped at one connection, which serializes all
// SQLite access.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlxStore) UpsertUser(ctx context.Context, userID int64, username, fullName string) error {
	if userID == 0 {
		return fmt.Errorf("user_id cannot be zero")
	}

	now := NowText()
	query := `
        INSERT INTO users (user_id, username, full_name, first_seen_at, last_active_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(user_id) DO UPDATE SET
            username = excluded.username,
            full_name = excluded.full_name,
            last_active_at = excluded.last_active_at;
    `
	if _, err := s.db.ExecContext(ctx, query, userID, NullString(username), fullName, now, now); err != nil {
		s.logger.ErrorContext(ctx, "Error upserting user", "user_id", userID, "error", err)
		return fmt.Errorf("failed to upsert user %d: %w", userID, err)
	}
	return nil
}

func (s *sqlxStore) User(ctx context.Context, userID int64) (*User, error) {
	if userID == 0 {
		return nil, fmt.Errorf("user_id cannot be zero")
	}

	var user User
	query := `SELECT user_id, username, full_name, first_seen_at, last_active_at
	          FROM users WHERE user_id = ?`

	err := s.db.GetContext(ctx, &user, query, userID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting user", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to get user %d: %w", userID, err)
	}
	return &user, nil
}

func (s *sqlxStore) RecentUsers(ctx context.Context, limit int, exclude []int64) ([]User, error) {
	if limit <= 0 {
		limit = 10
	}

	var users []User
	if len(exclude) == 0 {
		query := `SELECT user_id, username, full_name, first_seen_at, last_active_at
		          FROM users ORDER BY last_active_at DESC, user_id DESC LIMIT ?`
		if err := s.db.SelectContext(ctx, &users, query, limit); err != nil {
			return nil, fmt.Errorf("failed to get recent users: %w", err)
		}
		return users, nil
	}

	query, args, err := sqlx.In(`
        SELECT user_id, username, full_name, first_seen_at, last_active_at
        FROM users WHERE user_id NOT IN (?)
        ORDER BY last_active_at DESC, user_id DESC LIMIT ?;
    `, exclude, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to build recent users query: %w", err)
	}

	if err := s.db.SelectContext(ctx, &users, s.db.Rebind(query), args...); err != nil {
		s.logger.ErrorContext(ctx, "Error getting recent users", "error", err)
		return nil, fmt.Errorf("failed to get recent users: %w", err)
	}
	return users, nil
}

func (s *sqlxStore) AllUserIDs(ctx context.Context, exclude []int64) ([]int64, error) {
	var ids []int64
	if len(exclude) == 0 {
		if err := s.db.SelectContext(ctx, &ids, `SELECT user_id FROM users ORDER BY user_id`); err != nil {
			return nil, fmt.Errorf("failed to get user ids: %w", err)
		}
		return ids, nil
	}

	query, args, err := sqlx.In(`SELECT user_id FROM users WHERE user_id NOT IN (?) ORDER BY user_id`, exclude)
	if err != nil {
		return nil, fmt.Errorf("failed to build user ids query: %w", err)
	}

	if err := s.db.SelectContext(ctx, &ids, s.db.Rebind(query), args...); err != nil {
		s.logger.ErrorContext(ctx, "Error getting user ids", "error", err)
		return nil, fmt.Errorf("failed to get user ids: %w", err)
	}
	return ids, nil
}

func (s *sqlxStore) InsertMapping(ctx context.Context, m *MessageMapping) error {
	if m == nil {
		return fmt.Errorf("cannot insert nil mapping")
	}
	if m.UserChatID == 0 || m.AdminChatID == 0 {
		return fmt.Errorf("mapping must have non-zero chat ids")
	}
	if m.Direction == "" {
		return fmt.Errorf("mapping must have a direction")
	}
	if m.CreatedAt == "" {
		m.CreatedAt = NowText()
	}

	query := `
        INSERT INTO message_map (user_chat_id, admin_chat_id, user_message_id, admin_message_id, direction, created_at)
        VALUES (:user_chat_id, :admin_chat_id, :user_message_id, :admin_message_id, :direction, :created_at);
    `
	result, err := s.db.NamedExecContext(ctx, query, m)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error inserting mapping",
			"user_chat_id", m.UserChatID, "admin_chat_id", m.AdminChatID, "error", err)
		return fmt.Errorf("failed to insert mapping: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		m.ID = id
	}

	s.logger.DebugContext(ctx, "Mapping inserted",
		"user_chat_id", m.UserChatID, "user_message_id", m.UserMessageID,
		"admin_chat_id", m.AdminChatID, "admin_message_id", m.AdminMessageID,
		"direction", m.Direction)
	return nil
}

func (s *sqlxStore) LatestMappingByAdminMessage(ctx context.Context, adminChatID int64, adminMessageID int) (*MessageMapping, error) {
	var m MessageMapping
	query := `
        SELECT id, user_chat_id, admin_chat_id, user_message_id, admin_message_id, direction, created_at
        FROM message_map
        WHERE admin_chat_id = ? AND admin_message_id = ?
        ORDER BY id DESC LIMIT 1;
    `
	err := s.db.GetContext(ctx, &m, query, adminChatID, adminMessageID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting mapping by admin message",
			"admin_chat_id", adminChatID, "admin_message_id", adminMessageID, "error", err)
		return nil, fmt.Errorf("failed to get mapping for admin message %d: %w", adminMessageID, err)
	}
	return &m, nil
}

func (s *sqlxStore) MappingsByAdminMessage(ctx context.Context, adminChatID int64, adminMessageID int, directions ...Direction) ([]MessageMapping, error) {
	var mappings []MessageMapping

	base := `
        SELECT id, user_chat_id, admin_chat_id, user_message_id, admin_message_id, direction, created_at
        FROM message_map
        WHERE admin_chat_id = ? AND admin_message_id = ?`

	if len(directions) == 0 {
		if err := s.db.SelectContext(ctx, &mappings, base+` ORDER BY id;`, adminChatID, adminMessageID); err != nil {
			return nil, fmt.Errorf("failed to get mappings for admin message %d: %w", adminMessageID, err)
		}
		return mappings, nil
	}

	query, args, err := sqlx.In(base+` AND direction IN (?) ORDER BY id;`, adminChatID, adminMessageID, directions)
	if err != nil {
		return nil, fmt.Errorf("failed to build mappings query: %w", err)
	}

	if err := s.db.SelectContext(ctx, &mappings, s.db.Rebind(query), args...); err != nil {
		s.logger.ErrorContext(ctx, "Error getting mappings by admin message",
			"admin_chat_id", adminChatID, "admin_message_id", adminMessageID, "error", err)
		return nil, fmt.Errorf("failed to get mappings for admin message %d: %w", adminMessageID, err)
	}
	return mappings, nil
}

func (s *sqlxStore) MappingsByUserMessage(ctx context.Context, userChatID int64, userMessageID int, direction Direction) ([]MessageMapping, error) {
	var mappings []MessageMapping
	query := `
        SELECT id, user_chat_id, admin_chat_id, user_message_id, admin_message_id, direction, created_at
        FROM message_map
        WHERE user_chat_id = ? AND user_message_id = ? AND direction = ?
        ORDER BY id;
    `
	if err := s.db.SelectContext(ctx, &mappings, query, userChatID, userMessageID, direction); err != nil {
		s.logger.ErrorContext(ctx, "Error getting mappings by user message",
			"user_chat_id", userChatID, "user_message_id", userMessageID, "error", err)
		return nil, fmt.Errorf("failed to get mappings for user message %d: %w", userMessageID, err)
	}
	return mappings, nil
}

func (s *sqlxStore) DeleteMappingsByAdminMessage(ctx context.Context, adminChatID int64, adminMessageID int) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM message_map WHERE admin_chat_id = ? AND admin_message_id = ?`,
		adminChatID, adminMessageID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deleting mappings",
			"admin_chat_id", adminChatID, "admin_message_id", adminMessageID, "error", err)
		return 0, fmt.Errorf("failed to delete mappings for admin message %d: %w", adminMessageID, err)
	}

	count, _ := result.RowsAffected()
	return count, nil
}

func (s *sqlxStore) SessionTarget(ctx context.Context, adminChatID int64) (int64, error) {
	var target sql.NullInt64
	err := s.db.GetContext(ctx, &target,
		`SELECT current_session_user_id FROM admin_state WHERE admin_chat_id = ?`, adminChatID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting session target", "admin_chat_id", adminChatID, "error", err)
		return 0, fmt.Errorf("failed to get session for admin chat %d: %w", adminChatID, err)
	}
	if !target.Valid {
		return 0, nil
	}
	return target.Int64, nil
}

func (s *sqlxStore) SetSessionTarget(ctx context.Context, adminChatID, userID int64) error {
	if adminChatID == 0 {
		return fmt.Errorf("admin_chat_id cannot be zero")
	}

	query := `
        INSERT INTO admin_state (admin_chat_id, current_session_user_id)
        VALUES (?, ?)
        ON CONFLICT(admin_chat_id) DO UPDATE SET
            current_session_user_id = excluded.current_session_user_id;
    `
	if _, err := s.db.ExecContext(ctx, query, adminChatID, NullInt64(userID)); err != nil {
		s.logger.ErrorContext(ctx, "Error setting session target",
			"admin_chat_id", adminChatID, "user_id", userID, "error", err)
		return fmt.Errorf("failed to set session for admin chat %d: %w", adminChatID, err)
	}

	s.logger.DebugContext(ctx, "Session target updated", "admin_chat_id", adminChatID, "user_id", userID)
	return nil
}

func (s *sqlxStore) ClearSessionsTargeting(ctx context.Context, userID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE admin_state SET current_session_user_id = NULL WHERE current_session_user_id = ?`, userID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error clearing sessions targeting user", "user_id", userID, "error", err)
		return 0, fmt.Errorf("failed to clear sessions targeting user %d: %w", userID, err)
	}

	count, _ := result.RowsAffected()
	if count > 0 {
		s.logger.DebugContext(ctx, "Cleared sessions targeting user", "user_id", userID, "count", count)
	}
	return count, nil
}

func (s *sqlxStore) UserTopic(ctx context.Context, userID int64) (*UserTopic, error) {
	var topic UserTopic
	query := `SELECT user_id, admin_group_chat_id, topic_thread_id, topic_title, created_at, updated_at
	          FROM user_topics WHERE user_id = ?`

	err := s.db.GetContext(ctx, &topic, query, userID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting user topic", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to get topic for user %d: %w", userID, err)
	}
	return &topic, nil
}

func (s *sqlxStore) UpsertUserTopic(ctx context.Context, t *UserTopic) error {
	if t == nil {
		return fmt.Errorf("cannot upsert nil topic")
	}
	if t.UserID == 0 || t.AdminGroupChatID == 0 || t.TopicThreadID == 0 {
		return fmt.Errorf("topic binding must have non-zero ids")
	}

	now := NowText()
	if t.CreatedAt == "" {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	query := `
        INSERT INTO user_topics (user_id, admin_group_chat_id, topic_thread_id, topic_title, created_at, updated_at)
        VALUES (:user_id, :admin_group_chat_id, :topic_thread_id, :topic_title, :created_at, :updated_at)
        ON CONFLICT(user_id) DO UPDATE SET
            admin_group_chat_id = excluded.admin_group_chat_id,
            topic_thread_id = excluded.topic_thread_id,
            topic_title = excluded.topic_title,
            updated_at = excluded.updated_at;
    `
	if _, err := s.db.NamedExecContext(ctx, query, t); err != nil {
		s.logger.ErrorContext(ctx, "Error upserting user topic", "user_id", t.UserID, "error", err)
		return fmt.Errorf("failed to upsert topic for user %d: %w", t.UserID, err)
	}

	s.logger.DebugContext(ctx, "User topic saved",
		"user_id", t.UserID, "thread_id", t.TopicThreadID)
	return nil
}

func (s *sqlxStore) UpdateUserTopicTitle(ctx context.Context, userID int64, title string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE user_topics SET topic_title = ?, updated_at = ? WHERE user_id = ?`,
		title, NowText(), userID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error updating topic title", "user_id", userID, "error", err)
		return fmt.Errorf("failed to update topic title for user %d: %w", userID, err)
	}
	return nil
}

func (s *sqlxStore) UserIDByTopic(ctx context.Context, groupChatID int64, threadID int) (int64, error) {
	var userID int64
	err := s.db.GetContext(ctx, &userID,
		`SELECT user_id FROM user_topics WHERE admin_group_chat_id = ? AND topic_thread_id = ?`,
		groupChatID, threadID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error resolving topic to user",
			"group_chat_id", groupChatID, "thread_id", threadID, "error", err)
		return 0, fmt.Errorf("failed to resolve topic %d to user: %w", threadID, err)
	}
	return userID, nil
}

func (s *sqlxStore) UpsertBan(ctx context.Context, b *BanRecord) error {
	if b == nil {
		return fmt.Errorf("cannot upsert nil ban")
	}
	if b.UserID == 0 {
		return fmt.Errorf("ban must have a non-zero user_id")
	}

	now := NowText()
	if b.CreatedAt == "" {
		b.CreatedAt = now
	}
	b.UpdatedAt = now

	query := `
        INSERT INTO ban_list (user_id, created_at, updated_at, operator_admin_id, reason, note, expires_at)
        VALUES (:user_id, :created_at, :updated_at, :operator_admin_id, :reason, :note, :expires_at)
        ON CONFLICT(user_id) DO UPDATE SET
            updated_at = excluded.updated_at,
            operator_admin_id = excluded.operator_admin_id,
            reason = excluded.reason,
            note = excluded.note,
            expires_at = excluded.expires_at;
    `
	if _, err := s.db.NamedExecContext(ctx, query, b); err != nil {
		s.logger.ErrorContext(ctx, "Error upserting ban", "user_id", b.UserID, "error", err)
		return fmt.Errorf("failed to upsert ban for user %d: %w", b.UserID, err)
	}

	s.logger.DebugContext(ctx, "Ban saved", "user_id", b.UserID, "operator", b.OperatorAdminID)
	return nil
}

func (s *sqlxStore) DeleteBan(ctx context.Context, userID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM ban_list WHERE user_id = ?`, userID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deleting ban", "user_id", userID, "error", err)
		return false, fmt.Errorf("failed to delete ban for user %d: %w", userID, err)
	}

	count, _ := result.RowsAffected()
	return count > 0, nil
}

func (s *sqlxStore) BanRow(ctx context.Context, userID int64) (*BanRecord, error) {
	var ban BanRecord
	query := `SELECT user_id, created_at, updated_at, operator_admin_id, reason, note, expires_at
	          FROM ban_list WHERE user_id = ?`

	err := s.db.GetContext(ctx, &ban, query, userID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting ban row", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to get ban for user %d: %w", userID, err)
	}
	return &ban, nil
}

func (s *sqlxStore) RecentBans(ctx context.Context, limit int) ([]BanRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	var bans []BanRecord
	query := `SELECT user_id, created_at, updated_at, operator_admin_id, reason, note, expires_at
	          FROM ban_list ORDER BY updated_at DESC, user_id DESC LIMIT ?`

	if err := s.db.SelectContext(ctx, &bans, query, limit); err != nil {
		s.logger.ErrorContext(ctx, "Error listing bans", "error", err)
		return nil, fmt.Errorf("failed to list bans: %w", err)
	}
	return bans, nil
}

func (s *sqlxStore) DeleteExpiredBans(ctx context.Context, now string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM ban_list WHERE expires_at IS NOT NULL AND expires_at <= ?`, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deleting expired bans", "error", err)
		return 0, fmt.Errorf("failed to delete expired bans: %w", err)
	}

	count, _ := result.RowsAffected()
	if count > 0 {
		s.logger.InfoContext(ctx, "Expired bans removed", "count", count)
	}
	return count, nil
}

func (s *sqlxStore) InsertRule(ctx context.Context, r *AutoReplyRule) error {
	if r == nil {
		return fmt.Errorf("cannot insert nil rule")
	}
	if r.TriggerText == "" || r.ReplyText == "" {
		return fmt.Errorf("rule must have trigger and reply text")
	}

	now := NowText()
	if r.CreatedAt == "" {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	query := `
        INSERT INTO auto_reply_rules (trigger_type, trigger_text, reply_text, priority, is_enabled, created_by_admin_id, created_at, updated_at)
        VALUES (:trigger_type, :trigger_text, :reply_text, :priority, :is_enabled, :created_by_admin_id, :created_at, :updated_at);
    `
	result, err := s.db.NamedExecContext(ctx, query, r)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error inserting rule", "trigger_type", r.TriggerType, "error", err)
		return fmt.Errorf("failed to insert auto-reply rule: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		r.ID = id
	}

	s.logger.DebugContext(ctx, "Auto-reply rule created", "rule_id", r.ID, "trigger_type", r.TriggerType)
	return nil
}

func (s *sqlxStore) Rules(ctx context.Context, limit int) ([]AutoReplyRule, error) {
	if limit <= 0 {
		limit = 50
	}

	var rules []AutoReplyRule
	query := `SELECT id, trigger_type, trigger_text, reply_text, priority, is_enabled, created_by_admin_id, created_at, updated_at
	          FROM auto_reply_rules ORDER BY priority, id LIMIT ?`

	if err := s.db.SelectContext(ctx, &rules, query, limit); err != nil {
		s.logger.ErrorContext(ctx, "Error listing rules", "error", err)
		return nil, fmt.Errorf("failed to list auto-reply rules: %w", err)
	}
	return rules, nil
}

func (s *sqlxStore) EnabledRules(ctx context.Context) ([]AutoReplyRule, error) {
	var rules []AutoReplyRule
	query := `SELECT id, trigger_type, trigger_text, reply_text, priority, is_enabled, created_by_admin_id, created_at, updated_at
	          FROM auto_reply_rules WHERE is_enabled = 1 ORDER BY priority, id`

	if err := s.db.SelectContext(ctx, &rules, query); err != nil {
		s.logger.ErrorContext(ctx, "Error listing enabled rules", "error", err)
		return nil, fmt.Errorf("failed to list enabled auto-reply rules: %w", err)
	}
	return rules, nil
}

func (s *sqlxStore) SetRuleEnabled(ctx context.Context, ruleID int64, enabled bool) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE auto_reply_rules SET is_enabled = ?, updated_at = ? WHERE id = ?`,
		enabled, NowText(), ruleID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error toggling rule", "rule_id", ruleID, "error", err)
		return false, fmt.Errorf("failed to toggle auto-reply rule %d: %w", ruleID, err)
	}

	count, _ := result.RowsAffected()
	return count > 0, nil
}

func (s *sqlxStore) DeleteRule(ctx context.Context, ruleID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM auto_reply_rules WHERE id = ?`, ruleID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deleting rule", "rule_id", ruleID, "error", err)
		return false, fmt.Errorf("failed to delete auto-reply rule %d: %w", ruleID, err)
	}

	count, _ := result.RowsAffected()
	return count > 0, nil
}

func (s *sqlxStore) RecordAuditEvent(ctx context.Context, ev *AuditEvent) error {
	if ev == nil {
		return fmt.Errorf("cannot record nil audit event")
	}
	if ev.EventType == "" || ev.Outcome == "" {
		return fmt.Errorf("audit event must have a type and an outcome")
	}
	if ev.CreatedAt == "" {
		ev.CreatedAt = NowText()
	}

	query := `
        INSERT INTO audit_events (event_type, user_id, admin_chat_id, chat_id, message_id, mapped_message_id,
                                  message_kind, is_edited, direction, outcome, error_class, error_code, created_at)
        VALUES (:event_type, :user_id, :admin_chat_id, :chat_id, :message_id, :mapped_message_id,
                :message_kind, :is_edited, :direction, :outcome, :error_class, :error_code, :created_at);
    `
	result, err := s.db.NamedExecContext(ctx, query, ev)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error recording audit event", "event_type", ev.EventType, "error", err)
		return fmt.Errorf("failed to record audit event %s: %w", ev.EventType, err)
	}

	if id, err := result.LastInsertId(); err == nil {
		ev.ID = id
	}
	return nil
}

func (s *sqlxStore) StatsCounts(ctx context.Context, since string) ([]StatCount, error) {
	var counts []StatCount
	query := `
        SELECT event_type, outcome, COUNT(*) AS cnt
        FROM audit_events
        WHERE created_at >= ?
        GROUP BY event_type, outcome
        ORDER BY event_type, outcome;
    `
	if err := s.db.SelectContext(ctx, &counts, query, since); err != nil {
		s.logger.ErrorContext(ctx, "Error aggregating stats", "error", err)
		return nil, fmt.Errorf("failed to aggregate audit stats: %w", err)
	}
	return counts, nil
}

func (s *sqlxStore) TopUsersByEvents(ctx context.Context, since string, limit int) ([]UserEventCount, error) {
	if limit <= 0 {
		limit = 10
	}

	var counts []UserEventCount
	query := `
        SELECT user_id, COUNT(*) AS cnt
        FROM audit_events
        WHERE user_id IS NOT NULL AND created_at >= ?
        GROUP BY user_id
        ORDER BY cnt DESC, user_id
        LIMIT ?;
    `
	if err := s.db.SelectContext(ctx, &counts, query, since, limit); err != nil {
		s.logger.ErrorContext(ctx, "Error aggregating top users", "error", err)
		return nil, fmt.Errorf("failed to aggregate top users: %w", err)
	}
	return counts, nil
}
