package database

import (
	"database/sql"
	"time"
)

// Direction tags a message mapping with the way the copy travelled.
type Direction string

// Mapping directions.
const (
	DirectionUserToAdmin Direction = "user_to_admin"
	DirectionAdminToUser Direction = "admin_to_user"
	DirectionBroadcast   Direction = "broadcast"
)

// TimeLayout is the storage format for all timestamps: RFC3339 UTC,
// truncated to whole seconds. Lexical order equals chronological order.
const TimeLayout = time.RFC3339

// TimeText formats t for storage.
func TimeText(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(TimeLayout)
}

// NowText returns the current time formatted for storage.
func NowText() string {
	return TimeText(time.Now())
}

// ParseTimeText parses a stored timestamp.
func ParseTimeText(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}

// User is an end-user identity record. Created on first contact and
// refreshed on every inbound message; never deleted.
type User struct {
	UserID       int64          `db:"user_id"`
	Username     sql.NullString `db:"username"`
	FullName     string         `db:"full_name"`
	FirstSeenAt  string         `db:"first_seen_at"`
	LastActiveAt string         `db:"last_active_at"`
}

// MessageMapping records the correspondence between one message in the
// user chat and its relayed copy in an admin context. Rows are immutable;
// they only disappear through an explicit delete-pair.
type MessageMapping struct {
	ID             int64     `db:"id"`
	UserChatID     int64     `db:"user_chat_id"`
	AdminChatID    int64     `db:"admin_chat_id"`
	UserMessageID  int       `db:"user_message_id"`
	AdminMessageID int       `db:"admin_message_id"`
	Direction      Direction `db:"direction"`
	CreatedAt      string    `db:"created_at"`
}

// UserTopic binds a user to a forum topic in the admin supergroup.
type UserTopic struct {
	UserID           int64  `db:"user_id"`
	AdminGroupChatID int64  `db:"admin_group_chat_id"`
	TopicThreadID    int    `db:"topic_thread_id"`
	TopicTitle       string `db:"topic_title"`
	CreatedAt        string `db:"created_at"`
	UpdatedAt        string `db:"updated_at"`
}

// BanRecord is a per-user ban. A null expiry means permanent.
type BanRecord struct {
	UserID          int64          `db:"user_id"`
	CreatedAt       string         `db:"created_at"`
	UpdatedAt       string         `db:"updated_at"`
	OperatorAdminID int64          `db:"operator_admin_id"`
	Reason          sql.NullString `db:"reason"`
	Note            sql.NullString `db:"note"`
	ExpiresAt       sql.NullString `db:"expires_at"`
}

// AutoReplyRule is an ordered canned-reply rule. Rules are evaluated in
// (priority ascending, id ascending) order.
type AutoReplyRule struct {
	ID               int64  `db:"id"`
	TriggerType      string `db:"trigger_type"`
	TriggerText      string `db:"trigger_text"`
	ReplyText        string `db:"reply_text"`
	Priority         int    `db:"priority"`
	IsEnabled        bool   `db:"is_enabled"`
	CreatedByAdminID int64  `db:"created_by_admin_id"`
	CreatedAt        string `db:"created_at"`
	UpdatedAt        string `db:"updated_at"`
}

// AuditEvent is an append-only record of a relay or moderation outcome.
type AuditEvent struct {
	ID              int64          `db:"id"`
	EventType       string         `db:"event_type"`
	UserID          sql.NullInt64  `db:"user_id"`
	AdminChatID     sql.NullInt64  `db:"admin_chat_id"`
	ChatID          sql.NullInt64  `db:"chat_id"`
	MessageID       sql.NullInt64  `db:"message_id"`
	MappedMessageID sql.NullInt64  `db:"mapped_message_id"`
	MessageKind     sql.NullString `db:"message_kind"`
	IsEdited        bool           `db:"is_edited"`
	Direction       sql.NullString `db:"direction"`
	Outcome         string         `db:"outcome"`
	ErrorClass      sql.NullString `db:"error_class"`
	ErrorCode       sql.NullString `db:"error_code"`
	CreatedAt       string         `db:"created_at"`
}

// StatCount is one (event type, outcome) bucket of the audit log.
type StatCount struct {
	EventType string `db:"event_type"`
	Outcome   string `db:"outcome"`
	Count     int64  `db:"cnt"`
}

// UserEventCount is one row of the top-users-by-events report.
type UserEventCount struct {
	UserID int64 `db:"user_id"`
	Count  int64 `db:"cnt"`
}

// NullInt64 wraps v as a nullable column value; zero means NULL.
// Telegram ids are never zero, so the convention is safe here.
func NullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

// NullString wraps s as a nullable column value; empty means NULL.
func NullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
