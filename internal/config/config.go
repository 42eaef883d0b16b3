// Package config provides configuration loading and validation for the
// relay bot. Values come from defaults, an optional config.yaml, and
// RELAY_* environment variables, in that order of precedence.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Relay modes. In private mode user messages are forwarded to each admin's
// private chat; in group_topic mode every user gets a forum topic inside
// the admin supergroup.
const (
	ModePrivate    = "private"
	ModeGroupTopic = "group_topic"
)

// Config holds all application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Messages  MessagesConfig  `mapstructure:"messages"`
}

// LoggerConfig controls slog output.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig holds transport settings.
type TelegramConfig struct {
	Token    string  `mapstructure:"token"     validate:"required"`
	AdminIDs []int64 `mapstructure:"admin_ids" validate:"required,min=1,dive,gt=0"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// RelayConfig holds relay behavior settings.
type RelayConfig struct {
	Mode string `mapstructure:"mode" validate:"oneof=private group_topic"`
	// AdminGroupChatID accepts a -100... supergroup id, a bare short id,
	// or a t.me/c/<id>/... link; see normalizeGroupChatID.
	AdminGroupChatID string        `mapstructure:"admin_group_chat_id"`
	BroadcastDelay   time.Duration `mapstructure:"broadcast_delay" validate:"min=0"`
	GatewayTimeout   time.Duration `mapstructure:"gateway_timeout" validate:"min=1s,max=5m"`

	// groupChatID is the normalized AdminGroupChatID, resolved during Load.
	groupChatID int64
}

// SchedulerConfig holds background task settings.
type SchedulerConfig struct {
	BanSweepInterval time.Duration `mapstructure:"ban_sweep_interval" validate:"min=1m"`
}

// MessagesConfig holds user-facing reply texts.
type MessagesConfig struct {
	Start            string `mapstructure:"start"`
	RelayFailed      string `mapstructure:"relay_failed"`
	Banned           string `mapstructure:"banned"`
	PrivateOnly      string `mapstructure:"private_only"`
	NoTarget         string `mapstructure:"no_target"`
	NoTargetTopic    string `mapstructure:"no_target_topic"`
	DeliveryRejected string `mapstructure:"delivery_rejected"`
	TargetBanned     string `mapstructure:"target_banned"`
	NotAuthorized    string `mapstructure:"not_authorized"`
}

// GroupChatID returns the normalized admin group chat id, or 0 when no
// group is configured.
func (r RelayConfig) GroupChatID() int64 {
	return r.groupChatID
}

// IsAdmin reports whether id is one of the configured admin user ids.
func (t TelegramConfig) IsAdmin(id int64) bool {
	for _, a := range t.AdminIDs {
		if a == id {
			return true
		}
	}
	return false
}

// PrimaryAdminID returns the first configured admin id.
func (t TelegramConfig) PrimaryAdminID() int64 {
	return t.AdminIDs[0]
}

func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	groupID, err := normalizeGroupChatID(c.Relay.AdminGroupChatID)
	if err != nil {
		return err
	}
	c.Relay.groupChatID = groupID

	if c.Relay.Mode == ModeGroupTopic && groupID == 0 {
		return fmt.Errorf("relay.admin_group_chat_id is required in %s mode", ModeGroupTopic)
	}
	return nil
}

// normalizeGroupChatID resolves the admin group chat id from the forms
// operators commonly paste: the full -100... id, the short id shown in
// t.me/c/<id>/... links, or such a link itself.
func normalizeGroupChatID(raw string) (int64, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return 0, nil
	}

	candidate := text
	if idx := strings.Index(text, "t.me/c/"); idx != -1 {
		rest := text[idx+len("t.me/c/"):]
		if slash := strings.IndexByte(rest, '/'); slash != -1 {
			rest = rest[:slash]
		}
		candidate = strings.TrimSpace(rest)
	}

	if strings.HasPrefix(candidate, "-100") {
		value, err := strconv.ParseInt(candidate, 10, 64)
		if err != nil || value >= 0 {
			return 0, fmt.Errorf("relay.admin_group_chat_id is not a valid supergroup id: %q", raw)
		}
		return value, nil
	}

	if shortID, err := strconv.ParseInt(candidate, 10, 64); err == nil && shortID > 0 {
		return -(1_000_000_000_000 + shortID), nil
	}

	return 0, fmt.Errorf("relay.admin_group_chat_id must be a -100... id or a t.me/c/... link, got %q", raw)
}
