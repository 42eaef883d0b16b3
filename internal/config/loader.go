package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from defaults, the YAML file at path (missing
// file is allowed), and RELAY_* environment variables, then validates the
// result. Any failure here is fatal for the application.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.json", false)

	// Empty defaults register the keys so AutomaticEnv can fill them.
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.admin_ids", []int64{})

	v.SetDefault("database.path", "relaybot.db")

	v.SetDefault("relay.admin_group_chat_id", "")

	v.SetDefault("relay.mode", ModePrivate)
	v.SetDefault("relay.broadcast_delay", "1s")
	v.SetDefault("relay.gateway_timeout", "30s")

	v.SetDefault("scheduler.ban_sweep_interval", "10m")

	v.SetDefault("messages.start", "Connected to the relay bot. Send /id to see your Telegram user ID.")
	v.SetDefault("messages.relay_failed", "Message delivery failed, please try again later.")
	v.SetDefault("messages.banned", "You have been banned by an administrator. Ban lifts in: %s")
	v.SetDefault("messages.private_only", "This bot only works in private chats.")
	v.SetDefault("messages.no_target", "Reply to a forwarded user message, or set a session first with /session <user ID>.")
	v.SetDefault("messages.no_target_topic", "Send your message inside the user's topic, or reply to a mapped user message.")
	v.SetDefault("messages.delivery_rejected", "Delivery failed, the user may have blocked the bot. User ID: %d")
	v.SetDefault("messages.target_banned", "User %d is banned. Unban them first to send messages.")
	v.SetDefault("messages.not_authorized", "Not authorized.")
}
