package relay

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/nkoval/relaybot/internal/database"
)

// TopicBinder maps each user to a forum topic in the admin supergroup.
// Topics are created lazily on first contact and renamed when the user's
// display identity changes. Only used in group-topic mode.
type TopicBinder struct {
	store       database.Store
	gateway     Gateway
	groupChatID int64
	logger      *slog.Logger
}

// NewTopicBinder creates a topic binder for the given admin supergroup.
func NewTopicBinder(store database.Store, gateway Gateway, groupChatID int64, logger *slog.Logger) *TopicBinder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &TopicBinder{
		store:       store,
		gateway:     gateway,
		groupChatID: groupChatID,
		logger:      logger.With("component", "topic_binder"),
	}
}

// TopicTitle renders the expected topic title for a user identity.
func TopicTitle(userID int64, username, fullName string) string {
	display := fullName
	if display == "" && username != "" {
		display = "@" + username
	}
	if display == "" {
		display = "User"
	}
	return fmt.Sprintf("%s (%d)", display, userID)
}

// EnsureTopic returns the thread id bound to the user, allocating a new
// forum topic on first contact. When the expected title has drifted from
// the stored one, the topic is renamed; a rename failure is logged and
// swallowed, it never fails the relay.
func (b *TopicBinder) EnsureTopic(ctx context.Context, userID int64, username, fullName string) (int, error) {
	title := TopicTitle(userID, username, fullName)

	binding, err := b.store.UserTopic(ctx, userID)
	if err != nil {
		return 0, err
	}

	if binding == nil {
		threadID, err := b.gateway.CreateThread(ctx, b.groupChatID, title)
		if err != nil {
			return 0, fmt.Errorf("failed to create topic for user %d: %w", userID, err)
		}

		if err := b.store.UpsertUserTopic(ctx, &database.UserTopic{
			UserID:           userID,
			AdminGroupChatID: b.groupChatID,
			TopicThreadID:    threadID,
			TopicTitle:       title,
		}); err != nil {
			return 0, fmt.Errorf("topic created but binding not saved for user %d: %w", userID, err)
		}

		b.logger.InfoContext(ctx, "Topic created for user", "user_id", userID, "thread_id", threadID)
		return threadID, nil
	}

	if binding.TopicTitle != title {
		if err := b.gateway.RenameThread(ctx, b.groupChatID, binding.TopicThreadID, title); err != nil {
			b.logger.WarnContext(ctx, "Topic rename failed",
				"user_id", userID, "thread_id", binding.TopicThreadID, "error", err)
		} else if err := b.store.UpdateUserTopicTitle(ctx, userID, title); err != nil {
			b.logger.WarnContext(ctx, "Topic renamed but title not saved", "user_id", userID, "error", err)
		}
	}

	return binding.TopicThreadID, nil
}

// UserForThread resolves which user a forum thread belongs to. Returns 0
// when the thread is not bound to any user.
func (b *TopicBinder) UserForThread(ctx context.Context, threadID int) (int64, error) {
	return b.store.UserIDByTopic(ctx, b.groupChatID, threadID)
}
