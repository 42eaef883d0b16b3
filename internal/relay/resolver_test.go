package relay_test

import (
	"context"
	"errors"
	"testing"

	"github.com/nkoval/relaybot/internal/database"
	"github.com/nkoval/relaybot/internal/relay"
)

func TestResolver_Precedence(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	const (
		groupChatID = int64(-1001234567890)
		replyUser   = int64(111)
		topicUser   = int64(222)
		sessionUser = int64(333)
	)

	// A mapped admin message pointing at replyUser.
	if err := store.InsertMapping(ctx, &database.MessageMapping{
		UserChatID: replyUser, AdminChatID: groupChatID,
		UserMessageID: 1, AdminMessageID: 50,
		Direction: database.DirectionUserToAdmin,
	}); err != nil {
		t.Fatalf("InsertMapping() error = %v", err)
	}

	// A topic thread bound to topicUser.
	if err := store.UpsertUserTopic(ctx, &database.UserTopic{
		UserID: topicUser, AdminGroupChatID: groupChatID,
		TopicThreadID: 42, TopicTitle: "Topic User (222)",
	}); err != nil {
		t.Fatalf("UpsertUserTopic() error = %v", err)
	}

	// A sticky session pointing at sessionUser.
	if err := store.SetSessionTarget(ctx, groupChatID, sessionUser); err != nil {
		t.Fatalf("SetSessionTarget() error = %v", err)
	}

	binder := relay.NewTopicBinder(store, nil, groupChatID, nil)
	resolver := relay.NewResolver(store, binder, nil)

	tests := []struct {
		name string
		ac   relay.AdminContext
		want int64
	}{
		{
			name: "reply beats topic and session",
			ac:   relay.AdminContext{AdminChatID: groupChatID, ThreadID: 42, ReplyToMessageID: 50},
			want: replyUser,
		},
		{
			name: "topic beats session",
			ac:   relay.AdminContext{AdminChatID: groupChatID, ThreadID: 42},
			want: topicUser,
		},
		{
			name: "session as last resort",
			ac:   relay.AdminContext{AdminChatID: groupChatID},
			want: sessionUser,
		},
		{
			name: "unmapped reply falls through to topic",
			ac:   relay.AdminContext{AdminChatID: groupChatID, ThreadID: 42, ReplyToMessageID: 999},
			want: topicUser,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolver.ResolveTarget(ctx, tt.ac)
			if err != nil {
				t.Fatalf("ResolveTarget() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveTarget() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestResolver_NoTarget(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	resolver := relay.NewResolver(store, nil, nil)

	_, err := resolver.ResolveTarget(context.Background(), relay.AdminContext{AdminChatID: 500})
	if !errors.Is(err, relay.ErrNoTarget) {
		t.Errorf("ResolveTarget() error = %v, want ErrNoTarget", err)
	}
}
