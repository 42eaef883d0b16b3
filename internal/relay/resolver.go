package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/nkoval/relaybot/internal/database"
)

// ErrNoTarget means no routing strategy could determine which user an
// admin message is addressed to. The admin must reply to a mapped
// message, post in the right topic, or set a session.
var ErrNoTarget = errors.New("no routing target resolvable")

// AdminContext describes where an admin-side message arrived.
type AdminContext struct {
	AdminChatID      int64
	ThreadID         int // forum thread id, 0 outside topics
	ReplyToMessageID int // replied-to message id, 0 when not a reply
}

// resolveFunc is one routing strategy. It returns 0 with a nil error to
// fall through to the next strategy.
type resolveFunc func(ctx context.Context, ac AdminContext) (int64, error)

// Resolver determines the target user for an inbound admin message using
// an ordered list of strategies: reply-chain lookup, then topic lookup,
// then the admin's sticky session. Reply addressing deliberately beats
// the session pointer so concurrent conversations don't cross.
type Resolver struct {
	strategies []resolveFunc
	logger     *slog.Logger
}

// NewResolver builds the resolver. binder may be nil outside group-topic
// mode, which disables the topic strategy.
func NewResolver(store database.Store, binder *TopicBinder, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	byReply := func(ctx context.Context, ac AdminContext) (int64, error) {
		if ac.ReplyToMessageID == 0 {
			return 0, nil
		}
		m, err := store.LatestMappingByAdminMessage(ctx, ac.AdminChatID, ac.ReplyToMessageID)
		if err != nil {
			return 0, err
		}
		if m == nil {
			return 0, nil
		}
		return m.UserChatID, nil
	}

	byTopic := func(ctx context.Context, ac AdminContext) (int64, error) {
		if binder == nil || ac.ThreadID == 0 {
			return 0, nil
		}
		return binder.UserForThread(ctx, ac.ThreadID)
	}

	bySession := func(ctx context.Context, ac AdminContext) (int64, error) {
		return store.SessionTarget(ctx, ac.AdminChatID)
	}

	return &Resolver{
		strategies: []resolveFunc{byReply, byTopic, bySession},
		logger:     logger.With("component", "resolver"),
	}
}

// ResolveTarget applies the strategies in order and returns the first
// user id one of them yields, or ErrNoTarget.
func (r *Resolver) ResolveTarget(ctx context.Context, ac AdminContext) (int64, error) {
	for _, strategy := range r.strategies {
		userID, err := strategy(ctx, ac)
		if err != nil {
			return 0, err
		}
		if userID != 0 {
			return userID, nil
		}
	}
	return 0, ErrNoTarget
}
