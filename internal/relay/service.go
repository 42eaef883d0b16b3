package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/nkoval/relaybot/internal/database"
)

// Audit event types.
const (
	EventUserMsgIn           = "user_msg_in"
	EventBlockedBan          = "blocked_ban"
	EventAutoReplyHit        = "auto_reply_hit"
	EventForwardUserToAdmin  = "forward_user_to_admin"
	EventForwardAdminToUser  = "forward_admin_to_user"
	EventEditSyncUserToAdmin = "edit_sync_user_to_admin"
	EventEditSyncAdminToUser = "edit_sync_admin_to_user"
	EventBroadcastOut        = "broadcast_out"
	EventDeletePair          = "delete_pair"
)

// Audit outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeBlocked = "blocked"
)

// Identity is the sender identity attached to an inbound user message.
type Identity struct {
	ID       int64
	Username string
	FullName string
}

// DisplayName renders the identity for user cards and topic titles.
func (id Identity) DisplayName() string {
	if id.FullName != "" {
		return id.FullName
	}
	if id.Username != "" {
		return "@" + id.Username
	}
	return fmt.Sprintf("User %d", id.ID)
}

// InboundMessage is the relay-relevant slice of an incoming message.
type InboundMessage struct {
	ChatID    int64
	MessageID int
	Text      string // message text, or caption for media
	PlainText bool   // true when Text is the whole message body
	Kind      string // "text", "photo", "document", ...
}

// Messages holds the user-facing notice texts the orchestrator sends.
type Messages struct {
	Banned           string // fmt: remaining duration
	RelayFailed      string
	NoTarget         string
	NoTargetTopic    string
	DeliveryRejected string // fmt: user id
	TargetBanned     string // fmt: user id
}

// Options configures the orchestrator.
type Options struct {
	GroupTopicMode   bool
	AdminChatIDs     []int64 // private-mode fan-out targets
	AdminUserIDs     []int64 // excluded from broadcast and /recent
	AdminGroupChatID int64
	BroadcastDelay   time.Duration
	Messages         Messages
}

// BroadcastResult is the partial-failure tally of one broadcast.
type BroadcastResult struct {
	Sent   int
	Failed int
}

// Service is the relay orchestrator. It sequences ban checks, auto-reply
// short-circuits, topic binding, gateway delivery, and mapping
// persistence. Gateway failures never propagate past it: they end as a
// user-facing notice plus an audit event.
type Service struct {
	store    database.Store
	gateway  Gateway
	ledger   *Ledger
	matcher  *Matcher
	binder   *TopicBinder // nil outside group-topic mode
	resolver *Resolver
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires the orchestrator together.
func NewService(store database.Store, gateway Gateway, ledger *Ledger, matcher *Matcher, binder *TopicBinder, resolver *Resolver, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		store:    store,
		gateway:  gateway,
		ledger:   ledger,
		matcher:  matcher,
		binder:   binder,
		resolver: resolver,
		opts:     opts,
		logger:   logger.With("component", "relay"),
		now:      time.Now,
	}
}

// Ledger exposes the ban ledger for command handlers.
func (s *Service) Ledger() *Ledger { return s.ledger }

// RelayUserMessage handles one inbound message from an end user: record
// presence, enforce the ban, try auto-reply, then copy the message into
// the admin context and persist the mapping.
func (s *Service) RelayUserMessage(ctx context.Context, from Identity, msg InboundMessage) error {
	if err := s.store.UpsertUser(ctx, from.ID, from.Username, from.FullName); err != nil {
		return err
	}

	s.audit(ctx, &database.AuditEvent{
		EventType:   EventUserMsgIn,
		UserID:      database.NullInt64(from.ID),
		ChatID:      database.NullInt64(msg.ChatID),
		MessageID:   database.NullInt64(int64(msg.MessageID)),
		MessageKind: database.NullString(msg.Kind),
		Direction:   database.NullString("user_to_bot"),
		Outcome:     OutcomeOK,
	})

	ban, err := s.ledger.ActiveBan(ctx, from.ID)
	if err != nil {
		return err
	}
	if ban != nil {
		s.notify(ctx, msg.ChatID, 0, fmt.Sprintf(s.opts.Messages.Banned, RemainingText(ban, s.now())))
		s.audit(ctx, &database.AuditEvent{
			EventType: EventBlockedBan,
			UserID:    database.NullInt64(from.ID),
			ChatID:    database.NullInt64(msg.ChatID),
			MessageID: database.NullInt64(int64(msg.MessageID)),
			Outcome:   OutcomeBlocked,
		})
		return nil
	}

	if msg.PlainText {
		rule, err := s.matcher.Match(ctx, msg.Text)
		if err != nil {
			return err
		}
		if rule != nil {
			s.notify(ctx, msg.ChatID, 0, rule.ReplyText)
			s.audit(ctx, &database.AuditEvent{
				EventType: EventAutoReplyHit,
				UserID:    database.NullInt64(from.ID),
				ChatID:    database.NullInt64(msg.ChatID),
				MessageID: database.NullInt64(int64(msg.MessageID)),
				Outcome:   OutcomeOK,
			})
			return nil
		}
	}

	if s.opts.GroupTopicMode {
		return s.relayUserToTopic(ctx, from, msg)
	}
	return s.relayUserToAdmins(ctx, from, msg)
}

func (s *Service) relayUserToTopic(ctx context.Context, from Identity, msg InboundMessage) error {
	threadID, err := s.binder.EnsureTopic(ctx, from.ID, from.Username, from.FullName)
	if err != nil {
		s.logger.ErrorContext(ctx, "Topic allocation failed", "user_id", from.ID, "error", err)
		s.notify(ctx, msg.ChatID, 0, s.opts.Messages.RelayFailed)
		s.auditForwardError(ctx, from.ID, msg, s.opts.AdminGroupChatID, err)
		return nil
	}

	adminMsgID, err := s.gateway.CopyMessage(ctx, msg.ChatID, msg.MessageID, s.opts.AdminGroupChatID, threadID)
	if err != nil {
		s.logger.ErrorContext(ctx, "User message relay to topic failed",
			"user_id", from.ID, "thread_id", threadID, "error", err)
		s.notify(ctx, msg.ChatID, 0, s.opts.Messages.RelayFailed)
		s.auditForwardError(ctx, from.ID, msg, s.opts.AdminGroupChatID, err)
		return nil
	}

	s.finishUserRelay(ctx, from, msg, s.opts.AdminGroupChatID, adminMsgID)
	return nil
}

func (s *Service) relayUserToAdmins(ctx context.Context, from Identity, msg InboundMessage) error {
	card := s.userCard(from)
	delivered := 0

	for _, adminChatID := range s.opts.AdminChatIDs {
		if _, err := s.gateway.SendText(ctx, adminChatID, 0, card); err != nil {
			s.logger.WarnContext(ctx, "User card delivery failed",
				"user_id", from.ID, "admin_chat_id", adminChatID, "error", err)
		}

		adminMsgID, err := s.gateway.ForwardMessage(ctx, msg.ChatID, msg.MessageID, adminChatID)
		if err != nil {
			s.logger.ErrorContext(ctx, "User message relay to admin failed",
				"user_id", from.ID, "admin_chat_id", adminChatID, "error", err)
			s.auditForwardError(ctx, from.ID, msg, adminChatID, err)
			continue
		}

		delivered++
		s.finishUserRelay(ctx, from, msg, adminChatID, adminMsgID)
	}

	if delivered == 0 {
		s.notify(ctx, msg.ChatID, 0, s.opts.Messages.RelayFailed)
	}
	return nil
}

// finishUserRelay persists the mapping for one successful admin-side copy
// and attaches the moderation keyboard to it.
func (s *Service) finishUserRelay(ctx context.Context, from Identity, msg InboundMessage, adminChatID int64, adminMsgID int) {
	mapping := &database.MessageMapping{
		UserChatID:     msg.ChatID,
		AdminChatID:    adminChatID,
		UserMessageID:  msg.MessageID,
		AdminMessageID: adminMsgID,
		Direction:      database.DirectionUserToAdmin,
	}
	if err := s.store.InsertMapping(ctx, mapping); err != nil {
		s.logger.ErrorContext(ctx, "Mapping not saved after relay",
			"user_id", from.ID, "admin_chat_id", adminChatID, "error", err)
	}

	s.audit(ctx, &database.AuditEvent{
		EventType:       EventForwardUserToAdmin,
		UserID:          database.NullInt64(from.ID),
		AdminChatID:     database.NullInt64(adminChatID),
		ChatID:          database.NullInt64(msg.ChatID),
		MessageID:       database.NullInt64(int64(msg.MessageID)),
		MappedMessageID: database.NullInt64(int64(adminMsgID)),
		MessageKind:     database.NullString(msg.Kind),
		Direction:       database.NullString(string(database.DirectionUserToAdmin)),
		Outcome:         OutcomeOK,
	})

	if err := s.gateway.AttachModerationActions(ctx, adminChatID, adminMsgID, from.ID); err != nil {
		s.logger.WarnContext(ctx, "Moderation keyboard not attached",
			"admin_chat_id", adminChatID, "message_id", adminMsgID, "error", err)
	}
}

func (s *Service) userCard(from Identity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s", from.DisplayName())
	if from.Username != "" && from.FullName != "" {
		fmt.Fprintf(&b, " (@%s)", from.Username)
	}
	fmt.Fprintf(&b, "\nID: %d", from.ID)
	return b.String()
}

// RelayAdminMessage handles one inbound admin message: resolve the target
// user, refuse banned targets, copy the message, persist the mapping.
func (s *Service) RelayAdminMessage(ctx context.Context, ac AdminContext, msg InboundMessage) error {
	target, err := s.resolver.ResolveTarget(ctx, ac)
	if err != nil {
		if errors.Is(err, ErrNoTarget) {
			prompt := s.opts.Messages.NoTarget
			if s.opts.GroupTopicMode {
				prompt = s.opts.Messages.NoTargetTopic
			}
			s.notify(ctx, ac.AdminChatID, ac.ThreadID, prompt)
			return nil
		}
		return err
	}

	ban, err := s.ledger.ActiveBan(ctx, target)
	if err != nil {
		return err
	}
	if ban != nil {
		s.notify(ctx, ac.AdminChatID, ac.ThreadID, fmt.Sprintf(s.opts.Messages.TargetBanned, target))
		return nil
	}

	userMsgID, err := s.gateway.CopyMessage(ctx, ac.AdminChatID, msg.MessageID, target, 0)
	if err != nil {
		if KindOf(err) == KindRejected {
			s.notify(ctx, ac.AdminChatID, ac.ThreadID, fmt.Sprintf(s.opts.Messages.DeliveryRejected, target))
		} else {
			s.notify(ctx, ac.AdminChatID, ac.ThreadID, s.opts.Messages.RelayFailed)
		}
		s.audit(ctx, &database.AuditEvent{
			EventType:   EventForwardAdminToUser,
			UserID:      database.NullInt64(target),
			AdminChatID: database.NullInt64(ac.AdminChatID),
			MessageID:   database.NullInt64(int64(msg.MessageID)),
			MessageKind: database.NullString(msg.Kind),
			Direction:   database.NullString(string(database.DirectionAdminToUser)),
			Outcome:     OutcomeError,
			ErrorClass:  database.NullString(string(KindOf(err))),
		})
		return nil
	}

	mapping := &database.MessageMapping{
		UserChatID:     target,
		AdminChatID:    ac.AdminChatID,
		UserMessageID:  userMsgID,
		AdminMessageID: msg.MessageID,
		Direction:      database.DirectionAdminToUser,
	}
	if err := s.store.InsertMapping(ctx, mapping); err != nil {
		s.logger.ErrorContext(ctx, "Mapping not saved after admin relay",
			"user_id", target, "admin_chat_id", ac.AdminChatID, "error", err)
	}

	s.audit(ctx, &database.AuditEvent{
		EventType:       EventForwardAdminToUser,
		UserID:          database.NullInt64(target),
		AdminChatID:     database.NullInt64(ac.AdminChatID),
		MessageID:       database.NullInt64(int64(msg.MessageID)),
		MappedMessageID: database.NullInt64(int64(userMsgID)),
		MessageKind:     database.NullString(msg.Kind),
		Direction:       database.NullString(string(database.DirectionAdminToUser)),
		Outcome:         OutcomeOK,
	})
	return nil
}

// PropagateUserEdit pushes an edited user message to every admin-side
// counterpart. Each counterpart is attempted independently.
func (s *Service) PropagateUserEdit(ctx context.Context, msg InboundMessage) error {
	mappings, err := s.store.MappingsByUserMessage(ctx, msg.ChatID, msg.MessageID, database.DirectionUserToAdmin)
	if err != nil {
		return err
	}

	for _, m := range mappings {
		s.propagateEdit(ctx, msg, m.AdminChatID, m.AdminMessageID, EventEditSyncUserToAdmin)
	}
	return nil
}

// PropagateAdminEdit pushes an edited admin message to every user-side
// counterpart, covering both direct replies and broadcast copies.
func (s *Service) PropagateAdminEdit(ctx context.Context, ac AdminContext, msg InboundMessage) error {
	mappings, err := s.store.MappingsByAdminMessage(ctx, ac.AdminChatID, msg.MessageID,
		database.DirectionAdminToUser, database.DirectionBroadcast)
	if err != nil {
		return err
	}

	for _, m := range mappings {
		s.propagateEdit(ctx, msg, m.UserChatID, m.UserMessageID, EventEditSyncAdminToUser)
	}
	return nil
}

func (s *Service) propagateEdit(ctx context.Context, msg InboundMessage, chatID int64, messageID int, eventType string) {
	var err error
	switch {
	case msg.PlainText:
		err = s.gateway.EditText(ctx, chatID, messageID, msg.Text)
	case msg.Text != "":
		err = s.gateway.EditCaption(ctx, chatID, messageID, msg.Text)
	default:
		// Media edits without a caption have nothing to propagate.
		return
	}

	ev := &database.AuditEvent{
		EventType:       eventType,
		ChatID:          database.NullInt64(msg.ChatID),
		MessageID:       database.NullInt64(int64(msg.MessageID)),
		MappedMessageID: database.NullInt64(int64(messageID)),
		IsEdited:        true,
		Outcome:         OutcomeOK,
	}
	if err != nil {
		s.logger.WarnContext(ctx, "Edit propagation failed",
			"chat_id", chatID, "message_id", messageID, "error", err)
		ev.Outcome = OutcomeError
		ev.ErrorClass = database.NullString(string(KindOf(err)))
	}
	s.audit(ctx, ev)
}

// Broadcast sends a message to every known non-admin user with an
// inter-send delay. When text is non-empty it is sent as plain text;
// otherwise the message at sourceMessageID in the admin chat is copied.
// Partial failure is expected and reported in the tally.
func (s *Service) Broadcast(ctx context.Context, adminChatID int64, sourceMessageID int, text string) (BroadcastResult, error) {
	var result BroadcastResult

	userIDs, err := s.store.AllUserIDs(ctx, s.opts.AdminUserIDs)
	if err != nil {
		return result, err
	}

	for i, userID := range userIDs {
		if i > 0 && s.opts.BroadcastDelay > 0 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(s.opts.BroadcastDelay):
			}
		}

		var sentID int
		var sendErr error
		if text != "" {
			sentID, sendErr = s.gateway.SendText(ctx, userID, 0, text)
		} else {
			sentID, sendErr = s.gateway.CopyMessage(ctx, adminChatID, sourceMessageID, userID, 0)
		}

		if sendErr != nil {
			result.Failed++
			s.logger.WarnContext(ctx, "Broadcast delivery failed", "user_id", userID, "error", sendErr)
			s.audit(ctx, &database.AuditEvent{
				EventType:   EventBroadcastOut,
				UserID:      database.NullInt64(userID),
				AdminChatID: database.NullInt64(adminChatID),
				Direction:   database.NullString(string(database.DirectionBroadcast)),
				Outcome:     OutcomeError,
				ErrorClass:  database.NullString(string(KindOf(sendErr))),
			})
			continue
		}

		result.Sent++
		mapping := &database.MessageMapping{
			UserChatID:     userID,
			AdminChatID:    adminChatID,
			UserMessageID:  sentID,
			AdminMessageID: sourceMessageID,
			Direction:      database.DirectionBroadcast,
		}
		if err := s.store.InsertMapping(ctx, mapping); err != nil {
			s.logger.ErrorContext(ctx, "Broadcast mapping not saved", "user_id", userID, "error", err)
		}
		s.audit(ctx, &database.AuditEvent{
			EventType:       EventBroadcastOut,
			UserID:          database.NullInt64(userID),
			AdminChatID:     database.NullInt64(adminChatID),
			MappedMessageID: database.NullInt64(int64(sentID)),
			Direction:       database.NullString(string(database.DirectionBroadcast)),
			Outcome:         OutcomeOK,
		})
	}

	s.logger.InfoContext(ctx, "Broadcast finished",
		"recipients", len(userIDs), "sent", result.Sent, "failed", result.Failed)
	return result, nil
}

// DeleteRelayedPair removes every user-side counterpart of an admin-side
// message and drops the mapping rows. Returns how many mappings were
// removed. Gateway deletion failures are logged but do not keep the rows.
func (s *Service) DeleteRelayedPair(ctx context.Context, adminChatID int64, adminMessageID int) (int64, error) {
	mappings, err := s.store.MappingsByAdminMessage(ctx, adminChatID, adminMessageID)
	if err != nil {
		return 0, err
	}

	for _, m := range mappings {
		if err := s.gateway.DeleteMessage(ctx, m.UserChatID, m.UserMessageID); err != nil {
			s.logger.WarnContext(ctx, "User-side delete failed",
				"user_chat_id", m.UserChatID, "user_message_id", m.UserMessageID, "error", err)
		}
	}

	count, err := s.store.DeleteMappingsByAdminMessage(ctx, adminChatID, adminMessageID)
	if err != nil {
		return 0, err
	}

	s.audit(ctx, &database.AuditEvent{
		EventType:   EventDeletePair,
		AdminChatID: database.NullInt64(adminChatID),
		MessageID:   database.NullInt64(int64(adminMessageID)),
		Outcome:     OutcomeOK,
	})
	return count, nil
}

// ErrTargetBanned is returned by SetSession when the requested target is
// actively banned.
var ErrTargetBanned = errors.New("target user is banned")

// SetSession points an admin's sticky session at a user, refusing banned
// targets. A zero userID clears the session.
func (s *Service) SetSession(ctx context.Context, adminChatID, userID int64) error {
	if userID != 0 {
		ban, err := s.ledger.ActiveBan(ctx, userID)
		if err != nil {
			return err
		}
		if ban != nil {
			return ErrTargetBanned
		}
	}
	return s.store.SetSessionTarget(ctx, adminChatID, userID)
}

// Stats aggregates the audit log over a trailing window.
func (s *Service) Stats(ctx context.Context, window time.Duration) ([]database.StatCount, []database.UserEventCount, error) {
	since := database.TimeText(s.now().Add(-window))

	counts, err := s.store.StatsCounts(ctx, since)
	if err != nil {
		return nil, nil, err
	}
	top, err := s.store.TopUsersByEvents(ctx, since, 10)
	if err != nil {
		return nil, nil, err
	}
	return counts, top, nil
}

// notify sends a user-facing notice, logging but otherwise ignoring
// delivery failures.
func (s *Service) notify(ctx context.Context, chatID int64, threadID int, text string) {
	if _, err := s.gateway.SendText(ctx, chatID, threadID, text); err != nil {
		s.logger.WarnContext(ctx, "Notice delivery failed", "chat_id", chatID, "error", err)
	}
}

// audit records an event, logging but never propagating store failures:
// a broken audit trail must not break the relay.
func (s *Service) audit(ctx context.Context, ev *database.AuditEvent) {
	if err := s.store.RecordAuditEvent(ctx, ev); err != nil {
		s.logger.ErrorContext(ctx, "Audit event not recorded", "event_type", ev.EventType, "error", err)
	}
}

func (s *Service) auditForwardError(ctx context.Context, userID int64, msg InboundMessage, adminChatID int64, err error) {
	s.audit(ctx, &database.AuditEvent{
		EventType:   EventForwardUserToAdmin,
		UserID:      database.NullInt64(userID),
		AdminChatID: database.NullInt64(adminChatID),
		ChatID:      database.NullInt64(msg.ChatID),
		MessageID:   database.NullInt64(int64(msg.MessageID)),
		MessageKind: database.NullString(msg.Kind),
		Direction:   database.NullString(string(database.DirectionUserToAdmin)),
		Outcome:     OutcomeError,
		ErrorClass:  database.NullString(string(KindOf(err))),
	})
}
