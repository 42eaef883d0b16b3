// Package relay implements the message-mapping and routing engine: ban
// ledger, auto-reply matcher, topic binder, routing resolver, and the
// relay orchestrator that sequences them. It talks to Telegram only
// through the Gateway interface.
package relay

import (
	"context"
	"errors"
)

// ErrorKind classifies a gateway delivery failure.
type ErrorKind string

// Gateway failure kinds. Only KindRejected influences control flow (a
// permanently rejected delivery is never retried); the others exist for
// auditing.
const (
	KindRejected  ErrorKind = "rejected"
	KindTransient ErrorKind = "transient"
	KindMalformed ErrorKind = "malformed"
)

// GatewayError wraps a transport failure with its classification.
type GatewayError struct {
	Kind ErrorKind
	Err  error
}

func (e *GatewayError) Error() string {
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind from a gateway error, defaulting to
// transient for unclassified errors.
func KindOf(err error) ErrorKind {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindTransient
}

// Gateway is the narrow messaging-transport interface the relay engine
// depends on. A threadID of 0 means "no forum thread". All message ids
// are Telegram message ids within their chat.
type Gateway interface {
	// SendText sends a plain text message and returns its message id.
	SendText(ctx context.Context, chatID int64, threadID int, text string) (int, error)

	// CopyMessage duplicates a message into another chat without a
	// forwarded-from header and returns the new message id.
	CopyMessage(ctx context.Context, fromChatID int64, messageID int, toChatID int64, threadID int) (int, error)

	// ForwardMessage forwards a message, keeping its origin header, and
	// returns the new message id.
	ForwardMessage(ctx context.Context, fromChatID int64, messageID int, toChatID int64) (int, error)

	// EditText replaces the text of a previously sent text message.
	EditText(ctx context.Context, chatID int64, messageID int, text string) error

	// EditCaption replaces the caption of a previously sent media message.
	EditCaption(ctx context.Context, chatID int64, messageID int, caption string) error

	// DeleteMessage removes a message.
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error

	// CreateThread allocates a new forum topic and returns its thread id.
	CreateThread(ctx context.Context, chatID int64, title string) (int, error)

	// RenameThread changes a forum topic's title.
	RenameThread(ctx context.Context, chatID int64, threadID int, title string) error

	// AttachModerationActions puts the moderation inline keyboard on a
	// relayed admin-side copy.
	AttachModerationActions(ctx context.Context, chatID int64, messageID int, userID int64) error
}
