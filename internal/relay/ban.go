package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/nkoval/relaybot/internal/database"
)

// ErrInvalidExpiry is returned when an expiry token is neither a valid
// relative duration nor a valid absolute date. Distinct from "no token",
// which means an explicitly permanent ban.
var ErrInvalidExpiry = errors.New("not a valid expiry")

var relativeExpiryRe = regexp.MustCompile(`^(\d+)([mhdw])$`)

// ParseExpiry parses a ban expiry token relative to now. Accepted forms:
// "<n><unit>" with unit m/h/d/w and n a positive integer, or an absolute
// "YYYY-MM-DD" date interpreted as UTC midnight.
func ParseExpiry(token string, now time.Time) (time.Time, error) {
	if m := relativeExpiryRe.FindStringSubmatch(token); m != nil {
		amount, err := strconv.Atoi(m[1])
		if err != nil || amount <= 0 {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidExpiry, token)
		}
		var unit time.Duration
		switch m[2] {
		case "m":
			unit = time.Minute
		case "h":
			unit = time.Hour
		case "d":
			unit = 24 * time.Hour
		case "w":
			unit = 7 * 24 * time.Hour
		}
		return now.Add(time.Duration(amount) * unit), nil
	}

	if t, err := time.Parse("2006-01-02", token); err == nil {
		return t.UTC(), nil
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidExpiry, token)
}

// Ledger owns the ban lifecycle on top of the store: idempotent bans,
// unbans, and expiry evaluation. Expired bans are deleted lazily when
// read; a periodic sweep may remove them earlier without changing what
// callers observe.
type Ledger struct {
	store  database.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewLedger creates a ban ledger over the store.
func NewLedger(store database.Store, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Ledger{
		store:  store,
		logger: logger.With("component", "ban_ledger"),
		now:    time.Now,
	}
}

// Ban creates or refreshes a ban. A nil expiresAt means permanent.
// Reports whether the user was already actively banned before this call.
// Every ban write clears any admin session pointing at the user, so no
// admin keeps a banned user as their sticky target.
func (l *Ledger) Ban(ctx context.Context, userID, operatorID int64, reason, note string, expiresAt *time.Time) (already bool, err error) {
	existing, err := l.ActiveBan(ctx, userID)
	if err != nil {
		return false, err
	}
	already = existing != nil

	ban := &database.BanRecord{
		UserID:          userID,
		OperatorAdminID: operatorID,
		Reason:          database.NullString(reason),
		Note:            database.NullString(note),
	}
	if already {
		ban.CreatedAt = existing.CreatedAt
	}
	if expiresAt != nil {
		ban.ExpiresAt = database.NullString(database.TimeText(*expiresAt))
	}

	if err := l.store.UpsertBan(ctx, ban); err != nil {
		return already, err
	}

	cleared, err := l.store.ClearSessionsTargeting(ctx, userID)
	if err != nil {
		return already, fmt.Errorf("ban saved but session cleanup failed: %w", err)
	}

	l.logger.InfoContext(ctx, "User banned",
		"user_id", userID, "operator", operatorID,
		"already_banned", already, "sessions_cleared", cleared)
	return already, nil
}

// Unban removes a ban and reports whether one existed.
func (l *Ledger) Unban(ctx context.Context, userID int64) (bool, error) {
	existed, err := l.store.DeleteBan(ctx, userID)
	if err != nil {
		return false, err
	}
	if existed {
		l.logger.InfoContext(ctx, "User unbanned", "user_id", userID)
	}
	return existed, nil
}

// ActiveBan returns the user's ban if present and unexpired. Reading an
// expired ban deletes it as a side effect.
func (l *Ledger) ActiveBan(ctx context.Context, userID int64) (*database.BanRecord, error) {
	ban, err := l.store.BanRow(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ban == nil {
		return nil, nil
	}

	if l.expired(ctx, ban) {
		if _, err := l.store.DeleteBan(ctx, userID); err != nil {
			return nil, fmt.Errorf("failed to expire ban for user %d: %w", userID, err)
		}
		l.logger.DebugContext(ctx, "Expired ban removed on read", "user_id", userID)
		return nil, nil
	}
	return ban, nil
}

// ActiveBans returns up to limit bans ordered by most recently updated,
// re-validating each for expiry. Bans that expired since listing are
// deleted and dropped from the result.
func (l *Ledger) ActiveBans(ctx context.Context, limit int) ([]database.BanRecord, error) {
	rows, err := l.store.RecentBans(ctx, limit)
	if err != nil {
		return nil, err
	}

	active := rows[:0]
	for _, ban := range rows {
		if l.expired(ctx, &ban) {
			if _, err := l.store.DeleteBan(ctx, ban.UserID); err != nil {
				return nil, fmt.Errorf("failed to expire ban for user %d: %w", ban.UserID, err)
			}
			continue
		}
		active = append(active, ban)
	}
	return active, nil
}

// SweepExpired deletes every expired ban in one pass. Used by the
// periodic scheduler job.
func (l *Ledger) SweepExpired(ctx context.Context) (int64, error) {
	return l.store.DeleteExpiredBans(ctx, database.TimeText(l.now()))
}

func (l *Ledger) expired(ctx context.Context, ban *database.BanRecord) bool {
	if !ban.ExpiresAt.Valid {
		return false
	}
	expiry, err := database.ParseTimeText(ban.ExpiresAt.String)
	if err != nil {
		// An unreadable expiry is treated as permanent rather than
		// silently unbanning the user.
		l.logger.WarnContext(ctx, "Unparseable ban expiry", "user_id", ban.UserID, "expires_at", ban.ExpiresAt.String)
		return false
	}
	return !expiry.After(l.now())
}

// RemainingText renders how long a ban has left, for user-facing notices:
// "permanent" for bans without expiry, otherwise a compact duration like
// "2d3h" or "45m".
func RemainingText(ban *database.BanRecord, now time.Time) string {
	if ban == nil || !ban.ExpiresAt.Valid {
		return "permanent"
	}
	expiry, err := database.ParseTimeText(ban.ExpiresAt.String)
	if err != nil {
		return "permanent"
	}

	left := expiry.Sub(now)
	if left <= 0 {
		return "0m"
	}

	days := int(left.Hours()) / 24
	hours := int(left.Hours()) % 24
	minutes := int(left.Minutes()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd%dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh%dm", hours, minutes)
	default:
		if minutes < 1 {
			minutes = 1
		}
		return fmt.Sprintf("%dm", minutes)
	}
}
