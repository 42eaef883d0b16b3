package relay_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nkoval/relaybot/internal/database"
	"github.com/nkoval/relaybot/internal/relay"
)

func newTestStore(t *testing.T) database.Store {
	t.Helper()

	db, err := database.NewDB(":memory:")
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	return database.NewStore(db, nil)
}

func TestParseExpiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		token   string
		want    time.Time
		wantErr bool
	}{
		{name: "two hours", token: "2h", want: now.Add(2 * time.Hour)},
		{name: "thirty minutes", token: "30m", want: now.Add(30 * time.Minute)},
		{name: "three days", token: "3d", want: now.Add(3 * 24 * time.Hour)},
		{name: "one week", token: "1w", want: now.Add(7 * 24 * time.Hour)},
		{name: "absolute date", token: "2027-01-01", want: time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)},
		{name: "zero amount", token: "0h", wantErr: true},
		{name: "negative amount", token: "-1d", wantErr: true},
		{name: "unknown unit", token: "5y", wantErr: true},
		{name: "garbage", token: "banana", wantErr: true},
		{name: "empty", token: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := relay.ParseExpiry(tt.token, now)
			if tt.wantErr {
				if !errors.Is(err, relay.ErrInvalidExpiry) {
					t.Errorf("ParseExpiry(%q) error = %v, want ErrInvalidExpiry", tt.token, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseExpiry(%q) error = %v", tt.token, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseExpiry(%q) = %v, want %v", tt.token, got, tt.want)
			}
		})
	}
}

func TestLedger_LazyExpiry(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ledger := relay.NewLedger(store, nil)
	ctx := context.Background()

	// A ban whose expiry is already in the past.
	past := time.Now().Add(-time.Hour)
	if _, err := ledger.Ban(ctx, 1001, 42, "spam", "", &past); err != nil {
		t.Fatalf("Ban() error = %v", err)
	}

	ban, err := ledger.ActiveBan(ctx, 1001)
	if err != nil {
		t.Fatalf("ActiveBan() error = %v", err)
	}
	if ban != nil {
		t.Errorf("ActiveBan() = %+v, want nil for expired ban", ban)
	}

	// Reading removes the row; a second read stays clean.
	row, err := store.BanRow(ctx, 1001)
	if err != nil {
		t.Fatalf("BanRow() error = %v", err)
	}
	if row != nil {
		t.Errorf("expired ban row still present: %+v", row)
	}

	ban, err = ledger.ActiveBan(ctx, 1001)
	if err != nil {
		t.Fatalf("ActiveBan() second call error = %v", err)
	}
	if ban != nil {
		t.Errorf("ActiveBan() second call = %+v, want nil", ban)
	}
}

func TestLedger_BanReportsAlreadyBanned(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ledger := relay.NewLedger(store, nil)
	ctx := context.Background()

	already, err := ledger.Ban(ctx, 1001, 42, "spam", "", nil)
	if err != nil {
		t.Fatalf("Ban() error = %v", err)
	}
	if already {
		t.Error("first Ban() reported already banned")
	}

	future := time.Now().Add(time.Hour)
	already, err = ledger.Ban(ctx, 1001, 43, "spam again", "repeat offender", &future)
	if err != nil {
		t.Fatalf("Ban() refresh error = %v", err)
	}
	if !already {
		t.Error("refresh Ban() did not report already banned")
	}

	ban, err := ledger.ActiveBan(ctx, 1001)
	if err != nil {
		t.Fatalf("ActiveBan() error = %v", err)
	}
	if ban == nil {
		t.Fatal("ActiveBan() = nil after refresh")
	}
	if ban.OperatorAdminID != 43 || !ban.ExpiresAt.Valid {
		t.Errorf("refreshed ban = %+v, want operator 43 with expiry", ban)
	}
}

func TestLedger_BanClearsSessionsTargetingUser(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ledger := relay.NewLedger(store, nil)
	ctx := context.Background()

	if err := store.SetSessionTarget(ctx, 300, 1001); err != nil {
		t.Fatalf("SetSessionTarget() error = %v", err)
	}
	if err := store.SetSessionTarget(ctx, 301, 2002); err != nil {
		t.Fatalf("SetSessionTarget() error = %v", err)
	}

	if _, err := ledger.Ban(ctx, 1001, 42, "", "", nil); err != nil {
		t.Fatalf("Ban() error = %v", err)
	}

	target, err := store.SessionTarget(ctx, 300)
	if err != nil {
		t.Fatalf("SessionTarget() error = %v", err)
	}
	if target != 0 {
		t.Errorf("session targeting banned user survived: %d", target)
	}

	target, err = store.SessionTarget(ctx, 301)
	if err != nil {
		t.Fatalf("SessionTarget() error = %v", err)
	}
	if target != 2002 {
		t.Errorf("unrelated session changed: got %d, want 2002", target)
	}
}

func TestLedger_ActiveBansRevalidates(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ledger := relay.NewLedger(store, nil)
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	if _, err := ledger.Ban(ctx, 1, 42, "", "", &past); err != nil {
		t.Fatalf("Ban() error = %v", err)
	}
	if _, err := ledger.Ban(ctx, 2, 42, "", "", &future); err != nil {
		t.Fatalf("Ban() error = %v", err)
	}
	if _, err := ledger.Ban(ctx, 3, 42, "", "", nil); err != nil {
		t.Fatalf("Ban() error = %v", err)
	}

	bans, err := ledger.ActiveBans(ctx, 10)
	if err != nil {
		t.Fatalf("ActiveBans() error = %v", err)
	}
	if len(bans) != 2 {
		t.Fatalf("ActiveBans() returned %d bans, want 2", len(bans))
	}
	for _, b := range bans {
		if b.UserID == 1 {
			t.Error("ActiveBans() included expired ban for user 1")
		}
	}

	// The expired one is gone from the table, not just filtered.
	row, err := store.BanRow(ctx, 1)
	if err != nil {
		t.Fatalf("BanRow() error = %v", err)
	}
	if row != nil {
		t.Error("expired ban row not deleted during listing")
	}
}

func TestRemainingText(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		ban  *database.BanRecord
		want string
	}{
		{name: "nil ban", ban: nil, want: "permanent"},
		{name: "permanent", ban: &database.BanRecord{UserID: 1}, want: "permanent"},
		{
			name: "days and hours",
			ban:  &database.BanRecord{UserID: 1, ExpiresAt: database.NullString(database.TimeText(now.Add(50 * time.Hour)))},
			want: "2d2h",
		},
		{
			name: "hours and minutes",
			ban:  &database.BanRecord{UserID: 1, ExpiresAt: database.NullString(database.TimeText(now.Add(90 * time.Minute)))},
			want: "1h30m",
		},
		{
			name: "minutes only",
			ban:  &database.BanRecord{UserID: 1, ExpiresAt: database.NullString(database.TimeText(now.Add(5 * time.Minute)))},
			want: "5m",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := relay.RemainingText(tt.ban, now); got != tt.want {
				t.Errorf("RemainingText() = %q, want %q", got, tt.want)
			}
		})
	}
}
