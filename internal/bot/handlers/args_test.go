package handlers

import (
	"testing"
	"time"

	"github.com/go-telegram/bot/models"
)

func TestCommandArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"no args", "/session", nil},
		{"one arg", "/session 123", []string{"123"}},
		{"bot suffix", "/session@relaybot 123", []string{"123"}},
		{"multiple", "/ban 123 2h spam", []string{"123", "2h", "spam"}},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := commandArgs(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("commandArgs(%q) = %v, want %v", tt.text, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("arg %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestCommandTail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want string
	}{
		{"no tail", "/broadcast", ""},
		{"simple", "/broadcast hello there", "hello there"},
		{"newline", "/broadcast\nhello there", "hello there"},
		{"inner spacing kept", "/rule add exact 1 a | b  c", "add exact 1 a | b  c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := commandTail(tt.text); got != tt.want {
				t.Errorf("commandTail(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestParseBanArgs(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("id only", func(t *testing.T) {
		t.Parallel()
		args, err := parseBanArgs("123", now)
		if err != nil {
			t.Fatalf("parseBanArgs: %v", err)
		}
		if args.UserID != 123 || args.ExpiresAt != nil || args.Reason != "" {
			t.Errorf("got %+v, want bare permanent ban for 123", args)
		}
	})

	t.Run("expiry and reason with note", func(t *testing.T) {
		t.Parallel()
		args, err := parseBanArgs("123 2h spam links | second strike", now)
		if err != nil {
			t.Fatalf("parseBanArgs: %v", err)
		}
		if args.UserID != 123 {
			t.Errorf("UserID = %d, want 123", args.UserID)
		}
		if args.ExpiresAt == nil || !args.ExpiresAt.Equal(now.Add(2*time.Hour)) {
			t.Errorf("ExpiresAt = %v, want %v", args.ExpiresAt, now.Add(2*time.Hour))
		}
		if args.Reason != "spam links" {
			t.Errorf("Reason = %q, want %q", args.Reason, "spam links")
		}
		if args.Note != "second strike" {
			t.Errorf("Note = %q, want %q", args.Note, "second strike")
		}
	})

	t.Run("second token that is not an expiry joins the reason", func(t *testing.T) {
		t.Parallel()
		args, err := parseBanArgs("123 spam links", now)
		if err != nil {
			t.Fatalf("parseBanArgs: %v", err)
		}
		if args.ExpiresAt != nil {
			t.Errorf("ExpiresAt = %v, want nil", args.ExpiresAt)
		}
		if args.Reason != "spam links" {
			t.Errorf("Reason = %q, want %q", args.Reason, "spam links")
		}
	})

	t.Run("missing id", func(t *testing.T) {
		t.Parallel()
		if _, err := parseBanArgs("", now); err == nil {
			t.Error("expected error for empty args")
		}
	})

	t.Run("non-numeric id", func(t *testing.T) {
		t.Parallel()
		if _, err := parseBanArgs("abc 2h", now); err == nil {
			t.Error("expected error for non-numeric id")
		}
	})
}

func TestInbound(t *testing.T) {
	t.Parallel()

	t.Run("text message", func(t *testing.T) {
		t.Parallel()
		msg := &models.Message{ID: 7, Chat: models.Chat{ID: 42}, Text: "hi"}
		m := inbound(msg)
		if !m.PlainText || m.Text != "hi" || m.Kind != "text" {
			t.Errorf("inbound text = %+v", m)
		}
	})

	t.Run("photo with caption", func(t *testing.T) {
		t.Parallel()
		msg := &models.Message{
			ID:      7,
			Chat:    models.Chat{ID: 42},
			Caption: "look",
			Photo:   []models.PhotoSize{{FileID: "f"}},
		}
		m := inbound(msg)
		if m.PlainText || m.Text != "look" || m.Kind != "photo" {
			t.Errorf("inbound photo = %+v", m)
		}
	})

	t.Run("bare sticker", func(t *testing.T) {
		t.Parallel()
		msg := &models.Message{ID: 7, Chat: models.Chat{ID: 42}, Sticker: &models.Sticker{}}
		m := inbound(msg)
		if m.PlainText || m.Text != "" || m.Kind != "sticker" {
			t.Errorf("inbound sticker = %+v", m)
		}
	})
}
