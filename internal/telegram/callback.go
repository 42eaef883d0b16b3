package telegram

import (
	"fmt"

	"github.com/go-telegram/bot/models"
)

// Callback data prefixes. Data is colon-separated: prefix, then ids.
const (
	CBSession      = "sess"     // sess:<user_id>
	CBSessionClear = "sessclear"
	CBBan          = "ban"     // ban:<user_id>
	CBUnban        = "unban"   // unban:<user_id>
	CBShowID       = "uid"     // uid:<user_id>
	CBDeletePair   = "delpair" // delpair:<admin_message_id>
	CBBanMenu      = "banmenu" // banmenu:<user_id>:<admin_message_id>
	CBActionMenu   = "actmenu" // actmenu:<user_id>:<admin_message_id>
	CBBanFor       = "banfor"  // banfor:<user_id>:<duration>:<admin_message_id>
)

// SessionData builds the callback payload for selecting a session target.
func SessionData(userID int64) string {
	return fmt.Sprintf("%s:%d", CBSession, userID)
}

// ModerationKeyboard is the inline keyboard attached to every relayed
// user message: quick session targeting, identity reveal, the ban
// submenu, and delete-pair.
func ModerationKeyboard(userID int64, adminMessageID int) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "💬 Session", CallbackData: SessionData(userID)},
				{Text: "🆔 ID", CallbackData: fmt.Sprintf("%s:%d", CBShowID, userID)},
				{Text: "🚫 Ban…", CallbackData: fmt.Sprintf("%s:%d:%d", CBBanMenu, userID, adminMessageID)},
			},
			{
				{Text: "🗑 Delete pair", CallbackData: fmt.Sprintf("%s:%d", CBDeletePair, adminMessageID)},
			},
		},
	}
}

// BanDurationKeyboard is the ban submenu: duration presets, permanent,
// unban, and a way back to the moderation keyboard.
func BanDurationKeyboard(userID int64, adminMessageID int) *models.InlineKeyboardMarkup {
	banFor := func(dur string) string {
		return fmt.Sprintf("%s:%d:%s:%d", CBBanFor, userID, dur, adminMessageID)
	}
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "1h", CallbackData: banFor("1h")},
				{Text: "1d", CallbackData: banFor("1d")},
				{Text: "1w", CallbackData: banFor("1w")},
				{Text: "Forever", CallbackData: fmt.Sprintf("%s:%d", CBBan, userID)},
			},
			{
				{Text: "✅ Unban", CallbackData: fmt.Sprintf("%s:%d", CBUnban, userID)},
				{Text: "← Back", CallbackData: fmt.Sprintf("%s:%d:%d", CBActionMenu, userID, adminMessageID)},
			},
		},
	}
}
