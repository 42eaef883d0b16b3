package handlers

import (
	"fmt"

	"github.com/go-telegram/bot/models"

	"github.com/nkoval/relaybot/internal/database"
	"github.com/nkoval/relaybot/internal/telegram"
)

func userLabel(u database.User) string {
	label := u.FullName
	if label == "" && u.Username.Valid {
		label = "@" + u.Username.String
	}
	if label == "" {
		label = "User"
	}
	return fmt.Sprintf("%s (%d)", label, u.UserID)
}

// recentUsersKeyboard renders the session panel: one button per recent
// user that switches the session to them, plus a clear-session button.
func recentUsersKeyboard(users []database.User) *models.InlineKeyboardMarkup {
	rows := make([][]models.InlineKeyboardButton, 0, len(users)+1)
	for _, u := range users {
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: userLabel(u), CallbackData: telegram.SessionData(u.UserID)},
		})
	}
	rows = append(rows, []models.InlineKeyboardButton{
		{Text: "✖ Clear session", CallbackData: telegram.CBSessionClear},
	})
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}
