package middleware

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
)

func TestRecoverFromPanic(t *testing.T) {
	update := tgbotapi.Update{
		UpdateID: 7,
		Message: &tgbotapi.Message{
			From: &tgbotapi.User{ID: 1001},
			Chat: &tgbotapi.Chat{ID: 2002},
		},
	}

	assert.NotPanics(t, func() {
		defer RecoverFromPanic(&update)
		panic("boom")
	})

	// Апдейта может не быть вовсе
	assert.NotPanics(t, func() {
		defer RecoverFromPanic(nil)
		panic("boom")
	})
}
