// Package middleware — сквозные обработчики апдейтов: журналирование,
// восстановление после паники, rate limiting.
package middleware

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// LogMessage логирует входящее сообщение. Текст обрезается: в платёжном
// боте пользователи шлют номера операций и пароли, полный текст в
// журнале не нужен.
func LogMessage(message *tgbotapi.Message) {
	if message == nil || message.From == nil {
		return
	}

	preview := message.Text
	if len(preview) > 32 {
		preview = preview[:32] + "…"
	}

	log.WithFields(log.Fields{
		"user_id":  message.From.ID,
		"chat_id":  message.Chat.ID,
		"username": message.From.UserName,
		"text":     preview,
	}).Debug("Входящее сообщение")
}
