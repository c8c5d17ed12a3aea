// Package filters отсекает апдейты, которые бот не обслуживает.
package filters

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// PrivateFilter пропускает только личные сообщения: платёжные диалоги
// (номера операций, пароли, суммы) в групповых чатах недопустимы.
type PrivateFilter struct{}

// NewPrivateFilter создаёт фильтр личных сообщений.
func NewPrivateFilter() *PrivateFilter {
	return &PrivateFilter{}
}

// CheckAccess сообщает, можно ли обрабатывать сообщение.
func (f *PrivateFilter) CheckAccess(message *tgbotapi.Message) bool {
	if message == nil || message.Chat == nil || message.From == nil {
		return false
	}
	if message.From.IsBot {
		return false
	}
	if !message.Chat.IsPrivate() {
		log.WithFields(log.Fields{
			"chat_id":   message.Chat.ID,
			"chat_type": message.Chat.Type,
			"user_id":   message.From.ID,
		}).Debug("Сообщение не из лички — игнорируем")
		return false
	}
	return true
}
