package middleware

import (
	"fmt"
	"runtime/debug"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// RecoverFromPanic гасит панику в горутине обработки апдейта: паника
// одного сообщения не должна ронять весь polling. В журнал уходит
// контекст апдейта — без user_id панику по жалобе не найти.
func RecoverFromPanic(update *tgbotapi.Update) {
	r := recover()
	if r == nil {
		return
	}

	fields := log.Fields{
		"component": "panic_recovery",
		"panic":     fmt.Sprintf("%v", r),
		"stack":     string(debug.Stack()),
	}
	if update != nil {
		fields["update_id"] = update.UpdateID
		if m := update.Message; m != nil {
			if m.From != nil {
				fields["user_id"] = m.From.ID
			}
			if m.Chat != nil {
				fields["chat_id"] = m.Chat.ID
			}
		}
	}
	log.WithFields(fields).Error("ПАНИКА в обработчике — восстановлено")
}
