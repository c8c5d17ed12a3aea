// Package accounts — handlers.go ведёт диалог регистрации в личных
// сообщениях: логин → пароль → создание игрока на сайте.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"wayxpay.dev/wallet-bot/internal/common"
)

type dialogStep int

const (
	stepNone dialogStep = iota
	stepUsername
	stepPassword
)

// dialog — текущее место пользователя в диалоге регистрации.
// Чисто интерфейсное состояние: корректность регистрации обеспечивает
// уникальный индекс в БД, а не эта map.
type dialog struct {
	step     dialogStep
	username string
}

// Handler обрабатывает команды учётных записей.
type Handler struct {
	service *Service
	bot     *tgbotapi.BotAPI

	mu      sync.Mutex
	dialogs map[int64]*dialog
}

// NewHandler создаёт обработчик регистрации.
func NewHandler(service *Service, bot *tgbotapi.BotAPI) *Handler {
	return &Handler{
		service: service,
		bot:     bot,
		dialogs: make(map[int64]*dialog),
	}
}

// HandleRegisterStart начинает диалог регистрации.
func (h *Handler) HandleRegisterStart(ctx context.Context, chatID, userID int64) {
	if _, err := h.service.Get(ctx, userID); err == nil {
		h.sendMessage(chatID, "✅ У вас уже есть аккаунт. Команда /balance покажет балансы.")
		return
	} else if !errors.Is(err, common.ErrAccountNotFound) {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка проверки аккаунта")
		h.sendMessage(chatID, "❌ Внутренняя ошибка, попробуйте позже")
		return
	}

	h.setDialog(userID, &dialog{step: stepUsername})
	h.sendMessage(chatID, "📝 Придумайте логин для сайта (латиница, цифры и _, от 4 символов):")
}

// HandleDialog продолжает начатый диалог. Возвращает true, если
// сообщение было шагом регистрации.
func (h *Handler) HandleDialog(ctx context.Context, chatID, userID int64, firstName, text string) bool {
	d := h.getDialog(userID)
	if d == nil {
		return false
	}

	switch d.step {
	case stepUsername:
		d.username = strings.TrimSpace(text)
		d.step = stepPassword
		h.setDialog(userID, d)
		h.sendMessage(chatID, "🔐 Теперь пароль (не короче 6 символов):")
		return true

	case stepPassword:
		h.clearDialog(userID)
		h.finishRegistration(ctx, chatID, userID, firstName, d.username, text)
		return true
	}
	return false
}

func (h *Handler) finishRegistration(ctx context.Context, chatID, userID int64, firstName, username, password string) {
	a, err := h.service.Register(ctx, userID, firstName, username, password)
	if err != nil {
		switch {
		case common.IsValidation(err):
			h.sendMessage(chatID, "❌ "+err.Error()+"\nНачните заново: /register")
		case errors.Is(err, common.ErrAccountExists):
			h.sendMessage(chatID, "✅ У вас уже есть аккаунт")
		case common.IsGateway(err):
			log.WithError(err).WithField("user_id", userID).Error("Сайт отклонил регистрацию")
			h.sendMessage(chatID, "❌ Сайт не принял регистрацию: возможно, логин занят. Попробуйте другой: /register")
		default:
			log.WithError(err).WithField("user_id", userID).Error("Ошибка регистрации")
			h.sendMessage(chatID, "❌ Внутренняя ошибка, попробуйте позже")
		}
		return
	}

	h.sendMessage(chatID, fmt.Sprintf(
		"🎉 Аккаунт создан!\nЛогин: %s\nID игрока: %s\n\nПополните кошелёк командой /deposit.",
		a.Username, a.PlayerID,
	))
}

func (h *Handler) getDialog(userID int64) *dialog {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dialogs[userID]
}

func (h *Handler) setDialog(userID int64, d *dialog) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dialogs[userID] = d
}

func (h *Handler) clearDialog(userID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.dialogs, userID)
}

func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
