// Package wallet — handlers.go: показ балансов и переводы бот↔сайт
// в личных сообщениях.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"wayxpay.dev/wallet-bot/internal/common"
	"wayxpay.dev/wallet-bot/internal/features/accounts"
)

type dialogStep int

const (
	stepNone dialogStep = iota
	stepToSiteAmount
	stepFromSiteAmount
)

// Handler обрабатывает команды кошелька.
type Handler struct {
	service  *Service
	accounts *accounts.Service
	bot      *tgbotapi.BotAPI

	mu      sync.Mutex
	dialogs map[int64]dialogStep
}

// NewHandler создаёт обработчик команд кошелька.
func NewHandler(service *Service, accountsService *accounts.Service, bot *tgbotapi.BotAPI) *Handler {
	return &Handler{
		service:  service,
		accounts: accountsService,
		bot:      bot,
		dialogs:  make(map[int64]dialogStep),
	}
}

// HandleBalance показывает балансы кошелька и актуальный баланс сайта.
func (h *Handler) HandleBalance(ctx context.Context, chatID, userID int64) {
	account, ok := h.requireAccount(ctx, chatID, userID)
	if !ok {
		return
	}

	w, err := h.service.Get(ctx, userID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка получения кошелька")
		h.sendMessage(chatID, "❌ Ошибка получения баланса")
		return
	}

	website := w.WebsiteBalance
	if fresh, err := h.service.RefreshWebsiteBalance(ctx, userID, account.PlayerID); err == nil {
		website = fresh
	} else {
		log.WithError(err).WithField("user_id", userID).Debug("Баланс сайта показан из кэша")
	}

	h.sendMessage(chatID, fmt.Sprintf(
		"💰 Кошелёк бота: %s\n🌐 Баланс сайта: %s\n🎁 Игровой баланс: %s\n⭐ Очки: %d",
		common.FormatAmount(w.BotBalance),
		common.FormatAmount(website),
		common.FormatAmount(w.GameBalance),
		w.GamePoints,
	))
}

// HandleToSiteStart начинает перевод из кошелька бота на сайт.
func (h *Handler) HandleToSiteStart(ctx context.Context, chatID, userID int64) {
	if _, ok := h.requireAccount(ctx, chatID, userID); !ok {
		return
	}
	h.setDialog(userID, stepToSiteAmount)
	h.sendMessage(chatID, "🌐 Сколько перевести на игровой счёт? (SYP)")
}

// HandleFromSiteStart начинает снятие с сайта в кошелёк бота.
func (h *Handler) HandleFromSiteStart(ctx context.Context, chatID, userID int64) {
	if _, ok := h.requireAccount(ctx, chatID, userID); !ok {
		return
	}
	h.setDialog(userID, stepFromSiteAmount)
	h.sendMessage(chatID, "🔄 Сколько снять с игрового счёта? (SYP)")
}

// HandleDialog продолжает начатый диалог перевода. Возвращает true,
// если сообщение было его шагом.
func (h *Handler) HandleDialog(ctx context.Context, chatID, userID int64, text string) bool {
	step := h.getDialog(userID)
	if step == stepNone {
		return false
	}

	amount, err := parseAmount(text)
	if err != nil {
		h.sendMessage(chatID, "❌ Сумма должна быть положительным числом")
		return true
	}
	h.clearDialog(userID)

	switch step {
	case stepToSiteAmount:
		h.chargeWebsite(ctx, chatID, userID, amount)
	case stepFromSiteAmount:
		h.withdrawWebsite(ctx, chatID, userID, amount)
	}
	return true
}

func (h *Handler) chargeWebsite(ctx context.Context, chatID, userID, amount int64) {
	account, ok := h.requireAccount(ctx, chatID, userID)
	if !ok {
		return
	}

	draws, err := h.service.ChargeWebsite(ctx, userID, account.PlayerID, amount)
	if err != nil {
		h.reportTransferError(chatID, err)
		return
	}

	text := fmt.Sprintf("✅ Переведено на игровой счёт: %s", common.FormatAmount(amount))
	for _, d := range draws {
		if d.Bucket == BucketGame && d.Amount > 0 {
			text += fmt.Sprintf("\n(из них бонусных: %s)", common.FormatAmount(d.Amount))
		}
	}
	h.sendMessage(chatID, text)
}

func (h *Handler) withdrawWebsite(ctx context.Context, chatID, userID, amount int64) {
	account, ok := h.requireAccount(ctx, chatID, userID)
	if !ok {
		return
	}

	if err := h.service.WithdrawWebsite(ctx, userID, account.PlayerID, amount); err != nil {
		h.reportTransferError(chatID, err)
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("✅ Снято с игрового счёта: %s", common.FormatAmount(amount)))
}

func (h *Handler) reportTransferError(chatID int64, err error) {
	switch {
	case errors.Is(err, common.ErrInsufficientFunds):
		h.sendMessage(chatID, "❌ Недостаточно средств")
	case errors.Is(err, common.ErrInvalidAmount):
		h.sendMessage(chatID, "❌ Сумма должна быть положительной")
	case common.IsGateway(err):
		log.WithError(err).Error("Сайт отклонил перевод")
		h.sendMessage(chatID, "❌ Сайт временно недоступен, попробуйте позже")
	default:
		log.WithError(err).Error("Ошибка перевода")
		h.sendMessage(chatID, "❌ Внутренняя ошибка, обратитесь к оператору")
	}
}

func parseAmount(text string) (int64, error) {
	amount, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil {
		return 0, common.ErrInvalidAmount
	}
	if amount <= 0 {
		return 0, common.ErrInvalidAmount
	}
	return amount, nil
}

func (h *Handler) requireAccount(ctx context.Context, chatID, userID int64) (*accounts.Account, bool) {
	account, err := h.accounts.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrAccountNotFound) {
			h.sendMessage(chatID, "❌ Сначала зарегистрируйтесь: /register")
		} else {
			log.WithError(err).WithField("user_id", userID).Error("Ошибка получения аккаунта")
			h.sendMessage(chatID, "❌ Внутренняя ошибка, попробуйте позже")
		}
		return nil, false
	}
	return account, true
}

func (h *Handler) getDialog(userID int64) dialogStep {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dialogs[userID]
}

func (h *Handler) setDialog(userID int64, step dialogStep) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dialogs[userID] = step
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
