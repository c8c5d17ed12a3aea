// Package payments — handlers.go ведёт платёжные диалоги в личных
// сообщениях: пополнение (канал → номер операции → сумма), вывод
// (сумма → счёт) и операторские команды закрытия выплат.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"wayxpay.dev/wallet-bot/internal/common"
	"wayxpay.dev/wallet-bot/internal/config"
	"wayxpay.dev/wallet-bot/internal/features/accounts"
	"wayxpay.dev/wallet-bot/internal/features/game"
)

type dialogStep int

const (
	stepNone dialogStep = iota
	stepDepositMethod
	stepDepositID
	stepDepositAmount
	stepWithdrawMethod
	stepWithdrawAmount
	stepWithdrawAccount
	stepOperatorPassword
)

// dialog — позиция пользователя в платёжном диалоге. Только удобство
// интерфейса: от двойных нажатий защищают уникальные индексы и
// условные UPDATE в хранилище, а не эта map.
type dialog struct {
	step       dialogStep
	method     Method
	externalID string
	amount     int64
}

// Доля бонуса от подтверждённого депозита.
const depositBonusFraction = 0.05

// Время жизни операторской сессии.
const operatorSessionTTL = 30 * time.Minute

// Handler обрабатывает платёжные команды.
type Handler struct {
	service  *Service
	accounts *accounts.Service
	game     *game.Service
	cfg      *config.Config
	bot      *tgbotapi.BotAPI

	mu        sync.Mutex
	dialogs   map[int64]*dialog
	operators map[int64]time.Time // userID → когда авторизовался
}

// NewHandler создаёт обработчик платёжных команд.
func NewHandler(service *Service, accountsService *accounts.Service, gameService *game.Service, cfg *config.Config, bot *tgbotapi.BotAPI) *Handler {
	return &Handler{
		service:   service,
		accounts:  accountsService,
		game:      gameService,
		cfg:       cfg,
		bot:       bot,
		dialogs:   make(map[int64]*dialog),
		operators: make(map[int64]time.Time),
	}
}

// --- Пополнение ---

// HandleDepositStart начинает диалог пополнения.
func (h *Handler) HandleDepositStart(ctx context.Context, chatID, userID int64) {
	if _, ok := h.requireAccount(ctx, chatID, userID); !ok {
		return
	}

	h.setDialog(userID, &dialog{step: stepDepositMethod})

	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(string(MethodSyriatel)),
			tgbotapi.NewKeyboardButton(string(MethodBemo)),
			tgbotapi.NewKeyboardButton(string(MethodPayeer)),
		),
	)
	msg := tgbotapi.NewMessage(chatID, "➕ Каким способом пополняете?")
	msg.ReplyMarkup = keyboard
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки клавиатуры способов оплаты")
	}
}

// HandleWithdrawStart начинает диалог вывода.
func (h *Handler) HandleWithdrawStart(ctx context.Context, chatID, userID int64) {
	if _, ok := h.requireAccount(ctx, chatID, userID); !ok {
		return
	}

	h.setDialog(userID, &dialog{step: stepWithdrawMethod})

	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(string(MethodSyriatel)),
			tgbotapi.NewKeyboardButton(string(MethodBemo)),
			tgbotapi.NewKeyboardButton(string(MethodPayeer)),
		),
	)
	msg := tgbotapi.NewMessage(chatID, "➖ Куда выплачивать?")
	msg.ReplyMarkup = keyboard
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки клавиатуры способов выплаты")
	}
}

// HandleDialog продолжает начатый платёжный диалог. Возвращает true,
// если сообщение было его шагом.
func (h *Handler) HandleDialog(ctx context.Context, chatID, userID int64, text string) bool {
	d := h.getDialog(userID)
	if d == nil {
		return false
	}
	text = strings.TrimSpace(text)

	switch d.step {
	case stepDepositMethod:
		h.onDepositMethod(chatID, userID, d, text)
	case stepDepositID:
		h.onDepositID(ctx, chatID, userID, d, text)
	case stepDepositAmount:
		h.onDepositAmount(ctx, chatID, userID, d, text)
	case stepWithdrawMethod:
		h.onWithdrawMethod(chatID, userID, d, text)
	case stepWithdrawAmount:
		h.onWithdrawAmount(chatID, userID, d, text)
	case stepWithdrawAccount:
		h.onWithdrawAccount(ctx, chatID, userID, d, text)
	case stepOperatorPassword:
		h.onOperatorPassword(chatID, userID, text)
	default:
		return false
	}
	return true
}

func (h *Handler) onDepositMethod(chatID, userID int64, d *dialog, text string) {
	method, ok := parseMethod(text)
	if !ok {
		h.sendMessage(chatID, "❌ Выберите способ кнопкой ниже")
		return
	}
	d.method = method
	d.step = stepDepositID
	h.setDialog(userID, d)

	h.sendMessage(chatID, fmt.Sprintf(
		"Переведите средства на счёт:\n\n`%s`\n\nЗатем пришлите номер операции из SMS платёжной сети.",
		h.requisites(method),
	))
}

func (h *Handler) onDepositID(ctx context.Context, chatID, userID int64, d *dialog, text string) {
	account, ok := h.requireAccount(ctx, chatID, userID)
	if !ok {
		h.clearDialog(userID)
		return
	}

	t, err := h.service.RegisterPending(ctx, text, userID, account.PlayerID, d.method)
	if err != nil {
		switch {
		case common.IsValidation(err):
			h.sendMessage(chatID, "❌ "+err.Error())
			return // остаёмся на этом шаге
		case errors.Is(err, common.ErrDuplicateExternalID):
			if t != nil && t.Status == StatusPending && t.UserID == userID {
				// Свой же незавершённый депозит — продолжаем с суммы
				d.externalID = text
				d.step = stepDepositAmount
				h.setDialog(userID, d)
				h.sendMessage(chatID, "⏳ Этот номер уже зарегистрирован. Введите сумму перевода:")
				return
			}
			h.clearDialog(userID)
			h.sendMessage(chatID, "❌ Операция с этим номером уже проведена")
			return
		default:
			log.WithError(err).WithField("user_id", userID).Error("Ошибка регистрации депозита")
			h.clearDialog(userID)
			h.sendMessage(chatID, "❌ Внутренняя ошибка, попробуйте позже")
			return
		}
	}

	d.externalID = text
	d.step = stepDepositAmount
	h.setDialog(userID, d)

	if d.method == MethodPayeer {
		h.sendMessage(chatID, "Введите сумму перевода в USD:")
	} else {
		h.sendMessage(chatID, "Введите сумму перевода в SYP:")
	}
}

func (h *Handler) onDepositAmount(ctx context.Context, chatID, userID int64, d *dialog, text string) {
	amount, err := ParseAmount(text)
	if err != nil {
		h.sendMessage(chatID, "❌ Сумма должна быть положительным числом")
		return
	}

	res, err := h.service.AttachAmount(ctx, d.externalID, userID, amount)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrNoPendingTransaction):
			h.clearDialog(userID)
			h.sendMessage(chatID, "❌ Заявка не найдена, начните заново: /deposit")
		case errors.Is(err, common.ErrInvalidAmount):
			h.sendMessage(chatID, "❌ Сумма должна быть положительной")
		default:
			log.WithError(err).WithField("user_id", userID).Error("Ошибка сверки депозита")
			h.clearDialog(userID)
			h.sendMessage(chatID, "❌ Внутренняя ошибка, попробуйте позже")
		}
		return
	}

	h.clearDialog(userID)
	h.reportReconciliation(ctx, chatID, userID, res)
}

// reportReconciliation отвечает пользователю по исходу сверки и при
// зачислении начисляет бонус.
func (h *Handler) reportReconciliation(ctx context.Context, chatID, userID int64, res ReconciliationResult) {
	switch res.Kind {
	case ResultApproved:
		h.sendMessage(chatID, fmt.Sprintf("✅ Депозит подтверждён! Зачислено %s.", common.FormatAmount(res.Amount)))
		h.awardDepositBonus(ctx, chatID, userID, res.Amount)
	case ResultAwaitingConfirmation:
		h.sendMessage(chatID, "⏳ Сумма записана. Зачислим, как только придёт подтверждение платёжной сети.")
	case ResultAlreadyFinalized:
		h.sendMessage(chatID, "✅ Этот депозит уже зачислен ранее.")
	case ResultAmountMismatch:
		h.sendMessage(chatID, "❌ Сумма не совпала с данными платёжной сети. Заявка отклонена, обратитесь к оператору.")
	default:
		h.sendMessage(chatID, "⏳ Заявка принята в обработку.")
	}
}

// awardDepositBonus начисляет бонус за подтверждённый депозит.
// Ошибки бонуса не портят сам депозит.
func (h *Handler) awardDepositBonus(ctx context.Context, chatID, userID, amount int64) {
	if !h.game.Enabled() {
		return
	}
	bonus := common.Percent(amount, depositBonusFraction)
	if bonus <= 0 {
		return
	}
	granted, err := h.game.AwardBonus(ctx, userID, bonus)
	if err != nil {
		if !errors.Is(err, common.ErrGameCapReached) && !errors.Is(err, common.ErrGamePoolExhausted) {
			log.WithError(err).WithField("user_id", userID).Warn("Не удалось начислить бонус за депозит")
		}
		return
	}
	if err := h.game.AwardPoint(ctx, userID, 1); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("Не удалось начислить очко программы")
	}
	h.sendMessage(chatID, fmt.Sprintf("🎁 Бонус за пополнение: %s на игровой баланс.", common.FormatAmount(granted)))
}

// --- Вывод ---

func (h *Handler) onWithdrawMethod(chatID, userID int64, d *dialog, text string) {
	method, ok := parseMethod(text)
	if !ok {
		h.sendMessage(chatID, "❌ Выберите способ кнопкой ниже")
		return
	}
	d.method = method
	d.step = stepWithdrawAmount
	h.setDialog(userID, d)
	h.sendMessage(chatID, "Введите сумму вывода в SYP:")
}

func (h *Handler) onWithdrawAmount(chatID, userID int64, d *dialog, text string) {
	amount, err := ParseAmount(text)
	if err != nil {
		h.sendMessage(chatID, "❌ Сумма должна быть положительным числом")
		return
	}

	fee, net, err := ComputeWithdrawalFee(amount)
	if err != nil {
		h.sendMessage(chatID, "❌ Сумма должна быть положительной")
		return
	}

	d.amount = amount
	d.step = stepWithdrawAccount
	h.setDialog(userID, d)

	h.sendMessage(chatID, fmt.Sprintf(
		"Комиссия: %s, к выплате: %s.\nВведите номер счёта для выплаты:",
		common.FormatAmount(fee), common.FormatAmount(net),
	))
}

func (h *Handler) onWithdrawAccount(ctx context.Context, chatID, userID int64, d *dialog, text string) {
	account, ok := h.requireAccount(ctx, chatID, userID)
	if !ok {
		h.clearDialog(userID)
		return
	}

	t, err := h.service.RequestWithdrawal(ctx, userID, account.PlayerID, d.amount, d.method, text)
	if err != nil {
		switch {
		case common.IsValidation(err):
			h.sendMessage(chatID, "❌ "+err.Error())
			return
		case errors.Is(err, common.ErrInsufficientFunds):
			h.clearDialog(userID)
			h.sendMessage(chatID, "❌ Недостаточно средств в кошельке бота")
		default:
			log.WithError(err).WithField("user_id", userID).Error("Ошибка создания заявки на вывод")
			h.clearDialog(userID)
			h.sendMessage(chatID, "❌ Внутренняя ошибка, попробуйте позже")
		}
		return
	}

	h.clearDialog(userID)
	h.sendMessage(chatID, fmt.Sprintf(
		"✅ Заявка №%d создана.\nК выплате: %s на счёт %s.\nОператор выплатит в течение рабочего дня.",
		t.TransactionID, common.FormatAmount(t.FinalAmount), t.AccountNumber,
	))
}

// --- История ---

// HandleHistory показывает последние транзакции пользователя.
func (h *Handler) HandleHistory(ctx context.Context, chatID, userID int64) {
	history, err := h.service.History(ctx, userID, 5)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка получения истории")
		h.sendMessage(chatID, "❌ Ошибка получения истории")
		return
	}
	if len(history) == 0 {
		h.sendMessage(chatID, "📜 Операций пока не было")
		return
	}

	var b strings.Builder
	b.WriteString("📜 Последние операции:\n\n")
	for _, t := range history {
		amount := int64(0)
		if t.Amount != nil {
			amount = *t.Amount
		}
		b.WriteString(fmt.Sprintf("%s · %s · %s · %s\n",
			common.FormatDateTime(t.CreatedAt), t.Type, common.FormatAmount(amount), t.Status))
	}
	h.sendMessage(chatID, b.String())
}

// --- Оператор ---

// HandleOperatorLogin начинает авторизацию оператора.
func (h *Handler) HandleOperatorLogin(chatID, userID int64) {
	h.setDialog(userID, &dialog{step: stepOperatorPassword})
	h.sendMessage(chatID, "🔐 Пароль оператора:")
}

func (h *Handler) onOperatorPassword(chatID, userID int64, password string) {
	h.clearDialog(userID)

	if err := bcrypt.CompareHashAndPassword([]byte(h.cfg.OperatorPasswordHash), []byte(password)); err != nil {
		log.WithField("user_id", userID).Warn("Неверный пароль оператора")
		h.sendMessage(chatID, "❌ "+common.ErrWrongPassword.Error())
		return
	}

	h.mu.Lock()
	h.operators[userID] = time.Now()
	h.mu.Unlock()

	h.sendMessage(chatID, "✅ Сессия оператора открыта на 30 минут.\nКоманды: /complete <номер заявки>, /summary")
}

// IsOperator сообщает, открыта ли у пользователя операторская сессия.
func (h *Handler) IsOperator(userID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	at, ok := h.operators[userID]
	if !ok {
		return false
	}
	if time.Since(at) > operatorSessionTTL {
		delete(h.operators, userID)
		return false
	}
	return true
}

// HandleComplete — операторское закрытие выплаченной заявки.
func (h *Handler) HandleComplete(ctx context.Context, chatID, userID int64, args []string) {
	if !h.IsOperator(userID) {
		h.sendMessage(chatID, "🔐 Сначала авторизуйтесь: /operator")
		return
	}
	if len(args) < 1 {
		h.sendMessage(chatID, "❌ Формат: /complete <номер заявки>")
		return
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		h.sendMessage(chatID, "❌ Номер заявки — целое число")
		return
	}

	err = h.service.CompleteWithdrawal(ctx, id)
	switch {
	case err == nil:
		h.sendMessage(chatID, fmt.Sprintf("✅ Заявка №%d закрыта", id))
	case errors.Is(err, common.ErrAlreadyCompleted):
		h.sendMessage(chatID, fmt.Sprintf("✅ Заявка №%d уже была закрыта", id))
	case errors.Is(err, common.ErrNoPendingTransaction):
		h.sendMessage(chatID, fmt.Sprintf("❌ Заявка №%d не найдена", id))
	default:
		log.WithError(err).WithField("transaction_id", id).Error("Ошибка закрытия заявки")
		h.sendMessage(chatID, "❌ Внутренняя ошибка")
	}
}

// HandleSummary — операторская сводка за сутки.
func (h *Handler) HandleSummary(ctx context.Context, chatID, userID int64) {
	if !h.IsOperator(userID) {
		h.sendMessage(chatID, "🔐 Сначала авторизуйтесь: /operator")
		return
	}

	s, err := h.service.DailySummary(ctx)
	if err != nil {
		log.WithError(err).Error("Ошибка получения сводки")
		h.sendMessage(chatID, "❌ Внутренняя ошибка")
		return
	}

	h.sendMessage(chatID, fmt.Sprintf(
		"📊 Сводка за сегодня:\nДепозитов: %d на %s\nВыводов: %d на %s\nКомиссия: %s\nОжидают выплаты: %d",
		s.Deposits, common.FormatAmount(s.DepositVolume),
		s.Withdrawals, common.FormatAmount(s.WithdrawalVolume),
		common.FormatAmount(s.FeeVolume), s.OpenWithdrawals,
	))
}

// --- Вспомогательное ---

// requireAccount возвращает аккаунт пользователя либо просит
// зарегистрироваться.
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

func (h *Handler) requisites(method Method) string {
	switch method {
	case MethodPayeer:
		return h.cfg.PayeerAccount
	case MethodBemo:
		return h.cfg.BemoAccount
	default:
		return h.cfg.SyriatelAccount
	}
}

func parseMethod(text string) (Method, bool) {
	switch Method(strings.TrimSpace(text)) {
	case MethodPayeer:
		return MethodPayeer, true
	case MethodBemo:
		return MethodBemo, true
	case MethodSyriatel:
		return MethodSyriatel, true
	}
	return "", false
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
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
