// Package bot содержит главный модуль бота — запуск polling, маршрутизацию
// команд и меню. Вся платёжная логика живёт в features, здесь только
// транспорт и маршрутизация.
package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"wayxpay.dev/wallet-bot/internal/bot/filters"
	"wayxpay.dev/wallet-bot/internal/bot/middleware"
	"wayxpay.dev/wallet-bot/internal/config"
	"wayxpay.dev/wallet-bot/internal/features/accounts"
	"wayxpay.dev/wallet-bot/internal/features/payments"
	"wayxpay.dev/wallet-bot/internal/features/wallet"
)

// Кнопки главного меню.
const (
	buttonBalance  = "💰 Баланс"
	buttonDeposit  = "➕ Пополнить"
	buttonWithdraw = "➖ Вывести"
	buttonToSite   = "🌐 На сайт"
	buttonFromSite = "🔄 С сайта"
	buttonHistory  = "📜 История"
)

// Bot — главная структура бота, объединяющая все компоненты.
type Bot struct {
	api *tgbotapi.BotAPI
	cfg *config.Config

	chatFilter  *filters.PrivateFilter
	rateLimiter *middleware.RateLimiter

	paymentsHandler *payments.Handler
	walletHandler   *wallet.Handler
	accountsHandler *accounts.Handler

	parser *CommandParser

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
}

// New создаёт новый экземпляр бота со всеми зависимостями.
func New(
	api *tgbotapi.BotAPI,
	cfg *config.Config,
	paymentsHandler *payments.Handler,
	walletHandler *wallet.Handler,
	accountsHandler *accounts.Handler,
) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 64
	}

	return &Bot{
		api:             api,
		cfg:             cfg,
		chatFilter:      filters.NewPrivateFilter(),
		rateLimiter:     middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		paymentsHandler: paymentsHandler,
		walletHandler:   walletHandler,
		accountsHandler: accountsHandler,
		parser:          NewCommandParser(),
		inflight:        make(chan struct{}, maxInFlight),
	}
}

// Start запускает polling обновлений от Telegram.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.BotUpdateTimeoutSeconds

	updates := b.api.GetUpdatesChan(u)

	log.WithFields(log.Fields{
		"max_inflight": b.cfg.BotMaxInflight,
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
	}).Info("Бот запущен и ожидает сообщения...")

	for {
		select {
		case <-ctx.Done():
			log.Info("Бот останавливается (ctx done)...")
			b.api.StopReceivingUpdates()
			b.rateLimiter.Close()
			return

		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				b.rateLimiter.Close()
				return
			}

			// лимит параллелизма
			b.inflight <- struct{}{}
			go func(upd tgbotapi.Update) {
				defer func() { <-b.inflight }()
				b.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer middleware.RecoverFromPanic(&update)

	if update.Message == nil || update.Message.Text == "" {
		return
	}
	message := update.Message

	middleware.LogMessage(message)

	if !b.chatFilter.CheckAccess(message) {
		return
	}

	if !b.rateLimiter.Allow(message.From.ID) {
		log.WithField("user_id", message.From.ID).Debug("rate limited")
		return
	}

	chatID := message.Chat.ID
	userID := message.From.ID
	firstName := message.From.FirstName

	cmd, args, isCommand := b.parser.ParseCommand(message.Text)
	if isCommand {
		b.routeCommand(ctx, chatID, userID, cmd, args)
		return
	}

	// Не команда: сначала продолжаем начатые диалоги
	if b.paymentsHandler.HandleDialog(ctx, chatID, userID, message.Text) {
		return
	}
	if b.accountsHandler.HandleDialog(ctx, chatID, userID, firstName, message.Text) {
		return
	}
	if b.walletHandler.HandleDialog(ctx, chatID, userID, message.Text) {
		return
	}

	// Потом кнопки меню
	switch strings.TrimSpace(message.Text) {
	case buttonBalance:
		b.walletHandler.HandleBalance(ctx, chatID, userID)
	case buttonDeposit:
		b.paymentsHandler.HandleDepositStart(ctx, chatID, userID)
	case buttonWithdraw:
		b.paymentsHandler.HandleWithdrawStart(ctx, chatID, userID)
	case buttonToSite:
		b.walletHandler.HandleToSiteStart(ctx, chatID, userID)
	case buttonFromSite:
		b.walletHandler.HandleFromSiteStart(ctx, chatID, userID)
	case buttonHistory:
		b.paymentsHandler.HandleHistory(ctx, chatID, userID)
	default:
		b.sendMenu(chatID, "Выберите действие кнопкой ниже или командой /help")
	}
}

// routeCommand маршрутизирует команду к нужному обработчику.
func (b *Bot) routeCommand(ctx context.Context, chatID, userID int64, cmd string, args []string) {
	log.WithFields(log.Fields{
		"cmd":  cmd,
		"args": len(args),
	}).Debug("routing command")

	switch cmd {
	case "start":
		b.sendMenu(chatID,
			"👋 Это платёжный кошелёк WayX.\n"+
				"Пополняйте через Syriatel Cash, Bemo или Payeer — бот зачислит средства "+
				"после подтверждения платёжной сети.\n\nНет аккаунта? /register")
	case "help":
		b.sendMessage(chatID,
			"Команды:\n"+
				"/register — создать аккаунт на сайте\n"+
				"/balance — балансы\n"+
				"/deposit — пополнить кошелёк\n"+
				"/withdraw — вывести средства\n"+
				"/history — последние операции")
	case "register":
		b.accountsHandler.HandleRegisterStart(ctx, chatID, userID)
	case "balance":
		b.walletHandler.HandleBalance(ctx, chatID, userID)
	case "deposit":
		b.paymentsHandler.HandleDepositStart(ctx, chatID, userID)
	case "withdraw":
		b.paymentsHandler.HandleWithdrawStart(ctx, chatID, userID)
	case "history":
		b.paymentsHandler.HandleHistory(ctx, chatID, userID)
	case "operator":
		b.paymentsHandler.HandleOperatorLogin(chatID, userID)
	case "complete":
		b.paymentsHandler.HandleComplete(ctx, chatID, userID, args)
	case "summary":
		b.paymentsHandler.HandleSummary(ctx, chatID, userID)
	default:
		b.sendMessage(chatID, "Неизвестная команда, /help покажет список")
	}
}

// sendMenu отправляет текст вместе с главной клавиатурой.
func (b *Bot) sendMenu(chatID int64, text string) {
	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(buttonBalance),
			tgbotapi.NewKeyboardButton(buttonHistory),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(buttonDeposit),
			tgbotapi.NewKeyboardButton(buttonWithdraw),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(buttonToSite),
			tgbotapi.NewKeyboardButton(buttonFromSite),
		),
	)
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard
	if _, err := b.api.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки меню")
	}
}

// sendMessage — утилита для отправки сообщений.
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}

// CommandParser разбирает команды с префиксом /.
type CommandParser struct{}

// NewCommandParser создаёт парсер команд.
func NewCommandParser() *CommandParser {
	return &CommandParser{}
}

// ParseCommand разбирает текст на команду и аргументы.
// "/complete 42" → ("complete", ["42"], true). Суффикс @botname срезается.
func (p *CommandParser) ParseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}

	fields := strings.Fields(strings.TrimPrefix(text, "/"))
	if len(fields) == 0 {
		return "", nil, false
	}

	cmd := strings.ToLower(fields[0])
	if i := strings.Index(cmd, "@"); i >= 0 {
		cmd = cmd[:i]
	}
	return cmd, fields[1:], true
}
