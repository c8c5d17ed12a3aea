// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: создаёт БД-пул, клиент сайта, репозитории,
// сервисы, обработчики и собирает всё в Bot, Scheduler и Webhook.
package app

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"wayxpay.dev/wallet-bot/internal/bot"
	"wayxpay.dev/wallet-bot/internal/config"
	"wayxpay.dev/wallet-bot/internal/db/postgres"
	"wayxpay.dev/wallet-bot/internal/features/accounts"
	"wayxpay.dev/wallet-bot/internal/features/game"
	"wayxpay.dev/wallet-bot/internal/features/payments"
	"wayxpay.dev/wallet-bot/internal/features/wallet"
	"wayxpay.dev/wallet-bot/internal/gateway"
	"wayxpay.dev/wallet-bot/internal/jobs"
	"wayxpay.dev/wallet-bot/internal/webhook"
)

// App содержит все компоненты приложения.
type App struct {
	Bot       *bot.Bot
	Scheduler *jobs.Scheduler
	Webhook   *webhook.Server // nil, если канал SMS выключен
	DB        *pgxpool.Pool
	BotAPI    *tgbotapi.BotAPI
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}

	if err := runMigrations(ctx, pool); err != nil {
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	// === 2. Telegram Bot API ===
	botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	botAPI.Debug = cfg.AppEnv == "development"
	log.Infof("Авторизован как @%s", botAPI.Self.UserName)

	// === 3. Клиент агентского кабинета ===
	gw, err := gateway.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания клиента сайта: %w", err)
	}

	// === 4. Репозитории ===
	paymentsRepo := payments.NewRepository(pool)
	walletRepo := wallet.NewRepository(pool)
	accountsRepo := accounts.NewRepository(pool)

	// === 5. Сервисы ===
	paymentsService := payments.NewService(paymentsRepo, cfg)
	walletService := wallet.NewService(walletRepo, gw)
	accountsService := accounts.NewService(accountsRepo, gw)
	gameService := game.NewService(walletRepo, cfg)

	// === 6. Обработчики ===
	paymentsHandler := payments.NewHandler(paymentsService, accountsService, gameService, cfg, botAPI)
	walletHandler := wallet.NewHandler(walletService, accountsService, botAPI)
	accountsHandler := accounts.NewHandler(accountsService, botAPI)

	// === 7. Собираем бота ===
	b := bot.New(botAPI, cfg, paymentsHandler, walletHandler, accountsHandler)

	// === 8. Планировщик задач ===
	scheduler := jobs.NewScheduler(paymentsService)

	// === 9. Webhook для SMS платёжных сетей ===
	var whSrv *webhook.Server
	if cfg.FeatureWebhookEnabled {
		whSrv = webhook.NewServer(cfg.WebhookListenAddr, cfg.WebhookToken, paymentsService)
	} else {
		log.Warn("Канал SMS выключен: депозиты подтверждаются только вручную")
	}

	return &App{
		Bot:       b,
		Scheduler: scheduler,
		Webhook:   whSrv,
		DB:        pool,
		BotAPI:    botAPI,
	}, nil
}

// runMigrations выполняет все SQL-миграции.
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if err := postgres.EnsureMigrationsTable(ctx, pool); err != nil {
		return err
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migration001Accounts},
		{2, migration002Wallets},
		{3, migration003Transactions},
		{4, migration004SMSInbox},
	}

	for _, m := range migrations {
		if err := postgres.ExecMigrationSQL(ctx, pool, m.version, m.sql); err != nil {
			return fmt.Errorf("миграция %d: %w", m.version, err)
		}
		log.Infof("Миграция %d применена", m.version)
	}

	return nil
}

// SQL-миграции встроены в код для упрощения деплоя.

var migration001Accounts = `
CREATE TABLE IF NOT EXISTS accounts (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT UNIQUE NOT NULL,
    player_id VARCHAR(64) NOT NULL,
    username VARCHAR(64) NOT NULL,
    first_name VARCHAR(255) NOT NULL DEFAULT '',
    password_hash VARCHAR(255) NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_accounts_player_id ON accounts(player_id);
`

// website_balance — кэш баланса сайта, его не ограничиваем CHECK-ом:
// источник истины по нему на стороне сайта.
var migration002Wallets = `
CREATE TABLE IF NOT EXISTS wallets (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT UNIQUE NOT NULL REFERENCES accounts(user_id),
    bot_balance BIGINT NOT NULL DEFAULT 0 CHECK (bot_balance >= 0),
    website_balance BIGINT NOT NULL DEFAULT 0,
    game_balance BIGINT NOT NULL DEFAULT 0 CHECK (game_balance >= 0),
    game_points BIGINT NOT NULL DEFAULT 0,
    game_status BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// amount NULL, пока пользователь не назвал сумму депозита.
// Уникальность external_transaction_id и делает депозиты exactly-once.
var migration003Transactions = `
CREATE TABLE IF NOT EXISTS transactions (
    transaction_id BIGSERIAL PRIMARY KEY,
    external_transaction_id VARCHAR(32) UNIQUE,
    user_id BIGINT NOT NULL,
    player_id VARCHAR(64) NOT NULL DEFAULT '',
    transaction_type VARCHAR(16) NOT NULL,
    payment_method VARCHAR(16) NOT NULL,
    amount BIGINT,
    fee BIGINT NOT NULL DEFAULT 0,
    final_amount BIGINT NOT NULL DEFAULT 0,
    account_number VARCHAR(64) NOT NULL DEFAULT '',
    status VARCHAR(16) NOT NULL DEFAULT 'pending',
    verification_source VARCHAR(16),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_transactions_user_created
    ON transactions(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_transactions_status
    ON transactions(status) WHERE status <> 'completed';
`

var migration004SMSInbox = `
CREATE TABLE IF NOT EXISTS sms_inbox (
    id BIGSERIAL PRIMARY KEY,
    external_transaction_id VARCHAR(32) UNIQUE NOT NULL,
    amount BIGINT NOT NULL,
    sender VARCHAR(64) NOT NULL DEFAULT '',
    source VARCHAR(16) NOT NULL DEFAULT 'sms',
    received_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_sms_inbox_received_at ON sms_inbox(received_at);
`
