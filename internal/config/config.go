// Package config загружает конфигурацию бота из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры;
// .env подхватывается в main через godotenv до вызова Load.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Telegram ---
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`

	// --- Database ---
	// В Docker внутри контейнера "localhost" почти всегда неправильно.
	// Дефолт ставим "postgres" (имя сервиса в docker-compose), а для локалки переопределяй DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"walletbot"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"wallet_bot"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`

	// --- Bot runtime ---
	// Сколько апдейтов обрабатываем параллельно. Иначе "go на каждый апдейт" = утечка памяти при флуде.
	BotMaxInflight int `envconfig:"BOT_MAX_INFLIGHT" default:"64"`
	// Таймаут long polling (секунды)
	BotUpdateTimeoutSeconds int `envconfig:"BOT_UPDATE_TIMEOUT_SECONDS" default:"60"`

	// --- Site gateway (агентский кабинет букмекера) ---
	AgentUsername  string        `envconfig:"AGENT_USERNAME" required:"true"`
	AgentPassword  string        `envconfig:"AGENT_PASSWORD" required:"true"`
	GatewayBaseURL string        `envconfig:"GATEWAY_BASE_URL" default:"https://agents.wayxbet.com/global/api"`
	GatewayTimeout time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"15s"`
	ParentAgentID  string        `envconfig:"PARENT_AGENT_ID" default:"2301209"`

	// --- Платёжные реквизиты (показываются пользователю при пополнении) ---
	PayeerAccount   string `envconfig:"PAYEER_ACCOUNT" required:"true"`
	SyriatelAccount string `envconfig:"SYRIATEL_ACCOUNT" required:"true"`
	BemoAccount     string `envconfig:"BEMO_ACCOUNT" required:"true"`
	// Курс Payeer USD → SYP: суммы Payeer конвертируются до сверки
	ExchangeRate int64 `envconfig:"EXCHANGE_RATE" default:"10000"`

	// --- Webhook для пересылаемых SMS ---
	WebhookListenAddr string `envconfig:"WEBHOOK_LISTEN_ADDR" default:":8090"`
	WebhookToken      string `envconfig:"WEBHOOK_TOKEN" required:"true"`

	// --- Operator ---
	OperatorPasswordHash string `envconfig:"OPERATOR_PASSWORD_HASH" required:"true"`

	// --- Бонусная механика ---
	GameBalanceCap int64 `envconfig:"GAME_BALANCE_CAP" default:"50000"`
	GameGlobalCap  int64 `envconfig:"GAME_GLOBAL_CAP" default:"1000000"`

	// --- Reaper (чистка зависших pending и сирот в inbox) ---
	ReaperPendingMaxAgeHours int `envconfig:"REAPER_PENDING_MAX_AGE_HOURS" default:"48"`
	ReaperInboxMaxAgeDays    int `envconfig:"REAPER_INBOX_MAX_AGE_DAYS" default:"14"`

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"10"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// --- Feature Flags ---
	FeatureGameEnabled    bool `envconfig:"FEATURE_GAME_ENABLED" default:"true"`
	FeatureWebhookEnabled bool `envconfig:"FEATURE_WEBHOOK_ENABLED" default:"true"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

func (c *Config) Validate() error {
	if c.BotMaxInflight <= 0 {
		return fmt.Errorf("BOT_MAX_INFLIGHT должен быть > 0")
	}
	if c.BotUpdateTimeoutSeconds <= 0 {
		return fmt.Errorf("BOT_UPDATE_TIMEOUT_SECONDS должен быть > 0")
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if c.ExchangeRate <= 0 {
		return fmt.Errorf("EXCHANGE_RATE должен быть > 0")
	}
	if c.GameBalanceCap < 0 || c.GameGlobalCap < 0 {
		return fmt.Errorf("лимиты бонусного баланса не могут быть отрицательными")
	}
	if c.GatewayTimeout <= 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT должен быть > 0")
	}
	if c.ReaperPendingMaxAgeHours <= 0 || c.ReaperInboxMaxAgeDays <= 0 {
		return fmt.Errorf("некорректные параметры reaper")
	}
	return nil
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
