// Package main — точка входа платёжного бота.
// Загружает конфигурацию, инициализирует приложение и запускает бота,
// webhook и планировщик. Поддерживает graceful shutdown по SIGINT/SIGTERM.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"wayxpay.dev/wallet-bot/internal/app"
	"wayxpay.dev/wallet-bot/internal/config"
)

func main() {
	setupLogging()

	// .env нужен только для локального запуска; в Docker переменные
	// приходят из окружения
	if err := godotenv.Load(); err != nil {
		log.Debug(".env не найден, читаем только окружение")
	}

	log.Info("=== Бот запускается ===")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Не удалось загрузить конфигурацию")
	}

	if level, err := log.ParseLevel(cfg.AppLogLevel); err == nil {
		log.SetLevel(level)
	}

	// Контекст с отменой для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Не удалось инициализировать приложение")
	}
	defer application.DB.Close()

	application.Scheduler.Start(ctx)
	defer application.Scheduler.Stop()

	if application.Webhook != nil {
		go func() {
			if err := application.Webhook.Start(); err != nil {
				log.WithError(err).Fatal("Webhook-сервер упал")
			}
		}()
	}

	// Обрабатываем сигналы остановки (Ctrl+C, docker stop)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go application.Bot.Start(ctx)

	log.Info("=== Бот готов к работе ===")

	sig := <-quit
	log.Infof("Получен сигнал %s, останавливаемся...", sig)

	cancel()

	if application.Webhook != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := application.Webhook.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Webhook-сервер остановлен с ошибкой")
		}
	}

	log.Info("=== Бот остановлен ===")
}

// setupLogging настраивает формат логов.
func setupLogging() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.DebugLevel)
}
