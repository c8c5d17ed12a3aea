// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: ежечасная чистка зависших
// pending-депозитов и сирот в SMS-inbox.
package jobs

import (
	"context"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"wayxpay.dev/wallet-bot/internal/common"
	"wayxpay.dev/wallet-bot/internal/features/payments"
)

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron     *cron.Cron
	payments *payments.Service
}

// NewScheduler создаёт планировщик задач в дамасском часовом поясе.
func NewScheduler(paymentsService *payments.Service) *Scheduler {
	c := cron.New(cron.WithLocation(common.DamascusLocation()))
	return &Scheduler{
		cron:     c,
		payments: paymentsService,
	}
}

// Start запускает все фоновые задачи.
func (s *Scheduler) Start(ctx context.Context) {
	// Ежечасная чистка: зависшие pending освобождают свои номера
	// операций, старые сироты inbox удаляются
	s.cron.AddFunc("0 * * * *", func() {
		log.Debug("[CRON] Чистка зависших заявок и inbox")
		if err := s.payments.ReapStale(ctx); err != nil {
			log.WithError(err).Error("[CRON] Ошибка чистки")
		}
	})

	s.cron.Start()
	log.Info("Планировщик задач запущен (Asia/Damascus)")
}

// Stop останавливает планировщик, дожидаясь выполняющихся задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}
