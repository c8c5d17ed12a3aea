// Package game — бонусная программа: начисление игрового баланса и очков.
//
// Игровой баланс тратится на переводы на сайт раньше основного, но
// ограничен двумя потолками: персональным и общим по всем кошелькам.
// Проверки потолков и само зачисление — одна транзакция БД, поэтому
// параллельные начисления не проскакивают потолки вдвоём.
package game

import (
	"context"

	log "github.com/sirupsen/logrus"

	"wayxpay.dev/wallet-bot/internal/common"
	"wayxpay.dev/wallet-bot/internal/config"
)

type store interface {
	GrantGameBonus(ctx context.Context, userID, amount, personalCap, globalCap int64) (int64, error)
	AddGamePoints(ctx context.Context, userID int64, points int64) error
	SetGameStatus(ctx context.Context, userID int64, enabled bool) error
}

// Service управляет бонусной программой.
type Service struct {
	repo store
	cfg  *config.Config
}

// NewService создаёт сервис бонусной программы.
func NewService(repo store, cfg *config.Config) *Service {
	return &Service{repo: repo, cfg: cfg}
}

// Enabled сообщает, включена ли бонусная программа глобально.
func (s *Service) Enabled() bool {
	return s.cfg.FeatureGameEnabled
}

// AwardBonus начисляет бонус на игровой баланс пользователя.
// Срезает сумму по персональному потолку и отказывает, когда общий
// фонд по всем кошелькам исчерпан.
func (s *Service) AwardBonus(ctx context.Context, userID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, common.ErrInvalidAmount
	}

	granted, err := s.repo.GrantGameBonus(ctx, userID, amount, s.cfg.GameBalanceCap, s.cfg.GameGlobalCap)
	if err != nil {
		return 0, err
	}

	log.WithFields(log.Fields{
		"user_id": userID,
		"amount":  granted,
	}).Info("Начислен игровой бонус")
	return granted, nil
}

// AwardPoint начисляет пользователю очки программы.
func (s *Service) AwardPoint(ctx context.Context, userID, points int64) error {
	if points <= 0 {
		return common.ErrInvalidAmount
	}
	return s.repo.AddGamePoints(ctx, userID, points)
}

// SetStatus включает или выключает участие пользователя в программе.
func (s *Service) SetStatus(ctx context.Context, userID int64, enabled bool) error {
	return s.repo.SetGameStatus(ctx, userID, enabled)
}
