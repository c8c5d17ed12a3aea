// Package wallet — service.go: операции леджера и переводы бот↔сайт.
//
// Порядок при переводах жёсткий: сначала вызов шлюза сайта, и только
// после его успеха — мутация леджера. Если шлюз ответил ошибкой или
// не ответил вовсе, леджер не трогается.
package wallet

import (
	"context"

	log "github.com/sirupsen/logrus"

	"wayxpay.dev/wallet-bot/internal/common"
)

// Gateway — контракт сайта букмекера, который нужен переводам.
// Любой не-успех — *common.GatewayError, и леджер не мутируется.
type Gateway interface {
	Deposit(ctx context.Context, playerID string, amount int64) error
	Withdraw(ctx context.Context, playerID string, amount int64) error
	FetchBalance(ctx context.Context, playerID string) (int64, string, error)
}

// store — операции хранилища, которыми пользуется сервис.
type store interface {
	Get(ctx context.Context, userID int64) (*Wallet, error)
	Credit(ctx context.Context, userID int64, bucket Bucket, amount int64) error
	Debit(ctx context.Context, userID int64, bucket Bucket, amount int64) error
	SpendWithPriority(ctx context.Context, userID, amount int64, order []Bucket) ([]Draw, error)
	MoveWebsiteToBot(ctx context.Context, userID, amount int64) error
	SetWebsiteBalance(ctx context.Context, userID, balance int64) error
}

// Service управляет кошельками.
type Service struct {
	repo    store
	gateway Gateway
}

// NewService создаёт сервис кошелька.
func NewService(repo store, gateway Gateway) *Service {
	return &Service{repo: repo, gateway: gateway}
}

// Get возвращает кошелёк пользователя.
func (s *Service) Get(ctx context.Context, userID int64) (*Wallet, error) {
	return s.repo.Get(ctx, userID)
}

// Credit зачисляет сумму в корзину.
func (s *Service) Credit(ctx context.Context, userID int64, bucket Bucket, amount int64) error {
	if amount <= 0 {
		return common.ErrInvalidAmount
	}
	return s.repo.Credit(ctx, userID, bucket, amount)
}

// Debit списывает сумму из корзины; в минус корзина не уходит.
func (s *Service) Debit(ctx context.Context, userID int64, bucket Bucket, amount int64) error {
	if amount <= 0 {
		return common.ErrInvalidAmount
	}
	return s.repo.Debit(ctx, userID, bucket, amount)
}

// SpendWithPriority списывает сумму из корзин по порядку приоритета
// и возвращает фактическую разбивку.
func (s *Service) SpendWithPriority(ctx context.Context, userID, amount int64, order []Bucket) ([]Draw, error) {
	if amount <= 0 {
		return nil, common.ErrInvalidAmount
	}
	return s.repo.SpendWithPriority(ctx, userID, amount, order)
}

// ChargeWebsite переводит средства из кошелька бота на игровой счёт сайта.
// Бонусная корзина вычерпывается раньше основной.
//
// Сначала депозит на сайте, затем списание в леджере. Предварительная
// проверка баланса сужает окно, в котором сайт уже пополнен, а списать
// нечего; окончательную проверку делает само списание под блокировкой.
func (s *Service) ChargeWebsite(ctx context.Context, userID int64, playerID string, amount int64) ([]Draw, error) {
	if amount <= 0 {
		return nil, common.ErrInvalidAmount
	}

	w, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if w.GameBalance+w.BotBalance < amount {
		return nil, common.ErrInsufficientFunds
	}

	if err := s.gateway.Deposit(ctx, playerID, amount); err != nil {
		return nil, err
	}

	draws, err := s.repo.SpendWithPriority(ctx, userID, amount, []Bucket{BucketGame, BucketBot})
	if err != nil {
		// Сайт уже пополнен, а списание не прошло — рассинхрон,
		// который чинится только руками. Кричим в журнал.
		log.WithError(err).WithFields(log.Fields{
			"user_id":   userID,
			"player_id": playerID,
			"amount":    amount,
		}).Error("Депозит на сайт прошёл, но списание в леджере не удалось — требуется ручная сверка")
		return nil, err
	}

	s.refreshWebsiteBalance(ctx, userID, playerID)

	log.WithFields(log.Fields{
		"user_id": userID,
		"amount":  amount,
	}).Info("Кошелёк бота переведён на игровой счёт")
	return draws, nil
}

// WithdrawWebsite снимает средства с игрового счёта сайта в кошелёк бота.
func (s *Service) WithdrawWebsite(ctx context.Context, userID int64, playerID string, amount int64) error {
	if amount <= 0 {
		return common.ErrInvalidAmount
	}

	balance, _, err := s.gateway.FetchBalance(ctx, playerID)
	if err != nil {
		return err
	}
	if amount > balance {
		return common.ErrInsufficientFunds
	}

	if err := s.gateway.Withdraw(ctx, playerID, amount); err != nil {
		return err
	}

	if err := s.repo.MoveWebsiteToBot(ctx, userID, amount); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"user_id":   userID,
			"player_id": playerID,
			"amount":    amount,
		}).Error("Вывод с сайта прошёл, но перенос в леджере не удался — требуется ручная сверка")
		return err
	}

	log.WithFields(log.Fields{
		"user_id": userID,
		"amount":  amount,
	}).Info("Средства сняты с игрового счёта в кошелёк бота")
	return nil
}

// RefreshWebsiteBalance запрашивает у шлюза актуальный баланс сайта
// и обновляет кэш. Возвращает свежее значение.
func (s *Service) RefreshWebsiteBalance(ctx context.Context, userID int64, playerID string) (int64, error) {
	balance, _, err := s.gateway.FetchBalance(ctx, playerID)
	if err != nil {
		return 0, err
	}
	if err := s.repo.SetWebsiteBalance(ctx, userID, balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// refreshWebsiteBalance — то же, но best-effort: кэш баланса сайта не
// авторитетен, его несвежесть не должна ронять успешный перевод.
func (s *Service) refreshWebsiteBalance(ctx context.Context, userID int64, playerID string) {
	if _, err := s.RefreshWebsiteBalance(ctx, userID, playerID); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("Не удалось обновить кэш баланса сайта")
	}
}
