// Package payments — service.go: движок сверки депозитов.
//
// Депозит требует двух независимых подтверждений: что заявил пользователь
// и что сообщила платёжная сеть. Движок симметричен — корректность не
// зависит от порядка прихода сторон — и идемпотентен: повтор любой из
// сторон после approve ничего не меняет.
package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"wayxpay.dev/wallet-bot/internal/common"
	"wayxpay.dev/wallet-bot/internal/config"
)

// Store — хранилище, через которое движок сериализует конкурирующие
// ветки сверки. Реализуется Repository; в тестах — памятью.
type Store interface {
	InsertPending(ctx context.Context, t *Transaction) error
	GetByExternalID(ctx context.Context, externalID string) (*Transaction, error)
	SetAmount(ctx context.Context, externalID string, userID, amount int64) (bool, error)
	GetNotification(ctx context.Context, externalID string) (*Notification, error)
	BufferNotification(ctx context.Context, n *Notification) error
	ApproveAndCredit(ctx context.Context, externalID string, userID, amount int64, source Source) error
	PurgeMismatch(ctx context.Context, externalID string, n *Notification) error
	InsertWithdrawal(ctx context.Context, t *Transaction) error
	CompleteWithdrawal(ctx context.Context, transactionID int64) error
	ListRecent(ctx context.Context, userID int64, limit int) ([]*Transaction, error)
	DeleteStalePending(ctx context.Context, cutoff time.Time) ([]string, error)
	DeleteOldNotifications(ctx context.Context, cutoff time.Time) ([]string, error)
	Summarize(ctx context.Context, since time.Time) (*Summary, error)
}

// Service — движок сверки и расчётов по выводам.
type Service struct {
	store Store
	cfg   *config.Config
}

// NewService создаёт движок сверки.
func NewService(store Store, cfg *config.Config) *Service {
	return &Service{store: store, cfg: cfg}
}

// RegisterPending регистрирует заявленный пользователем номер операции
// как pending-депозит без суммы.
//
// При дубликате возвращается существующая транзакция вместе с
// ErrDuplicateExternalID: по её статусу вызывающий различает
// «дубликат, но ещё pending» (попросить подождать) и «дубликат уже
// закрыт» (отказ).
func (s *Service) RegisterPending(ctx context.Context, externalID string, userID int64, playerID string, method Method) (*Transaction, error) {
	if err := ValidateExternalID(method, externalID); err != nil {
		return nil, err
	}

	t := &Transaction{
		ExternalID: externalID,
		UserID:     userID,
		PlayerID:   playerID,
		Type:       TypeDeposit,
		Method:     method,
		Status:     StatusPending,
	}

	err := s.store.InsertPending(ctx, t)
	if err == nil {
		log.WithFields(log.Fields{
			"external_id": externalID,
			"user_id":     userID,
			"method":      method,
		}).Info("Депозит зарегистрирован, ждём сумму")
		return t, nil
	}

	if errors.Is(err, common.ErrDuplicateExternalID) {
		existing, getErr := s.store.GetByExternalID(ctx, externalID)
		if getErr != nil {
			return nil, getErr
		}
		return existing, common.ErrDuplicateExternalID
	}
	return nil, err
}

// AttachAmount записывает заявленную сумму и пытается свести её с inbox.
// Суммы Payeer конвертируются в SYP по курсу до сверки, чтобы обе
// стороны сравнивались в одной валюте.
func (s *Service) AttachAmount(ctx context.Context, externalID string, userID, amount int64) (ReconciliationResult, error) {
	if amount <= 0 {
		return ReconciliationResult{}, common.ErrInvalidAmount
	}

	t, err := s.store.GetByExternalID(ctx, externalID)
	if err != nil {
		return ReconciliationResult{}, err
	}
	if t == nil || t.UserID != userID || t.Status != StatusPending {
		return ReconciliationResult{}, common.ErrNoPendingTransaction
	}

	if t.Method == MethodPayeer {
		amount *= s.cfg.ExchangeRate
	}

	ok, err := s.store.SetAmount(ctx, externalID, userID, amount)
	if err != nil {
		return ReconciliationResult{}, err
	}
	if !ok {
		return ReconciliationResult{}, common.ErrNoPendingTransaction
	}

	n, err := s.store.GetNotification(ctx, externalID)
	if err != nil {
		return ReconciliationResult{}, err
	}
	if n == nil {
		return ReconciliationResult{Kind: ResultAwaitingConfirmation}, nil
	}

	return s.match(ctx, externalID, userID, amount, n)
}

// IngestNotification — зеркальная сторона сверки: подтверждение от
// платёжной сети, приходящее асинхронно и в любом порядке относительно
// AttachAmount. Кто пришёл вторым — тот и зачисляет.
func (s *Service) IngestNotification(ctx context.Context, n *Notification) (ReconciliationResult, error) {
	if n.Amount <= 0 {
		return ReconciliationResult{}, common.ErrInvalidAmount
	}
	if !KnownIDLength(n.ExternalID) {
		// Форматы номеров провайдеров не должны пересекаться;
		// неизвестная длина — повод присмотреться.
		log.WithFields(log.Fields{
			"external_id": n.ExternalID,
			"length":      len(n.ExternalID),
		}).Warn("Номер операции не похож ни на один известный провайдерский формат")
	}

	t, err := s.store.GetByExternalID(ctx, n.ExternalID)
	if err != nil {
		return ReconciliationResult{}, err
	}

	if t == nil || (t.Status == StatusPending && t.Amount == nil) {
		// Транзакции ещё нет, либо пользователь не назвал сумму —
		// буферизуем, пара завершит сверку.
		if err := s.store.BufferNotification(ctx, n); err != nil {
			return ReconciliationResult{}, err
		}

		// Перечитываем транзакцию после буферизации: пользователь мог
		// назвать сумму между нашим первым чтением и записью в inbox.
		// Его AttachAmount в этой гонке inbox ещё не видел, значит
		// сводить обязаны мы, иначе обе стороны лежат рядом несведённые.
		// Порядок buffer → re-read против set-amount → check-inbox
		// гарантирует, что хотя бы одна ветка увидит пару; двойное
		// зачисление отсекает условный approve.
		t, err = s.store.GetByExternalID(ctx, n.ExternalID)
		if err != nil {
			return ReconciliationResult{}, err
		}
		if t != nil && t.Status == StatusPending && t.Amount != nil {
			return s.match(ctx, n.ExternalID, t.UserID, *t.Amount, n)
		}

		log.WithField("external_id", n.ExternalID).Info("Подтверждение буферизовано в inbox")
		return ReconciliationResult{Kind: ResultBuffered}, nil
	}

	if t.Status != StatusPending {
		log.WithFields(log.Fields{
			"external_id": n.ExternalID,
			"status":      t.Status,
		}).Info("Повторное подтверждение по закрытой транзакции — игнорируем")
		return ReconciliationResult{Kind: ResultAlreadyFinalized}, nil
	}

	return s.match(ctx, n.ExternalID, t.UserID, *t.Amount, n)
}

// match выполняет общую для обеих сторон ветку «обе суммы известны»:
// либо approve с зачислением ровно один раз, либо чистка по расхождению.
func (s *Service) match(ctx context.Context, externalID string, userID, amount int64, n *Notification) (ReconciliationResult, error) {
	if n.Amount == amount {
		err := s.store.ApproveAndCredit(ctx, externalID, userID, amount, n.Source)
		if errors.Is(err, errLostRace) {
			return ReconciliationResult{Kind: ResultAlreadyFinalized}, nil
		}
		if err != nil {
			return ReconciliationResult{}, err
		}
		log.WithFields(log.Fields{
			"external_id": externalID,
			"user_id":     userID,
			"amount":      amount,
			"source":      n.Source,
		}).Info("Депозит подтверждён, баланс зачислен")
		return ReconciliationResult{Kind: ResultApproved, Amount: amount}, nil
	}

	// Суммы разошлись: сигнал о возможном мошенничестве. Pending удаляем,
	// спорное подтверждение остаётся в inbox для ручного разбора.
	err := s.store.PurgeMismatch(ctx, externalID, n)
	if errors.Is(err, errLostRace) {
		return ReconciliationResult{Kind: ResultAlreadyFinalized}, nil
	}
	if err != nil {
		return ReconciliationResult{}, err
	}
	log.WithFields(log.Fields{
		"fraud_signal": true,
		"external_id":  externalID,
		"user_id":      userID,
		"claimed":      amount,
		"confirmed":    n.Amount,
	}).Warn("Расхождение сумм: транзакция удалена, подтверждение оставлено для аудита")
	return ReconciliationResult{Kind: ResultAmountMismatch}, nil
}

// RequestWithdrawal создаёт заявку на вывод: считает комиссию, атомарно
// списывает полную сумму с bot_balance и ставит заявку в очередь оператору.
func (s *Service) RequestWithdrawal(ctx context.Context, userID int64, playerID string, amount int64, method Method, accountNumber string) (*Transaction, error) {
	fee, net, err := ComputeWithdrawalFee(amount)
	if err != nil {
		return nil, err
	}
	if accountNumber == "" {
		return nil, common.NewValidationError("укажите номер счёта для выплаты")
	}

	t := &Transaction{
		UserID:        userID,
		PlayerID:      playerID,
		Type:          TypeWithdrawal,
		Method:        method,
		Amount:        &amount,
		Fee:           fee,
		FinalAmount:   net,
		AccountNumber: accountNumber,
		Status:        StatusApproved,
	}
	if err := s.store.InsertWithdrawal(ctx, t); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"transaction_id": t.TransactionID,
		"user_id":        userID,
		"amount":         amount,
		"fee":            fee,
		"final_amount":   net,
		"method":         method,
	}).Info("Заявка на вывод создана")
	return t, nil
}

// CompleteWithdrawal — операторское закрытие выплаченной заявки.
func (s *Service) CompleteWithdrawal(ctx context.Context, transactionID int64) error {
	if err := s.store.CompleteWithdrawal(ctx, transactionID); err != nil {
		return err
	}
	log.WithField("transaction_id", transactionID).Info("Заявка на вывод закрыта оператором")
	return nil
}

// History возвращает последние транзакции пользователя.
func (s *Service) History(ctx context.Context, userID int64, limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = 5
	}
	return s.store.ListRecent(ctx, userID, limit)
}

// DailySummary возвращает финансовую сводку за текущие сутки по Дамаску.
func (s *Service) DailySummary(ctx context.Context) (*Summary, error) {
	now := common.DamascusTime()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return s.store.Summarize(ctx, midnight)
}

// ReapStale — политика чистки: pending-депозиты без подтверждения и
// сироты в inbox живут ограниченное время, дальше удаляются с записью
// в журнал для ручной сверки.
func (s *Service) ReapStale(ctx context.Context) error {
	pendingCutoff := time.Now().Add(-time.Duration(s.cfg.ReaperPendingMaxAgeHours) * time.Hour)
	inboxCutoff := time.Now().AddDate(0, 0, -s.cfg.ReaperInboxMaxAgeDays)

	ids, err := s.store.DeleteStalePending(ctx, pendingCutoff)
	if err != nil {
		return fmt.Errorf("чистка pending: %w", err)
	}
	for _, id := range ids {
		log.WithField("external_id", id).Warn("Reaper удалил зависший pending-депозит")
	}

	ids, err = s.store.DeleteOldNotifications(ctx, inboxCutoff)
	if err != nil {
		return fmt.Errorf("чистка inbox: %w", err)
	}
	for _, id := range ids {
		log.WithField("external_id", id).Warn("Reaper удалил подтверждение-сироту из inbox")
	}
	return nil
}
