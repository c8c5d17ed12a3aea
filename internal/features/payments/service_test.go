package payments

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"wayxpay.dev/wallet-bot/internal/common"
	"wayxpay.dev/wallet-bot/internal/config"
)

// memStore — хранилище в памяти с той же семантикой условных
// обновлений, что и у Repository: approve закрывает pending ровно
// один раз, проигравшая ветка получает errLostRace.
type memStore struct {
	mu          sync.Mutex
	txs         map[string]*Transaction
	withdrawals map[int64]*Transaction
	inbox       map[string]*Notification
	balances    map[int64]int64
	nextID      int64
}

func newMemStore() *memStore {
	return &memStore{
		txs:         make(map[string]*Transaction),
		withdrawals: make(map[int64]*Transaction),
		inbox:       make(map[string]*Notification),
		balances:    make(map[int64]int64),
	}
}

func (s *memStore) InsertPending(_ context.Context, t *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txs[t.ExternalID]; ok {
		return common.ErrDuplicateExternalID
	}
	s.nextID++
	t.TransactionID = s.nextID
	t.CreatedAt = time.Now()
	cp := *t
	s.txs[t.ExternalID] = &cp
	return nil
}

func (s *memStore) GetByExternalID(_ context.Context, externalID string) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txs[externalID]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (s *memStore) SetAmount(_ context.Context, externalID string, userID, amount int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txs[externalID]
	if !ok || t.UserID != userID || t.Status != StatusPending {
		return false, nil
	}
	t.Amount = &amount
	return true, nil
}

func (s *memStore) GetNotification(_ context.Context, externalID string) (*Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.inbox[externalID]
	if !ok {
		return nil, nil
	}
	cp := *n
	return &cp, nil
}

func (s *memStore) BufferNotification(_ context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *n
	s.inbox[n.ExternalID] = &cp
	return nil
}

func (s *memStore) ApproveAndCredit(_ context.Context, externalID string, userID, amount int64, source Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txs[externalID]
	if !ok || t.Status != StatusPending {
		return errLostRace
	}
	t.Status = StatusApproved
	t.Amount = &amount
	t.VerificationSource = source
	s.balances[userID] += amount
	delete(s.inbox, externalID)
	return nil
}

func (s *memStore) PurgeMismatch(_ context.Context, externalID string, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txs[externalID]
	if !ok || t.Status != StatusPending {
		return errLostRace
	}
	delete(s.txs, externalID)
	cp := *n
	s.inbox[externalID] = &cp
	return nil
}

func (s *memStore) InsertWithdrawal(_ context.Context, t *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.balances[t.UserID] < *t.Amount {
		return common.ErrInsufficientFunds
	}
	s.balances[t.UserID] -= *t.Amount
	s.nextID++
	t.TransactionID = s.nextID
	t.CreatedAt = time.Now()
	cp := *t
	s.withdrawals[t.TransactionID] = &cp
	return nil
}

func (s *memStore) CompleteWithdrawal(_ context.Context, transactionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.withdrawals[transactionID]
	if !ok {
		return common.ErrNoPendingTransaction
	}
	if t.Status == StatusCompleted {
		return common.ErrAlreadyCompleted
	}
	t.Status = StatusCompleted
	return nil
}

func (s *memStore) ListRecent(_ context.Context, userID int64, limit int) ([]*Transaction, error) {
	return nil, nil
}

func (s *memStore) DeleteStalePending(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, t := range s.txs {
		if t.Status == StatusPending && t.CreatedAt.Before(cutoff) {
			delete(s.txs, id)
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *memStore) DeleteOldNotifications(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, n := range s.inbox {
		if n.ReceivedAt.Before(cutoff) {
			delete(s.inbox, id)
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *memStore) Summarize(_ context.Context, since time.Time) (*Summary, error) {
	return &Summary{}, nil
}

func (s *memStore) balance(userID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[userID]
}

func newTestService(store Store) *Service {
	return NewService(store, &config.Config{
		ExchangeRate:             10000,
		ReaperPendingMaxAgeHours: 48,
		ReaperInboxMaxAgeDays:    14,
	})
}

const (
	testUser   = int64(1001)
	testPlayer = "777001"
)

func TestDepositUserFirst(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)

	_, err := svc.RegisterPending(ctx, "600000000001", testUser, testPlayer, MethodSyriatel)
	assert.NoError(t, err)

	res, err := svc.AttachAmount(ctx, "600000000001", testUser, 50000)
	assert.NoError(t, err)
	assert.Equal(t, ResultAwaitingConfirmation, res.Kind)
	assert.Equal(t, int64(0), store.balance(testUser), "одна сторона не зачисляет")

	res, err = svc.IngestNotification(ctx, &Notification{
		ExternalID: "600000000001", Amount: 50000, Source: SourceSMS,
	})
	assert.NoError(t, err)
	assert.Equal(t, ResultApproved, res.Kind)
	assert.Equal(t, int64(50000), store.balance(testUser))
}

func TestDepositSMSFirst(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)

	res, err := svc.IngestNotification(ctx, &Notification{
		ExternalID: "600000000001", Amount: 50000, Source: SourceSMS,
	})
	assert.NoError(t, err)
	assert.Equal(t, ResultBuffered, res.Kind)
	assert.Equal(t, int64(0), store.balance(testUser), "одинокое подтверждение не зачисляет")

	_, err = svc.RegisterPending(ctx, "600000000001", testUser, testPlayer, MethodSyriatel)
	assert.NoError(t, err)

	res, err = svc.AttachAmount(ctx, "600000000001", testUser, 50000)
	assert.NoError(t, err)
	assert.Equal(t, ResultApproved, res.Kind)
	assert.Equal(t, int64(50000), store.balance(testUser))
}

// raceStore оборачивает memStore и даёт вклиниться между чтением
// транзакции и буферизацией подтверждения внутри IngestNotification.
type raceStore struct {
	*memStore
	beforeBuffer func()
}

func (s *raceStore) BufferNotification(ctx context.Context, n *Notification) error {
	if s.beforeBuffer != nil {
		hook := s.beforeBuffer
		s.beforeBuffer = nil
		hook()
	}
	return s.memStore.BufferNotification(ctx, n)
}

// Самое неудобное переплетение веток: ingest читает pending ещё без
// суммы, затем пользователь называет сумму и не находит подтверждения
// в inbox, и только после этого ingest буферизует SMS. Обе стороны
// на месте и совпадают — сводить обязан ingest, иначе депозит зависает
// до реапера.
func TestDepositInterleavedAttachAndIngest(t *testing.T) {
	ctx := context.Background()
	store := &raceStore{memStore: newMemStore()}
	svc := newTestService(store)

	_, err := svc.RegisterPending(ctx, "600000000001", testUser, testPlayer, MethodSyriatel)
	assert.NoError(t, err)

	var attachKind ResultKind
	store.beforeBuffer = func() {
		res, err := svc.AttachAmount(ctx, "600000000001", testUser, 50000)
		assert.NoError(t, err)
		attachKind = res.Kind
	}

	res, err := svc.IngestNotification(ctx, &Notification{
		ExternalID: "600000000001", Amount: 50000, Source: SourceSMS,
	})
	assert.NoError(t, err)
	assert.Equal(t, ResultAwaitingConfirmation, attachKind, "attach подтверждения ещё не видел")
	assert.Equal(t, ResultApproved, res.Kind)
	assert.Equal(t, int64(50000), store.balance(testUser), "зачислено ровно один раз")

	tx, _ := store.GetByExternalID(ctx, "600000000001")
	assert.Equal(t, StatusApproved, tx.Status)
	n, _ := store.GetNotification(ctx, "600000000001")
	assert.Nil(t, n, "inbox очищен при approve")
}

func TestDepositReplayIsNoop(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)

	_, _ = svc.RegisterPending(ctx, "600000000001", testUser, testPlayer, MethodSyriatel)
	_, _ = svc.AttachAmount(ctx, "600000000001", testUser, 50000)
	n := &Notification{ExternalID: "600000000001", Amount: 50000, Source: SourceSMS}

	res, err := svc.IngestNotification(ctx, n)
	assert.NoError(t, err)
	assert.Equal(t, ResultApproved, res.Kind)

	// Повтор SMS и повтор суммы от пользователя — оба no-op
	res, err = svc.IngestNotification(ctx, n)
	assert.NoError(t, err)
	assert.Equal(t, ResultAlreadyFinalized, res.Kind)

	_, err = svc.AttachAmount(ctx, "600000000001", testUser, 50000)
	assert.ErrorIs(t, err, common.ErrNoPendingTransaction)

	assert.Equal(t, int64(50000), store.balance(testUser), "зачисление ровно один раз")
}

func TestDepositAmountMismatch(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)

	_, _ = svc.RegisterPending(ctx, "600000000001", testUser, testPlayer, MethodSyriatel)
	_, _ = svc.AttachAmount(ctx, "600000000001", testUser, 90000)

	res, err := svc.IngestNotification(ctx, &Notification{
		ExternalID: "600000000001", Amount: 50000, Source: SourceSMS,
	})
	assert.NoError(t, err)
	assert.Equal(t, ResultAmountMismatch, res.Kind)
	assert.Equal(t, int64(0), store.balance(testUser))

	// pending удалён, подтверждение осталось для ручного разбора
	tx, _ := store.GetByExternalID(ctx, "600000000001")
	assert.Nil(t, tx)
	n, _ := store.GetNotification(ctx, "600000000001")
	assert.NotNil(t, n)
	assert.Equal(t, int64(50000), n.Amount)
}

func TestDuplicateExternalID(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)

	_, err := svc.RegisterPending(ctx, "600000000001", testUser, testPlayer, MethodSyriatel)
	assert.NoError(t, err)

	existing, err := svc.RegisterPending(ctx, "600000000001", int64(2002), "777002", MethodSyriatel)
	assert.ErrorIs(t, err, common.ErrDuplicateExternalID)
	assert.NotNil(t, existing)
	assert.Equal(t, testUser, existing.UserID)
	assert.Equal(t, StatusPending, existing.Status)
}

func TestRegisterPendingValidatesID(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newMemStore())

	_, err := svc.RegisterPending(ctx, "12345", testUser, testPlayer, MethodSyriatel)
	assert.True(t, common.IsValidation(err))

	_, err = svc.RegisterPending(ctx, "60000000000a", testUser, testPlayer, MethodSyriatel)
	assert.True(t, common.IsValidation(err))
}

func TestPayeerConversionBeforeMatch(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)

	// Подтверждение сети уже в SYP
	_, _ = svc.IngestNotification(ctx, &Notification{
		ExternalID: "1234567890", Amount: 50000, Source: SourceSMS,
	})

	_, err := svc.RegisterPending(ctx, "1234567890", testUser, testPlayer, MethodPayeer)
	assert.NoError(t, err)

	// Пользователь вводит 5 USD, курс 10000 → 50000 SYP
	res, err := svc.AttachAmount(ctx, "1234567890", testUser, 5)
	assert.NoError(t, err)
	assert.Equal(t, ResultApproved, res.Kind)
	assert.Equal(t, int64(50000), store.balance(testUser))
}

// Сквозной сценарий: SMS Syriatel с 12-значным номером приходит раньше,
// пользователь заявляет депозит следом.
func TestSyriatelEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)

	n, err := NormalizeSMS("رصيدك 50000 تم تحويله من 0912345678 بنجاح رقم العملية: 600000000001", "Syriatel")
	assert.NoError(t, err)

	res, err := svc.IngestNotification(ctx, n)
	assert.NoError(t, err)
	assert.Equal(t, ResultBuffered, res.Kind)

	_, err = svc.RegisterPending(ctx, "600000000001", testUser, testPlayer, MethodSyriatel)
	assert.NoError(t, err)

	res, err = svc.AttachAmount(ctx, "600000000001", testUser, 50000)
	assert.NoError(t, err)
	assert.Equal(t, ResultApproved, res.Kind)
	assert.Equal(t, int64(50000), res.Amount)
	assert.Equal(t, int64(50000), store.balance(testUser))
}

func TestRequestWithdrawal(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)
	store.balances[testUser] = 2_000_000

	tx, err := svc.RequestWithdrawal(ctx, testUser, testPlayer, 1_000_000, MethodSyriatel, "0912345678")
	assert.NoError(t, err)
	assert.Equal(t, StatusApproved, tx.Status)
	assert.Equal(t, int64(100_000), tx.Fee)
	assert.Equal(t, int64(900_000), tx.FinalAmount)
	// Списывается полная сумма, комиссия остаётся площадке
	assert.Equal(t, int64(1_000_000), store.balance(testUser))
}

func TestRequestWithdrawalInsufficient(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)
	store.balances[testUser] = 100

	_, err := svc.RequestWithdrawal(ctx, testUser, testPlayer, 1_000_000, MethodSyriatel, "0912345678")
	assert.ErrorIs(t, err, common.ErrInsufficientFunds)
	assert.Equal(t, int64(100), store.balance(testUser))
}

func TestRequestWithdrawalRequiresAccount(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newMemStore())

	_, err := svc.RequestWithdrawal(ctx, testUser, testPlayer, 1_000_000, MethodSyriatel, "")
	assert.True(t, common.IsValidation(err))
}

func TestCompleteWithdrawalIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)
	store.balances[testUser] = 2_000_000

	tx, err := svc.RequestWithdrawal(ctx, testUser, testPlayer, 500_000, MethodBemo, "acc-1")
	assert.NoError(t, err)

	assert.NoError(t, svc.CompleteWithdrawal(ctx, tx.TransactionID))
	assert.ErrorIs(t, svc.CompleteWithdrawal(ctx, tx.TransactionID), common.ErrAlreadyCompleted)
	assert.ErrorIs(t, svc.CompleteWithdrawal(ctx, 9999), common.ErrNoPendingTransaction)
}

func TestReapStale(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)

	_, _ = svc.RegisterPending(ctx, "600000000001", testUser, testPlayer, MethodSyriatel)
	store.mu.Lock()
	store.txs["600000000001"].CreatedAt = time.Now().Add(-72 * time.Hour)
	store.mu.Unlock()

	_ = store.BufferNotification(ctx, &Notification{
		ExternalID: "123456789", Amount: 1000, Source: SourceSMS,
		ReceivedAt: time.Now().AddDate(0, 0, -30),
	})

	assert.NoError(t, svc.ReapStale(ctx))

	tx, _ := store.GetByExternalID(ctx, "600000000001")
	assert.Nil(t, tx, "зависший pending удалён, номер операции свободен")
	n, _ := store.GetNotification(ctx, "123456789")
	assert.Nil(t, n, "сирота из inbox удалена")
}
