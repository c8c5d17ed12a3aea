package game

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"wayxpay.dev/wallet-bot/internal/common"
	"wayxpay.dev/wallet-bot/internal/config"
	"wayxpay.dev/wallet-bot/internal/features/wallet"
)

// memWallets повторяет транзакционную семантику Repository.GrantGameBonus:
// проверки потолков и зачисление — один неделимый шаг.
type memWallets struct {
	wallets map[int64]*wallet.Wallet
}

func (s *memWallets) GrantGameBonus(_ context.Context, userID, amount, personalCap, globalCap int64) (int64, error) {
	w, ok := s.wallets[userID]
	if !ok {
		return 0, common.ErrWalletNotFound
	}
	if !w.GameStatus {
		return 0, common.ErrGameCapReached
	}
	room := personalCap - w.GameBalance
	if room <= 0 {
		return 0, common.ErrGameCapReached
	}
	if amount > room {
		amount = room
	}
	var total int64
	for _, o := range s.wallets {
		total += o.GameBalance
	}
	if total+amount > globalCap {
		return 0, common.ErrGamePoolExhausted
	}
	w.GameBalance += amount
	w.GameStatus = w.GameBalance < personalCap
	return amount, nil
}

func (s *memWallets) AddGamePoints(_ context.Context, userID, points int64) error {
	s.wallets[userID].GamePoints += points
	return nil
}

func (s *memWallets) SetGameStatus(_ context.Context, userID int64, enabled bool) error {
	s.wallets[userID].GameStatus = enabled
	return nil
}

func newGameFixture(gameBalance int64) (*memWallets, *Service) {
	store := &memWallets{wallets: map[int64]*wallet.Wallet{
		1: {UserID: 1, GameBalance: gameBalance, GameStatus: true},
	}}
	cfg := &config.Config{
		GameBalanceCap:     50000,
		GameGlobalCap:      1000000,
		FeatureGameEnabled: true,
	}
	return store, NewService(store, cfg)
}

func TestAwardBonus(t *testing.T) {
	store, svc := newGameFixture(0)

	granted, err := svc.AwardBonus(context.Background(), 1, 10000)
	assert.NoError(t, err)
	assert.Equal(t, int64(10000), granted)
	assert.Equal(t, int64(10000), store.wallets[1].GameBalance)
	assert.True(t, store.wallets[1].GameStatus)
}

func TestAwardBonusClampsToPersonalCap(t *testing.T) {
	store, svc := newGameFixture(45000)

	// До потолка 50000 осталось 5000 — бонус срезается, участие
	// выключается тем же начислением
	granted, err := svc.AwardBonus(context.Background(), 1, 10000)
	assert.NoError(t, err)
	assert.Equal(t, int64(5000), granted)
	assert.Equal(t, int64(50000), store.wallets[1].GameBalance)
	assert.False(t, store.wallets[1].GameStatus)

	// Потолок достигнут
	_, err = svc.AwardBonus(context.Background(), 1, 1)
	assert.ErrorIs(t, err, common.ErrGameCapReached)
	assert.Equal(t, int64(50000), store.wallets[1].GameBalance)
}

func TestAwardBonusGlobalCeiling(t *testing.T) {
	store, svc := newGameFixture(0)
	// Остальные кошельки уже выбрали почти весь фонд
	for i := int64(2); i <= 21; i++ {
		store.wallets[i] = &wallet.Wallet{UserID: i, GameBalance: 50000, GameStatus: true}
	}

	_, err := svc.AwardBonus(context.Background(), 1, 10000)
	assert.ErrorIs(t, err, common.ErrGamePoolExhausted)
	assert.Equal(t, int64(0), store.wallets[1].GameBalance, "отказ фонда ничего не зачисляет")
}

func TestAwardBonusDisabledUser(t *testing.T) {
	store, svc := newGameFixture(0)
	store.wallets[1].GameStatus = false

	_, err := svc.AwardBonus(context.Background(), 1, 10000)
	assert.ErrorIs(t, err, common.ErrGameCapReached)
}

func TestAwardBonusRejectsNonPositive(t *testing.T) {
	_, svc := newGameFixture(0)

	_, err := svc.AwardBonus(context.Background(), 1, 0)
	assert.ErrorIs(t, err, common.ErrInvalidAmount)
}

func TestAwardPoint(t *testing.T) {
	store, svc := newGameFixture(0)

	assert.NoError(t, svc.AwardPoint(context.Background(), 1, 3))
	assert.Equal(t, int64(3), store.wallets[1].GamePoints)

	assert.ErrorIs(t, svc.AwardPoint(context.Background(), 1, 0), common.ErrInvalidAmount)
}
