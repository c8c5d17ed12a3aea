// Package wallet — леджер с несколькими корзинами на пользователя.
// models.go описывает структуру таблицы wallets и план приоритетного
// списания.
package wallet

import (
	"time"

	"wayxpay.dev/wallet-bot/internal/common"
)

// Bucket — именованная корзина внутри кошелька со своими правилами
// пополнения и списания.
type Bucket string

const (
	// BucketBot — расходуемый баланс бота (основной леджер)
	BucketBot Bucket = "bot_balance"
	// BucketWebsite — кэш последнего известного баланса на сайте (не авторитетен)
	BucketWebsite Bucket = "website_balance"
	// BucketGame — бонусный суб-леджер с приоритетом расходования и потолком
	BucketGame Bucket = "game_balance"
)

// column возвращает имя столбца для корзины. Белый список: имя столбца
// никогда не приходит снаружи в SQL напрямую.
func (b Bucket) column() (string, bool) {
	switch b {
	case BucketBot, BucketWebsite, BucketGame:
		return string(b), true
	}
	return "", false
}

// Wallet представляет кошелёк пользователя. Создаётся атомарно вместе
// с аккаунтом, ровно один на пользователя. Все балансы ≥ 0.
type Wallet struct {
	ID             int64     `db:"id"`
	UserID         int64     `db:"user_id"`
	BotBalance     int64     `db:"bot_balance"`
	WebsiteBalance int64     `db:"website_balance"`
	GameBalance    int64     `db:"game_balance"`
	GamePoints     int64     `db:"game_points"`
	GameStatus     bool      `db:"game_status"` // включена ли бонусная механика для пользователя
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// BalanceOf возвращает значение корзины.
func (w *Wallet) BalanceOf(b Bucket) int64 {
	switch b {
	case BucketBot:
		return w.BotBalance
	case BucketWebsite:
		return w.WebsiteBalance
	case BucketGame:
		return w.GameBalance
	}
	return 0
}

// Draw — сколько реально списано из конкретной корзины при
// приоритетном расходовании. Разбивка нужна вызывающему, чтобы
// внешний вызов на сайт и списание в леджере означали одну сумму.
type Draw struct {
	Bucket Bucket
	Amount int64
}

// planSpend распределяет сумму по корзинам в заданном порядке:
// сначала полностью вычерпывается первая корзина, затем следующая.
// Чистая функция; нулевые списания в план не попадают.
func planSpend(w *Wallet, amount int64, order []Bucket) ([]Draw, error) {
	if amount <= 0 {
		return nil, common.ErrInvalidAmount
	}

	var draws []Draw
	remaining := amount
	for _, b := range order {
		if remaining == 0 {
			break
		}
		avail := w.BalanceOf(b)
		if avail <= 0 {
			continue
		}
		take := avail
		if take > remaining {
			take = remaining
		}
		draws = append(draws, Draw{Bucket: b, Amount: take})
		remaining -= take
	}
	if remaining > 0 {
		return nil, common.ErrInsufficientFunds
	}
	return draws, nil
}
