// Package wallet — repository.go выполняет все операции с таблицей wallets.
// Любая мутация, затрагивающая несколько значений, идёт одной транзакцией
// с блокировкой строки кошелька FOR UPDATE.
package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wayxpay.dev/wallet-bot/internal/common"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Get возвращает кошелёк пользователя.
func (r *Repository) Get(ctx context.Context, userID int64) (*Wallet, error) {
	query := `
		SELECT id, user_id, bot_balance, website_balance, game_balance,
		       game_points, game_status, created_at, updated_at
		FROM wallets
		WHERE user_id = $1
	`
	var w Wallet
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&w.ID, &w.UserID, &w.BotBalance, &w.WebsiteBalance, &w.GameBalance,
		&w.GamePoints, &w.GameStatus, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrWalletNotFound
		}
		return nil, fmt.Errorf("ошибка чтения кошелька (user_id=%d): %w", userID, err)
	}
	return &w, nil
}

// Credit зачисляет сумму в корзину.
func (r *Repository) Credit(ctx context.Context, userID int64, bucket Bucket, amount int64) error {
	col, ok := bucket.column()
	if !ok {
		return fmt.Errorf("неизвестная корзина: %s", bucket)
	}
	query := fmt.Sprintf(`
		UPDATE wallets
		SET %s = %s + $2, updated_at = NOW()
		WHERE user_id = $1
	`, col, col)
	tag, err := r.db.Exec(ctx, query, userID, amount)
	if err != nil {
		return fmt.Errorf("ошибка зачисления в %s: %w", bucket, err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrWalletNotFound
	}
	return nil
}

// Debit списывает сумму из корзины. Строка блокируется FOR UPDATE,
// баланс проверяется до списания — в минус корзина не уходит.
func (r *Repository) Debit(ctx context.Context, userID int64, bucket Bucket, amount int64) error {
	col, ok := bucket.column()
	if !ok {
		return fmt.Errorf("неизвестная корзина: %s", bucket)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var balance int64
	err = tx.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM wallets WHERE user_id = $1 FOR UPDATE`, col), userID,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return common.ErrWalletNotFound
		}
		return fmt.Errorf("ошибка чтения баланса: %w", err)
	}
	if balance < amount {
		return common.ErrInsufficientFunds
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(`
		UPDATE wallets
		SET %s = %s - $2, updated_at = NOW()
		WHERE user_id = $1
	`, col, col), userID, amount); err != nil {
		return fmt.Errorf("ошибка списания из %s: %w", bucket, err)
	}

	return tx.Commit(ctx)
}

// SpendWithPriority списывает сумму из корзин в заданном порядке одной
// транзакцией и возвращает фактическую разбивку по корзинам.
func (r *Repository) SpendWithPriority(ctx context.Context, userID, amount int64, order []Bucket) ([]Draw, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var w Wallet
	err = tx.QueryRow(ctx, `
		SELECT user_id, bot_balance, website_balance, game_balance
		FROM wallets
		WHERE user_id = $1
		FOR UPDATE
	`, userID).Scan(&w.UserID, &w.BotBalance, &w.WebsiteBalance, &w.GameBalance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrWalletNotFound
		}
		return nil, fmt.Errorf("ошибка чтения кошелька: %w", err)
	}

	draws, err := planSpend(&w, amount, order)
	if err != nil {
		return nil, err
	}

	for _, d := range draws {
		col, ok := d.Bucket.column()
		if !ok {
			return nil, fmt.Errorf("неизвестная корзина: %s", d.Bucket)
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf(`
			UPDATE wallets
			SET %s = %s - $2, updated_at = NOW()
			WHERE user_id = $1
		`, col, col), userID, d.Amount); err != nil {
			return nil, fmt.Errorf("ошибка списания из %s: %w", d.Bucket, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return draws, nil
}

// MoveWebsiteToBot переносит сумму из кэша сайта в баланс бота одной
// транзакцией: вызывается после подтверждённого вывода с сайта.
// website_balance — кэш и может отставать, поэтому не уходит ниже нуля.
func (r *Repository) MoveWebsiteToBot(ctx context.Context, userID, amount int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE wallets
		SET website_balance = GREATEST(website_balance - $2, 0),
		    bot_balance = bot_balance + $2,
		    updated_at = NOW()
		WHERE user_id = $1
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("ошибка переноса сайт→бот: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrWalletNotFound
	}
	return nil
}

// SetWebsiteBalance обновляет кэш баланса сайта значением, которое
// только что сообщил шлюз.
func (r *Repository) SetWebsiteBalance(ctx context.Context, userID, balance int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE wallets
		SET website_balance = $2, updated_at = NOW()
		WHERE user_id = $1
	`, userID, balance)
	if err != nil {
		return fmt.Errorf("ошибка обновления кэша баланса сайта: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrWalletNotFound
	}
	return nil
}

// advisoryLockGameBonus — ключ транзакционной advisory-блокировки,
// сериализующей начисления бонусов между собой: проверка общего фонда
// смотрит на все кошельки сразу, FOR UPDATE одной строки тут мало.
const advisoryLockGameBonus = 853211

// GrantGameBonus начисляет бонус на игровой баланс одной транзакцией:
// проверка персонального потолка, проверка общего фонда и зачисление
// либо проходят вместе, либо не проходят вовсе. Сумма срезается по
// остатку до персонального потолка; достигнутый потолок выключает
// участие прямо в том же UPDATE. Возвращает фактически начисленное.
func (r *Repository) GrantGameBonus(ctx context.Context, userID, amount, personalCap, globalCap int64) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryLockGameBonus); err != nil {
		return 0, fmt.Errorf("ошибка блокировки начислений бонусов: %w", err)
	}

	var balance int64
	var enabled bool
	err = tx.QueryRow(ctx,
		`SELECT game_balance, game_status FROM wallets WHERE user_id = $1 FOR UPDATE`, userID,
	).Scan(&balance, &enabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, common.ErrWalletNotFound
		}
		return 0, fmt.Errorf("ошибка чтения игрового баланса: %w", err)
	}
	if !enabled {
		return 0, common.ErrGameCapReached
	}

	room := personalCap - balance
	if room <= 0 {
		return 0, common.ErrGameCapReached
	}
	if amount > room {
		amount = room
	}

	var total int64
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(game_balance), 0) FROM wallets`,
	).Scan(&total); err != nil {
		return 0, fmt.Errorf("ошибка суммирования бонусных балансов: %w", err)
	}
	if total+amount > globalCap {
		return 0, common.ErrGamePoolExhausted
	}

	if _, err := tx.Exec(ctx, `
		UPDATE wallets
		SET game_balance = game_balance + $2,
		    game_status = (game_balance + $2 < $3),
		    updated_at = NOW()
		WHERE user_id = $1
	`, userID, amount, personalCap); err != nil {
		return 0, fmt.Errorf("ошибка начисления бонуса: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return amount, nil
}

// AddGamePoints начисляет бонусные очки.
func (r *Repository) AddGamePoints(ctx context.Context, userID, points int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE wallets
		SET game_points = game_points + $2, updated_at = NOW()
		WHERE user_id = $1
	`, userID, points)
	if err != nil {
		return fmt.Errorf("ошибка начисления очков: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrWalletNotFound
	}
	return nil
}

// SetGameStatus включает/выключает бонусную механику для пользователя.
func (r *Repository) SetGameStatus(ctx context.Context, userID int64, enabled bool) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE wallets
		SET game_status = $2, updated_at = NOW()
		WHERE user_id = $1
	`, userID, enabled)
	if err != nil {
		return fmt.Errorf("ошибка смены статуса бонусов: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrWalletNotFound
	}
	return nil
}
