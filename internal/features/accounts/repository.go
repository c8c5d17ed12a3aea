package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"wayxpay.dev/wallet-bot/internal/common"
)

const pgUniqueViolation = "23505"

// Repository — доступ к учётным записям.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий учётных записей.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateWithWallet создаёт учётную запись и пустой кошелёк одной
// транзакцией: учётки без кошелька быть не должно.
func (r *Repository) CreateWithWallet(ctx context.Context, a *Account) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO accounts (user_id, player_id, username, first_name, password_hash)
		VALUES ($1, $2, $3, $4, $5)
	`, a.UserID, a.PlayerID, a.Username, a.FirstName, a.PasswordHash)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return common.ErrAccountExists
		}
		return fmt.Errorf("ошибка создания учётной записи: %w", err)
	}

	_, err = tx.Exec(ctx, `INSERT INTO wallets (user_id) VALUES ($1)`, a.UserID)
	if err != nil {
		return fmt.Errorf("ошибка создания кошелька: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

// GetByUserID возвращает учётную запись по идентификатору Telegram.
func (r *Repository) GetByUserID(ctx context.Context, userID int64) (*Account, error) {
	a := &Account{}
	err := r.db.QueryRow(ctx, `
		SELECT user_id, player_id, username, first_name, password_hash, created_at
		FROM accounts
		WHERE user_id = $1
	`, userID).Scan(&a.UserID, &a.PlayerID, &a.Username, &a.FirstName, &a.PasswordHash, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrAccountNotFound
		}
		return nil, fmt.Errorf("ошибка получения учётной записи: %w", err)
	}
	return a, nil
}

// Count возвращает число зарегистрированных учётных записей.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта учётных записей: %w", err)
	}
	return n, nil
}
