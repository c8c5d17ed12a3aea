// Package payments — repository.go выполняет все операции с таблицами
// transactions и sms_inbox. Каждый approve-путь — одна транзакция БД
// с условным переводом статуса: смена статуса и зачисление баланса
// либо происходят вместе, либо не происходят вовсе.
package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"wayxpay.dev/wallet-bot/internal/common"
)

// errLostRace — второй участник гонки уже закрыл транзакцию.
// Конкурирующие AttachAmount и IngestNotification сериализуются через
// условный UPDATE ... WHERE status = 'pending': ровно одна из веток
// зачисляет баланс, вторая получает эту ошибку.
var errLostRace = errors.New("транзакция уже закрыта параллельной сверкой")

const pgUniqueViolation = "23505"

// Repository предоставляет методы для работы с транзакциями и inbox.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт новый репозиторий платежей.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// InsertPending регистрирует новую pending-транзакцию без суммы.
// Дубликат внешнего номера — ErrDuplicateExternalID (уникальный
// индекс по external_transaction_id, молча не перезаписываем).
func (r *Repository) InsertPending(ctx context.Context, t *Transaction) error {
	query := `
		INSERT INTO transactions (external_transaction_id, user_id, player_id, transaction_type, payment_method, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query,
		t.ExternalID, t.UserID, t.PlayerID, t.Type, t.Method, StatusPending,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return common.ErrDuplicateExternalID
		}
		return fmt.Errorf("ошибка регистрации транзакции: %w", err)
	}
	return nil
}

// GetByExternalID возвращает транзакцию по внешнему номеру.
// Если транзакции нет — (nil, nil).
func (r *Repository) GetByExternalID(ctx context.Context, externalID string) (*Transaction, error) {
	query := `
		SELECT transaction_id, external_transaction_id, user_id, player_id, transaction_type,
		       payment_method, amount, fee, final_amount, account_number, status,
		       COALESCE(verification_source, ''), created_at
		FROM transactions
		WHERE external_transaction_id = $1
	`
	var t Transaction
	err := r.db.QueryRow(ctx, query, externalID).Scan(
		&t.TransactionID, &t.ExternalID, &t.UserID, &t.PlayerID, &t.Type,
		&t.Method, &t.Amount, &t.Fee, &t.FinalAmount, &t.AccountNumber, &t.Status,
		&t.VerificationSource, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка чтения транзакции (%s): %w", externalID, err)
	}
	return &t, nil
}

// SetAmount записывает заявленную пользователем сумму в его pending-транзакцию.
// Возвращает false, если подходящей транзакции нет.
func (r *Repository) SetAmount(ctx context.Context, externalID string, userID, amount int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE transactions
		SET amount = $3
		WHERE external_transaction_id = $1 AND user_id = $2 AND status = $4
	`, externalID, userID, amount, StatusPending)
	if err != nil {
		return false, fmt.Errorf("ошибка записи суммы: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetNotification читает подтверждение из inbox. Если его нет — (nil, nil).
func (r *Repository) GetNotification(ctx context.Context, externalID string) (*Notification, error) {
	query := `
		SELECT external_transaction_id, amount, sender, source, received_at
		FROM sms_inbox
		WHERE external_transaction_id = $1
	`
	var n Notification
	err := r.db.QueryRow(ctx, query, externalID).Scan(
		&n.ExternalID, &n.Amount, &n.Sender, &n.Source, &n.ReceivedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка чтения inbox (%s): %w", externalID, err)
	}
	return &n, nil
}

// BufferNotification кладёт подтверждение в inbox до появления парной
// транзакции. Повторная доставка того же SMS обновляет запись, а не плодит её.
func (r *Repository) BufferNotification(ctx context.Context, n *Notification) error {
	query := `
		INSERT INTO sms_inbox (external_transaction_id, amount, sender, source, received_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (external_transaction_id) DO UPDATE
		SET amount = EXCLUDED.amount, sender = EXCLUDED.sender, source = EXCLUDED.source, received_at = EXCLUDED.received_at
	`
	if _, err := r.db.Exec(ctx, query, n.ExternalID, n.Amount, n.Sender, n.Source, n.ReceivedAt); err != nil {
		return fmt.Errorf("ошибка буферизации подтверждения: %w", err)
	}
	return nil
}

// ApproveAndCredit закрывает сверку: переводит транзакцию в approved,
// зачисляет bot_balance и удаляет подтверждение из inbox — всё одной
// транзакцией БД. Частичное применение исключено.
//
// Если статус уже не pending (вторая ветка гонки успела раньше или
// подтверждение доставлено повторно) — errLostRace, никаких мутаций.
func (r *Repository) ApproveAndCredit(ctx context.Context, externalID string, userID, amount int64, source Source) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE transactions
		SET status = $2, verification_source = $3
		WHERE external_transaction_id = $1 AND status = $4
	`, externalID, StatusApproved, source, StatusPending)
	if err != nil {
		return fmt.Errorf("ошибка перевода статуса: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errLostRace
	}

	tag, err = tx.Exec(ctx, `
		UPDATE wallets
		SET bot_balance = bot_balance + $2, updated_at = NOW()
		WHERE user_id = $1
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("ошибка зачисления баланса: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrWalletNotFound
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM sms_inbox WHERE external_transaction_id = $1`, externalID,
	); err != nil {
		return fmt.Errorf("ошибка очистки inbox: %w", err)
	}

	return tx.Commit(ctx)
}

// PurgeMismatch обрабатывает расхождение сумм: pending-строка удаляется
// (внешний номер освобождается для повторной попытки), а спорное
// подтверждение остаётся в inbox для ручного разбора.
func (r *Repository) PurgeMismatch(ctx context.Context, externalID string, n *Notification) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		DELETE FROM transactions
		WHERE external_transaction_id = $1 AND status = $2
	`, externalID, StatusPending)
	if err != nil {
		return fmt.Errorf("ошибка удаления транзакции: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errLostRace
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO sms_inbox (external_transaction_id, amount, sender, source, received_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (external_transaction_id) DO UPDATE
		SET amount = EXCLUDED.amount, sender = EXCLUDED.sender, source = EXCLUDED.source, received_at = EXCLUDED.received_at
	`, n.ExternalID, n.Amount, n.Sender, n.Source, n.ReceivedAt); err != nil {
		return fmt.Errorf("ошибка сохранения спорного подтверждения: %w", err)
	}

	return tx.Commit(ctx)
}

// InsertWithdrawal атомарно списывает полную сумму вывода с bot_balance
// и создаёт заявку в статусе approved (очередь на ручную выплату).
// Строка кошелька блокируется FOR UPDATE на время проверки баланса.
func (r *Repository) InsertWithdrawal(ctx context.Context, t *Transaction) error {
	if t.Amount == nil {
		return common.ErrInvalidAmount
	}
	amount := *t.Amount

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var balance int64
	err = tx.QueryRow(ctx,
		`SELECT bot_balance FROM wallets WHERE user_id = $1 FOR UPDATE`, t.UserID,
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

	if _, err := tx.Exec(ctx, `
		UPDATE wallets
		SET bot_balance = bot_balance - $2, updated_at = NOW()
		WHERE user_id = $1
	`, t.UserID, amount); err != nil {
		return fmt.Errorf("ошибка списания: %w", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO transactions
			(user_id, player_id, transaction_type, payment_method, amount, fee, final_amount, account_number, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING transaction_id, created_at
	`, t.UserID, t.PlayerID, TypeWithdrawal, t.Method, amount, t.Fee, t.FinalAmount, t.AccountNumber, StatusApproved,
	).Scan(&t.TransactionID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания заявки на вывод: %w", err)
	}

	return tx.Commit(ctx)
}

// CompleteWithdrawal — операторское закрытие заявки: approved → completed.
// Повтор идемпотентен: уже закрытая заявка даёт ErrAlreadyCompleted.
func (r *Repository) CompleteWithdrawal(ctx context.Context, transactionID int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE transactions
		SET status = $2
		WHERE transaction_id = $1 AND status = $3
	`, transactionID, StatusCompleted, StatusApproved)
	if err != nil {
		return fmt.Errorf("ошибка закрытия заявки: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var status Status
	err = r.db.QueryRow(ctx,
		`SELECT status FROM transactions WHERE transaction_id = $1`, transactionID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return common.ErrNoPendingTransaction
		}
		return fmt.Errorf("ошибка чтения статуса заявки: %w", err)
	}
	if status == StatusCompleted {
		return common.ErrAlreadyCompleted
	}
	return common.ErrNoPendingTransaction
}

// ListRecent возвращает последние N транзакций пользователя.
func (r *Repository) ListRecent(ctx context.Context, userID int64, limit int) ([]*Transaction, error) {
	query := `
		SELECT transaction_id, external_transaction_id, user_id, player_id, transaction_type,
		       payment_method, amount, fee, final_amount, account_number, status,
		       COALESCE(verification_source, ''), created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения истории: %w", err)
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(
			&t.TransactionID, &t.ExternalID, &t.UserID, &t.PlayerID, &t.Type,
			&t.Method, &t.Amount, &t.Fee, &t.FinalAmount, &t.AccountNumber, &t.Status,
			&t.VerificationSource, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования транзакции: %w", err)
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}

// DeleteStalePending удаляет pending-депозиты старше cutoff и возвращает
// их внешние номера (для журнала reaper). Номера освобождаются для
// повторной регистрации.
func (r *Repository) DeleteStalePending(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		DELETE FROM transactions
		WHERE status = $1 AND transaction_type = $2 AND created_at < $3
		RETURNING external_transaction_id
	`, StatusPending, TypeDeposit, cutoff)
	if err != nil {
		return nil, fmt.Errorf("ошибка чистки pending: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// DeleteOldNotifications чистит inbox от подтверждений-сирот старше cutoff.
func (r *Repository) DeleteOldNotifications(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		DELETE FROM sms_inbox
		WHERE received_at < $1
		RETURNING external_transaction_id
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("ошибка чистки inbox: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// Summary — финансовая сводка для оператора.
type Summary struct {
	Deposits         int64 // закрытых депозитов
	DepositVolume    int64 // сумма закрытых депозитов
	Withdrawals      int64 // заявок на вывод
	WithdrawalVolume int64 // сумма заявок (до комиссии)
	FeeVolume        int64 // собранные комиссии
	OpenWithdrawals  int64 // заявок, ждущих выплаты оператором
}

// Summarize агрегирует транзакции с указанного момента.
func (r *Repository) Summarize(ctx context.Context, since time.Time) (*Summary, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE transaction_type = $2 AND status <> $4),
			COALESCE(SUM(amount) FILTER (WHERE transaction_type = $2 AND status <> $4), 0),
			COUNT(*) FILTER (WHERE transaction_type = $3),
			COALESCE(SUM(amount) FILTER (WHERE transaction_type = $3), 0),
			COALESCE(SUM(fee) FILTER (WHERE transaction_type = $3), 0),
			COUNT(*) FILTER (WHERE transaction_type = $3 AND status = $5)
		FROM transactions
		WHERE created_at >= $1
	`
	var s Summary
	err := r.db.QueryRow(ctx, query, since, TypeDeposit, TypeWithdrawal, StatusPending, StatusApproved).Scan(
		&s.Deposits, &s.DepositVolume, &s.Withdrawals, &s.WithdrawalVolume, &s.FeeVolume, &s.OpenWithdrawals,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка сводки: %w", err)
	}
	return &s, nil
}

func scanIDs(rows pgx.Rows) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ошибка сканирования id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return ids, nil
}
