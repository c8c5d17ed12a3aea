// Package payments — ядро сверки депозитов и расчётов по выводам.
// models.go описывает структуры таблиц transactions и sms_inbox
// и результат сверки, который видят обработчики.
package payments

import "time"

// Status — состояние транзакции.
// Депозит живёт по схеме pending → approved (терминальное состояние),
// вывод создаётся сразу approved и закрывается оператором в completed.
// Обратных переходов из approved/completed не существует.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusCompleted Status = "completed"
)

// TxType — тип транзакции.
type TxType string

const (
	TypeDeposit    TxType = "deposit"
	TypeWithdrawal TxType = "withdrawal"
)

// Method — платёжный канал.
type Method string

const (
	MethodPayeer   Method = "Payeer"
	MethodBemo     Method = "Bemo"
	MethodSyriatel Method = "Syriatel"
)

// Source — откуда пришло подтверждение суммы.
type Source string

const (
	// SourceSMS — пересланное SMS платёжной сети (webhook)
	SourceSMS Source = "sms"
	// SourceUserInput — сумма, введённая пользователем в чате
	SourceUserInput Source = "user_input"
)

// Transaction представляет одну строку таблицы transactions.
// external_transaction_id — натуральный ключ сверки: номер операции,
// который выдаёт платёжная сеть. Уникален среди всех транзакций.
type Transaction struct {
	TransactionID      int64     `db:"transaction_id"`          // Внутренний автоинкрементный ID
	ExternalID         string    `db:"external_transaction_id"` // Номер операции платёжной сети
	UserID             int64     `db:"user_id"`                 // Telegram user ID
	PlayerID           string    `db:"player_id"`               // ID игрока на сайте букмекера
	Type               TxType    `db:"transaction_type"`        // deposit / withdrawal
	Method             Method    `db:"payment_method"`          // Payeer / Bemo / Syriatel
	Amount             *int64    `db:"amount"`                  // Сумма SYP; nil, пока пользователь её не назвал
	Fee                int64     `db:"fee"`                     // Комиссия (только для выводов)
	FinalAmount        int64     `db:"final_amount"`            // Сумма к выплате после комиссии
	AccountNumber      string    `db:"account_number"`          // Куда выплачивать вывод
	Status             Status    `db:"status"`
	VerificationSource Source    `db:"verification_source"` // Чем подтверждён депозит
	CreatedAt          time.Time `db:"created_at"`
}

// Notification — каноническое подтверждение платежа: то, что осталось
// от SMS или пользовательского ввода после нормализации.
// Хранится в sms_inbox, пока не найдена парная pending-транзакция.
type Notification struct {
	ExternalID string    `db:"external_transaction_id"`
	Amount     int64     `db:"amount"`
	Sender     string    `db:"sender"` // номер телефона отправителя из SMS
	Source     Source    `db:"source"` // каким каналом пришло подтверждение
	ReceivedAt time.Time `db:"received_at"`
}

// ResultKind — исход одной попытки сверки.
type ResultKind int

const (
	// ResultApproved — сумма совпала, баланс зачислен ровно один раз
	ResultApproved ResultKind = iota
	// ResultAwaitingConfirmation — сумма записана, ждём подтверждение сети
	ResultAwaitingConfirmation
	// ResultBuffered — подтверждение пришло раньше транзакции, положено в inbox
	ResultBuffered
	// ResultAlreadyFinalized — транзакция уже закрыта, повтор ничего не меняет
	ResultAlreadyFinalized
	// ResultAmountMismatch — суммы разошлись: pending удалён, подтверждение оставлено для аудита
	ResultAmountMismatch
)

// ReconciliationResult — типизированный результат AttachAmount / IngestNotification.
type ReconciliationResult struct {
	Kind   ResultKind
	Amount int64 // зачисленная сумма при ResultApproved
}

func (k ResultKind) String() string {
	switch k {
	case ResultApproved:
		return "approved"
	case ResultAwaitingConfirmation:
		return "awaiting_confirmation"
	case ResultBuffered:
		return "buffered"
	case ResultAlreadyFinalized:
		return "already_finalized"
	case ResultAmountMismatch:
		return "amount_mismatch"
	}
	return "unknown"
}
