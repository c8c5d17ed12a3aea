// Package common — errors.go определяет типизированные ошибки,
// которые возвращает ядро кошелька. Обработчики по ним различают
// тип проблемы и формируют ответ пользователю; через границу UI
// ошибки никогда не летят как непонятные исключения.
package common

import (
	"errors"
	"fmt"
)

// Ошибки сверки депозитов
var (
	// ErrDuplicateExternalID — транзакция с таким внешним номером уже существует
	ErrDuplicateExternalID = errors.New("операция с таким номером уже зарегистрирована")
	// ErrNoPendingTransaction — нет ожидающей транзакции для этого пользователя
	ErrNoPendingTransaction = errors.New("ожидающая транзакция не найдена")
	// ErrAmountMismatch — сумма из SMS не совпала с заявленной (возможное мошенничество)
	ErrAmountMismatch = errors.New("сумма не совпадает с подтверждением платёжной сети")
)

// Ошибки кошелька
var (
	// ErrInsufficientFunds — списание увело бы баланс в минус
	ErrInsufficientFunds = errors.New("недостаточно средств на балансе")
	// ErrWalletNotFound — у пользователя нет кошелька
	ErrWalletNotFound = errors.New("кошелёк не найден")
	// ErrInvalidAmount — сумма нулевая или отрицательная
	ErrInvalidAmount = errors.New("сумма должна быть положительной")
)

// Ошибки аккаунтов
var (
	// ErrAccountNotFound — аккаунт не зарегистрирован
	ErrAccountNotFound = errors.New("аккаунт не найден, сначала зарегистрируйтесь")
	// ErrAccountExists — у пользователя уже есть аккаунт
	ErrAccountExists = errors.New("аккаунт уже существует")
	// ErrWrongPassword — неверный пароль оператора
	ErrWrongPassword = errors.New("неверный пароль")
)

// Ошибки бонусной механики
var (
	// ErrGameCapReached — достигнут личный потолок бонусного баланса
	ErrGameCapReached = errors.New("достигнут лимит бонусного баланса")
	// ErrGamePoolExhausted — глобальный бонусный пул исчерпан, механика отключена
	ErrGamePoolExhausted = errors.New("бонусный пул исчерпан")
)

// Ошибки вывода средств
var (
	// ErrAlreadyCompleted — заявка на вывод уже закрыта оператором
	ErrAlreadyCompleted = errors.New("заявка уже выполнена")
)

// ValidationError — некорректный ввод пользователя (номер операции, сумма, SMS
// неизвестного формата). Восстановимая ошибка: вызывающий слой переспрашивает.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "некорректный ввод: " + e.Reason
}

// NewValidationError создаёт ValidationError с форматированием.
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation сообщает, является ли ошибка ошибкой валидации ввода.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// GatewayError — сайт недоступен или отклонил операцию. Леджер при такой
// ошибке не мутируется; текст причины показывается оператору как есть.
type GatewayError struct {
	Op      string // какая операция ходила на сайт
	Message string // причина из ответа сайта либо текст сетевой ошибки
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("шлюз сайта (%s): %s", e.Op, e.Message)
}

// IsGateway сообщает, пришла ли ошибка со стороны шлюза сайта.
func IsGateway(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}
