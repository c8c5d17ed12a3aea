package accounts

import "time"

// Account — привязка пользователя Telegram к игровому счёту на сайте.
type Account struct {
	UserID       int64
	PlayerID     string // идентификатор игрока на сайте, непрозрачная строка
	Username     string
	FirstName    string
	PasswordHash string // bcrypt-хэш пароля сайта, нужен для восстановления доступа
	CreatedAt    time.Time
}
