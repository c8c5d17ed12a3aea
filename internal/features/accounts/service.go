package accounts

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"wayxpay.dev/wallet-bot/internal/common"
)

// Gateway — операции сайта, нужные регистрации.
type Gateway interface {
	RegisterPlayer(ctx context.Context, username, password, email string) error
	FetchPlayerDetails(ctx context.Context, username string) (string, error)
}

type store interface {
	CreateWithWallet(ctx context.Context, a *Account) error
	GetByUserID(ctx context.Context, userID int64) (*Account, error)
	Count(ctx context.Context) (int64, error)
}

// Сайт принимает только латиницу и цифры в логине, от 4 символов.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{4,30}$`)

const minPasswordLen = 6

// Service управляет учётными записями.
type Service struct {
	repo    store
	gateway Gateway
}

// NewService создаёт сервис учётных записей.
func NewService(repo store, gateway Gateway) *Service {
	return &Service{repo: repo, gateway: gateway}
}

// Register создаёт игрока на сайте и привязывает его к пользователю
// Telegram. Сайт не отдаёт идентификатор игрока при регистрации,
// поэтому после неё делается отдельный запрос деталей по логину.
func (s *Service) Register(ctx context.Context, userID int64, firstName, username, password string) (*Account, error) {
	username = strings.TrimSpace(username)
	if !usernamePattern.MatchString(username) {
		return nil, common.NewValidationError("логин: латиница, цифры и _, от 4 до 30 символов")
	}
	if len(password) < minPasswordLen {
		return nil, common.NewValidationError("пароль должен быть не короче %d символов", minPasswordLen)
	}

	if existing, err := s.repo.GetByUserID(ctx, userID); err == nil && existing != nil {
		return existing, common.ErrAccountExists
	}

	// Сайт требует e-mail, но пользователи бота его не дают.
	email := fmt.Sprintf("%s@wayx.local", uuid.NewString()[:8])

	if err := s.gateway.RegisterPlayer(ctx, username, password, email); err != nil {
		return nil, err
	}

	playerID, err := s.gateway.FetchPlayerDetails(ctx, username)
	if err != nil {
		// Игрок на сайте уже создан, а привязки нет. Пользователь
		// сможет повторить привязку тем же логином.
		log.WithError(err).WithFields(log.Fields{
			"user_id":  userID,
			"username": username,
		}).Error("Игрок создан на сайте, но его идентификатор не получен")
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("ошибка хэширования пароля: %w", err)
	}

	a := &Account{
		UserID:       userID,
		PlayerID:     playerID,
		Username:     username,
		FirstName:    firstName,
		PasswordHash: string(hash),
	}
	if err := s.repo.CreateWithWallet(ctx, a); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user_id":   userID,
		"player_id": playerID,
		"username":  username,
	}).Info("Зарегистрирована новая учётная запись")
	return a, nil
}

// Get возвращает учётную запись пользователя.
func (s *Service) Get(ctx context.Context, userID int64) (*Account, error) {
	return s.repo.GetByUserID(ctx, userID)
}

// Count возвращает число учётных записей.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx)
}
