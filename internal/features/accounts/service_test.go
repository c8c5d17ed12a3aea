package accounts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"

	"wayxpay.dev/wallet-bot/internal/common"
)

type memAccounts struct {
	accounts map[int64]*Account
}

func (s *memAccounts) CreateWithWallet(_ context.Context, a *Account) error {
	if _, ok := s.accounts[a.UserID]; ok {
		return common.ErrAccountExists
	}
	cp := *a
	s.accounts[a.UserID] = &cp
	return nil
}

func (s *memAccounts) GetByUserID(_ context.Context, userID int64) (*Account, error) {
	a, ok := s.accounts[userID]
	if !ok {
		return nil, common.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memAccounts) Count(_ context.Context) (int64, error) {
	return int64(len(s.accounts)), nil
}

type fakeGateway struct {
	registered  map[string]string // username → email
	playerID    string
	registerErr error
	detailsErr  error
}

func (g *fakeGateway) RegisterPlayer(_ context.Context, username, password, email string) error {
	if g.registerErr != nil {
		return g.registerErr
	}
	if g.registered == nil {
		g.registered = make(map[string]string)
	}
	g.registered[username] = email
	return nil
}

func (g *fakeGateway) FetchPlayerDetails(_ context.Context, username string) (string, error) {
	if g.detailsErr != nil {
		return "", g.detailsErr
	}
	return g.playerID, nil
}

func newAccountsFixture() (*memAccounts, *fakeGateway, *Service) {
	store := &memAccounts{accounts: make(map[int64]*Account)}
	gw := &fakeGateway{playerID: "777001"}
	return store, gw, NewService(store, gw)
}

func TestRegister(t *testing.T) {
	store, gw, svc := newAccountsFixture()

	a, err := svc.Register(context.Background(), 1, "Ахмад", "player_one", "secret123")
	assert.NoError(t, err)
	assert.Equal(t, "777001", a.PlayerID)
	assert.Equal(t, "player_one", a.Username)

	saved := store.accounts[1]
	assert.NotNil(t, saved)
	// Пароль хранится только bcrypt-хэшем
	assert.NotEqual(t, "secret123", saved.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(saved.PasswordHash), []byte("secret123")))

	// Сайту передан служебный e-mail
	email := gw.registered["player_one"]
	assert.Contains(t, email, "@wayx.local")
}

func TestRegisterValidation(t *testing.T) {
	_, _, svc := newAccountsFixture()

	testCases := []struct {
		name     string
		username string
		password string
	}{
		{name: "короткий логин", username: "ab", password: "secret123"},
		{name: "кириллица в логине", username: "игрок", password: "secret123"},
		{name: "пробел в логине", username: "player one", password: "secret123"},
		{name: "короткий пароль", username: "player_one", password: "123"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), 1, "", tc.username, tc.password)
			assert.True(t, common.IsValidation(err))
		})
	}
}

func TestRegisterTwice(t *testing.T) {
	_, _, svc := newAccountsFixture()

	_, err := svc.Register(context.Background(), 1, "", "player_one", "secret123")
	assert.NoError(t, err)

	existing, err := svc.Register(context.Background(), 1, "", "player_two", "secret123")
	assert.ErrorIs(t, err, common.ErrAccountExists)
	assert.NotNil(t, existing)
	assert.Equal(t, "player_one", existing.Username)
}

func TestRegisterGatewayFailure(t *testing.T) {
	store, gw, svc := newAccountsFixture()
	gw.registerErr = &common.GatewayError{Op: "registerPlayer", Message: "username taken"}

	_, err := svc.Register(context.Background(), 1, "", "player_one", "secret123")
	assert.True(t, common.IsGateway(err))
	assert.Empty(t, store.accounts, "без игрока на сайте привязка не создаётся")
}
