// Package gateway — HTTP-клиент агентского кабинета букмекера.
//
// Кабинет авторизует агента по сессионной cookie, которую выдаёт signIn.
// Сессия протухает; на признак протухшей сессии клиент один раз молча
// перелогинивается и повторяет запрос. Любой не-успех наружу уходит
// как *common.GatewayError — вызывающие слои по нему понимают, что
// леджер трогать нельзя.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"sync"

	log "github.com/sirupsen/logrus"

	"wayxpay.dev/wallet-bot/internal/common"
	"wayxpay.dev/wallet-bot/internal/config"
)

// Валюта игровых счетов в кабинете.
const currencyNSP = "NSP"

// Статус денежной операции "перевод агента" в API кабинета.
const moneyStatusAgentTransfer = 5

// Client — клиент агентского кабинета.
type Client struct {
	baseURL  string
	username string
	password string
	parentID string

	http *http.Client

	mu       sync.Mutex
	signedIn bool
}

// NewClient создаёт клиент кабинета. Сессия поднимается лениво,
// при первом запросе.
func NewClient(cfg *config.Config) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания cookie jar: %w", err)
	}
	return &Client{
		baseURL:  cfg.GatewayBaseURL,
		username: cfg.AgentUsername,
		password: cfg.AgentPassword,
		parentID: cfg.ParentAgentID,
		http: &http.Client{
			Timeout: cfg.GatewayTimeout,
			Jar:     jar,
		},
	}, nil
}

// envelope — общий конверт ответов кабинета.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func (c *Client) signIn(ctx context.Context) error {
	body, _ := json.Marshal(map[string]string{
		"username": c.username,
		"password": c.password,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/signIn", bytes.NewReader(body))
	if err != nil {
		return &common.GatewayError{Op: "signIn", Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &common.GatewayError{Op: "signIn", Message: err.Error()}
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
		return &common.GatewayError{Op: "signIn", Message: "не удалось разобрать ответ: " + err.Error()}
	}
	if resp.StatusCode != http.StatusOK || !env.Success {
		return &common.GatewayError{Op: "signIn", Message: nonEmpty(env.Message, resp.Status)}
	}

	c.mu.Lock()
	c.signedIn = true
	c.mu.Unlock()
	log.Debug("Сессия агентского кабинета открыта")
	return nil
}

func (c *Client) ensureSession(ctx context.Context) error {
	c.mu.Lock()
	ok := c.signedIn
	c.mu.Unlock()
	if ok {
		return nil
	}
	return c.signIn(ctx)
}

// post выполняет запрос к кабинету; на протухшую сессию один раз
// перелогинивается и повторяет.
func (c *Client) post(ctx context.Context, op, path string, payload interface{}) (json.RawMessage, error) {
	if err := c.ensureSession(ctx); err != nil {
		return nil, err
	}

	result, retry, err := c.postOnce(ctx, op, path, payload)
	if retry {
		c.mu.Lock()
		c.signedIn = false
		c.mu.Unlock()
		if err := c.signIn(ctx); err != nil {
			return nil, err
		}
		result, _, err = c.postOnce(ctx, op, path, payload)
		return result, err
	}
	return result, err
}

func (c *Client) postOnce(ctx context.Context, op, path string, payload interface{}) (json.RawMessage, bool, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, false, &common.GatewayError{Op: op, Message: err.Error()}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, false, &common.GatewayError{Op: op, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, &common.GatewayError{Op: op, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, true, &common.GatewayError{Op: op, Message: "сессия агента не авторизована"}
	}

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
		return nil, false, &common.GatewayError{Op: op, Message: "не удалось разобрать ответ: " + err.Error()}
	}
	if resp.StatusCode != http.StatusOK || !env.Success {
		return nil, false, &common.GatewayError{Op: op, Message: nonEmpty(env.Message, resp.Status)}
	}
	return env.Result, false, nil
}

// Deposit зачисляет сумму на игровой счёт.
func (c *Client) Deposit(ctx context.Context, playerID string, amount int64) error {
	_, err := c.post(ctx, "depositToPlayer", "/depositToPlayer", map[string]interface{}{
		"playerId":    playerID,
		"amount":      amount,
		"moneyStatus": moneyStatusAgentTransfer,
		"currency":    currencyNSP,
	})
	if err == nil {
		log.WithFields(log.Fields{"player_id": playerID, "amount": amount}).Info("Депозит на игровой счёт выполнен")
	}
	return err
}

// Withdraw снимает сумму с игрового счёта. Кабинет принимает снятие
// тем же вызовом перевода, но с отрицательной суммой.
func (c *Client) Withdraw(ctx context.Context, playerID string, amount int64) error {
	_, err := c.post(ctx, "withdrawFromPlayer", "/withdrawFromPlayer", map[string]interface{}{
		"playerId":    playerID,
		"amount":      -amount,
		"moneyStatus": moneyStatusAgentTransfer,
		"currency":    currencyNSP,
	})
	if err == nil {
		log.WithFields(log.Fields{"player_id": playerID, "amount": amount}).Info("Снятие с игрового счёта выполнено")
	}
	return err
}

// FetchBalance возвращает баланс игрового счёта и его валюту.
func (c *Client) FetchBalance(ctx context.Context, playerID string) (int64, string, error) {
	raw, err := c.post(ctx, "getPlayerBalanceById", "/getPlayerBalanceById", map[string]interface{}{
		"playerId": playerID,
	})
	if err != nil {
		return 0, "", err
	}
	var res struct {
		Balance  json.Number `json:"balance"`
		Currency string      `json:"currency"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return 0, "", &common.GatewayError{Op: "getPlayerBalanceById", Message: "не удалось разобрать результат: " + err.Error()}
	}
	// Кабинет отдаёт баланс то числом, то строкой с дробной частью.
	f, err := res.Balance.Float64()
	if err != nil {
		return 0, "", &common.GatewayError{Op: "getPlayerBalanceById", Message: "некорректный баланс в ответе: " + res.Balance.String()}
	}
	// Дробные лиры округляем к ближайшему целому, как и везде
	return int64(math.Round(f)), res.Currency, nil
}

// RegisterPlayer создаёт игрока в кабинете под родительским агентом.
func (c *Client) RegisterPlayer(ctx context.Context, username, password, email string) error {
	_, err := c.post(ctx, "registerPlayer", "/registerPlayer", map[string]interface{}{
		"username": username,
		"password": password,
		"email":    email,
		"parentId": c.parentID,
		"currency": currencyNSP,
	})
	return err
}

// FetchPlayerDetails возвращает идентификатор игрока по логину.
func (c *Client) FetchPlayerDetails(ctx context.Context, username string) (string, error) {
	raw, err := c.post(ctx, "getPlayerDetails", "/getPlayerDetails", map[string]interface{}{
		"username": username,
	})
	if err != nil {
		return "", err
	}
	var res struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", &common.GatewayError{Op: "getPlayerDetails", Message: "не удалось разобрать результат: " + err.Error()}
	}
	id := res.ID.String()
	if id == "" || id == "0" {
		return "", &common.GatewayError{Op: "getPlayerDetails", Message: "игрок не найден: " + username}
	}
	// Нормализуем на случай, если кабинет отдал id числом.
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		id = strconv.FormatInt(n, 10)
	}
	return id, nil
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
