package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"wayxpay.dev/wallet-bot/internal/common"
	"wayxpay.dev/wallet-bot/internal/config"
)

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		GatewayBaseURL: baseURL,
		AgentUsername:  "agent",
		AgentPassword:  "secret",
		ParentAgentID:  "2301209",
		GatewayTimeout: 2 * time.Second,
	}
}

func writeEnvelope(w http.ResponseWriter, success bool, message string, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": success,
		"message": message,
		"result":  result,
	})
}

func TestDepositSignsInAndSendsPayload(t *testing.T) {
	var signIns int
	var payload map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/signIn":
			signIns++
			var creds map[string]string
			_ = json.NewDecoder(r.Body).Decode(&creds)
			assert.Equal(t, "agent", creds["username"])
			writeEnvelope(w, true, "", nil)
		case "/depositToPlayer":
			_ = json.NewDecoder(r.Body).Decode(&payload)
			writeEnvelope(w, true, "", nil)
		default:
			t.Errorf("неожиданный путь: %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c, err := NewClient(testConfig(srv.URL))
	assert.NoError(t, err)

	assert.NoError(t, c.Deposit(context.Background(), "777001", 50000))
	assert.Equal(t, 1, signIns)
	assert.Equal(t, "777001", payload["playerId"])
	assert.Equal(t, float64(50000), payload["amount"])
	assert.Equal(t, float64(5), payload["moneyStatus"])
	assert.Equal(t, "NSP", payload["currency"])

	// Вторая операция переиспользует сессию
	assert.NoError(t, c.Deposit(context.Background(), "777001", 1000))
	assert.Equal(t, 1, signIns)
}

func TestWithdrawNegatesAmount(t *testing.T) {
	var payload map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/withdrawFromPlayer" {
			_ = json.NewDecoder(r.Body).Decode(&payload)
		}
		writeEnvelope(w, true, "", nil)
	}))
	defer srv.Close()

	c, _ := NewClient(testConfig(srv.URL))
	assert.NoError(t, c.Withdraw(context.Background(), "777001", 30000))
	assert.Equal(t, float64(-30000), payload["amount"], "кабинет принимает снятие отрицательной суммой")
}

func TestReloginOnExpiredSession(t *testing.T) {
	var signIns, attempts int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/signIn":
			signIns++
			writeEnvelope(w, true, "", nil)
		case "/depositToPlayer":
			attempts++
			if attempts == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			writeEnvelope(w, true, "", nil)
		}
	}))
	defer srv.Close()

	c, _ := NewClient(testConfig(srv.URL))
	assert.NoError(t, c.Deposit(context.Background(), "777001", 50000))
	assert.Equal(t, 2, signIns, "после 401 клиент перелогинивается")
	assert.Equal(t, 2, attempts, "и повторяет запрос один раз")
}

func TestRejectionBecomesGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/signIn" {
			writeEnvelope(w, true, "", nil)
			return
		}
		writeEnvelope(w, false, "insufficient agent balance", nil)
	}))
	defer srv.Close()

	c, _ := NewClient(testConfig(srv.URL))
	err := c.Deposit(context.Background(), "777001", 50000)
	assert.True(t, common.IsGateway(err))
	assert.Contains(t, err.Error(), "insufficient agent balance")
}

func TestFetchBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/signIn" {
			writeEnvelope(w, true, "", nil)
			return
		}
		writeEnvelope(w, true, "", map[string]interface{}{
			"balance":  "74999.50",
			"currency": "NSP",
		})
	}))
	defer srv.Close()

	c, _ := NewClient(testConfig(srv.URL))
	balance, currency, err := c.FetchBalance(context.Background(), "777001")
	assert.NoError(t, err)
	assert.Equal(t, int64(75000), balance, "дробные лиры округляются к ближайшему целому")
	assert.Equal(t, "NSP", currency)
}

func TestFetchPlayerDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/signIn" {
			writeEnvelope(w, true, "", nil)
			return
		}
		writeEnvelope(w, true, "", map[string]interface{}{"id": 777001})
	}))
	defer srv.Close()

	c, _ := NewClient(testConfig(srv.URL))
	id, err := c.FetchPlayerDetails(context.Background(), "player1")
	assert.NoError(t, err)
	assert.Equal(t, "777001", id)
}

func TestFetchPlayerDetailsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/signIn" {
			writeEnvelope(w, true, "", nil)
			return
		}
		writeEnvelope(w, true, "", map[string]interface{}{})
	}))
	defer srv.Close()

	c, _ := NewClient(testConfig(srv.URL))
	_, err := c.FetchPlayerDetails(context.Background(), "ghost")
	assert.True(t, common.IsGateway(err))
}
