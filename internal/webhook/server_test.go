package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"wayxpay.dev/wallet-bot/internal/features/payments"
)

type fakeReconciler struct {
	calls  int
	lastID string
	result payments.ReconciliationResult
	err    error
}

func (f *fakeReconciler) IngestNotification(_ context.Context, n *payments.Notification) (payments.ReconciliationResult, error) {
	f.calls++
	f.lastID = n.ExternalID
	return f.result, f.err
}

const testToken = "test-token"

func newTestServer(engine *fakeReconciler) *httptest.Server {
	s := NewServer(":0", testToken, engine)
	return httptest.NewServer(s.http.Handler)
}

func postSMS(t *testing.T, url, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+"/sms", bytes.NewBufferString(body))
	assert.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(headerToken, token)
	}
	resp, err := http.DefaultClient.Do(req)
	assert.NoError(t, err)
	return resp
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(&fakeReconciler{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSMSRequiresToken(t *testing.T) {
	engine := &fakeReconciler{}
	srv := newTestServer(engine)
	defer srv.Close()

	resp := postSMS(t, srv.URL, "", `{"text": "x", "sender": "y"}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postSMS(t, srv.URL, "wrong", `{"text": "x", "sender": "y"}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Той же длины, что и настоящий — тоже мимо
	resp = postSMS(t, srv.URL, "test-tokeX", `{"text": "x", "sender": "y"}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	assert.Equal(t, 0, engine.calls, "без токена движок не вызывается")
}

func TestSMSAccepted(t *testing.T) {
	engine := &fakeReconciler{
		result: payments.ReconciliationResult{Kind: payments.ResultBuffered},
	}
	srv := newTestServer(engine)
	defer srv.Close()

	body, _ := json.Marshal(map[string]string{
		"text":   "رصيدك 50000 تم تحويله من 0912345678 بنجاح رقم العملية: 600000000001",
		"sender": "Syriatel",
	})
	resp := postSMS(t, srv.URL, testToken, string(body))
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, engine.calls)
	assert.Equal(t, "600000000001", engine.lastID)

	var out map[string]interface{}
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "buffered", out["result"])
}

func TestUnrecognizedSMSIgnored(t *testing.T) {
	engine := &fakeReconciler{}
	srv := newTestServer(engine)
	defer srv.Close()

	resp := postSMS(t, srv.URL, testToken, `{"text": "реклама: пополни счёт", "sender": "spam"}`)
	defer resp.Body.Close()

	// Телефон кассы пересылает всё подряд: мусор — не ошибка сервера
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, engine.calls)

	var out map[string]interface{}
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "ignored", out["result"])
}

func TestMalformedJSON(t *testing.T) {
	srv := newTestServer(&fakeReconciler{})
	defer srv.Close()

	resp := postSMS(t, srv.URL, testToken, `not json`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEngineFailure(t *testing.T) {
	engine := &fakeReconciler{err: errors.New("db down")}
	srv := newTestServer(engine)
	defer srv.Close()

	body, _ := json.Marshal(map[string]string{
		"text":   "تم استلام حوالة بقيمة 75000 ل.س في حسابك رقم المرجع: 123456789",
		"sender": "BemoBank",
	})
	resp := postSMS(t, srv.URL, testToken, string(body))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}
