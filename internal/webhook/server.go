// Package webhook — HTTP-вход для пересылаемых SMS платёжных сетей.
//
// SMS пересылает приложение на телефоне кассы; единственный потребитель —
// движок сверки депозитов. Авторизация — общий секрет в заголовке.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"wayxpay.dev/wallet-bot/internal/common"
	"wayxpay.dev/wallet-bot/internal/features/payments"
)

const headerToken = "X-Webhook-Token"

// Reconciler — то, что серверу нужно от движка сверки.
type Reconciler interface {
	IngestNotification(ctx context.Context, n *payments.Notification) (payments.ReconciliationResult, error)
}

// Server принимает пересылаемые SMS по HTTP.
type Server struct {
	engine Reconciler
	token  string
	http   *http.Server
}

// NewServer создаёт сервер вебхука на указанном адресе.
func NewServer(addr, token string, engine Reconciler) *Server {
	s := &Server{engine: engine, token: token}

	r := mux.NewRouter()
	r.Use(recoveryMiddleware, loggingMiddleware)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	sms := r.PathPrefix("/sms").Subrouter()
	sms.Use(s.authMiddleware)
	sms.HandleFunc("", s.handleSMS).Methods(http.MethodPost)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start запускает сервер; блокирует до остановки.
func (s *Server) Start() error {
	log.WithField("addr", s.http.Addr).Info("Webhook-сервер запущен")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown останавливает сервер, дожидаясь активных запросов.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type smsRequest struct {
	Text   string `json:"text"`
	Sender string `json:"sender"`
}

type smsResponse struct {
	Result string `json:"result"`
	Amount int64  `json:"amount,omitempty"`
}

func (s *Server) handleSMS(w http.ResponseWriter, r *http.Request) {
	var req smsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "некорректный JSON")
		return
	}

	n, err := payments.NormalizeSMS(req.Text, req.Sender)
	if err != nil {
		if common.IsValidation(err) {
			// Нераспознанное SMS — не ошибка сервера: телефон кассы
			// пересылает всё подряд, включая рекламу.
			log.WithField("sender", req.Sender).Debug("SMS не распознано, пропускаем")
			writeJSON(w, http.StatusOK, smsResponse{Result: "ignored"})
			return
		}
		writeError(w, http.StatusInternalServerError, "внутренняя ошибка")
		return
	}

	res, err := s.engine.IngestNotification(r.Context(), n)
	if err != nil {
		log.WithError(err).WithField("external_id", n.ExternalID).Error("Ошибка обработки SMS-подтверждения")
		writeError(w, http.StatusInternalServerError, "внутренняя ошибка")
		return
	}

	writeJSON(w, http.StatusOK, smsResponse{Result: res.Kind.String(), Amount: res.Amount})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(headerToken)
		// Сравнение за постоянное время: заголовок приходит извне
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
			writeError(w, http.StatusUnauthorized, "неверный токен")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
