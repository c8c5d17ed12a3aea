package webhook

import (
	"net/http"

	"github.com/gorilla/handlers"
	log "github.com/sirupsen/logrus"
)

// recoveryMiddleware гасит панику в обработчике, отдавая 500 вместо
// падения всего процесса.
func recoveryMiddleware(next http.Handler) http.Handler {
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(log.StandardLogger()),
		handlers.PrintRecoveryStack(true),
	)(next)
}

// loggingMiddleware пишет access-лог запросов в общий журнал.
func loggingMiddleware(next http.Handler) http.Handler {
	return handlers.LoggingHandler(log.StandardLogger().WriterLevel(log.DebugLevel), next)
}
