package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"chargebook/backend/services/booking-gateway/internal/requestid"
)

// RecoveryMiddleware turns a handler panic into a 500 and logs it with a stack trace.
func RecoveryMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic in handler",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
					zap.String("request_id", requestid.FromContext(r.Context())),
					zap.Stack("stack"),
				)
				writeJSONError(w, http.StatusInternalServerError, "internal error", "unknown")
			}()
			next.ServeHTTP(w, r)
		})
	}
}
