package middleware

import (
	"net/http"
	"strings"

	"chargebook/backend/services/booking-gateway/internal/requestid"
)

const maxRequestIDLen = 128

// RequestIDMiddleware accepts the caller's X-Request-ID or assigns one, and echoes it back.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestid.Header))
		if id == "" || len(id) > maxRequestIDLen {
			id = requestid.New()
		}
		w.Header().Set(requestid.Header, id)
		next.ServeHTTP(w, r.WithContext(requestid.WithContext(r.Context(), id)))
	})
}
