package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"chargebook/backend/services/booking-gateway/internal/apperr"
	"chargebook/backend/services/booking-gateway/internal/session"
)

// accessTokenParam carries the token for websocket clients that cannot set headers.
// It is honoured only on feed routes.
const (
	accessTokenParam = "access_token"
	feedSuffix       = "/feed"
)

// SessionResolver maps a gateway token to its session.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (session.Session, error)
}

// AuthMiddleware resolves the bearer token and stores the session on the request context.
func AuthMiddleware(resolver SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "missing or invalid authorization header", string(apperr.Unauthenticated))
				return
			}
			sess, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				kind := apperr.KindOf(err)
				if kind == apperr.Unauthenticated {
					writeJSONError(w, http.StatusUnauthorized, apperr.UserMessage(err), string(kind))
					return
				}
				writeJSONError(w, http.StatusInternalServerError, "session lookup failed", string(apperr.Unknown))
				return
			}
			next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), sess)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", false
		}
		tok := strings.TrimSpace(parts[1])
		return tok, tok != ""
	}
	if !strings.HasSuffix(r.URL.Path, feedSuffix) {
		return "", false
	}
	if tok := strings.TrimSpace(r.URL.Query().Get(accessTokenParam)); tok != "" {
		return tok, true
	}
	return "", false
}

func writeJSONError(w http.ResponseWriter, status int, message, kind string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":     message,
		"kind":      kind,
		"retryable": false,
	})
}
