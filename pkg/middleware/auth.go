package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// TokenValidator verifies a bearer credential and returns the identity it was issued to.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// AuthMiddleware authenticates the request from the Authorization header, or
// from the "token" query parameter for browser WebSocket handshakes that
// cannot set headers. Failure ends the request before any upgrade.
func AuthMiddleware(tokenSvc TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				http.Error(w, "Authorization required", http.StatusUnauthorized)
				return
			}
			// Validate Token
			userID, err := tokenSvc.ValidateToken(token)
			if err != nil {
				http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
				return
			}
			// Inject UserID into Context
			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// headerToken reads the bearer token from the Authorization header only.
func headerToken(r *http.Request) (string, bool) {
	parts := strings.Split(r.Header.Get("Authorization"), " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func bearerToken(r *http.Request) (string, bool) {
	if r.Header.Get("Authorization") != "" {
		return headerToken(r)
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return strings.TrimPrefix(t, "Bearer "), true
	}
	return "", false
}

// UserID returns the authenticated identity placed in the context by AuthMiddleware.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(UserIDKey).(string)
	return id, ok && id != ""
}
