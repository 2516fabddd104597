package middleware

import (
	"crypto/subtle"
	"net/http"
)

// ServiceAuth guards internal routes with a shared service secret sent as
// "Authorization: Bearer <secret>". End-user tokens never match it, and an
// empty secret rejects every request.
func ServiceAuth(secret string) func(http.Handler) http.Handler {
	want := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := headerToken(r)
			if !ok || len(want) == 0 || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				http.Error(w, "Unauthorized: service credential required", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
