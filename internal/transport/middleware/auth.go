package middleware

import (
	"net/http"

	internal "github.com/yatrisafe/tourist-safety/internal"
	"github.com/yatrisafe/tourist-safety/pkg/logger"
)

// UserContext enriches the log context with the authenticated user id. It
// runs after the auth middleware has populated the request context; before
// login the field is simply absent.
func UserContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID := internal.UserIDFromContext(r.Context()); userID != 0 {
			ctx := logger.With(r.Context(), "user_id", userID)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		next.ServeHTTP(w, r)
	})
}
