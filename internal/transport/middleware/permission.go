package middleware

import (
	"log/slog"
	"net/http"

	"github.com/yatrisafe/tourist-safety/internal/user"
)

// Authorization gates routes on the permission set the auth middleware
// already resolved into the request context. No extra store round trip per
// check.
type Authorization struct {
	logger *slog.Logger
}

func NewAuthorization(logger *slog.Logger) *Authorization {
	return &Authorization{logger: logger}
}

func (a *Authorization) Check(next http.HandlerFunc, permission string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		current, ok := user.UserFromContext(r.Context())
		if !ok || current == nil {
			a.logger.Warn("authorization check failed: user not found in context")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		if !current.HasPermission(permission) {
			a.logger.WarnContext(r.Context(), "access denied: insufficient permissions",
				"user_id", current.ID,
				"required_permission", permission)
			http.Error(w, "Forbidden: insufficient permissions", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	}
}

// RequirePermission wraps a handler chain behind one catalog permission.
func (a *Authorization) RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return a.Check(next.ServeHTTP, permission)
	}
}

// RequireAny passes if the user holds at least one of the given permissions.
func (a *Authorization) RequireAny(permissions ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			current, ok := user.UserFromContext(r.Context())
			if !ok || current == nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if !current.HasAnyPermission(permissions) {
				a.logger.WarnContext(r.Context(), "access denied: insufficient permissions",
					"user_id", current.ID,
					"required_any", permissions)
				http.Error(w, "Forbidden: insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin is a role identity check for routes that must stay admin-only
// regardless of how permissions are granted.
func (a *Authorization) RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			current, ok := user.UserFromContext(r.Context())
			if !ok || current == nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if !current.IsAdmin() {
				a.logger.WarnContext(r.Context(), "access denied: admin role required", "user_id", current.ID)
				http.Error(w, "Forbidden: insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
