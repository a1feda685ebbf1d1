package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/yatrisafe/tourist-safety/internal/audit"
	"github.com/yatrisafe/tourist-safety/internal/auth"
	"github.com/yatrisafe/tourist-safety/internal/rbac"
	"github.com/yatrisafe/tourist-safety/internal/transport/middleware"
	"github.com/yatrisafe/tourist-safety/internal/transport/swagger"
	"github.com/yatrisafe/tourist-safety/internal/user"
)

type RouterDeps struct {
	DB             *sql.DB
	AuthHandler    *auth.Handler
	UserHandler    *user.Handler
	RBACHandler    *rbac.Handler
	AuditHandler   *audit.Handler
	AllowedOrigins string
	Logger         *slog.Logger
}

// RegisterAllRoutes wires every HTTP route. Admin routes sit behind both the
// auth middleware and a catalog permission; a user only ever reaches what
// their resolved permission set grants.
func RegisterAllRoutes(router *chi.Mux, deps RouterDeps) {
	healthHandler := NewHealthHandler(deps.DB)
	authz := middleware.NewAuthorization(deps.Logger)

	router.Use(middleware.CORS(deps.AllowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(deps.Logger))
	router.Use(middleware.LoggingMiddleware(deps.Logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.handleHealth)
		r.Get("/ping", healthHandler.handlePing)

		// Auth routes
		r.Route("/auth", func(sr chi.Router) {
			sr.Post("/register", deps.AuthHandler.Register)
			sr.Post("/login", deps.AuthHandler.Login)
			sr.Post("/refresh", deps.AuthHandler.Refresh)
			sr.Post("/logout", deps.AuthHandler.Logout)
			sr.Post("/password/reset-request", deps.AuthHandler.RequestPasswordReset)
			sr.Post("/password/reset-confirm", deps.AuthHandler.ResetPassword)
		})

		// Protected routes that require authentication
		r.Group(func(pr chi.Router) {
			pr.Use(deps.AuthHandler.AuthMiddleware)
			pr.Use(middleware.UserContext)

			// Current user
			pr.Get("/users/me", deps.UserHandler.Me)
			pr.Post("/users/me/password", deps.AuthHandler.ChangePassword)
			pr.Get("/users/me/sessions", deps.UserHandler.MySessions)
			pr.Delete("/users/me/sessions/{sessionID}", deps.UserHandler.RevokeMySession)

			// User administration
			pr.Route("/users", func(ur chi.Router) {
				ur.With(authz.RequirePermission(rbac.PermUsersView)).Get("/", deps.UserHandler.ListUsers)
				ur.With(authz.RequirePermission(rbac.PermUsersCreate)).Post("/", deps.AuthHandler.CreateUser)
				ur.With(authz.RequirePermission(rbac.PermUsersView)).Get("/{userID}", deps.UserHandler.GetUser)
				ur.With(authz.RequirePermission(rbac.PermUsersEdit)).Patch("/{userID}", deps.UserHandler.UpdateUser)
				ur.With(authz.RequirePermission(rbac.PermUsersEdit)).Post("/{userID}/deactivate", deps.UserHandler.DeactivateUser)
				ur.With(authz.RequirePermission(rbac.PermUsersDelete)).Delete("/{userID}", deps.UserHandler.DeleteUser)
				ur.With(authz.RequirePermission(rbac.PermSessionsManage)).Get("/{userID}/sessions", deps.UserHandler.ListUserSessions)
			})

			// Session administration
			pr.With(authz.RequirePermission(rbac.PermSessionsManage)).
				Delete("/sessions/{sessionID}", deps.UserHandler.RevokeUserSession)

			// Role and permission administration
			pr.Route("/roles", func(rr chi.Router) {
				rr.With(authz.RequirePermission(rbac.PermRolesView)).Get("/", deps.RBACHandler.ListRoles)
				rr.With(authz.RequirePermission(rbac.PermRolesView)).Get("/{roleName}", deps.RBACHandler.GetRole)
				rr.With(authz.RequirePermission(rbac.PermRolesManage)).Post("/", deps.RBACHandler.CreateRole)
				rr.With(authz.RequirePermission(rbac.PermRolesManage)).Put("/{roleName}", deps.RBACHandler.UpdateRole)
				rr.With(authz.RequirePermission(rbac.PermRolesManage)).Delete("/{roleName}", deps.RBACHandler.DeleteRole)
			})
			pr.With(authz.RequirePermission(rbac.PermRolesView)).Get("/permissions", deps.RBACHandler.ListPermissions)

			// Audit trail
			pr.With(authz.RequirePermission(rbac.PermAuditView)).Get("/audit", deps.AuditHandler.List)
		})
	})
}
