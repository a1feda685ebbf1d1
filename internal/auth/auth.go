package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yatrisafe/tourist-safety/internal/rbac"
	"github.com/yatrisafe/tourist-safety/internal/session"
	"github.com/yatrisafe/tourist-safety/internal/user"
)

// Claims are the JWT token claims. The sid binds the token to a server-side
// session; the session, not the signature, is the source of truth for whether
// a login is still valid.
type Claims struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Credential is the domain view of a user's password record. It never crosses
// the API boundary.
type Credential struct {
	UserID             int64
	PasswordHash       string
	PasswordHistory    []string
	LastPasswordChange time.Time
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	User         user.PublicUser  `json:"user"`
	Session      *session.Session `json:"session"`
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token"`
	ExpiresAt    time.Time        `json:"expires_at"`
}

// TokenGenerator creates and validates access tokens.
type TokenGenerator interface {
	IssueAccessToken(userID int64, email, role, sessionID string) (token string, expiresAt time.Time, err error)
	ValidateToken(tokenString string) (*Claims, error)
}

// UserRepository is the persistence surface the auth service needs. Lookups
// return (nil, nil) when no row matches; only real store failures are errors.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	GetByID(ctx context.Context, id int64) (*user.User, error)
	// CreateWithCredential inserts the user, its credential and an empty
	// security state in one transaction.
	CreateWithCredential(ctx context.Context, u *user.User, passwordHash string) error
	GetCredential(ctx context.Context, userID int64) (*Credential, error)
	UpdateCredential(ctx context.Context, cred *Credential) error
	RecordLogin(ctx context.Context, userID int64, at time.Time, ip string) error
}

// PermissionSource resolves the effective permission set for a user and
// answers role lookups for role assignment during admin user creation.
type PermissionSource interface {
	PermissionsFor(ctx context.Context, userID int64) ([]string, error)
	GetRole(ctx context.Context, name string) (*rbac.Role, error)
}

// ServiceAPI is the surface handlers depend on.
type ServiceAPI interface {
	Register(ctx context.Context, dto RegisterDTO) (*user.PublicUser, error)
	Login(ctx context.Context, dto LoginDTO, meta session.DeviceMeta) (*LoginResult, error)
	Refresh(ctx context.Context, dto RefreshDTO, meta session.DeviceMeta) (*LoginResult, error)
	Logout(ctx context.Context, sessionID string) error
	VerifyToken(ctx context.Context, tokenString string) (*user.User, error)
	ValidateAccessToken(tokenString string) (*Claims, error)
	ChangePassword(ctx context.Context, userID int64, dto ChangePasswordDTO) error
	RequestPasswordReset(ctx context.Context, dto PasswordResetRequestDTO) error
	ResetPassword(ctx context.Context, dto PasswordResetConfirmDTO) error
}
