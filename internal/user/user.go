package user

import (
	"context"
	"encoding/json"
	"time"

	userDatamodel "github.com/yatrisafe/tourist-safety/internal/core/datamodel/user"
)

// User is the internal domain model. Credentials and security state live in
// their own records; a User never carries a password hash.
type User struct {
	ID                 int64      `json:"id"`
	Email              string     `json:"email"`
	Name               string     `json:"name"`
	Phone              string     `json:"phone,omitempty"`
	RoleName           string     `json:"role"`
	Department         string     `json:"department,omitempty"`
	IsActive           bool       `json:"is_active"`
	IsVerified         bool       `json:"is_verified"`
	SpecialPermissions []string   `json:"special_permissions,omitempty"`
	Permissions        []string   `json:"permissions,omitempty"`
	LastLoginAt        *time.Time `json:"last_login_at,omitempty"`
	LastLoginIP        string     `json:"-"`
	LoginCount         int64      `json:"login_count"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// PublicUser is the projection returned across the API boundary. It is built
// explicitly, field by field, so nothing sensitive can leak through ad hoc
// struct reuse.
type PublicUser struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	RoleName    string     `json:"role"`
	Department  string     `json:"department,omitempty"`
	IsActive    bool       `json:"is_active"`
	IsVerified  bool       `json:"is_verified"`
	Permissions []string   `json:"permissions,omitempty"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	LoginCount  int64      `json:"login_count"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Public builds the boundary projection.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		RoleName:    u.RoleName,
		Department:  u.Department,
		IsActive:    u.IsActive,
		IsVerified:  u.IsVerified,
		Permissions: u.Permissions,
		LastLoginAt: u.LastLoginAt,
		LoginCount:  u.LoginCount,
		CreatedAt:   u.CreatedAt,
	}
}

func (u *User) HasPermission(permission string) bool {
	for _, p := range u.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

func (u *User) HasAnyPermission(permissions []string) bool {
	for _, userPerm := range u.Permissions {
		for _, requiredPerm := range permissions {
			if userPerm == requiredPerm {
				return true
			}
		}
	}
	return false
}

func (u *User) IsAdmin() bool {
	return u.RoleName == "admin"
}

type ctxKey string

const ContextUserKey ctxKey = "user"

func UserFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(ContextUserKey).(*User)
	return u, ok
}

func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, ContextUserKey, u)
}

func ToDataModel(u *User) *userDatamodel.User {
	special := ""
	if len(u.SpecialPermissions) > 0 {
		if data, err := json.Marshal(u.SpecialPermissions); err == nil {
			special = string(data)
		}
	}
	return &userDatamodel.User{
		ID:                 u.ID,
		Email:              u.Email,
		Name:               u.Name,
		Phone:              u.Phone,
		RoleName:           u.RoleName,
		Department:         u.Department,
		IsActive:           u.IsActive,
		IsVerified:         u.IsVerified,
		SpecialPermissions: special,
		LastLoginAt:        u.LastLoginAt,
		LastLoginIP:        u.LastLoginIP,
		LoginCount:         u.LoginCount,
		CreatedAt:          u.CreatedAt,
		UpdatedAt:          u.UpdatedAt,
	}
}

func FromDataModel(record *userDatamodel.User) *User {
	u := &User{
		ID:                 record.ID,
		Email:              record.Email,
		Name:               record.Name,
		Phone:              record.Phone,
		RoleName:           record.RoleName,
		Department:         record.Department,
		IsActive:           record.IsActive,
		IsVerified:         record.IsVerified,
		SpecialPermissions: []string{},
		Permissions:        []string{},
		LastLoginAt:        record.LastLoginAt,
		LastLoginIP:        record.LastLoginIP,
		LoginCount:         record.LoginCount,
		CreatedAt:          record.CreatedAt,
		UpdatedAt:          record.UpdatedAt,
	}
	if record.SpecialPermissions != "" {
		_ = json.Unmarshal([]byte(record.SpecialPermissions), &u.SpecialPermissions)
	}
	return u
}

func FromDataModelWithPermissions(record *userDatamodel.User, permissions []string) *User {
	u := FromDataModel(record)
	u.Permissions = permissions
	return u
}
