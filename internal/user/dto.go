package user

import (
	"strings"

	errors "github.com/yatrisafe/tourist-safety/internal"
	"github.com/yatrisafe/tourist-safety/internal/core/common/validation"
)

// UpdateUserDTO carries an admin edit. Pointer fields distinguish "leave
// unchanged" from "set to zero value".
type UpdateUserDTO struct {
	Name               *string  `json:"name,omitempty"`
	Phone              *string  `json:"phone,omitempty"`
	Department         *string  `json:"department,omitempty"`
	RoleName           *string  `json:"role,omitempty"`
	SpecialPermissions []string `json:"special_permissions,omitempty"`
	IsActive           *bool    `json:"is_active,omitempty"`
	IsVerified         *bool    `json:"is_verified,omitempty"`
}

func (d *UpdateUserDTO) Validate() *errors.AppError {
	v := validation.NewValidator()
	if d.Name != nil {
		v.Field("name", *d.Name).Required().MinLength(2).MaxLength(100)
	}
	if d.RoleName != nil {
		v.Field("role", *d.RoleName).Required().MaxLength(50)
	}
	return v.Validate()
}

func (d *UpdateUserDTO) Normalize() {
	if d.RoleName != nil {
		normalized := strings.ToLower(strings.TrimSpace(*d.RoleName))
		d.RoleName = &normalized
	}
	if d.Name != nil {
		trimmed := strings.TrimSpace(*d.Name)
		d.Name = &trimmed
	}
}

type ListUsersDTO struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type ListUsersResult struct {
	Users  []PublicUser `json:"users"`
	Total  int64        `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}
