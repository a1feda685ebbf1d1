package auth

import (
	"strings"

	errors "github.com/yatrisafe/tourist-safety/internal"
	"github.com/yatrisafe/tourist-safety/internal/core/common/validation"
)

type RegisterDTO struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Name       string `json:"name"`
	Phone      string `json:"phone,omitempty"`
	Department string `json:"department,omitempty"`
	RoleName   string `json:"role,omitempty"`
}

// Validate checks the structural fields. Password policy is enforced by the
// service because the minimum length is configuration.
func (d *RegisterDTO) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("email", d.Email).Required().MaxLength(254).Email()
	v.Field("name", d.Name).Required().MinLength(2).MaxLength(100)
	v.Field("password", d.Password).Required()
	return v.Validate()
}

func (d *RegisterDTO) Normalize() {
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))
	d.Name = strings.TrimSpace(d.Name)
	d.RoleName = strings.ToLower(strings.TrimSpace(d.RoleName))
}

type LoginDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (d *LoginDTO) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("email", d.Email).Required().Email()
	v.Field("password", d.Password).Required()
	return v.Validate()
}

func (d *LoginDTO) Normalize() {
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))
}

type RefreshDTO struct {
	RefreshToken string `json:"refresh_token"`
}

func (d *RefreshDTO) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("refresh_token", d.RefreshToken).Required()
	return v.Validate()
}

func (d *RefreshDTO) Normalize() {
	d.RefreshToken = strings.TrimSpace(d.RefreshToken)
}

type ChangePasswordDTO struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (d *ChangePasswordDTO) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("current_password", d.CurrentPassword).Required()
	v.Field("new_password", d.NewPassword).Required()
	return v.Validate()
}

type PasswordResetRequestDTO struct {
	Email string `json:"email"`
}

func (d *PasswordResetRequestDTO) Validate() *errors.AppError {
	return validation.ValidateEmail(d.Email)
}

func (d *PasswordResetRequestDTO) Normalize() {
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))
}

type PasswordResetConfirmDTO struct {
	Email       string `json:"email"`
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (d *PasswordResetConfirmDTO) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("email", d.Email).Required().Email()
	v.Field("token", d.Token).Required()
	v.Field("new_password", d.NewPassword).Required()
	return v.Validate()
}

func (d *PasswordResetConfirmDTO) Normalize() {
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))
	d.Token = strings.TrimSpace(d.Token)
}
