package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	internal "github.com/yatrisafe/tourist-safety/internal"
	"github.com/yatrisafe/tourist-safety/internal/auth"
	userDatamodel "github.com/yatrisafe/tourist-safety/internal/core/datamodel/user"
	"github.com/yatrisafe/tourist-safety/internal/user"
)

// AuthRepository implements auth.UserRepository using GORM.
type AuthRepository struct {
	db *gorm.DB
}

func NewAuthRepository(db *gorm.DB) auth.UserRepository {
	return &AuthRepository{db: db}
}

func (r *AuthRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	var record userDatamodel.User
	err := r.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(email)).
		First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return user.FromDataModel(&record), nil
}

func (r *AuthRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	var record userDatamodel.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return user.FromDataModel(&record), nil
}

// CreateWithCredential writes the user, credential and security state rows in
// one transaction so registration is all-or-nothing. A unique-constraint hit
// on the email column surfaces as the duplicate-email conflict: two
// registrations can race past the service-level lookup, and the loser must
// still see a conflict, not a store failure.
func (r *AuthRepository) CreateWithCredential(ctx context.Context, u *user.User, passwordHash string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := user.ToDataModel(u)
		record.Email = strings.ToLower(record.Email)
		if err := tx.Create(record).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return internal.ErrDuplicateEmail
			}
			return err
		}
		u.ID = record.ID
		u.CreatedAt = record.CreatedAt
		u.UpdatedAt = record.UpdatedAt

		cred := &userDatamodel.Credential{
			UserID:             record.ID,
			PasswordHash:       passwordHash,
			LastPasswordChange: time.Now(),
		}
		if err := tx.Create(cred).Error; err != nil {
			return err
		}

		state := &userDatamodel.SecurityState{UserID: record.ID}
		return tx.Create(state).Error
	})
}

func (r *AuthRepository) GetCredential(ctx context.Context, userID int64) (*auth.Credential, error) {
	var record userDatamodel.Credential
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}

	cred := &auth.Credential{
		UserID:             record.UserID,
		PasswordHash:       record.PasswordHash,
		PasswordHistory:    []string{},
		LastPasswordChange: record.LastPasswordChange,
	}
	if record.PasswordHistory != "" {
		if err := json.Unmarshal([]byte(record.PasswordHistory), &cred.PasswordHistory); err != nil {
			return nil, err
		}
	}
	return cred, nil
}

func (r *AuthRepository) UpdateCredential(ctx context.Context, cred *auth.Credential) error {
	history, err := json.Marshal(cred.PasswordHistory)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&userDatamodel.Credential{}).
		Where("user_id = ?", cred.UserID).
		Updates(map[string]interface{}{
			"password_hash":        cred.PasswordHash,
			"password_history":     string(history),
			"last_password_change": cred.LastPasswordChange,
			"updated_at":           time.Now(),
		}).Error
}

func (r *AuthRepository) RecordLogin(ctx context.Context, userID int64, at time.Time, ip string) error {
	return r.db.WithContext(ctx).
		Model(&userDatamodel.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"last_login_at": at,
			"last_login_ip": ip,
			"login_count":   gorm.Expr("login_count + 1"),
		}).Error
}
