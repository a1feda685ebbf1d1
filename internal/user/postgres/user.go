package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	userDatamodel "github.com/yatrisafe/tourist-safety/internal/core/datamodel/user"
	"github.com/yatrisafe/tourist-safety/internal/user"
)

// UserRepository implements user.Repository using GORM.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) user.Repository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
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

func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*user.User, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&userDatamodel.User{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []*userDatamodel.User
	err := r.db.WithContext(ctx).
		Order("id ASC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error
	if err != nil {
		return nil, 0, err
	}

	users := make([]*user.User, 0, len(records))
	for _, record := range records {
		users = append(users, user.FromDataModel(record))
	}
	return users, total, nil
}

func (r *UserRepository) Update(ctx context.Context, u *user.User) error {
	record := user.ToDataModel(u)
	return r.db.WithContext(ctx).
		Model(&userDatamodel.User{}).
		Where("id = ?", u.ID).
		Updates(map[string]interface{}{
			"name":                record.Name,
			"phone":               record.Phone,
			"department":          record.Department,
			"role_name":           record.RoleName,
			"special_permissions": record.SpecialPermissions,
			"is_active":           record.IsActive,
			"is_verified":         record.IsVerified,
			"updated_at":          time.Now(),
		}).Error
}

func (r *UserRepository) SetActive(ctx context.Context, id int64, active bool) error {
	return r.db.WithContext(ctx).
		Model(&userDatamodel.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_active":  active,
			"updated_at": time.Now(),
		}).Error
}

// Delete removes the user row along with its credential and security state.
// Sessions are revoked by the service before this is called; audit entries
// deliberately survive.
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&userDatamodel.Credential{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&userDatamodel.SecurityState{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&userDatamodel.User{}).Error
	})
}
