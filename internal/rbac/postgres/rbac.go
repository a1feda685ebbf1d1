package postgres

import (
	"context"
	"encoding/json"

	"gorm.io/gorm"

	rbacDatamodel "github.com/yatrisafe/tourist-safety/internal/core/datamodel/rbac"
	userDatamodel "github.com/yatrisafe/tourist-safety/internal/core/datamodel/user"
	"github.com/yatrisafe/tourist-safety/internal/rbac"
)

// RoleRepository implements rbac.Repository using GORM.
type RoleRepository struct {
	db *gorm.DB
}

func NewRoleRepository(db *gorm.DB) rbac.Repository {
	return &RoleRepository{db: db}
}

func (r *RoleRepository) GetRoleByName(ctx context.Context, name string) (*rbac.Role, error) {
	var record rbacDatamodel.Role
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return rbac.FromDataModel(&record)
}

func (r *RoleRepository) ListRoles(ctx context.Context) ([]*rbac.Role, error) {
	var records []*rbacDatamodel.Role
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	roles := make([]*rbac.Role, 0, len(records))
	for _, record := range records {
		role, err := rbac.FromDataModel(record)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, nil
}

func (r *RoleRepository) CreateRole(ctx context.Context, role *rbac.Role) error {
	record, err := rbac.ToDataModel(role)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return err
	}
	role.ID = record.ID
	return nil
}

func (r *RoleRepository) UpdateRole(ctx context.Context, role *rbac.Role) error {
	record, err := rbac.ToDataModel(role)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&rbacDatamodel.Role{}).
		Where("name = ?", record.Name).
		Updates(map[string]interface{}{
			"display_name": record.DisplayName,
			"permissions":  record.Permissions,
			"is_active":    record.IsActive,
		}).Error
}

func (r *RoleRepository) DeleteRole(ctx context.Context, name string) error {
	return r.db.WithContext(ctx).Where("name = ?", name).Delete(&rbacDatamodel.Role{}).Error
}

func (r *RoleRepository) CountUsersWithRole(ctx context.Context, name string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&userDatamodel.User{}).
		Where("role_name = ?", name).
		Count(&count).Error
	return count, err
}

func (r *RoleRepository) GetUserGrants(ctx context.Context, userID int64) (*rbac.UserGrants, error) {
	var record userDatamodel.User
	err := r.db.WithContext(ctx).Where("id = ?", userID).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}

	grants := &rbac.UserGrants{
		RoleName:           record.RoleName,
		SpecialPermissions: []string{},
	}
	if record.SpecialPermissions != "" {
		if err := json.Unmarshal([]byte(record.SpecialPermissions), &grants.SpecialPermissions); err != nil {
			return nil, err
		}
	}
	return grants, nil
}
