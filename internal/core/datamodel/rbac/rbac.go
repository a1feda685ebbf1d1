package rbac

import "time"

type Role struct {
	ID          int64     `gorm:"primaryKey"`
	Name        string    `gorm:"column:name;uniqueIndex;not null"`
	DisplayName string    `gorm:"column:display_name;not null"`
	Permissions string    `gorm:"column:permissions"` // JSON array of permission ids
	IsSystem    bool      `gorm:"column:is_system;default:false"`
	IsActive    bool      `gorm:"column:is_active;default:true"`
	CreatedAt   time.Time `gorm:"column:created_at;default:now()"`
	UpdatedAt   time.Time `gorm:"column:updated_at;default:now()"`
}

// Permission is an immutable catalog row. The id is scoped as resource.action,
// e.g. "tourists.edit".
type Permission struct {
	ID        string    `gorm:"primaryKey;size:64"`
	Category  string    `gorm:"column:category;not null"`
	RiskLevel string    `gorm:"column:risk_level;default:'low'"`
	CreatedAt time.Time `gorm:"column:created_at;default:now()"`
}
