package audit

import "time"

// Entry is one append-only audit row. Rows are never updated or deleted after
// creation; the repository exposes no mutation beyond Append.
type Entry struct {
	ID         int64     `gorm:"primaryKey"`
	UserID     *int64    `gorm:"column:user_id;index"`
	SessionID  string    `gorm:"column:session_id;index"`
	Action     string    `gorm:"column:action;index;not null"`
	EntityType string    `gorm:"column:entity_type"`
	EntityID   string    `gorm:"column:entity_id"`
	OldValue   string    `gorm:"column:old_value"` // JSON snapshot
	NewValue   string    `gorm:"column:new_value"` // JSON snapshot
	Status     string    `gorm:"column:status;not null"`
	IPAddress  string    `gorm:"column:ip_address"`
	CreatedAt  time.Time `gorm:"column:created_at;default:now()"`
}

func (Entry) TableName() string {
	return "audit_entries"
}
