package user

import "time"

type User struct {
	ID                 int64      `gorm:"primaryKey"`
	Email              string     `gorm:"column:email;uniqueIndex;not null"`
	Name               string     `gorm:"column:name;not null"`
	Phone              string     `gorm:"column:phone"`
	RoleName           string     `gorm:"column:role_name;not null"`
	Department         string     `gorm:"column:department"`
	IsActive           bool       `gorm:"column:is_active;default:true"`
	IsVerified         bool       `gorm:"column:is_verified;default:false"`
	SpecialPermissions string     `gorm:"column:special_permissions"` // JSON array of permission ids
	LastLoginAt        *time.Time `gorm:"column:last_login_at"`
	LastLoginIP        string     `gorm:"column:last_login_ip"`
	LoginCount         int64      `gorm:"column:login_count;default:0"`
	CreatedAt          time.Time  `gorm:"column:created_at;default:now()"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;default:now()"`
}

// Credential holds the password hash and rotation history for one user.
// It is never returned across the API boundary.
type Credential struct {
	ID                 int64     `gorm:"primaryKey"`
	UserID             int64     `gorm:"column:user_id;uniqueIndex;not null"`
	PasswordHash       string    `gorm:"column:password_hash;not null"`
	PasswordHistory    string    `gorm:"column:password_history"` // JSON array of previous hashes, newest first
	LastPasswordChange time.Time `gorm:"column:last_password_change;default:now()"`
	CreatedAt          time.Time `gorm:"column:created_at;default:now()"`
	UpdatedAt          time.Time `gorm:"column:updated_at;default:now()"`
}

// SecurityState tracks login failures, lockout and outstanding reset tokens
// for one user.
type SecurityState struct {
	ID                  int64      `gorm:"primaryKey"`
	UserID              int64      `gorm:"column:user_id;uniqueIndex;not null"`
	FailedAttempts      int        `gorm:"column:failed_attempts;default:0"`
	LastFailedAt        *time.Time `gorm:"column:last_failed_at"`
	LockedUntil         *time.Time `gorm:"column:locked_until"`
	ResetTokenHash      string     `gorm:"column:reset_token_hash"`
	ResetTokenExpiresAt *time.Time `gorm:"column:reset_token_expires_at"`
	ResetTokenUsed      bool       `gorm:"column:reset_token_used;default:false"`
	TwoFactorEnabled    bool       `gorm:"column:two_factor_enabled;default:false"`
	UpdatedAt           time.Time  `gorm:"column:updated_at;default:now()"`
}
