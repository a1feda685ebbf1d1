package session

import "time"

// Session is one authenticated login, recorded server-side independently of
// the bearer token's cryptographic validity.
type Session struct {
	ID           string    `gorm:"primaryKey;size:36"`
	UserID       int64     `gorm:"column:user_id;index;not null"`
	Device       string    `gorm:"column:device"`
	Platform     string    `gorm:"column:platform"`
	IPAddress    string    `gorm:"column:ip_address"`
	RefreshToken string    `gorm:"column:refresh_token;not null"`
	TokenHash    string    `gorm:"column:token_hash;not null"` // sha256 of the access token, never the token itself
	IsActive     bool      `gorm:"column:is_active;index;default:true"`
	LastActivity time.Time `gorm:"column:last_activity;not null"`
	ExpiresAt    time.Time `gorm:"column:expires_at;index;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;default:now()"`
}
