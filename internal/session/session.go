package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	sessionDatamodel "github.com/yatrisafe/tourist-safety/internal/core/datamodel/session"
)

// Session is the domain view of one login. Ended is terminal: no operation
// ever transitions a session back to active.
type Session struct {
	ID           string    `json:"id"`
	UserID       int64     `json:"user_id"`
	Device       string    `json:"device,omitempty"`
	Platform     string    `json:"platform,omitempty"`
	IPAddress    string    `json:"ip_address,omitempty"`
	RefreshToken string    `json:"-"`
	TokenHash    string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// DeviceMeta carries the client metadata captured at login.
type DeviceMeta struct {
	Device    string
	Platform  string
	IPAddress string
}

// Expired reports whether the absolute expiry has passed. Expiry is never
// extended by activity, so a stolen token's blast radius stays bounded.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// NewRefreshToken returns a cryptographically random opaque token.
func NewRefreshToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// HashToken returns the sha256 hex digest of an access token. Only the digest
// is ever persisted.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func ToDataModel(s *Session) *sessionDatamodel.Session {
	return &sessionDatamodel.Session{
		ID:           s.ID,
		UserID:       s.UserID,
		Device:       s.Device,
		Platform:     s.Platform,
		IPAddress:    s.IPAddress,
		RefreshToken: s.RefreshToken,
		TokenHash:    s.TokenHash,
		IsActive:     s.IsActive,
		LastActivity: s.LastActivity,
		ExpiresAt:    s.ExpiresAt,
		CreatedAt:    s.CreatedAt,
	}
}

func FromDataModel(s *sessionDatamodel.Session) *Session {
	return &Session{
		ID:           s.ID,
		UserID:       s.UserID,
		Device:       s.Device,
		Platform:     s.Platform,
		IPAddress:    s.IPAddress,
		RefreshToken: s.RefreshToken,
		TokenHash:    s.TokenHash,
		IsActive:     s.IsActive,
		LastActivity: s.LastActivity,
		ExpiresAt:    s.ExpiresAt,
		CreatedAt:    s.CreatedAt,
	}
}
