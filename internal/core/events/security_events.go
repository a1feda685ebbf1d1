package events

import (
	"time"

	"github.com/google/uuid"
)

// Security event types published by the authentication core. External
// collaborators (notification delivery, SIEM forwarders) subscribe to these;
// the audit trail never depends on a subscriber being present.
const (
	EventUserRegistered  = "security.user_registered"
	EventUserLogin       = "security.user_login"
	EventLoginFailed     = "security.login_failed"
	EventAccountLocked   = "security.account_locked"
	EventPasswordChanged = "security.password_changed"
	EventPasswordReset   = "security.password_reset"
	EventSessionEnded    = "security.session_ended"
)

// NewSecurityEvent builds a BaseEvent for the given security event type.
func NewSecurityEvent(eventType string, data map[string]interface{}) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
}
