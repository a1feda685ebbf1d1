package audit

import (
	"encoding/json"
	"time"

	auditDatamodel "github.com/yatrisafe/tourist-safety/internal/core/datamodel/audit"
)

// Actions recorded by the authentication core. The audit trail is append-only;
// entries are never mutated or deleted once written.
const (
	ActionUserCreated            = "USER_CREATED"
	ActionUserUpdated            = "USER_UPDATED"
	ActionUserDeactivated        = "USER_DEACTIVATED"
	ActionUserDeleted            = "USER_DELETED"
	ActionUserLogin              = "USER_LOGIN"
	ActionLoginFailed            = "LOGIN_FAILED"
	ActionAccountLocked          = "ACCOUNT_LOCKED"
	ActionSessionEnded           = "SESSION_ENDED"
	ActionSessionExpired         = "SESSION_EXPIRED"
	ActionTokenRefreshed         = "TOKEN_REFRESHED"
	ActionPasswordChanged        = "PASSWORD_CHANGED"
	ActionPasswordResetRequested = "PASSWORD_RESET_REQUESTED"
	ActionPasswordResetCompleted = "PASSWORD_RESET_COMPLETED"
	ActionPasswordResetFailed    = "PASSWORD_RESET_FAILED"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusPending = "pending"
)

// Entry is the domain view of one audit record.
type Entry struct {
	ID         int64     `json:"id"`
	UserID     *int64    `json:"user_id,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type,omitempty"`
	EntityID   string    `json:"entity_id,omitempty"`
	OldValue   string    `json:"old_value,omitempty"`
	NewValue   string    `json:"new_value,omitempty"`
	Status     string    `json:"status"`
	IPAddress  string    `json:"ip_address,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Filter struct {
	UserID *int64
	Action string
	Limit  int
	Offset int
}

// Snapshot serializes a before/after value for storage. Marshal failures
// degrade to an empty snapshot rather than blocking the audit append.
func Snapshot(v interface{}) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func ToDataModel(e *Entry) *auditDatamodel.Entry {
	return &auditDatamodel.Entry{
		ID:         e.ID,
		UserID:     e.UserID,
		SessionID:  e.SessionID,
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		OldValue:   e.OldValue,
		NewValue:   e.NewValue,
		Status:     e.Status,
		IPAddress:  e.IPAddress,
		CreatedAt:  e.CreatedAt,
	}
}

func FromDataModel(e *auditDatamodel.Entry) *Entry {
	return &Entry{
		ID:         e.ID,
		UserID:     e.UserID,
		SessionID:  e.SessionID,
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		OldValue:   e.OldValue,
		NewValue:   e.NewValue,
		Status:     e.Status,
		IPAddress:  e.IPAddress,
		CreatedAt:  e.CreatedAt,
	}
}
