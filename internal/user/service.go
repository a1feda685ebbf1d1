package user

import (
	"context"
	"log/slog"
	"strconv"

	internal "github.com/yatrisafe/tourist-safety/internal"
	"github.com/yatrisafe/tourist-safety/internal/audit"
	"github.com/yatrisafe/tourist-safety/internal/rbac"
	"github.com/yatrisafe/tourist-safety/internal/session"
)

type Repository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	List(ctx context.Context, limit, offset int) ([]*User, int64, error)
	Update(ctx context.Context, u *User) error
	SetActive(ctx context.Context, id int64, active bool) error
	Delete(ctx context.Context, id int64) error
}

// SessionManager is the slice of the session service the user module needs
// for revocation cascades and session listing.
type SessionManager interface {
	Get(ctx context.Context, id string) (*session.Session, error)
	End(ctx context.Context, id string) error
	EndAllForUser(ctx context.Context, userID int64) (int64, error)
	ListActive(ctx context.Context, userID int64) ([]*session.Session, error)
}

// RoleSource validates role references and resolves permission sets.
type RoleSource interface {
	GetRole(ctx context.Context, name string) (*rbac.Role, error)
	PermissionsFor(ctx context.Context, userID int64) ([]string, error)
}

type Auditor interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Service implements administrative user operations. Deactivation and
// deletion cascade into session revocation: a user who loses the account
// loses every live login with it.
type Service struct {
	repo     Repository
	sessions SessionManager
	roles    RoleSource
	auditor  Auditor
	logger   *slog.Logger
}

func NewService(repo Repository, sessions SessionManager, roles RoleSource, auditor Auditor, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		sessions: sessions,
		roles:    roles,
		auditor:  auditor,
		logger:   logger,
	}
}

// GetByID loads a user with its resolved permission set.
func (s *Service) GetByID(ctx context.Context, id int64) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, internal.NewDependencyError("user lookup failed", err)
	}
	if u == nil {
		return nil, internal.ErrUserNotFound
	}
	perms, err := s.roles.PermissionsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Permissions = perms
	return u, nil
}

func (s *Service) List(ctx context.Context, dto ListUsersDTO) (*ListUsersResult, error) {
	if dto.Limit <= 0 {
		dto.Limit = 50
	}
	if dto.Limit > 200 {
		dto.Limit = 200
	}
	if dto.Offset < 0 {
		dto.Offset = 0
	}

	users, total, err := s.repo.List(ctx, dto.Limit, dto.Offset)
	if err != nil {
		return nil, internal.NewDependencyError("user list failed", err)
	}

	result := &ListUsersResult{
		Users:  make([]PublicUser, 0, len(users)),
		Total:  total,
		Limit:  dto.Limit,
		Offset: dto.Offset,
	}
	for _, u := range users {
		result.Users = append(result.Users, u.Public())
	}
	return result, nil
}

// Update applies an admin edit. Role references must exist and special
// permissions must be catalog entries before anything is written.
func (s *Service) Update(ctx context.Context, id int64, dto UpdateUserDTO) (*User, error) {
	dto.Normalize()
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, internal.NewDependencyError("user lookup failed", err)
	}
	if u == nil {
		return nil, internal.ErrUserNotFound
	}
	before := u.Public()

	if dto.RoleName != nil && *dto.RoleName != u.RoleName {
		if _, err := s.roles.GetRole(ctx, *dto.RoleName); err != nil {
			return nil, err
		}
		u.RoleName = *dto.RoleName
	}
	if dto.SpecialPermissions != nil {
		for _, perm := range dto.SpecialPermissions {
			if !rbac.InCatalog(perm) {
				return nil, internal.NewValidationFieldError(
					"special_permissions",
					"permission "+strconv.Quote(perm)+" is not in the catalog",
					internal.ErrCodeInvalidRole,
				)
			}
		}
		u.SpecialPermissions = dto.SpecialPermissions
	}
	if dto.Name != nil {
		u.Name = *dto.Name
	}
	if dto.Phone != nil {
		u.Phone = *dto.Phone
	}
	if dto.Department != nil {
		u.Department = *dto.Department
	}
	if dto.IsVerified != nil {
		u.IsVerified = *dto.IsVerified
	}

	deactivated := false
	if dto.IsActive != nil {
		if u.IsActive && !*dto.IsActive {
			deactivated = true
		}
		u.IsActive = *dto.IsActive
	}

	if err := s.repo.Update(ctx, u); err != nil {
		return nil, internal.NewDependencyError("user update failed", err)
	}
	if deactivated {
		if _, err := s.sessions.EndAllForUser(ctx, id); err != nil {
			s.logger.Error("session revocation failed on deactivate", "user_id", id, "error", err)
		}
	}

	if err := s.auditor.Record(ctx, audit.Entry{
		UserID:     &id,
		Action:     audit.ActionUserUpdated,
		EntityType: "user",
		EntityID:   strconv.FormatInt(id, 10),
		OldValue:   audit.Snapshot(before),
		NewValue:   audit.Snapshot(u.Public()),
		Status:     audit.StatusSuccess,
	}); err != nil {
		s.logger.Warn("user update audit failed", "user_id", id, "error", err)
	}

	perms, err := s.roles.PermissionsFor(ctx, id)
	if err == nil {
		u.Permissions = perms
	}
	return u, nil
}

// Deactivate disables the account and ends every session it has. Already
// inactive accounts deactivate idempotently.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return internal.NewDependencyError("user lookup failed", err)
	}
	if u == nil {
		return internal.ErrUserNotFound
	}

	if err := s.repo.SetActive(ctx, id, false); err != nil {
		return internal.NewDependencyError("user deactivate failed", err)
	}
	ended, err := s.sessions.EndAllForUser(ctx, id)
	if err != nil {
		s.logger.Error("session revocation failed on deactivate", "user_id", id, "error", err)
	}

	if err := s.auditor.Record(ctx, audit.Entry{
		UserID:     &id,
		Action:     audit.ActionUserDeactivated,
		EntityType: "user",
		EntityID:   strconv.FormatInt(id, 10),
		NewValue:   audit.Snapshot(map[string]interface{}{"sessions_ended": ended}),
		Status:     audit.StatusSuccess,
	}); err != nil {
		s.logger.Warn("user deactivate audit failed", "user_id", id, "error", err)
	}
	return nil
}

// Delete removes the account after revoking its sessions. The audit entry
// outlives the user row; entries reference users by id, not foreign key.
func (s *Service) Delete(ctx context.Context, id int64) error {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return internal.NewDependencyError("user lookup failed", err)
	}
	if u == nil {
		return internal.ErrUserNotFound
	}

	if _, err := s.sessions.EndAllForUser(ctx, id); err != nil {
		s.logger.Error("session revocation failed on delete", "user_id", id, "error", err)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return internal.NewDependencyError("user delete failed", err)
	}

	if err := s.auditor.Record(ctx, audit.Entry{
		UserID:     &id,
		Action:     audit.ActionUserDeleted,
		EntityType: "user",
		EntityID:   strconv.FormatInt(id, 10),
		OldValue:   audit.Snapshot(u.Public()),
		Status:     audit.StatusSuccess,
	}); err != nil {
		s.logger.Warn("user delete audit failed", "user_id", id, "error", err)
	}
	return nil
}

// ListSessions returns the active sessions for one user.
func (s *Service) ListSessions(ctx context.Context, userID int64) ([]*session.Session, error) {
	sessions, err := s.sessions.ListActive(ctx, userID)
	if err != nil {
		return nil, internal.NewDependencyError("session list failed", err)
	}
	return sessions, nil
}

// RevokeSession ends one session on behalf of its owner or an admin. The
// ownerID guard stops a user from revoking someone else's session by id.
func (s *Service) RevokeSession(ctx context.Context, sessionID string, ownerID int64, requireOwner bool) error {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return internal.NewDependencyError("session lookup failed", err)
	}
	if sess == nil {
		return internal.ErrSessionNotFound
	}
	if requireOwner && sess.UserID != ownerID {
		return internal.ErrInsufficientPermissions
	}
	return s.sessions.End(ctx, sessionID)
}
