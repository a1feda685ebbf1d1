package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	internal "github.com/yatrisafe/tourist-safety/internal"
)

// UserGrants is the slice of a user record the resolver needs: the role
// reference and any per-user permission overrides layered on top of it.
type UserGrants struct {
	RoleName           string
	SpecialPermissions []string
}

type Repository interface {
	GetRoleByName(ctx context.Context, name string) (*Role, error)
	ListRoles(ctx context.Context) ([]*Role, error)
	CreateRole(ctx context.Context, role *Role) error
	UpdateRole(ctx context.Context, role *Role) error
	DeleteRole(ctx context.Context, name string) error
	CountUsersWithRole(ctx context.Context, name string) (int64, error)
	GetUserGrants(ctx context.Context, userID int64) (*UserGrants, error)
}

// Resolver answers authorization queries. Resolution is always
// role.permissions union user.specialPermissions; an unknown user resolves to
// the empty set because "no permissions" is the safe default.
type Resolver struct {
	repo   Repository
	logger *slog.Logger
}

func NewResolver(repo Repository, logger *slog.Logger) *Resolver {
	return &Resolver{repo: repo, logger: logger}
}

// PermissionsFor returns the resolved permission set for a user, sorted for
// stable output. Unknown users get an empty set, not an error.
func (r *Resolver) PermissionsFor(ctx context.Context, userID int64) ([]string, error) {
	grants, err := r.repo.GetUserGrants(ctx, userID)
	if err != nil {
		return nil, internal.NewDependencyError("user grants lookup failed", err)
	}
	if grants == nil {
		return []string{}, nil
	}

	set := make(map[string]struct{})
	if grants.RoleName != "" {
		role, err := r.repo.GetRoleByName(ctx, grants.RoleName)
		if err != nil {
			return nil, internal.NewDependencyError("role lookup failed", err)
		}
		if role != nil && role.IsActive {
			for _, perm := range role.Permissions {
				set[perm] = struct{}{}
			}
		}
	}
	for _, perm := range grants.SpecialPermissions {
		set[perm] = struct{}{}
	}

	resolved := make([]string, 0, len(set))
	for perm := range set {
		resolved = append(resolved, perm)
	}
	sort.Strings(resolved)
	return resolved, nil
}

// HasPermission tests membership of resource.action in the resolved set.
func (r *Resolver) HasPermission(ctx context.Context, userID int64, resource, action string) (bool, error) {
	permissions, err := r.PermissionsFor(ctx, userID)
	if err != nil {
		return false, err
	}
	want := PermissionID(resource, action)
	for _, perm := range permissions {
		if perm == want {
			return true, nil
		}
	}
	return false, nil
}

// HasRole is an identity check against the user's role reference.
func (r *Resolver) HasRole(ctx context.Context, userID int64, roleName string) (bool, error) {
	grants, err := r.repo.GetUserGrants(ctx, userID)
	if err != nil {
		return false, internal.NewDependencyError("user grants lookup failed", err)
	}
	if grants == nil {
		return false, nil
	}
	return strings.EqualFold(grants.RoleName, roleName), nil
}

func (r *Resolver) GetRole(ctx context.Context, name string) (*Role, error) {
	role, err := r.repo.GetRoleByName(ctx, name)
	if err != nil {
		return nil, internal.NewDependencyError("role lookup failed", err)
	}
	if role == nil {
		return nil, internal.ErrRoleNotFound
	}
	return role, nil
}

func (r *Resolver) ListRoles(ctx context.Context) ([]*Role, error) {
	return r.repo.ListRoles(ctx)
}

// CreateRole validates the permission set against the catalog before writing.
func (r *Resolver) CreateRole(ctx context.Context, role *Role) error {
	if strings.TrimSpace(role.Name) == "" {
		return internal.NewValidationError("role name is required", internal.ErrCodeInvalidRole)
	}
	if err := validatePermissionIDs(role.Name, role.Permissions); err != nil {
		return err
	}
	role.IsActive = true
	if err := r.repo.CreateRole(ctx, role); err != nil {
		return internal.NewDependencyError("role create failed", err)
	}
	return nil
}

// UpdateRole rejects clearing a system role's permission set to empty.
func (r *Resolver) UpdateRole(ctx context.Context, role *Role) error {
	existing, err := r.repo.GetRoleByName(ctx, role.Name)
	if err != nil {
		return internal.NewDependencyError("role lookup failed", err)
	}
	if existing == nil {
		return internal.ErrRoleNotFound
	}
	if existing.IsSystem && len(role.Permissions) == 0 {
		return internal.ErrSystemRole
	}
	if err := validatePermissionIDs(role.Name, role.Permissions); err != nil {
		return err
	}
	role.ID = existing.ID
	role.IsSystem = existing.IsSystem
	if err := r.repo.UpdateRole(ctx, role); err != nil {
		return internal.NewDependencyError("role update failed", err)
	}
	return nil
}

// DeleteRole refuses to delete system roles and roles still referenced by
// users.
func (r *Resolver) DeleteRole(ctx context.Context, name string) error {
	role, err := r.repo.GetRoleByName(ctx, name)
	if err != nil {
		return internal.NewDependencyError("role lookup failed", err)
	}
	if role == nil {
		return internal.ErrRoleNotFound
	}
	if role.IsSystem {
		return internal.ErrSystemRole
	}
	count, err := r.repo.CountUsersWithRole(ctx, name)
	if err != nil {
		return internal.NewDependencyError("role reference count failed", err)
	}
	if count > 0 {
		return internal.ErrRoleInUse
	}
	if err := r.repo.DeleteRole(ctx, name); err != nil {
		return internal.NewDependencyError("role delete failed", err)
	}
	return nil
}

// ValidateCatalog cross-checks every stored role against the closed permission
// catalog. Run at startup so a bad row fails the boot, not a request.
func (r *Resolver) ValidateCatalog(ctx context.Context) error {
	roles, err := r.repo.ListRoles(ctx)
	if err != nil {
		return fmt.Errorf("list roles: %w", err)
	}
	for _, role := range roles {
		for _, perm := range role.Permissions {
			if !InCatalog(perm) {
				return fmt.Errorf("role %q references unknown permission %q", role.Name, perm)
			}
		}
	}
	r.logger.Info("role catalog validated", "roles", len(roles))
	return nil
}

func validatePermissionIDs(roleName string, permissions []string) error {
	for _, perm := range permissions {
		if !InCatalog(perm) {
			return internal.NewValidationFieldError(
				"permissions",
				fmt.Sprintf("permission %q is not in the catalog (role %q)", perm, roleName),
				internal.ErrCodeInvalidRole,
			)
		}
	}
	return nil
}
