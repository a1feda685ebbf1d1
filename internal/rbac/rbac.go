package rbac

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	rbacDatamodel "github.com/yatrisafe/tourist-safety/internal/core/datamodel/rbac"
)

// Permission identifiers are scoped as resource.action. The catalog is closed:
// a typo in a permission string fails at startup instead of silently granting
// or denying the wrong thing.
const (
	PermTouristsView   = "tourists.view"
	PermTouristsCreate = "tourists.create"
	PermTouristsEdit   = "tourists.edit"
	PermTouristsDelete = "tourists.delete"

	PermOperatorsView   = "operators.view"
	PermOperatorsManage = "operators.manage"

	PermIncidentsView    = "incidents.view"
	PermIncidentsCreate  = "incidents.create"
	PermIncidentsAssign  = "incidents.assign"
	PermIncidentsResolve = "incidents.resolve"

	PermZonesView   = "zones.view"
	PermZonesManage = "zones.manage"

	PermDashboardsView = "dashboards.view"

	PermUsersView   = "users.view"
	PermUsersCreate = "users.create"
	PermUsersEdit   = "users.edit"
	PermUsersDelete = "users.delete"

	PermRolesView   = "roles.view"
	PermRolesManage = "roles.manage"

	PermAuditView = "audit.view"

	PermSessionsManage = "sessions.manage"
)

// Catalog maps every known permission id to its category and risk level.
type CatalogEntry struct {
	Category  string
	RiskLevel string
}

var Catalog = map[string]CatalogEntry{
	PermTouristsView:     {Category: "tourists", RiskLevel: "low"},
	PermTouristsCreate:   {Category: "tourists", RiskLevel: "medium"},
	PermTouristsEdit:     {Category: "tourists", RiskLevel: "medium"},
	PermTouristsDelete:   {Category: "tourists", RiskLevel: "high"},
	PermOperatorsView:    {Category: "operators", RiskLevel: "low"},
	PermOperatorsManage:  {Category: "operators", RiskLevel: "high"},
	PermIncidentsView:    {Category: "incidents", RiskLevel: "low"},
	PermIncidentsCreate:  {Category: "incidents", RiskLevel: "medium"},
	PermIncidentsAssign:  {Category: "incidents", RiskLevel: "medium"},
	PermIncidentsResolve: {Category: "incidents", RiskLevel: "medium"},
	PermZonesView:        {Category: "zones", RiskLevel: "low"},
	PermZonesManage:      {Category: "zones", RiskLevel: "high"},
	PermDashboardsView:   {Category: "dashboards", RiskLevel: "low"},
	PermUsersView:        {Category: "users", RiskLevel: "medium"},
	PermUsersCreate:      {Category: "users", RiskLevel: "high"},
	PermUsersEdit:        {Category: "users", RiskLevel: "high"},
	PermUsersDelete:      {Category: "users", RiskLevel: "critical"},
	PermRolesView:        {Category: "roles", RiskLevel: "medium"},
	PermRolesManage:      {Category: "roles", RiskLevel: "critical"},
	PermAuditView:        {Category: "audit", RiskLevel: "medium"},
	PermSessionsManage:   {Category: "sessions", RiskLevel: "high"},
}

// PermissionID joins a resource and action into the catalog form.
func PermissionID(resource, action string) string {
	return resource + "." + action
}

// InCatalog reports whether a permission id is a known catalog entry.
func InCatalog(id string) bool {
	_, ok := Catalog[id]
	return ok
}

// Role is the domain view of one role.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Permissions []string  `json:"permissions"`
	IsSystem    bool      `json:"is_system"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DefaultRoles is the role catalog installed by the seed command. All three
// are system roles: viewer is the role self-registration assigns, so deleting
// it would leave new accounts with a dangling role name.
func DefaultRoles() []Role {
	all := make([]string, 0, len(Catalog))
	for id := range Catalog {
		all = append(all, id)
	}
	return []Role{
		{
			Name:        "admin",
			DisplayName: "Administrator",
			Permissions: all,
			IsSystem:    true,
			IsActive:    true,
		},
		{
			Name:        "operator",
			DisplayName: "Field Operator",
			Permissions: []string{
				PermTouristsView,
				PermIncidentsView,
				PermIncidentsCreate,
				PermIncidentsAssign,
				PermIncidentsResolve,
				PermZonesView,
				PermDashboardsView,
			},
			IsSystem: true,
			IsActive: true,
		},
		{
			Name:        "viewer",
			DisplayName: "Read-Only Viewer",
			Permissions: []string{
				PermTouristsView,
				PermIncidentsView,
				PermDashboardsView,
			},
			IsSystem: true,
			IsActive: true,
		},
	}
}

func ToDataModel(r *Role) (*rbacDatamodel.Role, error) {
	perms, err := json.Marshal(r.Permissions)
	if err != nil {
		return nil, fmt.Errorf("marshal role permissions: %w", err)
	}
	return &rbacDatamodel.Role{
		ID:          r.ID,
		Name:        strings.ToLower(strings.TrimSpace(r.Name)),
		DisplayName: r.DisplayName,
		Permissions: string(perms),
		IsSystem:    r.IsSystem,
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}

func FromDataModel(record *rbacDatamodel.Role) (*Role, error) {
	role := &Role{
		ID:          record.ID,
		Name:        record.Name,
		DisplayName: record.DisplayName,
		Permissions: []string{},
		IsSystem:    record.IsSystem,
		IsActive:    record.IsActive,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
	if record.Permissions != "" {
		if err := json.Unmarshal([]byte(record.Permissions), &role.Permissions); err != nil {
			return nil, fmt.Errorf("unmarshal role permissions for %q: %w", record.Name, err)
		}
	}
	return role, nil
}
