package rbac

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi"

	"github.com/yatrisafe/tourist-safety/internal/transport"
	"github.com/yatrisafe/tourist-safety/pkg/logger"
)

type Handler struct {
	*transport.BaseHandler
	Resolver *Resolver
}

func NewHandler(resolver *Resolver) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Resolver:    resolver,
	}
}

// ListPermissions returns the closed permission catalog.
func (h *Handler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	type permissionView struct {
		ID        string `json:"id"`
		Category  string `json:"category"`
		RiskLevel string `json:"risk_level"`
	}

	permissions := make([]permissionView, 0, len(Catalog))
	for id, entry := range Catalog {
		permissions = append(permissions, permissionView{
			ID:        id,
			Category:  entry.Category,
			RiskLevel: entry.RiskLevel,
		})
	}
	sort.Slice(permissions, func(i, j int) bool { return permissions[i].ID < permissions[j].ID })

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"permissions": permissions})
}

func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.Resolver.ListRoles(r.Context())
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"roles": roles})
}

func (h *Handler) GetRole(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "roleName")
	role, err := h.Resolver.GetRole(r.Context(), name)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, role)
}

func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var role Role
	if err := json.NewDecoder(r.Body).Decode(&role); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.Resolver.CreateRole(r.Context(), &role); err != nil {
		h.Logger.Error("role create failed", "role", role.Name, "error", err)
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, role)
}

func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var role Role
	if err := json.NewDecoder(r.Body).Decode(&role); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	role.Name = chi.URLParam(r, "roleName")

	if err := h.Resolver.UpdateRole(r.Context(), &role); err != nil {
		h.Logger.Error("role update failed", "role", role.Name, "error", err)
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, role)
}

func (h *Handler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "roleName")
	if err := h.Resolver.DeleteRole(r.Context(), name); err != nil {
		h.Logger.Error("role delete failed", "role", name, "error", err)
		h.WriteAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
