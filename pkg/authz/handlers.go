package authz

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/opsdeck/opsdeck/pkg/observability"
)

// Handlers provides the HTTP administration surface consumed by
// organization-management flows.
type Handlers struct {
	store    *Store
	admin    *Admin
	resolver *Resolver
	logger   *observability.Logger
}

// NewHandlers creates the authz admin handlers.
func NewHandlers(store *Store, admin *Admin, resolver *Resolver, logger *observability.Logger) *Handlers {
	return &Handlers{
		store:    store,
		admin:    admin,
		resolver: resolver,
		logger:   logger,
	}
}

// RegisterRoutes registers all authz routes. Paths are relative so the
// whole surface can mount under a guarded subrouter (typically
// /api/v1/authz).
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/organizations/{org_id}/roles", h.CreateRole).Methods("POST")
	router.HandleFunc("/organizations/{org_id}/roles", h.ListRoles).Methods("GET")
	router.HandleFunc("/organizations/{org_id}/default-roles", h.EnsureDefaultRoles).Methods("POST")
	router.HandleFunc("/roles/{id}", h.GetRole).Methods("GET")
	router.HandleFunc("/roles/{id}", h.DeleteRole).Methods("DELETE")
	router.HandleFunc("/roles/{id}/permissions", h.AttachPermission).Methods("POST")
	router.HandleFunc("/roles/{id}/permissions/{key}", h.DetachPermission).Methods("DELETE")
	router.HandleFunc("/memberships/{id}/roles", h.AttachRole).Methods("POST")
	router.HandleFunc("/memberships/{id}/roles/{role_id}", h.DetachRole).Methods("DELETE")
	router.HandleFunc("/permissions", h.ListPermissions).Methods("GET")
	router.HandleFunc("/resolve", h.ResolvePermission).Methods("POST")
}

// CreateRole creates a new organization-scoped role.
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	orgID := mux.Vars(r)["org_id"]

	var req struct {
		Key  string `json:"key"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	if req.Key == "" || req.Name == "" {
		errorResponse(w, http.StatusBadRequest, "key and name are required", "")
		return
	}

	role, err := h.admin.CreateRole(r.Context(), orgID, req.Key, req.Name)
	if err != nil {
		h.mutationError(w, err)
		return
	}

	jsonResponse(w, http.StatusCreated, role)
}

// ListRoles lists an organization's roles.
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.store.ListRoles(r.Context(), mux.Vars(r)["org_id"])
	if err != nil {
		h.internalError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, roles)
}

// EnsureDefaultRoles materializes the baseline roles for an
// organization. Safe to call repeatedly.
func (h *Handlers) EnsureDefaultRoles(w http.ResponseWriter, r *http.Request) {
	orgID := mux.Vars(r)["org_id"]
	if err := h.admin.EnsureDefaultRoles(r.Context(), orgID); err != nil {
		h.mutationError(w, err)
		return
	}

	roles, err := h.store.ListRoles(r.Context(), orgID)
	if err != nil {
		h.internalError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, roles)
}

// GetRole returns a role with its attached permission keys.
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	roleID := mux.Vars(r)["id"]

	role, err := h.store.GetRole(r.Context(), roleID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			errorResponse(w, http.StatusNotFound, "role not found", "")
			return
		}
		h.internalError(w, err)
		return
	}

	keys, err := h.store.ListRolePermissionKeys(r.Context(), roleID)
	if err != nil {
		h.internalError(w, err)
		return
	}

	jsonResponse(w, http.StatusOK, struct {
		*Role
		PermissionKeys []string `json:"permission_keys"`
	}{Role: role, PermissionKeys: keys})
}

// DeleteRole removes a role and all of its grants.
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.DeleteRole(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.mutationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AttachPermission grants a permission key to a role.
func (h *Handlers) AttachPermission(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
		errorResponse(w, http.StatusBadRequest, "permission key is required", "")
		return
	}

	if err := h.admin.AttachPermissionToRole(r.Context(), mux.Vars(r)["id"], req.Key); err != nil {
		h.mutationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DetachPermission revokes a permission key from a role.
func (h *Handlers) DetachPermission(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.admin.DetachPermissionFromRole(r.Context(), vars["id"], vars["key"]); err != nil {
		h.mutationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AttachRole binds a role to a membership.
func (h *Handlers) AttachRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoleID string `json:"role_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoleID == "" {
		errorResponse(w, http.StatusBadRequest, "role_id is required", "")
		return
	}

	if err := h.admin.AttachRoleToMembership(r.Context(), mux.Vars(r)["id"], req.RoleID); err != nil {
		h.mutationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DetachRole removes a role binding from a membership.
func (h *Handlers) DetachRole(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.admin.DetachRoleFromMembership(r.Context(), vars["id"], vars["role_id"]); err != nil {
		h.mutationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListPermissions returns the global permission vocabulary.
func (h *Handlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.store.ListPermissions(r.Context())
	if err != nil {
		h.internalError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, perms)
}

// ResolvePermission evaluates a (user, organization, permission key)
// triple. Read-only and idempotent.
func (h *Handlers) ResolvePermission(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID         string `json:"user_id"`
		OrganizationID string `json:"organization_id"`
		PermissionKey  string `json:"permission_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	if req.UserID == "" || req.OrganizationID == "" {
		errorResponse(w, http.StatusBadRequest, "user_id and organization_id are required", "")
		return
	}

	decision, err := h.resolver.Resolve(r.Context(), req.UserID, req.OrganizationID, req.PermissionKey)
	if err != nil {
		h.internalError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, decision)
}

// mutationError maps administration failures to distinguishable
// responses. These are not security-sensitive toward the acting admin.
func (h *Handlers) mutationError(w http.ResponseWriter, err error) {
	switch {
	case IsDuplicateRole(err):
		errorResponse(w, http.StatusConflict, err.Error(), "DUPLICATE_ROLE")
	case IsCrossTenantViolation(err):
		errorResponse(w, http.StatusUnprocessableEntity, err.Error(), "CROSS_TENANT_VIOLATION")
	case errors.Is(err, ErrNotFound):
		errorResponse(w, http.StatusNotFound, "not found", "")
	default:
		h.internalError(w, err)
	}
}

func (h *Handlers) internalError(w http.ResponseWriter, err error) {
	h.logger.WithError(err).Error("authz handler failed")
	errorResponse(w, http.StatusInternalServerError, "internal error", "")
}

func jsonResponse(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func errorResponse(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := map[string]string{"error": message}
	if code != "" {
		resp["code"] = code
	}
	json.NewEncoder(w).Encode(resp)
}
