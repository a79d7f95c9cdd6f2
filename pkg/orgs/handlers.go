package orgs

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/opsdeck/opsdeck/pkg/authz"
	"github.com/opsdeck/opsdeck/pkg/observability"
)

// Handlers provides the HTTP surface for organization and membership
// lifecycle.
type Handlers struct {
	service *Service
	logger  *observability.Logger
}

// NewHandlers creates the orgs handlers.
func NewHandlers(service *Service, logger *observability.Logger) *Handlers {
	return &Handlers{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the unguarded lifecycle routes: creating
// organizations and registering users happens before any membership
// exists to authorize against.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/orgs", h.CreateOrganization).Methods("POST")
	router.HandleFunc("/orgs/{org_id}", h.GetOrganization).Methods("GET")
	router.HandleFunc("/users", h.RegisterUser).Methods("POST")
}

// RegisterMemberRoutes registers membership management on a subrouter
// mounted at .../orgs/{org_id}/members, typically behind a guard
// requiring the member-management permission.
func (h *Handlers) RegisterMemberRoutes(router *mux.Router) {
	router.HandleFunc("", h.AddMember).Methods("POST")
	router.HandleFunc("", h.ListMembers).Methods("GET")
	router.HandleFunc("/{user_id}/deactivate", h.DeactivateMember).Methods("POST")
	router.HandleFunc("/{user_id}/reactivate", h.ReactivateMember).Methods("POST")
}

// CreateOrganization creates an organization with its default roles.
func (h *Handlers) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	var input CreateOrganizationInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if input.Name == "" {
		errorResponse(w, http.StatusBadRequest, "name is required")
		return
	}

	org, err := h.service.CreateOrganization(r.Context(), input)
	if err != nil {
		h.serviceError(w, err)
		return
	}

	jsonResponse(w, http.StatusCreated, org)
}

// GetOrganization returns one organization.
func (h *Handlers) GetOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := h.service.GetOrganization(r.Context(), mux.Vars(r)["org_id"])
	if err != nil {
		h.serviceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, org)
}

// RegisterUser creates a global user identity.
func (h *Handlers) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email        string `json:"email"`
		IsSuperAdmin bool   `json:"is_super_admin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" {
		errorResponse(w, http.StatusBadRequest, "email is required")
		return
	}

	user, err := h.service.RegisterUser(r.Context(), req.Email, req.IsSuperAdmin)
	if err != nil {
		h.serviceError(w, err)
		return
	}

	jsonResponse(w, http.StatusCreated, user)
}

// AddMember joins a user into the organization.
func (h *Handlers) AddMember(w http.ResponseWriter, r *http.Request) {
	var input AddMemberInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if input.UserID == "" {
		errorResponse(w, http.StatusBadRequest, "user_id is required")
		return
	}

	membership, err := h.service.AddMember(r.Context(), mux.Vars(r)["org_id"], input)
	if err != nil {
		h.serviceError(w, err)
		return
	}

	jsonResponse(w, http.StatusCreated, membership)
}

// ListMembers returns the organization's members with their roles.
func (h *Handlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.service.ListMembers(r.Context(), mux.Vars(r)["org_id"])
	if err != nil {
		h.serviceError(w, err)
		return
	}
	if members == nil {
		members = []*Member{}
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{"members": members})
}

// DeactivateMember suspends a membership.
func (h *Handlers) DeactivateMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.service.DeactivateMember(r.Context(), vars["org_id"], vars["user_id"]); err != nil {
		h.serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReactivateMember restores a suspended membership.
func (h *Handlers) ReactivateMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.service.ReactivateMember(r.Context(), vars["org_id"], vars["user_id"]); err != nil {
		h.serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) serviceError(w http.ResponseWriter, err error) {
	if errors.Is(err, authz.ErrNotFound) {
		errorResponse(w, http.StatusNotFound, "not found")
		return
	}
	h.logger.WithError(err).Error("orgs handler failed")
	errorResponse(w, http.StatusInternalServerError, "internal error")
}

func jsonResponse(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
