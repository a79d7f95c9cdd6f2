package audit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/opsdeck/opsdeck/pkg/observability"
)

// Handlers exposes the audit trail over HTTP. Mount behind a guard
// that requires an administrative permission; events cross tenant
// boundaries only for super admins, so the org_id filter is forced
// from the route.
type Handlers struct {
	db     *DBLogger
	logger *observability.Logger
}

// NewHandlers creates the audit HTTP surface
func NewHandlers(db *DBLogger, logger *observability.Logger) *Handlers {
	return &Handlers{db: db, logger: logger}
}

// RegisterRoutes registers the audit routes. Paths are relative so the
// surface mounts under a guarded subrouter (typically /api/v1/audit).
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/organizations/{org_id}/events", h.ListEvents).Methods(http.MethodGet)
}

// ListEvents returns the organization's audit events, newest first.
// Supported query parameters: event_type, status, user_id, start, end
// (RFC 3339), limit, offset.
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	filter := SearchFilter{
		OrganizationID: vars["org_id"],
		UserID:         r.URL.Query().Get("user_id"),
	}

	if eventType := r.URL.Query().Get("event_type"); eventType != "" {
		filter.EventTypes = []EventType{EventType(eventType)}
	}
	if status := r.URL.Query().Get("status"); status != "" {
		s := Status(status)
		filter.Status = &s
	}
	if start := r.URL.Query().Get("start"); start != "" {
		ts, err := time.Parse(time.RFC3339, start)
		if err != nil {
			http.Error(w, "invalid start time", http.StatusBadRequest)
			return
		}
		filter.StartTime = &ts
	}
	if end := r.URL.Query().Get("end"); end != "" {
		ts, err := time.Parse(time.RFC3339, end)
		if err != nil {
			http.Error(w, "invalid end time", http.StatusBadRequest)
			return
		}
		filter.EndTime = &ts
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil || n < 0 {
			http.Error(w, "invalid offset", http.StatusBadRequest)
			return
		}
		filter.Offset = n
	}

	events, err := h.db.Search(r.Context(), filter)
	if err != nil {
		h.logger.WithError(err).Error("audit search failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []*Event{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"events": events,
	})
}
