package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType represents the category of audit event
type EventType string

const (
	// Enforcement events
	EventTypeAccessDenied EventType = "authz.access_denied"

	// Role administration events
	EventTypeRoleCreate          EventType = "admin.role_create"
	EventTypeRoleDelete          EventType = "admin.role_delete"
	EventTypePermissionAttach    EventType = "admin.permission_attach"
	EventTypePermissionDetach    EventType = "admin.permission_detach"
	EventTypeDefaultRolesEnsured EventType = "admin.default_roles_ensured"

	// Membership-role binding events
	EventTypeMembershipRoleAttach EventType = "admin.membership_role_attach"
	EventTypeMembershipRoleDetach EventType = "admin.membership_role_detach"

	// Organization lifecycle events
	EventTypeOrgCreate        EventType = "admin.org_create"
	EventTypeMemberAdd        EventType = "admin.member_add"
	EventTypeMemberDeactivate EventType = "admin.member_deactivate"
	EventTypeMemberReactivate EventType = "admin.member_reactivate"
)

// Status represents the outcome of an event
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusDenied  Status = "denied"
)

// Event represents a single audit log entry
type Event struct {
	// Core fields
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	EventType EventType `json:"event_type"`
	Status    Status    `json:"status"`

	// Actor and tenant information
	UserID         string `json:"user_id,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`

	// Authorization subject
	PermissionKey string `json:"permission_key,omitempty"`
	RoleID        string `json:"role_id,omitempty"`
	MembershipID  string `json:"membership_id,omitempty"`
	Reason        string `json:"reason,omitempty"`

	// Additional details
	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// NewEvent creates an event with the core fields populated.
func NewEvent(eventType EventType, status Status) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
	}
}

// ToJSON converts the audit event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an audit event from JSON
func FromJSON(data []byte) (*Event, error) {
	var event Event
	err := json.Unmarshal(data, &event)
	return &event, err
}

// SearchFilter represents filters for searching audit logs
type SearchFilter struct {
	// Time range
	StartTime *time.Time
	EndTime   *time.Time

	// Actor and tenant filters
	UserID         string
	OrganizationID string

	// Event filters
	EventTypes []EventType
	Status     *Status

	// Pagination; Limit defaults to 100 when zero
	Limit  int
	Offset int
}

// RetentionPolicy defines how long audit logs should be kept
type RetentionPolicy struct {
	// RetentionDays is the number of days to keep audit logs
	RetentionDays int

	// SweepInterval is the cron expression for the retention sweep
	SweepInterval string
}

// DefaultRetentionPolicy returns a default retention policy (90 days,
// swept nightly).
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		RetentionDays: 90,
		SweepInterval: "0 3 * * *",
	}
}
