package orgs

import (
	"github.com/opsdeck/opsdeck/pkg/authz"
)

// Member is an organization membership joined with the user's identity
// and attached roles, as returned by ListMembers.
type Member struct {
	Membership authz.Membership `json:"membership"`
	Email      string           `json:"email"`
	Roles      []authz.Role     `json:"roles"`
}

// CreateOrganizationInput carries the fields for a new organization.
// Slug is derived from Name when empty.
type CreateOrganizationInput struct {
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}

// AddMemberInput carries the fields for joining a user into an
// organization. RoleKeys lists roles to attach beyond the default
// member role; unknown keys fail the whole operation.
type AddMemberInput struct {
	UserID   string   `json:"user_id"`
	RoleKeys []string `json:"role_keys,omitempty"`
}
