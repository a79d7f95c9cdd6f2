package orgs

import (
	"context"
	"fmt"
	"strings"

	"github.com/opsdeck/opsdeck/pkg/audit"
	"github.com/opsdeck/opsdeck/pkg/authz"
	"github.com/opsdeck/opsdeck/pkg/observability"
)

// Service provides organization and membership lifecycle on top of the
// entitlement store. Organization creation materializes the default
// roles; membership changes invalidate the organization's cached
// decisions.
type Service struct {
	store       *authz.Store
	admin       *authz.Admin
	invalidator authz.Invalidator
	audit       audit.Logger
	logger      *observability.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithInvalidator purges cached decisions on membership changes.
func WithInvalidator(inv authz.Invalidator) ServiceOption {
	return func(s *Service) {
		s.invalidator = inv
	}
}

// WithAuditLogger records lifecycle events to the audit trail.
func WithAuditLogger(l audit.Logger) ServiceOption {
	return func(s *Service) {
		s.audit = l
	}
}

// NewService creates the organization lifecycle service.
func NewService(store *authz.Store, admin *authz.Admin, logger *observability.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		admin:  admin,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrganization creates an organization and materializes its
// default roles. The slug is derived from the name when not provided.
func (s *Service) CreateOrganization(ctx context.Context, input CreateOrganizationInput) (*authz.Organization, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("organization name is required")
	}

	slug := input.Slug
	if slug == "" {
		slug = generateSlug(input.Name)
	}

	org := &authz.Organization{
		Name: input.Name,
		Slug: slug,
	}
	if err := s.store.CreateOrganization(ctx, org); err != nil {
		return nil, err
	}

	if err := s.admin.EnsureDefaultRoles(ctx, org.ID); err != nil {
		return nil, fmt.Errorf("failed to ensure default roles: %w", err)
	}

	s.record(ctx, audit.EventTypeOrgCreate, org.ID, func(e *audit.Event) {
		e.Message = "organization " + slug + " created"
	})
	return org, nil
}

// GetOrganization retrieves an organization by ID.
func (s *Service) GetOrganization(ctx context.Context, orgID string) (*authz.Organization, error) {
	return s.store.GetOrganization(ctx, orgID)
}

// GetOrganizationBySlug retrieves an organization by slug.
func (s *Service) GetOrganizationBySlug(ctx context.Context, slug string) (*authz.Organization, error) {
	return s.store.GetOrganizationBySlug(ctx, slug)
}

// RegisterUser creates a global user identity.
func (s *Service) RegisterUser(ctx context.Context, email string, isSuperAdmin bool) (*authz.User, error) {
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}

	user := &authz.User{
		Email:        email,
		IsSuperAdmin: isSuperAdmin,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// AddMember joins a user into an organization with the default member
// role plus any requested additional roles. The user must exist; an
// unknown role key fails the whole operation and no membership is
// created. Role keys are resolved within the organization, so a key
// can never bind a role from another tenant.
func (s *Service) AddMember(ctx context.Context, orgID string, input AddMemberInput) (*authz.Membership, error) {
	if _, err := s.store.GetUser(ctx, input.UserID); err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if _, err := s.store.GetOrganization(ctx, orgID); err != nil {
		return nil, fmt.Errorf("failed to load organization: %w", err)
	}

	roleKeys := append([]string{authz.RoleKeyMember}, input.RoleKeys...)
	roleIDs := make([]string, 0, len(roleKeys))
	for _, key := range roleKeys {
		role, err := s.store.GetRoleByKey(ctx, orgID, key)
		if err != nil {
			return nil, fmt.Errorf("failed to load role %q: %w", key, err)
		}
		roleIDs = append(roleIDs, role.ID)
	}

	membership := &authz.Membership{
		UserID:         input.UserID,
		OrganizationID: orgID,
		IsActive:       true,
	}
	if err := s.store.CreateMembershipWithRoles(ctx, membership, roleIDs); err != nil {
		return nil, err
	}

	s.invalidate(ctx, orgID)
	s.record(ctx, audit.EventTypeMemberAdd, orgID, func(e *audit.Event) {
		e.UserID = input.UserID
		e.MembershipID = membership.ID
	})
	return membership, nil
}

// DeactivateMember suspends a membership. Role assignments are
// retained; derived access is revoked on the next resolution.
func (s *Service) DeactivateMember(ctx context.Context, orgID, userID string) error {
	return s.setMemberActive(ctx, orgID, userID, false, audit.EventTypeMemberDeactivate)
}

// ReactivateMember restores a suspended membership. Previously
// assigned roles grant again immediately.
func (s *Service) ReactivateMember(ctx context.Context, orgID, userID string) error {
	return s.setMemberActive(ctx, orgID, userID, true, audit.EventTypeMemberReactivate)
}

func (s *Service) setMemberActive(ctx context.Context, orgID, userID string, active bool, eventType audit.EventType) error {
	membership, err := s.store.GetMembership(ctx, userID, orgID)
	if err != nil {
		return fmt.Errorf("failed to load membership: %w", err)
	}
	if err := s.store.SetMembershipActive(ctx, membership.ID, active); err != nil {
		return err
	}

	s.invalidate(ctx, orgID)
	s.record(ctx, eventType, orgID, func(e *audit.Event) {
		e.UserID = userID
		e.MembershipID = membership.ID
	})
	return nil
}

// ListMembers returns the organization's memberships joined with user
// identities and attached roles.
func (s *Service) ListMembers(ctx context.Context, orgID string) ([]*Member, error) {
	memberships, err := s.store.ListMemberships(ctx, orgID)
	if err != nil {
		return nil, err
	}

	members := make([]*Member, 0, len(memberships))
	for _, m := range memberships {
		user, err := s.store.GetUser(ctx, m.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to load user %s: %w", m.UserID, err)
		}
		roles, err := s.store.ListMembershipRoles(ctx, m.ID, orgID)
		if err != nil {
			return nil, fmt.Errorf("failed to load roles for membership %s: %w", m.ID, err)
		}
		members = append(members, &Member{
			Membership: m,
			Email:      user.Email,
			Roles:      roles,
		})
	}
	return members, nil
}

func (s *Service) invalidate(ctx context.Context, orgID string) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx, orgID); err != nil {
		s.logger.WithError(err).WithField("organization_id", orgID).
			Error("failed to broadcast cache invalidation")
	}
}

func (s *Service) record(ctx context.Context, eventType audit.EventType, orgID string, fill func(*audit.Event)) {
	if s.audit == nil {
		return
	}
	event := audit.NewEvent(eventType, audit.StatusSuccess)
	event.OrganizationID = orgID
	if fill != nil {
		fill(event)
	}
	if err := s.audit.Log(ctx, event); err != nil {
		s.logger.WithError(err).Warn("failed to record audit event")
	}
}

func generateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	return strings.Trim(slug, "-")
}
