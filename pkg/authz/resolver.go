package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opsdeck/opsdeck/pkg/observability"
)

// Resolver computes permission grants for (user, organization,
// permission key) triples. It is read-only and safe to call on every
// request; every resolution that begins after a mutation's commit
// observes the post-mutation state.
type Resolver struct {
	store   *Store
	cache   *DecisionCache
	metrics *observability.Metrics
	logger  *observability.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithDecisionCache enables the per-organization decision cache. The
// cache must be wired to the same Invalidator the Admin uses,
// otherwise mutations would not be observable on the next resolution.
func WithDecisionCache(cache *DecisionCache) ResolverOption {
	return func(r *Resolver) {
		r.cache = cache
	}
}

// WithResolverMetrics records decision counters and durations.
func WithResolverMetrics(m *observability.Metrics) ResolverOption {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// NewResolver creates a permission resolver over the entitlement store.
func NewResolver(store *Store, logger *observability.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:  store,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve decides whether userID holds permissionKey inside orgID.
//
// The super-admin bypass is checked first and short-circuits
// everything else: it is a global override, not an organization
// capability, and it never touches organization-scoped data. An
// unknown or empty permission key deterministically denies; absent
// keys are never accidentally granted.
//
// An error means the resolution could not complete. Callers must treat
// that as a deny, never as a grant.
func (r *Resolver) Resolve(ctx context.Context, userID, orgID, permissionKey string) (Decision, error) {
	start := time.Now()
	decision, err := r.resolve(ctx, userID, orgID, permissionKey)
	if err != nil {
		r.observe(Decision{Granted: false, Reason: ReasonResolutionFailed}, start)
		return Decision{Granted: false, Reason: ReasonResolutionFailed}, err
	}

	r.observe(decision, start)
	return decision, nil
}

func (r *Resolver) resolve(ctx context.Context, userID, orgID, permissionKey string) (Decision, error) {
	user, err := r.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// An unknown user cannot hold a membership anywhere.
			return Decision{Granted: false, Reason: ReasonNotAMember}, nil
		}
		return Decision{}, fmt.Errorf("failed to fetch user: %w", err)
	}

	if user.IsSuperAdmin {
		return Decision{Granted: true, Reason: ReasonSuperAdminBypass}, nil
	}

	var gen uint64
	if r.cache != nil {
		if d, ok := r.cache.Get(orgID, userID, permissionKey); ok {
			r.countCache(true)
			return d, nil
		}
		r.countCache(false)
		// Snapshot before the store read: an invalidation between the
		// read and the fill bumps the generation and the fill is
		// dropped, so a racing mutation cannot be shadowed by a
		// pre-mutation decision.
		gen = r.cache.Generation(orgID)
	}

	d, err := r.resolveMembership(ctx, userID, orgID, permissionKey)
	if err != nil {
		return Decision{}, err
	}

	if r.cache != nil {
		r.cache.Put(orgID, userID, permissionKey, d, gen)
	}
	return d, nil
}

func (r *Resolver) resolveMembership(ctx context.Context, userID, orgID, permissionKey string) (Decision, error) {
	membership, err := r.store.GetMembership(ctx, userID, orgID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Decision{Granted: false, Reason: ReasonNotAMember}, nil
		}
		return Decision{}, fmt.Errorf("failed to fetch membership: %w", err)
	}

	if !membership.IsActive {
		// Role assignments are retained on deactivation but must not
		// contribute to the grant computation.
		return Decision{Granted: false, Reason: ReasonNotAMember}, nil
	}

	roles, err := r.store.ListMembershipRoles(ctx, membership.ID, orgID)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to fetch membership roles: %w", err)
	}
	if len(roles) == 0 {
		return Decision{Granted: false, Reason: ReasonNoRoles}, nil
	}

	granted, err := r.store.MembershipHasPermission(ctx, membership.ID, orgID, permissionKey)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to check permission grant: %w", err)
	}
	if granted {
		return Decision{Granted: true, Reason: ReasonRoleGrant}, nil
	}
	return Decision{Granted: false, Reason: ReasonPermissionNotGranted}, nil
}

func (r *Resolver) observe(d Decision, start time.Time) {
	if r.metrics == nil {
		return
	}
	r.metrics.ObserveDecision(d.Granted, string(d.Reason), time.Since(start))
}

func (r *Resolver) countCache(hit bool) {
	if r.metrics == nil {
		return
	}
	r.metrics.CountDecisionCache(hit)
}
