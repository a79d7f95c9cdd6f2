package authz

import (
	"context"

	"github.com/opsdeck/opsdeck/pkg/audit"
	"github.com/opsdeck/opsdeck/pkg/observability"
)

// Gate is the request-time enforcement point. It wraps the resolver,
// handles the missing-organization edge, and turns every non-grant
// into a uniform denial. When the resolver cannot complete, the gate
// fails closed: an inability to prove a grant is never a grant.
type Gate struct {
	resolver *Resolver
	audit    audit.Logger
	logger   *observability.Logger
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithAuditLogger records denials to the audit trail.
func WithAuditLogger(l audit.Logger) GateOption {
	return func(g *Gate) {
		g.audit = l
	}
}

// NewGate creates an authorization gate over the resolver.
func NewGate(resolver *Resolver, logger *observability.Logger, opts ...GateOption) *Gate {
	g := &Gate{
		resolver: resolver,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorize returns nil when the principal holds the permission inside
// its organization, or a *DeniedError otherwise. The denial's reason
// is for internal observability only; callers surface a uniform
// forbidden outcome.
func (g *Gate) Authorize(ctx context.Context, p Principal, permissionKey string) error {
	if p.OrganizationID == "" {
		return g.deny(ctx, p, permissionKey, ReasonNoOrgContext, nil)
	}

	decision, err := g.resolver.Resolve(ctx, p.UserID, p.OrganizationID, permissionKey)
	if err != nil {
		return g.deny(ctx, p, permissionKey, ReasonResolutionFailed, err)
	}
	if !decision.Granted {
		return g.deny(ctx, p, permissionKey, decision.Reason, nil)
	}
	return nil
}

// AuthorizeAny returns nil when the principal holds at least one of
// the permission keys.
func (g *Gate) AuthorizeAny(ctx context.Context, p Principal, permissionKeys ...string) error {
	if p.OrganizationID == "" {
		return g.deny(ctx, p, "", ReasonNoOrgContext, nil)
	}

	reason := ReasonPermissionNotGranted
	for _, key := range permissionKeys {
		decision, err := g.resolver.Resolve(ctx, p.UserID, p.OrganizationID, key)
		if err != nil {
			return g.deny(ctx, p, key, ReasonResolutionFailed, err)
		}
		if decision.Granted {
			return nil
		}
		reason = decision.Reason
	}
	return g.deny(ctx, p, "", reason, nil)
}

func (g *Gate) deny(ctx context.Context, p Principal, permissionKey string, reason Reason, cause error) error {
	log := g.logger.WithFields(map[string]interface{}{
		"user_id":         p.UserID,
		"organization_id": p.OrganizationID,
		"permission_key":  permissionKey,
		"reason":          string(reason),
	})
	if cause != nil {
		log.WithError(cause).Error("authorization failed closed")
	} else {
		log.Info("access denied")
	}

	if g.audit != nil {
		event := audit.NewEvent(audit.EventTypeAccessDenied, audit.StatusDenied)
		event.UserID = p.UserID
		event.OrganizationID = p.OrganizationID
		event.PermissionKey = permissionKey
		event.Reason = string(reason)
		if cause != nil {
			event.ErrorMessage = cause.Error()
		}
		if err := g.audit.Log(ctx, event); err != nil {
			g.logger.WithError(err).Warn("failed to record denial audit event")
		}
	}

	return &DeniedError{Reason: reason}
}
