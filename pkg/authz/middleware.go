package authz

import (
	"net/http"

	"github.com/opsdeck/opsdeck/pkg/contextkeys"
)

// PermissionMiddleware produces HTTP guards over the gate. Each guard
// extracts the principal the authentication middleware placed in the
// request context; the gate never authenticates credentials itself.
type PermissionMiddleware struct {
	gate *Gate
}

// NewPermissionMiddleware creates permission-guard middleware.
func NewPermissionMiddleware(gate *Gate) *PermissionMiddleware {
	return &PermissionMiddleware{gate: gate}
}

// RequirePermission guards a handler behind one permission key.
// Produced once per required key and applied to the request pipeline.
func (pm *PermissionMiddleware) RequirePermission(permissionKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromRequest(r)
			if principal == nil {
				unauthorizedResponse(w)
				return
			}

			if err := pm.gate.Authorize(r.Context(), *principal, permissionKey); err != nil {
				forbiddenResponse(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAnyPermission guards a handler behind a disjunction of
// acceptable permission keys.
func (pm *PermissionMiddleware) RequireAnyPermission(permissionKeys ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromRequest(r)
			if principal == nil {
				unauthorizedResponse(w)
				return
			}

			if err := pm.gate.AuthorizeAny(r.Context(), *principal, permissionKeys...); err != nil {
				forbiddenResponse(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalFromRequest extracts the authenticated principal from the
// request context, or nil when the request is unauthenticated.
func PrincipalFromRequest(r *http.Request) *Principal {
	v := r.Context().Value(contextkeys.PrincipalKey)
	if v == nil {
		return nil
	}
	principal, ok := v.(*Principal)
	if !ok {
		return nil
	}
	return principal
}

func unauthorizedResponse(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"authentication required"}`))
}

// forbiddenResponse is deliberately uniform across every denial
// reason so callers cannot enumerate roles or permissions by probing.
func forbiddenResponse(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	w.Write([]byte(`{"error":"forbidden"}`))
}
