package middleware

import (
	"net/http"
	"time"

	"github.com/opsdeck/opsdeck/pkg/authz"
	"github.com/opsdeck/opsdeck/pkg/contextkeys"
)

// Identity headers set by the upstream authentication gateway. The
// gateway strips these from inbound traffic, so their presence is
// proof of authentication.
const (
	HeaderUserID          = "X-Opsdeck-User-Id"
	HeaderAuthenticatedAt = "X-Opsdeck-Authenticated-At"
)

// AuthMiddleware builds the request principal from the trusted
// identity headers.
type AuthMiddleware struct {
	optional bool // If true, allow requests without identity headers
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(optional bool) *AuthMiddleware {
	return &AuthMiddleware{
		optional: optional,
	}
}

// Handler wraps an HTTP handler with principal extraction
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(HeaderUserID)
		if userID == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			m.unauthorizedResponse(w, "missing identity header")
			return
		}

		principal := &authz.Principal{
			UserID:          userID,
			AuthenticatedAt: time.Now().UTC(),
		}
		if at := r.Header.Get(HeaderAuthenticatedAt); at != "" {
			parsed, err := time.Parse(time.RFC3339, at)
			if err != nil {
				m.unauthorizedResponse(w, "invalid authenticated-at header")
				return
			}
			principal.AuthenticatedAt = parsed
		}

		ctx := contextkeys.WithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) unauthorizedResponse(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + message + `"}`))
}

// GetPrincipal extracts the authenticated principal from the request
func GetPrincipal(r *http.Request) *authz.Principal {
	value := r.Context().Value(contextkeys.PrincipalKey)
	if value == nil {
		return nil
	}
	principal, ok := value.(*authz.Principal)
	if !ok {
		return nil
	}
	return principal
}
