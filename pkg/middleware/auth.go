package middleware

import (
	"errors"
	"net/http"

	"github.com/arborhq/arbor/pkg/auth"
	"github.com/arborhq/arbor/pkg/contextkeys"
)

// AuthMiddleware verifies bearer tokens and injects the caller identity
// into the request context.
type AuthMiddleware struct {
	tokens *auth.TokenService
	audit  *auth.AuditLogger
	// optional allows unauthenticated requests through without an
	// identity; handlers behind it must tolerate an empty user ID.
	optional bool
}

// NewAuthMiddleware creates an authentication middleware. A nil audit
// logger disables audit records.
func NewAuthMiddleware(tokens *auth.TokenService, audit *auth.AuditLogger, optional bool) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, audit: audit, optional: optional}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.FromAuthorizationHeader(r.Header.Get("Authorization"))
		if token == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			m.unauthorizedResponse(w, "missing authorization header")
			return
		}

		identity, err := m.tokens.Verify(token)
		if err != nil {
			if m.audit != nil {
				m.audit.LogAuth(r, "", err)
			}
			if errors.Is(err, auth.ErrTokenExpired) {
				m.unauthorizedResponse(w, "token expired")
				return
			}
			m.unauthorizedResponse(w, "invalid token")
			return
		}

		if m.audit != nil {
			m.audit.LogAuth(r, identity.UserID, nil)
		}

		ctx := contextkeys.WithIdentity(r.Context(), identity)
		ctx = contextkeys.WithUserID(ctx, identity.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) unauthorizedResponse(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + message + `"}`))
}

// GetIdentity extracts the verified caller identity from a request.
// Returns nil for unauthenticated requests.
func GetIdentity(r *http.Request) *auth.Identity {
	v := r.Context().Value(contextkeys.IdentityKey)
	if v == nil {
		return nil
	}
	identity, ok := v.(*auth.Identity)
	if !ok {
		return nil
	}
	return identity
}
