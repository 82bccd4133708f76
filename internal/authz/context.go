package authz

import (
	"context"
	"net/http"

	"github.com/ctfhub/team-api/internal/auth"
)

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity stores the verified caller identity on the context.
func WithIdentity(ctx context.Context, identity auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext extracts the caller identity, if any.
func IdentityFromContext(ctx context.Context) (auth.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(auth.Identity)
	if !ok || identity.UserID == "" {
		return auth.Identity{}, false
	}
	return identity, true
}

// IdentityFromRequest is a convenience wrapper for handlers.
func IdentityFromRequest(r *http.Request) (auth.Identity, bool) {
	return IdentityFromContext(r.Context())
}
