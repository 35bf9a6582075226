package auth

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/trainhub/trainhub-server/internal/storage"
)

// Identity is the resolved caller identity. A zero Identity is anonymous.
type Identity struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
	Role     string
}

// Anonymous reports whether no user was resolved.
func (i Identity) Anonymous() bool {
	return i.UserID == uuid.Nil
}

// HasTenant reports whether a tenant was resolved for the caller.
func (i Identity) HasTenant() bool {
	return i.TenantID != uuid.Nil
}

// Resolver turns a bearer credential into an Identity. Verification errors
// never surface: a malformed, expired or orphaned token degrades to
// anonymous, and protected operations fail later on the missing tenant.
type Resolver struct {
	jwt   *JWTManager
	store storage.Store
}

// NewResolver creates an identity resolver.
func NewResolver(jwt *JWTManager, store storage.Store) *Resolver {
	return &Resolver{jwt: jwt, store: store}
}

// Resolve extracts an Identity from an Authorization header value.
func (r *Resolver) Resolve(ctx context.Context, authHeader string) Identity {
	if authHeader == "" {
		return Identity{}
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return Identity{}
	}

	claims, err := r.jwt.ValidateToken(parts[1])
	if err != nil {
		return Identity{}
	}

	// One storage read confirms the user still exists and refreshes the
	// user-to-tenant mapping; the token's tenant claim is not trusted.
	user, err := r.store.GetUser(ctx, claims.UserID)
	if err != nil || user.Blocked {
		return Identity{}
	}

	return Identity{
		UserID:   user.ID,
		TenantID: user.TenantID,
		Role:     user.Role,
	}
}

type identityKey struct{}

// WithIdentity stores the identity in the context.
func WithIdentity(ctx context.Context, ident Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, ident)
}

// IdentityFrom extracts the identity from the context, anonymous if absent.
func IdentityFrom(ctx context.Context) Identity {
	ident, _ := ctx.Value(identityKey{}).(Identity)
	return ident
}
