// Package identity carries the tenant and API-key identity established by
// the caller's authentication layer through a context. Courier never
// authenticates requests itself; it only records who acted.
package identity

import "context"

type ctxKey int

const identityKey ctxKey = 0

// Identity is the authenticated caller attached to a request context.
type Identity struct {
	TenantID string
	APIKeyID string
}

// WithIdentity returns a context carrying the given identity.
func WithIdentity(ctx context.Context, ident Identity) context.Context {
	return context.WithValue(ctx, identityKey, ident)
}

// FromContext extracts the identity from the context.
// The zero Identity is returned when none was attached.
func FromContext(ctx context.Context) Identity {
	ident, _ := ctx.Value(identityKey).(Identity)
	return ident
}
