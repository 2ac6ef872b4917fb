// Package auth provides the security context used while handling requests
// and the crumb (CSRF token) protection for state-changing endpoints.
package auth

import (
	"context"
	"errors"
)

// ErrForbidden is returned when an operation needs an identity the caller does not have
var ErrForbidden = errors.New("forbidden")

type contextKey string

const identityKey contextKey = "identity"

// Identity is the principal a request or task runs as
type Identity struct {
	Name   string
	System bool
}

// Anonymous is the identity of unauthenticated callers such as the webhook
var Anonymous = Identity{Name: "anonymous"}

// System is the identity used for internal work that must see every job
var System = Identity{Name: "SYSTEM", System: true}

// IsAnonymous reports whether the identity is the anonymous one
func (i Identity) IsAnonymous() bool {
	return !i.System && (i.Name == "" || i.Name == Anonymous.Name)
}

// WithIdentity returns a context carrying the identity
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the identity carried by ctx, or Anonymous
func IdentityFrom(ctx context.Context) Identity {
	if id, ok := ctx.Value(identityKey).(Identity); ok {
		return id
	}
	return Anonymous
}

// RequireIdentity fails with ErrForbidden for anonymous callers
func RequireIdentity(ctx context.Context) error {
	if IdentityFrom(ctx).IsAnonymous() {
		return ErrForbidden
	}
	return nil
}

// RunAsSystem runs fn with the System identity. The elevation is scoped to
// the context handed to fn; the caller's ctx keeps its identity whether fn
// returns, fails or panics.
func RunAsSystem(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(WithIdentity(ctx, System))
}
