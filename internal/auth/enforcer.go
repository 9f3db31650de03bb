package auth

import (
	"context"

	"tempora.dev/internal/obs"
)

// Enforcer authorizes a caller against a declared (resource, action)
// requirement. Denials are counted; the HTTP boundary additionally records
// an audit event with the caller identity.
type Enforcer struct {
	registry *Registry
}

// NewEnforcer wraps a registry.
func NewEnforcer(registry *Registry) *Enforcer {
	return &Enforcer{registry: registry}
}

// Require returns nil when the principal in ctx holds the grant, and
// ErrPermissionDenied otherwise. Missing principal is a denial, not an error
// of a different class.
func (e *Enforcer) Require(ctx context.Context, resource, action string) error {
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		obs.PermissionDenials.WithLabelValues(resource, action).Inc()
		return ErrPermissionDenied
	}
	if !e.registry.Allowed(principal.User.RoleID, resource, action) {
		obs.PermissionDenials.WithLabelValues(resource, action).Inc()
		return ErrPermissionDenied
	}
	return nil
}
