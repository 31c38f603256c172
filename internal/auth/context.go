// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithPrincipal/FromContext for propagating auth info via context

package auth

import (
	"context"
	"time"
)

// Principal is the authenticated caller of one request.
type Principal struct {
	Subject   string
	ExpiresAt time.Time
}

type principalKey struct{}

// WithPrincipal returns a new context with p attached.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext retrieves the Principal from the context, returning nil if not present.
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

// SubjectFromContext returns the caller's subject, or "" for anonymous requests.
func SubjectFromContext(ctx context.Context) string {
	if p := FromContext(ctx); p != nil {
		return p.Subject
	}
	return ""
}
