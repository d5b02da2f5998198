package auth

import (
	"context"

	"github.com/google/uuid"
)

// PrincipalKind distinguishes the three caller classes of the API.
type PrincipalKind string

const (
	PrincipalAnonymous PrincipalKind = "anonymous"
	PrincipalWorker    PrincipalKind = "worker"
	PrincipalAdmin     PrincipalKind = "admin"
)

// Principal is the authenticated identity attached to a request.
// ClientID is set only for worker principals.
type Principal struct {
	Kind     PrincipalKind
	ClientID uuid.UUID
}

// IsAdmin reports whether the principal holds the admin credential.
func (p Principal) IsAdmin() bool {
	return p.Kind == PrincipalAdmin
}

// IsWorker reports whether the principal is a registered download client.
func (p Principal) IsWorker() bool {
	return p.Kind == PrincipalWorker
}

type contextKey struct{}

// WithPrincipal returns a context carrying the principal.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext extracts the request principal. Requests that never passed
// through the authentication middleware read as anonymous.
func FromContext(ctx context.Context) Principal {
	if p, ok := ctx.Value(contextKey{}).(Principal); ok {
		return p
	}
	return Principal{Kind: PrincipalAnonymous}
}
