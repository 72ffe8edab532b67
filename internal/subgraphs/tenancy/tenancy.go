// Package tenancy reads the identity headers set by the gateway. Subgraphs
// trust x-user-id and x-org-id and never look at the bearer token themselves.
package tenancy

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/AdityaSrivastav5/ems-plus-plus/internal/tenant"
)

var (
	// ErrUnauthenticated is returned when the request carries no user id.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrNoOrg is returned when an org-scoped operation has no x-org-id.
	ErrNoOrg = errors.New("organization required: send the x-org-id header")
)

// Identity is what the gateway asserted about the caller.
type Identity struct {
	UserID string
	OrgID  string
}

type identityKey struct{}

// Middleware attaches the Identity carried by the request headers.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := Identity{
			UserID: strings.TrimSpace(r.Header.Get(tenant.HeaderUserID)),
			OrgID:  strings.TrimSpace(r.Header.Get(tenant.HeaderOrgID)),
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// WithIdentity stores id on ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the caller identity; the zero value means anonymous.
func FromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey{}).(Identity)
	return id
}

// RequireUser fails with ErrUnauthenticated for anonymous callers.
func RequireUser(ctx context.Context) (Identity, error) {
	id := FromContext(ctx)
	if id.UserID == "" {
		return id, ErrUnauthenticated
	}
	return id, nil
}

// RequireOrg requires both a user and an organization.
func RequireOrg(ctx context.Context) (Identity, error) {
	id, err := RequireUser(ctx)
	if err != nil {
		return id, err
	}
	if id.OrgID == "" {
		return id, ErrNoOrg
	}
	return id, nil
}
