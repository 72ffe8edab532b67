package tenant

import (
	"context"
	"net/http"

	"github.com/AdityaSrivastav5/ems-plus-plus/internal/auth"
)

// Header names understood by the gateway and its subgraphs.
const (
	HeaderAuthorization = "Authorization"
	HeaderOrgID         = "X-Org-Id"
	HeaderUserID        = "X-User-Id"
)

// Context is the per-request security and tenancy context.
//
// It is built once at the HTTP boundary and never mutated. OrgID is taken from
// the x-org-id header verbatim; membership is enforced by subgraphs.
type Context struct {
	// Principal is nil for anonymous callers.
	Principal *auth.Principal
	// OrgID is "" when the caller sent no x-org-id header.
	OrgID string
	// Authorization is the raw inbound Authorization header, forwarded as is.
	Authorization string
}

// Anonymous reports whether the request carried no verified identity.
func (c Context) Anonymous() bool {
	return c.Principal == nil
}

// UserID returns the verified subject id, or "" for anonymous callers.
func (c Context) UserID() string {
	if c.Principal == nil {
		return ""
	}
	return c.Principal.SubjectID
}

// Forward returns the exact header set sent to every subgraph: Authorization and
// X-Org-Id pass through (empty when absent) and X-User-Id is derived from the
// verified principal. A client supplied X-User-Id is never forwarded.
func (c Context) Forward() http.Header {
	h := make(http.Header, 3)
	h.Set(HeaderAuthorization, c.Authorization)
	h.Set(HeaderOrgID, c.OrgID)
	h.Set(HeaderUserID, c.UserID())
	return h
}

type contextKey struct{}

// WithContext stores tc on ctx.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, contextKey{}, tc)
}

// FromContext retrieves the tenant context from ctx. The zero Context
// (anonymous, no org) is returned when none was attached.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(contextKey{}).(Context)
	return tc, ok
}
