package tenant

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/AdityaSrivastav5/ems-plus-plus/internal/auth"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/telemetry"
)

// CredentialVerifier is the part of auth.Verifier the builder depends on.
type CredentialVerifier interface {
	Inspect(credential string) (*auth.Principal, error)
}

// Builder derives a Context from inbound request headers.
type Builder struct {
	verifier CredentialVerifier
	log      *zap.Logger
	metrics  *telemetry.AuthMetrics
}

// NewBuilder returns a Builder. log and metrics may be nil.
func NewBuilder(verifier CredentialVerifier, log *zap.Logger, metrics *telemetry.AuthMetrics) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{verifier: verifier, log: log, metrics: metrics}
}

// Build never fails: a missing or invalid credential yields an anonymous context.
func (b *Builder) Build(ctx context.Context, h http.Header) Context {
	authorization := h.Get(HeaderAuthorization)
	tc := Context{
		OrgID:         h.Get(HeaderOrgID),
		Authorization: authorization,
	}

	outcome := telemetry.AuthOutcomeAnonymous
	if credential := auth.ExtractBearer(authorization); credential != "" {
		principal, err := b.verifier.Inspect(credential)
		switch {
		case err == nil:
			tc.Principal = principal
			outcome = telemetry.AuthOutcomeVerified
		case errors.Is(err, auth.ErrNoCredential):
		default:
			outcome = telemetry.AuthOutcomeRejected
			b.log.Debug("credential rejected", zap.Error(err))
		}
	} else if authorization != "" {
		b.log.Debug("ignoring malformed authorization header")
	}

	b.metrics.RecordAuth(ctx, outcome)
	b.log.Debug("tenant context built",
		zap.String("auth", outcome),
		zap.String("user_id", tc.UserID()),
		zap.String("org_id", tc.OrgID),
	)
	return tc
}

// Middleware attaches the tenant context to every request. Handlers below it
// read the context via FromContext and never inspect identity headers.
func (b *Builder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc := b.Build(r.Context(), r.Header)
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), tc)))
	})
}
