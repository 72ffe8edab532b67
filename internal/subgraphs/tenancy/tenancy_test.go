package tenancy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    Identity
	}{
		{"anonymous", nil, Identity{}},
		{"empty values", map[string]string{"X-User-Id": "", "X-Org-Id": ""}, Identity{}},
		{"user and org", map[string]string{"X-User-Id": "42", "X-Org-Id": "org-1"}, Identity{UserID: "42", OrgID: "org-1"}},
		{"trims whitespace", map[string]string{"X-User-Id": " 42 "}, Identity{UserID: "42"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Identity
			h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = FromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodPost, "/graphql", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequire(t *testing.T) {
	anon := context.Background()
	userOnly := WithIdentity(anon, Identity{UserID: "42"})
	full := WithIdentity(anon, Identity{UserID: "42", OrgID: "org-1"})

	_, err := RequireUser(anon)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	id, err := RequireUser(userOnly)
	require.NoError(t, err)
	assert.Equal(t, "42", id.UserID)

	_, err = RequireOrg(anon)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = RequireOrg(userOnly)
	assert.ErrorIs(t, err, ErrNoOrg)

	id, err = RequireOrg(full)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "42", OrgID: "org-1"}, id)
}
