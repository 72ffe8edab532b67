package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"go.uber.org/zap/zaptest"

	"github.com/AdityaSrivastav5/ems-plus-plus/internal/auth"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/config"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/gateway"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/schema"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/subgraphs"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/subgraphs/store"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/subgraphs/tenancy"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/tenant"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/testutil"
)

var e2eAuth = config.AuthConfig{JWTSecret: "e2e-secret"}

func e2eStartup() config.StartupConfig {
	return config.StartupConfig{
		Timeout:        2 * time.Second,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
	}
}

type stack struct {
	gateway    *httptest.Server
	employeeDB *bun.DB
	cfg        *config.Config
}

// startSubgraph serves one reference subgraph over its own in-memory database.
func startSubgraph(t *testing.T, name string) (string, *bun.DB) {
	t.Helper()
	db, err := store.OpenMigrated(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(db) })

	h, err := subgraphs.Build(name, db, e2eAuth, zaptest.NewLogger(t))
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv.URL + "/graphql", db
}

func newStack(t *testing.T) *stack {
	t.Helper()
	authURL, _ := startSubgraph(t, subgraphs.Auth)
	employeeURL, employeeDB := startSubgraph(t, subgraphs.Employee)
	attendanceURL, _ := startSubgraph(t, subgraphs.Attendance)

	cfg := &config.Config{
		Subgraphs: []config.SubgraphConfig{
			{Name: subgraphs.Auth, URL: authURL},
			{Name: subgraphs.Employee, URL: employeeURL},
			{Name: subgraphs.Attendance, URL: attendanceURL},
		},
		Auth:            e2eAuth,
		Startup:         e2eStartup(),
		Dispatch:        config.DispatchConfig{Timeout: 2 * time.Second},
		MaxRequestBytes: 1 << 20,
	}

	log := zaptest.NewLogger(t)
	engine, err := gateway.Bootstrap(context.Background(), cfg, gateway.Dependencies{Logger: log})
	require.NoError(t, err)

	verifier, err := auth.NewVerifier(cfg.Auth)
	require.NoError(t, err)

	gw := httptest.NewServer(NewRouter(Options{
		Engine:  engine,
		Tenants: tenant.NewBuilder(verifier, log, nil),
		Config:  cfg,
		Logger:  log,
	}))
	t.Cleanup(gw.Close)

	return &stack{gateway: gw, employeeDB: employeeDB, cfg: cfg}
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	issuer, err := auth.NewIssuer(e2eAuth)
	require.NoError(t, err)
	token, err := issuer.Issue(auth.Principal{SubjectID: userID})
	require.NoError(t, err)
	return token
}

type gqlResult struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []struct {
		Message    string         `json:"message"`
		Path       []any          `json:"path"`
		Extensions map[string]any `json:"extensions"`
	} `json:"errors"`
}

func post(t *testing.T, url string, headers map[string]string, query string, vars map[string]any) (int, gqlResult) {
	t.Helper()
	body, err := json.Marshal(map[string]any{"query": query, "variables": vars})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, url+"/graphql", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out gqlResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func seedEmployee(t *testing.T, db *bun.DB, org, name, email string) {
	t.Helper()
	_, err := db.NewInsert().Model(&store.Employee{
		ID:        store.NewID(),
		OrgID:     org,
		Name:      name,
		Email:     email,
		CreatedBy: "seed",
		CreatedAt: time.Now().UTC(),
	}).Exec(context.Background())
	require.NoError(t, err)
}

// Scenario 1: a verified caller only sees employees of the org it names.
func TestE2E_VerifiedCallerSeesOwnOrg(t *testing.T) {
	s := newStack(t)
	seedEmployee(t, s.employeeDB, "org-1", "Ada", "ada@example.com")
	seedEmployee(t, s.employeeDB, "org-2", "Linus", "linus@example.com")

	status, out := post(t, s.gateway.URL, map[string]string{
		"Authorization": "Bearer " + tokenFor(t, "42"),
		"X-Org-Id":      "org-1",
	}, `{ employees { name orgId } }`, nil)

	assert.Equal(t, http.StatusOK, status)
	require.Empty(t, out.Errors)
	assert.JSONEq(t, `[{"name": "Ada", "orgId": "org-1"}]`, string(out.Data["employees"]))
}

// The identity a subgraph sees is the verified one, never a client header.
func TestE2E_ClientUserIDIsNeverForwarded(t *testing.T) {
	s := newStack(t)

	_, out := post(t, s.gateway.URL, map[string]string{
		"Authorization": "Bearer " + tokenFor(t, "42"),
		"X-Org-Id":      "org-1",
		"X-User-Id":     "999",
	}, `mutation { createEmployee(name: "Grace", email: "grace@example.com") { id } }`, nil)
	require.Empty(t, out.Errors)

	var e store.Employee
	require.NoError(t, s.employeeDB.NewSelect().Model(&e).Where("email = ?", "grace@example.com").Scan(context.Background()))
	assert.Equal(t, "42", e.CreatedBy)

	// A spoofed id without a token is dropped as well.
	_, out = post(t, s.gateway.URL, map[string]string{
		"X-Org-Id":  "org-1",
		"X-User-Id": "42",
	}, `mutation { createEmployee(name: "Eve", email: "eve@example.com") { id } }`, nil)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, tenancy.ErrUnauthenticated.Error(), out.Errors[0].Message)
}

// Scenario 2: anonymous mutation errors come back from the subgraph untouched.
func TestE2E_AnonymousMutationError(t *testing.T) {
	s := newStack(t)

	for _, authz := range []string{"", "Bearer not-a-jwt", "Basic Zm9vOmJhcg==", "Bearer"} {
		headers := map[string]string{"X-Org-Id": "org-1"}
		if authz != "" {
			headers["Authorization"] = authz
		}

		status, out := post(t, s.gateway.URL, headers,
			`mutation { createEmployee(name: "Ada", email: "ada@example.com") { id } }`, nil)

		assert.Equal(t, http.StatusOK, status, authz)
		require.Len(t, out.Errors, 1, authz)
		assert.Equal(t, tenancy.ErrUnauthenticated.Error(), out.Errors[0].Message)
		assert.Equal(t, []any{"createEmployee"}, out.Errors[0].Path)
		assert.Equal(t, "null", string(out.Data["createEmployee"]))
	}
}

// Register through the gateway, then use the issued token.
func TestE2E_RegisterThenQuery(t *testing.T) {
	s := newStack(t)

	_, out := post(t, s.gateway.URL, nil, `
mutation ($email: String!, $password: String!) {
  register(email: $email, password: $password, name: "Ada") { token user { id } }
}`, map[string]any{"email": "ada@example.com", "password": "s3cret"})
	require.Empty(t, out.Errors)

	var reg struct {
		Token string
		User  struct{ ID string }
	}
	require.NoError(t, json.Unmarshal(out.Data["register"], &reg))

	_, out = post(t, s.gateway.URL, map[string]string{
		"Authorization": "Bearer " + reg.Token,
		"X-Org-Id":      "org-1",
	}, `{ me { id email } employees { id } }`, nil)
	require.Empty(t, out.Errors)
	assert.JSONEq(t, `{"id": "`+reg.User.ID+`", "email": "ada@example.com"}`, string(out.Data["me"]))
	assert.JSONEq(t, `[]`, string(out.Data["employees"]))
}

// Duplicate daily check-in is a domain error passed through by the gateway.
func TestE2E_DuplicateCheckIn(t *testing.T) {
	s := newStack(t)
	headers := map[string]string{
		"Authorization": "Bearer " + tokenFor(t, "42"),
		"X-Org-Id":      "org-1",
	}
	mutation := `mutation { checkIn(employeeId: "e1") { status } }`

	_, out := post(t, s.gateway.URL, headers, mutation, nil)
	require.Empty(t, out.Errors)

	_, out = post(t, s.gateway.URL, headers, mutation, nil)
	require.Len(t, out.Errors, 1)
	assert.Contains(t, out.Errors[0].Message, "already checked in")
}

// Scenario 3: a dead subgraph keeps the gateway from starting.
func TestE2E_DeadSubgraphFailsStartup(t *testing.T) {
	authURL, _ := startSubgraph(t, subgraphs.Auth)
	cfg := &config.Config{
		Subgraphs: []config.SubgraphConfig{
			{Name: subgraphs.Auth, URL: authURL},
			{Name: subgraphs.Attendance, URL: testutil.UnreachableURL(t)},
		},
		Startup: e2eStartup(),
	}
	cfg.Startup.Timeout = 300 * time.Millisecond

	engine, err := gateway.Bootstrap(context.Background(), cfg, gateway.Dependencies{Logger: zaptest.NewLogger(t)})
	require.Error(t, err)
	assert.Nil(t, engine)

	var failure *schema.CompositionFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, subgraphs.Attendance, failure.Subgraph)
}

type conflictingResolver struct{}

func (conflictingResolver) Employee() *string { return nil }

// Scenario 4: incompatible root fields fail composition naming both subgraphs.
func TestE2E_RootFieldConflictFailsStartup(t *testing.T) {
	employeeURL, _ := startSubgraph(t, subgraphs.Employee)
	directory := testutil.NewSubgraph(t, `type Query { employee: String }`, &conflictingResolver{})

	cfg := &config.Config{
		Subgraphs: []config.SubgraphConfig{
			{Name: subgraphs.Employee, URL: employeeURL},
			{Name: "directory", URL: directory.URL},
		},
		Startup: e2eStartup(),
	}

	_, err := gateway.Bootstrap(context.Background(), cfg, gateway.Dependencies{Logger: zaptest.NewLogger(t)})
	require.Error(t, err)

	var conflict *schema.CompositionConflict
	require.True(t, errors.As(err, &conflict))
	require.Len(t, conflict.Conflicts, 1)
	assert.Equal(t, "Query.employee", conflict.Conflicts[0].Coordinate)
	assert.Equal(t, []string{subgraphs.Employee, "directory"}, conflict.Conflicts[0].Subgraphs)
}
