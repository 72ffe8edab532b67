package schema

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"
	"go.uber.org/zap/zaptest"

	"github.com/AdityaSrivastav5/ems-plus-plus/internal/config"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/testutil"
)

const authSDL = `
type Query {
  me: User
}

type Mutation {
  login(email: String!, password: String!): AuthPayload!
}

type User {
  id: ID!
  email: String!
}

type AuthPayload {
  token: String!
  user: User!
}
`

type fakeUser struct {
	ID    graphql.ID
	Email string
}

type fakePayload struct {
	Token string
	User  *fakeUser
}

type authResolver struct{}

func (authResolver) Me() *fakeUser { return nil }

func (authResolver) Login(args struct{ Email, Password string }) *fakePayload {
	return &fakePayload{Token: "t", User: &fakeUser{ID: "u1", Email: args.Email}}
}

const employeeSDL = `
schema {
  query: EmployeeQuery
  mutation: EmployeeMutation
}

type EmployeeQuery {
  employees: [Employee!]!
  employee(id: ID!): Employee
}

type EmployeeMutation {
  createEmployee(input: NewEmployee!): Employee!
}

type Employee {
  id: ID!
  name: String!
  role: Role!
  department: String @deprecated(reason: "use team")
  team: String
}

enum Role {
  ADMIN
  MANAGER
  EMPLOYEE
}

input NewEmployee {
  name: String!
  role: Role = EMPLOYEE
}
`

type fakeEmployee struct {
	ID         graphql.ID
	Name       string
	Role       string
	Department *string
	Team       *string
}

type newEmployeeInput struct {
	Name string
	Role *string
}

type employeeResolver struct{}

func (employeeResolver) Employees() []*fakeEmployee { return nil }

func (employeeResolver) Employee(args struct{ ID graphql.ID }) *fakeEmployee { return nil }

func (employeeResolver) CreateEmployee(args struct{ Input newEmployeeInput }) *fakeEmployee {
	return &fakeEmployee{ID: "e1", Name: args.Input.Name, Role: "EMPLOYEE"}
}

func testStartup() config.StartupConfig {
	return config.StartupConfig{
		Timeout:        2 * time.Second,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
	}
}

func TestLoadAll_IntrospectsSubgraphs(t *testing.T) {
	auth := testutil.NewSubgraph(t, authSDL, &authResolver{})
	emp := testutil.NewSubgraph(t, employeeSDL, &employeeResolver{})

	l := NewLoader(nil, testStartup(), zaptest.NewLogger(t), nil)
	loaded, err := l.LoadAll(context.Background(), []Descriptor{
		{Name: "auth", URL: auth.URL},
		{Name: "employee", URL: emp.URL},
	})
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	assert.Equal(t, "auth", loaded[0].Descriptor.Name)
	assert.Equal(t, RootTypes{Query: "Query", Mutation: "Mutation"}, loaded[0].Roots)
	assert.NotNil(t, loaded[0].Forward)

	assert.Equal(t, "employee", loaded[1].Descriptor.Name)
	assert.Equal(t, RootTypes{Query: "EmployeeQuery", Mutation: "EmployeeMutation"}, loaded[1].Roots)

	doc := loaded[1].Document
	for _, def := range doc.Definitions {
		assert.False(t, IsBuiltinType(def.Name), "builtin %s leaked into document", def.Name)
	}

	employee := doc.Definitions.ForName("Employee")
	require.NotNil(t, employee)
	dept := employee.Fields.ForName("department")
	require.NotNil(t, dept)
	dep := dept.Directives.ForName("deprecated")
	require.NotNil(t, dep)
	assert.Equal(t, "use team", dep.Arguments.ForName("reason").Value.Raw)

	input := doc.Definitions.ForName("NewEmployee")
	require.NotNil(t, input)
	assert.Equal(t, ast.InputObject, input.Kind)
	assert.Equal(t, "EMPLOYEE", input.Fields.ForName("role").DefaultValue.String())

	role := doc.Definitions.ForName("Role")
	require.NotNil(t, role)
	assert.Len(t, role.EnumValues, 3)

	for _, dir := range doc.Directives {
		assert.NotEqual(t, "deprecated", dir.Name)
		assert.NotEqual(t, "skip", dir.Name)
	}
}

func TestLoadAll_UnreachableFailsDeterministically(t *testing.T) {
	auth := testutil.NewSubgraph(t, authSDL, &authResolver{})
	dead := testutil.UnreachableURL(t)

	startup := testStartup()
	startup.Timeout = 200 * time.Millisecond
	l := NewLoader(nil, startup, zaptest.NewLogger(t), nil)

	descriptors := []Descriptor{
		{Name: "auth", URL: auth.URL},
		{Name: "attendance", URL: dead},
	}

	for i := 0; i < 2; i++ {
		loaded, err := l.LoadAll(context.Background(), descriptors)
		require.Error(t, err)
		assert.Nil(t, loaded)

		var failure *CompositionFailure
		require.True(t, errors.As(err, &failure))
		assert.Equal(t, "attendance", failure.Subgraph)
		assert.ErrorIs(t, err, ErrSubgraphUnreachable)
	}
}

func TestLoad_RetriesUntilReady(t *testing.T) {
	schema := graphql.MustParseSchema(authSDL, &authResolver{}, graphql.UseFieldResolvers())
	handler := &relay.Handler{Schema: schema}

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, "starting", http.StatusServiceUnavailable)
			return
		}
		handler.ServeHTTP(w, r)
	}))
	defer srv.Close()

	l := NewLoader(srv.Client(), testStartup(), zaptest.NewLogger(t), nil)
	loaded, err := l.Load(context.Background(), Descriptor{Name: "auth", URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "Query", loaded.Roots.Query)
	assert.Equal(t, int32(3), calls.Load())
}

func TestLoad_InvalidIntrospectionIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"errors":[{"message":"introspection disabled"}]}`))
	}))
	defer srv.Close()

	l := NewLoader(srv.Client(), testStartup(), zaptest.NewLogger(t), nil)
	_, err := l.Load(context.Background(), Descriptor{Name: "auth", URL: srv.URL})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidIntrospection)
	assert.Contains(t, err.Error(), "introspection disabled")
	assert.Equal(t, int32(1), calls.Load())
}

func TestLoadAll_SettleDelayHonoursCancellation(t *testing.T) {
	startup := testStartup()
	startup.SettleDelay = time.Hour
	l := NewLoader(nil, startup, zaptest.NewLogger(t), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.LoadAll(ctx, []Descriptor{{Name: "auth", URL: "http://localhost:1/graphql"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecodeIntrospection_Errors(t *testing.T) {
	d := Descriptor{Name: "x", URL: "http://x/graphql"}

	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>`},
		{"no schema", `{"data":{}}`},
		{"no query type", `{"data":{"__schema":{"types":[]}}}`},
		{"unknown kind", `{"data":{"__schema":{"queryType":{"name":"Query"},"types":[{"kind":"WEIRD","name":"Foo"}]}}}`},
		{"bad type ref", `{"data":{"__schema":{"queryType":{"name":"Query"},"types":[{"kind":"OBJECT","name":"Query","fields":[{"name":"a","args":[],"type":{"kind":"NON_NULL"}}]}]}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeIntrospection(d, []byte(tt.body))
			assert.ErrorIs(t, err, ErrInvalidIntrospection)
		})
	}
}
