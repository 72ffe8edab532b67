// Package schema discovers subgraph schemas over introspection and composes
// them into the single graph the gateway serves.
package schema

import (
	"net/http"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/AdityaSrivastav5/ems-plus-plus/internal/config"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/tenant"
)

// Descriptor names one downstream GraphQL service.
type Descriptor struct {
	Name string
	URL  string
}

// DescriptorsFromConfig converts configured subgraphs, keeping their order.
func DescriptorsFromConfig(subgraphs []config.SubgraphConfig) []Descriptor {
	out := make([]Descriptor, 0, len(subgraphs))
	for _, sg := range subgraphs {
		out = append(out, Descriptor{Name: sg.Name, URL: sg.URL})
	}
	return out
}

// HeaderFunc computes the headers sent to a subgraph for one request.
type HeaderFunc func(tenant.Context) http.Header

// ForwardTenantHeaders is the default HeaderFunc.
func ForwardTenantHeaders(tc tenant.Context) http.Header {
	return tc.Forward()
}

// RootTypes are the names a subgraph uses for its operation roots. Empty means
// the subgraph has no such root.
type RootTypes struct {
	Query        string
	Mutation     string
	Subscription string
}

// Name returns the root type name for op.
func (r RootTypes) Name(op ast.Operation) string {
	switch op {
	case ast.Query:
		return r.Query
	case ast.Mutation:
		return r.Mutation
	case ast.Subscription:
		return r.Subscription
	}
	return ""
}

// Loaded is one subgraph's schema as discovered at startup. It is consumed by
// Compose and not retained afterwards.
type Loaded struct {
	Descriptor Descriptor
	Document   *ast.SchemaDocument
	Roots      RootTypes
	Forward    HeaderFunc
}
