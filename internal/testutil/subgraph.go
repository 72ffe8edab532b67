// Package testutil provides in-process GraphQL subgraphs for tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"
)

// Request is one GraphQL request received by a fake subgraph.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
	Header        http.Header    `json:"-"`
}

// Subgraph is a running graphql-go server with request recording.
type Subgraph struct {
	Server *httptest.Server
	URL    string

	mu       sync.Mutex
	requests []Request
}

type headerKey struct{}

// HeadersFromContext returns the inbound headers of the request being resolved.
func HeadersFromContext(ctx context.Context) http.Header {
	h, _ := ctx.Value(headerKey{}).(http.Header)
	return h
}

// NewSubgraph serves sdl with resolver at <server>/graphql until the test ends.
func NewSubgraph(t testing.TB, sdl string, resolver any) *Subgraph {
	t.Helper()

	schema := graphql.MustParseSchema(sdl, resolver, graphql.UseFieldResolvers())
	sg := &Subgraph{}

	r := chi.NewRouter()
	r.Post("/graphql", func(w http.ResponseWriter, req *http.Request) {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var recorded Request
		_ = json.Unmarshal(body, &recorded)
		recorded.Header = req.Header.Clone()
		sg.mu.Lock()
		sg.requests = append(sg.requests, recorded)
		sg.mu.Unlock()

		req.Body = io.NopCloser(bytes.NewReader(body))
		ctx := context.WithValue(req.Context(), headerKey{}, req.Header.Clone())
		(&relay.Handler{Schema: schema}).ServeHTTP(w, req.WithContext(ctx))
	})

	sg.Server = httptest.NewServer(r)
	sg.URL = sg.Server.URL + "/graphql"
	t.Cleanup(sg.Server.Close)
	return sg
}

// Requests returns the requests received so far, excluding introspection.
func (s *Subgraph) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, 0, len(s.requests))
	for _, r := range s.requests {
		if r.OperationName == "IntrospectionQuery" {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Reset forgets recorded requests.
func (s *Subgraph) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}

// UnreachableURL returns a URL nothing listens on.
func UnreachableURL(t testing.TB) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/graphql"
	srv.Close()
	return url
}
