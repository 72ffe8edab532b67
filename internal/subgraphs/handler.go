// Package subgraphs serves the reference EMS services that sit behind the
// gateway. Each one is a plain GraphQL server reading identity from the
// headers the gateway forwards.
package subgraphs

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/AdityaSrivastav5/ems-plus-plus/internal/auth"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/config"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/subgraphs/attendance"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/subgraphs/authsvc"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/subgraphs/employee"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/subgraphs/tenancy"
)

// Reference subgraph names.
const (
	Auth       = "auth"
	Employee   = "employee"
	Attendance = "attendance"
)

// Names lists the subgraphs Build understands.
func Names() []string {
	return []string{Auth, Employee, Attendance}
}

// Build returns the HTTP handler of the named subgraph backed by db.
func Build(name string, db *bun.DB, authCfg config.AuthConfig, log *zap.Logger) (http.Handler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("subgraph", name))

	var (
		sdl      string
		resolver any
	)
	switch name {
	case Auth:
		issuer, err := auth.NewIssuer(authCfg)
		if err != nil {
			return nil, fmt.Errorf("auth subgraph: %w", err)
		}
		sdl, resolver = authsvc.Schema, authsvc.NewResolver(db, issuer, log)
	case Employee:
		sdl, resolver = employee.Schema, employee.NewResolver(db, log)
	case Attendance:
		sdl, resolver = attendance.Schema, attendance.NewResolver(db, nil, log)
	default:
		return nil, fmt.Errorf("unknown subgraph %q (want one of %v)", name, Names())
	}

	return Handler(name, sdl, resolver)
}

// Handler serves sdl with resolver at /graphql, plus /health.
func Handler(name, sdl string, resolver any) (http.Handler, error) {
	schema, err := graphql.ParseSchema(sdl, resolver)
	if err != nil {
		return nil, fmt.Errorf("parse %s schema: %w", name, err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(tenancy.Middleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodPost, "/graphql", &relay.Handler{Schema: schema})

	return otelhttp.NewHandler(r, name), nil
}

// Known reports whether name is a reference subgraph.
func Known(name string) bool {
	return slices.Contains(Names(), name)
}
