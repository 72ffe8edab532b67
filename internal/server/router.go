// Package server exposes the gateway over HTTP.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/99designs/gqlgen/graphql/playground"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/AdityaSrivastav5/ems-plus-plus/internal/config"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/gateway"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/telemetry"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/tenant"
)

// Options controls the construction of the gateway router. Engine and Tenants
// are required; the rest default sensibly.
type Options struct {
	Engine  *gateway.Engine
	Tenants *tenant.Builder
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *telemetry.ServerMetrics
}

// CORSOptions returns the CORS policy for origins.
func CORSOptions(origins []string) cors.Options {
	return cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			"Content-Type",
			"Accept",
			tenant.HeaderAuthorization,
			tenant.HeaderOrgID,
		},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

// NewRouter assembles the gateway routes behind the shared middleware stack.
func NewRouter(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Config == nil {
		opts.Config = &config.Config{}
	}
	cfg := opts.Config

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(opts.Logger, opts.Metrics))
	r.Use(middleware.Recoverer)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(CORSOptions(cfg.CORSOrigins)))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ready", readyHandler(opts.Engine))
	r.Get("/schema", schemaHandler(opts.Engine))

	gql := &graphQLHandler{
		engine:   opts.Engine,
		maxBytes: cfg.MaxRequestBytes,
		timeout:  cfg.RequestTimeout,
	}
	r.Group(func(r chi.Router) {
		r.Use(opts.Tenants.Middleware)
		r.Post("/graphql", gql.ServeHTTP)
	})

	if cfg.EnablePlayground {
		play := playground.Handler("EMS Gateway", "/graphql")
		r.Get("/", play)
		r.Get("/graphql", play)
	}

	return otelhttp.NewHandler(r, "emsgateway")
}

func readyHandler(engine *gateway.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if engine == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "composing"})
			return
		}

		composed := engine.Schema()
		var names []string
		for _, sg := range composed.Subgraphs() {
			names = append(names, sg.Name)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ready",
			"subgraphs": names,
		})
	}
}

func schemaHandler(engine *gateway.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if engine == nil {
			http.Error(w, "schema not composed", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(engine.Schema().SDL))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
