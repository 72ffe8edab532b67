package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ServerMetrics holds metric instruments for HTTP server telemetry.
// Initialize once at server startup and reuse throughout the application lifecycle.
type ServerMetrics struct {
	RequestCounter  metric.Int64Counter     // Total HTTP requests
	RequestDuration metric.Float64Histogram // HTTP request latency
	ErrorCounter    metric.Int64Counter     // Total HTTP errors (5xx)
}

// NewServerMetrics creates a new ServerMetrics instance with pre-configured instruments.
func NewServerMetrics() (*ServerMetrics, error) {
	meter := otel.Meter("emsgateway/http")

	requestCounter, err := meter.Int64Counter(
		"http.server.request.count",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"http.server.error.count",
		metric.WithDescription("Total number of HTTP server errors (5xx)"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &ServerMetrics{
		RequestCounter:  requestCounter,
		RequestDuration: requestDuration,
		ErrorCounter:    errorCounter,
	}, nil
}

// RecordRequest records an HTTP request with method, route, status, and duration.
func (m *ServerMetrics) RecordRequest(ctx context.Context, method, route, status string, durationMs float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPRoute, route),
		attribute.String(AttrHTTPStatusCode, status),
	)

	m.RequestCounter.Add(ctx, 1, attrs)
	m.RequestDuration.Record(ctx, durationMs, attrs)

	if len(status) > 0 && status[0] == '5' {
		m.ErrorCounter.Add(ctx, 1, attrs)
	}
}

// DispatchMetrics holds instruments for requests sent to subgraphs.
type DispatchMetrics struct {
	DispatchCounter  metric.Int64Counter
	DispatchDuration metric.Float64Histogram
	DispatchErrors   metric.Int64Counter
}

// NewDispatchMetrics creates metric instruments for subgraph dispatch.
func NewDispatchMetrics() (*DispatchMetrics, error) {
	meter := otel.Meter("emsgateway/dispatch")

	dispatchCounter, err := meter.Int64Counter(
		"subgraph.request.count",
		metric.WithDescription("Total number of sub-operations sent to subgraphs"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	dispatchDuration, err := meter.Float64Histogram(
		"subgraph.request.duration",
		metric.WithDescription("Subgraph round-trip duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)
	if err != nil {
		return nil, err
	}

	dispatchErrors, err := meter.Int64Counter(
		"subgraph.request.error.count",
		metric.WithDescription("Total number of failed subgraph round-trips (transport level)"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &DispatchMetrics{
		DispatchCounter:  dispatchCounter,
		DispatchDuration: dispatchDuration,
		DispatchErrors:   dispatchErrors,
	}, nil
}

// RecordDispatch records one sub-operation round-trip.
func (d *DispatchMetrics) RecordDispatch(ctx context.Context, subgraph, operation string, durationMs float64, err error) {
	if d == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrSubgraph, subgraph),
		attribute.String(AttrOperationType, operation),
	)

	d.DispatchCounter.Add(ctx, 1, attrs)
	d.DispatchDuration.Record(ctx, durationMs, attrs)

	if err != nil {
		d.DispatchErrors.Add(ctx, 1, attrs)
	}
}

// Auth outcomes recorded per tenant context build.
const (
	AuthOutcomeAnonymous = "anonymous"
	AuthOutcomeVerified  = "verified"
	AuthOutcomeRejected  = "rejected"
)

// AuthMetrics holds metric instruments for credential verification.
type AuthMetrics struct {
	AuthAttempts metric.Int64Counter
	AuthFailures metric.Int64Counter
}

// NewAuthMetrics creates metric instruments for authentication telemetry.
func NewAuthMetrics() (*AuthMetrics, error) {
	meter := otel.Meter("emsgateway/auth")

	authAttempts, err := meter.Int64Counter(
		"auth.attempt.count",
		metric.WithDescription("Total number of inbound requests by authentication outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	authFailures, err := meter.Int64Counter(
		"auth.failure.count",
		metric.WithDescription("Total number of presented credentials that failed verification"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	return &AuthMetrics{
		AuthAttempts: authAttempts,
		AuthFailures: authFailures,
	}, nil
}

// RecordAuth records the outcome of building a tenant context.
func (a *AuthMetrics) RecordAuth(ctx context.Context, outcome string) {
	if a == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrAuthOutcome, outcome))

	a.AuthAttempts.Add(ctx, 1, attrs)
	if outcome == AuthOutcomeRejected {
		a.AuthFailures.Add(ctx, 1, attrs)
	}
}

// SchemaMetrics holds instruments for the startup load and compose pipeline.
type SchemaMetrics struct {
	LoadAttempts     metric.Int64Counter
	ComposeDuration  metric.Float64Histogram
	ComposedTypes    metric.Int64Gauge
	ComposeConflicts metric.Int64Counter
}

// NewSchemaMetrics creates metric instruments for schema loading and composition.
func NewSchemaMetrics() (*SchemaMetrics, error) {
	meter := otel.Meter("emsgateway/schema")

	loadAttempts, err := meter.Int64Counter(
		"schema.load.attempt.count",
		metric.WithDescription("Introspection attempts per subgraph during startup"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	composeDuration, err := meter.Float64Histogram(
		"schema.compose.duration",
		metric.WithDescription("Time spent composing loaded schemas"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	composedTypes, err := meter.Int64Gauge(
		"schema.composed.types",
		metric.WithDescription("Number of named types in the composed schema"),
		metric.WithUnit("{type}"),
	)
	if err != nil {
		return nil, err
	}

	composeConflicts, err := meter.Int64Counter(
		"schema.compose.conflict.count",
		metric.WithDescription("Composition conflicts detected"),
		metric.WithUnit("{conflict}"),
	)
	if err != nil {
		return nil, err
	}

	return &SchemaMetrics{
		LoadAttempts:     loadAttempts,
		ComposeDuration:  composeDuration,
		ComposedTypes:    composedTypes,
		ComposeConflicts: composeConflicts,
	}, nil
}

// RecordLoadAttempt records one introspection attempt against a subgraph.
func (s *SchemaMetrics) RecordLoadAttempt(ctx context.Context, subgraph string, err error) {
	if s == nil {
		return
	}
	s.LoadAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrSubgraph, subgraph),
		attribute.Bool("success", err == nil),
	))
}

// RecordCompose records the outcome of a composition run.
func (s *SchemaMetrics) RecordCompose(ctx context.Context, durationMs float64, types int, conflicts int) {
	if s == nil {
		return
	}
	s.ComposeDuration.Record(ctx, durationMs)
	if conflicts > 0 {
		s.ComposeConflicts.Add(ctx, int64(conflicts))
		return
	}
	s.ComposedTypes.Record(ctx, int64(types))
}

// Common metric attribute keys
const (
	AttrHTTPMethod     = "http.method"
	AttrHTTPRoute      = "http.route"
	AttrHTTPStatusCode = "http.status_code"

	AttrAuthOutcome = "auth.outcome"
)
