package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"

	"github.com/AdityaSrivastav5/ems-plus-plus/internal/config"
)

func TestInit_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), config.ObservabilityConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_RejectsUnsupportedProtocol(t *testing.T) {
	_, err := Init(context.Background(), config.ObservabilityConfig{
		OTLPEndpoint: "localhost:4318",
		OTLPProtocol: "grpc",
		ServiceName:  "emsgateway",
	}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestMetrics_ConstructAndRecord(t *testing.T) {
	ctx := context.Background()

	server, err := NewServerMetrics()
	require.NoError(t, err)
	dispatch, err := NewDispatchMetrics()
	require.NoError(t, err)
	authm, err := NewAuthMetrics()
	require.NoError(t, err)
	schemam, err := NewSchemaMetrics()
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		server.RecordRequest(ctx, "POST", "/graphql", "200", 1.5)
		server.RecordRequest(ctx, "POST", "/graphql", "503", 1.5)
		dispatch.RecordDispatch(ctx, "employee", "query", 3, nil)
		dispatch.RecordDispatch(ctx, "employee", "query", 3, errors.New("boom"))
		authm.RecordAuth(ctx, AuthOutcomeRejected)
		schemam.RecordLoadAttempt(ctx, "auth", nil)
		schemam.RecordCompose(ctx, 10, 12, 0)
		schemam.RecordCompose(ctx, 10, 0, 2)
	})
}

func TestMetrics_NilReceiversAreNoops(t *testing.T) {
	ctx := context.Background()
	var (
		server   *ServerMetrics
		dispatch *DispatchMetrics
		authm    *AuthMetrics
		schemam  *SchemaMetrics
	)

	assert.NotPanics(t, func() {
		server.RecordRequest(ctx, "GET", "/", "200", 1)
		dispatch.RecordDispatch(ctx, "auth", "query", 1, nil)
		authm.RecordAuth(ctx, AuthOutcomeAnonymous)
		schemam.RecordLoadAttempt(ctx, "auth", errors.New("down"))
		schemam.RecordCompose(ctx, 1, 1, 0)
	})
}

func TestRecordError(t *testing.T) {
	_, span := noop.NewTracerProvider().Tracer("test").Start(context.Background(), "op")
	assert.NotPanics(t, func() {
		RecordError(span, nil)
		RecordError(span, errors.New("boom"))
		AddEvent(span, "retry")
	})
	span.End()
}

func TestExporterOptions(t *testing.T) {
	opts, err := exporterOptions(config.ObservabilityConfig{OTLPEndpoint: "collector:4318", OTLPInsecure: true})
	require.NoError(t, err)
	assert.Len(t, opts, 2)

	opts, err = exporterOptions(config.ObservabilityConfig{OTLPEndpoint: "https://collector.example.com/v1/traces"})
	require.NoError(t, err)
	assert.Len(t, opts, 1)

	_, err = exporterOptions(config.ObservabilityConfig{OTLPEndpoint: "collector:4317", OTLPProtocol: "grpc"})
	assert.ErrorContains(t, err, "unsupported OTLP protocol")
}
