package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/AdityaSrivastav5/ems-plus-plus/internal/config"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/schema"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/telemetry"
)

// Dependencies are the shared collaborators Bootstrap wires into the loader
// and the engine. Every field is optional.
type Dependencies struct {
	Client          *http.Client
	Logger          *zap.Logger
	SchemaMetrics   *telemetry.SchemaMetrics
	DispatchMetrics *telemetry.DispatchMetrics
}

// Compose loads every configured subgraph and composes them.
func Compose(ctx context.Context, cfg *config.Config, deps Dependencies) (*schema.Composed, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Client == nil {
		deps.Client = NewClient()
	}
	log := deps.Logger

	descriptors := schema.DescriptorsFromConfig(cfg.Subgraphs)
	log.Info("loading subgraph schemas", zap.Strings("subgraphs", cfg.SubgraphNames()))

	loaded, err := schema.NewLoader(deps.Client, cfg.Startup, log, deps.SchemaMetrics).LoadAll(ctx, descriptors)
	if err != nil {
		return nil, fmt.Errorf("load subgraph schemas: %w", err)
	}

	start := time.Now()
	composed, err := schema.Compose(loaded, log)
	elapsed := float64(time.Since(start).Milliseconds())
	if err != nil {
		conflicts := 0
		var conflict *schema.CompositionConflict
		if errors.As(err, &conflict) {
			conflicts = len(conflict.Conflicts)
		}
		deps.SchemaMetrics.RecordCompose(ctx, elapsed, 0, conflicts)
		return nil, fmt.Errorf("compose schema: %w", err)
	}
	deps.SchemaMetrics.RecordCompose(ctx, elapsed, len(composed.Schema.Types), 0)
	return composed, nil
}

// Bootstrap composes the graph and returns an engine ready to serve it.
func Bootstrap(ctx context.Context, cfg *config.Config, deps Dependencies) (*Engine, error) {
	if deps.Client == nil {
		deps.Client = NewClient()
	}
	composed, err := Compose(ctx, cfg, deps)
	if err != nil {
		return nil, err
	}
	return NewEngine(composed, Options{
		Client:  deps.Client,
		Timeout: cfg.Dispatch.Timeout,
		Logger:  deps.Logger,
		Metrics: deps.DispatchMetrics,
	}), nil
}
