package schema

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/AdityaSrivastav5/ems-plus-plus/internal/config"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/telemetry"
)

// maxIntrospectionBytes bounds the size of a subgraph's introspection response.
const maxIntrospectionBytes = 16 << 20

// Loader fetches subgraph schemas at startup.
type Loader struct {
	client  *http.Client
	startup config.StartupConfig
	log     *zap.Logger
	metrics *telemetry.SchemaMetrics
}

// NewLoader returns a Loader. A nil client uses http.DefaultClient.
func NewLoader(client *http.Client, startup config.StartupConfig, log *zap.Logger, metrics *telemetry.SchemaMetrics) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{client: client, startup: startup, log: log, metrics: metrics}
}

// LoadAll loads every descriptor concurrently and returns the results in
// descriptor order. Any descriptor that cannot be loaded before the startup
// timeout fails the whole call with a *CompositionFailure.
func (l *Loader) LoadAll(ctx context.Context, descriptors []Descriptor) ([]*Loaded, error) {
	if l.startup.SettleDelay > 0 {
		l.log.Info("waiting for subgraphs to settle", zap.Duration("delay", l.startup.SettleDelay))
		timer := time.NewTimer(l.startup.SettleDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if l.startup.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.startup.Timeout)
		defer cancel()
	}

	loaded := make([]*Loaded, len(descriptors))
	errs := make([]error, len(descriptors))

	g, gctx := errgroup.WithContext(ctx)
	for i, d := range descriptors {
		g.Go(func() error {
			result, err := l.Load(gctx, d)
			if err != nil {
				errs[i] = err
				return err
			}
			loaded[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, firstFailure(ctx, descriptors, errs)
	}
	return loaded, nil
}

// firstFailure picks the failure to report in descriptor order, skipping loads
// that were only cancelled because a sibling had already failed.
func firstFailure(ctx context.Context, descriptors []Descriptor, errs []error) error {
	for i, err := range errs {
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) && ctx.Err() == nil {
			continue
		}
		return &CompositionFailure{Subgraph: descriptors[i].Name, Err: err}
	}
	for i, err := range errs {
		if err != nil {
			return &CompositionFailure{Subgraph: descriptors[i].Name, Err: err}
		}
	}
	return errors.New("schema load failed")
}

// Load fetches one descriptor's schema, retrying transient failures with
// exponential backoff until ctx is done.
func (l *Loader) Load(ctx context.Context, d Descriptor) (*Loaded, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerSchema, "schema.Load",
		attribute.String(telemetry.AttrSubgraph, d.Name),
		attribute.String(telemetry.AttrSubgraphURL, d.URL),
	)
	defer span.End()

	delay := l.startup.InitialBackoff
	if delay <= 0 {
		delay = 250 * time.Millisecond
	}
	maxDelay := l.startup.MaxBackoff
	if maxDelay < delay {
		maxDelay = delay
	}

	for attempt := 1; ; attempt++ {
		loaded, err := l.fetch(ctx, d)
		l.metrics.RecordLoadAttempt(ctx, d.Name, err)
		if err == nil {
			l.log.Info("loaded subgraph schema",
				zap.String("subgraph", d.Name),
				zap.Int("types", len(loaded.Document.Definitions)),
				zap.Int("attempts", attempt),
			)
			return loaded, nil
		}

		if errors.Is(err, ErrInvalidIntrospection) {
			telemetry.RecordError(span, err)
			return nil, err
		}
		if ctx.Err() != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("gave up after %d attempt(s): %w: %w", attempt, err, ctx.Err())
		}

		l.log.Warn("subgraph not ready, retrying",
			zap.String("subgraph", d.Name),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		telemetry.AddEvent(span, "retry", attribute.Int(telemetry.AttrAttempt, attempt))

		// up to 25% jitter
		sleep := delay + time.Duration(rand.Int64N(int64(delay/4)+1))
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("gave up after %d attempt(s): %w: %w", attempt, err, ctx.Err())
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// fetch performs a single introspection round-trip.
func (l *Loader) fetch(ctx context.Context, d Descriptor) (*Loaded, error) {
	body, err := json.Marshal(map[string]any{
		"query":         IntrospectionQuery,
		"operationName": "IntrospectionQuery",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build introspection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSubgraphUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxIntrospectionBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrSubgraphUnreachable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrSubgraphUnreachable, resp.StatusCode)
	}

	return decodeIntrospection(d, raw)
}

func decodeIntrospection(d Descriptor, raw []byte) (*Loaded, error) {
	var result introspectionResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("%w: decode json: %v", ErrInvalidIntrospection, err)
	}
	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidIntrospection, strings.Join(msgs, "; "))
	}
	if result.Data == nil || result.Data.Schema == nil {
		return nil, fmt.Errorf("%w: response has no __schema", ErrInvalidIntrospection)
	}

	doc, roots, err := result.Data.Schema.toDocument(d.Name)
	if err != nil {
		return nil, err
	}

	return &Loaded{
		Descriptor: d,
		Document:   doc,
		Roots:      roots,
		Forward:    ForwardTenantHeaders,
	}, nil
}
