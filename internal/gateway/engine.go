// Package gateway executes client operations against the composed graph by
// splitting root fields across the subgraphs that own them.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/AdityaSrivastav5/ems-plus-plus/internal/schema"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/telemetry"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/tenant"
)

// Options configures an Engine.
type Options struct {
	// Client sends sub-operations. Defaults to an otelhttp-instrumented client.
	Client *http.Client
	// Timeout bounds each sub-operation. Zero means no per-dispatch limit.
	Timeout time.Duration
	Logger  *zap.Logger
	Metrics *telemetry.DispatchMetrics
}

// Engine executes operations against a composed graph. It is safe for
// concurrent use.
type Engine struct {
	composed *schema.Composed
	client   *http.Client
	timeout  time.Duration
	log      *zap.Logger
	metrics  *telemetry.DispatchMetrics
}

// NewEngine returns an Engine serving composed.
func NewEngine(composed *schema.Composed, opts Options) *Engine {
	if opts.Client == nil {
		opts.Client = NewClient()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		composed: composed,
		client:   opts.Client,
		timeout:  opts.Timeout,
		log:      opts.Logger,
		metrics:  opts.Metrics,
	}
}

// NewClient returns the HTTP client used to reach subgraphs.
func NewClient() *http.Client {
	return &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
}

// Schema returns the composed graph the engine serves.
func (e *Engine) Schema() *schema.Composed {
	return e.composed
}

// Execute validates req against the composed schema, dispatches its root
// fields and merges the results. It never returns nil.
func (e *Engine) Execute(ctx context.Context, tc tenant.Context, req Request) *Response {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerGateway, "gateway.execute",
		attribute.String(telemetry.AttrOperationName, req.OperationName),
	)
	defer span.End()
	if !tc.Anonymous() {
		span.SetAttributes(attribute.String(telemetry.AttrPrincipalID, tc.UserID()))
	}
	if tc.OrgID != "" {
		span.SetAttributes(attribute.String(telemetry.AttrOrgID, tc.OrgID))
	}

	if strings.TrimSpace(req.Query) == "" {
		return errorResponse(codedError(CodeParseFailed, "no query provided"))
	}

	doc, errs := gqlparser.LoadQuery(e.composed.Schema, req.Query)
	if len(errs) > 0 {
		for _, err := range errs {
			withCode(err, CodeValidationFailed)
		}
		return &Response{Errors: errs}
	}

	op := doc.Operations.ForName(req.OperationName)
	if op == nil {
		if req.OperationName == "" {
			return errorResponse(codedError(CodeOperationNotFound, "operation name is required when the document contains multiple operations"))
		}
		return errorResponse(codedError(CodeOperationNotFound, "unknown operation named %q", req.OperationName))
	}
	span.SetAttributes(attribute.String(telemetry.AttrOperationType, string(op.Operation)))

	if op.Operation == ast.Subscription {
		return errorResponse(codedError(CodeNotSupported, "subscriptions are not supported"))
	}

	vars, verr := validator.VariableValues(e.composed.Schema, op, req.Variables)
	if verr != nil {
		return errorResponse(asGraphQLError(verr, CodeBadUserInput))
	}

	pl, err := (&planner{composed: e.composed, doc: doc, op: op, vars: vars}).build()
	if err != nil {
		e.log.Error("plan operation", zap.Error(err))
		telemetry.RecordError(span, err)
		return errorResponse(codedError("INTERNAL_SERVER_ERROR", "%s", err.Error()))
	}

	operation := string(op.Operation)
	results := make([]*result, len(pl.steps))
	if pl.serial {
		for i, s := range pl.steps {
			results[i] = e.dispatch(ctx, tc, operation, s)
		}
	} else {
		var g errgroup.Group
		for i, s := range pl.steps {
			g.Go(func() error {
				results[i] = e.dispatch(ctx, tc, operation, s)
				return nil
			})
		}
		_ = g.Wait()
	}

	resp := &Response{Data: e.merge(doc, op, vars, pl, results)}
	for _, r := range results {
		resp.Errors = append(resp.Errors, r.errors...)
	}

	e.log.Debug("operation executed",
		zap.String("operation", operation),
		zap.String("name", op.Name),
		zap.Int("subgraphs", len(pl.steps)),
		zap.Int("errors", len(resp.Errors)),
	)
	return resp
}

// merge assembles data in the client's field order.
func (e *Engine) merge(doc *ast.QueryDocument, op *ast.OperationDefinition, vars map[string]any, pl *plan, results []*result) []byte {
	byKey := map[string]*result{}
	for i, s := range pl.steps {
		for _, key := range s.keys {
			byKey[key] = results[i]
		}
	}

	rootType := schema.QueryRoot
	if op.Operation == ast.Mutation {
		rootType = schema.MutationRoot
	}
	in := &introspector{schema: e.composed.Schema, doc: doc, vars: vars}

	var w objectWriter
	for _, key := range pl.keys {
		if fields, ok := pl.local[key]; ok {
			w.field(key, in.root(rootType, mergeFields(fields)))
			continue
		}
		if r := byKey[key]; r != nil {
			w.field(key, r.data[key])
			continue
		}
		w.field(key, nil)
	}
	return w.bytes()
}

// mergeFields folds repeated selections of one response key into a single field.
func mergeFields(fields []*ast.Field) *ast.Field {
	if len(fields) == 1 {
		return fields[0]
	}
	merged := *fields[0]
	merged.SelectionSet = nil
	for _, f := range fields {
		merged.SelectionSet = append(merged.SelectionSet, f.SelectionSet...)
	}
	return &merged
}

func asGraphQLError(err error, code string) *gqlerror.Error {
	var gqlErr *gqlerror.Error
	if !errors.As(err, &gqlErr) {
		gqlErr = gqlerror.Errorf("%s", err.Error())
	}
	return withCode(gqlErr, code)
}
