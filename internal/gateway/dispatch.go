package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/AdityaSrivastav5/ems-plus-plus/internal/telemetry"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/tenant"
)

const maxSubgraphResponseBytes = 32 << 20

var errSubgraphStatus = errors.New("unexpected subgraph status")

// result is what one step produced.
type result struct {
	data   map[string]json.RawMessage
	errors gqlerror.List
}

type subgraphResponse struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []json.RawMessage          `json:"errors"`
}

// subgraphError rebuilds one subgraph error for the client. Locations point
// into the sub-operation, which the client never saw, so they are dropped.
// Top-level keys gqlerror has no field for move under extensions.
func subgraphError(raw json.RawMessage) (*gqlerror.Error, error) {
	var err gqlerror.Error
	if e := json.Unmarshal(raw, &err); e != nil {
		return nil, e
	}
	var fields map[string]json.RawMessage
	if e := json.Unmarshal(raw, &fields); e != nil {
		return nil, e
	}

	for key, value := range fields {
		switch key {
		case "message", "path", "locations", "extensions":
			continue
		}
		if err.Extensions == nil {
			err.Extensions = map[string]interface{}{}
		}
		if _, taken := err.Extensions[key]; !taken {
			err.Extensions[key] = value
		}
	}
	err.Locations = nil
	return &err, nil
}

// dispatch sends s to its subgraph. Transport failures are converted into
// per-field errors so the rest of the operation can still complete.
func (e *Engine) dispatch(ctx context.Context, tc tenant.Context, operation string, s *step) *result {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerGateway, "gateway.dispatch",
		attribute.String(telemetry.AttrSubgraph, s.subgraph.Name),
		attribute.String(telemetry.AttrSubgraphURL, s.subgraph.URL),
		attribute.String(telemetry.AttrOperationType, operation),
		attribute.StringSlice(telemetry.AttrRootFields, s.keys),
	)
	defer span.End()

	start := time.Now()
	res, err := e.post(ctx, tc, s)
	e.metrics.RecordDispatch(ctx, s.subgraph.Name, operation, float64(time.Since(start).Milliseconds()), err)

	if err == nil {
		return res
	}

	telemetry.RecordError(span, err)
	e.log.Warn("subgraph dispatch failed",
		zap.String("subgraph", s.subgraph.Name),
		zap.Strings("fields", s.keys),
		zap.Error(err),
	)

	failed := &result{data: map[string]json.RawMessage{}}
	for _, key := range s.keys {
		failed.errors = append(failed.errors, fieldError(key, CodeSubgraphUnavailable,
			fmt.Sprintf("subgraph %q is unavailable", s.subgraph.Name),
			map[string]interface{}{"subgraph": s.subgraph.Name},
		))
	}
	return failed
}

func (e *Engine) post(ctx context.Context, tc tenant.Context, s *step) (*result, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	payload := map[string]any{"query": s.query}
	if len(s.variables) > 0 {
		payload["variables"] = s.variables
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.subgraph.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if s.subgraph.Forward != nil {
		for name, values := range s.subgraph.Forward(tc) {
			for _, v := range values {
				req.Header.Add(name, v)
			}
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxSubgraphResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var decoded subgraphResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("%w %d", errSubgraphStatus, resp.StatusCode)
		}
		return nil, fmt.Errorf("decode response: %w", err)
	}
	// A non-2xx reply still counts when it carries a GraphQL result.
	if (resp.StatusCode < 200 || resp.StatusCode > 299) && decoded.Data == nil && len(decoded.Errors) == 0 {
		return nil, fmt.Errorf("%w %d", errSubgraphStatus, resp.StatusCode)
	}

	res := &result{data: decoded.Data}
	for _, raw := range decoded.Errors {
		gqlErr, err := subgraphError(raw)
		if err != nil {
			return nil, fmt.Errorf("decode response error: %w", err)
		}
		res.errors = append(res.errors, gqlErr)
	}
	return res, nil
}
