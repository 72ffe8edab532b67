package server

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
	"go.uber.org/zap"

	"github.com/AdityaSrivastav5/ems-plus-plus/internal/gateway"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/logging"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/tenant"
)

// CodeBadRequest marks bodies that could not be read as a GraphQL request.
const CodeBadRequest = "BAD_REQUEST"

type graphQLHandler struct {
	engine   *gateway.Engine
	maxBytes int64
	timeout  time.Duration
}

// ServeHTTP answers 200 for every operation the engine saw, including ones it
// rejected; only unreadable bodies get a 400.
func (h *graphQLHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeGraphQLError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "schema not composed")
		return
	}

	req, err := h.decode(w, r)
	if err != nil {
		writeGraphQLError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	tc, _ := tenant.FromContext(ctx)
	resp := h.engine.Execute(ctx, tc, req)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.FromContext(r.Context()).Warn("write graphql response", zap.Error(err))
	}
}

func (h *graphQLHandler) decode(w http.ResponseWriter, r *http.Request) (gateway.Request, error) {
	var req gateway.Request

	body := r.Body
	if h.maxBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return req, fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return req, fmt.Errorf("read request body: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("request body is not a GraphQL request: %w", err)
	}
	return req, nil
}

func writeGraphQLError(w http.ResponseWriter, status int, code, message string) {
	err := gqlerror.Errorf("%s", message)
	err.Extensions = map[string]interface{}{"code": code}
	writeJSON(w, status, gateway.Response{Errors: gqlerror.List{err}})
}
