package gateway

import (
	"bytes"
	"encoding/json"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Error codes placed in extensions.code of errors raised by the gateway itself.
const (
	CodeParseFailed         = "GRAPHQL_PARSE_FAILED"
	CodeValidationFailed    = "GRAPHQL_VALIDATION_FAILED"
	CodeBadUserInput        = "BAD_USER_INPUT"
	CodeOperationNotFound   = "OPERATION_NOT_FOUND"
	CodeNotSupported        = "OPERATION_NOT_SUPPORTED"
	CodeSubgraphUnavailable = "SUBGRAPH_UNAVAILABLE"
)

// Request is a GraphQL request as posted by a client.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// Response is a GraphQL response. Data is omitted when the operation was not
// executed (parse or validation failure) and is an object otherwise.
type Response struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Errors gqlerror.List   `json:"errors,omitempty"`
}

func errorResponse(errs ...*gqlerror.Error) *Response {
	return &Response{Errors: errs}
}

func withCode(err *gqlerror.Error, code string) *gqlerror.Error {
	if err.Extensions == nil {
		err.Extensions = map[string]interface{}{}
	}
	if _, ok := err.Extensions["code"]; !ok {
		err.Extensions["code"] = code
	}
	return err
}

func codedError(code, format string, args ...interface{}) *gqlerror.Error {
	return withCode(gqlerror.Errorf(format, args...), code)
}

// fieldError is attached to one root response key.
func fieldError(key, code, message string, extensions map[string]interface{}) *gqlerror.Error {
	err := &gqlerror.Error{
		Message:    message,
		Path:       ast.Path{ast.PathName(key)},
		Extensions: extensions,
	}
	return withCode(err, code)
}

// objectWriter builds a JSON object with keys in insertion order.
type objectWriter struct {
	buf   bytes.Buffer
	count int
}

func (w *objectWriter) field(key string, value json.RawMessage) {
	if w.count == 0 {
		w.buf.WriteByte('{')
	} else {
		w.buf.WriteByte(',')
	}
	k, _ := json.Marshal(key)
	w.buf.Write(k)
	w.buf.WriteByte(':')
	if len(value) == 0 {
		w.buf.WriteString("null")
	} else {
		w.buf.Write(value)
	}
	w.count++
}

func (w *objectWriter) bytes() json.RawMessage {
	if w.count == 0 {
		return json.RawMessage("{}")
	}
	w.buf.WriteByte('}')
	return json.RawMessage(w.buf.Bytes())
}

func marshalValue(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return raw
}
