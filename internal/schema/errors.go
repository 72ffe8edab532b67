package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSubgraphUnreachable is wrapped by load failures caused by transport errors
// or non-2xx responses.
var ErrSubgraphUnreachable = errors.New("subgraph unreachable")

// ErrInvalidIntrospection is wrapped when a subgraph answered but its
// introspection result could not be turned into a schema.
var ErrInvalidIntrospection = errors.New("invalid introspection result")

// CompositionFailure reports that a subgraph schema could not be loaded. Startup
// cannot proceed with a partial graph.
type CompositionFailure struct {
	Subgraph string
	Err      error
}

func (e *CompositionFailure) Error() string {
	return fmt.Sprintf("load schema for subgraph %q: %v", e.Subgraph, e.Err)
}

func (e *CompositionFailure) Unwrap() error {
	return e.Err
}

// Conflict is one unresolvable collision between subgraphs.
type Conflict struct {
	Coordinate string
	Subgraphs  []string
	Reason     string
}

func (c Conflict) Error() string {
	return fmt.Sprintf("%s: %s (subgraphs: %s)", c.Coordinate, c.Reason, strings.Join(c.Subgraphs, ", "))
}

// CompositionConflict aggregates every conflict found in one Compose run.
type CompositionConflict struct {
	Conflicts []Conflict
	Err       error
}

func (e *CompositionConflict) Error() string {
	return fmt.Sprintf("schema composition failed with %d conflict(s): %v", len(e.Conflicts), e.Err)
}

func (e *CompositionConflict) Unwrap() error {
	return e.Err
}
