package gateway

import (
	"bytes"
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"

	"github.com/AdityaSrivastav5/ems-plus-plus/internal/schema"
)

// step is one sub-operation sent to a single subgraph.
type step struct {
	subgraph  schema.Subgraph
	keys      []string
	query     string
	variables map[string]any
}

// plan routes the root fields of one operation.
type plan struct {
	operation ast.Operation
	keys      []string
	local     map[string][]*ast.Field
	steps     []*step
	serial    bool
}

type planner struct {
	composed *schema.Composed
	doc      *ast.QueryDocument
	op       *ast.OperationDefinition
	vars     map[string]any
}

func (p *planner) build() (*plan, error) {
	fields := p.collect(p.op.SelectionSet, map[string]bool{})

	pl := &plan{
		operation: p.op.Operation,
		local:     map[string][]*ast.Field{},
		serial:    p.op.Operation == ast.Mutation,
	}

	byKey := map[string][]*ast.Field{}
	owners := map[string]string{}
	for _, f := range fields {
		key := responseKey(f)
		if _, seen := byKey[key]; !seen {
			pl.keys = append(pl.keys, key)
		}
		byKey[key] = append(byKey[key], f)

		if isLocalField(f.Name) {
			pl.local[key] = append(pl.local[key], f)
			continue
		}
		owner, ok := p.composed.Owner(p.op.Operation, f.Name)
		if !ok {
			return nil, fmt.Errorf("no subgraph owns %s field %q", p.op.Operation, f.Name)
		}
		owners[key] = owner
	}

	// Queries get one step per subgraph. Mutations keep document order, so a
	// step holds a maximal run of consecutive fields owned by one subgraph.
	var current *step
	bySubgraph := map[string]*step{}
	for _, key := range pl.keys {
		owner, remote := owners[key]
		if !remote {
			continue
		}

		var s *step
		if pl.serial {
			if current != nil && current.subgraph.Name == owner {
				s = current
			}
		} else {
			s = bySubgraph[owner]
		}
		if s == nil {
			sg, ok := p.composed.Subgraph(owner)
			if !ok {
				return nil, fmt.Errorf("unknown subgraph %q", owner)
			}
			s = &step{subgraph: sg}
			pl.steps = append(pl.steps, s)
			bySubgraph[owner] = s
			current = s
		}
		s.keys = append(s.keys, key)
	}

	for _, s := range pl.steps {
		var selection ast.SelectionSet
		for _, key := range s.keys {
			for _, f := range byKey[key] {
				selection = append(selection, f)
			}
		}
		s.query, s.variables = p.subOperation(selection)
	}

	return pl, nil
}

// collect flattens root fragments and applies @skip/@include.
func (p *planner) collect(set ast.SelectionSet, visited map[string]bool) []*ast.Field {
	var out []*ast.Field
	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			if included(s.Directives, p.vars) {
				out = append(out, s)
			}
		case *ast.InlineFragment:
			if included(s.Directives, p.vars) {
				out = append(out, p.collect(s.SelectionSet, visited)...)
			}
		case *ast.FragmentSpread:
			if visited[s.Name] || !included(s.Directives, p.vars) {
				continue
			}
			visited[s.Name] = true
			frag := s.Definition
			if frag == nil {
				frag = p.doc.Fragments.ForName(s.Name)
			}
			if frag != nil {
				out = append(out, p.collect(frag.SelectionSet, visited)...)
			}
		}
	}
	return out
}

// subOperation prints selection as a standalone operation carrying only the
// variables and fragments it references.
func (p *planner) subOperation(selection ast.SelectionSet) (string, map[string]any) {
	usedVars := map[string]bool{}
	usedFrags := map[string]bool{}
	var fragOrder []string
	p.references(selection, usedVars, usedFrags, &fragOrder)

	op := &ast.OperationDefinition{
		Operation:    p.op.Operation,
		Name:         p.op.Name,
		SelectionSet: selection,
	}
	variables := map[string]any{}
	for _, vd := range p.op.VariableDefinitions {
		if !usedVars[vd.Variable] {
			continue
		}
		op.VariableDefinitions = append(op.VariableDefinitions, vd)
		if v, ok := p.vars[vd.Variable]; ok {
			variables[vd.Variable] = v
		}
	}

	doc := &ast.QueryDocument{Operations: ast.OperationList{op}}
	for _, name := range fragOrder {
		if frag := p.doc.Fragments.ForName(name); frag != nil {
			doc.Fragments = append(doc.Fragments, frag)
		}
	}

	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatQueryDocument(doc)
	return buf.String(), variables
}

func (p *planner) references(set ast.SelectionSet, vars, frags map[string]bool, order *[]string) {
	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			for _, arg := range s.Arguments {
				valueVariables(arg.Value, vars)
			}
			directiveVariables(s.Directives, vars)
			p.references(s.SelectionSet, vars, frags, order)
		case *ast.InlineFragment:
			directiveVariables(s.Directives, vars)
			p.references(s.SelectionSet, vars, frags, order)
		case *ast.FragmentSpread:
			directiveVariables(s.Directives, vars)
			if frags[s.Name] {
				continue
			}
			frags[s.Name] = true
			*order = append(*order, s.Name)
			if frag := p.doc.Fragments.ForName(s.Name); frag != nil {
				directiveVariables(frag.Directives, vars)
				p.references(frag.SelectionSet, vars, frags, order)
			}
		}
	}
}

func directiveVariables(dirs ast.DirectiveList, vars map[string]bool) {
	for _, d := range dirs {
		for _, arg := range d.Arguments {
			valueVariables(arg.Value, vars)
		}
	}
}

func valueVariables(v *ast.Value, vars map[string]bool) {
	if v == nil {
		return
	}
	if v.Kind == ast.Variable {
		vars[v.Raw] = true
		return
	}
	for _, child := range v.Children {
		valueVariables(child.Value, vars)
	}
}

// included evaluates @skip and @include against coerced variables.
func included(dirs ast.DirectiveList, vars map[string]any) bool {
	if d := dirs.ForName("skip"); d != nil && boolArg(d, vars) {
		return false
	}
	if d := dirs.ForName("include"); d != nil && !boolArg(d, vars) {
		return false
	}
	return true
}

func boolArg(d *ast.Directive, vars map[string]any) bool {
	arg := d.Arguments.ForName("if")
	if arg == nil || arg.Value == nil {
		return false
	}
	v, err := arg.Value.Value(vars)
	if err != nil {
		return false
	}
	b, _ := v.(bool)
	return b
}

func responseKey(f *ast.Field) string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

func isLocalField(name string) bool {
	return name == "__typename" || name == "__schema" || name == "__type"
}
