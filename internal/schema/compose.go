package schema

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Composed root type names.
const (
	QueryRoot    = "Query"
	MutationRoot = "Mutation"
)

// Subgraph is what the execution engine needs to reach one composed subgraph.
type Subgraph struct {
	Descriptor
	Forward HeaderFunc
}

// Composed is the merged graph. It is built once at startup and is read-only
// afterwards, so it is safe to share between requests.
type Composed struct {
	Schema *ast.Schema
	SDL    string

	owners    map[ast.Operation]map[string]string
	subgraphs map[string]Subgraph
	order     []string
}

// Owner returns the subgraph that resolves root field name of op.
func (c *Composed) Owner(op ast.Operation, field string) (string, bool) {
	owner, ok := c.owners[op][field]
	return owner, ok
}

// Subgraph returns the named subgraph.
func (c *Composed) Subgraph(name string) (Subgraph, bool) {
	sg, ok := c.subgraphs[name]
	return sg, ok
}

// Subgraphs returns the composed subgraphs in configuration order.
func (c *Composed) Subgraphs() []Subgraph {
	out := make([]Subgraph, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.subgraphs[name])
	}
	return out
}

// RootFieldCount returns how many root fields op exposes.
func (c *Composed) RootFieldCount(op ast.Operation) int {
	return len(c.owners[op])
}

type rootField struct {
	def   *ast.FieldDefinition
	owner string
}

type composer struct {
	log *zap.Logger

	types     map[string]*ast.Definition
	typeOrder []string
	typeFrom  map[string]string

	directives     map[string]*ast.DirectiveDefinition
	directiveOrder []string
	directiveFrom  map[string]string

	roots map[ast.Operation][]*rootField
	index map[ast.Operation]map[string]*rootField

	conflicts []Conflict
}

// Compose merges loaded subgraph schemas into one graph.
//
// Every subgraph's query and mutation roots are unioned into Query and Mutation
// whatever their original names. When two subgraphs publish the same root field
// with an identical signature the first one in loaded order owns it; differing
// signatures are a conflict. Other same-named types are merged structurally.
// All conflicts are reported together in a *CompositionConflict.
func Compose(loaded []*Loaded, log *zap.Logger) (*Composed, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if len(loaded) == 0 {
		return nil, fmt.Errorf("no subgraphs to compose")
	}

	c := &composer{
		log:           log,
		types:         map[string]*ast.Definition{},
		typeFrom:      map[string]string{},
		directives:    map[string]*ast.DirectiveDefinition{},
		directiveFrom: map[string]string{},
		roots:         map[ast.Operation][]*rootField{},
		index: map[ast.Operation]map[string]*rootField{
			ast.Query:    {},
			ast.Mutation: {},
		},
	}

	subgraphs := make(map[string]Subgraph, len(loaded))
	order := make([]string, 0, len(loaded))
	for _, l := range loaded {
		forward := l.Forward
		if forward == nil {
			forward = ForwardTenantHeaders
		}
		subgraphs[l.Descriptor.Name] = Subgraph{Descriptor: l.Descriptor, Forward: forward}
		order = append(order, l.Descriptor.Name)
		c.add(l)
	}

	if len(c.conflicts) > 0 {
		errs := make([]error, 0, len(c.conflicts))
		for _, conflict := range c.conflicts {
			errs = append(errs, conflict)
		}
		return nil, &CompositionConflict{Conflicts: c.conflicts, Err: multierr.Combine(errs...)}
	}

	doc := c.document()
	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatSchemaDocument(doc)
	sdl := buf.String()

	validated, err := gqlparser.LoadSchema(&ast.Source{Name: "composed.graphql", Input: sdl})
	if err != nil {
		return nil, fmt.Errorf("validate composed schema: %w", err)
	}

	owners := map[ast.Operation]map[string]string{ast.Query: {}, ast.Mutation: {}}
	for op, fields := range c.roots {
		for _, rf := range fields {
			owners[op][rf.def.Name] = rf.owner
		}
	}

	log.Info("composed schema",
		zap.Strings("subgraphs", order),
		zap.Int("types", len(c.typeOrder)),
		zap.Int("query_fields", len(owners[ast.Query])),
		zap.Int("mutation_fields", len(owners[ast.Mutation])),
	)

	return &Composed{
		Schema:    validated,
		SDL:       sdl,
		owners:    owners,
		subgraphs: subgraphs,
		order:     order,
	}, nil
}

func (c *composer) conflict(coordinate, reason string, subgraphs ...string) {
	c.conflicts = append(c.conflicts, Conflict{Coordinate: coordinate, Subgraphs: subgraphs, Reason: reason})
}

func (c *composer) add(l *Loaded) {
	name := l.Descriptor.Name
	renames := map[string]string{}
	if l.Roots.Query != "" {
		renames[l.Roots.Query] = QueryRoot
	}
	if l.Roots.Mutation != "" {
		renames[l.Roots.Mutation] = MutationRoot
	}

	for _, def := range l.Document.Definitions {
		switch def.Name {
		case l.Roots.Query:
			c.addRootFields(ast.Query, name, def, renames)
			continue
		case l.Roots.Mutation:
			c.addRootFields(ast.Mutation, name, def, renames)
			continue
		case l.Roots.Subscription:
			c.log.Warn("dropping subscription root, subscriptions are not supported",
				zap.String("subgraph", name),
				zap.String("type", def.Name),
			)
			continue
		case QueryRoot, MutationRoot:
			c.conflict(def.Name, "type name is reserved for the composed root but is not a root in this subgraph", name)
			continue
		}
		c.mergeType(name, cloneDefinition(def, renames))
	}

	for _, dir := range l.Document.Directives {
		existing, ok := c.directives[dir.Name]
		if !ok {
			c.directives[dir.Name] = dir
			c.directiveOrder = append(c.directiveOrder, dir.Name)
			c.directiveFrom[dir.Name] = name
			continue
		}
		if argumentsSignature(existing.Arguments) != argumentsSignature(dir.Arguments) {
			c.conflict("@"+dir.Name, "directive arguments differ", c.directiveFrom[dir.Name], name)
		}
	}
}

func (c *composer) addRootFields(op ast.Operation, subgraph string, def *ast.Definition, renames map[string]string) {
	root := rootName(op)
	for _, f := range def.Fields {
		field := cloneField(f, renames)
		existing, ok := c.index[op][field.Name]
		if !ok {
			rf := &rootField{def: field, owner: subgraph}
			c.index[op][field.Name] = rf
			c.roots[op] = append(c.roots[op], rf)
			continue
		}

		if fieldSignature(existing.def) != fieldSignature(field) {
			c.conflict(root+"."+field.Name,
				fmt.Sprintf("root field signatures differ (%s vs %s)", fieldSignature(existing.def), fieldSignature(field)),
				existing.owner, subgraph)
			continue
		}

		c.log.Warn("duplicate root field with identical signature, keeping first owner",
			zap.String("field", root+"."+field.Name),
			zap.String("owner", existing.owner),
			zap.String("ignored", subgraph),
		)
	}
}

func (c *composer) mergeType(subgraph string, def *ast.Definition) {
	existing, ok := c.types[def.Name]
	if !ok {
		c.types[def.Name] = def
		c.typeOrder = append(c.typeOrder, def.Name)
		c.typeFrom[def.Name] = subgraph
		return
	}

	first := c.typeFrom[def.Name]
	if existing.Kind != def.Kind {
		c.conflict(def.Name, fmt.Sprintf("kind %s conflicts with %s", def.Kind, existing.Kind), first, subgraph)
		return
	}

	if existing.Description == "" {
		existing.Description = def.Description
	}

	switch def.Kind {
	case ast.Object, ast.Interface, ast.InputObject:
		for _, f := range def.Fields {
			prev := existing.Fields.ForName(f.Name)
			if prev == nil {
				existing.Fields = append(existing.Fields, f)
				continue
			}
			if fieldSignature(prev) != fieldSignature(f) {
				c.conflict(def.Name+"."+f.Name,
					fmt.Sprintf("field types differ (%s vs %s)", fieldSignature(prev), fieldSignature(f)),
					first, subgraph)
			}
		}
		for _, iface := range def.Interfaces {
			if !slices.Contains(existing.Interfaces, iface) {
				existing.Interfaces = append(existing.Interfaces, iface)
			}
		}
	case ast.Union:
		for _, member := range def.Types {
			if !slices.Contains(existing.Types, member) {
				existing.Types = append(existing.Types, member)
			}
		}
	case ast.Enum:
		for _, v := range def.EnumValues {
			if existing.EnumValues.ForName(v.Name) == nil {
				existing.EnumValues = append(existing.EnumValues, v)
			}
		}
	}
}

func (c *composer) document() *ast.SchemaDocument {
	doc := &ast.SchemaDocument{}

	for _, name := range c.directiveOrder {
		doc.Directives = append(doc.Directives, c.directives[name])
	}

	for _, op := range []ast.Operation{ast.Query, ast.Mutation} {
		fields := c.roots[op]
		if len(fields) == 0 {
			continue
		}
		root := &ast.Definition{Kind: ast.Object, Name: rootName(op)}
		for _, rf := range fields {
			root.Fields = append(root.Fields, rf.def)
		}
		doc.Definitions = append(doc.Definitions, root)
	}

	for _, name := range c.typeOrder {
		doc.Definitions = append(doc.Definitions, c.types[name])
	}
	return doc
}

func rootName(op ast.Operation) string {
	if op == ast.Mutation {
		return MutationRoot
	}
	return QueryRoot
}

// fieldSignature renders a field's type, arguments and default for comparison.
func fieldSignature(f *ast.FieldDefinition) string {
	var sb strings.Builder
	sb.WriteString(argumentsSignature(f.Arguments))
	sb.WriteString(": ")
	sb.WriteString(f.Type.String())
	if f.DefaultValue != nil {
		sb.WriteString(" = ")
		sb.WriteString(f.DefaultValue.String())
	}
	return sb.String()
}

func argumentsSignature(args ast.ArgumentDefinitionList) string {
	if len(args) == 0 {
		return ""
	}
	parts := make([]string, 0, len(args))
	for _, a := range args {
		p := a.Name + ": " + a.Type.String()
		if a.DefaultValue != nil {
			p += " = " + a.DefaultValue.String()
		}
		parts = append(parts, p)
	}
	slices.Sort(parts)
	return "(" + strings.Join(parts, ", ") + ")"
}

func cloneDefinition(def *ast.Definition, renames map[string]string) *ast.Definition {
	cp := *def
	cp.Fields = make(ast.FieldList, 0, len(def.Fields))
	for _, f := range def.Fields {
		cp.Fields = append(cp.Fields, cloneField(f, renames))
	}
	cp.Interfaces = slices.Clone(def.Interfaces)
	cp.Types = make([]string, 0, len(def.Types))
	for _, t := range def.Types {
		cp.Types = append(cp.Types, renamed(t, renames))
	}
	cp.EnumValues = slices.Clone(def.EnumValues)
	return &cp
}

func cloneField(f *ast.FieldDefinition, renames map[string]string) *ast.FieldDefinition {
	cp := *f
	cp.Type = cloneType(f.Type, renames)
	cp.Arguments = make(ast.ArgumentDefinitionList, 0, len(f.Arguments))
	for _, a := range f.Arguments {
		arg := *a
		arg.Type = cloneType(a.Type, renames)
		cp.Arguments = append(cp.Arguments, &arg)
	}
	return &cp
}

// cloneType copies t, pointing references to a subgraph's own root types at
// the composed roots.
func cloneType(t *ast.Type, renames map[string]string) *ast.Type {
	if t == nil {
		return nil
	}
	cp := *t
	cp.NamedType = renamed(t.NamedType, renames)
	cp.Elem = cloneType(t.Elem, renames)
	return &cp
}

func renamed(name string, renames map[string]string) string {
	if to, ok := renames[name]; ok {
		return to
	}
	return name
}
