package gateway

import (
	"bytes"
	"encoding/json"

	"github.com/99designs/gqlgen/graphql/introspection"
	"github.com/vektah/gqlparser/v2/ast"
)

// introObject adapts one gqlgen introspection value to the selection walker
// below. gqlgen's wrappers compute the __Schema/__Type model straight from the
// composed ast.Schema.
type introObject interface {
	typeName() string
	resolve(field string, args argReader) any
}

type argReader func(name string) any

// introspector projects selections over the composed schema.
type introspector struct {
	schema *ast.Schema
	doc    *ast.QueryDocument
	vars   map[string]any
}

// root resolves a local root field.
func (in *introspector) root(rootType string, f *ast.Field) json.RawMessage {
	switch f.Name {
	case "__typename":
		return marshalValue(rootType)
	case "__schema":
		return in.object(&schemaNode{schema: in.schema, s: introspection.WrapSchema(in.schema)}, f.SelectionSet)
	case "__type":
		name, _ := in.args(f)("name").(string)
		def := in.schema.Types[name]
		if def == nil {
			return json.RawMessage("null")
		}
		return in.object(&typeNode{schema: in.schema, t: introspection.WrapTypeFromDef(in.schema, def)}, f.SelectionSet)
	}
	return json.RawMessage("null")
}

func (in *introspector) args(f *ast.Field) argReader {
	return func(name string) any {
		if arg := f.Arguments.ForName(name); arg != nil && arg.Value != nil {
			v, err := arg.Value.Value(in.vars)
			if err == nil {
				return v
			}
		}
		if f.Definition != nil {
			if def := f.Definition.Arguments.ForName(name); def != nil && def.DefaultValue != nil {
				v, _ := def.DefaultValue.Value(nil)
				return v
			}
		}
		return nil
	}
}

func (in *introspector) object(obj introObject, set ast.SelectionSet) json.RawMessage {
	var w objectWriter
	seen := map[string]bool{}
	for _, f := range in.fields(obj.typeName(), set, map[string]bool{}) {
		key := responseKey(f)
		if seen[key] {
			continue
		}
		seen[key] = true

		if f.Name == "__typename" {
			w.field(key, marshalValue(obj.typeName()))
			continue
		}
		w.field(key, in.value(obj.resolve(f.Name, in.args(f)), in.merged(obj.typeName(), key, set)))
	}
	return w.bytes()
}

// merged gathers the sub-selections of every field sharing key.
func (in *introspector) merged(typeName, key string, set ast.SelectionSet) ast.SelectionSet {
	var out ast.SelectionSet
	for _, f := range in.fields(typeName, set, map[string]bool{}) {
		if responseKey(f) == key {
			out = append(out, f.SelectionSet...)
		}
	}
	return out
}

func (in *introspector) fields(typeName string, set ast.SelectionSet, visited map[string]bool) []*ast.Field {
	var out []*ast.Field
	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			if included(s.Directives, in.vars) {
				out = append(out, s)
			}
		case *ast.InlineFragment:
			if included(s.Directives, in.vars) && (s.TypeCondition == "" || s.TypeCondition == typeName) {
				out = append(out, in.fields(typeName, s.SelectionSet, visited)...)
			}
		case *ast.FragmentSpread:
			if visited[s.Name] || !included(s.Directives, in.vars) {
				continue
			}
			visited[s.Name] = true
			frag := in.doc.Fragments.ForName(s.Name)
			if frag != nil && frag.TypeCondition == typeName {
				out = append(out, in.fields(typeName, frag.SelectionSet, visited)...)
			}
		}
	}
	return out
}

func (in *introspector) value(v any, set ast.SelectionSet) json.RawMessage {
	switch v := v.(type) {
	case nil:
		return json.RawMessage("null")
	case introObject:
		return in.object(v, set)
	case []introObject:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.Write(in.object(item, set))
		}
		buf.WriteByte(']')
		return buf.Bytes()
	default:
		return marshalValue(v)
	}
}

func includeDeprecated(args argReader) bool {
	b, _ := args("includeDeprecated").(bool)
	return b
}

// deref turns gqlgen's optional strings into JSON-ready values.
func deref(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

type schemaNode struct {
	schema *ast.Schema
	s      *introspection.Schema
}

func (n *schemaNode) typeName() string { return "__Schema" }

func (n *schemaNode) resolve(field string, _ argReader) any {
	switch field {
	case "types":
		types := n.s.Types()
		out := make([]introObject, 0, len(types))
		for i := range types {
			out = append(out, &typeNode{schema: n.schema, t: &types[i]})
		}
		return out
	case "queryType":
		return typeOf(n.schema, n.s.QueryType())
	case "mutationType":
		return typeOf(n.schema, n.s.MutationType())
	case "subscriptionType":
		return typeOf(n.schema, n.s.SubscriptionType())
	case "directives":
		dirs := n.s.Directives()
		out := make([]introObject, 0, len(dirs))
		for i := range dirs {
			out = append(out, &directiveNode{schema: n.schema, d: &dirs[i]})
		}
		return out
	}
	// description and anything unknown
	return nil
}

// typeOf keeps a missing type a JSON null rather than a typed nil node.
func typeOf(schema *ast.Schema, t *introspection.Type) any {
	if t == nil {
		return nil
	}
	return &typeNode{schema: schema, t: t}
}

func typeNodes(schema *ast.Schema, types []introspection.Type) []introObject {
	out := make([]introObject, 0, len(types))
	for i := range types {
		out = append(out, &typeNode{schema: schema, t: &types[i]})
	}
	return out
}

// typeNode is a named type or a LIST/NON_NULL wrapper. Kind-specific fields are
// null on kinds they do not apply to; gqlgen reports those as empty lists.
type typeNode struct {
	schema *ast.Schema
	t      *introspection.Type
}

func (n *typeNode) typeName() string { return "__Type" }

func (n *typeNode) def() *ast.Definition {
	if name := n.t.Name(); name != nil {
		return n.schema.Types[*name]
	}
	return nil
}

func (n *typeNode) resolve(field string, args argReader) any {
	kind := n.t.Kind()
	switch field {
	case "kind":
		return kind
	case "name":
		return deref(n.t.Name())
	case "description":
		return deref(n.t.Description())
	case "ofType":
		return typeOf(n.schema, n.t.OfType())
	case "specifiedByURL":
		if kind != string(ast.Scalar) {
			return nil
		}
		return deref(n.t.SpecifiedByURL())
	case "fields":
		if kind != string(ast.Object) && kind != string(ast.Interface) {
			return nil
		}
		fields := n.t.Fields(includeDeprecated(args))
		out := make([]introObject, 0, len(fields))
		for i := range fields {
			out = append(out, &fieldNode{schema: n.schema, f: &fields[i]})
		}
		return out
	case "interfaces":
		if kind != string(ast.Object) && kind != string(ast.Interface) {
			return nil
		}
		// gqlgen only lists interfaces of objects; interfaces may implement
		// interfaces too.
		out := []introObject{}
		for _, name := range n.def().Interfaces {
			if iface := n.schema.Types[name]; iface != nil {
				out = append(out, &typeNode{schema: n.schema, t: introspection.WrapTypeFromDef(n.schema, iface)})
			}
		}
		return out
	case "possibleTypes":
		if kind != string(ast.Interface) && kind != string(ast.Union) {
			return nil
		}
		return typeNodes(n.schema, n.t.PossibleTypes())
	case "enumValues":
		if kind != string(ast.Enum) {
			return nil
		}
		values := n.t.EnumValues(includeDeprecated(args))
		out := make([]introObject, 0, len(values))
		for i := range values {
			out = append(out, &enumValueNode{v: &values[i]})
		}
		return out
	case "inputFields":
		if kind != string(ast.InputObject) {
			return nil
		}
		return inputValueNodes(n.schema, n.t.InputFields())
	}
	return nil
}

type fieldNode struct {
	schema *ast.Schema
	f      *introspection.Field
}

func (n *fieldNode) typeName() string { return "__Field" }

func (n *fieldNode) resolve(field string, _ argReader) any {
	switch field {
	case "name":
		return n.f.Name
	case "description":
		return deref(n.f.Description())
	case "args":
		return inputValueNodes(n.schema, n.f.Args)
	case "type":
		return typeOf(n.schema, n.f.Type)
	case "isDeprecated":
		return n.f.IsDeprecated()
	case "deprecationReason":
		return deref(n.f.DeprecationReason())
	}
	return nil
}

func inputValueNodes(schema *ast.Schema, values []introspection.InputValue) []introObject {
	out := make([]introObject, 0, len(values))
	for i := range values {
		out = append(out, &inputValueNode{schema: schema, v: &values[i]})
	}
	return out
}

type inputValueNode struct {
	schema *ast.Schema
	v      *introspection.InputValue
}

func (n *inputValueNode) typeName() string { return "__InputValue" }

func (n *inputValueNode) resolve(field string, _ argReader) any {
	switch field {
	case "name":
		return n.v.Name
	case "description":
		return deref(n.v.Description())
	case "type":
		return typeOf(n.schema, n.v.Type)
	case "defaultValue":
		return deref(n.v.DefaultValue)
	case "isDeprecated":
		return false
	}
	return nil
}

type enumValueNode struct {
	v *introspection.EnumValue
}

func (n *enumValueNode) typeName() string { return "__EnumValue" }

func (n *enumValueNode) resolve(field string, _ argReader) any {
	switch field {
	case "name":
		return n.v.Name
	case "description":
		return deref(n.v.Description())
	case "isDeprecated":
		return n.v.IsDeprecated()
	case "deprecationReason":
		return deref(n.v.DeprecationReason())
	}
	return nil
}

type directiveNode struct {
	schema *ast.Schema
	d      *introspection.Directive
}

func (n *directiveNode) typeName() string { return "__Directive" }

func (n *directiveNode) resolve(field string, _ argReader) any {
	switch field {
	case "name":
		return n.d.Name
	case "description":
		return deref(n.d.Description())
	case "locations":
		return n.d.Locations
	case "args":
		return inputValueNodes(n.schema, n.d.Args)
	case "isRepeatable":
		return n.d.IsRepeatable
	}
	return nil
}
