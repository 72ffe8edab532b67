package schema

import (
	"fmt"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"
)

// IntrospectionQuery asks for everything needed to rebuild a subgraph's SDL.
// It avoids fields added after the 2018 edition (specifiedByURL, isRepeatable,
// includeDeprecated on input values) so that older servers answer it.
const IntrospectionQuery = `query IntrospectionQuery {
  __schema {
    queryType { name }
    mutationType { name }
    subscriptionType { name }
    types { ...FullType }
    directives {
      name
      description
      locations
      args { ...InputValue }
    }
  }
}

fragment FullType on __Type {
  kind
  name
  description
  fields(includeDeprecated: true) {
    name
    description
    args { ...InputValue }
    type { ...TypeRef }
    isDeprecated
    deprecationReason
  }
  inputFields { ...InputValue }
  interfaces { ...TypeRef }
  enumValues(includeDeprecated: true) {
    name
    description
    isDeprecated
    deprecationReason
  }
  possibleTypes { ...TypeRef }
}

fragment InputValue on __InputValue {
  name
  description
  type { ...TypeRef }
  defaultValue
}

fragment TypeRef on __Type {
  kind
  name
  ofType {
    kind
    name
    ofType {
      kind
      name
      ofType {
        kind
        name
        ofType {
          kind
          name
          ofType {
            kind
            name
            ofType {
              kind
              name
              ofType {
                kind
                name
              }
            }
          }
        }
      }
    }
  }
}`

type introspectionResponse struct {
	Data *struct {
		Schema *introspectionSchema `json:"__schema"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type introspectionSchema struct {
	QueryType        *namedRef           `json:"queryType"`
	MutationType     *namedRef           `json:"mutationType"`
	SubscriptionType *namedRef           `json:"subscriptionType"`
	Types            []introspectionType `json:"types"`
	Directives       []directiveType     `json:"directives"`
}

type namedRef struct {
	Name string `json:"name"`
}

type introspectionType struct {
	Kind          string       `json:"kind"`
	Name          string       `json:"name"`
	Description   *string      `json:"description"`
	Fields        []fieldType  `json:"fields"`
	InputFields   []inputValue `json:"inputFields"`
	Interfaces    []typeRef    `json:"interfaces"`
	EnumValues    []enumValue  `json:"enumValues"`
	PossibleTypes []typeRef    `json:"possibleTypes"`
}

type fieldType struct {
	Name              string       `json:"name"`
	Description       *string      `json:"description"`
	Args              []inputValue `json:"args"`
	Type              typeRef      `json:"type"`
	IsDeprecated      bool         `json:"isDeprecated"`
	DeprecationReason *string      `json:"deprecationReason"`
}

type inputValue struct {
	Name         string  `json:"name"`
	Description  *string `json:"description"`
	Type         typeRef `json:"type"`
	DefaultValue *string `json:"defaultValue"`
}

type enumValue struct {
	Name              string  `json:"name"`
	Description       *string `json:"description"`
	IsDeprecated      bool    `json:"isDeprecated"`
	DeprecationReason *string `json:"deprecationReason"`
}

type directiveType struct {
	Name        string       `json:"name"`
	Description *string      `json:"description"`
	Locations   []string     `json:"locations"`
	Args        []inputValue `json:"args"`
}

type typeRef struct {
	Kind   string   `json:"kind"`
	Name   *string  `json:"name"`
	OfType *typeRef `json:"ofType"`
}

// builtins holds the type and directive names every GraphQL schema already has.
var builtins = func() struct{ types, directives map[string]bool } {
	b := struct{ types, directives map[string]bool }{
		types:      map[string]bool{},
		directives: map[string]bool{},
	}
	doc, err := parser.ParseSchema(validator.Prelude)
	if err != nil {
		panic(fmt.Sprintf("parse graphql prelude: %v", err))
	}
	for _, def := range doc.Definitions {
		b.types[def.Name] = true
	}
	for _, dir := range doc.Directives {
		b.directives[dir.Name] = true
	}
	return b
}()

// IsBuiltinType reports whether name is a built-in scalar or an introspection type.
func IsBuiltinType(name string) bool {
	return strings.HasPrefix(name, "__") || builtins.types[name]
}

var kinds = map[string]ast.DefinitionKind{
	"SCALAR":       ast.Scalar,
	"OBJECT":       ast.Object,
	"INTERFACE":    ast.Interface,
	"UNION":        ast.Union,
	"ENUM":         ast.Enum,
	"INPUT_OBJECT": ast.InputObject,
}

// toDocument converts an introspection result into SDL definitions. Built-in
// types and directives are left out; they come from the prelude on reload.
func (s *introspectionSchema) toDocument(source string) (*ast.SchemaDocument, RootTypes, error) {
	if s.QueryType == nil || s.QueryType.Name == "" {
		return nil, RootTypes{}, fmt.Errorf("%w: schema has no query type", ErrInvalidIntrospection)
	}

	roots := RootTypes{Query: s.QueryType.Name}
	if s.MutationType != nil {
		roots.Mutation = s.MutationType.Name
	}
	if s.SubscriptionType != nil {
		roots.Subscription = s.SubscriptionType.Name
	}

	pos := &ast.Position{Src: &ast.Source{Name: source}}
	doc := &ast.SchemaDocument{}

	for _, t := range s.Types {
		if IsBuiltinType(t.Name) {
			continue
		}
		def, err := t.toDefinition(pos)
		if err != nil {
			return nil, RootTypes{}, fmt.Errorf("%w: type %s: %v", ErrInvalidIntrospection, t.Name, err)
		}
		doc.Definitions = append(doc.Definitions, def)
	}

	for _, d := range s.Directives {
		if builtins.directives[d.Name] {
			continue
		}
		args, err := toArgumentDefinitions(d.Args, pos)
		if err != nil {
			return nil, RootTypes{}, fmt.Errorf("%w: directive @%s: %v", ErrInvalidIntrospection, d.Name, err)
		}
		dir := &ast.DirectiveDefinition{
			Description: deref(d.Description),
			Name:        d.Name,
			Arguments:   args,
			Position:    pos,
		}
		for _, loc := range d.Locations {
			dir.Locations = append(dir.Locations, ast.DirectiveLocation(loc))
		}
		doc.Directives = append(doc.Directives, dir)
	}

	return doc, roots, nil
}

func (t introspectionType) toDefinition(pos *ast.Position) (*ast.Definition, error) {
	kind, ok := kinds[t.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown kind %q", t.Kind)
	}

	def := &ast.Definition{
		Kind:        kind,
		Description: deref(t.Description),
		Name:        t.Name,
		Position:    pos,
	}

	switch kind {
	case ast.Object, ast.Interface:
		for _, f := range t.Fields {
			fd, err := f.toFieldDefinition(pos)
			if err != nil {
				return nil, err
			}
			def.Fields = append(def.Fields, fd)
		}
		for _, iface := range t.Interfaces {
			if iface.Name != nil {
				def.Interfaces = append(def.Interfaces, *iface.Name)
			}
		}
	case ast.InputObject:
		for _, iv := range t.InputFields {
			typ, err := iv.Type.astType(pos)
			if err != nil {
				return nil, fmt.Errorf("input field %s: %w", iv.Name, err)
			}
			def.Fields = append(def.Fields, &ast.FieldDefinition{
				Description:  deref(iv.Description),
				Name:         iv.Name,
				Type:         typ,
				DefaultValue: literal(iv.DefaultValue, pos),
				Position:     pos,
			})
		}
	case ast.Union:
		for _, pt := range t.PossibleTypes {
			if pt.Name != nil {
				def.Types = append(def.Types, *pt.Name)
			}
		}
	case ast.Enum:
		for _, ev := range t.EnumValues {
			def.EnumValues = append(def.EnumValues, &ast.EnumValueDefinition{
				Description: deref(ev.Description),
				Name:        ev.Name,
				Directives:  deprecation(ev.IsDeprecated, ev.DeprecationReason, pos),
				Position:    pos,
			})
		}
	}

	return def, nil
}

func (f fieldType) toFieldDefinition(pos *ast.Position) (*ast.FieldDefinition, error) {
	typ, err := f.Type.astType(pos)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", f.Name, err)
	}
	args, err := toArgumentDefinitions(f.Args, pos)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", f.Name, err)
	}
	return &ast.FieldDefinition{
		Description: deref(f.Description),
		Name:        f.Name,
		Arguments:   args,
		Type:        typ,
		Directives:  deprecation(f.IsDeprecated, f.DeprecationReason, pos),
		Position:    pos,
	}, nil
}

func toArgumentDefinitions(in []inputValue, pos *ast.Position) (ast.ArgumentDefinitionList, error) {
	var out ast.ArgumentDefinitionList
	for _, iv := range in {
		typ, err := iv.Type.astType(pos)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", iv.Name, err)
		}
		out = append(out, &ast.ArgumentDefinition{
			Description:  deref(iv.Description),
			Name:         iv.Name,
			DefaultValue: literal(iv.DefaultValue, pos),
			Type:         typ,
			Position:     pos,
		})
	}
	return out, nil
}

func (r *typeRef) astType(pos *ast.Position) (*ast.Type, error) {
	switch r.Kind {
	case "NON_NULL":
		if r.OfType == nil {
			return nil, fmt.Errorf("NON_NULL without ofType")
		}
		inner, err := r.OfType.astType(pos)
		if err != nil {
			return nil, err
		}
		if inner.NonNull {
			return nil, fmt.Errorf("nested NON_NULL")
		}
		inner.NonNull = true
		return inner, nil
	case "LIST":
		if r.OfType == nil {
			return nil, fmt.Errorf("LIST without ofType")
		}
		elem, err := r.OfType.astType(pos)
		if err != nil {
			return nil, err
		}
		return ast.ListType(elem, pos), nil
	default:
		if r.Name == nil || *r.Name == "" {
			return nil, fmt.Errorf("named type reference without a name")
		}
		return ast.NamedType(*r.Name, pos), nil
	}
}

// literal carries an introspected default value through the printer unchanged.
// The value is already GraphQL literal syntax, and EnumValue kind prints Raw verbatim.
func literal(raw *string, pos *ast.Position) *ast.Value {
	if raw == nil {
		return nil
	}
	return &ast.Value{Kind: ast.EnumValue, Raw: *raw, Position: pos}
}

func deprecation(deprecated bool, reason *string, pos *ast.Position) ast.DirectiveList {
	if !deprecated {
		return nil
	}
	dir := &ast.Directive{Name: "deprecated", Position: pos, Location: ast.LocationFieldDefinition}
	if reason != nil && *reason != "" {
		dir.Arguments = ast.ArgumentList{{
			Name:     "reason",
			Value:    &ast.Value{Kind: ast.StringValue, Raw: *reason, Position: pos},
			Position: pos,
		}}
	}
	return ast.DirectiveList{dir}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
