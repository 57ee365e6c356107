// Package introspection materializes the __schema and __type meta-field
// values from a compiled schema as plain map trees, ready for the executor
// to complete like any other object value.
package introspection

import (
	"sort"

	"github.com/dalsh/lighthouse/internal/language"
)

// Resolver serves introspection values for one compiled schema. Named type
// maps are built once and shared, so cyclic type references are safe.
type Resolver struct {
	schema *language.Schema
	types  map[string]map[string]any
	root   map[string]any
}

// New builds the introspection tree for sch.
func New(sch *language.Schema) *Resolver {
	r := &Resolver{
		schema: sch,
		types:  make(map[string]map[string]any, len(sch.Types)),
	}

	names := make([]string, 0, len(sch.Types))
	for name := range sch.Types {
		names = append(names, name)
	}
	sort.Strings(names)

	// Allocate every named type map before filling any of them, so that
	// mutually recursive type references resolve to the shared maps.
	for _, name := range names {
		r.types[name] = map[string]any{}
	}
	for _, name := range names {
		r.fillType(r.types[name], sch.Types[name])
	}

	allTypes := make([]any, len(names))
	for i, name := range names {
		allTypes[i] = r.types[name]
	}

	directives := make([]any, 0, len(sch.Directives))
	directiveNames := make([]string, 0, len(sch.Directives))
	for name := range sch.Directives {
		directiveNames = append(directiveNames, name)
	}
	sort.Strings(directiveNames)
	for _, name := range directiveNames {
		directives = append(directives, r.directiveValue(sch.Directives[name]))
	}

	r.root = map[string]any{
		"description":      nil,
		"types":            allTypes,
		"queryType":        r.namedRef(sch.Query),
		"mutationType":     r.namedRef(sch.Mutation),
		"subscriptionType": r.namedRef(sch.Subscription),
		"directives":       directives,
	}
	return r
}

// Schema returns the __schema value.
func (r *Resolver) Schema() map[string]any { return r.root }

// Type returns the __type(name:) value, or nil for unknown names.
func (r *Resolver) Type(name string) any {
	if t, ok := r.types[name]; ok {
		return t
	}
	return nil
}

func (r *Resolver) namedRef(def *language.Definition) any {
	if def == nil {
		return nil
	}
	return r.types[def.Name]
}

func (r *Resolver) fillType(target map[string]any, def *language.Definition) {
	target["kind"] = string(def.Kind)
	target["name"] = def.Name
	target["description"] = nullableString(def.Description)
	target["fields"] = nil
	target["interfaces"] = nil
	target["possibleTypes"] = nil
	target["enumValues"] = nil
	target["inputFields"] = nil
	target["ofType"] = nil

	switch def.Kind {
	case language.Object, language.Interface:
		fields := make([]any, 0, len(def.Fields))
		for _, f := range def.Fields {
			fields = append(fields, r.fieldValue(f))
		}
		target["fields"] = fields
		interfaces := make([]any, 0, len(def.Interfaces))
		for _, name := range def.Interfaces {
			interfaces = append(interfaces, r.types[name])
		}
		target["interfaces"] = interfaces
		if def.Kind == language.Interface {
			target["possibleTypes"] = r.possibleTypes(def.Name)
		}
	case language.Union:
		target["possibleTypes"] = r.possibleTypes(def.Name)
	case language.Enum:
		values := make([]any, 0, len(def.EnumValues))
		for _, ev := range def.EnumValues {
			deprecated, reason := deprecation(ev.Directives)
			values = append(values, map[string]any{
				"name":              ev.Name,
				"description":       nullableString(ev.Description),
				"isDeprecated":      deprecated,
				"deprecationReason": reason,
			})
		}
		target["enumValues"] = values
	case language.InputObject:
		inputs := make([]any, 0, len(def.Fields))
		for _, f := range def.Fields {
			inputs = append(inputs, r.inputValue(f.Name, f.Description, f.Type, f.DefaultValue))
		}
		target["inputFields"] = inputs
	}
}

func (r *Resolver) possibleTypes(name string) []any {
	possible := r.schema.PossibleTypes[name]
	out := make([]any, 0, len(possible))
	for _, def := range possible {
		out = append(out, r.types[def.Name])
	}
	return out
}

func (r *Resolver) fieldValue(f *language.FieldDefinition) map[string]any {
	args := make([]any, 0, len(f.Arguments))
	for _, a := range f.Arguments {
		args = append(args, r.inputValue(a.Name, a.Description, a.Type, a.DefaultValue))
	}
	deprecated, reason := deprecation(f.Directives)
	return map[string]any{
		"name":              f.Name,
		"description":       nullableString(f.Description),
		"args":              args,
		"type":              r.typeRef(f.Type),
		"isDeprecated":      deprecated,
		"deprecationReason": reason,
	}
}

func (r *Resolver) inputValue(name, description string, typ *language.Type, defaultValue *language.Value) map[string]any {
	var dv any
	if defaultValue != nil {
		dv = defaultValue.String()
	}
	return map[string]any{
		"name":         name,
		"description":  nullableString(description),
		"type":         r.typeRef(typ),
		"defaultValue": dv,
	}
}

func (r *Resolver) directiveValue(def *language.DirectiveDefinition) map[string]any {
	locations := make([]any, 0, len(def.Locations))
	for _, loc := range def.Locations {
		locations = append(locations, string(loc))
	}
	args := make([]any, 0, len(def.Arguments))
	for _, a := range def.Arguments {
		args = append(args, r.inputValue(a.Name, a.Description, a.Type, a.DefaultValue))
	}
	return map[string]any{
		"name":         def.Name,
		"description":  nullableString(def.Description),
		"locations":    locations,
		"args":         args,
		"isRepeatable": def.IsRepeatable,
	}
}

// typeRef builds the NON_NULL and LIST wrapper chain around the shared named
// type maps.
func (r *Resolver) typeRef(t *language.Type) map[string]any {
	if t.NonNull {
		inner := *t
		inner.NonNull = false
		return wrapperType("NON_NULL", r.typeRef(&inner))
	}
	if t.Elem != nil {
		return wrapperType("LIST", r.typeRef(t.Elem))
	}
	return r.types[t.NamedType]
}

func wrapperType(kind string, ofType map[string]any) map[string]any {
	return map[string]any{
		"kind":          kind,
		"name":          nil,
		"description":   nil,
		"fields":        nil,
		"interfaces":    nil,
		"possibleTypes": nil,
		"enumValues":    nil,
		"inputFields":   nil,
		"ofType":        ofType,
	}
}

func deprecation(directives language.DirectiveList) (bool, any) {
	d := directives.ForName("deprecated")
	if d == nil {
		return false, nil
	}
	reason := "No longer supported"
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		reason = arg.Value.Raw
	}
	return true, reason
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
