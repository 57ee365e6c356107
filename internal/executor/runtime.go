package executor

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Runtime is the host integration surface for field resolution, abstract
// type resolution and leaf serialization.
//
// General contract:
//   - Execution is synchronous and depth-first; methods are called one at a
//     time for a single operation, but may be called concurrently across
//     operations. Implementations must be concurrency-safe.
//   - Errors returned from any method become located GraphQL errors. If the
//     field's return type is Non-Null, the null is propagated to the nearest
//     nullable ancestor per the GraphQL spec; sibling fields still resolve
//     (partial results).
//   - Implementations must not mutate source or args values.
type Runtime interface {
	// ResolveField resolves one field value. objectType is the GraphQL
	// parent type name, source the parent value (the request root value for
	// root fields) and args the already-coerced argument map. Returning
	// (nil, nil) produces a GraphQL null for nullable fields.
	ResolveField(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error)

	// ResolveType determines the concrete object type name for a value of
	// an abstract (interface or union) type.
	ResolveType(ctx context.Context, abstractType string, value any) (string, error)

	// SerializeLeaf serializes a scalar or enum value into a JSON-safe Go
	// value.
	SerializeLeaf(ctx context.Context, typeName string, value any) (any, error)
}

// Resolver resolves a single field for the RootRuntime.
type Resolver func(ctx context.Context, source any, args map[string]any) (any, error)

// Typer lets resolver return values name their concrete GraphQL type when
// completed against an abstract type.
type Typer interface {
	GraphQLType() string
}

// RootRuntime is the default Runtime: fields resolve through an explicit
// "Type.field" resolver registry, falling back to map-key and struct-field
// access on the source value.
type RootRuntime struct {
	mu        sync.RWMutex
	resolvers map[string]Resolver
}

// NewRootRuntime creates an empty RootRuntime.
func NewRootRuntime() *RootRuntime {
	return &RootRuntime{resolvers: make(map[string]Resolver)}
}

// SetResolver registers fn for the given object type and field.
func (r *RootRuntime) SetResolver(objectType, field string, fn Resolver) {
	r.mu.Lock()
	r.resolvers[objectType+"."+field] = fn
	r.mu.Unlock()
}

func (r *RootRuntime) ResolveField(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error) {
	r.mu.RLock()
	fn := r.resolvers[objectType+"."+field]
	r.mu.RUnlock()
	if fn != nil {
		return fn(ctx, source, args)
	}
	return defaultFieldValue(source, field)
}

func (r *RootRuntime) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	if t, ok := value.(Typer); ok {
		return t.GraphQLType(), nil
	}
	if m, ok := value.(map[string]any); ok {
		if tn, ok := m["__typename"].(string); ok {
			return tn, nil
		}
	}
	return "", fmt.Errorf("cannot resolve concrete type for abstract type %s", abstractType)
}

func (r *RootRuntime) SerializeLeaf(ctx context.Context, typeName string, value any) (any, error) {
	return serializeLeafValue(typeName, value)
}

// defaultFieldValue resolves a field from the source value itself: a map key
// or an exported struct field with a matching name. A missing property is a
// GraphQL null, not an error.
func defaultFieldValue(source any, field string) (any, error) {
	if source == nil {
		return nil, nil
	}
	if m, ok := source.(map[string]any); ok {
		return m[field], nil
	}
	rv := reflect.ValueOf(source)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, nil
	}
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		if strings.EqualFold(rt.Field(i).Name, field) && rt.Field(i).IsExported() {
			return rv.Field(i).Interface(), nil
		}
	}
	return nil, nil
}

// serializeLeafValue coerces scalar and enum values to JSON-safe Go values.
// Unknown custom scalars pass through untouched.
func serializeLeafValue(typeName string, value any) (any, error) {
	switch typeName {
	case "Int":
		switch v := value.(type) {
		case int, int32, int64:
			return v, nil
		case float64:
			return int64(v), nil
		case int8, int16, uint, uint8, uint16, uint32, uint64:
			return v, nil
		default:
			return nil, fmt.Errorf("cannot serialize %T as Int", value)
		}
	case "Float":
		switch v := value.(type) {
		case float32, float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		default:
			return nil, fmt.Errorf("cannot serialize %T as Float", value)
		}
	case "String", "ID":
		switch v := value.(type) {
		case string:
			return v, nil
		case fmt.Stringer:
			return v.String(), nil
		case int, int64:
			return fmt.Sprintf("%d", v), nil
		default:
			if typeName == "ID" {
				return fmt.Sprintf("%v", v), nil
			}
			return nil, fmt.Errorf("cannot serialize %T as String", value)
		}
	case "Boolean":
		if v, ok := value.(bool); ok {
			return v, nil
		}
		return nil, fmt.Errorf("cannot serialize %T as Boolean", value)
	default:
		// Enum values arrive as their symbolic name; custom scalars are the
		// host's responsibility and pass through.
		return value, nil
	}
}
