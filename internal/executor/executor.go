// Package executor runs one GraphQL request against the executable schema:
// validation with the configured rule set, synchronous depth-first resolver
// execution with partial-result semantics, extension gathering, and
// attachment of the error pipeline as the result's formatting strategy.
package executor

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"

	"github.com/dalsh/lighthouse/internal/config"
	"github.com/dalsh/lighthouse/internal/errors"
	"github.com/dalsh/lighthouse/internal/eventbus"
	"github.com/dalsh/lighthouse/internal/events"
	"github.com/dalsh/lighthouse/internal/introspection"
	"github.com/dalsh/lighthouse/internal/language"
	"github.com/dalsh/lighthouse/internal/schema"
	"github.com/dalsh/lighthouse/internal/validation"
)

// Request is one execution request. Either Query or Document must be set;
// Document wins when both are present.
type Request struct {
	Query         string
	Document      *language.QueryDocument
	OperationName string
	Variables     map[string]any
	RootValue     any
}

// Executor coordinates schema resolution, validation, execution and error
// formatting for incoming requests.
type Executor struct {
	provider *schema.Provider
	holder   *config.Holder
	bus      *eventbus.Bus
	runtime  Runtime
	registry *errors.Registry
	logger   zerolog.Logger

	introMu     sync.Mutex
	intro       *introspection.Resolver
	introSchema *language.Schema
}

// Option configures an Executor.
type Option func(*Executor)

// WithRuntime replaces the default RootRuntime.
func WithRuntime(rt Runtime) Option { return func(e *Executor) { e.runtime = rt } }

// WithRegistry replaces the default error-handler registry.
func WithRegistry(r *errors.Registry) Option { return func(e *Executor) { e.registry = r } }

// WithLogger sets the executor logger.
func WithLogger(l zerolog.Logger) Option { return func(e *Executor) { e.logger = l } }

// New creates an Executor.
func New(provider *schema.Provider, holder *config.Holder, bus *eventbus.Bus, opts ...Option) *Executor {
	e := &Executor{
		provider: provider,
		holder:   holder,
		bus:      bus,
		runtime:  NewRootRuntime(),
		registry: errors.NewRegistry(),
		logger:   zerolog.Nop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Runtime returns the executor's runtime, useful for registering resolvers
// on the default RootRuntime.
func (e *Executor) Runtime() Runtime { return e.runtime }

// Execute runs one request. GraphQL-domain problems (parse, validation and
// resolver errors) are recorded on the returned Result; the error return is
// reserved for fatal conditions: a schema that cannot be built or a
// misconfigured error-handler chain.
func (e *Executor) Execute(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	eventbus.Publish(ctx, e.bus, events.StartExecution{Query: req.Query, OperationName: req.OperationName})

	cfg := e.holder.Get()

	// The handler chain is resolved per execution so it reflects live
	// configuration. A broken chain is a deployment bug and fails loudly.
	pipeline, err := e.registry.Pipeline(cfg.Errors.Handlers, errors.DefaultFormat, e.logger)
	if err != nil {
		return nil, fmt.Errorf("error handler chain: %w", err)
	}

	sch, err := e.provider.ExecutableSchema(ctx)
	if err != nil {
		return nil, err
	}

	doc := req.Document
	if doc == nil {
		parsed, perr := language.ParseQuery(req.Query)
		if perr != nil {
			return e.finish(ctx, req, nil, gqlerror.List{errors.Located(perr, nil)}, pipeline, start), nil
		}
		doc = parsed
	}

	if listErr := validator.ValidateWithRules(sch, doc, validation.Rules(cfg.Security)); len(listErr) > 0 {
		return e.finish(ctx, req, nil, listErr, pipeline, start), nil
	}

	op := doc.Operations.ForName(req.OperationName)
	if op == nil {
		err := gqlerror.Errorf("operation %q not found in document", req.OperationName)
		return e.finish(ctx, req, nil, gqlerror.List{err}, pipeline, start), nil
	}

	variables := req.Variables
	if variables == nil {
		variables = map[string]any{}
	}
	coerced, verr := validator.VariableValues(sch, op, variables)
	if verr != nil {
		return e.finish(ctx, req, nil, gqlerror.List{errors.Located(verr, nil)}, pipeline, start), nil
	}

	var rootDef *language.Definition
	switch op.Operation {
	case language.Query:
		rootDef = sch.Query
	case language.Mutation:
		rootDef = sch.Mutation
	case language.Subscription:
		rootDef = sch.Subscription
	}
	if rootDef == nil {
		err := gqlerror.Errorf("schema does not support %s operations", op.Operation)
		return e.finish(ctx, req, nil, gqlerror.List{err}, pipeline, start), nil
	}

	state := &executionState{
		ctx:       ctx,
		schema:    sch,
		document:  doc,
		variables: coerced,
		runtime:   e.runtime,
		intro:     e.introspectionResolver(sch),
	}
	data := state.executeSelectionSet(rootDef, op.SelectionSet, req.RootValue, nil)
	return e.finish(ctx, req, data, state.errs, pipeline, start), nil
}

// introspectionResolver memoizes the resolver per compiled schema, so a
// provider reset and recompilation yields fresh introspection data.
func (e *Executor) introspectionResolver(sch *language.Schema) *introspection.Resolver {
	e.introMu.Lock()
	defer e.introMu.Unlock()
	if e.introSchema != sch {
		e.intro = introspection.New(sch)
		e.introSchema = sch
	}
	return e.intro
}

func (e *Executor) finish(ctx context.Context, req Request, data map[string]any, raw gqlerror.List, pipeline *errors.Pipeline, start time.Time) *Result {
	res := NewResult(data, raw, pipeline)
	res.Extensions = e.gatherExtensions(ctx)
	eventbus.Publish(ctx, e.bus, events.ExecutionFinished{
		Query:         req.Query,
		OperationName: req.OperationName,
		ErrorCount:    len(raw),
		Duration:      time.Since(start),
	})
	return res
}

// gatherExtensions merges listener-contributed extension entries. Merging is
// additive across distinct keys; on a key collision the last registered
// listener wins and a warning is logged.
func (e *Executor) gatherExtensions(ctx context.Context) map[string]any {
	entries := eventbus.Gather[events.BuildExtensions, events.Extension](ctx, e.bus, events.BuildExtensions{})
	if len(entries) == 0 {
		return nil
	}
	out := make(map[string]any, len(entries))
	for _, entry := range entries {
		if _, dup := out[entry.Key]; dup {
			e.logger.Warn().Str("key", entry.Key).Msg("extension key collision, keeping last value")
		}
		out[entry.Key] = entry.Payload
	}
	return out
}

// ------------------ execution state ------------------

type executionState struct {
	ctx       context.Context
	schema    *language.Schema
	document  *language.QueryDocument
	variables map[string]any
	runtime   Runtime
	intro     *introspection.Resolver
	errs      gqlerror.List
}

func (st *executionState) addError(err error, path language.Path) {
	st.errs = append(st.errs, errors.Located(err, path))
}

func (st *executionState) hasErrorAtPath(path language.Path) bool {
	key := path.String()
	for _, err := range st.errs {
		if err.Path.String() == key {
			return true
		}
	}
	return false
}

// executeSelectionSet resolves the grouped fields of one object value.
// It returns nil when a Non-Null violation must propagate to the parent.
func (st *executionState) executeSelectionSet(objectType *language.Definition, selectionSet language.SelectionSet, source any, path language.Path) map[string]any {
	grouped := collectFields(st, objectType, selectionSet)
	result := make(map[string]any, len(grouped.fields))

	for _, cf := range grouped.orderedFields() {
		field := cf.Fields[0]
		fieldPath := appendPath(path, language.PathName(cf.ResponseName))

		if field.Name == "__typename" {
			result[cf.ResponseName] = objectType.Name
			continue
		}

		fieldDef := st.fieldDefinition(objectType, field)
		if fieldDef == nil {
			st.addError(gqlerror.Errorf("Cannot query field %q on type %q.", field.Name, objectType.Name), fieldPath)
			continue
		}

		completed := st.executeFieldGroup(objectType, fieldDef, cf.Fields, source, fieldPath)

		if fieldDef.Type.NonNull && isNullish(completed) {
			// Propagate the null to the nearest nullable ancestor; at the
			// root there is nowhere left to go.
			if len(path) > 0 {
				return nil
			}
			result[cf.ResponseName] = nil
			continue
		}
		if isNullish(completed) {
			result[cf.ResponseName] = nil
		} else {
			result[cf.ResponseName] = completed
		}
	}
	return result
}

func (st *executionState) fieldDefinition(objectType *language.Definition, field *language.Field) *language.FieldDefinition {
	if field.Definition != nil {
		return field.Definition
	}
	if def := objectType.Fields.ForName(field.Name); def != nil {
		return def
	}
	// Meta fields are valid on the query root even though the type does not
	// declare them.
	if objectType == st.schema.Query {
		switch field.Name {
		case "__schema":
			return &language.FieldDefinition{Name: "__schema", Type: ast.NonNullNamedType("__Schema", nil)}
		case "__type":
			return &language.FieldDefinition{Name: "__type", Type: ast.NamedType("__Type", nil)}
		}
	}
	return nil
}

func (st *executionState) executeFieldGroup(objectType *language.Definition, fieldDef *language.FieldDefinition, fields []*language.Field, source any, path language.Path) any {
	field := fields[0]

	// Introspection meta fields resolve from the compiled schema itself.
	if objectType == st.schema.Query {
		switch field.Name {
		case "__schema":
			return st.completeValue(fieldDef.Type, fields, st.intro.Schema(), path)
		case "__type":
			name, _ := st.argumentValues(field)["name"].(string)
			return st.completeValue(fieldDef.Type, fields, st.intro.Type(name), path)
		}
	}

	value, err := st.runtime.ResolveField(st.ctx, objectType.Name, field.Name, source, st.argumentValues(field))
	if err != nil {
		st.addError(err, path)
		return nil
	}
	return st.completeValue(fieldDef.Type, fields, value, path)
}

func (st *executionState) argumentValues(field *language.Field) map[string]any {
	if field.Definition != nil {
		return field.ArgumentMap(st.variables)
	}
	args := make(map[string]any, len(field.Arguments))
	for _, arg := range field.Arguments {
		if v, err := arg.Value.Value(st.variables); err == nil {
			args[arg.Name] = v
		}
	}
	return args
}

func (st *executionState) completeValue(typ *language.Type, fields []*language.Field, value any, path language.Path) any {
	if isNullish(value) {
		if typ.NonNull && !st.hasErrorAtPath(path) {
			st.addError(gqlerror.Errorf("Cannot return null for non-nullable field %s.", path.String()), path)
		}
		return nil
	}

	if typ.Elem != nil {
		return st.completeListValue(typ, fields, value, path)
	}

	def := st.schema.Types[typ.NamedType]
	if def == nil {
		st.addError(gqlerror.Errorf("Unknown type %q.", typ.NamedType), path)
		return nil
	}

	switch def.Kind {
	case language.Scalar, language.Enum:
		serialized, err := st.runtime.SerializeLeaf(st.ctx, def.Name, value)
		if err != nil {
			st.addError(err, path)
			return nil
		}
		return serialized
	case language.Object:
		return st.executeSelectionSet(def, mergeSelectionSets(fields), value, path)
	case language.Interface, language.Union:
		return st.completeAbstractValue(def, fields, value, path)
	default:
		st.addError(gqlerror.Errorf("Cannot complete value of unexpected kind %s.", def.Kind), path)
		return nil
	}
}

func (st *executionState) completeListValue(listType *language.Type, fields []*language.Field, value any, path language.Path) any {
	var items []any
	if direct, ok := value.([]any); ok {
		items = direct
	} else {
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			st.addError(gqlerror.Errorf("Expected a list value, got %T.", value), path)
			return nil
		}
		items = make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			items[i] = rv.Index(i).Interface()
		}
	}

	completed := make([]any, len(items))
	for i, item := range items {
		p := appendPath(path, language.PathIndex(i))
		v := st.completeValue(listType.Elem, fields, item, p)
		if listType.Elem.NonNull && isNullish(v) {
			// A Non-Null element violation nullifies the whole list; the
			// error is already recorded at the element path.
			return nil
		}
		completed[i] = v
	}
	return completed
}

func (st *executionState) completeAbstractValue(abstractDef *language.Definition, fields []*language.Field, value any, path language.Path) any {
	typeName, err := st.runtime.ResolveType(st.ctx, abstractDef.Name, value)
	if err != nil {
		st.addError(err, path)
		return nil
	}
	concrete := st.schema.Types[typeName]
	if concrete == nil || concrete.Kind != language.Object {
		st.addError(gqlerror.Errorf("Abstract type %s resolved to %q, which is not an object type.", abstractDef.Name, typeName), path)
		return nil
	}
	possible := false
	for _, pt := range st.schema.PossibleTypes[abstractDef.Name] {
		if pt.Name == typeName {
			possible = true
			break
		}
	}
	if !possible {
		st.addError(gqlerror.Errorf("%q is not a possible type of %s.", typeName, abstractDef.Name), path)
		return nil
	}
	return st.executeSelectionSet(concrete, mergeSelectionSets(fields), value, path)
}

func appendPath(path language.Path, elem any) language.Path {
	out := make(language.Path, len(path)+1)
	copy(out, path)
	switch e := elem.(type) {
	case language.PathName:
		out[len(path)] = e
	case language.PathIndex:
		out[len(path)] = e
	}
	return out
}

// isNullish reports nil interfaces and typed nils (pointer, map, slice,
// interface, func, chan).
func isNullish(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
