// Package lighthouse assembles the GraphQL request-execution engine: lazily
// cached schema assembly, configurable validation, synchronous execution
// with partial results, an ordered error pipeline and debug-aware response
// formatting, all wired over an explicit event bus.
package lighthouse

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dalsh/lighthouse/internal/cache"
	"github.com/dalsh/lighthouse/internal/config"
	"github.com/dalsh/lighthouse/internal/errors"
	"github.com/dalsh/lighthouse/internal/eventbus"
	"github.com/dalsh/lighthouse/internal/executor"
	"github.com/dalsh/lighthouse/internal/language"
	"github.com/dalsh/lighthouse/internal/response"
	"github.com/dalsh/lighthouse/internal/schema"
	"github.com/dalsh/lighthouse/internal/server"
)

// Re-exported request and result types, so embedders do not need to import
// internal packages.
type (
	Request  = executor.Request
	Result   = executor.Result
	Response = response.Response
	Runtime  = executor.Runtime
	Resolver = executor.Resolver
)

// Lighthouse is one engine instance. Schema state is built lazily and shared
// by all requests for the life of the instance.
type Lighthouse struct {
	bus      *eventbus.Bus
	holder   *config.Holder
	provider *schema.Provider
	executor *executor.Executor
	runtime  *executor.RootRuntime
	logger   zerolog.Logger

	sqlite *cache.SQLite
}

// Option configures a Lighthouse instance.
type Option func(*options)

type options struct {
	logger   zerolog.Logger
	source   schema.SourceProvider
	cache    cache.Cache
	runtime  executor.Runtime
	registry *errors.Registry
}

// WithLogger sets the logger used across the engine.
func WithLogger(l zerolog.Logger) Option { return func(o *options) { o.logger = l } }

// WithSource overrides the schema source derived from configuration.
func WithSource(s schema.SourceProvider) Option { return func(o *options) { o.source = s } }

// WithCache overrides the persistent schema cache derived from
// configuration.
func WithCache(c cache.Cache) Option { return func(o *options) { o.cache = c } }

// WithRuntime replaces the default resolver runtime.
func WithRuntime(rt executor.Runtime) Option { return func(o *options) { o.runtime = rt } }

// WithErrorRegistry replaces the default error-handler registry.
func WithErrorRegistry(r *errors.Registry) Option { return func(o *options) { o.registry = r } }

// New builds an engine around the configuration in holder.
func New(holder *config.Holder, opts ...Option) (*Lighthouse, error) {
	cfg := holder.Get()
	o := options{logger: zerolog.Nop()}
	for _, f := range opts {
		f(&o)
	}

	// A source override satisfies the schema-source requirement; every
	// other validation still applies.
	if o.source != nil {
		if err := cfg.ValidateWithoutSchema(); err != nil {
			return nil, err
		}
	} else if err := cfg.Validate(); err != nil {
		return nil, err
	}

	lh := &Lighthouse{
		bus:    eventbus.New(),
		holder: holder,
		logger: o.logger,
	}

	source := o.source
	if source == nil {
		switch {
		case cfg.Schema.SDL != "":
			source = schema.StringSource(cfg.Schema.SDL)
		case cfg.Schema.Path != "":
			source = schema.FileSource{Path: cfg.Schema.Path}
		default:
			return nil, fmt.Errorf("no schema source configured")
		}
	}

	providerOpts := []schema.Option{schema.WithLogger(o.logger)}
	if store := o.cache; store != nil {
		providerOpts = append(providerOpts, schema.WithCache(store, cfg.Cache.Key))
	} else if cfg.Cache.Enabled {
		sqlite, err := cache.OpenSQLite(cfg.Cache.Path)
		if err != nil {
			return nil, fmt.Errorf("open schema cache: %w", err)
		}
		lh.sqlite = sqlite
		providerOpts = append(providerOpts, schema.WithCache(sqlite, cfg.Cache.Key))
	}
	lh.provider = schema.NewProvider(source, lh.bus, providerOpts...)

	execOpts := []executor.Option{executor.WithLogger(o.logger)}
	if o.runtime != nil {
		execOpts = append(execOpts, executor.WithRuntime(o.runtime))
	} else {
		lh.runtime = executor.NewRootRuntime()
		execOpts = append(execOpts, executor.WithRuntime(lh.runtime))
	}
	if o.registry != nil {
		execOpts = append(execOpts, executor.WithRegistry(o.registry))
	}
	lh.executor = executor.New(lh.provider, holder, lh.bus, execOpts...)
	return lh, nil
}

// NewFromConfig is a convenience for programmatic embedding without a
// configuration file.
func NewFromConfig(cfg *config.Config, opts ...Option) (*Lighthouse, error) {
	return New(config.NewHolder(cfg, "", zerolog.Nop()), opts...)
}

// Bus exposes the event bus for registering schema and lifecycle listeners.
func (lh *Lighthouse) Bus() *eventbus.Bus { return lh.bus }

// SetResolver registers a resolver on the default runtime. It panics when a
// custom Runtime was supplied, since resolver registration is then the
// embedder's concern.
func (lh *Lighthouse) SetResolver(objectType, field string, fn Resolver) {
	if lh.runtime == nil {
		panic("lighthouse: SetResolver requires the default runtime")
	}
	lh.runtime.SetResolver(objectType, field, fn)
}

// ExecuteRequest is the primary entry point: it executes the request and
// renders the client-facing response. GraphQL-domain problems land in the
// response error list; the error return carries only fatal conditions.
func (lh *Lighthouse) ExecuteRequest(ctx context.Context, req Request) (*Response, error) {
	result, err := lh.executor.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	cfg := lh.holder.Get()
	flags, ferr := response.ParseFlags(cfg.Debug.Flags)
	if ferr != nil {
		lh.logger.Warn().Err(ferr).Msg("ignoring invalid debug flags")
	}
	return response.Format(result, cfg.Debug.Enabled, flags), nil
}

// ExecuteQuery is the lower-level entry point returning the pre-formatting
// result object.
func (lh *Lighthouse) ExecuteQuery(ctx context.Context, query string, variables map[string]any, rootValue any, operationName string) (*Result, error) {
	return lh.executor.Execute(ctx, Request{
		Query:         query,
		Variables:     variables,
		RootValue:     rootValue,
		OperationName: operationName,
	})
}

// ExecutableSchema returns the compiled schema, building it on first use.
func (lh *Lighthouse) ExecutableSchema(ctx context.Context) (*language.Schema, error) {
	return lh.provider.ExecutableSchema(ctx)
}

// DocumentAST returns the assembled schema document, building it on first
// use.
func (lh *Lighthouse) DocumentAST(ctx context.Context) (*language.SchemaDocument, error) {
	return lh.provider.DocumentAST(ctx)
}

// Handler returns an http.Handler serving the GraphQL endpoint.
func (lh *Lighthouse) Handler() http.Handler {
	return server.New(lh.executor, lh.holder, lh.bus, lh.logger)
}

// Close releases resources held by the engine.
func (lh *Lighthouse) Close() error {
	if lh.sqlite != nil {
		return lh.sqlite.Close()
	}
	return nil
}
