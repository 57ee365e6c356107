// Package schema assembles the schema document from its textual sources and
// compiles it into the executable form used by validation and execution.
package schema

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dalsh/lighthouse/internal/cache"
	"github.com/dalsh/lighthouse/internal/eventbus"
	"github.com/dalsh/lighthouse/internal/events"
	"github.com/dalsh/lighthouse/internal/language"
)

// Provider owns the process-wide schema state: the assembled document and
// the compiled executable schema. Both are built lazily, at most once per
// process, behind a single mutex so concurrent first callers block on the
// one in-flight build instead of racing.
type Provider struct {
	source   SourceProvider
	bus      *eventbus.Bus
	cache    cache.Cache // nil disables the persistent cache
	cacheKey string
	logger   zerolog.Logger

	mu     sync.Mutex
	doc    *language.SchemaDocument
	schema *language.Schema
}

// Option configures a Provider.
type Option func(*Provider)

// WithCache enables the persistent schema cache under the given key.
func WithCache(c cache.Cache, key string) Option {
	return func(p *Provider) { p.cache = c; p.cacheKey = key }
}

// WithLogger sets the provider logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// NewProvider creates a Provider reading from source and dispatching schema
// build events on bus.
func NewProvider(source SourceProvider, bus *eventbus.Bus, opts ...Option) *Provider {
	p := &Provider{source: source, bus: bus, logger: zerolog.Nop()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// DocumentAST returns the assembled schema document, building it on first
// call and returning the memoized document afterwards. Parse failures and
// persistent-cache failures are fatal; nothing is memoized on failure.
func (p *Provider) DocumentAST(ctx context.Context) (*language.SchemaDocument, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.documentLocked(ctx)
}

func (p *Provider) documentLocked(ctx context.Context) (*language.SchemaDocument, error) {
	if p.doc != nil {
		return p.doc, nil
	}
	start := time.Now()

	if p.cache == nil {
		doc, err := p.build(ctx)
		if err != nil {
			return nil, err
		}
		p.doc = doc
		eventbus.Publish(ctx, p.bus, events.SchemaBuilt{Cached: false, Duration: time.Since(start)})
		return p.doc, nil
	}

	// A cache hit must not re-invoke the source provider or the build
	// events, so the whole build-and-store step lives inside the builder
	// closure. Cache failures propagate fatally rather than falling back to
	// a fresh build, so a broken cache backend cannot hide behind rebuilds.
	var built *language.SchemaDocument
	sdl, err := p.cache.RememberForever(ctx, p.cacheKey, func() (string, error) {
		doc, err := p.build(ctx)
		if err != nil {
			return "", err
		}
		built = doc
		return language.RenderSchemaDocument(doc), nil
	})
	if err != nil {
		return nil, fmt.Errorf("schema cache: %w", err)
	}
	cached := built == nil
	if cached {
		doc, err := language.ParseSchema("cache:"+p.cacheKey, sdl)
		if err != nil {
			return nil, fmt.Errorf("parse cached schema: %w", err)
		}
		built = doc
		p.logger.Debug().Str("key", p.cacheKey).Msg("schema document served from cache")
	}
	p.doc = built
	eventbus.Publish(ctx, p.bus, events.SchemaBuilt{Cached: cached, Duration: time.Since(start)})
	return p.doc, nil
}

// build performs the uncached build-and-store step: fetch the source text,
// gather additional fragments, parse, then let listeners manipulate the
// document in place.
func (p *Provider) build(ctx context.Context) (*language.SchemaDocument, error) {
	src, err := p.source.Schema()
	if err != nil {
		return nil, fmt.Errorf("schema source: %w", err)
	}

	fragments := eventbus.Gather[events.BuildSchemaString, string](ctx, p.bus, events.BuildSchemaString{})
	var blob strings.Builder
	blob.WriteString(src)
	for _, f := range fragments {
		blob.WriteString("\n")
		blob.WriteString(f)
	}

	doc, err := language.ParseSchema("schema", blob.String())
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}

	eventbus.Publish(ctx, p.bus, events.ManipulateAST{Document: doc})
	return doc, nil
}

// ExecutableSchema compiles the schema document exactly once per process and
// memoizes the result. It is never recompiled within a process lifetime;
// schema changes require a restart or an explicit Reset.
func (p *Provider) ExecutableSchema(ctx context.Context) (*language.Schema, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.schema != nil {
		return p.schema, nil
	}
	doc, err := p.documentLocked(ctx)
	if err != nil {
		return nil, err
	}
	sch, err := language.CompileSchema(doc)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	p.schema = sch
	return p.schema, nil
}

// Reset drops the memoized document and executable schema so the next call
// rebuilds them. It does not touch the persistent cache; pair with
// Cache.Forget to force a full rebuild.
func (p *Provider) Reset() {
	p.mu.Lock()
	p.doc = nil
	p.schema = nil
	p.mu.Unlock()
}
