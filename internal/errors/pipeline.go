package errors

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Next invokes the remainder of the chain for one error. A handler that does
// not call next short-circuits the chain and its return value is used as the
// final formatted error.
type Next func(*gqlerror.Error) *gqlerror.Error

// Handler is one stage of the per-error chain. It may pass the error on
// unchanged, transform it before passing it on, or short-circuit.
type Handler interface {
	Handle(err *gqlerror.Error, next Next) *gqlerror.Error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(err *gqlerror.Error, next Next) *gqlerror.Error

func (f HandlerFunc) Handle(err *gqlerror.Error, next Next) *gqlerror.Error { return f(err, next) }

// FormatFunc is the terminal stage converting a (possibly handler-modified)
// error into its client-facing shape.
type FormatFunc func(*gqlerror.Error) *gqlerror.Error

// DefaultFormat is the baseline formatter: the identity transform, with an
// empty message normalized so clients never see a blank error.
func DefaultFormat(err *gqlerror.Error) *gqlerror.Error {
	if err.Message == "" {
		err.Message = "Unknown error."
	}
	return err
}

// Factory builds a handler instance for one pipeline.
type Factory func(logger zerolog.Logger) Handler

// Registry maps stable handler identifiers to factories. Handler chains are
// configured as ordered identifier lists and resolved here at pipeline
// construction time.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates a registry pre-populated with the built-in handlers.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("report", NewReportHandler)
	r.Register("redact", NewRedactHandler)
	r.Register("category", NewCategoryHandler)
	return r
}

// Register adds or replaces a handler factory under name.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Pipeline resolves the configured identifier chain into a runnable
// pipeline. An unknown identifier is a deployment bug and fails the whole
// construction rather than being skipped.
func (r *Registry) Pipeline(names []string, format FormatFunc, logger zerolog.Logger) (*Pipeline, error) {
	if format == nil {
		format = DefaultFormat
	}
	handlers := make([]Handler, 0, len(names))
	for _, name := range names {
		f, ok := r.factories[name]
		if !ok {
			return nil, fmt.Errorf("unknown error handler %q", name)
		}
		handlers = append(handlers, f(logger))
	}
	return &Pipeline{handlers: handlers, format: format}, nil
}

// Pipeline routes each raw error independently through the handler chain and
// the terminal format step. It performs no logging itself.
type Pipeline struct {
	handlers []Handler
	format   FormatFunc
}

// NewPipeline builds a pipeline from already-constructed handlers.
func NewPipeline(handlers []Handler, format FormatFunc) *Pipeline {
	if format == nil {
		format = DefaultFormat
	}
	return &Pipeline{handlers: handlers, format: format}
}

// Format runs every error through the chain, preserving input order. One
// error in, one formatted error out.
func (p *Pipeline) Format(errs gqlerror.List) gqlerror.List {
	if len(errs) == 0 {
		return nil
	}
	out := make(gqlerror.List, 0, len(errs))
	for _, err := range errs {
		out = append(out, p.formatOne(err))
	}
	return out
}

// formatOne hands the chain a private copy, so handlers may mutate freely
// while the raw error stays available for debug formatting.
func (p *Pipeline) formatOne(raw *gqlerror.Error) *gqlerror.Error {
	err := cloneError(raw)
	var run func(i int, err *gqlerror.Error) *gqlerror.Error
	run = func(i int, err *gqlerror.Error) *gqlerror.Error {
		if i >= len(p.handlers) {
			return p.format(err)
		}
		return p.handlers[i].Handle(err, func(e *gqlerror.Error) *gqlerror.Error {
			return run(i+1, e)
		})
	}
	return run(0, err)
}

func cloneError(err *gqlerror.Error) *gqlerror.Error {
	cp := *err
	if err.Extensions != nil {
		ext := make(map[string]any, len(err.Extensions))
		for k, v := range err.Extensions {
			ext[k] = v
		}
		cp.Extensions = ext
	}
	return &cp
}
