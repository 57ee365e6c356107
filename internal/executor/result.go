package executor

import (
	"sync"

	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/dalsh/lighthouse/internal/errors"
)

// Result is the outcome of one execution, before client-facing formatting.
// The error pipeline attached at execution time runs lazily, exactly once,
// the first time the errors are requested.
type Result struct {
	Data       map[string]any
	Extensions map[string]any

	raw      gqlerror.List
	pipeline *errors.Pipeline

	once      sync.Once
	formatted gqlerror.List
}

// NewResult builds a result with the given raw errors and formatting
// pipeline.
func NewResult(data map[string]any, raw gqlerror.List, pipeline *errors.Pipeline) *Result {
	return &Result{Data: data, raw: raw, pipeline: pipeline}
}

// RawErrors returns the unformatted errors in resolution order.
func (r *Result) RawErrors() gqlerror.List { return r.raw }

// Errors runs the error pipeline over the raw errors and returns the
// client-facing list, preserving order. The pipeline runs once; later calls
// return the memoized list.
func (r *Result) Errors() gqlerror.List {
	r.once.Do(func() {
		if r.pipeline == nil {
			r.pipeline = errors.NewPipeline(nil, nil)
		}
		r.formatted = r.pipeline.Format(r.raw)
	})
	return r.formatted
}
