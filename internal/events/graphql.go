package events

import (
	"time"

	"github.com/dalsh/lighthouse/internal/language"
)

// StartExecution is published before a query is validated and executed. It
// is a pure hook point; listeners cannot alter the request.
type StartExecution struct {
	Query         string
	OperationName string
}

// ExecutionFinished is published after a query has executed and its
// extensions have been gathered.
type ExecutionFinished struct {
	Query         string
	OperationName string
	ErrorCount    int
	Duration      time.Duration
}

// BuildSchemaString is a gathering dispatch: each listener returns an
// additional schema-definition fragment to append after the main schema
// source, in registration order.
type BuildSchemaString struct{}

// ManipulateAST is published once per schema build, after parsing and before
// the document is memoized. The document is passed by reference and may be
// mutated in place by listeners.
type ManipulateAST struct {
	Document *language.SchemaDocument
}

// BuildExtensions is a gathering dispatch: each listener returns one
// Extension entry to merge into the response extensions map.
type BuildExtensions struct{}

// Extension is a single response-extensions entry contributed by a
// BuildExtensions listener.
type Extension struct {
	Key     string
	Payload any
}

// SchemaBuilt is published after the schema document has been assembled,
// with Cached reporting whether it was served from the persistent cache.
type SchemaBuilt struct {
	Cached   bool
	Duration time.Duration
}
