// Package response renders execution results into the client-facing
// {data, errors, extensions} structure, with diagnostic detail gated by two
// independent debug toggles.
package response

import (
	"fmt"

	stderrors "errors"

	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/dalsh/lighthouse/internal/executor"
)

// Flags selects which diagnostic fields appear per error when debugging is
// enabled globally.
type Flags uint8

const (
	// IncludeRawMessage adds the unformatted error message, bypassing any
	// redaction the error pipeline applied.
	IncludeRawMessage Flags = 1 << iota
	// IncludeTrace adds the breadcrumb trail of wrapped causes.
	IncludeTrace
	// IncludeException adds the concrete type and value of the underlying
	// cause.
	IncludeException
)

// AllFlags enables every diagnostic field.
const AllFlags = IncludeRawMessage | IncludeTrace | IncludeException

var flagNames = map[string]Flags{
	"raw_message": IncludeRawMessage,
	"trace":       IncludeTrace,
	"exception":   IncludeException,
}

// ParseFlags converts configured flag names into a Flags value. Unknown
// names are rejected.
func ParseFlags(names []string) (Flags, error) {
	var flags Flags
	for _, name := range names {
		f, ok := flagNames[name]
		if !ok {
			return 0, fmt.Errorf("unknown debug flag %q", name)
		}
		flags |= f
	}
	return flags, nil
}

// Response is the serializable GraphQL response envelope.
type Response struct {
	Data       map[string]any `json:"data"`
	Errors     []Error        `json:"errors,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Error is one formatted client-facing error entry.
type Error struct {
	Message    string         `json:"message"`
	Locations  []Location     `json:"locations,omitempty"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Location is a 1-based position in the query source.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Format renders a result. Debug fields appear only when debugEnabled is
// true; the global toggle is a strict prerequisite gate, so configured flags
// alone never expose diagnostics.
func Format(result *executor.Result, debugEnabled bool, flags Flags) *Response {
	formatted := result.Errors()
	raw := result.RawErrors()

	resp := &Response{
		Data:       result.Data,
		Extensions: result.Extensions,
	}
	if len(formatted) == 0 {
		return resp
	}

	resp.Errors = make([]Error, 0, len(formatted))
	for i, gerr := range formatted {
		entry := Error{
			Message:    gerr.Message,
			Extensions: gerr.Extensions,
		}
		for _, loc := range gerr.Locations {
			entry.Locations = append(entry.Locations, Location{Line: loc.Line, Column: loc.Column})
		}
		for _, elem := range gerr.Path {
			entry.Path = append(entry.Path, elem)
		}
		if debugEnabled && flags != 0 {
			// The pipeline preserves order and length, so the raw error at
			// the same index is this entry's unformatted counterpart.
			entry.Extensions = withDebug(entry.Extensions, raw[i], flags)
		}
		resp.Errors = append(resp.Errors, entry)
	}
	return resp
}

func withDebug(extensions map[string]any, raw *gqlerror.Error, flags Flags) map[string]any {
	debug := map[string]any{}
	if flags&IncludeRawMessage != 0 {
		debug["rawMessage"] = raw.Message
	}
	if flags&IncludeTrace != 0 {
		debug["trace"] = causeChain(raw)
	}
	if flags&IncludeException != 0 && raw.Err != nil {
		debug["exception"] = fmt.Sprintf("%T: %v", raw.Err, raw.Err)
	}

	out := make(map[string]any, len(extensions)+1)
	for k, v := range extensions {
		out[k] = v
	}
	out["debug"] = debug
	return out
}

// causeChain walks the wrapped-error chain and records each cause.
func causeChain(err error) []string {
	var chain []string
	for cause := stderrors.Unwrap(err); cause != nil; cause = stderrors.Unwrap(cause) {
		chain = append(chain, fmt.Sprintf("%T: %v", cause, cause))
	}
	return chain
}
