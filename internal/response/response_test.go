package response

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/dalsh/lighthouse/internal/errors"
	"github.com/dalsh/lighthouse/internal/executor"
)

func redactedResult(t *testing.T) *executor.Result {
	t.Helper()
	pipeline, err := errors.NewRegistry().Pipeline([]string{"report", "redact"}, errors.DefaultFormat, zerolog.Nop())
	require.NoError(t, err)

	raw := gqlerror.List{
		&gqlerror.Error{
			Err:     fmt.Errorf("resolver: %w", fmt.Errorf("pgsql timeout")),
			Message: "pgsql timeout",
			Path:    ast.Path{ast.PathName("post")},
		},
	}
	return executor.NewResult(map[string]any{"post": nil}, raw, pipeline)
}

func TestParseFlags(t *testing.T) {
	flags, err := ParseFlags([]string{"raw_message", "trace", "exception"})
	require.NoError(t, err)
	require.Equal(t, AllFlags, flags)

	flags, err = ParseFlags(nil)
	require.NoError(t, err)
	require.Zero(t, flags)

	_, err = ParseFlags([]string{"verbose"})
	require.Error(t, err)
}

func TestFormatWithoutErrors(t *testing.T) {
	result := executor.NewResult(map[string]any{"ok": true}, nil, nil)
	resp := Format(result, true, AllFlags)
	require.Equal(t, map[string]any{"ok": true}, resp.Data)
	require.Empty(t, resp.Errors)
}

func TestGlobalDebugGatesAllFlags(t *testing.T) {
	resp := Format(redactedResult(t), false, AllFlags)

	require.Len(t, resp.Errors, 1)
	require.Equal(t, "Internal server error", resp.Errors[0].Message)
	// All flags are configured, but the global toggle is off.
	require.NotContains(t, resp.Errors[0].Extensions, "debug")
}

func TestDebugFlagsSelectDiagnostics(t *testing.T) {
	resp := Format(redactedResult(t), true, IncludeRawMessage)

	require.Len(t, resp.Errors, 1)
	require.Equal(t, "Internal server error", resp.Errors[0].Message)
	debug := resp.Errors[0].Extensions["debug"].(map[string]any)
	require.Equal(t, "pgsql timeout", debug["rawMessage"])
	require.NotContains(t, debug, "exception")
	require.NotContains(t, debug, "trace")
}

func TestDebugExceptionAndTrace(t *testing.T) {
	resp := Format(redactedResult(t), true, IncludeException|IncludeTrace)

	debug := resp.Errors[0].Extensions["debug"].(map[string]any)
	require.Contains(t, debug["exception"], "resolver: pgsql timeout")
	require.NotEmpty(t, debug["trace"])
}

func TestFormatKeepsPathAndExtensions(t *testing.T) {
	resp := Format(redactedResult(t), false, 0)
	require.Equal(t, []any{ast.PathName("post")}, resp.Errors[0].Path)

	result := executor.NewResult(nil, nil, nil)
	result.Extensions = map[string]any{"tracing": "on"}
	require.Equal(t, map[string]any{"tracing": "on"}, Format(result, false, 0).Extensions)
}
