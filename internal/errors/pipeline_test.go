package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

func rawInternal(msg string) *gqlerror.Error {
	return Located(errors.New(msg), ast.Path{ast.PathName("field")})
}

func TestEmptyChainIsIdentity(t *testing.T) {
	p := NewPipeline(nil, nil)
	in := &gqlerror.Error{Message: "field X failed", Path: ast.Path{ast.PathName("x")}}
	out := p.Format(gqlerror.List{in})
	require.Len(t, out, 1)
	require.Equal(t, "field X failed", out[0].Message)
	require.Equal(t, in.Path, out[0].Path)
}

func TestOrderAndLengthPreserved(t *testing.T) {
	reg := NewRegistry()
	p, err := reg.Pipeline([]string{"category", "redact"}, nil, zerolog.Nop())
	require.NoError(t, err)

	var in gqlerror.List
	for i := 0; i < 5; i++ {
		in = append(in, &gqlerror.Error{Message: fmt.Sprintf("e%d", i)})
	}
	out := p.Format(in)
	require.Len(t, out, len(in))
	for i, e := range out {
		require.Equal(t, fmt.Sprintf("e%d", i), e.Message)
	}
}

func TestHandlersRunInConfiguredOrder(t *testing.T) {
	var seen []string
	stage := func(name string) Handler {
		return HandlerFunc(func(err *gqlerror.Error, next Next) *gqlerror.Error {
			seen = append(seen, name)
			return next(err)
		})
	}
	p := NewPipeline([]Handler{stage("a"), stage("b"), stage("c")}, nil)
	p.Format(gqlerror.List{{Message: "x"}})
	require.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestShortCircuitSkipsLaterStages(t *testing.T) {
	early := HandlerFunc(func(err *gqlerror.Error, next Next) *gqlerror.Error {
		return &gqlerror.Error{Message: "redacted"}
	})
	late := HandlerFunc(func(err *gqlerror.Error, next Next) *gqlerror.Error {
		t.Fatal("stage after a short-circuit must not run")
		return nil
	})
	p := NewPipeline([]Handler{early, late}, nil)
	out := p.Format(gqlerror.List{{Message: "secret"}})
	require.Equal(t, "redacted", out[0].Message)
}

func TestRedactHandlerHidesInternalMessages(t *testing.T) {
	p := NewPipeline([]Handler{NewRedactHandler(zerolog.Nop())}, nil)
	out := p.Format(gqlerror.List{
		rawInternal("pq: connection refused"),
		{Message: "Cannot query field \"nope\".", Rule: "FieldsOnCorrectType"},
	})
	require.Equal(t, "Internal server error", out[0].Message)
	require.Equal(t, "Cannot query field \"nope\".", out[1].Message)
}

func TestRedactKeepsClientAwareMessages(t *testing.T) {
	raw := Located(&ClientError{Msg: "balance too low", Cat: "billing"}, nil)
	p := NewPipeline([]Handler{NewRedactHandler(zerolog.Nop())}, nil)
	out := p.Format(gqlerror.List{raw})
	require.Equal(t, "balance too low", out[0].Message)
}

func TestCategoryHandler(t *testing.T) {
	p := NewPipeline([]Handler{NewCategoryHandler(zerolog.Nop())}, nil)
	out := p.Format(gqlerror.List{
		rawInternal("boom"),
		{Message: "bad query", Rule: "KnownArgumentNames"},
		Located(&ClientError{Msg: "denied", Cat: "authorization"}, nil),
	})
	require.Equal(t, "internal", out[0].Extensions["category"])
	require.Equal(t, "graphql", out[1].Extensions["category"])
	require.Equal(t, "authorization", out[2].Extensions["category"])
}

func TestUnknownHandlerFailsPipelineConstruction(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Pipeline([]string{"report", "nope"}, nil, zerolog.Nop())
	require.ErrorContains(t, err, `unknown error handler "nope"`)
}

func TestClassify(t *testing.T) {
	require.Equal(t, KindGraphQL, Classify(&gqlerror.Error{Message: "m", Rule: "R"}))
	require.Equal(t, KindGraphQL, Classify(&gqlerror.Error{Message: "m"}))
	require.Equal(t, KindInternal, Classify(rawInternal("x")))
	require.Equal(t, KindClient, Classify(Located(&ClientError{Msg: "m"}, nil)))
}
