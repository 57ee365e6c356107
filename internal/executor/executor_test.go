package executor

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dalsh/lighthouse/internal/config"
	"github.com/dalsh/lighthouse/internal/eventbus"
	"github.com/dalsh/lighthouse/internal/events"
	"github.com/dalsh/lighthouse/internal/schema"
)

const testSDL = `
interface Node {
  id: ID!
}

union SearchResult = Post | Comment

type Post implements Node {
  id: ID!
  title: String!
  views: Int
  author: Author
}

type Author {
  name: String!
}

type Comment {
  id: ID!
  body: String!
}

type Query {
  post(id: ID!): Post
  posts: [Post!]!
  search(term: String!): [SearchResult!]
  secret: String!
}
`

type testHarness struct {
	bus      *eventbus.Bus
	holder   *config.Holder
	executor *Executor
	runtime  *RootRuntime
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	bus := eventbus.New()
	provider := schema.NewProvider(schema.StringSource(testSDL), bus)
	cfg := config.Default()
	holder := config.NewHolder(cfg, "", zerolog.Nop())
	rt := NewRootRuntime()
	return &testHarness{
		bus:      bus,
		holder:   holder,
		executor: New(provider, holder, bus, WithRuntime(rt)),
		runtime:  rt,
	}
}

func samplePost(id string) map[string]any {
	return map[string]any{
		"id":     id,
		"title":  "Post " + id,
		"views":  42,
		"author": map[string]any{"name": "alice"},
	}
}

func TestExecuteSimpleQuery(t *testing.T) {
	h := newTestHarness(t)
	h.runtime.SetResolver("Query", "post", func(ctx context.Context, source any, args map[string]any) (any, error) {
		return samplePost(args["id"].(string)), nil
	})

	result, err := h.executor.Execute(context.Background(), Request{
		Query:     `query ($id: ID!) { post(id: $id) { id headline: title author { name } } }`,
		Variables: map[string]any{"id": "7"},
	})
	require.NoError(t, err)
	require.Empty(t, result.RawErrors())

	want := map[string]any{
		"post": map[string]any{
			"id":       "7",
			"headline": "Post 7",
			"author":   map[string]any{"name": "alice"},
		},
	}
	if diff := cmp.Diff(want, result.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestExecutePartialResults(t *testing.T) {
	h := newTestHarness(t)
	h.runtime.SetResolver("Query", "post", func(ctx context.Context, source any, args map[string]any) (any, error) {
		return samplePost("1"), nil
	})
	h.runtime.SetResolver("Post", "author", func(ctx context.Context, source any, args map[string]any) (any, error) {
		return nil, fmt.Errorf("author store down")
	})

	result, err := h.executor.Execute(context.Background(), Request{
		Query: `{ post(id: "1") { title author { name } } }`,
	})
	require.NoError(t, err)

	// The nullable author field absorbs the error; siblings still resolve.
	want := map[string]any{
		"post": map[string]any{
			"title":  "Post 1",
			"author": nil,
		},
	}
	if diff := cmp.Diff(want, result.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, result.RawErrors(), 1)
	require.Equal(t, "post.author", result.RawErrors()[0].Path.String())
}

func TestExecuteNonNullPropagation(t *testing.T) {
	h := newTestHarness(t)
	h.runtime.SetResolver("Query", "post", func(ctx context.Context, source any, args map[string]any) (any, error) {
		return map[string]any{"id": "1", "title": nil}, nil
	})

	result, err := h.executor.Execute(context.Background(), Request{
		Query: `{ post(id: "1") { id title } }`,
	})
	require.NoError(t, err)

	// title is String!, so the null bubbles to the nullable post field.
	want := map[string]any{"post": nil}
	if diff := cmp.Diff(want, result.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, result.RawErrors(), 1)
	require.Equal(t, "post.title", result.RawErrors()[0].Path.String())
}

func TestExecuteNonNullPropagationStopsAtRoot(t *testing.T) {
	h := newTestHarness(t)
	h.runtime.SetResolver("Query", "secret", func(ctx context.Context, source any, args map[string]any) (any, error) {
		return nil, fmt.Errorf("forbidden")
	})

	result, err := h.executor.Execute(context.Background(), Request{Query: `{ secret }`})
	require.NoError(t, err)

	want := map[string]any{"secret": nil}
	if diff := cmp.Diff(want, result.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, result.RawErrors(), 1)
}

func TestExecuteNonNullListElement(t *testing.T) {
	h := newTestHarness(t)
	h.runtime.SetResolver("Query", "posts", func(ctx context.Context, source any, args map[string]any) (any, error) {
		return []any{samplePost("1"), nil, samplePost("3")}, nil
	})

	result, err := h.executor.Execute(context.Background(), Request{Query: `{ posts { id } }`})
	require.NoError(t, err)

	// [Post!]! with a null element: the list nullifies, then the Non-Null
	// list itself bubbles the null to the root.
	want := map[string]any{"posts": nil}
	if diff := cmp.Diff(want, result.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, result.RawErrors(), 1)
	require.Equal(t, "posts.1", result.RawErrors()[0].Path.String())
}

func TestExecuteSkipIncludeDirectives(t *testing.T) {
	h := newTestHarness(t)
	h.runtime.SetResolver("Query", "post", func(ctx context.Context, source any, args map[string]any) (any, error) {
		return samplePost("1"), nil
	})

	result, err := h.executor.Execute(context.Background(), Request{
		Query: `query ($yes: Boolean!, $no: Boolean!) {
			post(id: "1") {
				id @include(if: $yes)
				title @skip(if: $yes)
				views @include(if: $no)
			}
		}`,
		Variables: map[string]any{"yes": true, "no": false},
	})
	require.NoError(t, err)
	require.Empty(t, result.RawErrors())

	want := map[string]any{"post": map[string]any{"id": "1"}}
	if diff := cmp.Diff(want, result.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestExecuteUnionFragments(t *testing.T) {
	h := newTestHarness(t)
	h.runtime.SetResolver("Query", "search", func(ctx context.Context, source any, args map[string]any) (any, error) {
		return []any{
			map[string]any{"__typename": "Post", "id": "1", "title": "Post 1"},
			map[string]any{"__typename": "Comment", "id": "c1", "body": "nice"},
		}, nil
	})

	result, err := h.executor.Execute(context.Background(), Request{
		Query: `{
			search(term: "x") {
				__typename
				... on Post { title }
				...commentFields
			}
		}
		fragment commentFields on Comment { body }`,
	})
	require.NoError(t, err)
	require.Empty(t, result.RawErrors())

	want := map[string]any{
		"search": []any{
			map[string]any{"__typename": "Post", "title": "Post 1"},
			map[string]any{"__typename": "Comment", "body": "nice"},
		},
	}
	if diff := cmp.Diff(want, result.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestExecuteValidationFailureSkipsResolvers(t *testing.T) {
	h := newTestHarness(t)
	calls := 0
	h.runtime.SetResolver("Query", "post", func(ctx context.Context, source any, args map[string]any) (any, error) {
		calls++
		return nil, nil
	})

	result, err := h.executor.Execute(context.Background(), Request{
		Query: `{ post(id: "1") { nope } }`,
	})
	require.NoError(t, err)
	require.Nil(t, result.Data)
	require.NotEmpty(t, result.RawErrors())
	require.Zero(t, calls)
}

func TestExecuteDepthLimitFromLiveConfig(t *testing.T) {
	h := newTestHarness(t)
	calls := 0
	h.runtime.SetResolver("Query", "post", func(ctx context.Context, source any, args map[string]any) (any, error) {
		calls++
		return samplePost("1"), nil
	})

	cfg := config.Default()
	cfg.Security.MaxQueryDepth = 1
	h.holder.Set(cfg)

	result, err := h.executor.Execute(context.Background(), Request{
		Query: `{ post(id: "1") { author { name } } }`,
	})
	require.NoError(t, err)
	require.Nil(t, result.Data)
	require.NotEmpty(t, result.RawErrors())
	require.Zero(t, calls)
}

func TestExecuteParseError(t *testing.T) {
	h := newTestHarness(t)
	result, err := h.executor.Execute(context.Background(), Request{Query: `{ post(`})
	require.NoError(t, err)
	require.Nil(t, result.Data)
	require.NotEmpty(t, result.RawErrors())
}

func TestExecuteUnknownOperationName(t *testing.T) {
	h := newTestHarness(t)
	result, err := h.executor.Execute(context.Background(), Request{
		Query:         `query A { secret } query B { secret }`,
		OperationName: "C",
	})
	require.NoError(t, err)
	require.Nil(t, result.Data)
	require.Len(t, result.RawErrors(), 1)
}

func TestExecuteUnknownErrorHandlerIsFatal(t *testing.T) {
	h := newTestHarness(t)
	cfg := config.Default()
	cfg.Errors.Handlers = []string{"report", "nope"}
	h.holder.Set(cfg)

	_, err := h.executor.Execute(context.Background(), Request{Query: `{ secret }`})
	require.Error(t, err)
	require.Contains(t, err.Error(), "nope")
}

func TestExecuteGathersExtensions(t *testing.T) {
	h := newTestHarness(t)
	h.runtime.SetResolver("Query", "secret", func(ctx context.Context, source any, args map[string]any) (any, error) {
		return "s", nil
	})
	eventbus.SubscribeGather(h.bus, func(ctx context.Context, e events.BuildExtensions) events.Extension {
		return events.Extension{Key: "tracing", Payload: map[string]any{"version": 1}}
	})
	eventbus.SubscribeGather(h.bus, func(ctx context.Context, e events.BuildExtensions) events.Extension {
		return events.Extension{Key: "tracing", Payload: map[string]any{"version": 2}}
	})

	result, err := h.executor.Execute(context.Background(), Request{Query: `{ secret }`})
	require.NoError(t, err)

	// Later listeners win on key collisions.
	want := map[string]any{"tracing": map[string]any{"version": 2}}
	if diff := cmp.Diff(want, result.Extensions); diff != "" {
		t.Fatalf("extensions mismatch (-want +got):\n%s", diff)
	}
}

func TestExecuteLifecycleEvents(t *testing.T) {
	h := newTestHarness(t)
	h.runtime.SetResolver("Query", "secret", func(ctx context.Context, source any, args map[string]any) (any, error) {
		return nil, fmt.Errorf("nope")
	})

	var started, finished []string
	eventbus.Subscribe(h.bus, func(ctx context.Context, e events.StartExecution) {
		started = append(started, e.OperationName)
	})
	var errorCount int
	eventbus.Subscribe(h.bus, func(ctx context.Context, e events.ExecutionFinished) {
		finished = append(finished, e.OperationName)
		errorCount = e.ErrorCount
	})

	_, err := h.executor.Execute(context.Background(), Request{
		Query:         `query Leak { secret }`,
		OperationName: "Leak",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Leak"}, started)
	require.Equal(t, []string{"Leak"}, finished)
	require.Equal(t, 1, errorCount)
}

func TestExecuteDeterministicAcrossRuns(t *testing.T) {
	h := newTestHarness(t)
	h.runtime.SetResolver("Query", "post", func(ctx context.Context, source any, args map[string]any) (any, error) {
		return samplePost("1"), nil
	})

	req := Request{Query: `{ post(id: "1") { id title views author { name } } }`}
	first, err := h.executor.Execute(context.Background(), req)
	require.NoError(t, err)
	second, err := h.executor.Execute(context.Background(), req)
	require.NoError(t, err)

	if diff := cmp.Diff(first.Data, second.Data); diff != "" {
		t.Fatalf("runs differ (-first +second):\n%s", diff)
	}
}

func TestExecuteRedactsInternalErrors(t *testing.T) {
	h := newTestHarness(t)
	h.runtime.SetResolver("Query", "secret", func(ctx context.Context, source any, args map[string]any) (any, error) {
		return nil, fmt.Errorf("pgsql: connection refused on 10.0.0.5")
	})

	result, err := h.executor.Execute(context.Background(), Request{Query: `{ secret }`})
	require.NoError(t, err)

	require.Contains(t, result.RawErrors()[0].Message, "connection refused")
	formatted := result.Errors()
	require.Len(t, formatted, 1)
	require.Equal(t, "Internal server error", formatted[0].Message)
}

func TestExecuteTypenameMetaField(t *testing.T) {
	h := newTestHarness(t)
	result, err := h.executor.Execute(context.Background(), Request{Query: `{ __typename }`})
	require.NoError(t, err)
	require.Empty(t, result.RawErrors())
	require.Equal(t, map[string]any{"__typename": "Query"}, result.Data)
}

func TestExecuteIntrospection(t *testing.T) {
	h := newTestHarness(t)
	result, err := h.executor.Execute(context.Background(), Request{
		Query: `{
			__schema { queryType { name } }
			__type(name: "Post") { kind name }
			missing: __type(name: "Nope") { name }
		}`,
	})
	require.NoError(t, err)
	require.Empty(t, result.RawErrors())

	want := map[string]any{
		"__schema": map[string]any{"queryType": map[string]any{"name": "Query"}},
		"__type":   map[string]any{"kind": "OBJECT", "name": "Post"},
		"missing":  nil,
	}
	if diff := cmp.Diff(want, result.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}

type switchableSource struct{ sdl string }

func (s *switchableSource) Schema() (string, error) { return s.sdl, nil }

func TestIntrospectionFollowsSchemaReset(t *testing.T) {
	bus := eventbus.New()
	src := &switchableSource{sdl: `type Query { greeting: String }`}
	provider := schema.NewProvider(src, bus)
	holder := config.NewHolder(config.Default(), "", zerolog.Nop())
	exec := New(provider, holder, bus, WithRuntime(NewRootRuntime()))

	query := `{ __type(name: "Farewell") { name } }`

	result, err := exec.Execute(context.Background(), Request{Query: query})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"__type": nil}, result.Data)

	src.sdl = `type Query { greeting: String } type Farewell { message: String }`
	provider.Reset()

	result, err = exec.Execute(context.Background(), Request{Query: query})
	require.NoError(t, err)
	require.Empty(t, result.RawErrors())
	require.Equal(t, map[string]any{"__type": map[string]any{"name": "Farewell"}}, result.Data)
}

func TestExecuteIntrospectionDisabled(t *testing.T) {
	h := newTestHarness(t)
	cfg := config.Default()
	cfg.Security.DisableIntrospection = true
	h.holder.Set(cfg)

	result, err := h.executor.Execute(context.Background(), Request{Query: `{ __schema { queryType { name } } }`})
	require.NoError(t, err)
	require.Nil(t, result.Data)
	require.NotEmpty(t, result.RawErrors())
}
