package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lighthouse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "schema:\n  sdl: \"type Query { hello: String }\"\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, 10*time.Second, cfg.Server.Timeout)
	require.Equal(t, []string{"report", "redact"}, cfg.Errors.Handlers)
	require.Equal(t, "lighthouse:schema", cfg.Cache.Key)
	require.False(t, cfg.Cache.Enabled)
}

func TestLoadFull(t *testing.T) {
	path := writeConfig(t, `
schema:
  path: schema.graphql
cache:
  enabled: true
  key: "app:schema"
  path: cache.db
security:
  max_query_depth: 15
  max_query_complexity: 200
  disable_introspection: true
debug:
  enabled: true
  flags: [raw_message, trace]
errors:
  handlers: [report, category, redact]
server:
  addr: ":4000"
  pretty: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 15, cfg.Security.MaxQueryDepth)
	require.Equal(t, 200, cfg.Security.MaxQueryComplexity)
	require.True(t, cfg.Security.DisableIntrospection)
	require.Equal(t, []string{"report", "category", "redact"}, cfg.Errors.Handlers)
	require.Equal(t, []string{"raw_message", "trace"}, cfg.Debug.Flags)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing schema", "server:\n  addr: \":8080\"\n"},
		{"both schema sources", "schema:\n  path: a.graphql\n  sdl: \"type Query { a: Int }\"\n"},
		{"cache without path", "schema:\n  sdl: \"type Query { a: Int }\"\ncache:\n  enabled: true\n"},
		{"unknown debug flag", "schema:\n  sdl: \"type Query { a: Int }\"\ndebug:\n  flags: [bogus]\n"},
		{"negative depth", "schema:\n  sdl: \"type Query { a: Int }\"\nsecurity:\n  max_query_depth: -1\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			require.Error(t, err)
		})
	}
}

func TestHolderReloadReflectsChanges(t *testing.T) {
	path := writeConfig(t, "schema:\n  sdl: \"type Query { hello: String }\"\nsecurity:\n  max_query_depth: 3\n")
	h, err := LoadHolder(path, zerolog.Nop())
	require.NoError(t, err)
	defer h.Close()
	require.Equal(t, 3, h.Get().Security.MaxQueryDepth)

	require.NoError(t, os.WriteFile(path, []byte("schema:\n  sdl: \"type Query { hello: String }\"\nsecurity:\n  max_query_depth: 7\n"), 0644))
	require.NoError(t, h.Reload())
	require.Equal(t, 7, h.Get().Security.MaxQueryDepth)
}

func TestHolderReloadKeepsOldConfigOnError(t *testing.T) {
	path := writeConfig(t, "schema:\n  sdl: \"type Query { hello: String }\"\n")
	h, err := LoadHolder(path, zerolog.Nop())
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, os.WriteFile(path, []byte(":::not yaml"), 0644))
	require.Error(t, h.Reload())
	require.Equal(t, "type Query { hello: String }", h.Get().Schema.SDL)
}
