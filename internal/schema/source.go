package schema

import (
	"fmt"
	"os"
)

// SourceProvider supplies the main schema-definition text. Implementations
// must be deterministic for a given deployment state.
type SourceProvider interface {
	Schema() (string, error)
}

// FileSource reads the schema from a file on disk.
type FileSource struct {
	Path string
}

func (s FileSource) Schema() (string, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return "", fmt.Errorf("read schema file: %w", err)
	}
	return string(data), nil
}

// StringSource serves a fixed schema string.
type StringSource string

func (s StringSource) Schema() (string, error) { return string(s), nil }
