// Package cache provides the persistent remember-forever cache used to keep
// the assembled schema across process restarts. Values are stored until
// explicitly forgotten; there is no TTL.
package cache

import (
	"context"
	"sync"
)

// Cache computes a value at most logically once per key and stores it
// indefinitely. Implementations must be safe for concurrent use and, for
// shared backends, atomic per key: two processes racing on the same key must
// converge on one stored value.
type Cache interface {
	// RememberForever returns the stored value for key, invoking build and
	// persisting its result only when the key is absent. A build or storage
	// failure is returned as-is; nothing is cached on failure.
	RememberForever(ctx context.Context, key string, build func() (string, error)) (string, error)

	// Forget removes the stored value for key. It is the only invalidation
	// mechanism.
	Forget(ctx context.Context, key string) error
}

// Memory is an in-process Cache.
type Memory struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) RememberForever(ctx context.Context, key string, build func() (string, error)) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.values[key]; ok {
		return v, nil
	}
	v, err := build()
	if err != nil {
		return "", err
	}
	m.values[key] = v
	return v, nil
}

func (m *Memory) Forget(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
