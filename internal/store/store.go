// Package store provides the durable key/value byte store processors use to
// persist computed outputs between runs.
package store

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

// ErrNotFound is returned by Read when a key has never been written or was deleted.
var ErrNotFound = errors.New("store: key not found")

// Store is a flat key/value byte store. Keys use "/" as separator.
type Store interface {
	// Write stores data under key, replacing any previous value atomically.
	Write(ctx context.Context, key string, data []byte) error

	// Read returns the value stored under key or ErrNotFound.
	Read(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key holds a value.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns all keys starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// CleanKey normalises key and rejects keys escaping the store root.
func CleanKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("store: empty key")
	}
	cleaned := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("store: invalid key %q", key)
	}
	if strings.Contains(key, "..") {
		return "", fmt.Errorf("store: key %q escapes store root", key)
	}
	return cleaned, nil
}

// Memory is an in-memory Store, used in tests and for passive previews.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Write(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), data...)
	return nil
}

func (m *Memory) Read(_ context.Context, key string) ([]byte, error) {
	key, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return append([]byte(nil), data...), nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	key, err := CleanKey(key)
	if err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[key]
	return ok, nil
}

func (m *Memory) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Snapshot returns a copy of every key and value. Tests use it to compare
// persisted state byte for byte.
func (m *Memory) Snapshot() map[string][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]byte, len(m.data))
	for key, value := range m.data {
		out[key] = append([]byte(nil), value...)
	}
	return out
}

type namespaced struct {
	prefix string
	inner  Store
}

// Namespace scopes every key of inner under prefix. Nested namespaces compose.
func Namespace(inner Store, prefix string) Store {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return inner
	}
	if ns, ok := inner.(*namespaced); ok {
		return &namespaced{prefix: ns.prefix + prefix + "/", inner: ns.inner}
	}
	return &namespaced{prefix: prefix + "/", inner: inner}
}

func (n *namespaced) Write(ctx context.Context, key string, data []byte) error {
	return n.inner.Write(ctx, n.prefix+key, data)
}

func (n *namespaced) Read(ctx context.Context, key string) ([]byte, error) {
	return n.inner.Read(ctx, n.prefix+key)
}

func (n *namespaced) Delete(ctx context.Context, key string) error {
	return n.inner.Delete(ctx, n.prefix+key)
}

func (n *namespaced) Exists(ctx context.Context, key string) (bool, error) {
	return n.inner.Exists(ctx, n.prefix+key)
}

func (n *namespaced) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := n.inner.List(ctx, n.prefix+prefix)
	if err != nil {
		return nil, err
	}
	for i, key := range keys {
		keys[i] = strings.TrimPrefix(key, n.prefix)
	}
	return keys, nil
}

// Clear deletes every key visible through s.
func Clear(ctx context.Context, s Store) error {
	keys, err := s.List(ctx, "")
	if err != nil {
		return err
	}
	var errs []error
	for _, key := range keys {
		if err := s.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
