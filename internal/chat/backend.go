package chat

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Backend is the minimal durable key-value contract the store requires.
// Values are opaque strings; a missing key is not an error.
type Backend interface {
	// Open prepares the backend for use. It is called once by the store's
	// ready gate and may fail if the underlying storage cannot be reached.
	Open(ctx context.Context) error
	// Get returns the value stored at key, and whether anything was stored.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores a value at key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error
}

// MemoryBackend implements Backend with an in-process map. Contents do not
// survive a restart; it is intended for tests and ephemeral sessions.
type MemoryBackend struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: map[string]string{}}
}

func (m *MemoryBackend) Open(_ context.Context) error { return nil }

func (m *MemoryBackend) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryBackend) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// FileBackend implements Backend using the OS file system, one file per key
// under a directory.
type FileBackend struct {
	dir string // The directory keys will be relative to
}

func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{dir: dir}
}

func (fb *FileBackend) Open(_ context.Context) error {
	if err := os.MkdirAll(fb.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}
	return nil
}

func (fb *FileBackend) Get(_ context.Context, key string) (string, bool, error) {
	b, err := os.ReadFile(filepath.Join(fb.dir, key))
	if errors.Is(err, os.ErrNotExist) {
		// The file doesn't exist so nothing is stored at this key
		return "", false, nil
	} else if err != nil {
		return "", false, fmt.Errorf("failed to read file: %w", err)
	}
	return string(b), true, nil
}

func (fb *FileBackend) Set(_ context.Context, key, value string) error {
	// 0600 because one of the keys holds the API credential
	err := os.WriteFile(filepath.Join(fb.dir, key), []byte(value), 0o600)
	if err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
