package archive

import (
	"fmt"
	"io"
	"sync"

	"facemark/internal/attend"
)

// MemoryArchiver is an in-memory implementation of the Archiver
// interface, useful for testing push logic without touching disk.
// This implementation is safe for concurrent use.
type MemoryArchiver struct {
	objects map[string][]byte
	mu      sync.RWMutex
}

// NewMemoryArchiver creates a new in-memory archiver.
func NewMemoryArchiver() *MemoryArchiver {
	return &MemoryArchiver{objects: make(map[string][]byte)}
}

// Put stores one object under the given key, overwriting any previous
// version.
func (m *MemoryArchiver) Put(key string, r io.Reader, size int64) error {
	if err := validateKey(key); err != nil {
		return err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read object: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

// ValidateSetup always succeeds for the in-memory archiver.
func (m *MemoryArchiver) ValidateSetup() error {
	return nil
}

// Object returns a stored object and whether it exists.
func (m *MemoryArchiver) Object(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	return data, ok
}

// Len returns the number of stored objects.
func (m *MemoryArchiver) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// Compile-time check that MemoryArchiver implements the Archiver interface
var _ attend.Archiver = (*MemoryArchiver)(nil)
