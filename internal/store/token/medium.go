package token

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ErrNotFound reports that a medium holds no value for a key.
var ErrNotFound = errors.New("token not found")

// IsNotFound reports whether err means "no value stored".
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// MemoryMedium keeps values in a map. It never fails.
type MemoryMedium struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryMedium returns an empty MemoryMedium.
func NewMemoryMedium() *MemoryMedium {
	return &MemoryMedium{values: make(map[string]string)}
}

func (m *MemoryMedium) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (m *MemoryMedium) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
	return nil
}

func (m *MemoryMedium) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.values, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryMedium) Close() error { return nil }
