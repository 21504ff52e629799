package tokenstore

import (
	"context"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryBackend keeps slots in process memory. Nothing survives a restart;
// it serves tests and ephemeral runs.
type MemoryBackend struct {
	c *gocache.Cache
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{c: gocache.New(gocache.NoExpiration, 0)}
}

// Load reads the slot for key.
func (m *MemoryBackend) Load(_ context.Context, key string) ([]byte, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	b, _ := v.([]byte)
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// Save writes the slot for key.
func (m *MemoryBackend) Save(_ context.Context, key string, data []byte) error {
	b := make([]byte, len(data))
	copy(b, data)
	m.c.Set(key, b, gocache.NoExpiration)
	return nil
}

// Delete removes the slot for key.
func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.c.Delete(key)
	return nil
}

// Len returns the number of stored slots.
func (m *MemoryBackend) Len() int {
	return m.c.ItemCount()
}
