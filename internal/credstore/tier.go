package credstore

import (
	"sync"
)

// Key names are the same in every tier
const (
	KeyToken       = "token"
	KeyTokenExpiry = "token_expiry"
)

// Tier is a flat key-value storage backing one persistence scope
type Tier interface {
	// Get returns value and true if key exists
	Get(key string) (string, bool, error)

	Set(key string, value string) error

	// Delete must not fail if key does not exist
	Delete(key string) error
}

// MemoryTier keeps values in process memory
type MemoryTier struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryTier() *MemoryTier {
	return &MemoryTier{values: make(map[string]string)}
}

func (t *MemoryTier) Get(key string) (string, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	v, ok := t.values[key]
	return v, ok, nil
}

func (t *MemoryTier) Set(key string, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.values[key] = value
	return nil
}

func (t *MemoryTier) Delete(key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.values, key)
	return nil
}
