package checkout

import (
	"context"
	"sync"
)

// IdempotencyStore remembers which order an Idempotency-Key produced.
type IdempotencyStore interface {
	Lookup(ctx context.Context, userID, key string) (orderID string, found bool, err error)
	Remember(ctx context.Context, userID, key, orderID string) error
}

// MemoryIdempotency is the in-process store used when Redis is not configured.
type MemoryIdempotency struct {
	mu   sync.Mutex
	keys map[[2]string]string
}

func NewMemoryIdempotency() *MemoryIdempotency {
	return &MemoryIdempotency{keys: make(map[[2]string]string)}
}

func (m *MemoryIdempotency) Lookup(ctx context.Context, userID, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.keys[[2]string{userID, key}]
	return id, ok, nil
}

func (m *MemoryIdempotency) Remember(ctx context.Context, userID, key, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := [2]string{userID, key}
	if _, ok := m.keys[k]; !ok {
		m.keys[k] = orderID
	}
	return nil
}
