package cart

import (
	"context"
	"sync"
)

type MemoryStore struct {
	mu    sync.Mutex
	carts map[string][]Line
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: make(map[string][]Line)}
}

func (s *MemoryStore) Lines(ctx context.Context, userID string) ([]Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Line(nil), s.carts[userID]...), nil
}

func (s *MemoryStore) Merge(ctx context.Context, userID, productID string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := s.carts[userID]
	for i := range lines {
		if lines[i].ProductID != productID {
			continue
		}
		next := lines[i].Quantity + delta
		if next <= 0 {
			return 0, &InvalidQuantityError{ProductID: productID, Quantity: next}
		}
		lines[i].Quantity = next
		return next, nil
	}
	if delta <= 0 {
		return 0, &InvalidQuantityError{ProductID: productID, Quantity: delta}
	}
	s.carts[userID] = append(lines, Line{ProductID: productID, Quantity: delta})
	return delta, nil
}

func (s *MemoryStore) Remove(ctx context.Context, userID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := s.carts[userID]
	for i := range lines {
		if lines[i].ProductID == productID {
			s.carts[userID] = append(lines[:i:i], lines[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) Take(ctx context.Context, userID string, lines []Line) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	taken := make(map[string]int, len(lines))
	for _, l := range lines {
		taken[l.ProductID] += l.Quantity
	}
	kept := s.carts[userID][:0:0]
	for _, l := range s.carts[userID] {
		l.Quantity -= taken[l.ProductID]
		if l.Quantity > 0 {
			kept = append(kept, l)
		}
	}
	if len(kept) == 0 {
		delete(s.carts, userID)
		return nil
	}
	s.carts[userID] = kept
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, userID)
	return nil
}

var _ Store = (*MemoryStore)(nil)
