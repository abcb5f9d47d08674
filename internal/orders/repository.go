package orders

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type Repository interface {
	Insert(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// ListByUser returns the user's orders newest first and the total count.
	ListByUser(ctx context.Context, userID string, offset, limit int) ([]*Order, int, error)
	// UpdateStatus moves id from one status to another only if it is still
	// in from.
	UpdateStatus(ctx context.Context, id string, from, to Status, at time.Time) error
}

type MemoryRepository struct {
	mu     sync.RWMutex
	orders map[string]*Order
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{orders: make(map[string]*Order)}
}

func (r *MemoryRepository) Insert(ctx context.Context, o *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orders[o.ID]; exists {
		return fmt.Errorf("%w: order %s already exists", ErrInvalidOrder, o.ID)
	}
	r.orders[o.ID] = o.clone()
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return o.clone(), nil
}

func (r *MemoryRepository) ListByUser(ctx context.Context, userID string, offset, limit int) ([]*Order, int, error) {
	r.mu.RLock()
	var mine []*Order
	for _, o := range r.orders {
		if o.UserID == userID {
			mine = append(mine, o.clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(mine, func(i, j int) bool {
		if !mine[i].CreatedAt.Equal(mine[j].CreatedAt) {
			return mine[i].CreatedAt.After(mine[j].CreatedAt)
		}
		return mine[i].ID > mine[j].ID
	})
	total := len(mine)
	if offset >= total {
		return []*Order{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return mine[offset:end], total, nil
}

func (r *MemoryRepository) UpdateStatus(ctx context.Context, id string, from, to Status, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	if o.Status != from {
		return errStatusConflict
	}
	o.Status = to
	o.UpdatedAt = at
	return nil
}

var _ Repository = (*MemoryRepository)(nil)
