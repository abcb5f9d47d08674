package inventory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ariefcatur/go-shop-orders/internal/catalog"
	"github.com/google/uuid"
)

// StockStore is the row-locked stock counter the memory ledger mutates.
type StockStore interface {
	AdjustStock(ctx context.Context, id string, fn func(p catalog.Product) (int, error)) error
}

type MemoryLedger struct {
	stock StockStore
	now   func() time.Time

	mu           sync.Mutex
	reservations map[string]*Reservation
}

func NewMemoryLedger(stock StockStore) *MemoryLedger {
	return &MemoryLedger{
		stock:        stock,
		now:          func() time.Time { return time.Now().UTC() },
		reservations: make(map[string]*Reservation),
	}
}

func (l *MemoryLedger) Reserve(ctx context.Context, orderID, productID string, qty int) (*Reservation, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	err := l.stock.AdjustStock(ctx, productID, func(p catalog.Product) (int, error) {
		if !p.Active {
			return 0, &catalog.ProductUnavailableError{ProductID: productID}
		}
		if p.Stock < qty {
			return 0, &InsufficientStockError{ProductID: productID, Requested: qty, Available: p.Stock}
		}
		return p.Stock - qty, nil
	})
	if errors.Is(err, catalog.ErrProductNotFound) {
		return nil, &catalog.ProductUnavailableError{ProductID: productID}
	}
	if err != nil {
		return nil, err
	}

	r := &Reservation{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		ProductID: productID,
		Quantity:  qty,
		Status:    StatusHeld,
		CreatedAt: l.now(),
	}
	l.mu.Lock()
	l.reservations[r.ID] = r
	l.mu.Unlock()

	out := *r
	return &out, nil
}

func (l *MemoryLedger) Commit(ctx context.Context, r *Reservation) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	stored, ok := l.reservations[r.ID]
	if !ok || stored.Status != StatusHeld {
		return ErrReservationNotHeld
	}
	stored.Status = StatusCommitted
	r.Status = StatusCommitted
	return nil
}

func (l *MemoryLedger) Release(ctx context.Context, r *Reservation) error {
	l.mu.Lock()
	stored, ok := l.reservations[r.ID]
	if !ok || stored.Status == StatusReleased {
		l.mu.Unlock()
		return nil
	}
	stored.Status = StatusReleased
	l.mu.Unlock()

	r.Status = StatusReleased
	return l.restock(ctx, stored.ProductID, stored.Quantity)
}

func (l *MemoryLedger) ReleaseOrder(ctx context.Context, orderID string) error {
	return l.releaseWhere(ctx, func(r *Reservation) bool {
		return r.OrderID == orderID && r.Status != StatusReleased
	})
}

func (l *MemoryLedger) ReleaseStale(ctx context.Context, cutoff time.Time) (int, error) {
	var n int
	err := l.releaseWhere(ctx, func(r *Reservation) bool {
		if r.Status == StatusHeld && r.CreatedAt.Before(cutoff) {
			n++
			return true
		}
		return false
	})
	return n, err
}

func (l *MemoryLedger) releaseWhere(ctx context.Context, match func(r *Reservation) bool) error {
	l.mu.Lock()
	var picked []Reservation
	for _, r := range l.reservations {
		if match(r) {
			r.Status = StatusReleased
			picked = append(picked, *r)
		}
	}
	l.mu.Unlock()

	var errs []error
	for _, r := range picked {
		errs = append(errs, l.restock(ctx, r.ProductID, r.Quantity))
	}
	return errors.Join(errs...)
}

func (l *MemoryLedger) restock(ctx context.Context, productID string, qty int) error {
	return l.stock.AdjustStock(ctx, productID, func(p catalog.Product) (int, error) {
		return p.Stock + qty, nil
	})
}

var _ Ledger = (*MemoryLedger)(nil)
