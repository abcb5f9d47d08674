// Package inventory holds stock reservations against the catalog counters.
//
// Stock is decremented when a reservation is taken (HELD). Commit marks the
// hold permanent (COMMITTED) and Release returns the quantity to the pool
// exactly once (RELEASED). Releasing a reservation twice, or one the ledger
// never saw, changes nothing.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusHeld      Status = "HELD"
	StatusCommitted Status = "COMMITTED"
	StatusReleased  Status = "RELEASED"
)

type Reservation struct {
	ID        string
	OrderID   string
	ProductID string
	Quantity  int
	Status    Status
	CreatedAt time.Time
}

var (
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrReservationNotHeld = errors.New("reservation is not held")
	ErrInvalidQuantity    = errors.New("reservation quantity must be positive")
)

type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// Ledger is the reservation contract used by checkout and cancellation.
type Ledger interface {
	// Reserve decrements stock for productID by qty as one indivisible step.
	// Fails with *InsufficientStockError or *catalog.ProductUnavailableError.
	Reserve(ctx context.Context, orderID, productID string, qty int) (*Reservation, error)
	// Commit fails with ErrReservationNotHeld unless r is still HELD.
	Commit(ctx context.Context, r *Reservation) error
	Release(ctx context.Context, r *Reservation) error
	// ReleaseOrder releases every reservation of orderID that is not yet released.
	ReleaseOrder(ctx context.Context, orderID string) error
	// ReleaseStale releases HELD reservations created before cutoff and
	// reports how many were released.
	ReleaseStale(ctx context.Context, cutoff time.Time) (int, error)
}
