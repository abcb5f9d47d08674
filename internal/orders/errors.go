package orders

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrInvalidTransition    = errors.New("invalid transition")
	ErrTransitionNotAllowed = errors.New("transition not allowed")
	ErrForbidden            = errors.New("actor may not perform this transition")
	ErrInvalidOrder         = errors.New("invalid order")

	// errStatusConflict is returned by UpdateStatus when the stored status
	// no longer matches the expected one.
	errStatusConflict = errors.New("order status changed concurrently")
)

type InvalidTransitionError struct {
	OrderID string
	From    Status
	To      Status
	Cause   error
}

func (e *InvalidTransitionError) Error() string {
	if e.From == "" {
		return fmt.Sprintf("order %s: cannot transition to %s: %v", e.OrderID, e.To, e.Cause)
	}
	return fmt.Sprintf("order %s: cannot transition %s -> %s: %v", e.OrderID, e.From, e.To, e.Cause)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

func (e *InvalidTransitionError) Unwrap() error { return e.Cause }
