package orders

import "github.com/ariefcatur/go-shop-orders/internal/auth"

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:    {StatusProcessing: true, StatusCancelled: true},
	StatusProcessing: {StatusShipped: true, StatusCancelled: true},
	StatusShipped:    {StatusDelivered: true},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// canDrive reports whether actor may move order o to status to.
// Fulfilment steps need orders:fulfil. Cancellation is open to fulfilment
// staff and to the owner holding orders:cancel_own.
func canDrive(actor auth.Principal, o *Order, to Status) bool {
	if actor.Can(auth.CapFulfilOrders) {
		return true
	}
	return to == StatusCancelled && actor.Owns(o.UserID) && actor.Can(auth.CapCancelOwnOrder)
}

func canView(actor auth.Principal, o *Order) bool {
	return actor.Owns(o.UserID) || actor.Can(auth.CapViewAnyOrder)
}
