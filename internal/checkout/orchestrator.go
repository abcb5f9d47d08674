// Package checkout turns a user's cart into a committed order or leaves the
// system exactly as it was.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ariefcatur/go-shop-orders/internal/auth"
	"github.com/ariefcatur/go-shop-orders/internal/cart"
	"github.com/ariefcatur/go-shop-orders/internal/inventory"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/ariefcatur/go-shop-orders/internal/pricing"
	"github.com/ariefcatur/go-shop-orders/internal/txn"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrEmptyCart = errors.New("cart is empty")

// finalizeTimeout bounds the detached work that must not stop halfway:
// the commit/insert/clear transaction and compensation.
const finalizeTimeout = 10 * time.Second

type Carts interface {
	GetCart(ctx context.Context, userID string) (*cart.Cart, error)
	ClearOrdered(ctx context.Context, userID string, ordered []cart.Line) error
}

type Pricer interface {
	Price(ctx context.Context, c *cart.Cart) (*pricing.Quote, error)
}

type Orders interface {
	Create(ctx context.Context, id, userID string, lines []orders.Line, total decimal.Decimal, addr *orders.Address) (*orders.Order, error)
	Get(ctx context.Context, id string, actor auth.Principal) (*orders.Order, error)
	PublishPlaced(ctx context.Context, o *orders.Order)
}

type Deps struct {
	Carts   Carts
	Pricer  Pricer
	Ledger  inventory.Ledger
	Orders  Orders
	Scope   txn.Scope
	Idem    IdempotencyStore
	Timeout time.Duration
	Logger  *slog.Logger
}

type Orchestrator struct {
	carts   Carts
	pricer  Pricer
	ledger  inventory.Ledger
	orders  Orders
	scope   txn.Scope
	idem    IdempotencyStore
	locks   *UserLocks
	timeout time.Duration
	log     *slog.Logger
	tracer  trace.Tracer
	newID   func() string
}

func New(d Deps) *Orchestrator {
	o := &Orchestrator{
		carts:   d.Carts,
		pricer:  d.Pricer,
		ledger:  d.Ledger,
		orders:  d.Orders,
		scope:   d.Scope,
		idem:    d.Idem,
		locks:   NewUserLocks(),
		timeout: d.Timeout,
		log:     d.Logger,
		tracer:  otel.Tracer("github.com/ariefcatur/go-shop-orders/internal/checkout"),
		newID:   uuid.NewString,
	}
	if o.scope == nil {
		o.scope = txn.Direct{}
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	o.log = o.log.With("component", "checkout")
	return o
}

type Request struct {
	UserID          string
	ShippingAddress *orders.Address
	IdempotencyKey  string
}

// Result carries the placed order. Replayed is set when an earlier attempt
// with the same idempotency key already produced it.
type Result struct {
	Order    *orders.Order
	Replayed bool
}

// Checkout prices the user's cart, reserves stock for every line and
// persists a pending order. On failure every reservation taken by this
// attempt is released and no order exists.
func (o *Orchestrator) Checkout(ctx context.Context, req Request) (*Result, error) {
	ctx, span := o.tracer.Start(ctx, "checkout.Checkout", trace.WithAttributes(attribute.String("user.id", req.UserID)))
	defer span.End()

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	unlock, err := o.locks.Lock(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("wait for checkout lock: %w", err)
	}
	defer unlock()

	if prev := o.replay(ctx, req); prev != nil {
		span.SetAttributes(attribute.Bool("checkout.replayed", true))
		return &Result{Order: prev, Replayed: true}, nil
	}

	placed, err := o.place(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "checkout failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", placed.ID))

	if req.IdempotencyKey != "" && o.idem != nil {
		if err := o.idem.Remember(ctx, req.UserID, req.IdempotencyKey, placed.ID); err != nil {
			o.log.WarnContext(ctx, "remember idempotency key", "order_id", placed.ID, "err", err)
		}
	}
	o.orders.PublishPlaced(ctx, placed)
	o.log.InfoContext(ctx, "order placed", "order_id", placed.ID, "user_id", req.UserID, "total", placed.Total.StringFixed(2))
	return &Result{Order: placed}, nil
}

func (o *Orchestrator) replay(ctx context.Context, req Request) *orders.Order {
	if req.IdempotencyKey == "" || o.idem == nil {
		return nil
	}
	id, found, err := o.idem.Lookup(ctx, req.UserID, req.IdempotencyKey)
	if err != nil {
		o.log.WarnContext(ctx, "idempotency lookup", "err", err)
		return nil
	}
	if !found {
		return nil
	}
	prev, err := o.orders.Get(ctx, id, auth.Principal{UserID: req.UserID})
	if err != nil {
		o.log.WarnContext(ctx, "idempotent order not loadable", "order_id", id, "err", err)
		return nil
	}
	return prev
}

func (o *Orchestrator) place(ctx context.Context, req Request) (*orders.Order, error) {
	c, err := o.carts.GetCart(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if c.Empty() {
		return nil, fmt.Errorf("%w: user %s", ErrEmptyCart, req.UserID)
	}

	quote, err := o.pricer.Price(ctx, c)
	if err != nil {
		return nil, err
	}

	orderID := o.newID()
	held, err := o.reserveAll(ctx, orderID, quote.Lines)
	if err != nil {
		return nil, err
	}

	// Once reserved, the attempt runs to an outcome even if the caller goes
	// away.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	placed, err := txn.ExecuteWithResult(fctx, o.scope, func(ctx context.Context) (*orders.Order, error) {
		for _, r := range held {
			if err := o.ledger.Commit(ctx, r); err != nil {
				return nil, fmt.Errorf("commit reservation of %s: %w", r.ProductID, err)
			}
		}
		created, err := o.orders.Create(ctx, orderID, req.UserID, quote.Lines, quote.Total, req.ShippingAddress)
		if err != nil {
			return nil, err
		}
		if err := o.carts.ClearOrdered(ctx, req.UserID, c.Lines); err != nil {
			return nil, fmt.Errorf("clear cart: %w", err)
		}
		return created, nil
	})
	if err != nil {
		return o.settle(ctx, req.UserID, orderID, err)
	}
	return placed, nil
}

// settle decides a failed finalize step by looking for the order. An error
// from the scope does not prove nothing was written: the commit may have
// landed with its reply lost, or a non-transactional scope may have stopped
// after the insert. An existing order keeps its stock.
func (o *Orchestrator) settle(ctx context.Context, userID, orderID string, cause error) (*orders.Order, error) {
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	existing, err := o.orders.Get(lctx, orderID, auth.Principal{UserID: userID})
	switch {
	case err == nil:
		o.log.WarnContext(ctx, "finalize reported an error but the order exists", "order_id", orderID, "err", cause)
		return existing, nil
	case errors.Is(err, orders.ErrOrderNotFound):
		o.compensate(ctx, orderID)
		return nil, cause
	default:
		// Unknown outcome. Uncommitted reservations are still HELD and the
		// sweeper returns them; committed ones belong to a real order.
		o.log.ErrorContext(ctx, "order outcome unknown, leaving reservations to the sweeper", "order_id", orderID, "err", err, "cause", cause)
		return nil, cause
	}
}

// reserveAll reserves lines in ascending product order. On the first
// failure everything this attempt holds is released.
func (o *Orchestrator) reserveAll(ctx context.Context, orderID string, lines []orders.Line) ([]*inventory.Reservation, error) {
	sorted := append([]orders.Line(nil), lines...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	held := make([]*inventory.Reservation, 0, len(sorted))
	for _, l := range sorted {
		r, err := o.ledger.Reserve(ctx, orderID, l.ProductID, l.Quantity)
		if err != nil {
			o.compensate(ctx, orderID)
			return nil, err
		}
		held = append(held, r)
	}
	return held, nil
}

// compensate releases by order id so that a reservation whose outcome was
// lost to a cancelled context is returned as well. It runs detached from
// the caller's cancellation.
func (o *Orchestrator) compensate(ctx context.Context, orderID string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	if err := o.ledger.ReleaseOrder(cctx, orderID); err != nil {
		o.log.ErrorContext(cctx, "release reservations after failed checkout", "order_id", orderID, "err", err)
	}
}
