package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ariefcatur/go-shop-orders/internal/auth"
	kafkax "github.com/ariefcatur/go-shop-orders/internal/kafka"
	"github.com/ariefcatur/go-shop-orders/internal/txn"
	"github.com/shopspring/decimal"
)

// StockReleaser returns every unit an order still holds to the pool.
type StockReleaser interface {
	ReleaseOrder(ctx context.Context, orderID string) error
}

// Cache is an optional read-through cache for single orders.
// Get returns nil, nil on a miss. Fill stores o only when no entry exists,
// so a read that raced a transition cannot replace the newer entry Set
// wrote.
type Cache interface {
	Get(ctx context.Context, id string) (*Order, error)
	Fill(ctx context.Context, o *Order) error
	Set(ctx context.Context, o *Order) error
	Invalidate(ctx context.Context, id string) error
}

type ServiceDeps struct {
	Repo        Repository
	Scope       txn.Scope
	Stock       StockReleaser
	Cache       Cache
	Publisher   kafkax.Publisher
	ServiceName string
	Logger      *slog.Logger
}

type Service struct {
	repo    Repository
	scope   txn.Scope
	stock   StockReleaser
	cache   Cache
	pub     kafkax.Publisher
	service string
	log     *slog.Logger
	now     func() time.Time
}

func NewService(d ServiceDeps) *Service {
	s := &Service{
		repo:    d.Repo,
		scope:   d.Scope,
		stock:   d.Stock,
		cache:   d.Cache,
		pub:     d.Publisher,
		service: d.ServiceName,
		log:     d.Logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
	if s.scope == nil {
		s.scope = txn.Direct{}
	}
	if s.pub == nil {
		s.pub = kafkax.Discard{}
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With("component", "orders")
	return s
}

// Create persists a new pending order. The caller supplies the id so that
// inventory reservations can reference the order before it exists.
func (s *Service) Create(ctx context.Context, id, userID string, lines []Line, total decimal.Decimal, addr *Address) (*Order, error) {
	if id == "" || userID == "" {
		return nil, fmt.Errorf("%w: id and user are required", ErrInvalidOrder)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: no lines", ErrInvalidOrder)
	}
	for _, l := range lines {
		if l.Quantity <= 0 || l.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("%w: bad line for product %s", ErrInvalidOrder, l.ProductID)
		}
	}
	if sum := SumLines(lines); !sum.Equal(total) {
		return nil, fmt.Errorf("%w: total %s does not match lines %s", ErrInvalidOrder, total, sum)
	}

	now := s.now()
	o := &Order{
		ID:              id,
		UserID:          userID,
		Lines:           append([]Line(nil), lines...),
		Total:           total,
		Status:          StatusPending,
		ShippingAddress: addr,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Insert(ctx, o); err != nil {
		return nil, fmt.Errorf("insert order %s: %w", id, err)
	}
	return o, nil
}

// Get returns the order if actor may see it. Orders owned by someone else
// are reported as not found unless actor holds orders:view_any.
func (s *Service) Get(ctx context.Context, id string, actor auth.Principal) (*Order, error) {
	o, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, o) {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

func (s *Service) load(ctx context.Context, id string) (*Order, error) {
	if s.cache != nil {
		o, err := s.cache.Get(ctx, id)
		if err != nil {
			s.log.WarnContext(ctx, "order cache read failed", "order_id", id, "err", err)
		}
		if o != nil {
			return o, nil
		}
	}
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Fill(ctx, o); err != nil {
			s.log.WarnContext(ctx, "order cache write failed", "order_id", id, "err", err)
		}
	}
	return o, nil
}

func (s *Service) List(ctx context.Context, actor auth.Principal, offset, limit int) ([]*Order, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByUser(ctx, actor.UserID, offset, limit)
}

// Transition moves an order along the status graph on behalf of actor.
// Every refusal is an *InvalidTransitionError whose Cause tells the reason.
// Cancelling returns the order's reserved stock within the same transaction.
func (s *Service) Transition(ctx context.Context, id string, to Status, actor auth.Principal) (*Order, error) {
	var from Status
	o, err := txn.ExecuteWithResult(ctx, s.scope, func(ctx context.Context) (*Order, error) {
		o, err := s.repo.Get(ctx, id)
		if errors.Is(err, ErrOrderNotFound) {
			return nil, &InvalidTransitionError{OrderID: id, To: to, Cause: ErrOrderNotFound}
		}
		if err != nil {
			return nil, err
		}
		from = o.Status

		if !canView(actor, o) {
			return nil, &InvalidTransitionError{OrderID: id, To: to, Cause: ErrOrderNotFound}
		}
		if !canDrive(actor, o, to) {
			return nil, &InvalidTransitionError{OrderID: id, From: from, To: to, Cause: ErrForbidden}
		}
		if !CanTransition(from, to) {
			return nil, &InvalidTransitionError{OrderID: id, From: from, To: to, Cause: ErrTransitionNotAllowed}
		}

		now := s.now()
		if err := s.repo.UpdateStatus(ctx, id, from, to, now); err != nil {
			if errors.Is(err, errStatusConflict) {
				return nil, &InvalidTransitionError{OrderID: id, From: from, To: to, Cause: fmt.Errorf("%w: %v", ErrTransitionNotAllowed, err)}
			}
			return nil, err
		}
		if to == StatusCancelled {
			if err := s.stock.ReleaseOrder(ctx, id); err != nil {
				return nil, fmt.Errorf("release stock of order %s: %w", id, err)
			}
		}
		o.Status = to
		o.UpdatedAt = now
		return o, nil
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, o); err != nil {
			s.log.WarnContext(ctx, "order cache refresh failed", "order_id", id, "err", err)
			if err := s.cache.Invalidate(ctx, id); err != nil {
				s.log.WarnContext(ctx, "order cache invalidate failed", "order_id", id, "err", err)
			}
		}
	}
	s.log.InfoContext(ctx, "order status changed", "order_id", id, "from", from, "to", to, "actor", actor.UserID)
	if err := kafkax.Emit(ctx, s.pub, TopicOrderStatusChanged, s.service, EventOrderStatusChanged, id, StatusChangedPayload{
		OrderID: id, UserID: o.UserID, From: from, To: to, ActorID: actor.UserID,
	}); err != nil {
		s.log.ErrorContext(ctx, "emit status changed", "order_id", id, "err", err)
	}
	return o, nil
}

// PublishPlaced announces a committed order.
func (s *Service) PublishPlaced(ctx context.Context, o *Order) {
	if err := kafkax.Emit(ctx, s.pub, TopicOrderPlaced, s.service, EventOrderPlaced, o.ID, placedPayload(o)); err != nil {
		s.log.ErrorContext(ctx, "emit order placed", "order_id", o.ID, "err", err)
	}
}
