package checkout_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ariefcatur/go-shop-orders/internal/auth"
	"github.com/ariefcatur/go-shop-orders/internal/cart"
	"github.com/ariefcatur/go-shop-orders/internal/catalog"
	"github.com/ariefcatur/go-shop-orders/internal/checkout"
	"github.com/ariefcatur/go-shop-orders/internal/inventory"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/ariefcatur/go-shop-orders/internal/pricing"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Fakes ---

type countingLedger struct {
	inventory.Ledger
	reserves  atomic.Int32
	commitErr error
	// lostReply makes Reserve of this product succeed but report the
	// context as cancelled, as if the client went away mid-call.
	lostReply string
}

func (l *countingLedger) Reserve(ctx context.Context, orderID, productID string, qty int) (*inventory.Reservation, error) {
	l.reserves.Add(1)
	r, err := l.Ledger.Reserve(ctx, orderID, productID, qty)
	if err == nil && productID == l.lostReply {
		return nil, context.Canceled
	}
	return r, err
}

func (l *countingLedger) Commit(ctx context.Context, r *inventory.Reservation) error {
	if l.commitErr != nil {
		return l.commitErr
	}
	return l.Ledger.Commit(ctx, r)
}

type failingOrders struct {
	checkout.Orders
	err error
}

func (f *failingOrders) Create(ctx context.Context, id, userID string, lines []orders.Line, total decimal.Decimal, addr *orders.Address) (*orders.Order, error) {
	return nil, f.err
}

// ackLostScope applies fn and then reports an error, as when COMMIT reaches
// the database but its reply does not.
type ackLostScope struct{}

func (ackLostScope) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		return err
	}
	return context.Canceled
}

// cancellingScope cancels the caller's context before running fn.
type cancellingScope struct{ cancel context.CancelFunc }

func (s cancellingScope) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	s.cancel()
	return fn(ctx)
}

type failingClear struct {
	*cart.Aggregator
	err error
}

func (f failingClear) ClearOrdered(ctx context.Context, userID string, ordered []cart.Line) error {
	return f.err
}

type topicRecorder struct {
	mu     sync.Mutex
	topics []string
}

func (r *topicRecorder) Publish(topic string, key, value []byte, headers map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
}

// --- Harness ---

type harness struct {
	catalog   *catalog.MemoryRepository
	cartStore *cart.MemoryStore
	carts     *cart.Aggregator
	ledger    *countingLedger
	orderRepo *orders.MemoryRepository
	orders    *orders.Service
	pub       *topicRecorder
	deps      checkout.Deps
}

func newHarness(t *testing.T, products ...catalog.Product) *harness {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		catalog:   catalog.NewMemoryRepository(products...),
		cartStore: cart.NewMemoryStore(),
		orderRepo: orders.NewMemoryRepository(),
		pub:       &topicRecorder{},
	}
	h.carts = cart.NewAggregator(h.cartStore, h.catalog)
	h.ledger = &countingLedger{Ledger: inventory.NewMemoryLedger(h.catalog)}
	h.orders = orders.NewService(orders.ServiceDeps{
		Repo:        h.orderRepo,
		Stock:       h.ledger,
		Publisher:   h.pub,
		ServiceName: "test",
		Logger:      log,
	})
	h.deps = checkout.Deps{
		Carts:  h.carts,
		Pricer: pricing.NewResolver(h.catalog),
		Ledger: h.ledger,
		Orders: h.orders,
		Idem:   checkout.NewMemoryIdempotency(),
		Logger: log,
	}
	return h
}

func (h *harness) orchestrator() *checkout.Orchestrator { return checkout.New(h.deps) }

func (h *harness) add(t *testing.T, userID, productID string, qty int) {
	t.Helper()
	_, err := h.carts.AddLine(context.Background(), userID, productID, qty)
	require.NoError(t, err)
}

func (h *harness) stock(t *testing.T, id string) int {
	t.Helper()
	n, err := h.catalog.GetStock(context.Background(), id)
	require.NoError(t, err)
	return n
}

func (h *harness) orderCount(t *testing.T, userID string) int {
	t.Helper()
	_, n, err := h.orderRepo.ListByUser(context.Background(), userID, 0, 1000)
	require.NoError(t, err)
	return n
}

func product(id, price string, stock int) catalog.Product {
	return catalog.Product{ID: id, Name: id, Price: decimal.RequireFromString(price), Stock: stock, Active: true}
}

// --- Tests ---

func TestCheckout_Success(t *testing.T) {
	h := newHarness(t, product("P1", "9.99", 5))
	h.add(t, "u1", "P1", 2)
	addr := &orders.Address{Name: "Ana", Line1: "Jl. Merdeka 1", City: "Bandung", PostalCode: "40111", Country: "ID"}

	res, err := h.orchestrator().Checkout(context.Background(), checkout.Request{UserID: "u1", ShippingAddress: addr})
	require.NoError(t, err)
	assert.False(t, res.Replayed)

	o := res.Order
	assert.Equal(t, orders.StatusPending, o.Status)
	assert.Equal(t, "19.98", o.Total.StringFixed(2))
	assert.Equal(t, "Bandung", o.ShippingAddress.City)
	assert.Equal(t, 3, h.stock(t, "P1"))

	c, err := h.carts.GetCart(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, c.Empty())
	assert.Equal(t, []string{orders.TopicOrderPlaced}, h.pub.topics)
}

func TestCheckout_InsufficientStock(t *testing.T) {
	h := newHarness(t, product("P2", "5.00", 3))
	h.add(t, "u1", "P2", 10)

	_, err := h.orchestrator().Checkout(context.Background(), checkout.Request{UserID: "u1"})
	var ise *inventory.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, 10, ise.Requested)
	assert.Equal(t, 3, ise.Available)

	assert.Equal(t, 3, h.stock(t, "P2"))
	assert.Equal(t, 0, h.orderCount(t, "u1"))
	c, _ := h.carts.GetCart(context.Background(), "u1")
	assert.Len(t, c.Lines, 1)
	assert.Empty(t, h.pub.topics)
}

func TestCheckout_ProductUnavailable(t *testing.T) {
	h := newHarness(t, product("P1", "9.99", 5))
	h.add(t, "u1", "P1", 1)
	_, err := h.cartStore.Merge(context.Background(), "u1", "DELETED", 1)
	require.NoError(t, err)

	_, err = h.orchestrator().Checkout(context.Background(), checkout.Request{UserID: "u1"})
	assert.ErrorIs(t, err, catalog.ErrProductUnavailable)
	assert.Equal(t, int32(0), h.ledger.reserves.Load(), "no reservation may be attempted")
	assert.Equal(t, 5, h.stock(t, "P1"))
	assert.Equal(t, 0, h.orderCount(t, "u1"))
}

func TestCheckout_EmptyCart(t *testing.T) {
	h := newHarness(t)
	_, err := h.orchestrator().Checkout(context.Background(), checkout.Request{UserID: "u1"})
	assert.ErrorIs(t, err, checkout.ErrEmptyCart)
}

func TestCheckout_PartialReservationIsReleased(t *testing.T) {
	h := newHarness(t, product("P1", "9.99", 5), product("P2", "5.00", 3))
	h.add(t, "u1", "P2", 10)
	h.add(t, "u1", "P1", 2)

	_, err := h.orchestrator().Checkout(context.Background(), checkout.Request{UserID: "u1"})
	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
	assert.Equal(t, int32(2), h.ledger.reserves.Load())
	assert.Equal(t, 5, h.stock(t, "P1"))
	assert.Equal(t, 3, h.stock(t, "P2"))
}

func TestCheckout_InjectedFailureLeavesNoTrace(t *testing.T) {
	boom := errors.New("disk full")
	tests := []struct {
		name  string
		setup func(h *harness)
	}{
		{"order insert fails", func(h *harness) { h.deps.Orders = &failingOrders{Orders: h.orders, err: boom} }},
		{"commit fails", func(h *harness) { h.ledger.commitErr = boom }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, product("P1", "9.99", 5), product("P2", "1.50", 4))
			h.add(t, "u1", "P1", 2)
			h.add(t, "u1", "P2", 4)
			tt.setup(h)

			_, err := h.orchestrator().Checkout(context.Background(), checkout.Request{UserID: "u1"})
			assert.ErrorIs(t, err, boom)
			assert.Equal(t, 5, h.stock(t, "P1"))
			assert.Equal(t, 4, h.stock(t, "P2"))
			assert.Equal(t, 0, h.orderCount(t, "u1"))
			c, _ := h.carts.GetCart(context.Background(), "u1")
			assert.Len(t, c.Lines, 2)
		})
	}
}

func TestCheckout_LostReplyIsCompensated(t *testing.T) {
	h := newHarness(t, product("P1", "9.99", 5), product("P2", "1.50", 4))
	h.add(t, "u1", "P1", 1)
	h.add(t, "u1", "P2", 2)
	h.ledger.lostReply = "P2"

	_, err := h.orchestrator().Checkout(context.Background(), checkout.Request{UserID: "u1"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 5, h.stock(t, "P1"))
	assert.Equal(t, 4, h.stock(t, "P2"))
}

func TestCheckout_ConcurrentNeverOversells(t *testing.T) {
	const stock, buyers = 3, 12
	h := newHarness(t, product("HOT", "10.00", stock))
	for i := 0; i < buyers; i++ {
		h.add(t, fmt.Sprintf("u%d", i), "HOT", 1)
	}
	orch := h.orchestrator()

	var (
		wg                 sync.WaitGroup
		placed, outOfStock atomic.Int32
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			_, err := orch.Checkout(context.Background(), checkout.Request{UserID: user})
			switch {
			case err == nil:
				placed.Add(1)
			case errors.Is(err, inventory.ErrInsufficientStock):
				outOfStock.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(fmt.Sprintf("u%d", i))
	}
	wg.Wait()

	assert.Equal(t, int32(stock), placed.Load())
	assert.Equal(t, int32(buyers-stock), outOfStock.Load())
	assert.Equal(t, 0, h.stock(t, "HOT"))
}

func TestCheckout_SameUserConcurrent(t *testing.T) {
	h := newHarness(t, product("P1", "9.99", 50))
	h.add(t, "u1", "P1", 2)
	orch := h.orchestrator()

	var (
		wg     sync.WaitGroup
		placed atomic.Int32
		empty  atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := orch.Checkout(context.Background(), checkout.Request{UserID: "u1"})
			switch {
			case err == nil:
				placed.Add(1)
			case errors.Is(err, checkout.ErrEmptyCart):
				empty.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), placed.Load())
	assert.Equal(t, int32(7), empty.Load())
	assert.Equal(t, 1, h.orderCount(t, "u1"))
	assert.Equal(t, 48, h.stock(t, "P1"))
}

func TestCheckout_IdempotentReplay(t *testing.T) {
	h := newHarness(t, product("P1", "9.99", 5))
	h.add(t, "u1", "P1", 1)
	orch := h.orchestrator()
	ctx := context.Background()

	first, err := orch.Checkout(ctx, checkout.Request{UserID: "u1", IdempotencyKey: "k-1"})
	require.NoError(t, err)
	second, err := orch.Checkout(ctx, checkout.Request{UserID: "u1", IdempotencyKey: "k-1"})
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, 1, h.orderCount(t, "u1"))
	assert.Equal(t, 4, h.stock(t, "P1"))

	_, err = orch.Checkout(ctx, checkout.Request{UserID: "u2", IdempotencyKey: "k-1"})
	assert.ErrorIs(t, err, checkout.ErrEmptyCart)
}

func TestCheckout_FrozenPrices(t *testing.T) {
	h := newHarness(t, product("P1", "9.99", 5))
	h.add(t, "u1", "P1", 2)
	ctx := context.Background()

	res, err := h.orchestrator().Checkout(ctx, checkout.Request{UserID: "u1"})
	require.NoError(t, err)

	price := decimal.RequireFromString("15.00")
	_, err = h.catalog.Update(ctx, "P1", catalog.Patch{Price: &price})
	require.NoError(t, err)

	o, err := h.orders.Get(ctx, res.Order.ID, auth.Principal{UserID: "u1", Role: auth.RoleCustomer})
	require.NoError(t, err)
	assert.Equal(t, "19.98", o.Total.StringFixed(2))
	assert.Equal(t, "9.99", o.Lines[0].UnitPrice.StringFixed(2))
	assert.True(t, o.Total.Equal(orders.SumLines(o.Lines)))
}

func TestCheckout_CancelReturnsStock(t *testing.T) {
	h := newHarness(t, product("P1", "9.99", 5))
	h.add(t, "u1", "P1", 2)
	ctx := context.Background()

	res, err := h.orchestrator().Checkout(ctx, checkout.Request{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 3, h.stock(t, "P1"))

	owner := auth.Principal{UserID: "u1", Role: auth.RoleCustomer}
	o, err := h.orders.Transition(ctx, res.Order.ID, orders.StatusCancelled, owner)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, o.Status)
	assert.Equal(t, 5, h.stock(t, "P1"))
}

func TestCheckout_LostCommitReplyKeepsOrderAndStock(t *testing.T) {
	h := newHarness(t, product("P1", "9.99", 5))
	h.add(t, "u1", "P1", 2)
	h.deps.Scope = ackLostScope{}

	res, err := h.orchestrator().Checkout(context.Background(), checkout.Request{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, res.Order.Status)
	assert.Equal(t, 1, h.orderCount(t, "u1"))
	assert.Equal(t, 3, h.stock(t, "P1"))
}

func TestCheckout_CallerGoneDuringFinalizeStillCompletes(t *testing.T) {
	h := newHarness(t, product("P1", "9.99", 5))
	h.add(t, "u1", "P1", 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.deps.Scope = cancellingScope{cancel: cancel}

	res, err := h.orchestrator().Checkout(ctx, checkout.Request{UserID: "u1"})
	require.NoError(t, err)
	require.NotNil(t, res.Order)
	assert.Equal(t, 1, h.orderCount(t, "u1"))
	assert.Equal(t, 3, h.stock(t, "P1"))
	c, err := h.carts.GetCart(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, c.Empty())
}

func TestCheckout_ClearFailureAfterInsertKeepsStock(t *testing.T) {
	h := newHarness(t, product("P1", "9.99", 5))
	h.add(t, "u1", "P1", 2)
	h.deps.Carts = failingClear{Aggregator: h.carts, err: errors.New("cart store down")}

	res, err := h.orchestrator().Checkout(context.Background(), checkout.Request{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 1, h.orderCount(t, "u1"))
	assert.Equal(t, 3, h.stock(t, "P1"))
	assert.Equal(t, orders.StatusPending, res.Order.Status)
}
