package httpx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/ariefcatur/go-shop-orders/internal/auth"
	"github.com/ariefcatur/go-shop-orders/internal/checkout"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/go-chi/chi/v5"
)

type CheckoutService interface {
	Checkout(ctx context.Context, req checkout.Request) (*checkout.Result, error)
}

type OrderService interface {
	Get(ctx context.Context, id string, actor auth.Principal) (*orders.Order, error)
	List(ctx context.Context, actor auth.Principal, offset, limit int) ([]*orders.Order, int, error)
	Transition(ctx context.Context, id string, to orders.Status, actor auth.Principal) (*orders.Order, error)
}

type OrdersHandler struct {
	Checkout CheckoutService
	Orders   OrderService
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Patch("/orders/{id}/status", h.updateStatus)
}

// createOrderReq deliberately has no price or item fields: the order is
// built from the stored cart and current catalog prices.
type createOrderReq struct {
	ShippingAddress *orders.Address `json:"shipping_address"`
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	var req createOrderReq
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeDomainError(w, r, err)
		return
	}

	res, err := h.Checkout.Checkout(r.Context(), checkout.Request{
		UserID:          p.UserID,
		ShippingAddress: req.ShippingAddress,
		IdempotencyKey:  strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	code := http.StatusCreated
	if res.Replayed {
		code = http.StatusOK
	}
	writeJSON(w, code, res.Order)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	pg, err := parsePage(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	items, total, err := h.Orders.List(r.Context(), p, pg.offset(), pg.Limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[*orders.Order]{Items: items, Page: pg.Page, Limit: pg.Limit, Total: total})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	o, err := h.Orders.Get(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type updateStatusReq struct {
	Status orders.Status `json:"status"`
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	var req updateStatusReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	o, err := h.Orders.Transition(r.Context(), chi.URLParam(r, "id"), orders.Status(strings.ToLower(string(req.Status))), p)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
