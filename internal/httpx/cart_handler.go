package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/go-shop-orders/internal/auth"
	"github.com/ariefcatur/go-shop-orders/internal/cart"
	"github.com/ariefcatur/go-shop-orders/internal/pricing"
	"github.com/go-chi/chi/v5"
)

type CartService interface {
	AddLine(ctx context.Context, userID, productID string, qty int) (*cart.Cart, error)
	RemoveLine(ctx context.Context, userID, productID string) error
	GetCart(ctx context.Context, userID string) (*cart.Cart, error)
}

type CartPreviewer interface {
	Preview(ctx context.Context, c *cart.Cart) (*pricing.Preview, error)
}

type CartHandler struct {
	Carts   CartService
	Pricing CartPreviewer
}

func (h *CartHandler) Register(r chi.Router) {
	r.Post("/cart", h.add)
	r.Get("/cart", h.get)
	r.Delete("/cart/items/{productId}", h.remove)
}

type addToCartReq struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (h *CartHandler) add(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	var req addToCartReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	c, err := h.Carts.AddLine(r.Context(), p.UserID, req.ProductID, req.Quantity)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.respond(w, r, c)
}

func (h *CartHandler) get(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	c, err := h.Carts.GetCart(r.Context(), p.UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.respond(w, r, c)
}

func (h *CartHandler) remove(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	if err := h.Carts.RemoveLine(r.Context(), p.UserID, chi.URLParam(r, "productId")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.get(w, r)
}

// respond renders the cart with live prices.
func (h *CartHandler) respond(w http.ResponseWriter, r *http.Request, c *cart.Cart) {
	preview, err := h.Pricing.Preview(r.Context(), c)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}
