package httpx

import (
	"net/http"
	"time"

	"github.com/ariefcatur/go-shop-orders/internal/auth"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Handlers struct {
	Auth    auth.Authenticator
	Catalog *CatalogHandler
	Cart    *CartHandler
	Orders  *OrdersHandler
}

func NewRouter(h Handlers) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	authn := auth.Middleware(h.Auth, writeDomainError)
	h.Catalog.Register(r, authn)
	r.Group(func(r chi.Router) {
		r.Use(authn)
		h.Cart.Register(r)
		h.Orders.Register(r)
	})
	return r
}
