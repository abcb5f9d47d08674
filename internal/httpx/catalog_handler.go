package httpx

import (
	"net/http"
	"strings"

	"github.com/ariefcatur/go-shop-orders/internal/auth"
	"github.com/ariefcatur/go-shop-orders/internal/catalog"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type CatalogHandler struct {
	Products catalog.Repository
}

func (h *CatalogHandler) Register(r chi.Router, authn func(http.Handler) http.Handler) {
	r.Get("/products", h.list)
	r.Get("/products/{id}", h.get)
	r.Group(func(r chi.Router) {
		r.Use(authn, auth.Require(auth.CapManageCatalog, writeDomainError))
		r.Post("/products", h.create)
		r.Patch("/products/{id}", h.update)
		r.Delete("/products/{id}", h.deactivate)
	})
}

func (h *CatalogHandler) list(w http.ResponseWriter, r *http.Request) {
	p, err := parsePage(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	items, total, err := h.Products.List(r.Context(), catalog.ListFilter{
		Category: strings.TrimSpace(r.URL.Query().Get("category")),
		Offset:   p.offset(),
		Limit:    p.Limit,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[*catalog.Product]{Items: items, Page: p.Page, Limit: p.Limit, Total: total})
}

func (h *CatalogHandler) get(w http.ResponseWriter, r *http.Request) {
	p, err := h.Products.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if !p.Active {
		writeDomainError(w, r, catalog.ErrProductNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type createProductReq struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
}

func (h *CatalogHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createProductReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	p := &catalog.Product{
		ID:          strings.TrimSpace(req.ID),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Category:    strings.TrimSpace(req.Category),
		Price:       req.Price,
		Stock:       req.Stock,
	}
	if err := h.Products.Create(r.Context(), p); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

type updateProductReq struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Category    *string          `json:"category"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int             `json:"stock"`
}

func (h *CatalogHandler) update(w http.ResponseWriter, r *http.Request) {
	var req updateProductReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	p, err := h.Products.Update(r.Context(), chi.URLParam(r, "id"), catalog.Patch{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
		Stock:       req.Stock,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *CatalogHandler) deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.Products.Deactivate(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
