package httpx_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ariefcatur/go-shop-orders/internal/auth"
	"github.com/ariefcatur/go-shop-orders/internal/cart"
	"github.com/ariefcatur/go-shop-orders/internal/catalog"
	"github.com/ariefcatur/go-shop-orders/internal/checkout"
	"github.com/ariefcatur/go-shop-orders/internal/httpx"
	"github.com/ariefcatur/go-shop-orders/internal/inventory"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/ariefcatur/go-shop-orders/internal/pricing"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	handler  http.Handler
	products *catalog.MemoryRepository
}

func newAPI(t *testing.T) *testAPI {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	products := catalog.NewMemoryRepository(
		catalog.Product{ID: "P1", Name: "Mug", Category: "kitchen", Price: decimal.RequireFromString("9.99"), Stock: 5, Active: true},
		catalog.Product{ID: "P2", Name: "Kettle", Category: "kitchen", Price: decimal.RequireFromString("24.50"), Stock: 3, Active: true},
	)
	ledger := inventory.NewMemoryLedger(products)
	carts := cart.NewAggregator(cart.NewMemoryStore(), products)
	resolver := pricing.NewResolver(products)
	orderSvc := orders.NewService(orders.ServiceDeps{Repo: orders.NewMemoryRepository(), Stock: ledger, Logger: log})
	orch := checkout.New(checkout.Deps{
		Carts:  carts,
		Pricer: resolver,
		Ledger: ledger,
		Orders: orderSvc,
		Idem:   checkout.NewMemoryIdempotency(),
		Logger: log,
	})

	return &testAPI{
		products: products,
		handler: httpx.NewRouter(httpx.Handlers{
			Auth:    auth.HeaderAuthenticator{},
			Catalog: &httpx.CatalogHandler{Products: products},
			Cart:    &httpx.CartHandler{Carts: carts, Pricing: resolver},
			Orders:  &httpx.OrdersHandler{Checkout: orch, Orders: orderSvc},
		}),
	}
}

func (a *testAPI) do(t *testing.T, method, path, user, role, body string, headers ...string) (int, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if user != "" {
		req.Header.Set(auth.HeaderUserID, user)
	}
	if role != "" {
		req.Header.Set(auth.HeaderRole, role)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w.Code, out
}

func TestHealthz(t *testing.T) {
	a := newAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestCheckoutFlow(t *testing.T) {
	a := newAPI(t)

	code, body := a.do(t, http.MethodPost, "/cart", "u1", "", `{"product_id":"P1","quantity":2,"price":"0.01"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "19.98", body["total"])

	code, body = a.do(t, http.MethodGet, "/cart", "u1", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["lines"], 1)

	code, body = a.do(t, http.MethodPost, "/orders", "u1", "",
		`{"total":"0.01","shipping_address":{"name":"Ana","line1":"Jl. Merdeka 1","city":"Bandung","postal_code":"40111","country":"ID"}}`,
		"Idempotency-Key", "key-1")
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "19.98", body["total"])
	assert.Equal(t, "pending", body["status"])
	orderID := body["id"].(string)

	stock, err := a.products.GetStock(t.Context(), "P1")
	require.NoError(t, err)
	assert.Equal(t, 3, stock)

	code, body = a.do(t, http.MethodPost, "/orders", "u1", "", "", "Idempotency-Key", "key-1")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, orderID, body["id"])

	code, _ = a.do(t, http.MethodGet, "/orders/"+orderID, "u1", "", "")
	assert.Equal(t, http.StatusOK, code)
	code, _ = a.do(t, http.MethodGet, "/orders/"+orderID, "u2", "", "")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = a.do(t, http.MethodGet, "/orders/"+orderID, "s1", "staff", "")
	assert.Equal(t, http.StatusOK, code)

	code, body = a.do(t, http.MethodGet, "/orders", "u1", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["total"])

	code, body = a.do(t, http.MethodPatch, "/orders/"+orderID+"/status", "s1", "staff", `{"status":"shipped"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_transition", body["error"])

	code, _ = a.do(t, http.MethodPatch, "/orders/"+orderID+"/status", "u1", "", `{"status":"processing"}`)
	assert.Equal(t, http.StatusForbidden, code)

	code, body = a.do(t, http.MethodPatch, "/orders/"+orderID+"/status", "u1", "", `{"status":"cancelled"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "cancelled", body["status"])

	stock, err = a.products.GetStock(t.Context(), "P1")
	require.NoError(t, err)
	assert.Equal(t, 5, stock)

	code, _ = a.do(t, http.MethodPatch, "/orders/missing/status", "s1", "staff", `{"status":"processing"}`)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCheckoutErrors(t *testing.T) {
	a := newAPI(t)

	code, body := a.do(t, http.MethodPost, "/orders", "u1", "", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "empty_cart", body["error"])

	code, _ = a.do(t, http.MethodPost, "/cart", "u1", "", `{"product_id":"P2","quantity":3}`)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, a.products.AdjustStock(t.Context(), "P2", func(p catalog.Product) (int, error) { return 1, nil }))

	code, body = a.do(t, http.MethodPost, "/orders", "u1", "", "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "insufficient_stock", body["error"])
	details := body["details"].(map[string]any)
	assert.EqualValues(t, 3, details["requested"])
	assert.EqualValues(t, 1, details["available"])

	code, body = a.do(t, http.MethodPost, "/cart", "u1", "", `{"product_id":"P2","quantity":-3}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_quantity", body["error"])

	code, body = a.do(t, http.MethodPost, "/cart", "u1", "", `{"product_id":"NOPE","quantity":1}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "product_unavailable", body["error"])

	code, _ = a.do(t, http.MethodPost, "/cart", "u1", "", `{bad json`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = a.do(t, http.MethodGet, "/cart", "", "", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "unauthorized", body["error"])
}

func TestCartRemoveItem(t *testing.T) {
	a := newAPI(t)
	a.do(t, http.MethodPost, "/cart", "u1", "", `{"product_id":"P1","quantity":1}`)
	a.do(t, http.MethodPost, "/cart", "u1", "", `{"product_id":"P2","quantity":1}`)

	code, body := a.do(t, http.MethodDelete, "/cart/items/P1", "u1", "", "")
	require.Equal(t, http.StatusOK, code)
	lines := body["lines"].([]any)
	require.Len(t, lines, 1)
	assert.Equal(t, "P2", lines[0].(map[string]any)["product_id"])
}

func TestProducts(t *testing.T) {
	a := newAPI(t)

	code, body := a.do(t, http.MethodGet, "/products?category=kitchen&limit=1", "", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["total"])
	assert.Len(t, body["items"], 1)

	code, body = a.do(t, http.MethodGet, "/products?page=9223372036854775807", "", "", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "bad_request", body["error"])

	code, body = a.do(t, http.MethodGet, "/orders?page=4611686018427387904", "u1", "", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "bad_request", body["error"])

	code, _ = a.do(t, http.MethodPost, "/products", "u1", "", `{"id":"P3","name":"Pan","price":"12.00","stock":2}`)
	assert.Equal(t, http.StatusForbidden, code)

	code, body = a.do(t, http.MethodPost, "/products", "a1", "admin", `{"id":"P3","name":"Pan","category":"kitchen","price":"12.00","stock":2}`)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, true, body["active"])

	code, body = a.do(t, http.MethodPost, "/products", "a1", "admin", `{"id":"P4","name":"Bad","price":"-1","stock":2}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_product", body["error"])

	code, body = a.do(t, http.MethodPatch, "/products/P3", "a1", "admin", `{"price":"13.50"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "13.5", body["price"])

	code, _ = a.do(t, http.MethodDelete, "/products/P3", "a1", "admin", "")
	assert.Equal(t, http.StatusNoContent, code)

	code, _ = a.do(t, http.MethodGet, "/products/P3", "", "", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, body = a.do(t, http.MethodGet, "/products/P1", "", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Mug", body["name"])
}
