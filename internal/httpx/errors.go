package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ariefcatur/go-shop-orders/internal/auth"
	"github.com/ariefcatur/go-shop-orders/internal/cart"
	"github.com/ariefcatur/go-shop-orders/internal/catalog"
	"github.com/ariefcatur/go-shop-orders/internal/checkout"
	"github.com/ariefcatur/go-shop-orders/internal/inventory"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
)

type errorBody struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// writeDomainError maps core failures onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status >= 500 {
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, body)
}

func classify(err error) (int, errorBody) {
	var (
		ise *inventory.InsufficientStockError
		pue *catalog.ProductUnavailableError
		iqe *cart.InvalidQuantityError
		ite *orders.InvalidTransitionError
	)
	msg := err.Error()

	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: "authentication required"}
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, errorBody{Error: "forbidden", Message: msg}
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, errorBody{Error: "bad_request", Message: msg}

	case errors.As(err, &ise):
		return http.StatusConflict, errorBody{Error: "insufficient_stock", Message: msg, Details: map[string]any{
			"product_id": ise.ProductID, "requested": ise.Requested, "available": ise.Available,
		}}
	case errors.As(err, &pue):
		return http.StatusBadRequest, errorBody{Error: "product_unavailable", Message: msg, Details: map[string]any{
			"product_id": pue.ProductID,
		}}
	case errors.As(err, &iqe):
		return http.StatusBadRequest, errorBody{Error: "invalid_quantity", Message: msg, Details: map[string]any{
			"product_id": iqe.ProductID, "quantity": iqe.Quantity,
		}}
	case errors.Is(err, checkout.ErrEmptyCart):
		return http.StatusBadRequest, errorBody{Error: "empty_cart", Message: msg}

	case errors.As(err, &ite):
		details := map[string]any{"order_id": ite.OrderID, "to": ite.To}
		if ite.From != "" {
			details["from"] = ite.From
		}
		switch {
		case errors.Is(ite.Cause, orders.ErrOrderNotFound):
			return http.StatusNotFound, errorBody{Error: "not_found", Message: "order not found", Details: map[string]any{"order_id": ite.OrderID}}
		case errors.Is(ite.Cause, orders.ErrForbidden):
			return http.StatusForbidden, errorBody{Error: "forbidden", Message: msg, Details: details}
		default:
			return http.StatusBadRequest, errorBody{Error: "invalid_transition", Message: msg, Details: details}
		}
	case errors.Is(err, orders.ErrOrderNotFound), errors.Is(err, catalog.ErrProductNotFound):
		return http.StatusNotFound, errorBody{Error: "not_found", Message: msg}
	case errors.Is(err, catalog.ErrInvalidProduct):
		return http.StatusBadRequest, errorBody{Error: "invalid_product", Message: msg}

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errorBody{Error: "timeout", Message: "request timed out"}
	default:
		return http.StatusInternalServerError, errorBody{Error: "internal", Message: "internal error"}
	}
}
