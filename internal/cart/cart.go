// Package cart keeps each user's unpriced line items. Prices are resolved
// only when the cart is read for display or checkout.
package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-shop-orders/internal/catalog"
)

type Line struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type Cart struct {
	UserID string `json:"user_id"`
	Lines  []Line `json:"lines"`
}

func (c *Cart) Empty() bool { return len(c.Lines) == 0 }

var ErrInvalidQuantity = errors.New("invalid quantity")

type InvalidQuantityError struct {
	ProductID string
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity for %s would be %d, must be positive", e.ProductID, e.Quantity)
}

func (e *InvalidQuantityError) Is(target error) bool { return target == ErrInvalidQuantity }

// Store persists cart lines. Lines come back in insertion order and a
// product appears at most once per user.
type Store interface {
	Lines(ctx context.Context, userID string) ([]Line, error)
	// Merge adds delta to the line's quantity, creating the line if needed,
	// and returns the resulting quantity. A result <= 0 fails with
	// *InvalidQuantityError and leaves the line unchanged.
	Merge(ctx context.Context, userID, productID string, delta int) (int, error)
	Remove(ctx context.Context, userID, productID string) error
	// Take subtracts each given quantity from the user's matching line and
	// drops lines that reach zero. Missing lines are skipped.
	Take(ctx context.Context, userID string, lines []Line) error
	Clear(ctx context.Context, userID string) error
}

type Aggregator struct {
	store    Store
	products catalog.Reader
}

func NewAggregator(store Store, products catalog.Reader) *Aggregator {
	return &Aggregator{store: store, products: products}
}

// AddLine merges qty into the user's line for productID. A negative qty
// decrements. Adding units of an unknown or deactivated product fails with
// *catalog.ProductUnavailableError.
func (a *Aggregator) AddLine(ctx context.Context, userID, productID string, qty int) (*Cart, error) {
	productID = strings.TrimSpace(productID)
	if qty == 0 || productID == "" {
		return nil, &InvalidQuantityError{ProductID: productID, Quantity: qty}
	}
	if qty > 0 {
		p, err := a.products.GetProduct(ctx, productID)
		if errors.Is(err, catalog.ErrProductNotFound) || (err == nil && !p.Active) {
			return nil, &catalog.ProductUnavailableError{ProductID: productID}
		}
		if err != nil {
			return nil, err
		}
	}
	if _, err := a.store.Merge(ctx, userID, productID, qty); err != nil {
		return nil, err
	}
	return a.GetCart(ctx, userID)
}

func (a *Aggregator) RemoveLine(ctx context.Context, userID, productID string) error {
	return a.store.Remove(ctx, userID, productID)
}

// GetCart never fails for a user without a cart; it returns an empty one.
func (a *Aggregator) GetCart(ctx context.Context, userID string) (*Cart, error) {
	lines, err := a.store.Lines(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load cart of %s: %w", userID, err)
	}
	if lines == nil {
		lines = []Line{}
	}
	return &Cart{UserID: userID, Lines: lines}, nil
}

// ClearOrdered removes what a checkout just ordered. Units added while the
// checkout ran stay in the cart.
func (a *Aggregator) ClearOrdered(ctx context.Context, userID string, ordered []Line) error {
	return a.store.Take(ctx, userID, ordered)
}

// Clear empties the cart.
func (a *Aggregator) Clear(ctx context.Context, userID string) error {
	return a.store.Clear(ctx, userID)
}
