// Package pricing derives every monetary amount from current catalog state.
// Client-supplied prices are never read.
package pricing

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-shop-orders/internal/cart"
	"github.com/ariefcatur/go-shop-orders/internal/catalog"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/shopspring/decimal"
)

type Quote struct {
	Lines []orders.Line
	Total decimal.Decimal
}

type Resolver struct {
	products catalog.Reader
}

func NewResolver(products catalog.Reader) *Resolver {
	return &Resolver{products: products}
}

// Price freezes the current catalog price on every line. One unavailable
// product fails the whole cart with *catalog.ProductUnavailableError.
func (r *Resolver) Price(ctx context.Context, c *cart.Cart) (*Quote, error) {
	q := &Quote{Lines: make([]orders.Line, 0, len(c.Lines)), Total: decimal.Zero}
	for _, cl := range c.Lines {
		p, err := r.available(ctx, cl.ProductID)
		if err != nil {
			return nil, err
		}
		line := orders.Line{ProductID: cl.ProductID, Quantity: cl.Quantity, UnitPrice: p.Price}
		q.Lines = append(q.Lines, line)
		q.Total = q.Total.Add(line.Subtotal())
	}
	return q, nil
}

func (r *Resolver) available(ctx context.Context, id string) (*catalog.Product, error) {
	p, err := r.products.GetProduct(ctx, id)
	if errors.Is(err, catalog.ErrProductNotFound) || (err == nil && !p.Active) {
		return nil, &catalog.ProductUnavailableError{ProductID: id}
	}
	return p, err
}

type PreviewLine struct {
	ProductID string           `json:"product_id"`
	Name      string           `json:"name,omitempty"`
	Quantity  int              `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
	Subtotal  *decimal.Decimal `json:"subtotal,omitempty"`
	Available bool             `json:"available"`
	InStock   int              `json:"in_stock"`
}

type Preview struct {
	UserID    string          `json:"user_id"`
	Lines     []PreviewLine   `json:"lines"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
}

// Preview prices a cart for display. Unavailable lines are flagged and
// left out of the total instead of failing the read.
func (r *Resolver) Preview(ctx context.Context, c *cart.Cart) (*Preview, error) {
	out := &Preview{UserID: c.UserID, Lines: make([]PreviewLine, 0, len(c.Lines)), Total: decimal.Zero}
	for _, cl := range c.Lines {
		pl := PreviewLine{ProductID: cl.ProductID, Quantity: cl.Quantity}
		p, err := r.available(ctx, cl.ProductID)
		var unavailable *catalog.ProductUnavailableError
		switch {
		case errors.As(err, &unavailable):
		case err != nil:
			return nil, err
		default:
			price := p.Price
			sub := orders.Line{Quantity: cl.Quantity, UnitPrice: price}.Subtotal()
			pl.Name = p.Name
			pl.UnitPrice = &price
			pl.Subtotal = &sub
			pl.Available = true
			pl.InStock = p.Stock
			out.Total = out.Total.Add(sub)
		}
		out.ItemCount += cl.Quantity
		out.Lines = append(out.Lines, pl)
	}
	return out, nil
}
