// Package catalog owns products: metadata, authoritative price and the stock
// counter the inventory ledger mutates.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrProductUnavailable = errors.New("product unavailable")
	ErrInvalidProduct     = errors.New("invalid product")
)

// ProductUnavailableError reports a product that no longer exists or was
// deactivated.
type ProductUnavailableError struct {
	ProductID string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %s is unavailable", e.ProductID)
}

func (e *ProductUnavailableError) Is(target error) bool { return target == ErrProductUnavailable }

// Reader is the read side consumed by pricing, cart and inventory.
// GetProduct returns ErrProductNotFound for unknown ids.
type Reader interface {
	GetProduct(ctx context.Context, id string) (*Product, error)
	GetStock(ctx context.Context, id string) (int, error)
}

type ListFilter struct {
	Category string
	Offset   int
	Limit    int
}

// Patch carries the editable fields; nil means unchanged.
type Patch struct {
	Name        *string
	Description *string
	Category    *string
	Price       *decimal.Decimal
	Stock       *int
}

// Repository is the catalog edit surface used by the product endpoints.
type Repository interface {
	Reader
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, id string, patch Patch) (*Product, error)
	Deactivate(ctx context.Context, id string) error
	List(ctx context.Context, f ListFilter) ([]*Product, int, error)
}

// Validate checks the invariants a product must hold before it is stored.
func (p *Product) Validate() error {
	if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: id and name are required", ErrInvalidProduct)
	}
	if err := ValidatePrice(p.Price); err != nil {
		return err
	}
	if p.Stock < 0 {
		return fmt.Errorf("%w: stock must not be negative", ErrInvalidProduct)
	}
	return nil
}

// ValidatePrice accepts positive amounts with at most two decimal places.
func ValidatePrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return fmt.Errorf("%w: price must be positive", ErrInvalidProduct)
	}
	if !price.Equal(price.Round(2)) {
		return fmt.Errorf("%w: price has more than two decimal places", ErrInvalidProduct)
	}
	return nil
}

func (p Patch) apply(dst *Product) error {
	if p.Name != nil {
		dst.Name = *p.Name
	}
	if p.Description != nil {
		dst.Description = *p.Description
	}
	if p.Category != nil {
		dst.Category = *p.Category
	}
	if p.Price != nil {
		dst.Price = *p.Price
	}
	if p.Stock != nil {
		dst.Stock = *p.Stock
	}
	return dst.Validate()
}

func normalizeFilter(f ListFilter) ListFilter {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
