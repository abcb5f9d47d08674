package catalog_test

import (
	"context"
	"testing"

	"github.com/ariefcatur/go-shop-orders/internal/catalog"
	"github.com/ariefcatur/go-shop-orders/internal/postgres/pgtest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPGRepository(t *testing.T) {
	pool := pgtest.NewPool(t)
	repo := &catalog.PGRepository{DB: pool}
	ctx := context.Background()

	p := &catalog.Product{ID: "P1", Name: "Mug", Category: "kitchen", Price: decimal.RequireFromString("9.99"), Stock: 5}
	require.NoError(t, repo.Create(ctx, p))
	assert.True(t, p.Active)
	assert.False(t, p.CreatedAt.IsZero())

	got, err := repo.GetProduct(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, "9.99", got.Price.StringFixed(2))

	stock, err := repo.GetStock(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, 5, stock)

	name := "Big Mug"
	updated, err := repo.Update(ctx, "P1", catalog.Patch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Big Mug", updated.Name)

	list, total, err := repo.List(ctx, catalog.ListFilter{Category: "kitchen"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)

	require.NoError(t, repo.Deactivate(ctx, "P1"))
	_, total, err = repo.List(ctx, catalog.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, total)

	_, err = repo.GetProduct(ctx, "missing")
	assert.ErrorIs(t, err, catalog.ErrProductNotFound)
}
