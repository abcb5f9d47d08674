package orders_test

import (
	"context"
	"testing"
	"time"

	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/ariefcatur/go-shop-orders/internal/postgres/pgtest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPGRepository(t *testing.T) {
	pool := pgtest.NewPool(t)
	repo := &orders.PGRepository{DB: pool}
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	ls, total := lines()
	o := &orders.Order{
		ID:              "o-1",
		UserID:          "u1",
		Lines:           ls,
		Total:           total,
		Status:          orders.StatusPending,
		ShippingAddress: &orders.Address{Name: "A", Line1: "1 Road", City: "X", PostalCode: "1", Country: "ID"},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, repo.Insert(ctx, o))

	got, err := repo.Get(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "20.00", got.Total.StringFixed(2))
	require.Len(t, got.Lines, 2)
	assert.Equal(t, "P1", got.Lines[0].ProductID)
	assert.True(t, got.Lines[0].UnitPrice.Equal(decimal.RequireFromString("9.99")))
	require.NotNil(t, got.ShippingAddress)
	assert.Equal(t, "1 Road", got.ShippingAddress.Line1)

	list, n, err := repo.ListByUser(ctx, "u1", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, list, 1)
	assert.Len(t, list[0].Lines, 2)

	require.NoError(t, repo.UpdateStatus(ctx, "o-1", orders.StatusPending, orders.StatusProcessing, now.Add(time.Second)))
	assert.Error(t, repo.UpdateStatus(ctx, "o-1", orders.StatusPending, orders.StatusCancelled, now))
	assert.ErrorIs(t, repo.UpdateStatus(ctx, "missing", orders.StatusPending, orders.StatusCancelled, now), orders.ErrOrderNotFound)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
}
