package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/redis/go-redis/v9"
)

// OrderCache stores single orders as JSON.
type OrderCache struct{ RDB *redis.Client }

func (c *OrderCache) Get(ctx context.Context, id string) (*orders.Order, error) {
	b, err := c.RDB.Get(ctx, fmt.Sprintf(KeyOrder, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var o orders.Order
	if err := json.Unmarshal(b, &o); err != nil {
		return nil, fmt.Errorf("decode cached order %s: %w", id, err)
	}
	return &o, nil
}

// Fill caches o unless an entry is already present.
func (c *OrderCache) Fill(ctx context.Context, o *orders.Order) error {
	b, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return c.RDB.SetNX(ctx, fmt.Sprintf(KeyOrder, o.ID), b, TTLOrderCache).Err()
}

func (c *OrderCache) Set(ctx context.Context, o *orders.Order) error {
	b, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return c.RDB.Set(ctx, fmt.Sprintf(KeyOrder, o.ID), b, TTLOrderCache).Err()
}

func (c *OrderCache) Invalidate(ctx context.Context, id string) error {
	return c.RDB.Del(ctx, fmt.Sprintf(KeyOrder, id)).Err()
}

var _ orders.Cache = (*OrderCache)(nil)
