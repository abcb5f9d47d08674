package redisx

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Dedup records processed event ids for consumers.
type Dedup struct{ RDB *redis.Client }

func (d *Dedup) Seen(ctx context.Context, scope, id string) (bool, error) {
	return Exists(ctx, d.RDB, fmt.Sprintf(KeyDedup, scope, id))
}

func (d *Dedup) Mark(ctx context.Context, scope, id string) error {
	return d.RDB.Set(ctx, fmt.Sprintf(KeyDedup, scope, id), "1", TTLDedup).Err()
}
