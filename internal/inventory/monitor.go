package inventory

import (
	"context"
	"log/slog"

	"github.com/ariefcatur/go-shop-orders/internal/catalog"
	kafkax "github.com/ariefcatur/go-shop-orders/internal/kafka"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	TopicLowStock = "inventory.low_stock"
	EventLowStock = "LowStock"
)

type LowStockPayload struct {
	ProductID string `json:"product_id"`
	Stock     int    `json:"stock"`
	Threshold int    `json:"threshold"`
	OrderID   string `json:"order_id"`
}

// Deduper remembers processed event ids.
type Deduper interface {
	Seen(ctx context.Context, scope, id string) (bool, error)
	Mark(ctx context.Context, scope, id string) error
}

const dedupScope = "low-stock"

// LowStockMonitor consumes order.placed and announces products whose stock
// fell to or below the threshold.
type LowStockMonitor struct {
	Stock       catalog.Reader
	Publisher   kafkax.Publisher
	Dedup       Deduper
	Threshold   int
	ServiceName string
	Log         *slog.Logger
}

func (m *LowStockMonitor) HandleOrderPlaced(ctx context.Context, msg kafkago.Message) error {
	env, err := kafkax.DecodeEnvelope(msg.Value)
	if err != nil {
		return err
	}
	if env.EventType != orders.EventOrderPlaced {
		return nil
	}

	if m.Dedup != nil {
		seen, err := m.Dedup.Seen(ctx, dedupScope, env.EventID)
		if err != nil {
			return err
		}
		if seen {
			return nil
		}
	}

	p, err := kafkax.UnwrapPayload[orders.OrderPlacedPayload](env.Payload)
	if err != nil {
		return err
	}

	for _, it := range p.Items {
		stock, err := m.Stock.GetStock(ctx, it.ProductID)
		if err != nil {
			return err
		}
		if stock > m.Threshold {
			continue
		}
		m.Log.WarnContext(ctx, "low stock", "product_id", it.ProductID, "stock", stock, "order_id", p.OrderID)
		if err := kafkax.Emit(ctx, m.Publisher, TopicLowStock, m.ServiceName, EventLowStock, it.ProductID, LowStockPayload{
			ProductID: it.ProductID,
			Stock:     stock,
			Threshold: m.Threshold,
			OrderID:   p.OrderID,
		}); err != nil {
			return err
		}
	}

	if m.Dedup != nil {
		return m.Dedup.Mark(ctx, dedupScope, env.EventID)
	}
	return nil
}
