package orders

const (
	TopicOrderPlaced        = "order.placed"
	TopicOrderStatusChanged = "order.status_changed"

	EventOrderPlaced        = "OrderPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type PlacedItem struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
	UnitPrice string `json:"unit_price"`
}

type OrderPlacedPayload struct {
	OrderID string       `json:"order_id"`
	UserID  string       `json:"user_id"`
	Items   []PlacedItem `json:"items"`
	Total   string       `json:"total"`
}

type StatusChangedPayload struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
	From    Status `json:"from"`
	To      Status `json:"to"`
	ActorID string `json:"actor_id"`
}

func placedPayload(o *Order) OrderPlacedPayload {
	items := make([]PlacedItem, 0, len(o.Lines))
	for _, l := range o.Lines {
		items = append(items, PlacedItem{ProductID: l.ProductID, Qty: l.Quantity, UnitPrice: l.UnitPrice.StringFixed(2)})
	}
	return OrderPlacedPayload{OrderID: o.ID, UserID: o.UserID, Items: items, Total: o.Total.StringFixed(2)}
}
