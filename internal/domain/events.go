package domain

import (
	"encoding/json"
	"time"
)

// OrderPlacedItem: позиция в событии order.placed.
type OrderPlacedItem struct {
	LineItemID  string `json:"line_item_id"`
	VariationID string `json:"variation_id"`
	Title       string `json:"title"`
	Quantity    int32  `json:"quantity"`
	UnitPrice   Price  `json:"unit_price"`
	TotalPrice  Price  `json:"total_price"`
}

// OrderPlaced: событие завершения оформления заказа.
type OrderPlaced struct {
	OrderID     string            `json:"order_id"`
	OrderNumber int64             `json:"order_number"`
	StoreID     string            `json:"store_id"`
	OwnerID     string            `json:"owner_id,omitempty"`
	Email       string            `json:"email"`
	Guest       bool              `json:"guest"`
	Total       Price             `json:"total"`
	Items       []OrderPlacedItem `json:"items"`
	PlacedAt    time.Time         `json:"placed_at"`
}

// NewOrderPlaced строит событие по завершённому заказу.
func NewOrderPlaced(order Order) OrderPlaced {
	items := make([]OrderPlacedItem, 0, len(order.LineItems))
	for _, li := range order.LineItems {
		items = append(items, OrderPlacedItem{
			LineItemID:  li.ID,
			VariationID: li.PurchasedEntity.ID,
			Title:       li.Title,
			Quantity:    li.Quantity,
			UnitPrice:   li.UnitPrice,
			TotalPrice:  li.TotalPrice,
		})
	}
	return OrderPlaced{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		StoreID:     order.StoreID,
		OwnerID:     order.OwnerID,
		Email:       order.Email,
		Guest:       order.OwnerID == "",
		Total:       order.Total,
		Items:       items,
		PlacedAt:    order.PlacedAt,
	}
}

// CheckoutStarted: событие перехода корзины в оформление.
type CheckoutStarted struct {
	OrderID   string    `json:"order_id"`
	StoreID   string    `json:"store_id"`
	OwnerID   string    `json:"owner_id,omitempty"`
	Total     Price     `json:"total"`
	StartedAt time.Time `json:"started_at"`
}

// MarshalEvent сериализует полезную нагрузку события для outbox.
func MarshalEvent(v any) ([]byte, error) {
	return json.Marshal(v)
}
