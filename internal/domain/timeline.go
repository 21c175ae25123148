package domain

import "time"

// Типы событий таймлайна заказа.
const (
	TimelineCartCreated     = "cart_created"
	TimelineCheckoutStarted = "checkout_started"
	TimelineStepCompleted   = "step_completed"
	TimelineOrderPlaced     = "order_placed"
	TimelineCartAssigned    = "cart_assigned"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}
