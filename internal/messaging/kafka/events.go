package kafka

import (
	"encoding/json"
	"time"
)

// Топики событий оформления заказа.
const (
	TopicOrderEvents     = "commerce.order.events"
	TopicDeadLetterQueue = "commerce.order.dlq"
)

// Заголовки Kafka-сообщения, по которым потребитель фильтрует события
// без разбора тела.
const (
	HeaderEventType   = "x-event-type"
	HeaderAggregateID = "x-aggregate-id"
	HeaderOutboxID    = "x-outbox-id"
)

// Envelope: тело сообщения в топике событий заказа.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}
