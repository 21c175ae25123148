package kafka

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// OutboxPublisher отправляет сообщения outbox в один топик.
type OutboxPublisher struct {
	producer *Producer
	topic    string
}

// NewOutboxPublisher по умолчанию пишет в TopicOrderEvents.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxPublisher{producer: producer, topic: topic}
}

// Publish ключует сообщение по заказу, чтобы события одного заказа шли по порядку.
func (p *OutboxPublisher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errors.New("kafka outbox publisher is not initialized")
	}

	key := msg.AggregateID
	if key == "" {
		key = msg.ID
	}

	payload := json.RawMessage(msg.Payload)
	if !json.Valid(payload) {
		return errors.New("outbox payload is not valid json")
	}
	body, err := json.Marshal(Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		PublishedAt:   p.producer.now(),
	})
	if err != nil {
		return err
	}

	headers := make(map[string]string, len(msg.Headers)+3)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[HeaderEventType] = msg.EventType
	headers[HeaderAggregateID] = msg.AggregateID
	headers[HeaderOutboxID] = msg.ID

	return p.producer.Send(ctx, p.topic, key, body, headers)
}

var _ domain.OutboxPublisher = (*OutboxPublisher)(nil)
