package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// dlqEnvelope: тело сообщения в DLQ: исходное событие и причина отказа.
type dlqEnvelope struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishError   string          `json:"publish_error"`
	DLQPublishedAt time.Time       `json:"dlq_published_at"`
}

// DeadLetter: событие, восстановленное из DLQ для повторной отправки.
type DeadLetter struct {
	Message      domain.OutboxMessage
	PublishError string
	FailedAt     time.Time
}

// DecodeDeadLetter разбирает payload DLQ-сообщения обратно в исходное
// сообщение outbox. Заголовок HeaderPublishError в результат не попадает.
func DecodeDeadLetter(payload []byte, headers map[string]string) (DeadLetter, error) {
	var env dlqEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return DeadLetter{}, fmt.Errorf("decode dlq payload: %w", err)
	}
	if env.EventType == "" || env.AggregateID == "" {
		return DeadLetter{}, errors.New("dlq payload has no event type or aggregate id")
	}
	if len(env.Payload) == 0 || !json.Valid(env.Payload) {
		return DeadLetter{}, errors.New("dlq payload does not contain the original event")
	}

	clean := maps.Clone(headers)
	delete(clean, HeaderPublishError)

	return DeadLetter{
		Message: domain.OutboxMessage{
			ID:            env.OutboxID,
			AggregateType: env.AggregateType,
			AggregateID:   env.AggregateID,
			EventType:     env.EventType,
			Payload:       []byte(env.Payload),
			Headers:       clean,
		},
		PublishError: env.PublishError,
		FailedAt:     env.DLQPublishedAt,
	}, nil
}
