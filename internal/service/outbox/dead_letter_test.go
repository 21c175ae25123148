package outbox

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/storage/memory"
)

func TestDecodeDeadLetter_RestoresOriginalMessage(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	enqueue(t, repo, "msg-dl")
	dlq := &stubPublisher{}
	NewWorker(repo, &stubPublisher{err: errors.New("broker down")}, WithDLQPublisher(dlq), noDelay).
		ProcessOnce(context.Background())

	dead := dlq.last()
	got, err := DecodeDeadLetter(dead.Payload, dead.Headers)
	if err != nil {
		t.Fatalf("DecodeDeadLetter: %v", err)
	}

	want := domain.OutboxMessage{
		ID:            "msg-dl",
		AggregateType: domain.AggregateOrder,
		AggregateID:   "order-msg-dl",
		EventType:     domain.EventOrderPlaced,
		Payload:       []byte(`{"order_number":1}`),
		Headers:       map[string]string{"traceparent": "00-abc-def-01"},
	}
	if diff := cmp.Diff(want, got.Message); diff != "" {
		t.Fatalf("restored message mismatch (-want +got):\n%s", diff)
	}
	if got.PublishError != "broker down" {
		t.Fatalf("unexpected publish error: %q", got.PublishError)
	}
	if got.FailedAt.IsZero() {
		t.Fatal("failure time must be kept")
	}
	if _, ok := dead.Headers[HeaderPublishError]; !ok {
		t.Fatal("decoding must not mutate the source headers")
	}
}

func TestDecodeDeadLetter_Rejects(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"not json":        `nope`,
		"no event type":   `{"aggregate_id":"o-1","payload":{}}`,
		"no payload":      `{"aggregate_id":"o-1","event_type":"order.placed"}`,
		"no aggregate id": `{"event_type":"order.placed","payload":{}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := DecodeDeadLetter([]byte(body), nil); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
