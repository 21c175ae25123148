package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/commerce/internal/service/outbox"
)

type fakeOffsets struct {
	partitions []int32
	oldest     map[int32]int64
	newest     map[int32]int64
	err        error
}

func (f *fakeOffsets) GetOffset(_ string, partition int32, at int64) (int64, error) {
	if at == sarama.OffsetOldest {
		return f.oldest[partition], nil
	}
	return f.newest[partition], nil
}

func (f *fakeOffsets) Partitions(string) ([]int32, error) { return f.partitions, f.err }
func (f *fakeOffsets) Close() error                       { return nil }

func dlqRecord(t *testing.T, outboxID string) *sarama.ConsumerMessage {
	t.Helper()
	dead, err := json.Marshal(map[string]any{
		"outbox_id":        outboxID,
		"aggregate_type":   domain.AggregateOrder,
		"aggregate_id":     "order-" + outboxID,
		"event_type":       domain.EventOrderPlaced,
		"payload":          json.RawMessage(`{"order_number":7}`),
		"publish_error":    "broker down",
		"dlq_published_at": time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}
	body, err := json.Marshal(kafka.Envelope{
		ID:            outboxID,
		AggregateType: domain.AggregateOrder,
		AggregateID:   "order-" + outboxID,
		EventType:     domain.EventOrderPlaced,
		Payload:       dead,
	})
	if err != nil {
		t.Fatal(err)
	}
	return &sarama.ConsumerMessage{
		Value: body,
		Headers: []*sarama.RecordHeader{
			{Key: []byte("traceparent"), Value: []byte("00-trace-span-01")},
			{Key: []byte(outbox.HeaderPublishError), Value: []byte("broker down")},
		},
	}
}

func testConfig(execute bool) config {
	return config{
		brokers:     []string{"localhost:9092"},
		sourceTopic: kafka.TopicDeadLetterQueue,
		targetTopic: kafka.TopicOrderEvents,
		limit:       10,
		execute:     execute,
		idleTimeout: 200 * time.Millisecond,
	}
}

func TestReadConfig(t *testing.T) {
	env := func(key string) string {
		if key == "KAFKA_BROKERS" {
			return "k1:9092, k2:9092"
		}
		return ""
	}

	cfg, err := readConfig([]string{"-limit=5", "-execute"}, env, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("readConfig failed: %v", err)
	}
	if len(cfg.brokers) != 2 || cfg.brokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers: %v", cfg.brokers)
	}
	if cfg.limit != 5 || !cfg.execute || cfg.sourceTopic != kafka.TopicDeadLetterQueue {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	bad := map[string][]string{
		"no brokers":   {"-brokers= "},
		"zero limit":   {"-brokers=k:1", "-limit=0"},
		"same topics":  {"-brokers=k:1", "-target-topic=" + kafka.TopicDeadLetterQueue},
		"zero timeout": {"-brokers=k:1", "-idle-timeout=0s"},
	}
	for name, args := range bad {
		t.Run(name, func(t *testing.T) {
			if _, err := readConfig(args, func(string) string { return "" }, &bytes.Buffer{}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestRunReplay_DryRunDoesNotPublish(t *testing.T) {
	consumer := mocks.NewConsumer(t, nil)
	pc := consumer.ExpectConsumePartition(kafka.TopicDeadLetterQueue, 0, 0)
	pc.YieldMessage(dlqRecord(t, "msg-1"))
	pc.YieldMessage(&sarama.ConsumerMessage{Value: []byte("garbage")})

	deps := replayDeps{
		client:   &fakeOffsets{partitions: []int32{0}, oldest: map[int32]int64{0: 0}, newest: map[int32]int64{0: 2}},
		consumer: consumer,
	}
	stats, err := runReplay(context.Background(), testConfig(false), deps)
	if err != nil {
		t.Fatalf("runReplay failed: %v", err)
	}
	if stats.processed != 2 || stats.replayed != 1 || stats.skipped != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestRunReplay_ExecuteRepublishesOriginalEvent(t *testing.T) {
	consumer := mocks.NewConsumer(t, nil)
	consumer.ExpectConsumePartition(kafka.TopicDeadLetterQueue, 1, 0).
		YieldMessage(dlqRecord(t, "msg-1")).
		YieldMessage(dlqRecord(t, "msg-2"))

	var published []string
	producer := mocks.NewSyncProducer(t, nil)
	for range 2 {
		producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
			if msg.Topic != kafka.TopicOrderEvents {
				return fmt.Errorf("unexpected topic %s", msg.Topic)
			}
			raw, _ := msg.Value.Encode()
			var env kafka.Envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				return err
			}
			if string(env.Payload) != `{"order_number":7}` || env.EventType != domain.EventOrderPlaced {
				return fmt.Errorf("original event not restored: %s", raw)
			}
			for _, h := range msg.Headers {
				switch string(h.Key) {
				case outbox.HeaderPublishError:
					return errors.New("publish error header must not be replayed")
				case "traceparent":
					if string(h.Value) != "00-trace-span-01" {
						return fmt.Errorf("trace header changed: %s", h.Value)
					}
				}
			}
			published = append(published, env.ID)
			return nil
		})
	}

	cfg := testConfig(true)
	deps := replayDeps{
		client:    &fakeOffsets{partitions: []int32{1}, oldest: map[int32]int64{1: 0}, newest: map[int32]int64{1: 2}},
		consumer:  consumer,
		publisher: kafka.NewOutboxPublisher(kafka.NewProducerFromSync(producer), cfg.targetTopic),
	}
	stats, err := runReplay(context.Background(), cfg, deps)
	if err != nil {
		t.Fatalf("runReplay failed: %v", err)
	}
	if stats.replayed != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if strings.Join(published, ",") != "msg-1,msg-2" {
		t.Fatalf("unexpected replay order: %v", published)
	}
	if err := producer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestRunReplay_RespectsLimitAcrossPartitions(t *testing.T) {
	consumer := mocks.NewConsumer(t, nil)
	consumer.ExpectConsumePartition(kafka.TopicDeadLetterQueue, 0, 0).
		YieldMessage(dlqRecord(t, "a")).
		YieldMessage(dlqRecord(t, "b"))

	cfg := testConfig(false)
	cfg.limit = 2
	deps := replayDeps{
		client: &fakeOffsets{
			partitions: []int32{1, 0},
			oldest:     map[int32]int64{0: 0, 1: 0},
			newest:     map[int32]int64{0: 2, 1: 5},
		},
		consumer: consumer,
	}
	stats, err := runReplay(context.Background(), cfg, deps)
	if err != nil {
		t.Fatalf("runReplay failed: %v", err)
	}
	if stats.processed != 2 {
		t.Fatalf("partition 1 must not be read after limit, stats %+v", stats)
	}
}

func TestRunReplay_Errors(t *testing.T) {
	if _, err := runReplay(context.Background(), testConfig(false), replayDeps{}); err == nil {
		t.Fatal("expected error without client")
	}

	consumer := mocks.NewConsumer(t, nil)
	deps := replayDeps{client: &fakeOffsets{}, consumer: consumer}
	if _, err := runReplay(context.Background(), testConfig(true), deps); err == nil {
		t.Fatal("expected error without publisher in execute mode")
	}

	deps.client = &fakeOffsets{err: sarama.ErrUnknownTopicOrPartition}
	if _, err := runReplay(context.Background(), testConfig(false), deps); !errors.Is(err, sarama.ErrUnknownTopicOrPartition) {
		t.Fatalf("expected partitions error, got %v", err)
	}

	deps.client = &fakeOffsets{}
	stats, err := runReplay(context.Background(), testConfig(false), deps)
	if err != nil || stats.processed != 0 {
		t.Fatalf("empty topic must be a no-op: %+v %v", stats, err)
	}
}
