// Package events publishes history library changes to a Kafka-compatible
// broker such as Redpanda.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/YumeNoTenshi/ecoscan/internal/models"
)

// TypeHistorySaved is the event type emitted when an assessment is saved.
const TypeHistorySaved = "history.saved"

// Event is the JSON envelope written to the topic.
type Event struct {
	Type       string               `json:"type"`
	OccurredAt time.Time            `json:"occurredAt"`
	Record     models.HistoryRecord `json:"record"`
}

// Publisher emits history events.
type Publisher interface {
	PublishHistorySaved(ctx context.Context, rec models.HistoryRecord) error
	Close()
}

// NoopPublisher drops every event. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishHistorySaved(context.Context, models.HistoryRecord) error { return nil }
func (NoopPublisher) Close()                                                          {}

// producer is the part of *kgo.Client the publisher needs.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// KafkaPublisher writes events keyed by record id.
type KafkaPublisher struct {
	client producer
	topic  string
	logger *slog.Logger
	now    func() time.Time
}

// NewKafkaPublisher connects to a comma-separated broker list.
func NewKafkaPublisher(brokers, topic string, logger *slog.Logger) (*KafkaPublisher, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(strings.Split(brokers, ",")...),
		kgo.DefaultProduceTopic(topic),
		kgo.AllowAutoTopicCreation(),
		kgo.RetryTimeout(30 * time.Second),
		kgo.RetryBackoffFn(func(attempts int) time.Duration {
			return time.Duration(attempts) * time.Second
		}),
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return newKafkaPublisher(client, topic, logger), nil
}

func newKafkaPublisher(client producer, topic string, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{client: client, topic: topic, logger: logger, now: time.Now}
}

func (p *KafkaPublisher) PublishHistorySaved(ctx context.Context, rec models.HistoryRecord) error {
	payload, err := json.Marshal(Event{Type: TypeHistorySaved, OccurredAt: p.now().UTC(), Record: rec})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(rec.ID),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "type", Value: []byte(TypeHistorySaved)},
		},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce %s: %w", TypeHistorySaved, err)
	}
	p.logger.Debug("event published", "type", TypeHistorySaved, "record_id", rec.ID, "topic", p.topic)
	return nil
}

func (p *KafkaPublisher) Close() { p.client.Close() }
