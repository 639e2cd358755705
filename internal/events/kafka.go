package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Producer is the subset of *kafka.Writer the publisher needs.
type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaWriter constructs a writer for brokers. Publishing is synchronous
// per request, so batches are flushed after a few milliseconds.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

// KafkaPublisher writes order events to one topic keyed by order id.
type KafkaPublisher struct {
	log      *slog.Logger
	producer Producer
	topic    string
}

// NewKafkaPublisher constructs a KafkaPublisher.
func NewKafkaPublisher(log *slog.Logger, producer Producer, topic string) *KafkaPublisher {
	if log == nil {
		log = slog.Default()
	}
	return &KafkaPublisher{log: log, producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event OrderEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	key := event.OrderID
	if key == "" {
		key = event.RequestID
	}

	headers := []kafka.Header{{Key: "event_type", Value: []byte(event.Type)}}
	if event.RequestID != "" {
		headers = append(headers, kafka.Header{Key: "x-request-id", Value: []byte(event.RequestID)})
	}
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	msg := kafka.Message{
		Topic:   p.topic,
		Key:     []byte(key),
		Value:   payload,
		Headers: headers,
	}
	if err := p.producer.WriteMessages(ctx, msg); err != nil {
		p.log.ErrorContext(ctx, "order event publish failed", "type", event.Type, "order_id", event.OrderID, "err", err)
		return err
	}
	p.log.DebugContext(ctx, "order event published", "type", event.Type, "order_id", event.OrderID)
	return nil
}
