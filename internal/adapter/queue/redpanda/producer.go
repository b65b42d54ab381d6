// Package redpanda publishes and consumes interview-completed events on
// Redpanda/Kafka.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
)

// DefaultTopic carries one event per finalized interview.
const DefaultTopic = "interview-completed"

// EventType is set in the event_type header of every record.
const EventType = "interview.completed"

type syncProducer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Producer implements domain.EventPublisher.
type Producer struct {
	client syncProducer
	topic  string
}

func kotelHooks() kgo.Opt {
	tracer := kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))
	return kgo.WithHooks(kotel.NewKotel(kotel.WithTracer(tracer)).Hooks()...)
}

// NewProducer connects to brokers and makes sure topic exists.
func NewProducer(ctx context.Context, brokers []string, topic string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=redpanda.NewProducer: no seed brokers provided")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1000000),
		kgo.DialTimeout(10*time.Second),
		kotelHooks(),
	)
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.NewProducer: %w", err)
	}
	if err := EnsureTopic(ctx, client, topic, 1, 1); err != nil {
		slog.Warn("failed to ensure topic, it may already exist", slog.String("topic", topic), slog.Any("error", err))
	}
	return &Producer{client: client, topic: topic}, nil
}

var _ domain.EventPublisher = (*Producer)(nil)

// PublishInterviewCompleted produces the event keyed by record id and waits for the
// broker acknowledgement.
func (p *Producer) PublishInterviewCompleted(ctx context.Context, ev domain.InterviewCompletedEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("op=redpanda.Publish: %w: %v", domain.ErrInternal, err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(ev.Record.ID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(EventType)},
			{Key: "record_id", Value: []byte(ev.Record.ID)},
			{Key: "session_id", Value: []byte(ev.Record.SessionID)},
		},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("op=redpanda.Publish: %w", err)
	}
	slog.Info("interview completed event published", slog.String("record_id", ev.Record.ID), slog.String("topic", p.topic))
	return nil
}

// Close flushes and closes the client.
func (p *Producer) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	return nil
}
