package redpanda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
)

// Handler processes one interview-completed event.
type Handler func(ctx context.Context, ev domain.InterviewCompletedEvent) error

type fetchClient interface {
	PollFetches(ctx context.Context) kgo.Fetches
	MarkCommitRecords(rs ...*kgo.Record)
	Close()
}

// Consumer feeds interview-completed events to a Handler. Offsets are marked after
// each record and committed in the background.
type Consumer struct {
	client     fetchClient
	handle     Handler
	maxRetries uint64
	retryDelay time.Duration
}

// NewConsumer joins groupID on topic.
func NewConsumer(ctx context.Context, brokers []string, groupID, topic string, handle Handler) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=redpanda.NewConsumer: no seed brokers provided")
	}
	if groupID == "" {
		return nil, fmt.Errorf("op=redpanda.NewConsumer: missing required group ID")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DialTimeout(10*time.Second),
		kgo.SessionTimeout(30*time.Second),
		kgo.HeartbeatInterval(3*time.Second),
		kgo.FetchMaxWait(5*time.Second),
		kgo.AutoCommitMarks(),
		kgo.AutoCommitInterval(time.Second),
		kotelHooks(),
	)
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.NewConsumer: %w", err)
	}
	if err := EnsureTopic(ctx, client, topic, 1, 1); err != nil {
		slog.Warn("failed to ensure topic, it may already exist", slog.String("topic", topic), slog.Any("error", err))
	}
	return newConsumer(client, handle), nil
}

func newConsumer(client fetchClient, handle Handler) *Consumer {
	return &Consumer{client: client, handle: handle, maxRetries: 3, retryDelay: time.Second}
}

// Run polls until ctx is cancelled or the client is closed.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if !errors.Is(err, context.Canceled) {
				slog.Error("fetch error", slog.String("topic", topic), slog.Int("partition", int(partition)), slog.Any("error", err))
			}
		})
		fetches.EachRecord(func(r *kgo.Record) {
			c.process(ctx, r)
			c.client.MarkCommitRecords(r)
		})
	}
}

// process never blocks the partition: undecodable events and events that keep failing
// are logged and skipped.
func (c *Consumer) process(ctx context.Context, r *kgo.Record) {
	var ev domain.InterviewCompletedEvent
	if err := json.Unmarshal(r.Value, &ev); err != nil {
		slog.Error("dropping undecodable event", slog.Int64("offset", r.Offset), slog.Any("error", err))
		return
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryDelay), c.maxRetries), ctx)
	err := backoff.RetryNotify(func() error { return c.handle(ctx, ev) }, b, func(err error, wait time.Duration) {
		slog.Warn("event handler failed, retrying", slog.String("record_id", ev.Record.ID), slog.Duration("wait", wait), slog.Any("error", err))
	})
	if err != nil {
		slog.Error("event handler gave up", slog.String("record_id", ev.Record.ID), slog.Int64("offset", r.Offset), slog.Any("error", err))
	}
}

// Close leaves the group and closes the client.
func (c *Consumer) Close() error {
	c.client.Close()
	return nil
}
