package redpanda

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kmsg"
)

// Requester issues raw Kafka protocol requests; *kgo.Client satisfies it.
type Requester interface {
	Request(ctx context.Context, req kmsg.Request) (kmsg.Response, error)
}

// EnsureTopic creates topic when it does not exist yet. An existing topic is not an
// error.
func EnsureTopic(ctx context.Context, client Requester, topic string, partitions int32, replicationFactor int16) error {
	if topic == "" {
		return fmt.Errorf("op=redpanda.EnsureTopic: topic name cannot be empty")
	}
	if partitions <= 0 || replicationFactor <= 0 {
		return fmt.Errorf("op=redpanda.EnsureTopic: partitions and replication factor must be positive")
	}

	req := kmsg.NewCreateTopicsRequest()
	req.TimeoutMillis = 30000
	topicReq := kmsg.NewCreateTopicsRequestTopic()
	topicReq.Topic = topic
	topicReq.NumPartitions = partitions
	topicReq.ReplicationFactor = replicationFactor
	req.Topics = append(req.Topics, topicReq)

	resp, err := client.Request(ctx, &req)
	if err != nil {
		return fmt.Errorf("op=redpanda.EnsureTopic: request failed: %w", err)
	}
	createResp, ok := resp.(*kmsg.CreateTopicsResponse)
	if !ok {
		return fmt.Errorf("op=redpanda.EnsureTopic: unexpected response type: %T", resp)
	}
	for _, t := range createResp.Topics {
		err := kerr.ErrorForCode(t.ErrorCode)
		switch {
		case err == nil:
			slog.Info("topic created", slog.String("topic", t.Topic), slog.Int("partitions", int(partitions)))
		case errors.Is(err, kerr.TopicAlreadyExists):
			slog.Debug("topic already exists", slog.String("topic", t.Topic))
		default:
			msg := ""
			if t.ErrorMessage != nil {
				msg = *t.ErrorMessage
			}
			return fmt.Errorf("op=redpanda.EnsureTopic: %s: %w %s", t.Topic, err, msg)
		}
	}
	return nil
}
