package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/IBM/sarama"

	"github.com/npquoc/mallcore/internal/usecase"
)

// HandlerFunc processes a decoded broadcast notice.
type HandlerFunc func(ctx context.Context, ev usecase.BroadcastMsg) error

// Consumer runs a consumer-group session over the broadcast topics,
// decoding each record and handing it to a single handler.
type Consumer struct {
	group  sarama.ConsumerGroup
	topics []string
	handle HandlerFunc
	log    *slog.Logger
}

func NewConsumer(group sarama.ConsumerGroup, topics []string, h HandlerFunc, log *slog.Logger) *Consumer {
	return &Consumer{group: group, topics: topics, handle: h, log: log}
}

// Start blocks until ctx is cancelled, rejoining the group after every
// rebalance.
func (c *Consumer) Start(ctx context.Context) error {
	claims := &claimRunner{handle: c.handle, log: c.log}
	for {
		if err := c.group.Consume(ctx, c.topics, claims); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

type claimRunner struct {
	handle HandlerFunc
	log    *slog.Logger
}

func (r *claimRunner) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (r *claimRunner) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (r *claimRunner) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		var ev usecase.BroadcastMsg
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			r.log.Error("undecodable record, skipping",
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
			sess.MarkMessage(msg, "decode-error")
			continue
		}
		if err := r.handle(sess.Context(), ev); err != nil {
			// leave the offset unmarked so the record is retried
			r.log.Error("broadcast handler failed",
				"topic", msg.Topic, "offset", msg.Offset, "err", err)
			continue
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}
