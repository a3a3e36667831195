package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/npquoc/mallcore/internal/usecase"
)

// StatusProducer implements usecase.StatusPublisher, keyed by order id so
// one order's transitions stay in partition order.
type StatusProducer struct {
	producer sarama.SyncProducer
	topic    string
}

func NewStatusProducer(p sarama.SyncProducer, topic string) *StatusProducer {
	return &StatusProducer{producer: p, topic: topic}
}

func (p *StatusProducer) PublishStatusChanged(_ context.Context, msg usecase.OrderStatusChangedMsg) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}
	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(msg.OrderID),
		Value: sarama.ByteEncoder(body),
	})
	if err != nil {
		return fmt.Errorf("send status event: %w", err)
	}
	return nil
}

var _ usecase.StatusPublisher = (*StatusProducer)(nil)
