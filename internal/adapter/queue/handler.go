package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrBadMessage marks a delivery that can never succeed (malformed body,
// unknown schema). The router drops these instead of requeueing.
var ErrBadMessage = errors.New("bad message")

// Handler processes one delivery. Handlers must be idempotent: the broker
// redelivers on connection loss and the router requeues transient failures.
type Handler interface {
	Handle(ctx context.Context, d amqp.Delivery) error
}

// JSONHandler lifts a typed function into a Handler. Bodies that fail to
// decode are reported as ErrBadMessage so they don't loop forever.
type JSONHandler[T any] struct {
	HandleFunc func(ctx context.Context, msg T) error
}

func (h JSONHandler[T]) Handle(ctx context.Context, d amqp.Delivery) error {
	var msg T
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	return h.HandleFunc(ctx, msg)
}
