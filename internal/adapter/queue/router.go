package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Router consumes from the queues registered on it, one goroutine per
// queue, all sharing a single AMQP channel.
type Router struct {
	ch          *amqp.Channel
	log         *slog.Logger
	prefetch    int
	callTimeout time.Duration
	bindings    map[string]Handler
}

type RouterOption func(*Router)

func WithPrefetch(n int) RouterOption          { return func(r *Router) { r.prefetch = n } }
func WithTimeout(d time.Duration) RouterOption { return func(r *Router) { r.callTimeout = d } }

func NewRouter(ch *amqp.Channel, log *slog.Logger, opts ...RouterOption) *Router {
	r := &Router{
		ch:          ch,
		log:         log,
		prefetch:    20,
		callTimeout: 15 * time.Second,
		bindings:    make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds a queue to a handler. Registering the same queue twice
// replaces the previous handler.
func (r *Router) Register(queueName string, h Handler) {
	r.bindings[queueName] = h
}

// Start opens one consumer per registered queue and returns. Consumers
// run until ctx is cancelled or the channel closes underneath them.
//
// Ack policy: nil error acks. ErrBadMessage drops the delivery. Any other
// error requeues once; a redelivered message that fails again is dropped
// so a persistent failure cannot wedge the queue.
func (r *Router) Start(ctx context.Context) error {
	if err := r.ch.Qos(r.prefetch, 0, false); err != nil {
		return err
	}

	for queueName, h := range r.bindings {
		tag := "mallcore." + queueName
		deliveries, err := r.ch.Consume(queueName, tag, false, false, false, false, nil)
		if err != nil {
			return err
		}
		go r.consume(ctx, queueName, tag, h, deliveries)
	}
	return nil
}

func (r *Router) consume(ctx context.Context, queueName, tag string, h Handler, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			_ = r.ch.Cancel(tag, false)
			return
		case d, ok := <-deliveries:
			if !ok {
				r.log.Info("consumer channel closed", "queue", queueName)
				return
			}
			r.dispatch(ctx, queueName, h, d)
		}
	}
}

func (r *Router) dispatch(ctx context.Context, queueName string, h Handler, d amqp.Delivery) {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	err := h.Handle(callCtx, d)
	cancel()

	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, ErrBadMessage):
		r.log.Error("dropping malformed delivery",
			"queue", queueName, "rk", d.RoutingKey, "err", err)
		_ = d.Nack(false, false)
	default:
		requeue := !d.Redelivered
		r.log.Error("handler failed",
			"queue", queueName, "rk", d.RoutingKey, "requeue", requeue, "err", err)
		_ = d.Nack(false, requeue)
	}
}
