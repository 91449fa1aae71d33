package broker

import (
	"context"
	"errors"
)

// ErrClosed is returned by Publish and Consume after Close.
var ErrClosed = errors.New("broker is closed")

// Delivery is one raw message taken from the queue. The consumer must settle
// it exactly once via Ack or Reject; an unsettled message counts against the
// prefetch window and is redelivered if the connection drops.
type Delivery struct {
	Body []byte

	ack    func() error
	reject func(requeue bool) error
}

// NewDelivery wraps a raw payload with its settlement callbacks. Broker
// implementations and tests use it; either callback may be nil.
func NewDelivery(body []byte, ack func() error, reject func(requeue bool) error) Delivery {
	return Delivery{Body: body, ack: ack, reject: reject}
}

// Ack acknowledges the message to the broker.
func (d Delivery) Ack() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

// Reject negatively acknowledges the message. With requeue=false the message
// is dropped permanently; with requeue=true the broker redelivers it.
func (d Delivery) Reject(requeue bool) error {
	if d.reject == nil {
		return nil
	}
	return d.reject(requeue)
}

// Broker defines the interface for publishing and consuming order status
// events. Implementations include AMQPBroker (RabbitMQ), KafkaBroker and
// InMemoryBroker (for tests and single-node setups).
type Broker interface {
	// Publish serializes the event, marks it durable and routes it under the
	// fixed routing key. A failure loses that single transition only.
	Publish(ctx context.Context, event StatusEvent) error

	// Consume returns a channel of deliveries from the bound queue, honoring
	// the prefetch bound. Calling Consume more than once returns the same
	// channel.
	Consume(ctx context.Context) (<-chan Delivery, error)

	// Close shuts down the broker, releasing connections and goroutines.
	// In-flight acknowledgments are best-effort. After Close returns,
	// Publish and Consume must not be called.
	Close() error
}
