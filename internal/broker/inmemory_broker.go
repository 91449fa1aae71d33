package broker

import (
	"context"
	"fmt"
	"sync"
)

const inMemoryQueueDepth = 1024

// InMemoryBroker is a simple, single-process Broker backed by a Go channel.
// It is suitable for tests and single-node development; it does not survive
// a restart and Ack is a no-op.
type InMemoryBroker struct {
	mu         sync.Mutex
	queue      chan []byte
	deliveries chan Delivery
	closed     bool
	done       chan struct{}
}

// NewInMemoryBroker creates an InMemoryBroker. The dispatch goroutine starts
// on the first Consume call; call Close to stop it.
func NewInMemoryBroker() *InMemoryBroker {
	return &InMemoryBroker{
		queue: make(chan []byte, inMemoryQueueDepth),
		done:  make(chan struct{}),
	}
}

// Publish encodes the event and enqueues it.
func (b *InMemoryBroker) Publish(ctx context.Context, event StatusEvent) error {
	body, err := event.Encode()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return b.PublishRaw(body)
}

// PublishRaw enqueues an arbitrary payload. Tests use it to exercise the
// malformed-message path.
func (b *InMemoryBroker) PublishRaw(body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	select {
	case b.queue <- body:
		return nil
	default:
		return fmt.Errorf("in-memory queue full (%d messages)", inMemoryQueueDepth)
	}
}

// Consume starts (or returns the already-started) delivery stream.
func (b *InMemoryBroker) Consume(ctx context.Context) (<-chan Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	if b.deliveries != nil {
		return b.deliveries, nil
	}
	b.deliveries = make(chan Delivery)
	go b.dispatch(ctx)
	return b.deliveries, nil
}

func (b *InMemoryBroker) dispatch(ctx context.Context) {
	for {
		select {
		case <-b.done:
			return
		case <-ctx.Done():
			return
		case body := <-b.queue:
			d := Delivery{
				Body: body,
				reject: func(requeue bool) error {
					if requeue {
						return b.PublishRaw(body)
					}
					return nil
				},
			}
			select {
			case b.deliveries <- d:
			case <-b.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

// Close stops the dispatch goroutine and prevents further use.
func (b *InMemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	close(b.done)
	return nil
}
