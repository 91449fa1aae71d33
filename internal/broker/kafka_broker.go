package broker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig holds configuration for the Kafka broker.
type KafkaConfig struct {
	Brokers       []string // list of broker addresses
	Topic         string   // defaults to the queue name
	ConsumerGroup string   // consumer group ID
}

// KafkaBroker implements Broker over Apache Kafka via segmentio/kafka-go.
// A single topic stands in for the exchange/queue pair and the routing key
// becomes the message key. Ack commits the offset; Reject without requeue
// commits the offset without processing, Reject with requeue leaves it
// uncommitted so the message is fetched again after a restart or rebalance.
type KafkaBroker struct {
	config KafkaConfig
	writer *kafka.Writer

	mu         sync.Mutex
	reader     *kafka.Reader
	deliveries chan Delivery
	closed     bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewKafkaBroker creates a new KafkaBroker. The shared producer starts
// immediately; the consumer starts on the first Consume call.
func NewKafkaBroker(config KafkaConfig) (*KafkaBroker, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("at least one Kafka broker address is required")
	}
	if config.Topic == "" {
		config.Topic = QueueName
	}
	if config.ConsumerGroup == "" {
		config.ConsumerGroup = "order-relay"
	}

	ctx, cancel := context.WithCancel(context.Background())

	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		Async:        false,
	}

	return &KafkaBroker{
		config: config,
		writer: writer,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Publish serializes the event to JSON and writes it to the topic.
func (b *KafkaBroker) Publish(ctx context.Context, event StatusEvent) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	value, err := event.Encode()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(RoutingKey),
		Value: value,
	}
	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write to kafka: %w", err)
	}
	return nil
}

// Consume starts the consumer group reader and returns the delivery stream.
func (b *KafkaBroker) Consume(ctx context.Context) (<-chan Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	if b.deliveries != nil {
		return b.deliveries, nil
	}

	b.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:       b.config.Brokers,
		Topic:         b.config.Topic,
		GroupID:       b.config.ConsumerGroup,
		MinBytes:      1,
		MaxBytes:      10e6, // 10MB
		MaxWait:       500 * time.Millisecond,
		QueueCapacity: PrefetchCount,
	})
	b.deliveries = make(chan Delivery)

	go b.consumeLoop()
	return b.deliveries, nil
}

func (b *KafkaBroker) consumeLoop() {
	for {
		msg, err := b.reader.FetchMessage(b.ctx)
		if err != nil {
			if b.ctx.Err() != nil {
				return // shutting down
			}
			log.Printf("broker: kafka fetch error: %v", err)
			continue
		}

		m := msg
		select {
		case b.deliveries <- Delivery{
			Body: m.Value,
			ack:  func() error { return b.reader.CommitMessages(b.ctx, m) },
			reject: func(requeue bool) error {
				if requeue {
					// Leave the offset uncommitted; the message is
					// fetched again after a restart or rebalance.
					return nil
				}
				return b.reader.CommitMessages(b.ctx, m)
			},
		}:
		case <-b.ctx.Done():
			return
		}
	}
}

// Close shuts down the consumer and the producer.
func (b *KafkaBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.cancel()

	var firstErr error
	if b.reader != nil {
		if err := b.reader.Close(); err != nil {
			firstErr = err
		}
	}
	if err := b.writer.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
