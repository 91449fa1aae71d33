package broker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	dialAttempts  = 10
	dialBackoff   = 2 * time.Second
	redialBackoff = 2 * time.Second
)

// AMQPBroker implements Broker over a RabbitMQ connection. It declares the
// durable topology on connect and re-dials in the background when the broker
// drops the connection; messages unacknowledged at disconnect are redelivered
// by the broker (at-least-once).
type AMQPBroker struct {
	url string

	mu        sync.Mutex
	conn      *amqp.Connection
	channel   *amqp.Channel
	consuming bool
	closed    bool

	deliveries chan Delivery
	done       chan struct{}
}

// NewAMQPBroker dials url and declares the exchange, queue and binding.
// Dialing is retried because RabbitMQ takes time to accept connections when
// starting under Docker.
func NewAMQPBroker(url string) (*AMQPBroker, error) {
	b := &AMQPBroker{
		url:        url,
		deliveries: make(chan Delivery),
		done:       make(chan struct{}),
	}
	if err := b.connect(); err != nil {
		return nil, err
	}
	go b.redialLoop()
	return b, nil
}

func (b *AMQPBroker) connect() error {
	var conn *amqp.Connection
	var err error

	for i := 0; i < dialAttempts; i++ {
		conn, err = amqp.Dial(b.url)
		if err == nil {
			break
		}
		log.Printf("broker: connect to RabbitMQ failed, retrying in %s (%d/%d): %v", dialBackoff, i+1, dialAttempts, err)
		time.Sleep(dialBackoff)
	}
	if err != nil {
		return fmt.Errorf("connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch); err != nil {
		conn.Close()
		return err
	}

	if err := ch.Qos(PrefetchCount, 0, false); err != nil {
		conn.Close()
		return fmt.Errorf("set prefetch: %w", err)
	}

	b.mu.Lock()
	b.conn = conn
	b.channel = ch
	consuming := b.consuming
	b.mu.Unlock()

	if consuming {
		return b.startConsume(ch)
	}
	return nil
}

// declareTopology is idempotent: redeclaring an existing exchange or queue
// with matching properties is a no-op on the broker side.
func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(
		ExchangeName,
		amqp.ExchangeDirect,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(
		QueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(QueueName, RoutingKey, ExchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// redialLoop watches for connection loss and re-establishes the connection
// with backoff until Close is called.
func (b *AMQPBroker) redialLoop() {
	for {
		b.mu.Lock()
		conn := b.conn
		b.mu.Unlock()

		closeCh := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-b.done:
			return
		case amqpErr := <-closeCh:
			if amqpErr == nil {
				// Clean shutdown.
				return
			}
			log.Printf("broker: connection lost: %v", amqpErr)
		}

		for {
			select {
			case <-b.done:
				return
			default:
			}
			if err := b.connect(); err != nil {
				log.Printf("broker: reconnect failed: %v", err)
				time.Sleep(redialBackoff)
				continue
			}
			log.Println("broker: reconnected to RabbitMQ")
			break
		}
	}
}

// Publish routes the event to the exchange under the fixed routing key,
// marked persistent so it survives a broker restart once accepted.
func (b *AMQPBroker) Publish(ctx context.Context, event StatusEvent) error {
	b.mu.Lock()
	ch := b.channel
	closed := b.closed
	b.mu.Unlock()

	if closed {
		return ErrClosed
	}

	body, err := event.Encode()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	err = ch.PublishWithContext(ctx,
		ExchangeName,
		RoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		})
	if err != nil {
		return fmt.Errorf("publish %s for order %s: %w", event.Status, event.OrderID, err)
	}
	return nil
}

// Consume starts (or returns the already-started) delivery stream from the
// bound queue. The stream pauses on connection loss and resumes once the
// redial loop has reconnected.
func (b *AMQPBroker) Consume(ctx context.Context) (<-chan Delivery, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	if b.consuming {
		b.mu.Unlock()
		return b.deliveries, nil
	}
	b.consuming = true
	ch := b.channel
	b.mu.Unlock()

	if err := b.startConsume(ch); err != nil {
		return nil, err
	}
	return b.deliveries, nil
}

func (b *AMQPBroker) startConsume(ch *amqp.Channel) error {
	msgs, err := ch.Consume(
		QueueName,
		"",    // consumer tag
		false, // auto-ack: messages are settled manually
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("start consume: %w", err)
	}

	go func() {
		for d := range msgs {
			select {
			case b.deliveries <- Delivery{
				Body:   d.Body,
				ack:    func() error { return d.Ack(false) },
				reject: func(requeue bool) error { return d.Nack(false, requeue) },
			}:
			case <-b.done:
				return
			}
		}
		// The amqp channel closed. The redial loop restarts consumption
		// after reconnecting, so this goroutine just exits.
	}()
	return nil
}

// Close shuts the connection down. In-flight acknowledgments complete only
// best-effort.
func (b *AMQPBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	conn := b.conn
	ch := b.channel
	b.mu.Unlock()

	close(b.done)
	if ch != nil {
		ch.Close()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}
