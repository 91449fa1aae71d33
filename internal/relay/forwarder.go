package relay

import (
	"context"
	"log"

	"github.com/hfidelis/order-relay/internal/broker"
)

// Broadcaster fans a decoded event out to live subscribers. *ws.Hub
// implements it.
type Broadcaster interface {
	Broadcast(event broker.StatusEvent)
}

// EventSink receives every successfully relayed event. The Postgres history
// store implements it; writes are best-effort and never affect delivery.
type EventSink interface {
	Append(ctx context.Context, event broker.StatusEvent) error
}

// Forwarder is the long-running task between the broker and the hub: it
// takes each raw message from the consume stream, decodes it and broadcasts
// the event to all WebSocket subscribers. Messages are acknowledged only
// after the broadcast was attempted; malformed payloads are rejected without
// requeue since they cannot become valid on redelivery.
type Forwarder struct {
	broker broker.Broker
	hub    Broadcaster
	sink   EventSink

	ctx    context.Context
	cancel context.CancelFunc
}

// NewForwarder creates a Forwarder. sink may be nil when no event history is
// configured.
func NewForwarder(b broker.Broker, hub Broadcaster, sink EventSink) *Forwarder {
	ctx, cancel := context.WithCancel(context.Background())
	return &Forwarder{
		broker: b,
		hub:    hub,
		sink:   sink,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins consuming from the broker. It returns immediately; message
// handling runs in a background goroutine until Stop is called or the
// delivery stream ends.
func (f *Forwarder) Start() error {
	deliveries, err := f.broker.Consume(f.ctx)
	if err != nil {
		return err
	}
	go f.loop(deliveries)
	log.Println("relay: forwarder started")
	return nil
}

// Stop cancels the forwarder's context. Close the broker separately to stop
// the underlying consumer.
func (f *Forwarder) Stop() {
	f.cancel()
}

func (f *Forwarder) loop(deliveries <-chan broker.Delivery) {
	for {
		select {
		case <-f.ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			f.handle(d)
		}
	}
}

// handle settles exactly one delivery. No failure here may terminate the
// loop: anything unexpected rejects the message without requeue and the
// forwarder moves on to the next one.
func (f *Forwarder) handle(d broker.Delivery) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("relay: panic while handling message: %v", r)
			if err := d.Reject(false); err != nil {
				log.Printf("relay: reject after panic failed: %v", err)
			}
		}
	}()

	event, err := broker.DecodeStatusEvent(d.Body)
	if err != nil {
		log.Printf("relay: dropping malformed message: %v", err)
		if err := d.Reject(false); err != nil {
			log.Printf("relay: reject failed: %v", err)
		}
		return
	}

	f.hub.Broadcast(event)

	if f.sink != nil {
		if err := f.sink.Append(f.ctx, event); err != nil {
			log.Printf("relay: failed to record event for order %s: %v", event.OrderID, err)
		}
	}

	// Ack strictly after the broadcast was attempted, so a crash in between
	// causes redelivery rather than silent loss. Delivery to individual
	// subscribers stays best-effort.
	if err := d.Ack(); err != nil {
		log.Printf("relay: ack failed: %v", err)
	}
}
