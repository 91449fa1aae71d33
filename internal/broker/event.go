package broker

import (
	"encoding/json"
	"fmt"
	"time"
)

// Broker wire topology. Declared idempotently at startup; the simulator and
// the relay both assume these names, so they can run as separate processes
// against the same broker.
const (
	ExchangeName = "orders"
	QueueName    = "order_updates"
	RoutingKey   = "order.update"

	// PrefetchCount bounds the number of unacknowledged messages a consumer
	// may hold, providing backpressure against a slow forwarder.
	PrefetchCount = 50
)

// Status is an order lifecycle stage.
type Status string

const (
	StatusPrepared  Status = "prepared"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
)

// Stages lists the lifecycle stages in the order they are published.
var Stages = []Status{StatusPrepared, StatusShipped, StatusDelivered}

// Valid reports whether s is a known lifecycle stage.
func (s Status) Valid() bool {
	switch s {
	case StatusPrepared, StatusShipped, StatusDelivered:
		return true
	}
	return false
}

// StatusEvent is a single order lifecycle transition as it travels over the
// broker and out to WebSocket subscribers. Immutable once constructed;
// duplicates are possible under at-least-once delivery.
type StatusEvent struct {
	OrderID string `json:"order_id"`
	Status  Status `json:"status"`
	TS      string `json:"ts"`
}

// NewStatusEvent creates a StatusEvent stamped with the current UTC time.
func NewStatusEvent(orderID string, status Status) StatusEvent {
	return StatusEvent{
		OrderID: orderID,
		Status:  status,
		TS:      time.Now().UTC().Format(time.RFC3339),
	}
}

// Encode serializes the event to its UTF-8 JSON wire form.
func (e StatusEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeStatusEvent parses a broker payload. It fails on invalid JSON, a
// missing order_id, or an unknown status, so malformed payloads are dropped
// before they can reach any subscriber.
func DecodeStatusEvent(body []byte) (StatusEvent, error) {
	var e StatusEvent
	if err := json.Unmarshal(body, &e); err != nil {
		return StatusEvent{}, fmt.Errorf("decode status event: %w", err)
	}
	if e.OrderID == "" {
		return StatusEvent{}, fmt.Errorf("decode status event: missing order_id")
	}
	if !e.Status.Valid() {
		return StatusEvent{}, fmt.Errorf("decode status event: unknown status %q", e.Status)
	}
	return e, nil
}
