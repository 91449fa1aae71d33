package simulator

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"github.com/hfidelis/order-relay/internal/broker"
)

const (
	maxOrders = 5000

	defaultMinDelayMs = 300
	defaultMaxDelayMs = 1200

	orderIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	orderIDLength   = 8
)

// ValidationError reports invalid simulation parameters. When one is
// returned nothing has been scheduled and no publish has occurred.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

// Request carries the simulation parameters. The delay bounds default to
// 300/1200ms when omitted.
type Request struct {
	NOrders    int  `json:"n_orders"`
	MinDelayMs *int `json:"min_delay_ms,omitempty"`
	MaxDelayMs *int `json:"max_delay_ms,omitempty"`
}

// Result is returned as soon as all order sequences are scheduled. It only
// communicates that the simulation has started, not that it has finished.
type Result struct {
	Orders  []string `json:"orders"`
	Message string   `json:"message"`
}

// Simulator publishes synthetic order lifecycles through the broker. It
// never talks to the hub directly; the broker is the only channel between
// the simulator and the relay.
type Simulator struct {
	broker broker.Broker
}

func New(b broker.Broker) *Simulator {
	return &Simulator{broker: b}
}

// Run validates the request, generates the order identifiers and launches
// one goroutine per order. It returns as soon as everything is scheduled;
// the sequences are fire-and-forget with no join, so events still in flight
// when the process exits are lost.
func (s *Simulator) Run(req Request) (Result, error) {
	minDelay, maxDelay := defaultMinDelayMs, defaultMaxDelayMs
	if req.MinDelayMs != nil {
		minDelay = *req.MinDelayMs
	}
	if req.MaxDelayMs != nil {
		maxDelay = *req.MaxDelayMs
	}

	if req.NOrders <= 0 || req.NOrders > maxOrders {
		return Result{}, &ValidationError{msg: fmt.Sprintf("n_orders must be in (0, %d], got %d", maxOrders, req.NOrders)}
	}
	if minDelay < 0 {
		return Result{}, &ValidationError{msg: fmt.Sprintf("min_delay_ms must be >= 0, got %d", minDelay)}
	}
	if maxDelay < minDelay {
		return Result{}, &ValidationError{msg: fmt.Sprintf("max_delay_ms (%d) must be >= min_delay_ms (%d)", maxDelay, minDelay)}
	}

	orders := make([]string, req.NOrders)
	for i := range orders {
		orders[i] = NewOrderID()
	}

	for _, id := range orders {
		go s.simulateOrder(id, minDelay, maxDelay)
	}

	return Result{
		Orders:  orders,
		Message: fmt.Sprintf("simulation started for %d orders", len(orders)),
	}, nil
}

// simulateOrder publishes the three lifecycle stages in program order with a
// randomized pause between them. A failed publish loses that single
// transition only; the remaining stages and all sibling orders carry on.
func (s *Simulator) simulateOrder(orderID string, minDelayMs, maxDelayMs int) {
	for i, status := range broker.Stages {
		if i > 0 {
			time.Sleep(randomDelay(minDelayMs, maxDelayMs))
		}
		event := broker.NewStatusEvent(orderID, status)
		if err := s.broker.Publish(context.Background(), event); err != nil {
			log.Printf("simulator: publish %s for order %s failed: %v", status, orderID, err)
		}
	}
}

// randomDelay draws uniformly from [minMs, maxMs] milliseconds.
func randomDelay(minMs, maxMs int) time.Duration {
	if maxMs <= minMs {
		return time.Duration(minMs) * time.Millisecond
	}
	return time.Duration(minMs+rand.IntN(maxMs-minMs+1)) * time.Millisecond
}

// NewOrderID generates an ORD-prefixed identifier with an 8-character
// uppercase-alphanumeric suffix. Uniqueness is not enforced; the occasional
// collision is acceptable.
func NewOrderID() string {
	b := make([]byte, orderIDLength)
	for i := range b {
		b[i] = orderIDAlphabet[rand.IntN(len(orderIDAlphabet))]
	}
	return "ORD-" + string(b)
}
