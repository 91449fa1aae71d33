package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/hfidelis/order-relay/internal/broker"
)

// newTestClient builds a hub member without a real connection. The pumps are
// not started, so tests read from send directly.
func newTestClient(id string, buffer int) *Client {
	return &Client{ID: id, send: make(chan []byte, buffer)}
}

// waitForCount polls the hub until it reaches the wanted membership size.
func waitForCount(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.ClientCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("hub never reached %d clients (currently %d)", want, h.ClientCount())
}

func receiveFrame(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case data := <-c.send:
		return data
	case <-time.After(2 * time.Second):
		t.Fatalf("client %s never received a frame", c.ID)
		return nil
	}
}

func TestHubRegisterUnregister(t *testing.T) {
	h := NewHub()
	go h.Run()

	c := newTestClient("client-1", 1)
	h.Register(c)
	waitForCount(t, h, 1)

	h.Unregister(c)
	waitForCount(t, h, 0)

	// Unregistering an absent client is a no-op.
	h.Unregister(c)
	waitForCount(t, h, 0)
}

func TestHubRegisterSameClientTwice(t *testing.T) {
	h := NewHub()
	go h.Run()

	c := newTestClient("client-1", 1)
	h.Register(c)
	h.Register(c)
	waitForCount(t, h, 1)
}

func TestHubBroadcastReachesAllClients(t *testing.T) {
	h := NewHub()
	go h.Run()

	c1 := newTestClient("client-1", 4)
	c2 := newTestClient("client-2", 4)
	h.Register(c1)
	h.Register(c2)
	waitForCount(t, h, 2)

	event := broker.NewStatusEvent("ORD-HUB00001", broker.StatusShipped)
	h.Broadcast(event)

	for _, c := range []*Client{c1, c2} {
		data := receiveFrame(t, c)

		var got broker.StatusEvent
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("client %s received invalid JSON: %v", c.ID, err)
		}
		if got != event {
			t.Errorf("client %s: got %+v, want %+v", c.ID, got, event)
		}
	}
}

func TestHubBroadcastWithNoClients(t *testing.T) {
	h := NewHub()
	go h.Run()

	// Must not block or panic.
	h.Broadcast(broker.NewStatusEvent("ORD-EMPTY001", broker.StatusPrepared))
	waitForCount(t, h, 0)
}

func TestHubUnregisteredClientMissesBroadcasts(t *testing.T) {
	h := NewHub()
	go h.Run()

	stays := newTestClient("stays", 4)
	leaves := newTestClient("leaves", 4)
	h.Register(stays)
	h.Register(leaves)
	waitForCount(t, h, 2)

	h.Unregister(leaves)
	waitForCount(t, h, 1)

	h.Broadcast(broker.NewStatusEvent("ORD-LEAVE001", broker.StatusDelivered))

	receiveFrame(t, stays)

	// The unregistered client's channel was closed without a payload.
	select {
	case data, ok := <-leaves.send:
		if ok {
			t.Errorf("unregistered client received a frame: %s", data)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHubDropsFramesForSlowConsumer(t *testing.T) {
	h := NewHub()
	go h.Run()

	slow := newTestClient("slow", 1)
	h.Register(slow)
	waitForCount(t, h, 1)

	h.Broadcast(broker.NewStatusEvent("ORD-SLOW0001", broker.StatusPrepared))

	// Wait for the first frame to land in the full buffer before sending the
	// one that must be dropped.
	deadline := time.Now().Add(2 * time.Second)
	for len(slow.send) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(slow.send) != 1 {
		t.Fatal("first frame never arrived")
	}

	h.Broadcast(broker.NewStatusEvent("ORD-SLOW0002", broker.StatusShipped))
	time.Sleep(50 * time.Millisecond)

	var first broker.StatusEvent
	if err := json.Unmarshal(receiveFrame(t, slow), &first); err != nil {
		t.Fatalf("invalid frame: %v", err)
	}
	if first.OrderID != "ORD-SLOW0001" {
		t.Errorf("expected first frame preserved, got %+v", first)
	}

	// The second frame was dropped, not queued.
	select {
	case data := <-slow.send:
		t.Errorf("slow consumer unexpectedly received second frame: %s", data)
	case <-time.After(100 * time.Millisecond):
	}

	// The hub itself is unaffected.
	if h.ClientCount() != 1 {
		t.Errorf("expected 1 client, got %d", h.ClientCount())
	}
}
