package broker

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNewStatusEvent(t *testing.T) {
	event := NewStatusEvent("ORD-A1B2C3D4", StatusPrepared)

	if event.OrderID != "ORD-A1B2C3D4" {
		t.Errorf("expected order id 'ORD-A1B2C3D4', got %q", event.OrderID)
	}
	if event.Status != StatusPrepared {
		t.Errorf("expected status prepared, got %q", event.Status)
	}

	ts, err := time.Parse(time.RFC3339, event.TS)
	if err != nil {
		t.Fatalf("timestamp %q is not RFC3339: %v", event.TS, err)
	}
	if ts.Location() != time.UTC {
		t.Errorf("expected UTC timestamp, got %v", ts.Location())
	}
}

func TestStatusEventEncodeDecode(t *testing.T) {
	original := NewStatusEvent("ORD-XYZ12345", StatusShipped)

	body, err := original.Encode()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	// Wire form uses snake_case field names.
	var raw map[string]string
	if err := json.Unmarshal(body, &raw); err != nil {
		t.Fatalf("encoded payload is not valid JSON: %v", err)
	}
	for _, field := range []string{"order_id", "status", "ts"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("encoded payload missing field %q: %s", field, body)
		}
	}

	decoded, err := DecodeStatusEvent(body)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded != original {
		t.Errorf("round trip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestDecodeStatusEventRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not JSON", "this is not json"},
		{"empty body", ""},
		{"JSON array", `["prepared"]`},
		{"missing order_id", `{"status":"prepared","ts":"2026-01-01T00:00:00Z"}`},
		{"empty order_id", `{"order_id":"","status":"shipped","ts":"2026-01-01T00:00:00Z"}`},
		{"unknown status", `{"order_id":"ORD-A1B2C3D4","status":"teleported","ts":"2026-01-01T00:00:00Z"}`},
		{"missing status", `{"order_id":"ORD-A1B2C3D4","ts":"2026-01-01T00:00:00Z"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeStatusEvent([]byte(tt.body)); err == nil {
				t.Errorf("expected decode error for %q, got nil", tt.body)
			}
		})
	}
}

func TestDecodeStatusEventAllStages(t *testing.T) {
	for _, status := range Stages {
		body := `{"order_id":"ORD-00000000","status":"` + string(status) + `","ts":"2026-01-01T00:00:00Z"}`
		event, err := DecodeStatusEvent([]byte(body))
		if err != nil {
			t.Fatalf("decode failed for status %q: %v", status, err)
		}
		if event.Status != status {
			t.Errorf("expected status %q, got %q", status, event.Status)
		}
	}
}

func TestStatusValid(t *testing.T) {
	for _, status := range Stages {
		if !status.Valid() {
			t.Errorf("stage %q should be valid", status)
		}
	}
	for _, s := range []Status{"", "PREPARED", "cancelled", "prepared "} {
		if s.Valid() {
			t.Errorf("status %q should be invalid", s)
		}
	}
}

func TestStagesOrder(t *testing.T) {
	want := []Status{StatusPrepared, StatusShipped, StatusDelivered}
	if len(Stages) != len(want) {
		t.Fatalf("expected %d stages, got %d", len(want), len(Stages))
	}
	for i, status := range want {
		if Stages[i] != status {
			t.Errorf("stage %d: expected %q, got %q", i, status, Stages[i])
		}
	}
}

func TestTopologyConstants(t *testing.T) {
	// These names are shared between publisher and consumer processes, so
	// changing any of them is a breaking change.
	if ExchangeName != "orders" {
		t.Errorf("unexpected exchange name %q", ExchangeName)
	}
	if QueueName != "order_updates" {
		t.Errorf("unexpected queue name %q", QueueName)
	}
	if !strings.HasPrefix(RoutingKey, "order.") {
		t.Errorf("unexpected routing key %q", RoutingKey)
	}
	if PrefetchCount <= 0 {
		t.Errorf("prefetch count must be positive, got %d", PrefetchCount)
	}
}
