package orders

import (
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/hfidelis/order-relay/internal/httputil"
)

// Handlers implements the stateless order-flow simulators: charging a
// payment, processing an order and sending a notification. They hold no
// shared state and exist to exercise downstream integrations end to end.
type Handlers struct {
	// sleep is swapped out in tests to avoid real latency.
	sleep func(d time.Duration)
}

func NewHandlers() *Handlers {
	return &Handlers{sleep: time.Sleep}
}

// RegisterRoutes wires the order-flow simulator endpoints.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/payments/charge", h.ChargePayment).Methods(http.MethodPost)
	r.HandleFunc("/api/orders/process", h.ProcessOrder).Methods(http.MethodPost)
	r.HandleFunc("/api/notifications/send", h.SendNotification).Methods(http.MethodPost)
}

// ChargeRequest is the payment simulator input.
type ChargeRequest struct {
	OrderID    string  `json:"order_id"`
	Amount     float64 `json:"amount"`
	CardNumber string  `json:"card_number"`
}

// ChargePayment handles POST /api/payments/charge. Roughly one in four
// charges is declined to exercise the failure path.
func (h *Handlers) ChargePayment(w http.ResponseWriter, r *http.Request) {
	var req ChargeRequest
	if err := httputil.DecodeJSON(w, r, &req, 4096); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.OrderID == "" || req.Amount == 0 || req.CardNumber == "" {
		httputil.WriteError(w, http.StatusBadRequest, "order_id, amount and card_number are required")
		return
	}
	if len(req.CardNumber) != 16 || !allDigits(req.CardNumber) {
		httputil.WriteError(w, http.StatusBadRequest, "invalid card number")
		return
	}

	h.sleep(randomLatency(500, 1500))

	approved := rand.IntN(4) != 0
	status := "approved"
	message := "Payment approved"
	code := http.StatusOK
	if !approved {
		status = "declined"
		message = "Payment declined"
		code = http.StatusPaymentRequired
	}
	log.Printf("orders: payment for order %s %s", req.OrderID, status)

	httputil.WriteJSON(w, code, map[string]any{
		"message": message,
		"data": map[string]any{
			"order_id":    req.OrderID,
			"amount":      req.Amount,
			"card_number": "**** **** **** " + req.CardNumber[12:],
			"status":      status,
		},
	})
}

// Item is one order line in a process request.
type Item struct {
	Name     string  `json:"name,omitempty"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity,omitempty"`
}

// ProcessRequest is the order processing simulator input.
type ProcessRequest struct {
	OrderID  string `json:"order_id"`
	Customer string `json:"customer,omitempty"`
	Items    []Item `json:"items"`
}

// ProcessOrder handles POST /api/orders/process.
func (h *Handlers) ProcessOrder(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if err := httputil.DecodeJSON(w, r, &req, 64*1024); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.OrderID == "" || len(req.Items) == 0 {
		httputil.WriteError(w, http.StatusBadRequest, "order_id and items are required")
		return
	}
	if req.Customer == "" {
		req.Customer = "Unknown"
	}

	processingTime := math.Round((0.5+rand.Float64()*1.5)*100) / 100
	h.sleep(time.Duration(processingTime * float64(time.Second)))

	var total float64
	for _, item := range req.Items {
		qty := item.Quantity
		if qty == 0 {
			qty = 1
		}
		total += item.Price * float64(qty)
	}
	total = math.Round(total*100) / 100

	log.Printf("orders: order %s processed for customer %s with total %.2f in %.2fs", req.OrderID, req.Customer, total, processingTime)

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Order %s processed successfully", req.OrderID),
		"data": map[string]any{
			"order_id":        req.OrderID,
			"customer":        req.Customer,
			"items":           req.Items,
			"total":           total,
			"processing_time": processingTime,
			"status":          "processed",
		},
	})
}

// NotifyRequest is the notification simulator input.
type NotifyRequest struct {
	OrderID  string `json:"order_id"`
	Customer string `json:"customer,omitempty"`
	Type     string `json:"type,omitempty"` // email, sms, push
}

// SendNotification handles POST /api/notifications/send.
func (h *Handlers) SendNotification(w http.ResponseWriter, r *http.Request) {
	var req NotifyRequest
	if err := httputil.DecodeJSON(w, r, &req, 4096); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.OrderID == "" {
		httputil.WriteError(w, http.StatusBadRequest, "order_id is required")
		return
	}
	if req.Customer == "" {
		req.Customer = "Unknown"
	}
	if req.Type == "" {
		req.Type = "email"
	}

	h.sleep(randomLatency(200, 800))

	log.Printf("orders: notification sent for order %s to customer %s via %s", req.OrderID, req.Customer, req.Type)

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Notification sent via %s to %s", req.Type, req.Customer),
		"data": map[string]any{
			"order_id": req.OrderID,
			"customer": req.Customer,
			"type":     req.Type,
			"status":   "sent",
		},
	})
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func randomLatency(minMs, maxMs int) time.Duration {
	return time.Duration(minMs+rand.IntN(maxMs-minMs+1)) * time.Millisecond
}
