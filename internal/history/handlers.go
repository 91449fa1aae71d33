package history

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/hfidelis/order-relay/internal/httputil"
)

// Handlers serves the relayed-event history for inspection.
type Handlers struct {
	store *Store
}

func NewHandlers(store *Store) *Handlers {
	return &Handlers{store: store}
}

// RegisterRoutes wires the event history endpoint.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/events", h.ListEvents).Methods(http.MethodGet)
}

// ListEvents handles GET /api/events?order_id=&status=&limit=.
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	params := ListParams{
		OrderID: r.URL.Query().Get("order_id"),
		Status:  r.URL.Query().Get("status"),
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			httputil.WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		params.Limit = limit
	}

	events, err := h.store.List(r.Context(), params)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to query events")
		return
	}
	if events == nil {
		events = []StoredEvent{}
	}
	httputil.WriteJSON(w, http.StatusOK, events)
}
