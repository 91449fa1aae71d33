package simulator

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/hfidelis/order-relay/internal/httputil"
)

// Handlers exposes the simulation control endpoint.
type Handlers struct {
	sim *Simulator
}

func NewHandlers(sim *Simulator) *Handlers {
	return &Handlers{sim: sim}
}

// RegisterRoutes wires the simulation endpoint.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/simulate", h.Simulate).Methods(http.MethodPost)
}

// Simulate handles POST /api/simulate. Invalid parameters are rejected with
// 422 and nothing is scheduled.
func (h *Handlers) Simulate(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := httputil.DecodeJSON(w, r, &req, 4096); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.sim.Run(req)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			httputil.WriteError(w, http.StatusUnprocessableEntity, verr.Error())
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "failed to start simulation")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}
