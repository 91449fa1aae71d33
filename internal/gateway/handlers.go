package gateway

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/hfidelis/order-relay/internal/httputil"
)

const defaultExpirySeconds = 3600

// ObjectStore is the slice of Gateway the HTTP handlers depend on.
type ObjectStore interface {
	PresignUpload(ctx context.Context, key string, expires time.Duration) (string, error)
	PresignDownload(ctx context.Context, key string, expires time.Duration) (string, error)
	ListObjects(ctx context.Context) ([]ObjectInfo, error)
}

// PresignRequest asks for a presigned upload URL.
type PresignRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	ExpiresIn   int    `json:"expires_in,omitempty"` // seconds
}

// Handlers exposes the object gateway endpoints.
type Handlers struct {
	gw ObjectStore
}

func NewHandlers(gw ObjectStore) *Handlers {
	return &Handlers{gw: gw}
}

// RegisterRoutes wires the object gateway endpoints.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/storage/presign", h.Presign).Methods(http.MethodPost)
	r.HandleFunc("/api/storage/objects", h.ListObjects).Methods(http.MethodGet)
	r.HandleFunc("/api/storage/download/{key:.+}", h.Download).Methods(http.MethodGet)
}

// Presign handles POST /api/storage/presign.
func (h *Handlers) Presign(w http.ResponseWriter, r *http.Request) {
	var req PresignRequest
	if err := httputil.DecodeJSON(w, r, &req, 4096); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Filename == "" {
		httputil.WriteError(w, http.StatusBadRequest, "filename is required")
		return
	}
	if req.ExpiresIn <= 0 {
		req.ExpiresIn = defaultExpirySeconds
	}

	url, err := h.gw.PresignUpload(r.Context(), req.Filename, time.Duration(req.ExpiresIn)*time.Second)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to presign upload")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"url": url, "key": req.Filename})
}

// ListObjects handles GET /api/storage/objects.
func (h *Handlers) ListObjects(w http.ResponseWriter, r *http.Request) {
	items, err := h.gw.ListObjects(r.Context())
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list objects")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

// Download handles GET /api/storage/download/{key} by redirecting to a
// presigned GET URL.
func (h *Handlers) Download(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	expires := defaultExpirySeconds
	if expStr := r.URL.Query().Get("expires_in"); expStr != "" {
		exp, err := strconv.Atoi(expStr)
		if err != nil || exp <= 0 {
			httputil.WriteError(w, http.StatusBadRequest, "expires_in must be a positive integer")
			return
		}
		expires = exp
	}

	url, err := h.gw.PresignDownload(r.Context(), key, time.Duration(expires)*time.Second)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to presign download")
		return
	}
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}
