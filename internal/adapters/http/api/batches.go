package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/satobs/internal/adapters/mq/queue"
	service "github.com/okian/satobs/internal/app"
	"github.com/okian/satobs/internal/domain/batch"
)

// maxBodyBytes bounds a POST /batches body.
const maxBodyBytes = 64 << 20

// BatchesHandler handles batch submission and polling.
type BatchesHandler struct {
	deps Dependencies
}

// NewBatchesHandler creates a new batches handler.
func NewBatchesHandler(deps Dependencies) *BatchesHandler {
	return &BatchesHandler{deps: deps}
}

// HandlePostBatch handles POST /batches requests.
func (h *BatchesHandler) HandlePostBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req batchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	if n, limit := len(req.Records), h.deps.MaxBatchSize(); n > limit {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large",
			fmt.Errorf("%w: %d observations, limit is %d", ErrTooLarge, n, limit))
		return
	}

	id, err := h.deps.Submit(r.Context(), service.Submission{
		Records:          req.Records,
		NotifyAddress:    strings.TrimSpace(req.NotifyEmail),
		SendConfirmation: req.SendConfirmation,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, acceptedResponse{BatchID: id, Status: string(batch.StatusPending)})
	case errors.Is(err, service.ErrBatchTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", err)
	case errors.Is(err, queue.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", ErrBackpressure)
	case errors.Is(err, queue.ErrQueueClosed), errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", ErrUnavailable)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

// HandleGetBatch handles GET /batches/{batch_id} requests.
func (h *BatchesHandler) HandleGetBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/batches/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	snap, err := h.deps.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrBatchNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
