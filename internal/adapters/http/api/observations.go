package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/satobs/internal/adapters/repository"
)

// ObservationsHandler handles observation reads.
type ObservationsHandler struct {
	deps Dependencies
}

// NewObservationsHandler creates a new observations handler.
func NewObservationsHandler(deps Dependencies) *ObservationsHandler {
	return &ObservationsHandler{deps: deps}
}

// HandleGetObservation handles GET /observations/{id} requests.
func (h *ObservationsHandler) HandleGetObservation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(r.URL.Path, "/observations/"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	obs, err := h.deps.Observation(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", ErrNotFound)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, obs)
}
