// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/satobs/internal/adapters/progress"
	service "github.com/okian/satobs/internal/app"
	"github.com/okian/satobs/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Submit accepts a batch for async processing and returns its ID.
	Submit(ctx context.Context, sub service.Submission) (string, error)
	// Status returns the pollable state of a batch.
	Status(ctx context.Context, batchID string) (progress.Snapshot, error)
	// Observation returns one stored observation.
	Observation(ctx context.Context, id uint64) (model.Observation, error)
	MaxBatchSize() int
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler       *HealthHandler
	statsHandler        *StatsHandler
	batchesHandler      *BatchesHandler
	observationsHandler *ObservationsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:       NewHealthHandler(),
		statsHandler:        NewStatsHandler(statsProvider),
		batchesHandler:      NewBatchesHandler(deps),
		observationsHandler: NewObservationsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/batches", MetricsMiddleware(s.batchesHandler.HandlePostBatch, "batches"))
	mux.HandleFunc("/batches/", MetricsMiddleware(s.batchesHandler.HandleGetBatch, "batch"))
	mux.HandleFunc("/observations/", MetricsMiddleware(s.observationsHandler.HandleGetObservation, "observation"))
}

// batchRequest mirrors the OpenAPI schema for POST /batches.
type batchRequest struct {
	Records          []model.Record `json:"records"`
	NotifyEmail      string         `json:"notify_email"`
	SendConfirmation bool           `json:"send_confirmation"`
}

type acceptedResponse struct {
	BatchID string `json:"batch_id"`
	Status  string `json:"status"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
