// Package batch drives one submitted batch of observations through
// normalization, verification and resolution.
package batch

import (
	"context"
	"time"

	"github.com/okian/satobs/internal/domain/model"
	"github.com/okian/satobs/internal/domain/rejection"
	"github.com/okian/satobs/internal/domain/resolve"
)

// Status is the lifecycle state of a batch.
type Status string

const (
	StatusPending        Status = "PENDING"
	StatusProcessing     Status = "PROCESSING"
	StatusSuccess        Status = "SUCCESS"
	StatusPartialSuccess Status = "PARTIAL_SUCCESS"
	StatusFailed         Status = "FAILED"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusPartialSuccess || s == StatusFailed
}

// Batch is one submission.
type Batch struct {
	ID               string         `json:"batch_id"`
	Records          []model.Record `json:"records"`
	CreatedAt        time.Time      `json:"created_at"`
	NotifyAddress    string         `json:"notify_email,omitempty"`
	SendConfirmation bool           `json:"send_confirmation"`
}

// Progress is one progress event.
type Progress struct {
	BatchID     string `json:"batch_id"`
	State       Status `json:"state"`
	Current     int    `json:"current"`
	Total       int    `json:"total"`
	Percent     int    `json:"percent"`
	Description string `json:"description"`
}

// Summary counts record outcomes. Total = Created + Duplicates + Rejected.
type Summary struct {
	Total      int `json:"total"`
	Created    int `json:"created"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`
}

// Result is the frozen outcome of a batch. FAILED results carry Error and no
// Summary.
type Result struct {
	BatchID      string            `json:"batch_id"`
	Status       Status            `json:"status"`
	Summary      *Summary          `json:"summary,omitempty"`
	RejectedObs  []rejection.Entry `json:"rejected_obs,omitempty"`
	Error        string            `json:"error,omitempty"`
	CreatedIDs   []uint64          `json:"created_ids,omitempty"`
	DuplicateIDs []uint64          `json:"duplicate_ids,omitempty"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   time.Time         `json:"finished_at"`
}

// Confirmation asks the dispatcher to tell an observer what was stored.
type Confirmation struct {
	BatchID        string
	Address        string
	ObservationIDs []uint64
	Summary        Summary
}

// Verifier checks a normalized record.
type Verifier interface {
	Verify(ctx context.Context, rec model.Record) (model.Verification, error)
}

// Resolver persists a verified record.
type Resolver interface {
	Resolve(ctx context.Context, rec model.Record, ver model.Verification, batchID string) (resolve.Resolution, error)
}

// ProgressSink receives progress events and the final result.
type ProgressSink interface {
	Progress(ctx context.Context, p Progress)
	Finished(ctx context.Context, r Result)
}

// Dispatcher sends confirmations. Implementations must not block the caller
// on delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, c Confirmation)
}

// HealthChecker reports whether the store can take writes.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type noopSink struct{}

func (noopSink) Progress(context.Context, Progress) {}
func (noopSink) Finished(context.Context, Result)  {}

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(context.Context, Confirmation) {}
