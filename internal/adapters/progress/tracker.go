// Package progress keeps and publishes batch progress.
package progress

import (
	"context"
	"time"

	"github.com/okian/satobs/internal/domain/batch"
	"github.com/patrickmn/go-cache"
)

// DefaultTTL is how long a finished batch stays pollable.
const DefaultTTL = time.Hour

// Snapshot is the pollable state of one batch.
type Snapshot struct {
	batch.Progress
	Result *batch.Result `json:"result,omitempty"`
}

// Tracker is an in-memory batch.ProgressSink. Running batches never expire;
// finished ones are evicted after the TTL.
type Tracker struct {
	entries *cache.Cache
	ttl     time.Duration
}

var _ batch.ProgressSink = (*Tracker)(nil)

// NewTracker creates a Tracker. A non-positive ttl selects DefaultTTL.
func NewTracker(ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{entries: cache.New(ttl, ttl/2), ttl: ttl}
}

// Pending registers a batch that has been accepted but not started.
func (t *Tracker) Pending(batchID string, total int) {
	t.entries.Set(batchID, Snapshot{Progress: batch.Progress{
		BatchID: batchID, State: batch.StatusPending, Total: total, Description: "Batch queued",
	}}, cache.NoExpiration)
}

// Forget drops a batch, e.g. when it could not be enqueued.
func (t *Tracker) Forget(batchID string) {
	t.entries.Delete(batchID)
}

// Progress implements batch.ProgressSink.
func (t *Tracker) Progress(_ context.Context, p batch.Progress) {
	t.entries.Set(p.BatchID, Snapshot{Progress: p}, cache.NoExpiration)
}

// Finished implements batch.ProgressSink.
func (t *Tracker) Finished(_ context.Context, r batch.Result) {
	snap, _ := t.Get(r.BatchID)
	snap.BatchID = r.BatchID
	snap.State = r.Status
	if r.Summary != nil {
		snap.Total = r.Summary.Total
		snap.Current = r.Summary.Total
		snap.Percent = 100
	}
	snap.Description = "Batch finished"
	snap.Result = &r
	t.entries.Set(r.BatchID, snap, t.ttl)
}

// Get returns the latest snapshot of a batch.
func (t *Tracker) Get(batchID string) (Snapshot, bool) {
	v, ok := t.entries.Get(batchID)
	if !ok {
		return Snapshot{}, false
	}
	snap, ok := v.(Snapshot)
	return snap, ok
}

// Len returns the number of tracked batches.
func (t *Tracker) Len() int {
	return t.entries.ItemCount()
}
