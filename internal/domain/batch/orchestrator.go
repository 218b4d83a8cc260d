package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/okian/satobs/internal/domain/model"
	"github.com/okian/satobs/internal/domain/normalize"
	"github.com/okian/satobs/internal/domain/rejection"
	"github.com/okian/satobs/internal/domain/resolve"
	"github.com/okian/satobs/pkg/logger"
	"github.com/okian/satobs/pkg/metrics"
)

// DefaultMaxBatchSize caps the number of records in one batch.
const DefaultMaxBatchSize = 10000

// Batch-level failure messages.
const (
	MsgEmptyBatch       = "Batch contains no observations."
	MsgStoreUnavailable = "Observation store unavailable - try again later."
	msgTooLarge         = "Batch exceeds the maximum of %d observations."
	msgRecordConflict   = "Observation %d: %s"
)

const (
	outcomeCreated   = "created"
	outcomeDuplicate = "duplicate"
	outcomeRejected  = "rejected"
)

// Orchestrator runs batches. It is safe for concurrent use; records within
// one batch are processed strictly in order.
type Orchestrator struct {
	verifier   Verifier
	resolver   Resolver
	sink       ProgressSink
	dispatcher Dispatcher
	health     HealthChecker
	maxSize    int
	logger     logger.Logger
	now        func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithProgressSink sets where progress events go.
func WithProgressSink(s ProgressSink) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.sink = s
		}
	}
}

// WithDispatcher sets the confirmation dispatcher.
func WithDispatcher(d Dispatcher) Option {
	return func(o *Orchestrator) {
		if d != nil {
			o.dispatcher = d
		}
	}
}

// WithHealthChecker makes Run fail fast when the store is unavailable.
func WithHealthChecker(h HealthChecker) Option {
	return func(o *Orchestrator) {
		o.health = h
	}
}

// WithMaxBatchSize sets the record limit.
func WithMaxBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxSize = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(v Verifier, r Resolver, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		verifier:   v,
		resolver:   r,
		sink:       noopSink{},
		dispatcher: noopDispatcher{},
		maxSize:    DefaultMaxBatchSize,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("orchestrator")
	}
	return o
}

// MaxBatchSize returns the configured record limit.
func (o *Orchestrator) MaxBatchSize() int { return o.maxSize }

// run holds the mutable state of one batch until it is frozen into a Result.
type run struct {
	batch        Batch
	summary      Summary
	rejected     []rejection.Entry
	createdIDs   []uint64
	duplicateIDs []uint64
	firstEmail   string
}

// Run processes every record of b and returns the frozen result. The result
// is also handed to the progress sink.
func (o *Orchestrator) Run(ctx context.Context, b Batch) Result {
	started := o.now()
	metrics.BatchStarted()
	defer metrics.BatchDone()

	total := len(b.Records)
	o.sink.Progress(ctx, Progress{
		BatchID: b.ID, State: StatusPending, Total: total, Description: "Batch queued",
	})

	res := o.execute(ctx, b)
	res.BatchID = b.ID
	res.StartedAt = started
	res.FinishedAt = o.now()

	elapsed := res.FinishedAt.Sub(started)
	metrics.RecordBatchFinished(string(res.Status), float64(elapsed.Nanoseconds())/1e6)
	fields := []logger.Field{
		logger.String("batch_id", b.ID),
		logger.String("status", string(res.Status)),
		logger.String("records", humanize.Comma(int64(total))),
		logger.Duration("elapsed", elapsed),
	}
	if res.Summary != nil {
		fields = append(fields,
			logger.Int("created", res.Summary.Created),
			logger.Int("duplicates", res.Summary.Duplicates),
			logger.Int("rejected", res.Summary.Rejected),
		)
	} else {
		fields = append(fields, logger.String("error", res.Error))
	}
	o.logger.Info(ctx, "batch finished", fields...)

	o.sink.Finished(ctx, res)
	return res
}

func (o *Orchestrator) execute(ctx context.Context, b Batch) Result {
	total := len(b.Records)
	switch {
	case total == 0:
		return failed(MsgEmptyBatch)
	case total > o.maxSize:
		return failed(fmt.Sprintf(msgTooLarge, o.maxSize))
	}
	if o.health != nil {
		if err := o.health.Ping(ctx); err != nil {
			o.logger.Error(ctx, "store unavailable", logger.String("batch_id", b.ID), logger.Error(err))
			metrics.RecordErrorByComponent("orchestrator", "store_unavailable")
			return failed(MsgStoreUnavailable)
		}
	}

	st := &run{batch: b, summary: Summary{Total: total}}
	for i, raw := range b.Records {
		o.sink.Progress(ctx, Progress{
			BatchID:     b.ID,
			State:       StatusProcessing,
			Current:     i + 1,
			Total:       total,
			Percent:     (i + 1) * 100 / total,
			Description: fmt.Sprintf("Processing observation %d of %d", i+1, total),
		})

		rej := o.processRecord(ctx, st, i, raw)
		if rej == nil {
			continue
		}
		if rej.Kind == rejection.KindResolutionConflict {
			o.logger.Error(ctx, "resolution conflict, aborting batch",
				logger.String("batch_id", b.ID),
				logger.Int("index", i),
				logger.Error(rej),
			)
			metrics.RecordRejection(rej.Kind.String())
			return failed(fmt.Sprintf(msgRecordConflict, i, rej.Message))
		}
		st.reject(i, raw, rej)
	}

	status := StatusSuccess
	if st.summary.Rejected > 0 {
		status = StatusPartialSuccess
	}
	o.confirm(ctx, st)

	summary := st.summary
	return Result{
		Status:       status,
		Summary:      &summary,
		RejectedObs:  st.rejected,
		CreatedIDs:   st.createdIDs,
		DuplicateIDs: st.duplicateIDs,
	}
}

// processRecord returns nil when the record was stored or found duplicate.
func (o *Orchestrator) processRecord(ctx context.Context, st *run, index int, raw model.Record) (rej *rejection.Rejection) {
	defer func() {
		if p := recover(); p != nil {
			o.logger.Error(ctx, "panic while processing record",
				logger.String("batch_id", st.batch.ID),
				logger.Int("index", index),
				logger.Any("panic", p),
			)
			rej = rejection.Wrap(rejection.KindUnexpected, rejection.MsgUnexpected, fmt.Errorf("panic: %v", p))
		}
	}()

	norm := normalize.Record(raw)
	if !norm.Normalized() {
		return norm.Rejection
	}
	rec := norm.Record

	ver, err := o.verifier.Verify(ctx, rec)
	if err != nil {
		return rejection.Classify(err)
	}

	res, err := o.resolver.Resolve(ctx, rec, ver, st.batch.ID)
	if err != nil {
		return rejection.Classify(err)
	}

	switch res.Outcome {
	case resolve.Duplicate:
		st.summary.Duplicates++
		st.duplicateIDs = append(st.duplicateIDs, res.ObservationID)
		metrics.RecordRecordOutcome(outcomeDuplicate)
	default:
		st.summary.Created++
		st.createdIDs = append(st.createdIDs, res.ObservationID)
		metrics.RecordRecordOutcome(outcomeCreated)
	}
	if st.firstEmail == "" {
		st.firstEmail = rec.ObsEmail
	}
	return nil
}

func (st *run) reject(index int, raw model.Record, rej *rejection.Rejection) {
	st.summary.Rejected++
	entry := rejection.Entry{
		Index:     index,
		SatName:   raw.SatName,
		SatNumber: raw.SatNumber,
		Error:     rej.Message,
		Kind:      rej.Kind.String(),
	}
	if raw.ObsTimeUTC != nil {
		entry.ObsTimeUTC = raw.ObsTimeUTC.UTC().Format(time.RFC3339Nano)
	}
	st.rejected = append(st.rejected, entry)
	metrics.RecordRecordOutcome(outcomeRejected)
	metrics.RecordRejection(rej.Kind.String())
}

func (o *Orchestrator) confirm(ctx context.Context, st *run) {
	if !st.batch.SendConfirmation || st.summary.Created+st.summary.Duplicates == 0 {
		return
	}
	addr := st.batch.NotifyAddress
	if addr == "" {
		addr = st.firstEmail
	}
	if addr == "" {
		o.logger.Warn(ctx, "confirmation requested but no address known", logger.String("batch_id", st.batch.ID))
		return
	}
	ids := make([]uint64, 0, len(st.createdIDs)+len(st.duplicateIDs))
	ids = append(ids, st.createdIDs...)
	ids = append(ids, st.duplicateIDs...)
	o.dispatcher.Dispatch(ctx, Confirmation{
		BatchID:        st.batch.ID,
		Address:        addr,
		ObservationIDs: ids,
		Summary:        st.summary,
	})
}

func failed(msg string) Result {
	return Result{Status: StatusFailed, Error: msg}
}
