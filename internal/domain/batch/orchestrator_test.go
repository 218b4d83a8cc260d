package batch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/okian/satobs/internal/adapters/repository"
	"github.com/okian/satobs/internal/domain/batch"
	"github.com/okian/satobs/internal/domain/model"
	"github.com/okian/satobs/internal/domain/rejection"
	"github.com/okian/satobs/internal/domain/resolve"
	"github.com/okian/satobs/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func f64(v float64) *float64 { return &v }
func intp(v int) *int        { return &v }

func record(mag float64) model.Record {
	ts := time.Date(2024, 3, 10, 4, 12, 30, 0, time.UTC)
	return model.Record{
		SatName:     "starlink-1234",
		SatNumber:   intp(44713),
		ObsTimeUTC:  &ts,
		ApparentMag: f64(mag),
		ObsEmail:    "Observer@Example.org",
		ObsLatDeg:   f64(33.1),
		ObsLongDeg:  f64(-117.3),
		ObsAltM:     f64(100),
	}
}

// stubVerifier accepts every record unless a rule for its magnitude says otherwise.
type stubVerifier struct {
	mu     sync.Mutex
	calls  int
	reject map[float64]*rejection.Rejection
	panics bool
}

func (s *stubVerifier) Verify(_ context.Context, rec model.Record) (model.Verification, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.panics {
		panic("boom")
	}
	if rec.ApparentMag != nil {
		if rej, ok := s.reject[*rec.ApparentMag]; ok {
			return model.Verification{}, rej
		}
	}
	return model.Verification{SatName: rec.SatName, Geometry: &model.Geometry{AltDeg: 40}}, nil
}

type recordingSink struct {
	mu       sync.Mutex
	events   []batch.Progress
	finished []batch.Result
}

func (s *recordingSink) Progress(_ context.Context, p batch.Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, p)
}

func (s *recordingSink) Finished(_ context.Context, r batch.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = append(s.finished, r)
}

type recordingDispatcher struct {
	sent []batch.Confirmation
}

func (d *recordingDispatcher) Dispatch(_ context.Context, c batch.Confirmation) {
	d.sent = append(d.sent, c)
}

type conflictResolver struct{ after int }

func (c *conflictResolver) Resolve(context.Context, model.Record, model.Verification, string) (resolve.Resolution, error) {
	if c.after == 0 {
		return resolve.Resolution{}, rejection.New(rejection.KindResolutionConflict, resolve.MsgConflict)
	}
	c.after--
	return resolve.Resolution{Outcome: resolve.Created, ObservationID: uint64(100 + c.after)}, nil
}

type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

type fixture struct {
	store      *repository.MemoryStore
	verifier   *stubVerifier
	sink       *recordingSink
	dispatcher *recordingDispatcher
	orch       *batch.Orchestrator
}

func newFixture(opts ...batch.Option) *fixture {
	f := &fixture{
		store:      repository.NewMemoryStore(),
		verifier:   &stubVerifier{reject: map[float64]*rejection.Rejection{}},
		sink:       &recordingSink{},
		dispatcher: &recordingDispatcher{},
	}
	base := []batch.Option{
		batch.WithProgressSink(f.sink),
		batch.WithDispatcher(f.dispatcher),
		batch.WithHealthChecker(f.store),
	}
	f.orch = batch.NewOrchestrator(f.verifier, resolve.New(f.store), append(base, opts...)...)
	return f
}

func TestRunOutcomes(t *testing.T) {
	Convey("Given an orchestrator over an empty store", t, func() {
		f := newFixture()
		ctx := context.Background()

		Convey("When a batch mixes new, duplicate and rejected records", func() {
			bad := record(9)
			bad.ApparentMag = nil
			bad.ApparentMagUncert = f64(0.2)
			f.verifier.reject[7] = rejection.New(rejection.KindExternalData, "Satellite with this ID not visible at this time and location.")

			res := f.orch.Run(ctx, batch.Batch{ID: "b1", Records: []model.Record{
				record(5), record(5), bad, record(7), record(6),
			}})

			Convey("Then every record is accounted for", func() {
				So(res.Status, ShouldEqual, batch.StatusPartialSuccess)
				want := &batch.Summary{Total: 5, Created: 2, Duplicates: 1, Rejected: 2}
				So(cmp.Diff(want, res.Summary), ShouldBeEmpty)
				So(res.Summary.Total, ShouldEqual, res.Summary.Created+res.Summary.Duplicates+res.Summary.Rejected)
			})

			Convey("Then rejections keep their index and message in order", func() {
				So(res.RejectedObs, ShouldHaveLength, 2)
				So(res.RejectedObs[0].Index, ShouldEqual, 2)
				So(res.RejectedObs[0].Error, ShouldEqual, "Apparent magnitude uncertainty without apparent magnitude.")
				So(res.RejectedObs[0].Kind, ShouldEqual, "structural")
				So(res.RejectedObs[0].ObsTimeUTC, ShouldEqual, "2024-03-10T04:12:30Z")
				So(res.RejectedObs[1].Index, ShouldEqual, 3)
				So(*res.RejectedObs[1].SatNumber, ShouldEqual, 44713)
			})

			Convey("Then the structurally broken record never reached the verifier", func() {
				So(f.verifier.calls, ShouldEqual, 4)
			})

			Convey("Then the sink saw the frozen result", func() {
				So(f.sink.finished, ShouldHaveLength, 1)
				So(cmp.Diff(res, f.sink.finished[0]), ShouldBeEmpty)
			})
		})

		Convey("When the same batch is submitted twice", func() {
			first := f.orch.Run(ctx, batch.Batch{ID: "b1", Records: []model.Record{record(5)}})
			second := f.orch.Run(ctx, batch.Batch{ID: "b2", Records: []model.Record{record(5)}})

			Convey("Then the second run only finds a duplicate", func() {
				So(first.Status, ShouldEqual, batch.StatusSuccess)
				So(first.Summary.Created, ShouldEqual, 1)
				So(second.Status, ShouldEqual, batch.StatusSuccess)
				So(second.Summary.Duplicates, ShouldEqual, 1)
				So(second.DuplicateIDs, ShouldResemble, first.CreatedIDs)

				counts, _ := f.store.Counts(ctx)
				So(counts, ShouldResemble, repository.Counts{Satellites: 1, Locations: 1, Observations: 1})
			})
		})

		Convey("When every record is rejected", func() {
			f.verifier.reject[5] = rejection.New(rejection.KindExternalTransport, "Satellite position check failed - try again later.")
			res := f.orch.Run(ctx, batch.Batch{ID: "b1", Records: []model.Record{record(5), record(5)}})

			Convey("Then it is a partial success with nothing stored", func() {
				So(res.Status, ShouldEqual, batch.StatusPartialSuccess)
				So(res.Summary.Rejected, ShouldEqual, 2)
				So(res.Summary.Created, ShouldEqual, 0)
			})
		})

		Convey("When the verifier panics", func() {
			f.verifier.panics = true
			res := f.orch.Run(ctx, batch.Batch{ID: "b1", Records: []model.Record{record(5)}})

			Convey("Then the record becomes an unexpected rejection", func() {
				So(res.Status, ShouldEqual, batch.StatusPartialSuccess)
				So(res.RejectedObs[0].Error, ShouldEqual, rejection.MsgUnexpected)
			})
		})
	})
}

func TestRunProgress(t *testing.T) {
	Convey("Given ten identical records", t, func() {
		f := newFixture()
		records := make([]model.Record, 10)
		for i := range records {
			records[i] = record(5)
		}

		Convey("When the batch runs", func() {
			res := f.orch.Run(context.Background(), batch.Batch{ID: "b1", Records: records})

			Convey("Then one is created and nine are duplicates", func() {
				So(res.Status, ShouldEqual, batch.StatusSuccess)
				So(cmp.Diff(&batch.Summary{Total: 10, Created: 1, Duplicates: 9}, res.Summary), ShouldBeEmpty)
			})

			Convey("Then eleven progress events were emitted", func() {
				events := f.sink.events
				So(events, ShouldHaveLength, 11)
				So(events[0].State, ShouldEqual, batch.StatusPending)
				So(events[0].Current, ShouldEqual, 0)
				for i := 1; i < len(events); i++ {
					So(events[i].State, ShouldEqual, batch.StatusProcessing)
					So(events[i].Current, ShouldBeGreaterThan, events[i-1].Current)
					So(events[i].Total, ShouldEqual, 10)
					So(events[i].Percent, ShouldEqual, events[i].Current*100/10)
				}
				So(events[10].Percent, ShouldEqual, 100)
			})
		})
	})

	Convey("Given three records", t, func() {
		f := newFixture()
		f.orch.Run(context.Background(), batch.Batch{ID: "b1", Records: []model.Record{record(1), record(2), record(3)}})

		Convey("Then percentages are floored", func() {
			var got []int
			for _, e := range f.sink.events[1:] {
				got = append(got, e.Percent)
			}
			So(got, ShouldResemble, []int{33, 66, 100})
		})
	})
}

func TestRunFailures(t *testing.T) {
	Convey("Given batches that cannot be processed", t, func() {
		ctx := context.Background()

		Convey("When the batch is empty", func() {
			f := newFixture()
			res := f.orch.Run(ctx, batch.Batch{ID: "b1"})
			So(res.Status, ShouldEqual, batch.StatusFailed)
			So(res.Error, ShouldEqual, batch.MsgEmptyBatch)
			So(res.Summary, ShouldBeNil)
		})

		Convey("When the batch is larger than allowed", func() {
			f := newFixture(batch.WithMaxBatchSize(2))
			res := f.orch.Run(ctx, batch.Batch{ID: "b1", Records: []model.Record{record(1), record(2), record(3)}})
			So(res.Status, ShouldEqual, batch.StatusFailed)
			So(res.Error, ShouldEqual, "Batch exceeds the maximum of 2 observations.")
			So(f.verifier.calls, ShouldEqual, 0)
		})

		Convey("When the store is down", func() {
			f := newFixture(batch.WithHealthChecker(downStore{}))
			res := f.orch.Run(ctx, batch.Batch{ID: "b1", Records: []model.Record{record(1)}})
			So(res.Status, ShouldEqual, batch.StatusFailed)
			So(res.Error, ShouldEqual, batch.MsgStoreUnavailable)
			So(f.verifier.calls, ShouldEqual, 0)
		})

		Convey("When resolution conflicts on the second record", func() {
			sink := &recordingSink{}
			orch := batch.NewOrchestrator(&stubVerifier{}, &conflictResolver{after: 1}, batch.WithProgressSink(sink))
			res := orch.Run(ctx, batch.Batch{ID: "b1", Records: []model.Record{record(1), record(2), record(3)}})

			Convey("Then the batch fails with one top-level error and stops", func() {
				So(res.Status, ShouldEqual, batch.StatusFailed)
				So(res.Error, ShouldEqual, "Observation 1: "+resolve.MsgConflict)
				So(res.Summary, ShouldBeNil)
				So(res.RejectedObs, ShouldBeEmpty)
				So(sink.events, ShouldHaveLength, 3)
				So(sink.finished[0].Status, ShouldEqual, batch.StatusFailed)
			})
		})
	})
}

func TestRunConfirmation(t *testing.T) {
	Convey("Given a batch asking for confirmation", t, func() {
		f := newFixture()
		ctx := context.Background()

		Convey("When no address is supplied", func() {
			f.orch.Run(ctx, batch.Batch{ID: "b1", SendConfirmation: true, Records: []model.Record{record(1), record(1)}})

			Convey("Then the first successful observer's email is used", func() {
				So(f.dispatcher.sent, ShouldHaveLength, 1)
				c := f.dispatcher.sent[0]
				So(c.Address, ShouldEqual, "observer@example.org")
				So(c.ObservationIDs, ShouldHaveLength, 2)
				So(c.Summary.Duplicates, ShouldEqual, 1)
			})
		})

		Convey("When an address is supplied", func() {
			f.orch.Run(ctx, batch.Batch{ID: "b1", SendConfirmation: true, NotifyAddress: "team@example.org", Records: []model.Record{record(1)}})
			So(f.dispatcher.sent[0].Address, ShouldEqual, "team@example.org")
		})

		Convey("When nothing succeeds", func() {
			f.verifier.reject[1] = rejection.New(rejection.KindExternalData, "x")
			f.orch.Run(ctx, batch.Batch{ID: "b1", SendConfirmation: true, Records: []model.Record{record(1)}})
			So(f.dispatcher.sent, ShouldBeEmpty)
		})

		Convey("When confirmation is not requested", func() {
			f.orch.Run(ctx, batch.Batch{ID: "b1", NotifyAddress: "team@example.org", Records: []model.Record{record(1)}})
			So(f.dispatcher.sent, ShouldBeEmpty)
		})
	})
}
