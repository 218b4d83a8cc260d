package service_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/okian/satobs/internal/adapters/progress"
	service "github.com/okian/satobs/internal/app"
	"github.com/okian/satobs/internal/domain/batch"
	"github.com/okian/satobs/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func waitTerminal(ctx context.Context, svc *service.Service, id string) progress.Snapshot {
	for {
		snap, err := svc.Status(ctx, id)
		if err == nil && snap.Result != nil {
			return snap
		}
		select {
		case <-ctx.Done():
			return snap
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given a service backed by sqlite", t, func() {
		eph := &fakeEphemeris{invis: map[int]bool{99999: true}}
		svc := service.New(
			service.WithWorkerCount(4),
			service.WithQueueSize(100),
			service.WithStoreDriver(service.StoreSQLite, filepath.Join(t.TempDir(), "obs.db")),
			service.WithEphemeris(eph),
		)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = svc.Stop(ctx) })

		Convey("When a mixed batch is processed end-to-end", func() {
			id, err := svc.Submit(ctx, service.Submission{Records: []model.Record{
				observation(44713, 5.1),
				observation(99999, 5.2),
				observation(44713, 5.1),
			}})
			So(err, ShouldBeNil)
			snap := waitTerminal(ctx, svc, id)

			Convey("Then the result accounts for every record", func() {
				So(snap.Result, ShouldNotBeNil)
				So(snap.State, ShouldEqual, batch.StatusPartialSuccess)
				So(snap.Percent, ShouldEqual, 100)
				sum := snap.Result.Summary
				So(sum.Total, ShouldEqual, 3)
				So(sum.Created, ShouldEqual, 1)
				So(sum.Duplicates, ShouldEqual, 1)
				So(sum.Rejected, ShouldEqual, 1)
				So(snap.Result.RejectedObs, ShouldHaveLength, 1)
				So(snap.Result.RejectedObs[0].Index, ShouldEqual, 1)
			})
		})

		Convey("When many batches for one satellite run concurrently", func() {
			const batches = 8
			ids := make([]string, batches)
			var wg sync.WaitGroup
			for i := range batches {
				wg.Add(1)
				go func() {
					defer wg.Done()
					id, err := svc.Submit(ctx, service.Submission{Records: []model.Record{
						observation(44713, float64(i)),
						observation(44713, 100),
					}})
					if err == nil {
						ids[i] = id
					}
				}()
			}
			wg.Wait()

			results := make([]*batch.Result, 0, batches)
			for _, id := range ids {
				So(id, ShouldNotBeEmpty)
				results = append(results, waitTerminal(ctx, svc, id).Result)
			}

			Convey("Then exactly one satellite, one location and one shared row exist", func() {
				var created, dups int
				for _, r := range results {
					So(r, ShouldNotBeNil)
					So(r.Status, ShouldEqual, batch.StatusSuccess)
					created += r.Summary.Created
					dups += r.Summary.Duplicates
				}
				So(created+dups, ShouldEqual, 2*batches)

				stats := svc.GetStats(ctx)
				So(stats["satellites"], ShouldEqual, int64(1))
				So(stats["locations"], ShouldEqual, int64(1))
				So(stats["observations"], ShouldEqual, int64(batches+1))
			})
		})

		Convey("When the service stops with batches queued", func() {
			var ids []string
			for i := range 5 {
				id, err := svc.Submit(ctx, service.Submission{Records: []model.Record{observation(44713, 20+float64(i))}})
				So(err, ShouldBeNil)
				ids = append(ids, id)
			}
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then every accepted batch was stored before shutdown", func() {
				So(eph.queries.Load(), ShouldEqual, 5)
			})
		})
	})
}
