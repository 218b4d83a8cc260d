package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 10}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then every collector is registered under the namespace", func() {
				So(manager, ShouldNotBeNil)
				manager.recordsTotal.WithLabelValues("created").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
				for _, f := range families {
					So(strings.HasPrefix(f.GetName(), "test_unit_"), ShouldBeTrue)
				}
			})
		})

		Convey("When registering the same names twice on one registry", func() {
			registry := prometheus.NewRegistry()
			NewManager(WithPrometheusRegistry(registry))

			Convey("Then promauto panics on the duplicate", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording record outcomes", func() {
			before := testutil.ToFloat64(globalManager.recordsTotal.WithLabelValues("duplicate"))
			RecordRecordOutcome("duplicate")
			RecordRecordOutcome("duplicate")

			Convey("Then the labelled counter moves", func() {
				after := testutil.ToFloat64(globalManager.recordsTotal.WithLabelValues("duplicate"))
				So(after-before, ShouldEqual, 2)
			})
		})

		Convey("When tracking in-flight batches", func() {
			base := testutil.ToFloat64(globalManager.batchesInFlight)
			BatchStarted()
			So(testutil.ToFloat64(globalManager.batchesInFlight), ShouldEqual, base+1)
			BatchDone()
			So(testutil.ToFloat64(globalManager.batchesInFlight), ShouldEqual, base)
		})

		Convey("When the remaining recorders are called", func() {
			So(func() {
				RecordBatchFinished("SUCCESS", 12)
				RecordRejection("structural")
				RecordArchival()
				RecordEphemerisRequest("position", "ok", 30)
				RecordNameCacheHit()
				RecordNameCacheMiss()
				RecordResolverLatency(2)
				RecordSatelliteCreated()
				RecordLocationCreated()
				UpdateQueueSize(3)
				UpdateQueueCapacity(10)
				RecordQueueEnqueue()
				RecordQueueEnqueueError("full")
				WorkerBusy()
				WorkerIdle()
				RecordWorkerProcessingLatency(100)
				RecordNotification("sent")
				RecordProgressPublish("ok")
				RecordHTTPRequest("batches", "POST", "202")
				RecordHTTPRequestDuration("batches", "POST", "202", 4)
				RecordErrorByComponent("worker", "panic")
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(8)
			}, ShouldNotPanic)

			Convey("Then the custom registry gathers them", func() {
				families, err := GetRegistry().Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "satobs_ingest_batches_total")
				So(names, ShouldContain, "satobs_ingest_ephemeris_requests_total")
			})
		})
	})
}
