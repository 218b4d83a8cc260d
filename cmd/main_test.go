package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	service "github.com/okian/satobs/internal/app"
	"github.com/okian/satobs/internal/config"
	"github.com/okian/satobs/internal/domain/batch"
	"github.com/okian/satobs/internal/domain/verify"
	"github.com/okian/satobs/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type visibleEphemeris struct{}

func (visibleEphemeris) Position(_ context.Context, q verify.PositionQuery) ([]verify.Position, error) {
	ref := time.Unix(0, 0).UTC().Add(time.Duration((q.JulianDate - 2440587.5) * float64(24*time.Hour)))
	return []verify.Position{{Name: "STARLINK-1234", CatalogNumber: q.CatalogNumber, AltDeg: 42, RefDataTime: ref}}, nil
}

func (visibleEphemeris) Names(context.Context, int) ([]verify.SatelliteName, error) {
	return []verify.SatelliteName{{Name: "STARLINK-1234", Current: true}}, nil
}

const record = `{"sat_name":"starlink-1234","sat_number":44713,"obs_time_utc":"2024-03-10T04:12:30Z",` +
	`"apparent_mag":5.1,"obs_lat_deg":33.1,"obs_long_deg":-117.3,"obs_alt_m":100}`

func writeFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "batch.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRootCommand(t *testing.T) {
	convey.Convey("Given the root command", t, func() {
		root := newRootCmd()

		convey.Convey("Then it exposes its subcommands", func() {
			names := map[string]bool{}
			for _, c := range root.Commands() {
				names[c.Name()] = true
			}
			convey.So(names["serve"], convey.ShouldBeTrue)
			convey.So(names["ingest"], convey.ShouldBeTrue)
			convey.So(names["loadgen"], convey.ShouldBeTrue)
			convey.So(root.PersistentFlags().Lookup("config"), convey.ShouldNotBeNil)
		})

		convey.Convey("When ingest is called without a file", func() {
			root.SetArgs([]string{"ingest"})
			root.SetOut(&bytes.Buffer{})
			root.SetErr(&bytes.Buffer{})
			err := root.Execute()

			convey.Convey("Then argument validation fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestReadSubmission(t *testing.T) {
	convey.Convey("Given batch files", t, func() {
		convey.Convey("When the file is a bare array", func() {
			sub, err := readSubmission(writeFile(t, "\n ["+record+","+record+"]"))

			convey.Convey("Then every record is read", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(sub.Records, convey.ShouldHaveLength, 2)
				convey.So(sub.SendConfirmation, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When the file is a submission object", func() {
			sub, err := readSubmission(writeFile(t, `{"records":[`+record+`],"notify_email":"a@b.org","send_confirmation":true}`))

			convey.Convey("Then the notification settings are kept", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(sub.Records, convey.ShouldHaveLength, 1)
				convey.So(sub.NotifyAddress, convey.ShouldEqual, "a@b.org")
				convey.So(sub.SendConfirmation, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the file is missing or malformed", func() {
			_, err := readSubmission(filepath.Join(t.TempDir(), "nope.json"))
			convey.So(err, convey.ShouldNotBeNil)

			_, err = readSubmission(writeFile(t, "{"))
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestRunIngest(t *testing.T) {
	convey.Convey("Given a service over a memory store", t, func() {
		ctx := context.Background()
		newSvc := func() *service.Service {
			return service.New(
				service.WithStoreDriver(service.StoreMemory, ""),
				service.WithEphemeris(visibleEphemeris{}),
			)
		}
		var out, summary bytes.Buffer

		convey.Convey("When a batch with a duplicate is ingested", func() {
			sub, err := readSubmission(writeFile(t, "["+record+","+record+"]"))
			convey.So(err, convey.ShouldBeNil)
			err = runIngest(ctx, newSvc(), sub, &out, &summary)

			convey.Convey("Then the JSON result and a readable summary are printed", func() {
				convey.So(err, convey.ShouldBeNil)
				var res batch.Result
				convey.So(json.Unmarshal(out.Bytes(), &res), convey.ShouldBeNil)
				convey.So(res.Status, convey.ShouldEqual, batch.StatusSuccess)
				convey.So(res.Summary.Created, convey.ShouldEqual, 1)
				convey.So(res.Summary.Duplicates, convey.ShouldEqual, 1)
				convey.So(summary.String(), convey.ShouldContainSubstring, "2 observations, 1 created, 1 duplicates, 0 rejected")
			})
		})

		convey.Convey("When an empty batch is ingested", func() {
			err := runIngest(ctx, newSvc(), service.Submission{}, &out, &summary)

			convey.Convey("Then the command fails with the batch error", func() {
				convey.So(errors.Is(err, ErrBatchFailed), convey.ShouldBeTrue)
				convey.So(summary.String(), convey.ShouldContainSubstring, batch.MsgEmptyBatch)
			})
		})
	})
}

func TestDescribe(t *testing.T) {
	convey.Convey("Given a large successful result", t, func() {
		start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		res := batch.Result{
			Status:     batch.StatusPartialSuccess,
			Summary:    &batch.Summary{Total: 12000, Created: 11000, Duplicates: 500, Rejected: 500},
			StartedAt:  start,
			FinishedAt: start.Add(2 * time.Second),
		}

		convey.Convey("Then counts are humanized", func() {
			convey.So(describe(res), convey.ShouldEqual,
				"PARTIAL_SUCCESS: 12,000 observations, 11,000 created, 500 duplicates, 500 rejected in 2s")
		})
	})
}

func TestServeWiring(t *testing.T) {
	convey.Convey("Given a started service behind the HTTP mux", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.StoreDriver = config.StoreMemory
		opts := append(serviceOptions(cfg), service.WithEphemeris(visibleEphemeris{}))
		svc := service.New(opts...)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		convey.Reset(func() { _ = svc.Stop(ctx) })
		mux := newMux(ctx, svc)

		convey.Convey("Then API and docs routes are registered", func() {
			for _, path := range []string{"/healthz", "/stats", "/openapi.yaml", "/api-docs"} {
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			}
		})

		convey.Convey("Then a submitted batch can be polled", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/batches", bytes.NewBufferString(`{"records":[`+record+`]}`)))
			convey.So(w.Code, convey.ShouldEqual, http.StatusAccepted)

			var accepted struct {
				BatchID string `json:"batch_id"`
			}
			convey.So(json.Unmarshal(w.Body.Bytes(), &accepted), convey.ShouldBeNil)

			w = httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/batches/"+accepted.BatchID, http.NoBody))
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
		})
	})
}
