package service_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/satobs/internal/domain/model"
	"github.com/okian/satobs/internal/domain/verify"
	"github.com/okian/satobs/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// fakeEphemeris reports every satellite as visible at 30 degrees with
// reference data taken at the observation time.
type fakeEphemeris struct {
	mu      sync.Mutex
	gate    chan struct{}
	invis   map[int]bool
	queries atomic.Int64
}

func (f *fakeEphemeris) Position(ctx context.Context, q verify.PositionQuery) ([]verify.Position, error) {
	f.queries.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.invis[q.CatalogNumber] {
		return []verify.Position{}, nil
	}
	return []verify.Position{{
		Name:          "STARLINK-1234",
		CatalogNumber: q.CatalogNumber,
		AltDeg:        30,
		AzDeg:         120,
		RefDataTime:   julianToTime(q.JulianDate),
	}}, nil
}

func (f *fakeEphemeris) Names(_ context.Context, n int) ([]verify.SatelliteName, error) {
	return []verify.SatelliteName{{Name: "STARLINK-1234", NoradID: n, Current: true}}, nil
}

func julianToTime(jd float64) time.Time {
	const unixEpochJD = 2440587.5
	return time.Unix(0, 0).UTC().Add(time.Duration((jd - unixEpochJD) * float64(24*time.Hour)))
}

func f64(v float64) *float64 { return &v }
func intp(v int) *int        { return &v }

func observation(number int, mag float64) model.Record {
	ts := time.Date(2024, 3, 10, 4, 12, 30, 0, time.UTC)
	return model.Record{
		SatName:     "STARLINK-1234",
		SatNumber:   intp(number),
		ObsTimeUTC:  &ts,
		ApparentMag: f64(mag),
		ObsEmail:    "observer@example.org",
		ObsLatDeg:   f64(33.1),
		ObsLongDeg:  f64(-117.3),
		ObsAltM:     f64(100),
	}
}
