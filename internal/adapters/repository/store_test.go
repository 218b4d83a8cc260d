package repository

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/okian/satobs/internal/domain/model"
	"github.com/okian/satobs/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var errAbort = errors.New("abort")

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sql, err := OpenSQLite(filepath.Join(t.TempDir(), "satobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sql.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sql,
	}
}

func sampleObservation(key string, satID, locID uint64) *model.Observation {
	ts := time.Date(2024, 3, 10, 4, 12, 30, 0, time.UTC)
	mag := 6.5
	return &model.Observation{
		Key:         key,
		Fingerprint: "fp-" + key,
		SatelliteID: satID,
		LocationID:  locID,
		Record:      model.Record{SatName: "STARLINK-1234", ObsTimeUTC: &ts, ApparentMag: &mag, ObsORCID: model.ORCIDList{"0000-0002-1825-0097"}},
		Geometry:    &model.Geometry{AltDeg: 42.5, IntlDesignator: "2019-074A", Illuminated: true},
		BatchID:     "batch-1",
	}
}

func TestStoreCreateAndLookup(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var obsID uint64

			err := store.WithinTx(ctx, func(tx Tx) error {
				sat := model.Satellite{Number: 44713, Name: "STARLINK-1234"}
				require.NoError(t, tx.CreateSatellite(ctx, &sat))
				assert.NotZero(t, sat.ID)

				loc := model.Location{LatDeg: 33.1, LongDeg: -117.3, AltM: 100}
				require.NoError(t, tx.CreateLocation(ctx, &loc))

				got, err := tx.SatelliteByNumber(ctx, 44713)
				require.NoError(t, err)
				assert.Equal(t, sat, got)

				gotLoc, err := tx.LocationByKey(ctx, loc.Key())
				require.NoError(t, err)
				assert.Equal(t, loc, gotLoc)

				obs := sampleObservation("k1", sat.ID, loc.ID)
				require.NoError(t, tx.CreateObservation(ctx, obs))
				obsID = obs.ID
				return nil
			})
			require.NoError(t, err)

			got, err := store.Observation(ctx, obsID)
			require.NoError(t, err)
			assert.Equal(t, "k1", got.Key)
			assert.Equal(t, "STARLINK-1234", got.SatName)
			require.NotNil(t, got.Geometry)
			assert.Equal(t, "2019-074A", got.Geometry.IntlDesignator)
			assert.Equal(t, model.ORCIDList{"0000-0002-1825-0097"}, got.ObsORCID)
			assert.False(t, got.Created.IsZero())

			counts, err := store.Counts(ctx)
			require.NoError(t, err)
			assert.Equal(t, Counts{Satellites: 1, Locations: 1, Observations: 1}, counts)
		})
	}
}

func TestStoreNotFoundAndConflict(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.Observation(ctx, 999)
			assert.ErrorIs(t, err, ErrNotFound)

			err = store.WithinTx(ctx, func(tx Tx) error {
				_, err := tx.SatelliteByNumber(ctx, 1)
				assert.ErrorIs(t, err, ErrNotFound)
				_, err = tx.LocationByKey(ctx, model.LocationKey{LatDeg: 1})
				assert.ErrorIs(t, err, ErrNotFound)
				_, err = tx.ObservationByKey(ctx, "missing")
				assert.ErrorIs(t, err, ErrNotFound)
				assert.ErrorIs(t, tx.UpdateSatelliteName(ctx, 12345, "X"), ErrNotFound)

				require.NoError(t, tx.CreateSatellite(ctx, &model.Satellite{Number: 1}))
				return nil
			})
			require.NoError(t, err)

			err = store.WithinTx(ctx, func(tx Tx) error {
				return tx.CreateSatellite(ctx, &model.Satellite{Number: 1})
			})
			assert.ErrorIs(t, err, ErrConflict)
		})
	}
}

func TestStoreRollback(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			err := store.WithinTx(ctx, func(tx Tx) error {
				require.NoError(t, tx.CreateSatellite(ctx, &model.Satellite{Number: 7, Name: "A"}))
				require.NoError(t, tx.CreateLocation(ctx, &model.Location{LatDeg: 1, LongDeg: 2, AltM: 3}))
				return errAbort
			})
			assert.ErrorIs(t, err, errAbort)

			counts, err := store.Counts(ctx)
			require.NoError(t, err)
			assert.Equal(t, Counts{}, counts)
		})
	}
}

func TestStoreUpdateSatelliteName(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sat := model.Satellite{Number: 25544}
			require.NoError(t, store.WithinTx(ctx, func(tx Tx) error {
				return tx.CreateSatellite(ctx, &sat)
			}))
			require.NoError(t, store.WithinTx(ctx, func(tx Tx) error {
				return tx.UpdateSatelliteName(ctx, sat.ID, "ISS (ZARYA)")
			}))
			require.NoError(t, store.WithinTx(ctx, func(tx Tx) error {
				got, err := tx.SatelliteByNumber(ctx, 25544)
				require.NoError(t, err)
				assert.Equal(t, "ISS (ZARYA)", got.Name)
				return nil
			}))
		})
	}
}

func TestStoreConcurrentCreateKeepsOneRow(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var wg sync.WaitGroup
			for range 8 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_ = store.WithinTx(ctx, func(tx Tx) error {
						if _, err := tx.SatelliteByNumber(ctx, 5); err == nil {
							return nil
						}
						return tx.CreateSatellite(ctx, &model.Satellite{Number: 5})
					})
				}()
			}
			wg.Wait()

			counts, err := store.Counts(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), counts.Satellites)
		})
	}
}

func TestMemoryStoreClosed(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Close())
	assert.ErrorIs(t, store.Ping(context.Background()), ErrClosed)
	assert.ErrorIs(t, store.WithinTx(context.Background(), func(Tx) error { return nil }), ErrClosed)
}
