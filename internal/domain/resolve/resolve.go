// Package resolve maps a verified record onto stored satellite, location and
// observation identities inside one store transaction.
package resolve

import (
	"context"
	"errors"
	"time"

	"github.com/okian/satobs/internal/adapters/repository"
	"github.com/okian/satobs/internal/domain/model"
	"github.com/okian/satobs/internal/domain/rejection"
	"github.com/okian/satobs/pkg/logger"
	"github.com/okian/satobs/pkg/metrics"
)

// Rejection messages.
const (
	MsgConflict   = "Observation conflicts with concurrently stored data."
	MsgUnverified = "Observation is missing its catalog number or location."
)

const defaultAttempts = 3

// Outcome tells whether the observation was new.
type Outcome int

const (
	Created Outcome = iota + 1
	Duplicate
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Duplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// Resolution is the result of resolving one record.
type Resolution struct {
	Outcome       Outcome
	ObservationID uint64
	SatelliteID   uint64
	LocationID    uint64
}

// Resolver performs entity resolution against a repository.Store.
type Resolver struct {
	store    repository.Store
	logger   logger.Logger
	attempts int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithAttempts sets how many times a transaction that lost a uniqueness race
// is retried.
func WithAttempts(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.attempts = n
		}
	}
}

// New creates a Resolver.
func New(store repository.Store, opts ...Option) *Resolver {
	r := &Resolver{store: store, attempts: defaultAttempts}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Get().Named("resolver")
	}
	return r
}

type txEffects struct {
	satCreated bool
	locCreated bool
}

// Resolve stores rec unless an identical observation exists. The returned
// error, when not nil, is a *rejection.Rejection; KindResolutionConflict
// means the store could not settle on one identity.
func (r *Resolver) Resolve(ctx context.Context, rec model.Record, ver model.Verification, batchID string) (Resolution, error) {
	if rec.SatNumber == nil || rec.ObsLatDeg == nil || rec.ObsLongDeg == nil || rec.ObsAltM == nil {
		return Resolution{}, rejection.New(rejection.KindInputDomain, MsgUnverified)
	}
	start := time.Now()
	defer func() {
		metrics.RecordResolverLatency(float64(time.Since(start).Nanoseconds()) / 1e6)
	}()

	var (
		res Resolution
		fx  txEffects
		err error
	)
	for attempt := 1; attempt <= r.attempts; attempt++ {
		res, fx, err = r.resolveOnce(ctx, rec, ver, batchID)
		if err == nil || !errors.Is(err, repository.ErrConflict) {
			break
		}
		r.logger.Debug(ctx, "uniqueness race, retrying",
			logger.Int("attempt", attempt),
			logger.Error(err),
		)
	}

	switch {
	case err == nil:
	case errors.Is(err, repository.ErrConflict):
		return Resolution{}, rejection.Wrap(rejection.KindResolutionConflict, MsgConflict, err)
	default:
		var rej *rejection.Rejection
		if errors.As(err, &rej) {
			return Resolution{}, rej
		}
		return Resolution{}, rejection.Wrap(rejection.KindUnexpected, rejection.MsgSaveFailed, err)
	}

	if fx.satCreated {
		metrics.RecordSatelliteCreated()
	}
	if fx.locCreated {
		metrics.RecordLocationCreated()
	}
	return res, nil
}

func (r *Resolver) resolveOnce(ctx context.Context, rec model.Record, ver model.Verification, batchID string) (Resolution, txEffects, error) {
	var (
		res Resolution
		fx  txEffects
	)
	err := r.store.WithinTx(ctx, func(tx repository.Tx) error {
		sat, created, err := r.satellite(ctx, tx, *rec.SatNumber, ver.SatName)
		if err != nil {
			return err
		}
		fx.satCreated = created

		loc, created, err := location(ctx, tx, model.LocationKey{
			LatDeg: *rec.ObsLatDeg, LongDeg: *rec.ObsLongDeg, AltM: *rec.ObsAltM,
		})
		if err != nil {
			return err
		}
		fx.locCreated = created

		stored := rec
		stored.SatName = sat.Name
		fp := Fingerprint(sat.ID, loc.ID, stored, ver.Archival, ver.Geometry)
		key := ObservationKey(fp)

		res.SatelliteID, res.LocationID = sat.ID, loc.ID
		existing, err := tx.ObservationByKey(ctx, key)
		switch {
		case err == nil:
			if existing.Fingerprint != fp {
				return rejection.New(rejection.KindResolutionConflict, MsgConflict)
			}
			res.Outcome, res.ObservationID = Duplicate, existing.ID
			return nil
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}

		obs := model.Observation{
			Key:         key,
			Fingerprint: fp,
			SatelliteID: sat.ID,
			LocationID:  loc.ID,
			Record:      stored,
			Archival:    ver.Archival,
			Geometry:    ver.Geometry,
			BatchID:     batchID,
		}
		if err := tx.CreateObservation(ctx, &obs); err != nil {
			return err
		}
		res.Outcome, res.ObservationID = Created, obs.ID
		return nil
	})
	return res, fx, err
}

// satellite finds or creates the satellite. A non-empty differing name
// replaces the stored one; a stored name is never blanked.
func (r *Resolver) satellite(ctx context.Context, tx repository.Tx, number int, name string) (model.Satellite, bool, error) {
	sat, err := tx.SatelliteByNumber(ctx, number)
	switch {
	case err == nil:
		if name != "" && name != sat.Name {
			if err := tx.UpdateSatelliteName(ctx, sat.ID, name); err != nil {
				return model.Satellite{}, false, err
			}
			r.logger.Debug(ctx, "satellite renamed",
				logger.Int("sat_number", number),
				logger.String("from", sat.Name),
				logger.String("to", name),
			)
			sat.Name = name
		}
		return sat, false, nil
	case errors.Is(err, repository.ErrNotFound):
		sat = model.Satellite{Number: number, Name: name}
		if err := tx.CreateSatellite(ctx, &sat); err != nil {
			return model.Satellite{}, false, err
		}
		return sat, true, nil
	default:
		return model.Satellite{}, false, err
	}
}

func location(ctx context.Context, tx repository.Tx, key model.LocationKey) (model.Location, bool, error) {
	loc, err := tx.LocationByKey(ctx, key)
	switch {
	case err == nil:
		return loc, false, nil
	case errors.Is(err, repository.ErrNotFound):
		loc = model.Location{LatDeg: key.LatDeg, LongDeg: key.LongDeg, AltM: key.AltM}
		if err := tx.CreateLocation(ctx, &loc); err != nil {
			return model.Location{}, false, err
		}
		return loc, true, nil
	default:
		return model.Location{}, false, err
	}
}
