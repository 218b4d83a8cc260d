// Package repository defines the entity store used by the resolver and its
// implementations.
package repository

import (
	"context"

	"github.com/okian/satobs/internal/domain/model"
)

// Counts is a snapshot of stored entity totals.
type Counts struct {
	Satellites   int64 `json:"satellites"`
	Locations    int64 `json:"locations"`
	Observations int64 `json:"observations"`
}

// Store provides transactional access to satellites, locations and observations.
type Store interface {
	// WithinTx runs fn in a single transaction. The transaction commits when
	// fn returns nil and rolls back otherwise. Transactions are serialized.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	// Observation returns a stored observation by ID.
	// Returns ErrNotFound if it does not exist.
	Observation(ctx context.Context, id uint64) (model.Observation, error)

	// Counts returns entity totals.
	Counts(ctx context.Context) (Counts, error)

	// Ping reports whether the store can serve requests.
	Ping(ctx context.Context) error

	Close() error
}

// Tx is the unit-of-work view handed to WithinTx callbacks.
type Tx interface {
	// SatelliteByNumber returns ErrNotFound if the catalog number is unknown.
	SatelliteByNumber(ctx context.Context, number int) (model.Satellite, error)
	// CreateSatellite assigns s.ID. Returns ErrConflict if the number exists.
	CreateSatellite(ctx context.Context, s *model.Satellite) error
	UpdateSatelliteName(ctx context.Context, id uint64, name string) error

	// LocationByKey returns ErrNotFound if no location has exactly that triple.
	LocationByKey(ctx context.Context, key model.LocationKey) (model.Location, error)
	// CreateLocation assigns l.ID. Returns ErrConflict if the triple exists.
	CreateLocation(ctx context.Context, l *model.Location) error

	// ObservationByKey returns ErrNotFound if no observation has that key.
	ObservationByKey(ctx context.Context, key string) (model.Observation, error)
	// CreateObservation assigns o.ID. Returns ErrConflict if the key exists.
	CreateObservation(ctx context.Context, o *model.Observation) error
}
