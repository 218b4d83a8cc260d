package repository

import (
	"context"
	"sync"

	"github.com/okian/satobs/internal/domain/model"
	"github.com/okian/satobs/pkg/logger"
)

// MemoryStore is a process-local Store. Transactions hold a store-wide lock
// and stage their writes until fn returns nil.
type MemoryStore struct {
	mu     sync.Mutex
	opts   storeOptions
	closed bool

	nextID uint64

	satellites   map[uint64]model.Satellite
	satByNumber  map[int]uint64
	locations    map[uint64]model.Location
	locByKey     map[model.LocationKey]uint64
	observations map[uint64]model.Observation
	obsByKey     map[string]uint64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		opts:         applyOptions("memory-store", opts),
		satellites:   make(map[uint64]model.Satellite),
		satByNumber:  make(map[int]uint64),
		locations:    make(map[uint64]model.Location),
		locByKey:     make(map[model.LocationKey]uint64),
		observations: make(map[uint64]model.Observation),
		obsByKey:     make(map[string]uint64),
	}
}

// WithinTx implements Store.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tx := &memTx{
		s:            s,
		nextID:       s.nextID,
		satellites:   make(map[uint64]model.Satellite),
		locations:    make(map[uint64]model.Location),
		observations: make(map[uint64]model.Observation),
	}
	if err := fn(tx); err != nil {
		s.opts.logger.Debug(ctx, "transaction rolled back", logger.Error(err))
		return err
	}
	tx.commit()
	return nil
}

// Observation implements Store.
func (s *MemoryStore) Observation(_ context.Context, id uint64) (model.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.observations[id]
	if !ok {
		return model.Observation{}, ErrNotFound
	}
	return o, nil
}

// Counts implements Store.
func (s *MemoryStore) Counts(_ context.Context) (Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Counts{
		Satellites:   int64(len(s.satellites)),
		Locations:    int64(len(s.locations)),
		Observations: int64(len(s.observations)),
	}, nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// memTx stages writes over a locked MemoryStore. Staged entries shadow
// committed ones on read.
type memTx struct {
	s      *MemoryStore
	nextID uint64

	satellites   map[uint64]model.Satellite
	locations    map[uint64]model.Location
	observations map[uint64]model.Observation
}

func (t *memTx) id() uint64 {
	t.nextID++
	return t.nextID
}

func (t *memTx) satellite(id uint64) (model.Satellite, bool) {
	if sat, ok := t.satellites[id]; ok {
		return sat, true
	}
	sat, ok := t.s.satellites[id]
	return sat, ok
}

func (t *memTx) SatelliteByNumber(_ context.Context, number int) (model.Satellite, error) {
	for _, sat := range t.satellites {
		if sat.Number == number {
			return sat, nil
		}
	}
	if id, ok := t.s.satByNumber[number]; ok {
		sat, _ := t.satellite(id)
		return sat, nil
	}
	return model.Satellite{}, ErrNotFound
}

func (t *memTx) CreateSatellite(ctx context.Context, sat *model.Satellite) error {
	if _, err := t.SatelliteByNumber(ctx, sat.Number); err == nil {
		return ErrConflict
	}
	sat.ID = t.id()
	t.satellites[sat.ID] = *sat
	return nil
}

func (t *memTx) UpdateSatelliteName(_ context.Context, id uint64, name string) error {
	sat, ok := t.satellite(id)
	if !ok {
		return ErrNotFound
	}
	sat.Name = name
	t.satellites[id] = sat
	return nil
}

func (t *memTx) LocationByKey(_ context.Context, key model.LocationKey) (model.Location, error) {
	for _, loc := range t.locations {
		if loc.Key() == key {
			return loc, nil
		}
	}
	if id, ok := t.s.locByKey[key]; ok {
		return t.s.locations[id], nil
	}
	return model.Location{}, ErrNotFound
}

func (t *memTx) CreateLocation(ctx context.Context, loc *model.Location) error {
	if _, err := t.LocationByKey(ctx, loc.Key()); err == nil {
		return ErrConflict
	}
	loc.ID = t.id()
	t.locations[loc.ID] = *loc
	return nil
}

func (t *memTx) ObservationByKey(_ context.Context, key string) (model.Observation, error) {
	for _, o := range t.observations {
		if o.Key == key {
			return o, nil
		}
	}
	if id, ok := t.s.obsByKey[key]; ok {
		return t.s.observations[id], nil
	}
	return model.Observation{}, ErrNotFound
}

func (t *memTx) CreateObservation(ctx context.Context, o *model.Observation) error {
	if _, err := t.ObservationByKey(ctx, o.Key); err == nil {
		return ErrConflict
	}
	o.ID = t.id()
	if o.Created.IsZero() {
		o.Created = t.s.opts.now()
	}
	t.observations[o.ID] = *o
	return nil
}

func (t *memTx) commit() {
	s := t.s
	for id, sat := range t.satellites {
		s.satellites[id] = sat
		s.satByNumber[sat.Number] = id
	}
	for id, loc := range t.locations {
		s.locations[id] = loc
		s.locByKey[loc.Key()] = id
	}
	for id, o := range t.observations {
		s.observations[id] = o
		s.obsByKey[o.Key] = id
	}
	s.nextID = t.nextID
}
