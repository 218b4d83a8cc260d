package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/satobs/internal/domain/model"
	"github.com/okian/satobs/pkg/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type satelliteRow struct {
	ID     uint64 `gorm:"primaryKey"`
	Number int    `gorm:"uniqueIndex;not null"`
	Name   string
}

func (satelliteRow) TableName() string { return "satellites" }

type locationRow struct {
	ID      uint64  `gorm:"primaryKey"`
	LatDeg  float64 `gorm:"uniqueIndex:idx_location_triple;not null"`
	LongDeg float64 `gorm:"uniqueIndex:idx_location_triple;not null"`
	AltM    float64 `gorm:"uniqueIndex:idx_location_triple;not null"`
}

func (locationRow) TableName() string { return "locations" }

type observationRow struct {
	ID          uint64 `gorm:"primaryKey"`
	Key         string `gorm:"column:obs_key;uniqueIndex;size:32;not null"`
	Fingerprint string `gorm:"not null"`
	SatelliteID uint64 `gorm:"index;not null"`
	LocationID  uint64 `gorm:"index;not null"`

	Record   model.Record    `gorm:"serializer:json"`
	Geometry *model.Geometry `gorm:"serializer:json"`
	Archival bool
	BatchID  string `gorm:"index"`
	Created  time.Time
}

func (observationRow) TableName() string { return "observations" }

func (r observationRow) toModel() model.Observation {
	return model.Observation{
		ID:          r.ID,
		Key:         r.Key,
		Fingerprint: r.Fingerprint,
		SatelliteID: r.SatelliteID,
		LocationID:  r.LocationID,
		Record:      r.Record,
		Archival:    r.Archival,
		Geometry:    r.Geometry,
		BatchID:     r.BatchID,
		Created:     r.Created,
	}
}

// SQLStore is a gorm-backed Store on SQLite. Uniqueness of every identity is
// enforced by indexes; a single connection serializes transactions.
type SQLStore struct {
	db   *gorm.DB
	opts storeOptions
}

var _ Store = (*SQLStore)(nil)

// OpenSQLite opens (creating if needed) the database at path and migrates it.
// Use ":memory:" for a throwaway database.
func OpenSQLite(path string, opts ...Option) (*SQLStore, error) {
	o := applyOptions("sql-store", opts)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
		NowFunc:        o.now,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&satelliteRow{}, &locationRow{}, &observationRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	o.logger.Info(context.Background(), "sqlite store ready", logger.String("path", path))
	return &SQLStore{db: db, opts: o}, nil
}

// WithinTx implements Store.
func (s *SQLStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&sqlTx{db: db, now: s.opts.now})
	})
}

// Observation implements Store.
func (s *SQLStore) Observation(ctx context.Context, id uint64) (model.Observation, error) {
	var row observationRow
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return model.Observation{}, translate(err)
	}
	return row.toModel(), nil
}

// Counts implements Store.
func (s *SQLStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	db := s.db.WithContext(ctx)
	if err := db.Model(&satelliteRow{}).Count(&c.Satellites).Error; err != nil {
		return Counts{}, err
	}
	if err := db.Model(&locationRow{}).Count(&c.Locations).Error; err != nil {
		return Counts{}, err
	}
	if err := db.Model(&observationRow{}).Count(&c.Observations).Error; err != nil {
		return Counts{}, err
	}
	return c, nil
}

// Ping implements Store.
func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close implements Store.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type sqlTx struct {
	db  *gorm.DB
	now func() time.Time
}

func (t *sqlTx) SatelliteByNumber(ctx context.Context, number int) (model.Satellite, error) {
	var row satelliteRow
	if err := t.db.WithContext(ctx).Where("number = ?", number).First(&row).Error; err != nil {
		return model.Satellite{}, translate(err)
	}
	return model.Satellite{ID: row.ID, Number: row.Number, Name: row.Name}, nil
}

func (t *sqlTx) CreateSatellite(ctx context.Context, sat *model.Satellite) error {
	row := satelliteRow{Number: sat.Number, Name: sat.Name}
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		return translate(err)
	}
	sat.ID = row.ID
	return nil
}

func (t *sqlTx) UpdateSatelliteName(ctx context.Context, id uint64, name string) error {
	res := t.db.WithContext(ctx).Model(&satelliteRow{}).Where("id = ?", id).Update("name", name)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *sqlTx) LocationByKey(ctx context.Context, key model.LocationKey) (model.Location, error) {
	var row locationRow
	err := t.db.WithContext(ctx).
		Where("lat_deg = ? AND long_deg = ? AND alt_m = ?", key.LatDeg, key.LongDeg, key.AltM).
		First(&row).Error
	if err != nil {
		return model.Location{}, translate(err)
	}
	return model.Location{ID: row.ID, LatDeg: row.LatDeg, LongDeg: row.LongDeg, AltM: row.AltM}, nil
}

func (t *sqlTx) CreateLocation(ctx context.Context, loc *model.Location) error {
	row := locationRow{LatDeg: loc.LatDeg, LongDeg: loc.LongDeg, AltM: loc.AltM}
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		return translate(err)
	}
	loc.ID = row.ID
	return nil
}

func (t *sqlTx) ObservationByKey(ctx context.Context, key string) (model.Observation, error) {
	var row observationRow
	if err := t.db.WithContext(ctx).Where("obs_key = ?", key).First(&row).Error; err != nil {
		return model.Observation{}, translate(err)
	}
	return row.toModel(), nil
}

func (t *sqlTx) CreateObservation(ctx context.Context, o *model.Observation) error {
	if o.Created.IsZero() {
		o.Created = t.now()
	}
	row := observationRow{
		Key:         o.Key,
		Fingerprint: o.Fingerprint,
		SatelliteID: o.SatelliteID,
		LocationID:  o.LocationID,
		Record:      o.Record,
		Geometry:    o.Geometry,
		Archival:    o.Archival,
		BatchID:     o.BatchID,
		Created:     o.Created,
	}
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		return translate(err)
	}
	o.ID = row.ID
	return nil
}

func translate(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return err
	}
}
