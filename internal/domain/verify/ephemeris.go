package verify

import (
	"context"
	"errors"
	"time"
)

// Sentinel kinds for ephemeris service failures. Implementations wrap these.
var (
	// ErrTransport covers network errors and timeouts.
	ErrTransport = errors.New("ephemeris service unreachable")
	// ErrBadResponse covers non-200 statuses and undecodable payloads.
	ErrBadResponse = errors.New("ephemeris service returned an unusable response")
)

// PositionQuery asks where a satellite appears from an observer at an instant.
type PositionQuery struct {
	CatalogNumber int
	JulianDate    float64
	LatDeg        float64
	LongDeg       float64
	AltM          float64
	// MinAltitudeDeg is sent as the service's altitude floor. The verifier
	// always asks for -90 so it can tell "no data" from "below horizon".
	MinAltitudeDeg float64
}

// Position is one computed ephemeris row.
type Position struct {
	Name           string
	CatalogNumber  int
	AltDeg         float64
	AzDeg          float64
	RADeg          float64
	DecDeg         float64
	DRACosDecDegS  float64
	DDecDegS       float64
	PhaseAngleDeg  float64
	RangeKm        float64
	RangeRateKmS   float64
	Illuminated    bool
	IntlDesignator string
	// RefDataTime is the epoch of the orbital elements behind the computation.
	RefDataTime time.Time
}

// SatelliteName is one historical name of a catalog number.
type SatelliteName struct {
	Name      string
	NoradID   int
	DateAdded time.Time
	Current   bool
}

// Ephemeris is the external position-verification service.
type Ephemeris interface {
	// Position returns the computed rows; an empty slice means the satellite
	// is not visible at that time and place.
	Position(ctx context.Context, q PositionQuery) ([]Position, error)
	// Names returns every name the catalog number has been known by.
	Names(ctx context.Context, catalogNumber int) ([]SatelliteName, error)
}

// JulianDate converts a UTC instant to a Julian date.
func JulianDate(t time.Time) float64 {
	const (
		unixEpochJD = 2440587.5
		nanosPerDay = float64(24 * time.Hour)
	)
	return unixEpochJD + float64(t.UnixNano())/nanosPerDay
}
