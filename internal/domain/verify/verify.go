// Package verify checks the physical plausibility of an observation against
// an external ephemeris service and collects the computed geometry.
package verify

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/okian/satobs/internal/domain/model"
	"github.com/okian/satobs/internal/domain/rejection"
	"github.com/okian/satobs/pkg/logger"
	"github.com/okian/satobs/pkg/metrics"
)

// Policy constants.
const (
	HorizonFloorDeg = -5.0
	StalenessWindow = 14 * 24 * time.Hour
	queryMinAltDeg  = -90.0
)

// NameCutover is the date before which submitted names are always re-checked
// against the name history, since catalog names were reassigned in bulk.
var NameCutover = time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC) //nolint:gochecknoglobals // policy constant

// Rejection messages.
const (
	MsgPositionTransport = "Satellite position check failed - try again later."
	MsgPositionBadData   = "Satellite position check failed - verify uploaded data is correct."
	MsgNotVisible        = "Satellite with this ID not visible at this time and location."
	MsgNameTransport     = "Satellite info check failed - try again later."
	MsgNameBadData       = "Satellite info check failed - verify uploaded data is correct."
	MsgNoSatellite       = "No satellite found for this catalog number."
	MsgNameMismatch      = "Satellite name and catalog number do not match."
	msgBelowHorizon      = "Satellite below horizon at this time and location (altitude %.2f degrees)."
	msgInvalidFields     = "Missing or invalid observation fields: %s."
)

// Verifier applies the verification policy over an Ephemeris handle.
type Verifier struct {
	eph    Ephemeris
	logger logger.Logger
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(v *Verifier) {
		if l != nil {
			v.logger = l
		}
	}
}

// New creates a Verifier backed by eph.
func New(eph Ephemeris, opts ...Option) *Verifier {
	v := &Verifier{eph: eph}
	for _, opt := range opts {
		opt(v)
	}
	if v.logger == nil {
		v.logger = logger.Get().Named("verifier")
	}
	return v
}

// Verify checks a normalized record. The returned error, when not nil, is a
// *rejection.Rejection.
func (v *Verifier) Verify(ctx context.Context, rec model.Record) (model.Verification, error) {
	if bad := invalidFields(rec); len(bad) > 0 {
		return model.Verification{}, rejection.Newf(rejection.KindInputDomain, msgInvalidFields, strings.Join(bad, ", "))
	}
	obsTime := rec.ObsTimeUTC.UTC()
	number := *rec.SatNumber

	positions, err := v.eph.Position(ctx, PositionQuery{
		CatalogNumber:  number,
		JulianDate:     JulianDate(obsTime),
		LatDeg:         *rec.ObsLatDeg,
		LongDeg:        *rec.ObsLongDeg,
		AltM:           *rec.ObsAltM,
		MinAltitudeDeg: queryMinAltDeg,
	})
	if err != nil {
		if errors.Is(err, ErrTransport) {
			return model.Verification{}, rejection.Wrap(rejection.KindExternalTransport, MsgPositionTransport, err)
		}
		return model.Verification{}, rejection.Wrap(rejection.KindExternalData, MsgPositionBadData, err)
	}
	if len(positions) == 0 {
		return model.Verification{}, rejection.New(rejection.KindExternalData, MsgNotVisible)
	}
	pos := positions[0]
	reported := canonicalName(pos.Name)

	if isArchival(obsTime, pos.RefDataTime) {
		name := reported
		if name == "" {
			name = rec.SatName
		}
		metrics.RecordArchival()
		v.logger.Debug(ctx, "archival record, geometry withheld",
			logger.Int("sat_number", number),
			logger.Time("ref_data_time", pos.RefDataTime),
			logger.Time("obs_time", obsTime),
		)
		return model.Verification{SatName: name, Archival: true, RefDataTime: pos.RefDataTime}, nil
	}

	name := reported
	if reported != rec.SatName || obsTime.Before(NameCutover) {
		current, rej := v.currentName(ctx, number, rec.SatName, reported)
		if rej != nil {
			return model.Verification{}, rej
		}
		name = current
	}

	if pos.AltDeg < HorizonFloorDeg {
		return model.Verification{}, rejection.Newf(rejection.KindExternalData, msgBelowHorizon, pos.AltDeg)
	}

	return model.Verification{
		SatName:     name,
		RefDataTime: pos.RefDataTime,
		Geometry: &model.Geometry{
			AltDeg:         pos.AltDeg,
			AzDeg:          pos.AzDeg,
			RADeg:          pos.RADeg,
			DecDeg:         pos.DecDeg,
			DRACosDecDegS:  pos.DRACosDecDegS,
			DDecDegS:       pos.DDecDegS,
			PhaseAngleDeg:  pos.PhaseAngleDeg,
			RangeKm:        pos.RangeKm,
			RangeRateKmS:   pos.RangeRateKmS,
			Illuminated:    pos.Illuminated,
			IntlDesignator: pos.IntlDesignator,
		},
	}, nil
}

// currentName resolves the canonical name of a catalog number and checks the
// submitted name against its history.
func (v *Verifier) currentName(ctx context.Context, number int, submitted, reported string) (string, *rejection.Rejection) {
	names, err := v.eph.Names(ctx, number)
	if err != nil {
		if errors.Is(err, ErrTransport) {
			return "", rejection.Wrap(rejection.KindExternalTransport, MsgNameTransport, err)
		}
		return "", rejection.Wrap(rejection.KindExternalData, MsgNameBadData, err)
	}
	if len(names) == 0 {
		return "", rejection.New(rejection.KindExternalData, MsgNoSatellite)
	}

	matched := submitted == "" || submitted == reported
	var current SatelliteName
	for _, n := range names {
		if canonicalName(n.Name) == submitted {
			matched = true
		}
		if n.Current || (!current.Current && n.DateAdded.After(current.DateAdded)) {
			current = n
		}
	}
	if !matched {
		v.logger.Debug(ctx, "submitted name not in name history",
			logger.Int("sat_number", number),
			logger.String("submitted", submitted),
			logger.String("reported", reported),
		)
		return "", rejection.New(rejection.KindExternalData, MsgNameMismatch)
	}

	if name := canonicalName(current.Name); name != "" {
		return name, nil
	}
	if reported != "" {
		return reported, nil
	}
	return submitted, nil
}

func invalidFields(rec model.Record) []string {
	var bad []string
	if rec.SatNumber == nil || *rec.SatNumber <= 0 {
		bad = append(bad, "sat_number")
	}
	if rec.ObsTimeUTC == nil || rec.ObsTimeUTC.IsZero() {
		bad = append(bad, "obs_time_utc")
	}
	if !inRange(rec.ObsLatDeg, -90, 90) {
		bad = append(bad, "obs_lat_deg")
	}
	if !inRange(rec.ObsLongDeg, -180, 180) {
		bad = append(bad, "obs_long_deg")
	}
	if !inRange(rec.ObsAltM, 0, math.Inf(1)) {
		bad = append(bad, "obs_alt_m")
	}
	return bad
}

func inRange(v *float64, lo, hi float64) bool {
	return v != nil && !math.IsNaN(*v) && *v >= lo && *v <= hi
}

// isArchival reports whether the reference data is too far from the
// observation, in either direction, to trust computed geometry.
func isArchival(obsTime, refTime time.Time) bool {
	gap := obsTime.Sub(refTime)
	if gap < 0 {
		gap = -gap
	}
	return gap > StalenessWindow
}

func canonicalName(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
