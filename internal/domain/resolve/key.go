package resolve

import (
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/okian/satobs/internal/domain/model"
	"github.com/zeebo/xxh3"
)

const absent = "-"

// Fingerprint is the canonical identity tuple of an observation. Observer
// email, comments, archive link and MPC code are left out. Each field is
// length-prefixed so free text cannot move values across field boundaries.
func Fingerprint(satelliteID, locationID uint64, rec model.Record, archival bool, geo *model.Geometry) string {
	var b strings.Builder
	w := func(s string) {
		b.WriteString(strconv.Itoa(len(s)))
		b.WriteByte(':')
		b.WriteString(s)
	}
	f := func(v *float64) {
		if v == nil {
			w(absent)
			return
		}
		w(strconv.FormatFloat(*v, 'g', -1, 64))
	}
	g := func(v float64) { w(strconv.FormatFloat(v, 'g', -1, 64)) }

	w(strconv.FormatUint(satelliteID, 10))
	w(strconv.FormatUint(locationID, 10))
	if rec.ObsTimeUTC != nil {
		w(rec.ObsTimeUTC.UTC().Format(time.RFC3339Nano))
	} else {
		w(absent)
	}
	f(rec.ObsTimeUncertSec)
	f(rec.ApparentMag)
	f(rec.ApparentMagUncert)
	f(rec.LimitingMagnitude)
	w(rec.Instrument)
	w(rec.ObsMode)
	w(rec.ObsFilter)
	w(strconv.Itoa(len(rec.ObsORCID)))
	for _, id := range rec.ObsORCID {
		w(id)
	}
	f(rec.SatRADeg)
	f(rec.SatRAUncertDeg)
	f(rec.SatDecDeg)
	f(rec.SatDecUncertDeg)
	f(rec.RangeToSatKm)
	f(rec.RangeToSatUncertKm)
	f(rec.RangeRateSatKmS)
	f(rec.RangeRateSatUncertKmS)
	w(strconv.FormatBool(archival))
	if geo == nil {
		w(absent)
	} else {
		g(geo.AltDeg)
		g(geo.AzDeg)
		g(geo.RADeg)
		g(geo.DecDeg)
		g(geo.DRACosDecDegS)
		g(geo.DDecDegS)
		g(geo.PhaseAngleDeg)
		g(geo.RangeKm)
		g(geo.RangeRateKmS)
		w(strconv.FormatBool(geo.Illuminated))
		w(geo.IntlDesignator)
	}
	return b.String()
}

// ObservationKey hashes a fingerprint into the 32-character lookup key.
func ObservationKey(fingerprint string) string {
	sum := xxh3.HashString128(fingerprint).Bytes()
	return hex.EncodeToString(sum[:])
}
