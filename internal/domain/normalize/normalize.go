// Package normalize converts submitted records into their canonical form.
// It performs no I/O.
package normalize

import (
	"slices"
	"strings"
	"unicode"

	"github.com/okian/satobs/internal/domain/model"
	"github.com/okian/satobs/internal/domain/rejection"
)

// Structural rejection messages, one per measurement/uncertainty pair.
const (
	MsgMagUncertWithoutMag         = "Apparent magnitude uncertainty without apparent magnitude."
	MsgRAUncertWithoutRA           = "Right ascension uncertainty without right ascension."
	MsgDecUncertWithoutDec         = "Declination uncertainty without declination."
	MsgRangeUncertWithoutRange     = "Range uncertainty without range."
	MsgRangeRateUncertWithoutRange = "Range rate uncertainty without range rate."
)

// Result is either a normalized record or a structural rejection.
type Result struct {
	Record    model.Record
	Rejection *rejection.Rejection
}

// Normalized reports whether the record passed normalization.
func (r Result) Normalized() bool { return r.Rejection == nil }

type pairing struct {
	measurement *float64
	uncertainty *float64
	msg         string
}

// Record normalizes one raw record. The input is not modified.
func Record(raw model.Record) Result {
	pairs := []pairing{
		{raw.ApparentMag, raw.ApparentMagUncert, MsgMagUncertWithoutMag},
		{raw.SatRADeg, raw.SatRAUncertDeg, MsgRAUncertWithoutRA},
		{raw.SatDecDeg, raw.SatDecUncertDeg, MsgDecUncertWithoutDec},
		{raw.RangeToSatKm, raw.RangeToSatUncertKm, MsgRangeUncertWithoutRange},
		{raw.RangeRateSatKmS, raw.RangeRateSatUncertKmS, MsgRangeRateUncertWithoutRange},
	}
	for _, p := range pairs {
		if p.uncertainty != nil && p.measurement == nil {
			return Result{Rejection: rejection.New(rejection.KindStructural, p.msg)}
		}
	}

	rec := raw
	rec.SatName = strings.ToUpper(strings.TrimSpace(raw.SatName))
	rec.ObsEmail = strings.ToLower(strings.TrimSpace(raw.ObsEmail))
	rec.ObsORCID = ORCIDs(raw.ObsORCID)
	rec.Instrument = strings.TrimSpace(raw.Instrument)
	rec.ObsMode = strings.ToUpper(strings.TrimSpace(raw.ObsMode))
	rec.ObsFilter = strings.TrimSpace(raw.ObsFilter)
	rec.MPCCode = strings.ToUpper(strings.TrimSpace(raw.MPCCode))
	if raw.ObsTimeUTC != nil {
		t := raw.ObsTimeUTC.UTC()
		rec.ObsTimeUTC = &t
	}
	return Result{Record: rec}
}

// ORCIDs flattens, trims, de-duplicates and sorts an ORCID list.
// Entries may themselves hold several comma or space separated IDs.
func ORCIDs(in []string) model.ORCIDList {
	var out model.ORCIDList
	for _, entry := range in {
		for _, id := range strings.FieldsFunc(entry, func(r rune) bool {
			return r == ',' || r == ';' || unicode.IsSpace(r)
		}) {
			id = strings.ToUpper(id)
			if !slices.Contains(out, id) {
				out = append(out, id)
			}
		}
	}
	slices.Sort(out)
	return out
}
