// Package model contains domain models passed between layers.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Record is one submitted observation row. Ingress has already checked
// types; after normalization the same shape carries canonical values.
// Optional numeric fields are pointers so "absent" and "zero" stay distinct.
type Record struct {
	SatName               string     `json:"sat_name"`
	SatNumber             *int       `json:"sat_number"`
	ObsTimeUTC            *time.Time `json:"obs_time_utc"`
	ObsTimeUncertSec      *float64   `json:"obs_time_uncert_sec"`
	ApparentMag           *float64   `json:"apparent_mag"`
	ApparentMagUncert     *float64   `json:"apparent_mag_uncert"`
	Instrument            string     `json:"instrument"`
	ObsMode               string     `json:"obs_mode"`
	ObsFilter             string     `json:"obs_filter"`
	ObsEmail              string     `json:"obs_email"`
	ObsORCID              ORCIDList  `json:"obs_orc_id"`
	ObsLatDeg             *float64   `json:"obs_lat_deg"`
	ObsLongDeg            *float64   `json:"obs_long_deg"`
	ObsAltM               *float64   `json:"obs_alt_m"`
	LimitingMagnitude     *float64   `json:"limiting_magnitude"`
	SatRADeg              *float64   `json:"sat_ra_deg"`
	SatRAUncertDeg        *float64   `json:"sat_ra_uncert_deg"`
	SatDecDeg             *float64   `json:"sat_dec_deg"`
	SatDecUncertDeg       *float64   `json:"sat_dec_uncert_deg"`
	RangeToSatKm          *float64   `json:"range_to_sat_km"`
	RangeToSatUncertKm    *float64   `json:"range_to_sat_uncert_km"`
	RangeRateSatKmS       *float64   `json:"range_rate_sat_km_s"`
	RangeRateSatUncertKmS *float64   `json:"range_rate_sat_uncert_km_s"`
	Comments              string     `json:"comments"`
	DataArchiveLink       string     `json:"data_archive_link"`
	MPCCode               string     `json:"mpc_code"`
}

// ORCIDList accepts either a JSON array or a single comma separated string.
type ORCIDList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *ORCIDList) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*l = nil
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*l = list
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("obs_orc_id must be a string or a list of strings: %w", err)
	}
	*l = strings.Split(s, ",")
	return nil
}

// Geometry is the independently computed ephemeris attached to a verified record.
type Geometry struct {
	AltDeg         float64 `json:"sat_altitude_deg"`
	AzDeg          float64 `json:"sat_azimuth_deg"`
	RADeg          float64 `json:"sat_ra_deg_satchecker"`
	DecDeg         float64 `json:"sat_dec_deg_satchecker"`
	DRACosDecDegS  float64 `json:"dra_cosdec_deg_s"`
	DDecDegS       float64 `json:"ddec_deg_s"`
	PhaseAngleDeg  float64 `json:"phase_angle_deg"`
	RangeKm        float64 `json:"range_to_sat_km_satchecker"`
	RangeRateKmS   float64 `json:"range_rate_sat_km_s_satchecker"`
	Illuminated    bool    `json:"illuminated"`
	IntlDesignator string  `json:"intl_designator"`
}

// Verification is what the position verifier learned about a record.
// Geometry is nil for archival records.
type Verification struct {
	SatName     string
	Archival    bool
	RefDataTime time.Time
	Geometry    *Geometry
}

// Satellite is identified by its catalog number.
type Satellite struct {
	ID     uint64 `json:"id"`
	Number int    `json:"sat_number"`
	Name   string `json:"sat_name"`
}

// Location is identified by the exact coordinate triple.
type Location struct {
	ID      uint64  `json:"id"`
	LatDeg  float64 `json:"obs_lat_deg"`
	LongDeg float64 `json:"obs_long_deg"`
	AltM    float64 `json:"obs_alt_m"`
}

// LocationKey is the exact-match identity of a Location.
type LocationKey struct {
	LatDeg  float64
	LongDeg float64
	AltM    float64
}

// Key returns the identity triple.
func (l Location) Key() LocationKey {
	return LocationKey{LatDeg: l.LatDeg, LongDeg: l.LongDeg, AltM: l.AltM}
}

// Observation is an immutable persisted observation.
type Observation struct {
	ID          uint64 `json:"id"`
	Key         string `json:"-"`
	Fingerprint string `json:"-"`
	SatelliteID uint64 `json:"satellite_id"`
	LocationID  uint64 `json:"location_id"`

	Record
	Archival bool      `json:"archival"`
	Geometry *Geometry `json:"geometry,omitempty"`
	BatchID  string    `json:"batch_id"`
	Created  time.Time `json:"date_added"`
}
