package ephemeris

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/okian/satobs/internal/domain/verify"
)

// Column names of the ephemeris table.
const (
	colName        = "name"
	colCatalogID   = "catalog_id"
	colRA          = "right_ascension-deg"
	colDec         = "declination-deg"
	colDRACosDec   = "dra_cosdec-deg_per_sec"
	colDDec        = "ddec-deg_per_sec"
	colAltitude    = "altitude-deg"
	colAzimuth     = "azimuth-deg"
	colRange       = "range-km"
	colRangeRate   = "range_rate-km_per_sec"
	colPhaseAngle  = "phase_angle-deg"
	colIlluminated = "illuminated"
	colIntlDesig   = "international_designator"
	colTLEDate     = "tle_date"
)

// geometryColumns must hold a value in every row that carries the column.
var geometryColumns = []string{ //nolint:gochecknoglobals // column set
	colRA, colDec, colDRACosDec, colDDec, colAzimuth, colRange, colRangeRate, colPhaseAngle,
}

var timeLayouts = []string{ //nolint:gochecknoglobals // parse table
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// tableResponse is the column/row payload of the ephemeris endpoint.
type tableResponse struct {
	Fields []string `json:"fields"`
	Data   [][]any  `json:"data"`
}

type nameRow struct {
	Name             string  `json:"name"`
	NoradID          float64 `json:"norad_id"`
	DateAdded        string  `json:"date_added"`
	IsCurrentVersion any     `json:"is_current_version"`
}

func (r nameRow) current() bool {
	switch v := r.IsCurrentVersion.(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	case float64:
		return v != 0
	default:
		return false
	}
}

func (t tableResponse) positions() ([]verify.Position, error) {
	if len(t.Data) == 0 {
		return []verify.Position{}, nil
	}
	idx := make(map[string]int, len(t.Fields))
	for i, f := range t.Fields {
		idx[f] = i
	}
	for _, required := range []string{colAltitude, colTLEDate} {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", verify.ErrBadResponse, required)
		}
	}

	out := make([]verify.Position, 0, len(t.Data))
	for n, row := range t.Data {
		r := rowReader{idx: idx, row: row}
		r.require(colAltitude, colTLEDate)
		for _, col := range geometryColumns {
			if _, ok := idx[col]; ok {
				r.require(col)
			}
		}
		p := verify.Position{
			Name:           r.str(colName),
			CatalogNumber:  int(r.num(colCatalogID)),
			AltDeg:         r.num(colAltitude),
			AzDeg:          r.num(colAzimuth),
			RADeg:          r.num(colRA),
			DecDeg:         r.num(colDec),
			DRACosDecDegS:  r.num(colDRACosDec),
			DDecDegS:       r.num(colDDec),
			PhaseAngleDeg:  r.num(colPhaseAngle),
			RangeKm:        r.num(colRange),
			RangeRateKmS:   r.num(colRangeRate),
			Illuminated:    r.boolean(colIlluminated),
			IntlDesignator: r.str(colIntlDesig),
		}
		if r.err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", verify.ErrBadResponse, n, r.err)
		}
		ref, err := parseTime(r.str(colTLEDate))
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", verify.ErrBadResponse, n, err)
		}
		p.RefDataTime = ref
		out = append(out, p)
	}
	return out, nil
}

// rowReader pulls typed cells out of a row and remembers the first failure.
type rowReader struct {
	idx map[string]int
	row []any
	err error
}

func (r *rowReader) cell(col string) (any, bool) {
	i, ok := r.idx[col]
	if !ok || i >= len(r.row) || r.row[i] == nil {
		return nil, false
	}
	return r.row[i], true
}

// require records a failure when any of cols is null or absent in the row.
func (r *rowReader) require(cols ...string) {
	for _, col := range cols {
		if _, ok := r.cell(col); !ok && r.err == nil {
			r.err = fmt.Errorf("column %s: no value", col)
		}
	}
}

func (r *rowReader) num(col string) float64 {
	v, ok := r.cell(col)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil && r.err == nil {
			r.err = fmt.Errorf("column %s: %w", col, err)
		}
		return f
	default:
		if r.err == nil {
			r.err = fmt.Errorf("column %s: unexpected %T", col, v)
		}
		return 0
	}
}

func (r *rowReader) str(col string) string {
	v, ok := r.cell(col)
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func (r *rowReader) boolean(col string) bool {
	v, ok := r.cell(col)
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, _ := strconv.ParseBool(b)
		return parsed
	default:
		return false
	}
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
