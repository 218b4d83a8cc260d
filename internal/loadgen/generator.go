package loadgen

import (
	"math/rand/v2"
	"time"

	"github.com/okian/satobs/internal/domain/model"
)

// A small fixed catalog keeps satellite and location rows shared across
// batches, which is where resolution contention shows up.
var (
	catalog = []struct { //nolint:gochecknoglobals // fixture data
		number int
		name   string
	}{
		{44713, "STARLINK-1007"},
		{44714, "STARLINK-1008"},
		{45044, "STARLINK-1130"},
		{48274, "STARLINK-2305"},
		{53807, "BLUEWALKER 3"},
	}
	sites = [][3]float64{ //nolint:gochecknoglobals // fixture data
		{33.1, -117.3, 100},
		{-30.24, -70.74, 2200},
		{51.48, 0, 45},
	}
	filters = []string{"V", "CLEAR", "Sloan_r", "Johnson_B"} //nolint:gochecknoglobals // fixture data
)

type generator struct {
	cfg  Config
	rnd  *rand.Rand
	seen []model.Record
}

func newGenerator(cfg Config) *generator {
	return &generator{cfg: cfg, rnd: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))}
}

// batch returns BatchSize records and how many of them are deliberately invalid.
func (g *generator) batch() ([]model.Record, int) {
	recs := make([]model.Record, 0, g.cfg.BatchSize)
	invalid := 0
	for range g.cfg.BatchSize {
		switch r := g.rnd.Float64(); {
		case r < g.cfg.DuplicateRate && len(g.seen) > 0:
			recs = append(recs, g.seen[g.rnd.IntN(len(g.seen))])
		case r < g.cfg.DuplicateRate+g.cfg.InvalidRate:
			rec := g.record()
			lat := 91 + g.rnd.Float64()*10
			rec.ObsLatDeg = &lat
			recs = append(recs, rec)
			invalid++
		default:
			rec := g.record()
			g.seen = append(g.seen, rec)
			recs = append(recs, rec)
		}
	}
	return recs, invalid
}

func (g *generator) record() model.Record {
	sat := catalog[g.rnd.IntN(len(catalog))]
	site := sites[g.rnd.IntN(len(sites))]
	ts := time.Now().UTC().Add(-time.Duration(g.rnd.IntN(72*60)) * time.Minute).Truncate(time.Millisecond)
	mag := 3 + g.rnd.Float64()*5
	uncert := 0.05 + g.rnd.Float64()*0.2
	number := sat.number
	lat, long, alt := site[0], site[1], site[2]
	return model.Record{
		SatName:           sat.name,
		SatNumber:         &number,
		ObsTimeUTC:        &ts,
		ApparentMag:       &mag,
		ApparentMagUncert: &uncert,
		Instrument:        "loadgen",
		ObsMode:           "CCD",
		ObsFilter:         filters[g.rnd.IntN(len(filters))],
		ObsEmail:          "loadgen@example.org",
		ObsLatDeg:         &lat,
		ObsLongDeg:        &long,
		ObsAltM:           &alt,
	}
}
