// Package supply derives the supply and use tables: the ecosystem types
// found inside the highest recreation spectrum per aggregation zone, and
// the recreation flow each zone receives.
package supply

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/estimap/recreation/internal/engine"
	"github.com/estimap/recreation/internal/mapcalc"
	"github.com/estimap/recreation/internal/tempmap"
)

// ReclassifiedTitle is the title of the ecosystem types map.
const ReclassifiedTitle = "MAES ecosystem types"

// SupplyRow is the area of one ecosystem type within one aggregation zone.
type SupplyRow struct {
	Base       int
	BaseLabel  string
	Cover      int
	CoverLabel string
	// Area is in square meters.
	Area    float64
	Count   int64
	Percent float64
}

// UseRow is the recreation flow received by one aggregation zone.
type UseRow struct {
	Category int
	Label    string
	Value    float64
}

// Tables holds the supply and use tables of a run.
type Tables struct {
	Supply []SupplyRow
	Use    []UseRow
}

// Options configures the supply and use computation.
type Options struct {
	LandCover    string
	ReclassRules string
	// Reclassified names the ecosystem types map; temporary when empty.
	Reclassified string
	Highest      string
	Aggregation  string
	Flow         string
}

// Supply computes the tables on an engine.
type Supply struct {
	eng *engine.Engine
	tmp *tempmap.Registry
}

// New creates a Supply.
func New(eng *engine.Engine, tmp *tempmap.Registry) *Supply {
	return &Supply{eng: eng, tmp: tmp}
}

// Compute reclassifies the land cover into ecosystem types, tabulates them
// within the highest spectrum per aggregation zone and, when a flow map is
// given, sums the flow per zone.
func (s *Supply) Compute(ctx context.Context, o Options) (Tables, error) {
	if o.LandCover == "" || o.Highest == "" || o.Aggregation == "" {
		return Tables{}, eris.New("supply: land cover, highest spectrum and aggregation maps are required")
	}

	reclassified := o.Reclassified
	if reclassified == "" {
		reclassified = s.tmp.Name("maes_ecosystem_types")
	}
	if err := s.eng.Reclass(ctx, o.LandCover, reclassified, o.ReclassRules, ReclassifiedTitle); err != nil {
		return Tables{}, eris.Wrapf(err, "supply: reclassify %s", o.LandCover)
	}

	inHighest := s.tmp.Name("ecosystem_types_in_highest_spectrum")
	if err := s.eng.MapCalc(ctx, inHighest, mapcalc.Masked(reclassified, o.Highest)); err != nil {
		return Tables{}, eris.Wrap(err, "supply: ecosystem types in highest spectrum")
	}

	stats, err := s.eng.Stats(ctx, o.Aggregation, inHighest)
	if err != nil {
		return Tables{}, eris.Wrap(err, "supply: statistics")
	}

	var t Tables
	for _, st := range stats {
		t.Supply = append(t.Supply, SupplyRow{
			Base:       st.Categories[0].Value,
			BaseLabel:  st.Categories[0].Label,
			Cover:      st.Categories[1].Value,
			CoverLabel: st.Categories[1].Label,
			Area:       st.Area,
			Count:      st.Count,
		})
	}
	Percentages(t.Supply)
	zap.L().Debug("supply table", zap.Int("rows", len(t.Supply)))

	if o.Flow != "" {
		zones, err := s.eng.ZonalUnivariate(ctx, o.Flow, o.Aggregation)
		if err != nil {
			return t, eris.Wrap(err, "supply: use")
		}
		for _, z := range zones {
			if z.Cells == 0 {
				continue
			}
			t.Use = append(t.Use, UseRow{Category: z.Zone, Label: z.Label, Value: z.Sum})
		}
		zap.L().Debug("use table", zap.Int("rows", len(t.Use)))
	}
	return t, nil
}

// Percentages sets each row's share of its base zone's total area.
func Percentages(rows []SupplyRow) {
	byBase := make(map[int][]int)
	for i, r := range rows {
		byBase[r.Base] = append(byBase[r.Base], i)
	}
	for _, idx := range byBase {
		areas := make([]float64, len(idx))
		for j, i := range idx {
			areas[j] = rows[i].Area
		}
		total := floats.Sum(areas)
		if total == 0 {
			continue
		}
		floats.Scale(100/total, areas)
		for j, i := range idx {
			rows[i].Percent = areas[j]
		}
	}
}
