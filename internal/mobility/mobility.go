// Package mobility distributes population demand over distance zones
// around the highest recreation spectrum and derives unmet demand and flow.
package mobility

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/estimap/recreation/internal/engine"
	"github.com/estimap/recreation/internal/mapcalc"
	"github.com/estimap/recreation/internal/rules"
	"github.com/estimap/recreation/internal/tempmap"
)

// Options configures a demand computation. Empty output names (Demand,
// Unmet, Flow) are replaced by temporary maps where later steps need them.
type Options struct {
	Spectrum      string
	Base          string
	BaseVector    string
	Population    string
	Metric        string
	DistanceRules string

	Demand string
	Unmet  string
	Flow   string

	// ComputeFlow forces a flow map even without a Flow output name.
	ComputeFlow bool

	Constant     float64
	Score        float64
	Coefficients map[int][2]float64

	// Methods are the v.rast.stats methods used to update BaseVector.
	Methods []string
}

// Result names the maps produced.
type Result struct {
	Highest            string
	Distance           string
	DistanceCategories string
	Cross              string
	Demand             string
	Unmet              string
	Flow               string
	PopulationTotal    float64
}

// Mobility runs the demand chain on an engine.
type Mobility struct {
	eng *engine.Engine
	tmp *tempmap.Registry
}

// New creates a Mobility.
func New(eng *engine.Engine, tmp *tempmap.Registry) *Mobility {
	return &Mobility{eng: eng, tmp: tmp}
}

// Run computes the highest spectrum, the distance categories to it,
// population demand per distance and base zone, and optionally unmet demand
// and flow.
func (m *Mobility) Run(ctx context.Context, o Options) (Result, error) {
	if o.Spectrum == "" || o.Base == "" || o.Population == "" {
		return Result{}, eris.New("mobility: spectrum, base and population maps are required")
	}
	if o.Metric == "" {
		o.Metric = engine.MetricEuclidean
	}
	if o.Coefficients == nil {
		o.Coefficients = mapcalc.MobilityCoefficients
	}

	var res Result

	res.Highest = m.tmp.Name("highest_recreation_spectrum")
	if err := m.eng.MapCalc(ctx, res.Highest, mapcalc.Only(o.Spectrum, mapcalc.HighestSpectrum)); err != nil {
		return res, eris.Wrap(err, "mobility: highest spectrum")
	}

	res.Distance = m.tmp.Name("highest_spectrum_distance")
	if err := m.eng.GrowDistance(ctx, res.Highest, res.Distance, o.Metric); err != nil {
		return res, eris.Wrap(err, "mobility: distance to highest spectrum")
	}

	res.DistanceCategories = m.tmp.Name("highest_spectrum_distance_categories")
	if err := m.eng.Recode(ctx, res.Distance, res.DistanceCategories, o.DistanceRules); err != nil {
		return res, eris.Wrap(err, "mobility: distance categories")
	}
	if err := m.eng.Colors(ctx, res.DistanceCategories, rules.ScoreColors); err != nil {
		return res, eris.Wrap(err, "mobility: distance category colors")
	}
	labels, err := rules.ResolveLabels(m.tmp, rules.SpectrumDistanceLabels, "spectrum_distance_labels")
	if err != nil {
		return res, err
	}
	if err := m.eng.Categories(ctx, res.DistanceCategories, labels); err != nil {
		return res, eris.Wrap(err, "mobility: distance category labels")
	}

	res.Cross = m.tmp.Name("crossmap")
	if err := m.eng.Cross(ctx, res.Cross, true, res.DistanceCategories, o.Base); err != nil {
		return res, eris.Wrap(err, "mobility: cross distance categories with base")
	}

	// Zonal sums run at the population resolution.
	eng, err := m.populationRegion(ctx, o.Population)
	if err != nil {
		return res, err
	}

	pop, err := eng.Univariate(ctx, o.Population)
	if err != nil {
		return res, eris.Wrap(err, "mobility: population statistics")
	}
	res.PopulationTotal = pop.Sum
	zap.L().Info("population statistics", zap.String("population", o.Population), zap.Float64("sum", pop.Sum))

	res.Demand = o.Demand
	if res.Demand == "" {
		res.Demand = m.tmp.Name("demand")
	}
	reclassed := m.tmp.Name("demand_reclassed")
	if err := eng.StatsZonal(ctx, res.Cross, o.Population, "sum", reclassed); err != nil {
		return res, eris.Wrap(err, "mobility: demand distribution")
	}
	// The reclassed map depends on its base; a plain copy can outlive it.
	if err := eng.MapCalc(ctx, res.Demand, reclassed); err != nil {
		return res, eris.Wrap(err, "mobility: copy demand")
	}
	if err := eng.Remove(ctx, "raster", reclassed); err != nil {
		return res, eris.Wrap(err, "mobility: remove reclassed demand")
	}
	if err := m.updateVector(ctx, eng, o, res.Demand, "demand"); err != nil {
		return res, err
	}

	if o.Unmet != "" {
		res.Unmet = o.Unmet
		expr := mapcalc.UnmetDemand(res.DistanceCategories, res.Demand, o.Constant, o.Score, o.Coefficients)
		zap.L().Debug("unmet demand function", zap.String("expression", expr))
		if err := eng.MapCalc(ctx, res.Unmet, expr); err != nil {
			return res, eris.Wrap(err, "mobility: unmet demand")
		}
		if err := m.updateVector(ctx, eng, o, res.Unmet, "unmet"); err != nil {
			return res, err
		}
	}

	if o.Flow != "" || o.ComputeFlow {
		res.Flow = o.Flow
		if res.Flow == "" {
			res.Flow = m.tmp.Name("flow")
		}
		expr := mapcalc.Mobility(res.DistanceCategories, res.Demand, o.Constant, o.Score, o.Coefficients)
		zap.L().Debug("mobility function", zap.String("expression", expr))
		if err := eng.MapCalc(ctx, res.Flow, expr); err != nil {
			return res, eris.Wrap(err, "mobility: flow")
		}
		if err := m.updateVector(ctx, eng, o, res.Flow, "flow"); err != nil {
			return res, err
		}
	}
	return res, nil
}

// populationRegion returns an engine whose region has the resolution of
// the population map.
func (m *Mobility) populationRegion(ctx context.Context, population string) (*engine.Engine, error) {
	info, err := m.eng.Info(ctx, population)
	if err != nil {
		return nil, eris.Wrapf(err, "mobility: resolution of %s", population)
	}
	name := m.tmp.Name("population_region")
	region := engine.Region{NSRes: info.NSRes, EWRes: info.EWRes, Align: true}
	if err := m.eng.SaveRegion(ctx, name, region); err != nil {
		return nil, eris.Wrap(err, "mobility: population region")
	}
	m.tmp.Track("region", name)
	zap.L().Debug("region resolution matched to population",
		zap.Float64("nsres", info.NSRes),
		zap.Float64("ewres", info.EWRes),
	)
	return m.eng.WithRegion(name), nil
}

func (m *Mobility) updateVector(ctx context.Context, eng *engine.Engine, o Options, raster, prefix string) error {
	if o.BaseVector == "" || len(o.Methods) == 0 {
		return nil
	}
	if err := eng.VectorRasterStats(ctx, o.BaseVector, raster, prefix, o.Methods); err != nil {
		return eris.Wrapf(err, "mobility: update %s with %s", o.BaseVector, prefix)
	}
	return nil
}
