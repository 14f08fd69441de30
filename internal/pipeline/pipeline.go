// Package pipeline runs a complete recreation computation: components,
// potential, opportunity, spectrum, demand, flow and the supply and use
// tables.
package pipeline

import (
	"context"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/estimap/recreation/internal/component"
	"github.com/estimap/recreation/internal/config"
	"github.com/estimap/recreation/internal/engine"
	"github.com/estimap/recreation/internal/mapcalc"
	"github.com/estimap/recreation/internal/mobility"
	"github.com/estimap/recreation/internal/rules"
	"github.com/estimap/recreation/internal/scoring"
	"github.com/estimap/recreation/internal/spectrum"
	"github.com/estimap/recreation/internal/supply"
	"github.com/estimap/recreation/internal/tempmap"
)

// Result lists what a run produced.
type Result struct {
	Potential       string             `json:"potential,omitempty"`
	Opportunity     string             `json:"opportunity,omitempty"`
	Spectrum        string             `json:"spectrum,omitempty"`
	Demand          string             `json:"demand,omitempty"`
	Unmet           string             `json:"unmet,omitempty"`
	Flow            string             `json:"flow,omitempty"`
	PopulationTotal float64            `json:"population_total,omitempty"`
	SpectrumStats   *engine.Univariate `json:"spectrum_stats,omitempty"`
	Tables          *supply.Tables     `json:"tables,omitempty"`
}

// Pipeline runs recreation computations on an engine.
type Pipeline struct {
	eng    *engine.Engine
	cfg    config.RecreationConfig
	tmpDir string

	// Stdout receives the tables of print-only runs.
	Stdout io.Writer
}

// New creates a Pipeline. Temporary rule files go under tmpDir.
func New(eng *engine.Engine, cfg config.RecreationConfig, tmpDir string) *Pipeline {
	return &Pipeline{eng: eng, cfg: cfg, tmpDir: tmpDir, Stdout: os.Stdout}
}

// run holds the state of one Run call.
type run struct {
	p       *Pipeline
	o       Options
	eng     *engine.Engine
	tmp     *tempmap.Registry
	scorer  *scoring.Scorer
	agg     *component.Aggregator
	classes *spectrum.Spectrum
	res     Result

	// flow is the flow map handed to the use table, temporary or not.
	flow string
}

func (r *run) use(eng *engine.Engine) {
	r.eng = eng
	r.scorer = scoring.New(eng, r.tmp)
	r.agg = component.NewAggregator(eng, r.tmp, r.scorer)
	r.classes = spectrum.New(eng, r.tmp)
}

// Run validates o and executes the run. Temporary maps and files are
// removed when it returns unless o.KeepTemporary is set.
func (p *Pipeline) Run(ctx context.Context, o Options) (Result, error) {
	if err := o.Validate(); err != nil {
		return Result{}, err
	}

	r := &run{p: p, o: o, tmp: tempmap.New(p.tmpDir)}
	r.use(p.eng)
	defer func() {
		if err := r.tmp.Cleanup(context.WithoutCancel(ctx), p.eng, o.KeepTemporary); err != nil {
			zap.L().Warn("cleanup of temporary maps failed", zap.Error(err))
		}
	}()

	if err := r.execute(ctx); err != nil {
		return r.res, err
	}
	zap.L().Info("citation", zap.String("citation", rules.Citation))
	return r.res, nil
}

func (r *run) execute(ctx context.Context) error {
	if r.o.Mask != "" {
		zap.L().Info("masking NULL cells", zap.String("mask", r.o.Mask))
		if err := r.eng.Mask(ctx, r.o.Mask, false); err != nil {
			return eris.Wrapf(err, "pipeline: mask %s", r.o.Mask)
		}
		defer func() {
			if err := r.p.eng.RemoveMask(context.WithoutCancel(ctx)); err != nil {
				zap.L().Warn("removing mask failed", zap.Error(err))
			}
		}()
	}

	if r.o.LandUseExtent && r.o.LandUse != "" {
		name := r.tmp.Name("landuse_region")
		if err := r.eng.SaveRegion(ctx, name, engine.Region{Raster: r.o.LandUse}); err != nil {
			return eris.Wrap(err, "pipeline: land use region")
		}
		r.tmp.Track("region", name)
		r.use(r.eng.WithRegion(name))
		zap.L().Info("computational region matched to land use", zap.String("landuse", r.o.LandUse))
	}

	potential, err := r.potential(ctx)
	if err != nil {
		return err
	}
	if !r.o.needsOpportunity() {
		return nil
	}
	opportunity, err := r.opportunity(ctx)
	if err != nil {
		return err
	}
	if !r.o.needsSpectrum() {
		return nil
	}
	spectrumMap, err := r.spectrum(ctx, potential, opportunity)
	if err != nil {
		return err
	}

	highest := ""
	if r.o.needsDemand() {
		m, err := r.demand(ctx, spectrumMap)
		if err != nil {
			return err
		}
		highest = m.Highest
	}
	if r.o.needsTables() {
		if highest == "" {
			highest = r.tmp.Name("highest_recreation_spectrum")
			if err := r.eng.MapCalc(ctx, highest, mapcalc.Only(spectrumMap, mapcalc.HighestSpectrum)); err != nil {
				return eris.Wrap(err, "pipeline: highest spectrum")
			}
		}
		if err := r.tables(ctx, highest); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) resolve(value, fallback, name string) (string, error) {
	path, err := rules.Resolve(r.tmp, value, fallback, name)
	if err != nil {
		return "", eris.Wrapf(err, "pipeline: %s", name)
	}
	return path, nil
}

func (r *run) coefficients(value, fallback string) (rules.Coefficients, error) {
	if value == "" {
		value = fallback
	}
	c, err := rules.ParseCoefficients(value)
	if err != nil {
		return c, eris.Wrap(err, "pipeline: coefficients")
	}
	return c, nil
}

// landComponent scores land use and prepares the land maps.
func (r *run) landComponent(ctx context.Context) (*component.Component, error) {
	land := component.New(component.Land)
	inputs := append([]string(nil), r.o.Land...)

	if r.o.LandUse != "" {
		info, err := r.eng.Info(ctx, r.o.LandUse)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: land use %s", r.o.LandUse)
		}
		if !info.IsCategorical() {
			return nil, eris.Errorf("pipeline: land use map %s should be categorical (CELL), not %s; use the land option instead", r.o.LandUse, info.DataType)
		}
		if r.o.SuitabilityScores == "" {
			zap.L().Warn("using built-in suitability scores", zap.String("landuse", r.o.LandUse))
		}
		scores, err := r.resolve(r.o.SuitabilityScores, rules.SuitabilityScores, "suitability_scores")
		if err != nil {
			return nil, err
		}
		suitability := r.tmp.Name("suitability")
		if err := r.scorer.Score(ctx, r.o.LandUse, scores, suitability); err != nil {
			return nil, err
		}
		inputs = append(inputs, suitability)
	}

	for _, m := range inputs {
		filled := r.tmp.Name(m + "_land")
		if err := r.scorer.FillNulls(ctx, m, filled); err != nil {
			return nil, eris.Wrapf(err, "pipeline: land map %s", m)
		}
		land.Append(filled)
	}
	return land, nil
}

func (r *run) waterComponent(ctx context.Context) (*component.Component, error) {
	water := component.New(component.Water)
	water.Append(r.o.Water...)

	if r.o.Lakes != "" {
		c, err := r.coefficients(r.o.LakesCoefficients, r.p.cfg.WaterCoefficients)
		if err != nil {
			return nil, err
		}
		out := r.tmp.Name("lakes_proximity")
		if err := r.scorer.Attractiveness(ctx, r.o.Lakes, c, r.o.Lakes, out); err != nil {
			return nil, err
		}
		water.Append(out)
	}

	var coast string
	if r.o.Coastline != "" {
		c, err := r.coefficients(r.o.CoastlineCoefficients, r.p.cfg.WaterCoefficients)
		if err != nil {
			return nil, err
		}
		coast = r.tmp.Name("coast_proximity")
		if err := r.scorer.Attractiveness(ctx, r.o.Coastline, c, "", coast); err != nil {
			return nil, err
		}
		water.Append(coast)
	}

	if r.o.CoastGeomorphology != "" {
		out, err := r.scorer.Neighborhood(ctx, r.o.CoastGeomorphology,
			r.p.cfg.NeighborhoodMethod, r.p.cfg.NeighborhoodSize, coast)
		if err != nil {
			return nil, err
		}
		water.Append(out)
	}

	if r.o.BathingWater != "" {
		c, err := r.coefficients(r.o.BathingCoefficients, r.p.cfg.BathingCoefficients)
		if err != nil {
			return nil, err
		}
		out := r.tmp.Name("bathing_water_proximity")
		if err := r.scorer.Attractiveness(ctx, r.o.BathingWater, c, "", out); err != nil {
			return nil, err
		}
		water.Append(out)
	}
	return water, nil
}

func (r *run) naturalComponent(ctx context.Context) (*component.Component, error) {
	natural := component.New(component.Natural)
	natural.Append(r.o.Natural...)

	if r.o.Protected != "" {
		scores, err := r.resolve(r.o.ProtectedScores, rules.ProtectedAreaScores, "protected_scores")
		if err != nil {
			return nil, err
		}
		out := r.tmp.Name("protected_areas")
		if err := r.scorer.Score(ctx, r.o.Protected, scores, out); err != nil {
			return nil, err
		}
		natural.Append(out)
	}
	return natural, nil
}

// smooth replaces the layers of c with their moving averages.
func (r *run) smooth(ctx context.Context, c *component.Component) error {
	for i, l := range c.Layers {
		out, err := r.scorer.Smooth(ctx, l, "average", r.p.cfg.SmoothingSize)
		if err != nil {
			return err
		}
		c.Layers[i] = out
	}
	return nil
}

// potential builds the potential component and returns its classes.
func (r *run) potential(ctx context.Context) (string, error) {
	land, err := r.landComponent(ctx)
	if err != nil {
		return "", err
	}
	water, err := r.waterComponent(ctx)
	if err != nil {
		return "", err
	}
	natural, err := r.naturalComponent(ctx)
	if err != nil {
		return "", err
	}
	if r.o.Filter {
		if err := r.smooth(ctx, land); err != nil {
			return "", err
		}
		if err := r.smooth(ctx, natural); err != nil {
			return "", err
		}
	}

	threshold := r.p.cfg.ComponentThreshold
	potential := component.New(component.Potential)
	for _, c := range []*component.Component{land, water, natural} {
		layer, err := r.agg.Collapse(ctx, c, threshold, r.tmp.Name(c.Name+"_component"))
		if err != nil {
			return "", err
		}
		potential.Append(layer)
	}

	normalized := r.tmp.Name("recreation_potential")
	if err := r.agg.SumAndNormalize(ctx, potential, threshold, normalized); err != nil {
		return "", err
	}

	categories, err := r.resolve("", rules.PotentialCategories, "potential_categories")
	if err != nil {
		return "", err
	}
	classes := r.tmp.Name("recreation_potential_classes")
	if err := r.classes.Classify(ctx, normalized, categories, classes); err != nil {
		return "", err
	}

	if r.o.Potential != "" {
		out, err := r.classes.Export(ctx, spectrum.Export{
			Input:     classes,
			Output:    r.o.Potential,
			Title:     spectrum.PotentialTitle,
			Labels:    rules.PotentialLabels,
			Colors:    rules.PotentialColors,
			Timestamp: r.o.Timestamp,
		})
		if err != nil {
			return "", err
		}
		r.res.Potential = out
		classes = out
	}
	return classes, nil
}

// opportunity builds the opportunity component and returns its classes.
func (r *run) opportunity(ctx context.Context) (string, error) {
	infrastructure := component.New(component.Infrastructure)
	infrastructure.Append(r.o.Infrastructure...)

	if r.o.Artificial != "" && r.o.Roads != "" {
		access, err := r.accessibility(ctx)
		if err != nil {
			return "", err
		}
		infrastructure.Append(access)
	}

	infra := r.tmp.Name("infrastructure_component")
	if err := r.agg.SumAndNormalize(ctx, infrastructure, r.p.cfg.ComponentThreshold, infra); err != nil {
		return "", err
	}

	opportunity := component.New(component.Opportunity)
	opportunity.Append(infra)
	normalized := r.tmp.Name("recreation_opportunity")
	if err := r.agg.SumAndNormalize(ctx, opportunity, r.p.cfg.OpportunityThreshold, normalized); err != nil {
		return "", err
	}

	categories, err := r.resolve("", rules.OpportunityCategories, "opportunity_categories")
	if err != nil {
		return "", err
	}
	classes := r.tmp.Name("recreation_opportunity_classes")
	if err := r.classes.Classify(ctx, normalized, categories, classes); err != nil {
		return "", err
	}

	if r.o.Opportunity != "" {
		out, err := r.classes.Export(ctx, spectrum.Export{
			Input:     classes,
			Output:    r.o.Opportunity,
			Title:     spectrum.OpportunityTitle,
			Labels:    rules.OpportunityLabels,
			Colors:    rules.OpportunityColors,
			Timestamp: r.o.Timestamp,
		})
		if err != nil {
			return "", err
		}
		r.res.Opportunity = out
		classes = out
	}
	return classes, nil
}

// accessibility scores proximity to artificial surfaces and roads.
func (r *run) accessibility(ctx context.Context) (string, error) {
	roadsRules, err := r.resolve(r.o.RoadsDistances, rules.ProximityDistances, "roads_distances")
	if err != nil {
		return "", err
	}
	roads := r.tmp.Name("roads_proximity")
	if err := r.scorer.Proximity(ctx, r.o.Roads, roadsRules, roads); err != nil {
		return "", err
	}

	artificialRules, err := r.resolve(r.o.ArtificialDistances, rules.ProximityDistances, "artificial_distances")
	if err != nil {
		return "", err
	}
	artificial := r.tmp.Name("artificial_proximity")
	if err := r.scorer.Proximity(ctx, r.o.Artificial, artificialRules, artificial); err != nil {
		return "", err
	}

	classes, err := classCount(artificialRules, roadsRules)
	if err != nil {
		return "", err
	}
	out := r.tmp.Name("artificial_accessibility")
	if err := r.scorer.Accessibility(ctx, artificial, roads, classes, out); err != nil {
		return "", err
	}
	return out, nil
}

// classCount returns the largest number of classes among rules files.
func classCount(paths ...string) (int, error) {
	classes := 0
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return 0, eris.Wrapf(err, "pipeline: read rules %s", p)
		}
		rs, err := rules.ParseRecode(string(data))
		if err != nil {
			return 0, eris.Wrapf(err, "pipeline: rules %s", p)
		}
		if n := len(rs.Classes()); n > classes {
			classes = n
		}
	}
	return classes, nil
}

func (r *run) spectrum(ctx context.Context, potential, opportunity string) (string, error) {
	out := r.o.Spectrum
	if out == "" {
		out = r.tmp.Name("recreation_spectrum")
	}
	if err := r.classes.Combine(ctx, potential, opportunity, out); err != nil {
		return "", err
	}
	if r.o.Spectrum != "" {
		r.res.Spectrum = out
		if r.o.Timestamp != "" {
			if err := r.eng.Timestamp(ctx, out, r.o.Timestamp); err != nil {
				return "", eris.Wrapf(err, "pipeline: timestamp %s", out)
			}
		}
	}

	stats, err := r.eng.Univariate(ctx, out)
	if err != nil {
		return "", eris.Wrap(err, "pipeline: spectrum statistics")
	}
	r.res.SpectrumStats = &stats
	zap.L().Info("recreation spectrum",
		zap.String("map", out),
		zap.Float64("min", stats.Min),
		zap.Float64("mean", stats.Mean),
		zap.Float64("max", stats.Max),
		zap.Float64("variance", stats.Variance),
	)

	if r.o.BaseVector != "" && r.o.Spectrum != "" && len(r.p.cfg.ZonalStatisticsMethods) > 0 {
		if err := r.eng.VectorRasterStats(ctx, r.o.BaseVector, out, "spectrum", r.p.cfg.ZonalStatisticsMethods); err != nil {
			return "", eris.Wrapf(err, "pipeline: update %s", r.o.BaseVector)
		}
	}
	return out, nil
}

func (r *run) demand(ctx context.Context, spectrumMap string) (mobility.Result, error) {
	distances, err := r.resolve(r.o.SpectrumDistances, rules.SpectrumDistances, "spectrum_distances")
	if err != nil {
		return mobility.Result{}, err
	}
	res, err := mobility.New(r.eng, r.tmp).Run(ctx, mobility.Options{
		Spectrum:      spectrumMap,
		Base:          r.o.Base,
		BaseVector:    r.o.BaseVector,
		Population:    r.o.Population,
		Metric:        r.o.Metric,
		DistanceRules: distances,
		Demand:        r.o.Demand,
		Unmet:         r.o.Unmet,
		Flow:          r.o.Flow,
		ComputeFlow:   r.o.needsTables(),
		Constant:      r.p.cfg.MobilityConstant,
		Score:         r.p.cfg.MobilityScore,
		Methods:       r.p.cfg.ZonalStatisticsMethods,
	})
	if err != nil {
		return res, err
	}
	r.res.Demand = r.o.Demand
	r.res.Unmet = res.Unmet
	r.res.Flow = r.o.Flow
	r.res.PopulationTotal = res.PopulationTotal
	r.flow = res.Flow
	return res, nil
}

func (r *run) tables(ctx context.Context, highest string) error {
	classes, err := r.resolve(r.o.LandClasses, rules.UrbanAtlasToMAES, "land_classes")
	if err != nil {
		return err
	}
	t, err := supply.New(r.eng, r.tmp).Compute(ctx, supply.Options{
		LandCover:    r.o.landCover(),
		ReclassRules: classes,
		Highest:      highest,
		Aggregation:  r.o.aggregation(),
		Flow:         r.flow,
	})
	if err != nil {
		return err
	}
	r.res.Tables = &t

	units, err := supply.ParseUnits(r.o.Units)
	if err != nil {
		return err
	}
	if r.o.PrintOnly {
		return supply.Print(r.p.Stdout, t, units[0])
	}
	if err := supply.WriteCSVFiles(t, r.o.Supply, r.o.Use, units[0]); err != nil {
		return err
	}
	if r.o.Workbook != "" {
		if err := supply.WriteWorkbook(r.o.Workbook, t, units); err != nil {
			return err
		}
	}
	return nil
}
