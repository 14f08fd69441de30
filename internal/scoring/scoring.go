// Package scoring turns input layers into scored rasters: normalization,
// NULL filling, thresholds, distance-decay attractiveness, proximity
// classes and neighborhood filters.
package scoring

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/estimap/recreation/internal/engine"
	"github.com/estimap/recreation/internal/mapcalc"
	"github.com/estimap/recreation/internal/rules"
	"github.com/estimap/recreation/internal/tempmap"
)

// Scorer runs scoring operations on an engine, naming intermediate maps
// through a temporary registry.
type Scorer struct {
	eng *engine.Engine
	tmp *tempmap.Registry
}

// New creates a Scorer.
func New(eng *engine.Engine, tmp *tempmap.Registry) *Scorer {
	return &Scorer{eng: eng, tmp: tmp}
}

// Normalize rescales raster to [0, 1] into output.
func (s *Scorer) Normalize(ctx context.Context, raster, output string) error {
	u, err := s.eng.Univariate(ctx, raster)
	if err != nil {
		return eris.Wrapf(err, "scoring: normalize %s", raster)
	}
	if u.N == 0 {
		return eris.Errorf("scoring: normalize %s: map has no non-NULL cells", raster)
	}
	if u.Min == u.Max {
		zap.L().Warn("constant map normalized to a constant layer",
			zap.String("raster", raster),
			zap.Float64("value", u.Min),
		)
	}
	zap.L().Debug("normalizing",
		zap.String("raster", raster),
		zap.Float64("min", u.Min),
		zap.Float64("max", u.Max),
	)
	return s.eng.MapCalc(ctx, output, mapcalc.Normalize(raster, u.Min, u.Max))
}

// ZeroBelow writes raster into output with values below threshold set to 0.
func (s *Scorer) ZeroBelow(ctx context.Context, raster string, threshold float64, output string) error {
	return s.eng.MapCalc(ctx, output, mapcalc.ZeroBelow(raster, threshold))
}

// FillNulls writes raster into output with NULL cells set to 0. The input
// map is left untouched.
func (s *Scorer) FillNulls(ctx context.Context, raster, output string) error {
	return s.eng.MapCalc(ctx, output, mapcalc.NullToZero(raster))
}

// Attractiveness scores cells by the distance-decay of their distance to
// the features of raster. With a mask, the mask's non-NULL cells are
// excluded in the expression itself, leaving the mapset MASK untouched.
// NULL results become 0.
func (s *Scorer) Attractiveness(ctx context.Context, raster string, c rules.Coefficients, mask, output string) error {
	distance := s.tmp.Name(raster + "_" + c.Metric)
	if err := s.eng.GrowDistance(ctx, raster, distance, c.Metric); err != nil {
		return eris.Wrapf(err, "scoring: distance to %s", raster)
	}

	expr := mapcalc.DistanceDecay(distance, c)
	if mask != "" {
		expr = mapcalc.Excluding(expr, mask)
	}
	zap.L().Debug("distance function", zap.String("output", output), zap.String("expression", expr))
	if err := s.eng.MapCalc(ctx, output, expr); err != nil {
		return eris.Wrapf(err, "scoring: attractiveness of %s", raster)
	}
	return s.eng.SetNull(ctx, output, 0)
}

// Proximity classifies the euclidean distance to the features of raster
// with the recode rules in rulesFile.
func (s *Scorer) Proximity(ctx context.Context, raster, rulesFile, output string) error {
	distance := s.tmp.Name(raster + "_distances")
	if err := s.eng.GrowDistance(ctx, raster, distance, engine.MetricEuclidean); err != nil {
		return eris.Wrapf(err, "scoring: distance to %s", raster)
	}
	zap.L().Debug("computing proximity", zap.String("raster", raster))
	if err := s.eng.Recode(ctx, distance, output, rulesFile); err != nil {
		return eris.Wrapf(err, "scoring: proximity to %s", raster)
	}
	return nil
}

// Accessibility combines the proximity classes of artificial surfaces and
// roads into a [0, 1] score.
func (s *Scorer) Accessibility(ctx context.Context, artificial, roads string, classes int, output string) error {
	if classes < 2 {
		return eris.Errorf("scoring: accessibility needs at least two proximity classes, got %d", classes)
	}
	return s.eng.MapCalc(ctx, output, mapcalc.Accessibility(artificial, roads, classes))
}

// Neighborhood filters raster with a moving window and weights the result
// by distanceMap. The filtered map's name is returned.
func (s *Scorer) Neighborhood(ctx context.Context, raster, method string, size int, distanceMap string) (string, error) {
	filled := s.tmp.Name(raster + "_filled")
	if err := s.FillNulls(ctx, raster, filled); err != nil {
		return "", err
	}
	neighborhood := s.tmp.Name(distanceMap + "_" + method)
	zap.L().Debug("neighborhood operator",
		zap.String("method", method),
		zap.Int("size", size),
		zap.String("output", neighborhood),
	)
	if err := s.eng.Neighbors(ctx, filled, neighborhood, method, size); err != nil {
		return "", eris.Wrapf(err, "scoring: neighborhood of %s", raster)
	}
	output := s.tmp.Name(distanceMap + "_" + method + "_filtered")
	if err := s.eng.MapCalc(ctx, output, mapcalc.Product(neighborhood, distanceMap)); err != nil {
		return "", eris.Wrapf(err, "scoring: neighborhood of %s", raster)
	}
	return output, nil
}

// Score recodes raster into output with the rules in rulesFile, after
// treating NULL cells as 0, and applies the score color table.
func (s *Scorer) Score(ctx context.Context, raster, rulesFile, output string) error {
	filled := s.tmp.Name(raster + "_filled")
	if err := s.FillNulls(ctx, raster, filled); err != nil {
		return err
	}
	if err := s.eng.Recode(ctx, filled, output, rulesFile); err != nil {
		return eris.Wrapf(err, "scoring: score %s", raster)
	}
	if err := s.eng.Colors(ctx, output, rules.ScoreColors); err != nil {
		return eris.Wrapf(err, "scoring: colors of %s", output)
	}
	zap.L().Debug("scored map", zap.String("raster", raster), zap.String("output", output))
	return nil
}

// Smooth applies a moving-window filter to raster and returns the
// filtered map's name.
func (s *Scorer) Smooth(ctx context.Context, raster, method string, size int) (string, error) {
	output := s.tmp.Name(raster + "_smoothed")
	if err := s.eng.Neighbors(ctx, raster, output, method, size); err != nil {
		return "", eris.Wrapf(err, "scoring: smooth %s", raster)
	}
	return output, nil
}
