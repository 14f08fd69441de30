// Package spectrum classifies the potential and opportunity components and
// combines them into the nine-category recreation spectrum.
package spectrum

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/estimap/recreation/internal/engine"
	"github.com/estimap/recreation/internal/mapcalc"
	"github.com/estimap/recreation/internal/rules"
	"github.com/estimap/recreation/internal/tempmap"
)

// Map titles.
const (
	PotentialTitle   = "Recreation potential"
	OpportunityTitle = "Recreation opportunity"
	SpectrumTitle    = "Recreation spectrum"
)

// Spectrum runs classification and combination on an engine.
type Spectrum struct {
	eng *engine.Engine
	tmp *tempmap.Registry
}

// New creates a Spectrum.
func New(eng *engine.Engine, tmp *tempmap.Registry) *Spectrum {
	return &Spectrum{eng: eng, tmp: tmp}
}

// Classify recodes a continuous component into ordinal classes.
func (s *Spectrum) Classify(ctx context.Context, component, rulesFile, output string) error {
	zap.L().Debug("classifying component", zap.String("component", component), zap.String("output", output))
	if err := s.eng.Recode(ctx, component, output, rulesFile); err != nil {
		return eris.Wrapf(err, "spectrum: classify %s", component)
	}
	return nil
}

// Combine crosses potential and opportunity classes into the spectrum
// categories and labels, titles and colors the result.
func (s *Spectrum) Combine(ctx context.Context, potential, opportunity, output string) error {
	expr := mapcalc.Spectrum(potential, opportunity)
	if err := s.eng.MapCalc(ctx, output, expr); err != nil {
		return eris.Wrapf(err, "spectrum: combine %s and %s", potential, opportunity)
	}
	return s.describe(ctx, output, SpectrumTitle, rules.SpectrumLabels, rules.SpectrumColors)
}

func (s *Spectrum) describe(ctx context.Context, raster, title, labels, colors string) error {
	if labels != "" {
		file, err := rules.ResolveLabels(s.tmp, labels, "categories_of_"+raster)
		if err != nil {
			return err
		}
		if err := s.eng.Categories(ctx, raster, file); err != nil {
			return eris.Wrapf(err, "spectrum: categories of %s", raster)
		}
	}
	if err := s.eng.Support(ctx, raster, title, "Generated by estimap"); err != nil {
		return eris.Wrapf(err, "spectrum: metadata of %s", raster)
	}
	if colors != "" {
		if err := s.eng.Colors(ctx, raster, colors); err != nil {
			return eris.Wrapf(err, "spectrum: colors of %s", raster)
		}
	}
	return nil
}

// Export describes a requested output map.
type Export struct {
	Input     string
	Output    string
	Title     string
	Labels    string
	Colors    string
	Timestamp string
}

// Export copies a temporary map into its requested output name with
// category labels, title, colors and an optional timestamp, and returns the
// output name.
func (s *Spectrum) Export(ctx context.Context, e Export) (string, error) {
	if e.Output == "" {
		return e.Input, nil
	}
	if err := s.eng.MapCalc(ctx, e.Output, e.Input); err != nil {
		return "", eris.Wrapf(err, "spectrum: export %s", e.Output)
	}
	if err := s.describe(ctx, e.Output, e.Title, e.Labels, e.Colors); err != nil {
		return "", err
	}
	if e.Timestamp != "" {
		if err := s.eng.Timestamp(ctx, e.Output, e.Timestamp); err != nil {
			return "", eris.Wrapf(err, "spectrum: timestamp %s", e.Output)
		}
	}
	zap.L().Info("exported map", zap.String("map", e.Output), zap.String("title", e.Title))
	return e.Output, nil
}
