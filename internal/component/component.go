// Package component aggregates scored layers into the land, water,
// natural, infrastructure, potential and opportunity components.
package component

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/estimap/recreation/internal/engine"
	"github.com/estimap/recreation/internal/mapcalc"
	"github.com/estimap/recreation/internal/scoring"
	"github.com/estimap/recreation/internal/tempmap"
)

// Component names.
const (
	Land           = "land"
	Water          = "water"
	Natural        = "natural"
	Infrastructure = "infrastructure"
	Potential      = "potential"
	Opportunity    = "opportunity"
)

// Component is a named, ordered list of raster layers.
type Component struct {
	Name   string
	Layers []string
}

// New creates an empty component.
func New(name string) *Component {
	return &Component{Name: name}
}

// Append adds layers to the component.
func (c *Component) Append(layers ...string) {
	for _, l := range layers {
		if l == "" {
			continue
		}
		c.Layers = append(c.Layers, l)
		zap.L().Debug("map included in component",
			zap.String("map", l),
			zap.String("component", c.Name),
		)
	}
}

// Len returns the number of layers.
func (c *Component) Len() int { return len(c.Layers) }

// Empty reports whether the component has no layers.
func (c *Component) Empty() bool { return len(c.Layers) == 0 }

// Aggregator sums and normalizes components.
type Aggregator struct {
	eng    *engine.Engine
	tmp    *tempmap.Registry
	scorer *scoring.Scorer
}

// NewAggregator creates an Aggregator.
func NewAggregator(eng *engine.Engine, tmp *tempmap.Registry, scorer *scoring.Scorer) *Aggregator {
	return &Aggregator{eng: eng, tmp: tmp, scorer: scorer}
}

// SumAndNormalize adds the layers of c, sets values below threshold to 0
// and rescales the result to [0, 1] into output. A single layer is not
// summed.
func (a *Aggregator) SumAndNormalize(ctx context.Context, c *Component, threshold float64, output string) error {
	if c.Empty() {
		return eris.Errorf("component: %s has no maps", c.Name)
	}

	summed := c.Layers[0]
	if c.Len() > 1 {
		summed = a.tmp.Name(c.Name + "_sum")
		zap.L().Debug("summing component",
			zap.String("component", c.Name),
			zap.Strings("maps", c.Layers),
		)
		if err := a.eng.MapCalc(ctx, summed, mapcalc.Sum(c.Layers...)); err != nil {
			return eris.Wrapf(err, "component: sum %s", c.Name)
		}
	}

	zeroed := a.tmp.Name(c.Name + "_zeroed")
	if err := a.scorer.ZeroBelow(ctx, summed, threshold, zeroed); err != nil {
		return eris.Wrapf(err, "component: threshold %s", c.Name)
	}
	if err := a.scorer.Normalize(ctx, zeroed, output); err != nil {
		return eris.Wrapf(err, "component: normalize %s", c.Name)
	}
	return nil
}

// Collapse reduces c to one layer: components of several layers are
// summed and normalized into output, a single layer is kept as is.
// The name of the resulting layer is returned.
func (a *Aggregator) Collapse(ctx context.Context, c *Component, threshold float64, output string) (string, error) {
	switch c.Len() {
	case 0:
		return "", nil
	case 1:
		return c.Layers[0], nil
	}
	if err := a.SumAndNormalize(ctx, c, threshold, output); err != nil {
		return "", err
	}
	return output, nil
}
