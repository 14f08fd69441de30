// Package scenario loads YAML descriptions of recreation runs and
// resolves them into pipeline options for a city.
package scenario

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/estimap/recreation/internal/engine"
	"github.com/estimap/recreation/internal/mapcalc"
	"github.com/estimap/recreation/internal/pipeline"
	"github.com/estimap/recreation/internal/scoring"
	"github.com/estimap/recreation/internal/tempmap"
)

// Placeholders replaced by Expand.
const (
	CityPlaceholder        = "{city}"
	MemberStatePlaceholder = "{ms}"
)

// Components a layer can feed.
var layerComponents = map[string]bool{
	"land":           true,
	"natural":        true,
	"water":          true,
	"infrastructure": true,
}

// Scenario is a run description.
type Scenario struct {
	Name    string           `yaml:"name"`
	Options pipeline.Options `yaml:"options"`
	Layers  []Layer          `yaml:"layers"`
}

// Layer collects the maps matching its sources into one normalized map
// that is added to a component.
type Layer struct {
	Name      string   `yaml:"name"`
	Component string   `yaml:"component"`
	Sources   []Source `yaml:"sources"`
	// Mask multiplies the summed sources.
	Mask string `yaml:"mask"`
}

// Source is a map name pattern, as understood by g.list.
type Source struct {
	Pattern string `yaml:"pattern"`
	// PositiveMin keeps only maps whose minimum is greater than zero.
	PositiveMin bool `yaml:"positive_min"`
}

// Load reads a scenario from a YAML file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "scenario: read %s", path)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, eris.Wrapf(err, "scenario: %s", path)
	}
	if s.Name == "" {
		base := filepath.Base(path)
		s.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return s, nil
}

// Parse decodes a scenario. Unknown keys are rejected.
func Parse(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var s Scenario
	if err := dec.Decode(&s); err != nil {
		return nil, eris.Wrap(err, "scenario: parse")
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Scenario) validate() error {
	for i, l := range s.Layers {
		if l.Name == "" {
			return eris.Errorf("scenario: layer %d has no name", i)
		}
		if !layerComponents[l.Component] {
			return eris.Errorf("scenario: layer %s: unknown component %q", l.Name, l.Component)
		}
		if len(l.Sources) == 0 {
			return eris.Errorf("scenario: layer %s has no sources", l.Name)
		}
		for _, src := range l.Sources {
			if src.Pattern == "" {
				return eris.Errorf("scenario: layer %s has a source without pattern", l.Name)
			}
		}
	}
	return nil
}

// PerCity reports whether the scenario uses the city placeholder.
func (s *Scenario) PerCity() bool {
	found := false
	s.walk(func(v string) string {
		if strings.Contains(v, CityPlaceholder) {
			found = true
		}
		return v
	})
	return found
}

// Expand returns a copy of the scenario with the city and member state
// placeholders replaced in every option and layer.
func (s *Scenario) Expand(city, memberState string) *Scenario {
	r := strings.NewReplacer(CityPlaceholder, city, MemberStatePlaceholder, memberState)
	out := s.clone()
	out.walk(r.Replace)
	return out
}

func (s *Scenario) clone() *Scenario {
	out := *s
	v := reflect.ValueOf(&out.Options).Elem()
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		if f.Kind() == reflect.Slice && !f.IsNil() {
			c := reflect.MakeSlice(f.Type(), f.Len(), f.Len())
			reflect.Copy(c, f)
			f.Set(c)
		}
	}
	out.Layers = make([]Layer, len(s.Layers))
	for i, l := range s.Layers {
		l.Sources = append([]Source(nil), l.Sources...)
		out.Layers[i] = l
	}
	return &out
}

// walk applies fn to every string of the options and layers in place.
func (s *Scenario) walk(fn func(string) string) {
	v := reflect.ValueOf(&s.Options).Elem()
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		switch f.Kind() {
		case reflect.String:
			f.SetString(fn(f.String()))
		case reflect.Slice:
			if f.Type().Elem().Kind() != reflect.String {
				continue
			}
			for j := 0; j < f.Len(); j++ {
				f.Index(j).SetString(fn(f.Index(j).String()))
			}
		}
	}
	for i := range s.Layers {
		l := &s.Layers[i]
		l.Mask = fn(l.Mask)
		for j := range l.Sources {
			l.Sources[j].Pattern = fn(l.Sources[j].Pattern)
		}
	}
}

// Resolver turns the layers of a scenario into component maps.
type Resolver struct {
	eng    *engine.Engine
	tmp    *tempmap.Registry
	scorer *scoring.Scorer
}

// NewResolver creates a Resolver whose maps are named by tmp.
func NewResolver(eng *engine.Engine, tmp *tempmap.Registry) *Resolver {
	return &Resolver{eng: eng, tmp: tmp, scorer: scoring.New(eng, tmp)}
}

// Resolve returns the scenario options with each layer built and appended
// to its component. Layers without matching maps are skipped.
func (r *Resolver) Resolve(ctx context.Context, s *Scenario) (pipeline.Options, error) {
	o := s.Options
	for _, l := range s.Layers {
		name, err := r.layer(ctx, l)
		if err != nil {
			return o, err
		}
		if name == "" {
			continue
		}
		switch l.Component {
		case "land":
			o.Land = append(o.Land, name)
		case "natural":
			o.Natural = append(o.Natural, name)
		case "water":
			o.Water = append(o.Water, name)
		case "infrastructure":
			o.Infrastructure = append(o.Infrastructure, name)
		}
	}
	return o, nil
}

// Matches lists the maps of a layer's sources.
func (r *Resolver) Matches(ctx context.Context, l Layer) ([]string, error) {
	var maps []string
	for _, src := range l.Sources {
		names, err := r.eng.List(ctx, "raster", src.Pattern)
		if err != nil {
			return nil, eris.Wrapf(err, "scenario: list %s", src.Pattern)
		}
		for _, n := range names {
			if src.PositiveMin {
				u, err := r.eng.Univariate(ctx, n)
				if err != nil {
					return nil, eris.Wrapf(err, "scenario: minimum of %s", n)
				}
				if u.N == 0 || u.Min <= 0 {
					zap.L().Debug("skipping map without positive minimum",
						zap.String("layer", l.Name),
						zap.String("map", n),
						zap.Float64("min", u.Min),
					)
					continue
				}
			}
			maps = append(maps, n)
		}
	}
	return maps, nil
}

func (r *Resolver) layer(ctx context.Context, l Layer) (string, error) {
	maps, err := r.Matches(ctx, l)
	if err != nil {
		return "", err
	}
	if len(maps) == 0 {
		zap.L().Info("no maps for layer", zap.String("layer", l.Name))
		return "", nil
	}

	expr := mapcalc.Sum(maps...)
	if l.Mask != "" {
		expr = mapcalc.Product("("+expr+")", l.Mask)
	}
	summed := r.tmp.Name("layer_" + l.Name + "_sum")
	if err := r.eng.MapCalc(ctx, summed, expr); err != nil {
		return "", eris.Wrapf(err, "scenario: layer %s", l.Name)
	}
	out := r.tmp.Name("layer_" + l.Name)
	if err := r.scorer.Normalize(ctx, summed, out); err != nil {
		return "", eris.Wrapf(err, "scenario: layer %s", l.Name)
	}
	zap.L().Info("layer built",
		zap.String("layer", l.Name),
		zap.String("component", l.Component),
		zap.Strings("maps", maps),
	)
	return out, nil
}
