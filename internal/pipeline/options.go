package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/estimap/recreation/internal/engine"
	"github.com/estimap/recreation/internal/rules"
	"github.com/estimap/recreation/internal/supply"
)

// Options describes one recreation run: input maps, rules, output names
// and flags. Rules fields take a rules file path or an inline rule string;
// empty rules fall back to the built-in defaults.
type Options struct {
	// Ready-made component maps.
	Land           []string `yaml:"land" json:"land,omitempty"`
	Natural        []string `yaml:"natural" json:"natural,omitempty"`
	Water          []string `yaml:"water" json:"water,omitempty"`
	Infrastructure []string `yaml:"infrastructure" json:"infrastructure,omitempty"`

	// Land
	LandUse           string `yaml:"landuse" json:"landuse,omitempty"`
	SuitabilityScores string `yaml:"suitability_scores" json:"suitability_scores,omitempty"`
	LandCover         string `yaml:"landcover" json:"landcover,omitempty"`
	LandClasses       string `yaml:"land_classes" json:"land_classes,omitempty"`

	// Water
	Lakes                 string `yaml:"lakes" json:"lakes,omitempty"`
	LakesCoefficients     string `yaml:"lakes_coefficients" json:"lakes_coefficients,omitempty"`
	Coastline             string `yaml:"coastline" json:"coastline,omitempty"`
	CoastlineCoefficients string `yaml:"coastline_coefficients" json:"coastline_coefficients,omitempty"`
	CoastGeomorphology    string `yaml:"coast_geomorphology" json:"coast_geomorphology,omitempty"`
	BathingWater          string `yaml:"bathing_water" json:"bathing_water,omitempty"`
	BathingCoefficients   string `yaml:"bathing_coefficients" json:"bathing_coefficients,omitempty"`

	// Natural
	Protected       string `yaml:"protected" json:"protected,omitempty"`
	ProtectedScores string `yaml:"protected_scores" json:"protected_scores,omitempty"`

	// Anthropic
	Artificial          string `yaml:"artificial" json:"artificial,omitempty"`
	ArtificialDistances string `yaml:"artificial_distances" json:"artificial_distances,omitempty"`
	Roads               string `yaml:"roads" json:"roads,omitempty"`
	RoadsDistances      string `yaml:"roads_distances" json:"roads_distances,omitempty"`

	Mask string `yaml:"mask" json:"mask,omitempty"`

	// Outputs
	Potential         string `yaml:"potential" json:"potential,omitempty"`
	Opportunity       string `yaml:"opportunity" json:"opportunity,omitempty"`
	Spectrum          string `yaml:"spectrum" json:"spectrum,omitempty"`
	SpectrumDistances string `yaml:"spectrum_distances" json:"spectrum_distances,omitempty"`

	Base        string `yaml:"base" json:"base,omitempty"`
	BaseVector  string `yaml:"base_vector" json:"base_vector,omitempty"`
	Aggregation string `yaml:"aggregation" json:"aggregation,omitempty"`
	Population  string `yaml:"population" json:"population,omitempty"`

	Demand string `yaml:"demand" json:"demand,omitempty"`
	Unmet  string `yaml:"unmet" json:"unmet,omitempty"`
	Flow   string `yaml:"flow" json:"flow,omitempty"`

	// Supply and Use are CSV file names; Workbook is an XLSX file name.
	Supply   string `yaml:"supply" json:"supply,omitempty"`
	Use      string `yaml:"use" json:"use,omitempty"`
	Workbook string `yaml:"workbook" json:"workbook,omitempty"`

	Metric    string `yaml:"metric" json:"metric,omitempty"`
	Units     string `yaml:"units" json:"units,omitempty"`
	Timestamp string `yaml:"timestamp" json:"timestamp,omitempty"`

	// Flags
	LandUseExtent bool `yaml:"landuse_extent" json:"landuse_extent,omitempty"`
	Filter        bool `yaml:"filter" json:"filter,omitempty"`
	KeepTemporary bool `yaml:"keep_temporary" json:"keep_temporary,omitempty"`
	PrintOnly     bool `yaml:"print_only" json:"print_only,omitempty"`
}

func anySet(values ...string) bool {
	for _, v := range values {
		if v != "" {
			return true
		}
	}
	return false
}

func (o *Options) hasPotentialInput() bool {
	return len(o.Land) > 0 || len(o.Natural) > 0 || len(o.Water) > 0 ||
		anySet(o.LandUse, o.Protected, o.Lakes, o.Coastline, o.BathingWater)
}

func (o *Options) hasInfrastructureInput() bool {
	return len(o.Infrastructure) > 0 || (o.Artificial != "" && o.Roads != "")
}

// needsSpectrum reports whether any requested output depends on the
// recreation spectrum.
func (o *Options) needsSpectrum() bool {
	return anySet(o.Spectrum, o.Demand, o.Unmet, o.Flow, o.Supply, o.Use, o.Workbook) || o.PrintOnly
}

func (o *Options) needsTables() bool {
	return anySet(o.Supply, o.Use, o.Workbook) || o.PrintOnly
}

func (o *Options) needsDemand() bool {
	return anySet(o.Demand, o.Unmet, o.Flow, o.Use)
}

func (o *Options) needsOpportunity() bool {
	return o.Opportunity != "" || o.needsSpectrum()
}

// aggregation returns the zones of the supply and use tables.
func (o *Options) aggregation() string {
	if o.Aggregation != "" {
		return o.Aggregation
	}
	return o.Base
}

// landCover returns the map the supply table is derived from.
func (o *Options) landCover() string {
	if o.LandCover != "" {
		return o.LandCover
	}
	return o.LandUse
}

// Validate enforces the relations between options.
func (o *Options) Validate() error {
	var errs []string
	add := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if !anySet(o.Potential, o.Opportunity, o.Spectrum, o.Demand, o.Flow, o.Supply, o.Use, o.Workbook) && !o.PrintOnly {
		add("at least one output is required: potential, opportunity, spectrum, demand, flow, supply, use or workbook")
	}
	if o.LandUse != "" && len(o.Land) > 0 {
		add("landuse and land are mutually exclusive")
	}
	if o.CoastGeomorphology != "" && o.Coastline == "" {
		add("coast_geomorphology requires coastline")
	}
	if (o.Artificial == "") != (o.Roads == "") {
		add("artificial and roads must be given together")
	}
	if !o.hasPotentialInput() {
		add("one of land, natural, water, landuse, protected, lakes, coastline or bathing_water is required")
	}
	if o.needsOpportunity() && !o.hasInfrastructureInput() {
		add("opportunity and spectrum require infrastructure or artificial and roads")
	}
	if o.Spectrum != "" && len(o.Land) == 0 && !anySet(o.LandCover, o.LandUse) {
		add("spectrum requires one of land, landcover or landuse")
	}
	if o.Unmet != "" && o.Demand == "" {
		add("unmet requires demand")
	}
	if o.needsDemand() && (o.Population == "" || o.Base == "") {
		add("demand, unmet, flow and use require population and base")
	}
	if o.needsTables() {
		if o.aggregation() == "" {
			add("supply and use require aggregation or base")
		}
		if o.landCover() == "" {
			add("supply and use require landcover or landuse")
		}
	}
	if o.Metric != "" && !engine.ValidMetric(o.Metric) {
		add("unknown metric %q", o.Metric)
	}
	if _, err := supply.ParseUnits(o.Units); err != nil {
		errs = append(errs, err.Error())
	}

	for name, value := range map[string]string{
		"lakes_coefficients":     o.LakesCoefficients,
		"coastline_coefficients": o.CoastlineCoefficients,
		"bathing_coefficients":   o.BathingCoefficients,
	} {
		if value == "" {
			continue
		}
		if _, err := rules.ParseCoefficients(value); err != nil {
			add("%s: %v", name, err)
		}
	}
	for name, value := range map[string]string{
		"suitability_scores":   o.SuitabilityScores,
		"protected_scores":     o.ProtectedScores,
		"artificial_distances": o.ArtificialDistances,
		"roads_distances":      o.RoadsDistances,
		"spectrum_distances":   o.SpectrumDistances,
	} {
		if !rules.IsInline(value) {
			continue
		}
		if _, err := rules.ParseRecode(value); err != nil {
			add("%s: %v", name, err)
		}
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return eris.Errorf("pipeline: invalid options: %s", strings.Join(errs, "; "))
	}
	return nil
}
