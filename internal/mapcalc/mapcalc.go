// Package mapcalc builds r.mapcalc expressions. Nothing here touches the
// engine; the builders are pure string functions.
package mapcalc

import (
	"fmt"
	"sort"
	"strings"

	"github.com/estimap/recreation/internal/engine"
	"github.com/estimap/recreation/internal/rules"
)

// Equation renders "result = expression".
func Equation(result, expression string) string {
	return result + " = " + expression
}

func num(f float64) string { return engine.FormatFloat(f) }

// DistanceDecay renders the decay function
// (constant + kappa) / (kappa + exp(alpha * variable)), multiplied by the
// score when one is set. variable is a distance map for attractiveness and
// a population map for flow.
func DistanceDecay(variable string, c rules.Coefficients) string {
	expr := fmt.Sprintf("( %s + %s ) / ( %s + exp(%s * %s) )",
		num(c.Constant), num(c.Kappa), num(c.Kappa), num(c.Alpha), variable)
	if c.HasScore && c.Score != 0 {
		expr += " * " + num(c.Score)
	}
	return expr
}

// Normalize renders a min-max normalization of raster to [0, 1]. A
// degenerate range yields a constant layer: 1 where the single value is
// positive, 0 otherwise.
func Normalize(raster string, min, max float64) string {
	if max == min {
		if min > 0 {
			return "1"
		}
		return "0"
	}
	return fmt.Sprintf("float(%s - %s) / float(%s - %s)", raster, num(min), num(max), num(min))
}

// NullToZero replaces NULL cells with 0.
func NullToZero(raster string) string {
	return fmt.Sprintf("if(isnull(%s), 0, %s)", raster, raster)
}

// ZeroBelow sets values below threshold to 0.
func ZeroBelow(raster string, threshold float64) string {
	return fmt.Sprintf("if(%s < %s, 0, %s)", raster, num(threshold), raster)
}

// Sum adds rasters.
func Sum(rasters ...string) string {
	return strings.Join(rasters, " + ")
}

// Product multiplies rasters.
func Product(rasters ...string) string {
	return strings.Join(rasters, " * ")
}

// SpectrumTable maps (potential class, opportunity class), both 1..3, to
// the recreation spectrum category 1..9.
var SpectrumTable = [3][3]int{
	{1, 2, 3},
	{4, 5, 6},
	{7, 8, 9},
}

// HighestSpectrum is the spectrum category of high provision near people.
const HighestSpectrum = 9

// SpectrumCategory looks up the spectrum category of a class pair; ok is
// false outside 1..3.
func SpectrumCategory(potential, opportunity int) (int, bool) {
	if potential < 1 || potential > 3 || opportunity < 1 || opportunity > 3 {
		return 0, false
	}
	return SpectrumTable[potential-1][opportunity-1], true
}

// Spectrum renders the decision table as nested conditionals; class pairs
// outside the table become NULL.
func Spectrum(potential, opportunity string) string {
	expr := "null()"
	for p := 3; p >= 1; p-- {
		for o := 3; o >= 1; o-- {
			expr = fmt.Sprintf("if(%s == %d && %s == %d, %d, %s)",
				potential, p, opportunity, o, SpectrumTable[p-1][o-1], expr)
		}
	}
	return expr
}

// Only keeps the cells of raster equal to category.
func Only(raster string, category int) string {
	return fmt.Sprintf("if(%s == %d, %s, null())", raster, category, raster)
}

// MobilityCoefficients are the (kappa, alpha) pairs of the mobility
// function per distance category to the highest spectrum.
var MobilityCoefficients = map[int][2]float64{
	1: {0.02350, 0.00102},
	2: {0.02651, 0.00109},
	3: {0.05120, 0.00098},
	4: {0.10700, 0.00067},
	5: {0.06930, 0.00057},
}

// FarthestDistanceCategory is the last distance category, beyond which
// demand is unmet. Categories are numbered from 1, so it is the fifth
// entry of the mobility coefficients.
const FarthestDistanceCategory = 5

func mobilityDecay(population string, constant, score float64, kappaAlpha [2]float64) string {
	return DistanceDecay(population, rules.Coefficients{
		Constant: constant,
		Kappa:    kappaAlpha[0],
		Alpha:    kappaAlpha[1],
		Score:    score,
		HasScore: true,
	})
}

// Mobility renders the flow function: the decay of population with the
// coefficients of each cell's distance category.
func Mobility(distance, population string, constant, score float64, coefficients map[int][2]float64) string {
	categories := make([]int, 0, len(coefficients))
	for c := range coefficients {
		categories = append(categories, c)
	}
	sort.Ints(categories)

	expr := "null()"
	for i := len(categories) - 1; i >= 0; i-- {
		c := categories[i]
		expr = fmt.Sprintf("if(%s == %d, %s, %s)",
			distance, c, mobilityDecay(population, constant, score, coefficients[c]), expr)
	}
	return expr
}

// UnmetDemand renders the mobility function restricted to the farthest
// distance category.
func UnmetDemand(distance, population string, constant, score float64, coefficients map[int][2]float64) string {
	return fmt.Sprintf("if(%s == %d, %s, null())",
		distance, FarthestDistanceCategory,
		mobilityDecay(population, constant, score, coefficients[FarthestDistanceCategory]))
}

// Accessibility scores the proximity classes (1 nearest .. classes
// farthest) of artificial surfaces and roads: the nearer of the two
// decides, scaled from 1 for the first class to 0 for the last.
func Accessibility(artificial, roads string, classes int) string {
	return fmt.Sprintf("float(%d - min(%s, %s)) / %d", classes, artificial, roads, classes-1)
}

// Masked keeps raster where mask is not NULL.
func Masked(raster, mask string) string {
	return fmt.Sprintf("if(isnull(%s), null(), %s)", mask, raster)
}

// Excluding keeps expression where mask is NULL.
func Excluding(expression, mask string) string {
	return fmt.Sprintf("if(isnull(%s), %s, null())", mask, expression)
}

// Positive keeps the positive cells of raster.
func Positive(raster string) string {
	return fmt.Sprintf("if(%s > 0, %s, null())", raster, raster)
}
