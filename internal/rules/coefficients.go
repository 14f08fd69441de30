package rules

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/estimap/recreation/internal/engine"
)

// Coefficients parameterize a distance-decay function:
// (Constant + Kappa) / (Kappa + exp(Alpha * distance)) [* Score].
type Coefficients struct {
	Metric   string
	Constant float64
	Kappa    float64
	Alpha    float64
	Score    float64
	HasScore bool
}

// ParseCoefficients parses "metric,constant,kappa,alpha[,score]".
func ParseCoefficients(text string) (Coefficients, error) {
	parts := strings.Split(text, ",")
	if len(parts) < 4 || len(parts) > 5 {
		return Coefficients{}, eris.Errorf("rules: coefficients %q: want metric,constant,kappa,alpha[,score]", text)
	}
	c := Coefficients{Metric: strings.TrimSpace(parts[0])}
	if !engine.ValidMetric(c.Metric) {
		return Coefficients{}, eris.Errorf("rules: coefficients %q: unknown distance metric %q", text, c.Metric)
	}
	values := make([]float64, 0, 4)
	for _, p := range parts[1:] {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Coefficients{}, eris.Wrapf(err, "rules: coefficients %q", text)
		}
		values = append(values, v)
	}
	c.Constant, c.Kappa, c.Alpha = values[0], values[1], values[2]
	if len(values) == 4 {
		c.Score = values[3]
		c.HasScore = true
	}
	if c.Kappa < 0 {
		return Coefficients{}, eris.Errorf("rules: coefficients %q: negative kappa", text)
	}
	return c, nil
}

// String renders the coefficients back in their parseable form.
func (c Coefficients) String() string {
	parts := []string{
		c.Metric,
		engine.FormatFloat(c.Constant),
		engine.FormatFloat(c.Kappa),
		engine.FormatFloat(c.Alpha),
	}
	if c.HasScore {
		parts = append(parts, engine.FormatFloat(c.Score))
	}
	return strings.Join(parts, ",")
}
