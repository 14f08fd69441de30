// Package rules parses and resolves the small rule tables that drive raster
// recoding: breakpoint rules for r.recode, reclassification rules for
// r.reclass, category labels and distance function coefficients.
package rules

import (
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// RecodeRule maps the input range [Low, High] to New (or, when NewHigh is
// set, linearly to [New, NewHigh]). Open bounds are written as "*".
type RecodeRule struct {
	Low     float64
	High    float64
	New     float64
	NewHigh *float64
}

// RecodeRules is an ordered list of recode rules; the first match wins.
type RecodeRules []RecodeRule

// Lines splits an inline rule string (comma separated) or file content
// (newline separated) into trimmed, non-comment lines.
func Lines(text string) []string {
	text = strings.ReplaceAll(text, ",", "\n")
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || line == "end" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// ParseRecode parses rules in "low:high:new[:new_high]" form.
func ParseRecode(text string) (RecodeRules, error) {
	var rules RecodeRules
	for _, line := range Lines(text) {
		parts := strings.Split(line, ":")
		if len(parts) < 3 || len(parts) > 4 {
			return nil, eris.Errorf("rules: malformed recode rule %q", line)
		}
		low, err := bound(parts[0], math.Inf(-1))
		if err != nil {
			return nil, eris.Wrapf(err, "rules: recode rule %q", line)
		}
		high, err := bound(parts[1], math.Inf(1))
		if err != nil {
			return nil, eris.Wrapf(err, "rules: recode rule %q", line)
		}
		if low > high {
			return nil, eris.Errorf("rules: recode rule %q has low > high", line)
		}
		newValue, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "rules: recode rule %q", line)
		}
		rule := RecodeRule{Low: low, High: high, New: newValue}
		if len(parts) == 4 {
			nh, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
			if err != nil {
				return nil, eris.Wrapf(err, "rules: recode rule %q", line)
			}
			rule.NewHigh = &nh
		}
		rules = append(rules, rule)
	}
	if len(rules) == 0 {
		return nil, eris.New("rules: no recode rules")
	}
	return rules, nil
}

func bound(raw string, open float64) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "*" {
		return open, nil
	}
	return strconv.ParseFloat(raw, 64)
}

// Apply recodes v with the first matching rule.
func (rs RecodeRules) Apply(v float64) (float64, bool) {
	for _, r := range rs {
		if v < r.Low || v > r.High {
			continue
		}
		if r.NewHigh == nil || r.High == r.Low || math.IsInf(r.Low, 0) || math.IsInf(r.High, 0) {
			return r.New, true
		}
		return r.New + (v-r.Low)*(*r.NewHigh-r.New)/(r.High-r.Low), true
	}
	return 0, false
}

// Classes returns the distinct output values of the rules, in order.
func (rs RecodeRules) Classes() []float64 {
	seen := make(map[float64]bool)
	var classes []float64
	for _, r := range rs {
		if !seen[r.New] {
			seen[r.New] = true
			classes = append(classes, r.New)
		}
	}
	return classes
}

// Labels maps category values to labels ("value:label" lines).
type Labels map[int]string

// ParseLabels parses category label rules.
func ParseLabels(text string) (Labels, error) {
	labels := make(Labels)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		value, label, ok := strings.Cut(line, ":")
		if !ok {
			return nil, eris.Errorf("rules: malformed category label %q", line)
		}
		v, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, eris.Wrapf(err, "rules: category label %q", line)
		}
		labels[v] = strings.TrimSpace(label)
	}
	return labels, nil
}

// IsInline reports whether value is an inline rule string rather than a
// path to a rules file. Existing files always win.
func IsInline(value string) bool {
	if value == "" {
		return false
	}
	if _, err := os.Stat(value); err == nil {
		return false
	}
	return strings.Contains(value, ":") || strings.Contains(value, "=")
}

// FileWriter stores rule text in a temporary file removed at cleanup.
type FileWriter interface {
	WriteFile(name, content string) (string, error)
}

// Resolve returns the path of a rules file for value: an existing file is
// used as-is, an inline string is written to a temporary file, and an empty
// value falls back to the given default rules.
func Resolve(w FileWriter, value, fallback, name string) (string, error) {
	switch {
	case value == "" && fallback == "":
		return "", eris.Errorf("rules: no rules given for %s", name)
	case value == "":
		return w.WriteFile(name, strings.Join(Lines(fallback), "\n")+"\n")
	case IsInline(value):
		return w.WriteFile(name, strings.Join(Lines(value), "\n")+"\n")
	}
	if _, err := os.Stat(value); err != nil {
		return "", eris.Wrapf(err, "rules: rules file for %s", name)
	}
	return value, nil
}

// ResolveLabels writes category labels to a temporary file. Labels contain
// spaces and commas, so they are written line by line, never split on commas.
func ResolveLabels(w FileWriter, labels, name string) (string, error) {
	if _, err := ParseLabels(labels); err != nil {
		return "", err
	}
	return w.WriteFile(name, strings.TrimSpace(labels)+"\n")
}
