package pipeline

import (
	"time"

	"github.com/estimap/recreation/internal/model"
)

// Summary condenses the result into a ledger record.
func (r Result) Summary(elapsed time.Duration, o Options) *model.RunResult {
	outputs := make(map[string]string)
	for kind, name := range map[string]string{
		"potential":   r.Potential,
		"opportunity": r.Opportunity,
		"spectrum":    r.Spectrum,
		"demand":      r.Demand,
		"unmet":       r.Unmet,
		"flow":        r.Flow,
		"supply":      o.Supply,
		"use":         o.Use,
		"workbook":    o.Workbook,
	} {
		if name != "" {
			outputs[kind] = name
		}
	}
	if o.PrintOnly {
		outputs = nil
	}

	s := &model.RunResult{
		Outputs:         outputs,
		PopulationTotal: r.PopulationTotal,
		DurationMs:      elapsed.Milliseconds(),
	}
	if r.SpectrumStats != nil {
		s.SpectrumMean = r.SpectrumStats.Mean
	}
	if r.Tables != nil {
		s.SupplyRows = len(r.Tables.Supply)
		s.UseRows = len(r.Tables.Use)
	}
	return s
}
