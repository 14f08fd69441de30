// Package model defines the records kept in the run ledger.
package model

import "time"

// RunStatus represents the current state of a recreation run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Done reports whether the run has finished, successfully or not.
func (s RunStatus) Done() bool {
	return s == RunStatusComplete || s == RunStatusFailed
}

// Run is one recreation run: a scenario, optionally for a single city.
type Run struct {
	ID        string     `json:"id"`
	Scenario  string     `json:"scenario"`
	City      string     `json:"city,omitempty"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult summarizes a completed run.
type RunResult struct {
	// Outputs maps output kinds (potential, spectrum, flow ...) to map or
	// file names.
	Outputs         map[string]string `json:"outputs,omitempty"`
	PopulationTotal float64           `json:"population_total,omitempty"`
	SpectrumMean    float64           `json:"spectrum_mean,omitempty"`
	SupplyRows      int               `json:"supply_rows,omitempty"`
	UseRows         int               `json:"use_rows,omitempty"`
	DurationMs      int64             `json:"duration_ms"`
}
