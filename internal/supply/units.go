package supply

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Reporting units.
const (
	UnitMeters  = "me"
	UnitKm      = "k"
	UnitHectare = "h"
	UnitAcre    = "a"
	UnitMile    = "mi"
	UnitCells   = "c"
	UnitPercent = "p"
)

// Square meters per unit of area.
var squareMeters = map[string]float64{
	UnitMeters:  1,
	UnitKm:      1e6,
	UnitHectare: 1e4,
	UnitAcre:    4046.8564224,
	UnitMile:    2589988.110336,
}

// ValidUnit reports whether u is a reporting unit.
func ValidUnit(u string) bool {
	if _, ok := squareMeters[u]; ok {
		return true
	}
	return u == UnitCells || u == UnitPercent
}

// ParseUnits parses a comma-separated list of units; empty means km².
func ParseUnits(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return []string{UnitKm}, nil
	}
	var units []string
	for _, u := range strings.Split(s, ",") {
		u = strings.TrimSpace(u)
		if !ValidUnit(u) {
			return nil, eris.Errorf("supply: unknown unit %q", u)
		}
		units = append(units, u)
	}
	return units, nil
}

// In reports the row's area in unit: an area, the cell count, or the
// percentage of the base zone.
func (r SupplyRow) In(unit string) (float64, error) {
	switch unit {
	case UnitCells:
		return float64(r.Count), nil
	case UnitPercent:
		return r.Percent, nil
	}
	m2, ok := squareMeters[unit]
	if !ok {
		return 0, eris.Errorf("supply: unknown unit %q", unit)
	}
	return r.Area / m2, nil
}
