// Package cities lists the functional urban areas of a batch run.
package cities

import (
	"context"
	"strings"
)

// City is one functional urban area.
type City struct {
	Code        string `json:"code"`
	MemberState string `json:"member_state,omitempty"`
	// Extent is set by sources that know the geometry of the city.
	Extent *Extent `json:"extent,omitempty"`
}

// Extent is a bounding box in map units.
type Extent struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Source lists cities, optionally only those of one member state.
type Source interface {
	Cities(ctx context.Context, memberState string) ([]City, error)
}

// truncate shortens a city code to n characters; n <= 0 keeps it whole.
func truncate(code string, n int) string {
	code = strings.TrimSpace(code)
	if n > 0 && len(code) > n {
		return code[:n]
	}
	return code
}

// Static is a fixed list of cities.
type Static []City

// Cities implements Source.
func (s Static) Cities(_ context.Context, memberState string) ([]City, error) {
	var out []City
	for _, c := range s {
		if memberState == "" || strings.EqualFold(c.MemberState, memberState) {
			out = append(out, c)
		}
	}
	return out, nil
}

// ParseCodes turns a comma-separated list of city codes into a Static source.
func ParseCodes(list string) Static {
	var s Static
	for _, code := range strings.Split(list, ",") {
		if code = strings.TrimSpace(code); code != "" {
			s = append(s, City{Code: code})
		}
	}
	return s
}
