package engine

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Univariate holds r.univar statistics of a raster map.
type Univariate struct {
	N        int64
	Min      float64
	Max      float64
	Mean     float64
	Variance float64
	Stddev   float64
	Sum      float64
}

// RasterInfo holds the r.info fields the recreation model looks at.
type RasterInfo struct {
	DataType string
	NSRes    float64
	EWRes    float64
	North    float64
	South    float64
	East     float64
	West     float64
	Rows     int
	Cols     int
}

// IsCategorical reports whether the map stores integer (CELL) values.
func (r RasterInfo) IsCategorical() bool {
	return r.DataType == "CELL"
}

// ZoneStats is one row of r.univar -t output.
type ZoneStats struct {
	Zone  int
	Label string
	Cells int64
	Mean  float64
	Sum   float64
}

// Category is a raster category value and its label.
type Category struct {
	Value int
	Label string
}

// StatsRow is one row of r.stats -acln output: one category per input map,
// then area (square map units) and cell count.
type StatsRow struct {
	Categories []Category
	Area       float64
	Count      int64
}

// parseKeyValues parses the shell-style key=value lines printed by -g flags.
func parseKeyValues(out string) map[string]string {
	kv := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		kv[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), `"`)
	}
	return kv
}

func floatField(kv map[string]string, key string) (float64, error) {
	raw, ok := kv[key]
	if !ok {
		return 0, eris.Errorf("engine: missing %q in output", key)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "engine: parse %s=%s", key, raw)
	}
	return f, nil
}

func parseUnivariate(out string) (Univariate, error) {
	kv := parseKeyValues(out)
	var u Univariate

	n, err := floatField(kv, "n")
	if err != nil {
		return u, err
	}
	u.N = int64(n)
	if u.N == 0 {
		// An all-NULL map reports n=0 and no statistics.
		return u, nil
	}

	fields := []struct {
		key string
		dst *float64
	}{
		{"min", &u.Min},
		{"max", &u.Max},
		{"mean", &u.Mean},
		{"variance", &u.Variance},
		{"stddev", &u.Stddev},
		{"sum", &u.Sum},
	}
	for _, f := range fields {
		v, err := floatField(kv, f.key)
		if err != nil {
			return u, err
		}
		*f.dst = v
	}
	return u, nil
}

func parseRasterInfo(out string) (RasterInfo, error) {
	kv := parseKeyValues(out)
	info := RasterInfo{DataType: kv["datatype"]}
	if info.DataType == "" {
		return info, eris.New("engine: r.info output has no datatype")
	}

	for key, dst := range map[string]*float64{
		"nsres": &info.NSRes,
		"ewres": &info.EWRes,
		"north": &info.North,
		"south": &info.South,
		"east":  &info.East,
		"west":  &info.West,
	} {
		if _, ok := kv[key]; !ok {
			continue
		}
		v, err := floatField(kv, key)
		if err != nil {
			return info, err
		}
		*dst = v
	}
	if rows, err := strconv.Atoi(kv["rows"]); err == nil {
		info.Rows = rows
	}
	if cols, err := strconv.Atoi(kv["cols"]); err == nil {
		info.Cols = cols
	}
	return info, nil
}

// parseZoneTable parses r.univar -t output using its header line.
func parseZoneTable(out string) ([]ZoneStats, error) {
	lines := nonEmptyLines(out)
	if len(lines) == 0 {
		return nil, nil
	}

	header := strings.Split(lines[0], "|")
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	for _, required := range []string{"zone", "non_null_cells", "sum"} {
		if _, ok := col[required]; !ok {
			return nil, eris.Errorf("engine: r.univar table missing column %q", required)
		}
	}

	var zones []ZoneStats
	for _, line := range lines[1:] {
		fields := strings.Split(line, "|")
		if len(fields) != len(header) {
			return nil, eris.Errorf("engine: malformed r.univar row %q", line)
		}
		zone, err := strconv.Atoi(strings.TrimSpace(fields[col["zone"]]))
		if err != nil {
			return nil, eris.Wrapf(err, "engine: parse zone in %q", line)
		}
		cells, err := strconv.ParseInt(strings.TrimSpace(fields[col["non_null_cells"]]), 10, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "engine: parse cell count in %q", line)
		}
		sum, err := parseNumber(fields[col["sum"]])
		if err != nil {
			return nil, err
		}
		z := ZoneStats{Zone: zone, Cells: cells, Sum: sum}
		if i, ok := col["label"]; ok {
			z.Label = strings.TrimSpace(fields[i])
		}
		if i, ok := col["mean"]; ok {
			if z.Mean, err = parseNumber(fields[i]); err != nil {
				return nil, err
			}
		}
		zones = append(zones, z)
	}
	return zones, nil
}

// parseStats parses r.stats -acln output for the given number of input maps.
// Each category is printed as "value|label", followed by area and count.
func parseStats(out string, inputs int) ([]StatsRow, error) {
	want := 2*inputs + 2
	var rows []StatsRow
	for _, line := range nonEmptyLines(out) {
		fields := strings.Split(line, "|")
		if len(fields) != want {
			return nil, eris.Errorf("engine: r.stats row %q has %d fields, want %d", line, len(fields), want)
		}
		row := StatsRow{Categories: make([]Category, 0, inputs)}
		for i := 0; i < inputs; i++ {
			v, err := strconv.Atoi(strings.TrimSpace(fields[2*i]))
			if err != nil {
				return nil, eris.Wrapf(err, "engine: parse category in %q", line)
			}
			row.Categories = append(row.Categories, Category{Value: v, Label: strings.TrimSpace(fields[2*i+1])})
		}
		area, err := parseNumber(fields[want-2])
		if err != nil {
			return nil, err
		}
		count, err := strconv.ParseInt(strings.TrimSpace(fields[want-1]), 10, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "engine: parse count in %q", line)
		}
		row.Area = area
		row.Count = count
		rows = append(rows, row)
	}
	return rows, nil
}

func parseNumber(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "-nan" || raw == "nan" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "engine: parse number %q", raw)
	}
	return f, nil
}

func nonEmptyLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, strings.TrimRight(line, "\r"))
		}
	}
	return lines
}
