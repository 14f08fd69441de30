package engine

import (
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Distance metrics understood by r.grow.distance.
const (
	MetricEuclidean = "euclidean"
	MetricSquared   = "squared"
	MetricMaximum   = "maximum"
	MetricManhattan = "manhattan"
	MetricGeodesic  = "geodesic"
)

// ValidMetric reports whether m is a distance metric the engine accepts.
func ValidMetric(m string) bool {
	switch m {
	case MetricEuclidean, MetricSquared, MetricMaximum, MetricManhattan, MetricGeodesic:
		return true
	}
	return false
}

// Region describes a computational region. Zero fields are left out.
type Region struct {
	Raster string
	Vector string
	Res    float64
	NSRes  float64
	EWRes  float64
	North  float64
	South  float64
	East   float64
	West   float64
	// Align snaps the extent to the resolution (g.region -a).
	Align bool
}

func (r Region) command() Command {
	c := cmd("g.region",
		"raster", r.Raster,
		"vector", r.Vector,
		"res", formatOptional(r.Res),
		"nsres", formatOptional(r.NSRes),
		"ewres", formatOptional(r.EWRes),
	)
	if r.North != 0 || r.South != 0 || r.East != 0 || r.West != 0 {
		c.Params = append(c.Params,
			Param{Key: "n", Value: FormatFloat(r.North)},
			Param{Key: "s", Value: FormatFloat(r.South)},
			Param{Key: "e", Value: FormatFloat(r.East)},
			Param{Key: "w", Value: FormatFloat(r.West)},
		)
	}
	if r.Align {
		c.Flags = "a"
	}
	return c
}

// FormatFloat renders a number the shortest way that round-trips.
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func formatOptional(f float64) string {
	if f == 0 {
		return ""
	}
	return FormatFloat(f)
}

// Engine exposes typed raster operations on top of a Runner.
type Engine struct {
	runner Runner
	env    []string
}

// New creates an Engine.
func New(runner Runner) *Engine {
	return &Engine{runner: runner}
}

// WithRegion returns an engine whose commands use the saved region name
// instead of the mapset's current region.
func (e *Engine) WithRegion(name string) *Engine {
	env := make([]string, 0, len(e.env)+1)
	for _, kv := range e.env {
		if !strings.HasPrefix(kv, "WIND_OVERRIDE=") {
			env = append(env, kv)
		}
	}
	env = append(env, "WIND_OVERRIDE="+name)
	return &Engine{runner: e.runner, env: env}
}

func (e *Engine) run(ctx context.Context, c Command) (string, error) {
	if len(e.env) > 0 {
		c.Env = append(c.Env, e.env...)
	}
	return e.runner.Run(ctx, c)
}

func (e *Engine) exec(ctx context.Context, c Command) error {
	_, err := e.run(ctx, c)
	return err
}

// MapCalc evaluates "result = expression" cell by cell.
func (e *Engine) MapCalc(ctx context.Context, result, expression string) error {
	c := cmd("r.mapcalc", "expression", result+" = "+expression).overwrite()
	return e.exec(ctx, c)
}

// GrowDistance computes the distance of every cell to the nearest non-NULL cell of input.
func (e *Engine) GrowDistance(ctx context.Context, input, output, metric string) error {
	if !ValidMetric(metric) {
		return eris.Errorf("engine: unknown distance metric %q", metric)
	}
	c := cmd("r.grow.distance", "input", input, "distance", output, "metric", metric).overwrite()
	return e.exec(ctx, c)
}

// Recode recodes input into output using an r.recode rules file.
func (e *Engine) Recode(ctx context.Context, input, output, rulesFile string) error {
	c := cmd("r.recode", "input", input, "output", output, "rules", rulesFile).overwrite()
	return e.exec(ctx, c)
}

// Reclass reclassifies a categorical map using an r.reclass rules file.
func (e *Engine) Reclass(ctx context.Context, input, output, rulesFile, title string) error {
	c := cmd("r.reclass", "input", input, "output", output, "rules", rulesFile, "title", title).overwrite()
	return e.exec(ctx, c)
}

// SetNull replaces NULL cells of raster with value, in place.
func (e *Engine) SetNull(ctx context.Context, raster string, value float64) error {
	c := cmd("r.null", "map", raster, "null", FormatFloat(value))
	c.Quiet = true
	return e.exec(ctx, c)
}

// Univariate returns univariate statistics of raster.
func (e *Engine) Univariate(ctx context.Context, raster string) (Univariate, error) {
	out, err := e.run(ctx, cmd("r.univar", "map", raster).withFlags("g"))
	if err != nil {
		return Univariate{}, err
	}
	u, err := parseUnivariate(out)
	if err != nil {
		return u, eris.Wrapf(err, "engine: univariate statistics of %s", raster)
	}
	return u, nil
}

// ZonalUnivariate returns statistics of raster per category of zones.
func (e *Engine) ZonalUnivariate(ctx context.Context, raster, zones string) ([]ZoneStats, error) {
	out, err := e.run(ctx, cmd("r.univar", "map", raster, "zones", zones, "separator", "pipe").withFlags("t"))
	if err != nil {
		return nil, err
	}
	stats, err := parseZoneTable(out)
	if err != nil {
		return nil, eris.Wrapf(err, "engine: zonal statistics of %s by %s", raster, zones)
	}
	return stats, nil
}

// Info returns metadata of raster.
func (e *Engine) Info(ctx context.Context, raster string) (RasterInfo, error) {
	out, err := e.run(ctx, cmd("r.info", "map", raster).withFlags("g"))
	if err != nil {
		return RasterInfo{}, err
	}
	return parseRasterInfo(out)
}

// Cross creates a map of the unique category combinations of inputs.
// With nonZero set, combinations containing a zero category are skipped.
func (e *Engine) Cross(ctx context.Context, output string, nonZero bool, inputs ...string) error {
	if len(inputs) < 2 {
		return eris.New("engine: cross needs at least two input maps")
	}
	c := cmd("r.cross", "input", strings.Join(inputs, ","), "output", output).overwrite()
	if nonZero {
		c.Flags = "z"
	}
	return e.exec(ctx, c)
}

// StatsZonal aggregates cover over the categories of base into output
// (r.stats.zonal -r, a reclassed map).
func (e *Engine) StatsZonal(ctx context.Context, base, cover, method, output string) error {
	c := cmd("r.stats.zonal", "base", base, "cover", cover, "method", method, "output", output).
		withFlags("r").overwrite()
	return e.exec(ctx, c)
}

// Neighbors applies a moving-window operator.
func (e *Engine) Neighbors(ctx context.Context, input, output, method string, size int) error {
	c := cmd("r.neighbors", "input", input, "output", output, "method", method, "size", strconv.Itoa(size)).overwrite()
	return e.exec(ctx, c)
}

// Mask sets raster as the mapset MASK. With inverse set, the non-NULL
// cells of raster are the ones excluded.
func (e *Engine) Mask(ctx context.Context, raster string, inverse bool) error {
	c := cmd("r.mask", "raster", raster).overwrite()
	if inverse {
		c.Flags = "i"
	}
	return e.exec(ctx, c)
}

// RemoveMask removes the mapset MASK.
func (e *Engine) RemoveMask(ctx context.Context) error {
	c := cmd("r.mask").withFlags("r")
	c.Quiet = true
	return e.exec(ctx, c)
}

// SetRegion changes the current computational region.
func (e *Engine) SetRegion(ctx context.Context, r Region) error {
	return e.exec(ctx, r.command())
}

// SaveRegion stores region r under name without touching the current one.
func (e *Engine) SaveRegion(ctx context.Context, name string, r Region) error {
	c := r.command()
	c.Params = append(c.Params, Param{Key: "save", Value: name})
	c.Overwrite = true
	return e.exec(ctx, c)
}

// Remove deletes maps of the given kind (raster, vector, region).
func (e *Engine) Remove(ctx context.Context, kind string, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	c := cmd("g.remove", "type", kind, "name", strings.Join(names, ",")).withFlags("f")
	c.Quiet = true
	return e.exec(ctx, c)
}

// RemovePattern deletes maps of the given kind matching a glob pattern.
func (e *Engine) RemovePattern(ctx context.Context, kind, pattern string) error {
	c := cmd("g.remove", "type", kind, "pattern", pattern).withFlags("f")
	c.Quiet = true
	return e.exec(ctx, c)
}

// Rename renames a raster map.
func (e *Engine) Rename(ctx context.Context, from, to string) error {
	c := cmd("g.rename", "raster", from+","+to)
	c.Quiet = true
	return e.exec(ctx, c)
}

// List returns the names of maps of the given kind matching pattern.
func (e *Engine) List(ctx context.Context, kind, pattern string) ([]string, error) {
	out, err := e.run(ctx, cmd("g.list", "type", kind, "pattern", pattern))
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range nonEmptyLines(out) {
		names = append(names, strings.TrimSpace(line))
	}
	return names, nil
}

// Exists reports whether a raster map with the given name exists.
func (e *Engine) Exists(ctx context.Context, raster string) (bool, error) {
	names, err := e.List(ctx, "raster", raster)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == raster || strings.SplitN(n, "@", 2)[0] == raster {
			return true, nil
		}
	}
	return false, nil
}

// Categories assigns category labels from a rules file ("value:label" lines).
func (e *Engine) Categories(ctx context.Context, raster, rulesFile string) error {
	c := cmd("r.category", "map", raster, "rules", rulesFile, "separator", ":")
	return e.exec(ctx, c)
}

// Colors sets the color table of raster from color rules passed on stdin.
func (e *Engine) Colors(ctx context.Context, raster, rules string) error {
	c := cmd("r.colors", "map", raster, "rules", "-")
	c.Stdin = rules
	c.Quiet = true
	return e.exec(ctx, c)
}

// Support updates the title and history of raster.
func (e *Engine) Support(ctx context.Context, raster, title, history string) error {
	c := cmd("r.support", "map", raster, "title", title, "history", history)
	return e.exec(ctx, c)
}

// Timestamp stamps raster with a date.
func (e *Engine) Timestamp(ctx context.Context, raster, date string) error {
	c := cmd("r.timestamp", "map", raster, "date", date)
	return e.exec(ctx, c)
}

// Stats cross-tabulates the non-NULL categories of inputs with area and count.
func (e *Engine) Stats(ctx context.Context, inputs ...string) ([]StatsRow, error) {
	if len(inputs) == 0 {
		return nil, eris.New("engine: stats needs at least one input map")
	}
	c := cmd("r.stats", "input", strings.Join(inputs, ","), "separator", "pipe").withFlags("acln")
	out, err := e.run(ctx, c)
	if err != nil {
		return nil, err
	}
	rows, err := parseStats(out, len(inputs))
	if err != nil {
		return nil, eris.Wrapf(err, "engine: stats of %s", strings.Join(inputs, ","))
	}
	return rows, nil
}

// VectorRasterStats writes zonal statistics of raster into the attribute
// table of vector, in columns named <prefix>_<method>.
func (e *Engine) VectorRasterStats(ctx context.Context, vector, raster, prefix string, methods []string) error {
	c := cmd("v.rast.stats",
		"map", vector,
		"raster", raster,
		"column_prefix", prefix,
		"method", strings.Join(methods, ","),
	).withFlags("c")
	c.Quiet = true
	return e.exec(ctx, c)
}
