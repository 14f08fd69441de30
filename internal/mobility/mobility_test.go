package mobility

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estimap/recreation/internal/engine/enginetest"
	"github.com/estimap/recreation/internal/mapcalc"
	"github.com/estimap/recreation/internal/tempmap"
)

func newMobility(t *testing.T) (*Mobility, *enginetest.Recorder, *tempmap.Registry) {
	t.Helper()
	rec := enginetest.New()
	tmp := tempmap.New(t.TempDir())
	return New(rec.Engine(), tmp), rec, tmp
}

func baseOptions() Options {
	return Options{
		Spectrum:      "spectrum",
		Base:          "regions",
		Population:    "population",
		DistanceRules: "/tmp/spectrum_distances",
		Constant:      1,
		Score:         52,
	}
}

func TestRun_DemandOnly(t *testing.T) {
	m, rec, tmp := newMobility(t)
	rec.Univariate("population", 400, 0, 120, 10000)
	o := baseOptions()
	o.Demand = "demand"

	res, err := m.Run(context.Background(), o)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"r.mapcalc", "r.grow.distance", "r.recode", "r.colors", "r.category", "r.cross",
		"r.info", "g.region", "r.univar", "r.stats.zonal", "r.mapcalc", "g.remove",
	}, rec.Modules())

	assert.Equal(t, "if(spectrum == 9, spectrum, null())", rec.Result(res.Highest))
	assert.Equal(t, "euclidean", rec.Find("r.grow.distance")[0].Param("metric"))
	assert.Equal(t, "/tmp/spectrum_distances", rec.Find("r.recode")[0].Param("rules"))
	assert.Equal(t, res.DistanceCategories+",regions", rec.Find("r.cross")[0].Param("input"))
	assert.InDelta(t, 10000, res.PopulationTotal, 1e-9)
	assert.Equal(t, "demand", res.Demand)
	assert.Empty(t, res.Flow)
	assert.Empty(t, res.Unmet)

	zonal := rec.Find("r.stats.zonal")[0]
	assert.Equal(t, res.Cross, zonal.Param("base"))
	assert.Equal(t, "population", zonal.Param("cover"))
	assert.Equal(t, "sum", zonal.Param("method"))
	assert.Equal(t, zonal.Param("output"), rec.Result("demand"))
	assert.Equal(t, zonal.Param("output"), rec.Find("g.remove")[0].Param("name"))

	region := rec.Find("g.region")[0]
	assert.Equal(t, "100", region.Param("nsres"))
	assert.Equal(t, tmp.Name("population_region"), region.Param("save"))
	assert.Contains(t, zonal.Env, "WIND_OVERRIDE="+tmp.Name("population_region"))
}

func TestRun_FlowAndUnmet(t *testing.T) {
	m, rec, _ := newMobility(t)
	o := baseOptions()
	o.Metric = "manhattan"
	o.Unmet = "unmet"
	o.Flow = "flow"

	res, err := m.Run(context.Background(), o)
	require.NoError(t, err)

	assert.Equal(t, "manhattan", rec.Find("r.grow.distance")[0].Param("metric"))
	assert.Equal(t,
		mapcalc.UnmetDemand(res.DistanceCategories, res.Demand, 1, 52, mapcalc.MobilityCoefficients),
		rec.Result("unmet"))
	assert.Equal(t,
		mapcalc.Mobility(res.DistanceCategories, res.Demand, 1, 52, mapcalc.MobilityCoefficients),
		rec.Result("flow"))
}

func TestRun_ComputeFlowTemporary(t *testing.T) {
	m, rec, tmp := newMobility(t)
	o := baseOptions()
	o.ComputeFlow = true

	res, err := m.Run(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, tmp.Name("flow"), res.Flow)
	assert.Equal(t, tmp.Name("demand"), res.Demand)
	assert.NotEmpty(t, rec.Result(res.Flow))
}

func TestRun_VectorUpdates(t *testing.T) {
	m, rec, _ := newMobility(t)
	o := baseOptions()
	o.BaseVector = "regions_vector"
	o.Methods = []string{"sum", "average"}
	o.Unmet = "unmet"
	o.Flow = "flow"

	_, err := m.Run(context.Background(), o)
	require.NoError(t, err)

	updates := rec.Find("v.rast.stats")
	require.Len(t, updates, 3)
	var prefixes []string
	for _, u := range updates {
		prefixes = append(prefixes, u.Param("column_prefix"))
		assert.Equal(t, "sum,average", u.Param("method"))
		assert.Equal(t, "regions_vector", u.Param("map"))
	}
	assert.Equal(t, []string{"demand", "unmet", "flow"}, prefixes)
}

func TestRun_MissingInputs(t *testing.T) {
	m, rec, _ := newMobility(t)
	_, err := m.Run(context.Background(), Options{Spectrum: "s"})
	require.Error(t, err)
	assert.Empty(t, rec.Commands())
}

func TestRun_CrossFails(t *testing.T) {
	m, rec, _ := newMobility(t)
	rec.Fail("r.cross", errors.New("no categories"))

	_, err := m.Run(context.Background(), baseOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mobility: cross distance categories with base")
	assert.Empty(t, rec.Find("r.stats.zonal"))
}
