package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estimap/recreation/internal/config"
	"github.com/estimap/recreation/internal/engine"
	"github.com/estimap/recreation/internal/engine/enginetest"
)

const statsOutput = "1|Lisboa|1|Urban|250000.000000|100\n" +
	"1|Lisboa|4|Woodland and forest|750000.000000|300\n"

func testConfig() config.RecreationConfig {
	return config.RecreationConfig{
		ComponentThreshold:     0,
		OpportunityThreshold:   0.0001,
		NeighborhoodMethod:     "mode",
		NeighborhoodSize:       11,
		SmoothingSize:          7,
		MobilityConstant:       1,
		MobilityScore:          52,
		WaterCoefficients:      "euclidean,1,30,0.008,1",
		BathingCoefficients:    "euclidean,1,5,0.01101",
		ZonalStatisticsMethods: []string{"sum"},
	}
}

func newPipeline(t *testing.T) (*Pipeline, *enginetest.Recorder) {
	t.Helper()
	rec := enginetest.New()
	p := New(rec.Engine(), testConfig(), t.TempDir())
	return p, rec
}

func last(cmds []engine.Command) engine.Command {
	return cmds[len(cmds)-1]
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr string
	}{
		{
			name: "potential from land",
			opts: Options{Land: []string{"forest"}, Potential: "potential"},
		},
		{
			name:    "no output",
			opts:    Options{Land: []string{"forest"}},
			wantErr: "at least one output is required",
		},
		{
			name:    "landuse and land",
			opts:    Options{Land: []string{"forest"}, LandUse: "corine", Potential: "p"},
			wantErr: "mutually exclusive",
		},
		{
			name:    "geomorphology without coastline",
			opts:    Options{Water: []string{"w"}, CoastGeomorphology: "geo", Potential: "p"},
			wantErr: "coast_geomorphology requires coastline",
		},
		{
			name:    "artificial without roads",
			opts:    Options{Land: []string{"forest"}, Artificial: "urban", Potential: "p"},
			wantErr: "artificial and roads must be given together",
		},
		{
			name:    "no potential input",
			opts:    Options{Infrastructure: []string{"i"}, Opportunity: "o"},
			wantErr: "one of land, natural, water",
		},
		{
			name:    "spectrum without infrastructure",
			opts:    Options{Land: []string{"forest"}, Spectrum: "s"},
			wantErr: "require infrastructure",
		},
		{
			name:    "spectrum without land",
			opts:    Options{Water: []string{"w"}, Infrastructure: []string{"i"}, Spectrum: "s"},
			wantErr: "spectrum requires one of land",
		},
		{
			name: "unmet without demand",
			opts: Options{
				Land: []string{"forest"}, Infrastructure: []string{"i"},
				Base: "regions", Population: "pop", Unmet: "unmet",
			},
			wantErr: "unmet requires demand",
		},
		{
			name: "demand without population",
			opts: Options{
				Land: []string{"forest"}, Infrastructure: []string{"i"},
				Base: "regions", Demand: "demand",
			},
			wantErr: "require population and base",
		},
		{
			name: "supply without land cover",
			opts: Options{
				Land: []string{"forest"}, Infrastructure: []string{"i"},
				Base: "regions", Supply: "supply.csv",
			},
			wantErr: "require landcover or landuse",
		},
		{
			name:    "bad metric",
			opts:    Options{Land: []string{"forest"}, Potential: "p", Metric: "chebyshev"},
			wantErr: `unknown metric "chebyshev"`,
		},
		{
			name:    "bad unit",
			opts:    Options{Land: []string{"forest"}, Potential: "p", Units: "k,ft"},
			wantErr: "unknown unit",
		},
		{
			name:    "bad coefficients",
			opts:    Options{Lakes: "lakes", LakesCoefficients: "euclidean,1", Potential: "p"},
			wantErr: "lakes_coefficients",
		},
		{
			name:    "bad inline rules",
			opts:    Options{Protected: "natura", ProtectedScores: "5:1:1", Potential: "p"},
			wantErr: "protected_scores",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRun_InvalidOptions(t *testing.T) {
	p, rec := newPipeline(t)
	_, err := p.Run(context.Background(), Options{})
	require.Error(t, err)
	assert.Empty(t, rec.Commands())
}

func TestRun_PotentialFromLand(t *testing.T) {
	p, rec := newPipeline(t)

	res, err := p.Run(context.Background(), Options{
		Land:      []string{"forest", "parks"},
		Potential: "potential",
	})
	require.NoError(t, err)
	assert.Equal(t, "potential", res.Potential)
	assert.Empty(t, res.Spectrum)

	assert.Equal(t, []string{
		"r.mapcalc", "r.mapcalc",
		"r.mapcalc", "r.mapcalc", "r.univar", "r.mapcalc",
		"r.mapcalc", "r.univar", "r.mapcalc",
		"r.recode",
		"r.mapcalc", "r.category", "r.support", "r.colors",
		"g.remove",
	}, rec.Modules())

	exprs := rec.Expressions()
	assert.Contains(t, exprs[0], "if(isnull(forest), 0, forest)")
	assert.Contains(t, exprs[1], "if(isnull(parks), 0, parks)")

	recode := rec.Find("r.recode")[0]
	assert.Equal(t, recode.Param("output"), rec.Result("potential"))

	support := rec.Find("r.support")[0]
	assert.Equal(t, "potential", support.Param("map"))
	assert.Equal(t, "Recreation potential", support.Param("title"))

	cleanup := last(rec.Commands())
	assert.True(t, strings.HasPrefix(cleanup.Param("pattern"), fmt.Sprintf("tmp_%d_", os.Getpid())))
	_, statErr := os.Stat(recode.Param("rules"))
	assert.True(t, os.IsNotExist(statErr), "rule files are removed after the run")
}

func TestRun_KeepTemporary(t *testing.T) {
	p, rec := newPipeline(t)

	_, err := p.Run(context.Background(), Options{
		Land:          []string{"forest"},
		Potential:     "potential",
		KeepTemporary: true,
	})
	require.NoError(t, err)
	assert.Empty(t, rec.Find("g.remove"))

	_, statErr := os.Stat(rec.Find("r.recode")[0].Param("rules"))
	assert.NoError(t, statErr)
}

func TestRun_LandUseMustBeCategorical(t *testing.T) {
	p, rec := newPipeline(t)
	rec.Output("r.info", "datatype=FCELL\nnsres=100\newres=100\n")

	_, err := p.Run(context.Background(), Options{LandUse: "corine", Potential: "potential"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "categorical")
	assert.Empty(t, rec.Find("r.recode"))
}

func TestRun_LandUseSuitability(t *testing.T) {
	p, rec := newPipeline(t)

	_, err := p.Run(context.Background(), Options{
		LandUse:           "corine",
		SuitabilityScores: "1:10:0.5",
		Potential:         "potential",
		KeepTemporary:     true,
	})
	require.NoError(t, err)

	recodes := rec.Find("r.recode")
	require.Len(t, recodes, 2)
	rules, err := os.ReadFile(recodes[0].Param("rules"))
	require.NoError(t, err)
	assert.Equal(t, "1:10:0.5\n", string(rules))
	assert.Equal(t, "if(isnull(corine), 0, corine)", rec.Result(recodes[0].Param("input")))
}

func TestRun_WaterComponent(t *testing.T) {
	p, rec := newPipeline(t)

	_, err := p.Run(context.Background(), Options{
		Lakes:              "lakes",
		Coastline:          "coast",
		CoastGeomorphology: "geomorphology",
		BathingWater:       "bathing",
		Potential:          "potential",
	})
	require.NoError(t, err)

	grows := rec.Find("r.grow.distance")
	require.Len(t, grows, 3)
	assert.Equal(t, "lakes", grows[0].Param("input"))
	assert.Equal(t, "coast", grows[1].Param("input"))
	assert.Equal(t, "bathing", grows[2].Param("input"))

	assert.Empty(t, rec.Find("r.mask"))

	var excluded int
	for _, e := range rec.Expressions() {
		if strings.Contains(e, "= if(isnull(lakes), ") {
			excluded++
		}
	}
	assert.Equal(t, 1, excluded)

	neighbors := rec.Find("r.neighbors")
	require.Len(t, neighbors, 1)
	assert.Equal(t, "mode", neighbors[0].Param("method"))
	assert.Equal(t, "11", neighbors[0].Param("size"))

	var decay int
	for _, e := range rec.Expressions() {
		if strings.Contains(e, "exp(") {
			decay++
		}
	}
	assert.Equal(t, 3, decay)
}

func TestRun_MaskIsRemoved(t *testing.T) {
	p, rec := newPipeline(t)

	_, err := p.Run(context.Background(), Options{
		Land:      []string{"forest"},
		Mask:      "city",
		Potential: "potential",
	})
	require.NoError(t, err)

	cmds := rec.Commands()
	assert.Equal(t, "r.mask", cmds[0].Module)
	assert.Equal(t, "city", cmds[0].Param("raster"))

	masks := rec.Find("r.mask")
	require.Len(t, masks, 2)
	assert.Equal(t, "r", masks[1].Flags)
}

func TestRun_MaskHoldsThroughLakes(t *testing.T) {
	p, rec := newPipeline(t)

	_, err := p.Run(context.Background(), Options{
		Land:      []string{"forest"},
		Lakes:     "lakes",
		Mask:      "study_area",
		Potential: "potential",
	})
	require.NoError(t, err)

	cmds := rec.Commands()
	var masks, calcs []int
	for i, c := range cmds {
		switch c.Module {
		case "r.mask":
			masks = append(masks, i)
		case "r.mapcalc":
			calcs = append(calcs, i)
		}
	}
	require.Len(t, masks, 2)
	assert.Equal(t, 0, masks[0])
	assert.Equal(t, "study_area", cmds[masks[0]].Param("raster"))
	assert.Empty(t, cmds[masks[0]].Flags)
	assert.Equal(t, "r", cmds[masks[1]].Flags)

	require.NotEmpty(t, calcs)
	for _, i := range calcs {
		assert.Greater(t, i, masks[0])
		assert.Less(t, i, masks[1])
	}
}

func TestRun_LandUseExtent(t *testing.T) {
	p, rec := newPipeline(t)

	_, err := p.Run(context.Background(), Options{
		LandUse:       "corine",
		LandUseExtent: true,
		Potential:     "potential",
	})
	require.NoError(t, err)

	region := rec.Find("g.region")[0]
	assert.Equal(t, "corine", region.Param("raster"))
	saved := region.Param("save")
	require.NotEmpty(t, saved)

	recode := rec.Find("r.recode")[0]
	assert.Contains(t, recode.Env, "WIND_OVERRIDE="+saved)

	removed := rec.Find("g.remove")
	require.NotEmpty(t, removed)
	assert.Equal(t, "region", last(removed).Param("type"))
	assert.Equal(t, saved, last(removed).Param("name"))
}

func TestRun_Spectrum(t *testing.T) {
	p, rec := newPipeline(t)

	res, err := p.Run(context.Background(), Options{
		Land:           []string{"forest"},
		Artificial:     "urban",
		Roads:          "roads",
		Infrastructure: []string{"trails"},
		Spectrum:       "spectrum",
		BaseVector:     "regions",
		Timestamp:      "2018",
	})
	require.NoError(t, err)
	assert.Equal(t, "spectrum", res.Spectrum)
	require.NotNil(t, res.SpectrumStats)

	var access string
	for _, e := range rec.Expressions() {
		if strings.Contains(e, "min(") {
			access = e
		}
	}
	assert.Contains(t, access, "= float(5 - min(")
	assert.True(t, strings.HasSuffix(access, ") / 4"))

	recodes := rec.Find("r.recode")
	require.Len(t, recodes, 4)
	potential := recodes[0].Param("output")
	opportunity := recodes[3].Param("output")
	spectrum := rec.Result("spectrum")
	assert.Contains(t, spectrum, fmt.Sprintf("if(%s == 3 && %s == 3, 9,", potential, opportunity))

	stamp := rec.Find("r.timestamp")
	require.Len(t, stamp, 1)
	assert.Equal(t, "spectrum", stamp[0].Param("map"))

	vstats := rec.Find("v.rast.stats")
	require.Len(t, vstats, 1)
	assert.Equal(t, "spectrum", vstats[0].Param("raster"))
}

func TestRun_OpportunityOnly(t *testing.T) {
	p, rec := newPipeline(t)

	res, err := p.Run(context.Background(), Options{
		Natural:        []string{"natura"},
		Infrastructure: []string{"trails"},
		Opportunity:    "opportunity",
	})
	require.NoError(t, err)
	assert.Equal(t, "opportunity", res.Opportunity)
	assert.Empty(t, res.Potential)

	titles := map[string]string{}
	for _, c := range rec.Find("r.support") {
		titles[c.Param("map")] = c.Param("title")
	}
	assert.Equal(t, map[string]string{"opportunity": "Recreation opportunity"}, titles)
	assert.Empty(t, rec.Find("v.rast.stats"))
}

func TestRun_PrintTables(t *testing.T) {
	p, rec := newPipeline(t)
	rec.Output("r.stats", statsOutput)
	var out bytes.Buffer
	p.Stdout = &out

	res, err := p.Run(context.Background(), Options{
		Land:           []string{"forest"},
		Infrastructure: []string{"trails"},
		LandCover:      "urban_atlas",
		Base:           "regions",
		PrintOnly:      true,
		Units:          "h",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Tables)
	assert.Len(t, res.Tables.Supply, 2)

	reclass := rec.Find("r.reclass")[0]
	assert.Equal(t, "urban_atlas", reclass.Param("input"))
	assert.Contains(t, out.String(), "1,Lisboa,4,Woodland and forest,75,300,75\n")
	assert.Empty(t, rec.Find("r.grow.distance"), "no demand without population")
}

func TestRun_EngineFailure(t *testing.T) {
	p, rec := newPipeline(t)
	rec.Fail("r.recode", errors.New("boom"))

	_, err := p.Run(context.Background(), Options{Land: []string{"forest"}, Potential: "potential"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, "g.remove", last(rec.Commands()).Module, "temporary maps are removed after a failure")
}
