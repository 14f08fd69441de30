package batch

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estimap/recreation/internal/cities"
	"github.com/estimap/recreation/internal/config"
	"github.com/estimap/recreation/internal/engine"
	"github.com/estimap/recreation/internal/engine/enginetest"
	"github.com/estimap/recreation/internal/model"
	"github.com/estimap/recreation/internal/resilience"
	"github.com/estimap/recreation/internal/scenario"
	"github.com/estimap/recreation/internal/store"
)

const potentialScenario = `
name: potential
options:
  land: [forest_{city}]
  potential: potential_{city}
`

func testConfig(concurrency int) config.Config {
	return config.Config{
		Batch: config.BatchConfig{
			MaxConcurrentCities: concurrency,
			Resolution:          50,
			RegionVector:        "FUA_{city}",
		},
		Recreation: config.RecreationConfig{
			OpportunityThreshold: 0.0001,
		},
	}
}

func testStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testScenario(t *testing.T, doc string) *scenario.Scenario {
	t.Helper()
	s, err := scenario.Parse([]byte(doc))
	require.NoError(t, err)
	return s
}

func savedRegions(rec *enginetest.Recorder) map[string]engine.Command {
	out := make(map[string]engine.Command)
	for _, c := range rec.Find("g.region") {
		out[c.Param("save")] = c
	}
	return out
}

func TestRun_AllCities(t *testing.T) {
	rec := enginetest.New()
	st := testStore(t)
	b := New(rec.Engine(), testConfig(2), st)

	src := cities.Static{{Code: "PT001C", MemberState: "PT"}, {Code: "PT002C", MemberState: "PT"}}
	sum, err := b.Run(context.Background(), src, Options{
		Scenario: testScenario(t, potentialScenario),
		TmpDir:   t.TempDir(),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.Succeeded)
	assert.Zero(t, sum.Failed)

	var vectors []string
	for name, c := range savedRegions(rec) {
		vectors = append(vectors, c.Param("vector"))
		assert.Equal(t, "50", c.Param("res"))
		assert.Equal(t, "a", c.Flags)

		// Every command of the city runs in its region.
		city := strings.TrimPrefix(c.Param("vector"), "FUA_")
		for _, s := range rec.Find("r.support") {
			if s.Param("map") == "potential_"+city {
				assert.Contains(t, s.Env, "WIND_OVERRIDE="+name)
			}
		}
	}
	sort.Strings(vectors)
	assert.Equal(t, []string{"FUA_PT001C", "FUA_PT002C"}, vectors)

	runs, err := st.ListRuns(context.Background(), store.RunFilter{Status: model.RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, r := range runs {
		assert.Equal(t, "potential", r.Scenario)
		require.NotNil(t, r.Result)
		assert.Equal(t, "potential_"+r.City, r.Result.Outputs["potential"])
	}
}

func TestRun_FailureDoesNotStopBatch(t *testing.T) {
	rec := enginetest.New()
	rec.Handle("r.mapcalc", func(c engine.Command) (string, error) {
		if strings.Contains(c.Param("expression"), "forest_BAD") {
			return "", errors.New("raster map <forest_BAD> not found")
		}
		return "", nil
	})
	st := testStore(t)
	b := New(rec.Engine(), testConfig(1), st)

	sum, err := b.Run(context.Background(), cities.ParseCodes("BAD,GOOD"), Options{
		Scenario: testScenario(t, potentialScenario),
		TmpDir:   t.TempDir(),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Succeeded)
	assert.Equal(t, int64(1), sum.Failed)
	assert.Contains(t, sum.Failures["BAD"], "forest_BAD")

	failed, err := st.ListRuns(context.Background(), store.RunFilter{Status: model.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "BAD", failed[0].City)
	assert.Contains(t, failed[0].Error, "forest_BAD")

	// The region of the failed city is removed as well.
	var removedRegions []string
	for _, c := range rec.Find("g.remove") {
		if c.Param("type") == "region" {
			removedRegions = append(removedRegions, c.Param("name"))
		}
	}
	assert.Len(t, removedRegions, 2)
}

func TestRun_CityExtent(t *testing.T) {
	rec := enginetest.New()
	b := New(rec.Engine(), testConfig(1), nil)

	src := cities.Static{{Code: "LU001C", Extent: &cities.Extent{North: 200, South: 100, East: 50, West: 0}}}
	_, err := b.Run(context.Background(), src, Options{
		Scenario: testScenario(t, potentialScenario),
		TmpDir:   t.TempDir(),
	})
	require.NoError(t, err)

	regions := rec.Find("g.region")
	require.Len(t, regions, 1)
	assert.Empty(t, regions[0].Param("vector"))
	assert.Equal(t, "200", regions[0].Param("n"))
	assert.Equal(t, "0", regions[0].Param("w"))
}

func TestRun_Limit(t *testing.T) {
	rec := enginetest.New()
	b := New(rec.Engine(), testConfig(1), nil)

	sum, err := b.Run(context.Background(), cities.ParseCodes("A,B,C"), Options{
		Scenario: testScenario(t, potentialScenario),
		Limit:    2,
		TmpDir:   t.TempDir(),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.Succeeded)
	assert.Len(t, rec.Find("g.region"), 2)
}

func TestRun_NoCities(t *testing.T) {
	rec := enginetest.New()
	b := New(rec.Engine(), testConfig(1), nil)

	sum, err := b.Run(context.Background(), cities.Static{}, Options{Scenario: testScenario(t, potentialScenario)})
	require.NoError(t, err)
	assert.Zero(t, sum.Succeeded)
	assert.Empty(t, rec.Commands())
}

func TestValidate(t *testing.T) {
	masked := testScenario(t, potentialScenario)
	masked.Options.Mask = "city"

	tests := []struct {
		name        string
		concurrency int
		opts        Options
		wantErr     string
	}{
		{"no scenario", 1, Options{}, "no scenario"},
		{"mask concurrently", 2, Options{Scenario: masked}, "mask"},
		{"mask sequentially", 1, Options{Scenario: masked}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(enginetest.New().Engine(), testConfig(tt.concurrency), nil)
			err := b.Validate(tt.opts)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRun_ConcurrentLakesLeavesMaskAlone(t *testing.T) {
	rec := enginetest.New()
	cfg := testConfig(4)
	cfg.Recreation.WaterCoefficients = "euclidean,1,30,0.008,1"
	b := New(rec.Engine(), cfg, testStore(t))

	opts := Options{
		Scenario: testScenario(t, `
name: lakes
options:
  lakes: lakes_{city}
  potential: potential_{city}
`),
		TmpDir: t.TempDir(),
	}
	require.NoError(t, b.Validate(opts))

	sum, err := b.Run(context.Background(), cities.ParseCodes("A,B,C"), opts)
	require.NoError(t, err)
	assert.Equal(t, int64(3), sum.Succeeded)
	assert.Zero(t, sum.Failed)

	assert.Empty(t, rec.Find("r.mask"))
	for _, city := range []string{"A", "B", "C"} {
		var found bool
		for _, e := range rec.Expressions() {
			if strings.Contains(e, "= if(isnull(lakes_"+city+"), ") {
				found = true
			}
		}
		assert.True(t, found, city)
	}
}

func TestRun_Cancelled(t *testing.T) {
	rec := enginetest.New()
	b := New(rec.Engine(), testConfig(1), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Run(ctx, cities.ParseCodes("A"), Options{
		Scenario: testScenario(t, potentialScenario),
		TmpDir:   t.TempDir(),
	})
	assert.Error(t, err)
}

type flakySource struct {
	calls int
	fail  error
}

func (f *flakySource) Cities(context.Context, string) ([]cities.City, error) {
	f.calls++
	if f.calls == 1 {
		return nil, f.fail
	}
	return []cities.City{{Code: "PT001C"}}, nil
}

func TestRun_RetriesCityListing(t *testing.T) {
	rec := enginetest.New()
	b := New(rec.Engine(), testConfig(1), nil)
	b.Retry = resilience.Policy{Attempts: 2, InitialBackoff: time.Millisecond}

	src := &flakySource{fail: errors.New("dial tcp: connection reset by peer")}
	sum, err := b.Run(context.Background(), src, Options{
		Scenario: testScenario(t, potentialScenario),
		TmpDir:   t.TempDir(),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
	assert.Equal(t, int64(1), sum.Succeeded)
}

func TestRun_CityListingPermanentError(t *testing.T) {
	b := New(enginetest.New().Engine(), testConfig(1), nil)
	b.Retry = resilience.Policy{Attempts: 3, InitialBackoff: time.Millisecond}

	src := &flakySource{fail: errors.New(`relation "fua" does not exist`)}
	_, err := b.Run(context.Background(), src, Options{Scenario: testScenario(t, potentialScenario)})
	require.Error(t, err)
	assert.Equal(t, 1, src.calls)
}
