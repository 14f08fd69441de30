package spectrum

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estimap/recreation/internal/engine/enginetest"
	"github.com/estimap/recreation/internal/rules"
	"github.com/estimap/recreation/internal/tempmap"
)

func newSpectrum(t *testing.T) (*Spectrum, *enginetest.Recorder) {
	t.Helper()
	rec := enginetest.New()
	return New(rec.Engine(), tempmap.New(t.TempDir())), rec
}

func TestClassify(t *testing.T) {
	s, rec := newSpectrum(t)
	require.NoError(t, s.Classify(context.Background(), "potential", "/tmp/cats", "potential_classes"))

	c := rec.Find("r.recode")[0]
	assert.Equal(t, "potential", c.Param("input"))
	assert.Equal(t, "potential_classes", c.Param("output"))
	assert.Equal(t, "/tmp/cats", c.Param("rules"))
}

func TestCombine(t *testing.T) {
	s, rec := newSpectrum(t)
	require.NoError(t, s.Combine(context.Background(), "p", "o", "spectrum"))

	assert.Equal(t, []string{"r.mapcalc", "r.category", "r.support", "r.colors"}, rec.Modules())
	assert.True(t, strings.HasPrefix(rec.Result("spectrum"), "if(p == 1 && o == 1, 1, "))

	labels := rec.Find("r.category")[0].Param("rules")
	data, err := os.ReadFile(labels)
	require.NoError(t, err)
	assert.Contains(t, string(data), "9:High provision (near)")

	assert.Equal(t, SpectrumTitle, rec.Find("r.support")[0].Param("title"))
	assert.Equal(t, rules.SpectrumColors, rec.Find("r.colors")[0].Stdin)
}

func TestExport(t *testing.T) {
	s, rec := newSpectrum(t)
	out, err := s.Export(context.Background(), Export{
		Input:     "tmp_potential",
		Output:    "potential",
		Title:     PotentialTitle,
		Labels:    rules.PotentialLabels,
		Colors:    rules.PotentialColors,
		Timestamp: "2018",
	})
	require.NoError(t, err)
	assert.Equal(t, "potential", out)
	assert.Equal(t, []string{"r.mapcalc", "r.category", "r.support", "r.colors", "r.timestamp"}, rec.Modules())
	assert.Equal(t, "tmp_potential", rec.Result("potential"))
	assert.Equal(t, "2018", rec.Find("r.timestamp")[0].Param("date"))
}

func TestExport_NoOutput(t *testing.T) {
	s, rec := newSpectrum(t)
	out, err := s.Export(context.Background(), Export{Input: "tmp_opportunity"})
	require.NoError(t, err)
	assert.Equal(t, "tmp_opportunity", out)
	assert.Empty(t, rec.Commands())
}

func TestExport_NoLabelsOrTimestamp(t *testing.T) {
	s, rec := newSpectrum(t)
	_, err := s.Export(context.Background(), Export{Input: "a", Output: "b", Title: "B"})
	require.NoError(t, err)
	assert.Equal(t, []string{"r.mapcalc", "r.support"}, rec.Modules())
}
