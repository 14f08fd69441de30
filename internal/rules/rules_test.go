package rules

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memWriter struct {
	files map[string]string
}

func (m *memWriter) WriteFile(name, content string) (string, error) {
	if m.files == nil {
		m.files = make(map[string]string)
	}
	path := "/tmp/rules/" + name
	m.files[path] = content
	return path, nil
}

func TestLines(t *testing.T) {
	lines := Lines("# header\n1:2:3, 4:5:6\n\nend\n")
	assert.Equal(t, []string{"1:2:3", "4:5:6"}, lines)
}

func TestParseRecode_Defaults(t *testing.T) {
	for name, text := range map[string]string{
		"suitability": SuitabilityScores,
		"protected":   ProtectedAreaScores,
		"proximity":   ProximityDistances,
		"spectrum":    SpectrumDistances,
		"potential":   PotentialCategories,
		"opportunity": OpportunityCategories,
	} {
		_, err := ParseRecode(text)
		assert.NoError(t, err, name)
	}
}

func TestParseRecode_Suitability(t *testing.T) {
	rs, err := ParseRecode(SuitabilityScores)
	require.NoError(t, err)
	assert.Len(t, rs, 45)

	v, ok := rs.Apply(10)
	require.True(t, ok)
	assert.InDelta(t, 1, v, 1e-9)

	v, ok = rs.Apply(32)
	require.True(t, ok)
	assert.InDelta(t, 0.7, v, 1e-9)
}

func TestParseRecode_OpenBounds(t *testing.T) {
	rs, err := ParseRecode(ProximityDistances)
	require.NoError(t, err)

	assert.True(t, math.IsInf(rs[4].High, 1))

	v, ok := rs.Apply(750)
	require.True(t, ok)
	assert.InDelta(t, 2, v, 1e-9)

	v, ok = rs.Apply(20000)
	require.True(t, ok)
	assert.InDelta(t, 5, v, 1e-9)

	_, ok = rs.Apply(-1)
	assert.False(t, ok)
}

func TestParseRecode_FirstMatchWins(t *testing.T) {
	rs, err := ParseRecode(SpectrumDistances)
	require.NoError(t, err)

	v, _ := rs.Apply(1000)
	assert.InDelta(t, 1, v, 1e-9)
	v, _ = rs.Apply(4000.5)
	assert.InDelta(t, 5, v, 1e-9)
}

func TestParseRecode_Linear(t *testing.T) {
	rs, err := ParseRecode("0:10:0:1")
	require.NoError(t, err)
	require.NotNil(t, rs[0].NewHigh)

	v, ok := rs.Apply(5)
	require.True(t, ok)
	assert.InDelta(t, 0.5, v, 1e-9)
}

func TestParseRecode_Errors(t *testing.T) {
	for _, text := range []string{"", "1:2", "a:2:3", "1:b:3", "5:1:3", "1:2:x", "1:2:3:y", "1:2:3:4:5"} {
		_, err := ParseRecode(text)
		assert.Error(t, err, text)
	}
}

func TestRecodeRules_Classes(t *testing.T) {
	rs, err := ParseRecode(PotentialCategories)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, rs.Classes())
}

func TestParseLabels(t *testing.T) {
	labels, err := ParseLabels(SpectrumLabels)
	require.NoError(t, err)
	assert.Len(t, labels, 9)
	assert.Equal(t, "High provision (near)", labels[9])

	labels, err = ParseLabels(SpectrumDistanceLabels)
	require.NoError(t, err)
	assert.Equal(t, ">4 km", labels[5])

	_, err = ParseLabels("one:Low")
	assert.Error(t, err)
	_, err = ParseLabels("no separator")
	assert.Error(t, err)
}

func TestIsInline(t *testing.T) {
	assert.True(t, IsInline("0:1:1,1:*:2"))
	assert.True(t, IsInline("1 = 1 Urban"))
	assert.False(t, IsInline(""))
	assert.False(t, IsInline("rules.txt"))

	path := filepath.Join(t.TempDir(), "a:b.rules")
	require.NoError(t, os.WriteFile(path, []byte("1:1:1\n"), 0o600))
	assert.False(t, IsInline(path))
}

func TestResolve_Inline(t *testing.T) {
	w := &memWriter{}
	path, err := Resolve(w, "0:500:1,500:*:2", "", "roads_distances")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/rules/roads_distances", path)
	assert.Equal(t, "0:500:1\n500:*:2\n", w.files[path])
}

func TestResolve_Default(t *testing.T) {
	w := &memWriter{}
	path, err := Resolve(w, "", PotentialCategories, "potential_categories")
	require.NoError(t, err)
	assert.Equal(t, "0.0:0.2:1\n0.2:0.4:2\n0.4:*:3\n", w.files[path])
}

func TestResolve_File(t *testing.T) {
	w := &memWriter{}
	path := filepath.Join(t.TempDir(), "scores.rules")
	require.NoError(t, os.WriteFile(path, []byte("1:1:0.5\n"), 0o600))

	got, err := Resolve(w, path, SuitabilityScores, "suitability")
	require.NoError(t, err)
	assert.Equal(t, path, got)
	assert.Empty(t, w.files)
}

func TestResolve_Errors(t *testing.T) {
	w := &memWriter{}
	_, err := Resolve(w, "", "", "nothing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no rules given for nothing")

	_, err = Resolve(w, "/does/not/exist", "", "missing")
	require.Error(t, err)
}

func TestResolveLabels(t *testing.T) {
	w := &memWriter{}
	path, err := ResolveLabels(w, SpectrumLabels, "spectrum_labels")
	require.NoError(t, err)
	assert.Contains(t, w.files[path], "5:Moderate provision (midrange)\n")

	_, err = ResolveLabels(w, "x:y", "bad")
	assert.Error(t, err)
}

func TestParseCoefficients(t *testing.T) {
	c, err := ParseCoefficients(WaterCoefficients)
	require.NoError(t, err)
	assert.Equal(t, Coefficients{Metric: "euclidean", Constant: 1, Kappa: 30, Alpha: 0.008, Score: 1, HasScore: true}, c)
	assert.Equal(t, WaterCoefficients, c.String())

	c, err = ParseCoefficients(BathingCoefficients)
	require.NoError(t, err)
	assert.False(t, c.HasScore)
	assert.InDelta(t, 0.01101, c.Alpha, 1e-12)
	assert.Equal(t, BathingCoefficients, c.String())
}

func TestParseCoefficients_Errors(t *testing.T) {
	for _, text := range []string{
		"euclidean,1,30",
		"euclidean,1,30,0.008,1,2",
		"chebyshev,1,30,0.008",
		"euclidean,one,30,0.008",
		"euclidean,1,-2,0.008",
	} {
		_, err := ParseCoefficients(text)
		assert.Error(t, err, text)
	}
}
