package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estimap/recreation/internal/batch"
	"github.com/estimap/recreation/internal/cities"
	"github.com/estimap/recreation/internal/config"
)

func TestOpenCitySource_Static(t *testing.T) {
	src, closeSource, err := openCitySource(context.Background(), config.CitiesConfig{
		Source: "static",
		Codes:  []string{"PT001C", " PT002C "},
	})
	require.NoError(t, err)
	defer closeSource()

	list, err := src.Cities(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []cities.City{{Code: "PT001C"}, {Code: "PT002C"}}, list)
}

func TestOpenCitySource_Shapefile(t *testing.T) {
	src, closeSource, err := openCitySource(context.Background(), config.CitiesConfig{
		Source:     "shapefile",
		Shapefile:  "fua.shp",
		CodeColumn: "urau_code",
	})
	require.NoError(t, err)
	defer closeSource()
	assert.IsType(t, &cities.Shapefile{}, src)
}

func TestOpenCitySource_Unknown(t *testing.T) {
	_, _, err := openCitySource(context.Background(), config.CitiesConfig{Source: "csv"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv")
}

func TestFormatBatchSummary(t *testing.T) {
	var buf bytes.Buffer
	formatBatchSummary(&buf, batch.Summary{
		Succeeded: 3,
		Failed:    2,
		Failures: map[string]string{
			"PT002C": "region failed",
			"ES001C": "map not found",
		},
	})

	out := buf.String()
	assert.Contains(t, out, "Succeeded: 3\n")
	assert.Contains(t, out, "Failed: 2\n")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("ES001C")), bytes.Index(buf.Bytes(), []byte("PT002C")))
}
