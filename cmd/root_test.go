package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"run", "batch", "expr", "runs", "cleanup", "info"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "estimap", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRunCommand_OptionFlags(t *testing.T) {
	for _, name := range []string{
		"land", "landuse", "suitability-scores", "lakes", "coastline", "coast-geomorphology",
		"bathing-water", "protected", "artificial", "roads", "mask", "potential", "opportunity",
		"spectrum", "demand", "unmet", "flow", "supply", "use", "workbook", "metric", "units",
		"landuse-extent", "filter", "keep-temporary", "print-only", "scenario", "city",
	} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), "run should have --%s", name)
	}
}

func TestBatchCommand_Flags(t *testing.T) {
	flag := batchCmd.Flags().Lookup("limit")
	require.NotNil(t, flag, "batch command should have --limit flag")
	assert.Equal(t, "0", flag.DefValue)

	require.NotNil(t, batchCmd.Flags().Lookup("scenario"))
	require.NotNil(t, batchCmd.Flags().Lookup("cities"))
}

func TestCleanupCommand_Flags(t *testing.T) {
	require.NotNil(t, cleanupCmd.Flags().Lookup("pid"))
}
