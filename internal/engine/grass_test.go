package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estimap/recreation/internal/config"
)

func TestNewGRASS_Defaults(t *testing.T) {
	t.Setenv("GISRC", "")
	g := NewGRASS(config.GrassConfig{GISDBase: "/grassdata", Location: "eu", Mapset: "recreation"})
	assert.Equal(t, "grass", g.binPath)
	assert.Equal(t, "/grassdata/eu/recreation", g.mapsetPath)
	assert.False(t, g.direct)
}

func TestNewGRASS_DirectInsideSession(t *testing.T) {
	t.Setenv("GISRC", "/home/user/.grass8/rc")
	g := NewGRASS(config.GrassConfig{Binary: "/usr/bin/grass"})
	assert.True(t, g.direct)
}

func TestGRASS_ArgvExec(t *testing.T) {
	g := &GRASS{binPath: "grass", mapsetPath: "/grassdata/eu/recreation"}
	c := cmd("r.grow.distance", "input", "lakes", "distance", "d", "metric", "euclidean").overwrite()

	name, args := g.argv(c)
	assert.Equal(t, "grass", name)
	assert.Equal(t, []string{
		"/grassdata/eu/recreation", "--exec", "r.grow.distance",
		"input=lakes", "distance=d", "metric=euclidean", "--overwrite", "--quiet",
	}, args)
}

func TestGRASS_ArgvDirect(t *testing.T) {
	g := &GRASS{binPath: "grass", direct: true}
	c := cmd("r.univar", "map", "population").withFlags("g")

	name, args := g.argv(c)
	assert.Equal(t, "r.univar", name)
	assert.Equal(t, []string{"-g", "map=population"}, args)
}

func TestGRASS_RunCapturesStdout(t *testing.T) {
	g := &GRASS{direct: true}
	out, err := g.Run(context.Background(), Command{Module: "echo", Params: []Param{{Key: "n", Value: "3"}}})
	require.NoError(t, err)
	assert.Equal(t, "n=3\n", out)
}

func TestGRASS_RunFailure(t *testing.T) {
	g := &GRASS{direct: true}
	_, err := g.Run(context.Background(), Command{Module: "false"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine: false failed")
}

func TestCommand_String(t *testing.T) {
	c := cmd("g.remove", "type", "raster", "name", "", "pattern", "tmp.42*").withFlags("f")
	assert.Equal(t, "g.remove -f type=raster pattern=tmp.42*", c.String())
	assert.Equal(t, "", c.Param("name"))
}
