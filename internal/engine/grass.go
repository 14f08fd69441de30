package engine

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/estimap/recreation/internal/config"
)

// GRASS runs engine modules as subprocesses.
type GRASS struct {
	binPath    string
	mapsetPath string
	direct     bool
}

// NewGRASS creates a GRASS runner. If binPath is empty, "grass" is used.
// With direct set, modules are run as plain binaries and are expected to
// find their session through the inherited environment (GISBASE, GISRC).
func NewGRASS(cfg config.GrassConfig) *GRASS {
	binPath := cfg.Binary
	if binPath == "" {
		binPath = "grass"
	}
	return &GRASS{
		binPath:    binPath,
		mapsetPath: cfg.MapsetPath(),
		direct:     cfg.Direct || os.Getenv("GISRC") != "",
	}
}

// argv returns the executable and its arguments for c.
func (g *GRASS) argv(c Command) (string, []string) {
	if g.direct {
		return c.Module, c.Args()
	}
	args := make([]string, 0, len(c.Params)+5)
	if g.mapsetPath != "" {
		args = append(args, g.mapsetPath)
	}
	args = append(args, "--exec", c.Module)
	args = append(args, c.Args()...)
	return g.binPath, args
}

// Run executes the module and returns stdout.
func (g *GRASS) Run(ctx context.Context, c Command) (string, error) {
	name, args := g.argv(c)
	ex := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	ex.Stdout = &stdout
	ex.Stderr = &stderr
	if c.Stdin != "" {
		ex.Stdin = strings.NewReader(c.Stdin)
	}
	if len(c.Env) > 0 {
		ex.Env = append(os.Environ(), c.Env...)
	}

	zap.L().Debug("engine: run", zap.String("command", c.String()))

	if err := ex.Run(); err != nil {
		return "", eris.Wrapf(err, "engine: %s failed: %s", c.Module, strings.TrimSpace(stderr.String()))
	}

	return stdout.String(), nil
}
