// Package engine drives the external raster engine (GRASS GIS). Every raster
// computation happens in engine modules; this package only builds their
// command lines, runs them and parses what they print.
package engine

import (
	"context"
	"strings"
)

// Param is one key=value module parameter.
type Param struct {
	Key   string
	Value string
}

// Command is a single raster engine module invocation.
type Command struct {
	Module    string
	Flags     string
	Params    []Param
	Stdin     string
	Overwrite bool
	Quiet     bool
	// Env is appended to the process environment, e.g. WIND_OVERRIDE.
	Env []string
}

// Runner executes a Command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, cmd Command) (string, error)
}

// Param returns the value of the named parameter, or "" if absent.
func (c Command) Param(key string) string {
	for _, p := range c.Params {
		if p.Key == key {
			return p.Value
		}
	}
	return ""
}

// Args renders the module arguments in GRASS syntax.
func (c Command) Args() []string {
	args := make([]string, 0, len(c.Params)+3)
	if c.Flags != "" {
		args = append(args, "-"+c.Flags)
	}
	for _, p := range c.Params {
		args = append(args, p.Key+"="+p.Value)
	}
	if c.Overwrite {
		args = append(args, "--overwrite")
	}
	if c.Quiet {
		args = append(args, "--quiet")
	}
	return args
}

// String renders the command as it would be typed in a GRASS shell.
func (c Command) String() string {
	return strings.Join(append([]string{c.Module}, c.Args()...), " ")
}

func cmd(module string, params ...string) Command {
	c := Command{Module: module}
	for i := 0; i+1 < len(params); i += 2 {
		if params[i+1] == "" {
			continue
		}
		c.Params = append(c.Params, Param{Key: params[i], Value: params[i+1]})
	}
	return c
}

func (c Command) withFlags(flags string) Command {
	c.Flags = flags
	return c
}

func (c Command) overwrite() Command {
	c.Overwrite = true
	c.Quiet = true
	return c
}
