// Package enginetest provides a recording raster engine runner for tests.
package enginetest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/estimap/recreation/internal/engine"
)

// Handler produces the output of a recorded command.
type Handler func(cmd engine.Command) (string, error)

// Recorder is an engine.Runner that records every command and answers
// from handlers registered per module.
type Recorder struct {
	mu       sync.Mutex
	commands []engine.Command
	handlers map[string]Handler
}

// New creates an empty Recorder.
func New() *Recorder {
	return &Recorder{handlers: make(map[string]Handler)}
}

// Engine returns an engine backed by the recorder.
func (r *Recorder) Engine() *engine.Engine {
	return engine.New(r)
}

// Handle registers a handler for a module, replacing any previous one.
func (r *Recorder) Handle(module string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[module] = h
}

// Output makes a module always print out.
func (r *Recorder) Output(module, out string) {
	r.Handle(module, func(engine.Command) (string, error) { return out, nil })
}

// Fail makes a module always fail.
func (r *Recorder) Fail(module string, err error) {
	r.Handle(module, func(engine.Command) (string, error) { return "", err })
}

// Univariate answers r.univar -g for a map with the given statistics.
// Other maps fall through to any previously registered handler.
func (r *Recorder) Univariate(raster string, n int64, min, max, sum float64) {
	r.mu.Lock()
	prev := r.handlers["r.univar"]
	r.mu.Unlock()

	r.Handle("r.univar", func(c engine.Command) (string, error) {
		if c.Param("map") == raster && c.Flags == "g" {
			if n == 0 {
				return "n=0\nnull_cells=100\ncells=100\n", nil
			}
			mean := sum / float64(n)
			return fmt.Sprintf("n=%d\nnull_cells=0\ncells=%d\nmin=%g\nmax=%g\nrange=%g\nmean=%g\nmean_of_abs=%g\nstddev=0.1\nvariance=0.01\ncoeff_var=1\nsum=%g\n",
				n, n, min, max, max-min, mean, mean, sum), nil
		}
		if prev != nil {
			return prev(c)
		}
		if c.Flags == "g" {
			return "n=1\nmin=0\nmax=1\nmean=0.5\nstddev=0\nvariance=0\nsum=1\n", nil
		}
		return "", nil
	})
}

// Run implements engine.Runner.
func (r *Recorder) Run(_ context.Context, cmd engine.Command) (string, error) {
	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	h := r.handlers[cmd.Module]
	r.mu.Unlock()

	if h != nil {
		return h(cmd)
	}
	if cmd.Module == "r.univar" && cmd.Flags == "g" {
		return "n=1\nmin=0\nmax=1\nmean=0.5\nstddev=0\nvariance=0\nsum=1\n", nil
	}
	if cmd.Module == "r.info" {
		return "datatype=CELL\nnsres=100\newres=100\nrows=10\ncols=10\n", nil
	}
	return "", nil
}

// Commands returns a copy of the recorded commands.
func (r *Recorder) Commands() []engine.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]engine.Command, len(r.commands))
	copy(out, r.commands)
	return out
}

// Modules returns the module names of the recorded commands, in order.
func (r *Recorder) Modules() []string {
	var mods []string
	for _, c := range r.Commands() {
		mods = append(mods, c.Module)
	}
	return mods
}

// Find returns the recorded commands of a module.
func (r *Recorder) Find(module string) []engine.Command {
	var found []engine.Command
	for _, c := range r.Commands() {
		if c.Module == module {
			found = append(found, c)
		}
	}
	return found
}

// Expressions returns the expression parameter of every r.mapcalc call.
func (r *Recorder) Expressions() []string {
	var exprs []string
	for _, c := range r.Find("r.mapcalc") {
		exprs = append(exprs, c.Param("expression"))
	}
	return exprs
}

// Result returns the expression whose left-hand side is result, or "".
func (r *Recorder) Result(result string) string {
	for _, e := range r.Expressions() {
		lhs, rhs, ok := strings.Cut(e, " = ")
		if ok && lhs == result {
			return rhs
		}
	}
	return ""
}
