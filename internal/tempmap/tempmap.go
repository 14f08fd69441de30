// Package tempmap names the intermediate maps and rule files of a run and
// removes them when the run ends.
package tempmap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Remover deletes maps from the raster database.
type Remover interface {
	Remove(ctx context.Context, kind string, names ...string) error
	RemovePattern(ctx context.Context, kind, pattern string) error
}

// Registry hands out temporary names unique to one run and tracks what
// must be removed afterwards.
type Registry struct {
	prefix string
	dir    string

	mu    sync.Mutex
	maps  map[string][]string
	files []string
}

// New creates a registry for the current process. Rule files are written
// under dir (os.TempDir when empty).
func New(dir string) *Registry {
	if dir == "" {
		dir = os.TempDir()
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return &Registry{
		prefix: fmt.Sprintf("%s_%s", PIDPrefix(os.Getpid()), id),
		dir:    dir,
		maps:   make(map[string][]string),
	}
}

// PIDPrefix is the name prefix shared by all temporary maps of a process.
func PIDPrefix(pid int) string {
	return fmt.Sprintf("tmp_%d", pid)
}

// Prefix returns the name prefix of this registry's maps.
func (r *Registry) Prefix() string { return r.prefix }

// Dir returns the directory of the temporary files.
func (r *Registry) Dir() string { return r.dir }

// Name returns the temporary name for name.
func (r *Registry) Name(name string) string {
	return r.prefix + "_" + Sanitize(name)
}

// Track marks maps of the given kind (raster, vector, region) for removal.
func (r *Registry) Track(kind string, names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maps[kind] = append(r.maps[kind], names...)
}

// WriteFile writes content to a temporary file named after name and
// tracks it for removal.
func (r *Registry) WriteFile(name, content string) (string, error) {
	path := filepath.Join(r.dir, r.Name(name))
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return "", eris.Wrapf(err, "tempmap: write %s", path)
	}
	r.mu.Lock()
	r.files = append(r.files, path)
	r.mu.Unlock()
	return path, nil
}

// Files returns the tracked temporary files.
func (r *Registry) Files() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.files...)
}

// Cleanup removes all temporary rasters of the run, the tracked maps and
// the rule files. With keep set, nothing is removed. All removals are
// attempted; the returned error joins the failures.
func (r *Registry) Cleanup(ctx context.Context, rm Remover, keep bool) error {
	r.mu.Lock()
	maps := make(map[string][]string, len(r.maps))
	for k, v := range r.maps {
		maps[k] = append([]string(nil), v...)
	}
	files := append([]string(nil), r.files...)
	r.mu.Unlock()

	if keep {
		zap.L().Info("keeping temporary maps",
			zap.String("pattern", r.prefix+"_*"),
			zap.Int("files", len(files)),
		)
		return nil
	}

	var errs []error
	if err := rm.RemovePattern(ctx, "raster", r.prefix+"_*"); err != nil {
		errs = append(errs, eris.Wrapf(err, "tempmap: remove %s_*", r.prefix))
	}
	for _, kind := range []string{"raster", "vector", "region"} {
		if err := rm.Remove(ctx, kind, maps[kind]...); err != nil {
			errs = append(errs, eris.Wrapf(err, "tempmap: remove %s maps", kind))
		}
	}
	for _, f := range files {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			errs = append(errs, eris.Wrapf(err, "tempmap: remove %s", f))
		}
	}

	r.mu.Lock()
	r.maps = make(map[string][]string)
	r.files = nil
	r.mu.Unlock()

	zap.L().Debug("removed temporary maps", zap.String("pattern", r.prefix+"_*"))
	return errors.Join(errs...)
}

// CleanupProcess removes the temporary rasters and regions left behind by
// the process pid.
func CleanupProcess(ctx context.Context, rm Remover, pid int) error {
	pattern := PIDPrefix(pid) + "_*"
	var errs []error
	for _, kind := range []string{"raster", "region"} {
		if err := rm.RemovePattern(ctx, kind, pattern); err != nil {
			errs = append(errs, eris.Wrapf(err, "tempmap: remove %s %s", kind, pattern))
		}
	}
	return errors.Join(errs...)
}

var nonWord = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// Sanitize turns s into a legal map name part: diacritics are stripped and
// runs of other characters become a single underscore.
func Sanitize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = nonWord.ReplaceAllString(out, "_")
	return strings.Trim(out, "_")
}
