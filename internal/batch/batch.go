// Package batch runs a scenario for many cities concurrently, each in its
// own computational region.
package batch

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/estimap/recreation/internal/cities"
	"github.com/estimap/recreation/internal/config"
	"github.com/estimap/recreation/internal/engine"
	"github.com/estimap/recreation/internal/model"
	"github.com/estimap/recreation/internal/pipeline"
	"github.com/estimap/recreation/internal/resilience"
	"github.com/estimap/recreation/internal/scenario"
	"github.com/estimap/recreation/internal/store"
	"github.com/estimap/recreation/internal/tempmap"
)

// Options configures a batch.
type Options struct {
	Scenario    *scenario.Scenario
	MemberState string
	// Limit caps the number of cities; 0 means all.
	Limit int
	// TmpDir holds the rule files of the runs.
	TmpDir string
}

// Summary counts the outcome of a batch.
type Summary struct {
	Succeeded int64
	Failed    int64
	// Failures maps city codes to their error.
	Failures map[string]string
}

// Batch runs scenarios per city.
type Batch struct {
	eng   *engine.Engine
	cfg   config.Config
	store store.Store

	// Retry applies to listing cities.
	Retry resilience.Policy
	// Stdout receives the tables of print-only scenarios.
	Stdout io.Writer
}

// New creates a Batch. st may be nil, in which case runs are not recorded.
func New(eng *engine.Engine, cfg config.Config, st store.Store) *Batch {
	retry := resilience.FromConfig(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs)
	retry.OnRetry = resilience.LogRetries("list cities")
	return &Batch{eng: eng, cfg: cfg, store: st, Retry: retry, Stdout: io.Discard}
}

// Validate rejects batches whose scenario cannot run concurrently.
func (b *Batch) Validate(o Options) error {
	if o.Scenario == nil {
		return eris.New("batch: no scenario")
	}
	if o.Scenario.Options.Mask != "" && b.cfg.Batch.MaxConcurrentCities > 1 {
		return eris.New("batch: the mask option sets a mapset-wide MASK and requires max_concurrent_cities = 1")
	}
	if o.Scenario.Options.PrintOnly && b.cfg.Batch.MaxConcurrentCities > 1 {
		return eris.New("batch: print_only output would interleave; use max_concurrent_cities = 1")
	}
	if b.cfg.Batch.Resolution <= 0 {
		return eris.New("batch: resolution must be > 0")
	}
	return nil
}

// Run lists the cities of src and runs the scenario for each. Failed
// cities are logged and recorded without stopping the others; only
// cancellation aborts the batch.
func (b *Batch) Run(ctx context.Context, src cities.Source, o Options) (Summary, error) {
	if err := b.Validate(o); err != nil {
		return Summary{}, err
	}

	list, err := resilience.Do(ctx, b.Retry, func(ctx context.Context) ([]cities.City, error) {
		return src.Cities(ctx, o.MemberState)
	})
	if err != nil {
		return Summary{}, eris.Wrap(err, "batch: list cities")
	}
	if o.Limit > 0 && len(list) > o.Limit {
		list = list[:o.Limit]
	}
	if len(list) == 0 {
		zap.L().Info("no cities to process", zap.String("member_state", o.MemberState))
		return Summary{}, nil
	}

	concurrency := b.cfg.Batch.MaxConcurrentCities
	if concurrency < 1 {
		concurrency = 1
	}
	limiter := rate.NewLimiter(rate.Limit(b.cfg.Batch.StartRate), 1)
	if b.cfg.Batch.StartRate <= 0 {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}

	zap.L().Info("processing batch",
		zap.String("scenario", o.Scenario.Name),
		zap.Int("cities", len(list)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var (
		succeeded, failed atomic.Int64
		mu                sync.Mutex
		failures          = make(map[string]string)
	)

	for _, city := range list {
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				return err
			}
			log := zap.L().With(zap.String("city", city.Code))

			if err := b.runCity(gctx, city, o); err != nil {
				failed.Add(1)
				mu.Lock()
				failures[city.Code] = err.Error()
				mu.Unlock()
				log.Error("city failed", zap.Error(err))
				if gctx.Err() != nil {
					return gctx.Err()
				}
				return nil // don't abort batch on individual failure
			}
			succeeded.Add(1)
			log.Info("city complete")
			return nil
		})
	}

	sum := Summary{Failures: failures}
	if err := g.Wait(); err != nil {
		sum.Succeeded, sum.Failed = succeeded.Load(), failed.Load()
		return sum, eris.Wrap(err, "batch processing")
	}
	sum.Succeeded, sum.Failed = succeeded.Load(), failed.Load()

	zap.L().Info("batch complete",
		zap.Int64("succeeded", sum.Succeeded),
		zap.Int64("failed", sum.Failed),
	)
	return sum, nil
}

// Region describes the computational region of a city: the city's extent
// when known, otherwise the configured region vector.
func (b *Batch) Region(city cities.City) engine.Region {
	r := engine.Region{Res: b.cfg.Batch.Resolution, Align: true}
	if city.Extent != nil {
		r.North, r.South = city.Extent.North, city.Extent.South
		r.East, r.West = city.Extent.East, city.Extent.West
		return r
	}
	r.Vector = strings.ReplaceAll(b.cfg.Batch.RegionVector, scenario.CityPlaceholder, city.Code)
	return r
}

func (b *Batch) runCity(ctx context.Context, city cities.City, o Options) error {
	var runID string
	if b.store != nil {
		run, err := b.store.CreateRun(ctx, o.Scenario.Name, city.Code)
		if err != nil {
			return eris.Wrap(err, "batch: record run")
		}
		runID = run.ID
		if err := b.store.UpdateRunStatus(ctx, runID, model.RunStatusRunning); err != nil {
			return eris.Wrap(err, "batch: record run")
		}
	}

	start := time.Now()
	s := o.Scenario.Expand(city.Code, city.MemberState)
	tmp := tempmap.New(o.TmpDir)
	defer func() {
		if cerr := tmp.Cleanup(context.WithoutCancel(ctx), b.eng, s.Options.KeepTemporary); cerr != nil {
			zap.L().Warn("cleanup of temporary maps failed", zap.String("city", city.Code), zap.Error(cerr))
		}
	}()

	opts, res, err := b.execute(ctx, city, s, tmp)
	if b.store == nil {
		return err
	}
	// Record the outcome even if the batch was cancelled.
	rctx := context.WithoutCancel(ctx)
	if err != nil {
		if ferr := b.store.FailRun(rctx, runID, err); ferr != nil {
			zap.L().Warn("recording failed run", zap.String("run", runID), zap.Error(ferr))
		}
		return err
	}
	if cerr := b.store.CompleteRun(rctx, runID, res.Summary(time.Since(start), opts)); cerr != nil {
		zap.L().Warn("recording completed run", zap.String("run", runID), zap.Error(cerr))
	}
	return nil
}

func (b *Batch) execute(ctx context.Context, city cities.City, s *scenario.Scenario, tmp *tempmap.Registry) (pipeline.Options, pipeline.Result, error) {
	region := tmp.Name("region_" + city.Code)
	if err := b.eng.SaveRegion(ctx, region, b.Region(city)); err != nil {
		return s.Options, pipeline.Result{}, eris.Wrapf(err, "batch: region of %s", city.Code)
	}
	tmp.Track("region", region)
	eng := b.eng.WithRegion(region)

	opts, err := scenario.NewResolver(eng, tmp).Resolve(ctx, s)
	if err != nil {
		return opts, pipeline.Result{}, err
	}

	p := pipeline.New(eng, b.cfg.Recreation, tmp.Dir())
	p.Stdout = b.Stdout
	res, err := p.Run(ctx, opts)
	return opts, res, err
}
