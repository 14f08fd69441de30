package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"reflect"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/estimap/recreation/internal/pipeline"
	"github.com/estimap/recreation/internal/scenario"
	"github.com/estimap/recreation/internal/tempmap"
)

var (
	runOpts        pipeline.Options
	runScenario    string
	runCity        string
	runMemberState string
	runNoRecord    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Compute recreation maps for the current region",
	Long: "Runs one recreation model in the configured GRASS mapset. Inputs and outputs " +
		"come from flags or from a YAML scenario file (--scenario).",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("run"); err != nil {
			return err
		}

		s, err := runScenarioFor(runOpts, runScenario, runCity, runMemberState)
		if err != nil {
			return err
		}

		eng := newEngine()
		tmp := tempmap.New("")
		defer func() {
			if cerr := tmp.Cleanup(context.WithoutCancel(ctx), eng, s.Options.KeepTemporary); cerr != nil {
				zap.L().Warn("cleanup of temporary maps failed", zap.Error(cerr))
			}
		}()

		opts, err := scenario.NewResolver(eng, tmp).Resolve(ctx, s)
		if err != nil {
			return eris.Wrap(err, "resolve scenario")
		}

		var rec *runRecorder
		if !runNoRecord {
			rec, err = startRun(ctx, s.Name, runCity)
			if err != nil {
				return err
			}
			defer rec.Close()
		}

		start := time.Now()
		res, err := pipeline.New(eng, cfg.Recreation, tmp.Dir()).Run(ctx, opts)
		if err != nil {
			rec.Fail(ctx, err)
			return eris.Wrap(err, "recreation run")
		}
		summary := res.Summary(time.Since(start), opts)
		rec.Complete(ctx, summary)

		zap.L().Info("recreation run complete",
			zap.String("scenario", s.Name),
			zap.Duration("elapsed", time.Since(start)),
		)

		if opts.PrintOnly {
			return nil
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

// runScenarioFor builds the scenario of a run: the scenario file when path
// is set, otherwise the option flags.
func runScenarioFor(flags pipeline.Options, path, city, memberState string) (*scenario.Scenario, error) {
	if path == "" {
		return &scenario.Scenario{Name: "run", Options: flags}, nil
	}
	if !reflect.DeepEqual(flags, pipeline.Options{}) {
		return nil, eris.New("option flags cannot be combined with --scenario")
	}
	s, err := scenario.Load(path)
	if err != nil {
		return nil, err
	}
	if s.PerCity() && city == "" {
		return nil, eris.Errorf("scenario %s uses {city}; set --city", s.Name)
	}
	return s.Expand(city, memberState), nil
}

// bindOptionFlags registers one flag per run option.
func bindOptionFlags(cmd *cobra.Command, o *pipeline.Options) {
	f := cmd.Flags()

	f.StringSliceVar(&o.Land, "land", nil, "land component maps")
	f.StringSliceVar(&o.Natural, "natural", nil, "natural component maps")
	f.StringSliceVar(&o.Water, "water", nil, "water component maps")
	f.StringSliceVar(&o.Infrastructure, "infrastructure", nil, "infrastructure component maps")

	f.StringVar(&o.LandUse, "landuse", "", "categorical land use map (e.g. CORINE)")
	f.StringVar(&o.SuitabilityScores, "suitability-scores", "", "land use suitability scores (file or inline rules)")
	f.StringVar(&o.LandCover, "landcover", "", "land cover map for the supply table")
	f.StringVar(&o.LandClasses, "land-classes", "", "land cover to MAES ecosystem type rules")

	f.StringVar(&o.Lakes, "lakes", "", "lakes map")
	f.StringVar(&o.LakesCoefficients, "lakes-coefficients", "", "lakes distance-decay coefficients: metric,constant,kappa,alpha[,score]")
	f.StringVar(&o.Coastline, "coastline", "", "coastline map")
	f.StringVar(&o.CoastlineCoefficients, "coastline-coefficients", "", "coastline distance-decay coefficients")
	f.StringVar(&o.CoastGeomorphology, "coast-geomorphology", "", "coastal geomorphology map")
	f.StringVar(&o.BathingWater, "bathing-water", "", "bathing water quality map")
	f.StringVar(&o.BathingCoefficients, "bathing-coefficients", "", "bathing water distance-decay coefficients")

	f.StringVar(&o.Protected, "protected", "", "protected areas map")
	f.StringVar(&o.ProtectedScores, "protected-scores", "", "protected area scores (file or inline rules)")

	f.StringVar(&o.Artificial, "artificial", "", "artificial surfaces map")
	f.StringVar(&o.ArtificialDistances, "artificial-distances", "", "artificial surface distance categories")
	f.StringVar(&o.Roads, "roads", "", "roads map")
	f.StringVar(&o.RoadsDistances, "roads-distances", "", "road distance categories")

	f.StringVar(&o.Mask, "mask", "", "restrict the computation to this map")

	f.StringVar(&o.Potential, "potential", "", "recreation potential output map")
	f.StringVar(&o.Opportunity, "opportunity", "", "recreation opportunity output map")
	f.StringVar(&o.Spectrum, "spectrum", "", "recreation spectrum output map")
	f.StringVar(&o.SpectrumDistances, "spectrum-distances", "", "distance categories to the highest spectrum")

	f.StringVar(&o.Base, "base", "", "base zones map")
	f.StringVar(&o.BaseVector, "base-vector", "", "vector map updated with zonal statistics")
	f.StringVar(&o.Aggregation, "aggregation", "", "aggregation zones of the supply and use tables")
	f.StringVar(&o.Population, "population", "", "population map")

	f.StringVar(&o.Demand, "demand", "", "demand output map")
	f.StringVar(&o.Unmet, "unmet", "", "unmet demand output map")
	f.StringVar(&o.Flow, "flow", "", "flow output map")

	f.StringVar(&o.Supply, "supply", "", "supply table CSV file")
	f.StringVar(&o.Use, "use", "", "use table CSV file")
	f.StringVar(&o.Workbook, "workbook", "", "supply and use XLSX workbook")

	f.StringVar(&o.Metric, "metric", "", "distance metric (euclidean, squared, maximum, manhattan, geodesic)")
	f.StringVar(&o.Units, "units", "", "comma-separated area units (me, k, h, a, mi, c, p)")
	f.StringVar(&o.Timestamp, "timestamp", "", "timestamp of the spectrum map")

	f.BoolVar(&o.LandUseExtent, "landuse-extent", false, "match the region to the land use map")
	f.BoolVar(&o.Filter, "filter", false, "smooth the land and natural components")
	f.BoolVar(&o.KeepTemporary, "keep-temporary", false, "keep temporary maps")
	f.BoolVar(&o.PrintOnly, "print-only", false, "print the supply and use tables instead of writing files")
}

func init() {
	bindOptionFlags(runCmd, &runOpts)
	runCmd.Flags().StringVar(&runScenario, "scenario", "", "YAML scenario file")
	runCmd.Flags().StringVar(&runCity, "city", "", "city code substituted for {city}")
	runCmd.Flags().StringVar(&runMemberState, "member-state", "", "member state substituted for {ms}")
	runCmd.Flags().BoolVar(&runNoRecord, "no-record", false, "do not record the run in the ledger")
	rootCmd.AddCommand(runCmd)
}
