package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/estimap/recreation/internal/batch"
	"github.com/estimap/recreation/internal/cities"
	"github.com/estimap/recreation/internal/config"
	"github.com/estimap/recreation/internal/scenario"
	"github.com/estimap/recreation/internal/store"
)

var (
	batchScenario    string
	batchCities      string
	batchMemberState string
	batchLimit       int
	batchNoRecord    bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run a scenario for every city",
	Long: "Lists cities from the configured source (postgres, shapefile or static codes) " +
		"and runs the scenario for each in its own region, several cities at a time.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if batchCities != "" {
			cfg.Batch.Cities.Source = "static"
			cfg.Batch.Cities.Codes = strings.Split(batchCities, ",")
		}
		if err := cfg.Validate("batch"); err != nil {
			return err
		}

		s, err := scenario.Load(batchScenario)
		if err != nil {
			return err
		}

		src, closeSource, err := openCitySource(ctx, cfg.Batch.Cities)
		if err != nil {
			return err
		}
		defer closeSource()

		var st store.Store
		if !batchNoRecord {
			st, err = initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
		}

		b := batch.New(newEngine(), *cfg, st)
		b.Stdout = os.Stdout
		sum, err := b.Run(ctx, src, batch.Options{
			Scenario:    s,
			MemberState: batchMemberState,
			Limit:       batchLimit,
		})
		formatBatchSummary(os.Stderr, sum)
		if err != nil {
			return err
		}
		if sum.Failed > 0 {
			return eris.Errorf("%d of %d cities failed", sum.Failed, sum.Failed+sum.Succeeded)
		}
		return nil
	},
}

// openCitySource returns the city source selected by the configuration and
// a function releasing its resources.
func openCitySource(ctx context.Context, c config.CitiesConfig) (cities.Source, func(), error) {
	switch c.Source {
	case "postgres":
		pool, err := cities.OpenPool(ctx, c.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return cities.NewPostgres(pool, c), pool.Close, nil
	case "shapefile":
		return cities.NewShapefile(c.Shapefile, c.CodeColumn, c.MemberStateColumn, c.CodeLength), func() {}, nil
	case "static":
		return cities.ParseCodes(strings.Join(c.Codes, ",")), func() {}, nil
	default:
		return nil, nil, eris.Errorf("unknown city source %q", c.Source)
	}
}

// formatBatchSummary writes the outcome of a batch, failed cities sorted by code.
func formatBatchSummary(w io.Writer, sum batch.Summary) {
	_, _ = fmt.Fprintf(w, "Succeeded: %d\nFailed: %d\n", sum.Succeeded, sum.Failed)
	codes := make([]string, 0, len(sum.Failures))
	for code := range sum.Failures {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		_, _ = fmt.Fprintf(w, "  %s: %s\n", code, sum.Failures[code])
	}
}

func init() {
	batchCmd.Flags().StringVar(&batchScenario, "scenario", "", "YAML scenario file (required)")
	batchCmd.Flags().StringVar(&batchCities, "cities", "", "comma-separated city codes, overriding the configured source")
	batchCmd.Flags().StringVar(&batchMemberState, "member-state", "", "only cities of this member state")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of cities to process (0 for all)")
	batchCmd.Flags().BoolVar(&batchNoRecord, "no-record", false, "do not record the runs in the ledger")
	_ = batchCmd.MarkFlagRequired("scenario")
	rootCmd.AddCommand(batchCmd)
}
