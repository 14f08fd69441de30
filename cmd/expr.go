package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/estimap/recreation/internal/mapcalc"
	"github.com/estimap/recreation/internal/rules"
)

var exprResult string

var exprCmd = &cobra.Command{
	Use:   "expr",
	Short: "Print the map algebra expressions of the model",
	Long:  "Renders the r.mapcalc equations the model would run, without touching a mapset.",
}

var exprDecayCmd = &cobra.Command{
	Use:   "decay <distance-map> <coefficients>",
	Short: "Distance-decay attractiveness, coefficients as metric,constant,kappa,alpha[,score]",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := rules.ParseCoefficients(args[1])
		if err != nil {
			return err
		}
		return printEquation(cmd, mapcalc.DistanceDecay(args[0], c))
	},
}

var exprMobilityCmd = &cobra.Command{
	Use:   "mobility <distance-categories-map> <population-map>",
	Short: "Flow of population over distance categories",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		unmet, _ := cmd.Flags().GetBool("unmet")
		r := cfg.Recreation
		if unmet {
			return printEquation(cmd, mapcalc.UnmetDemand(args[0], args[1], r.MobilityConstant, r.MobilityScore, mapcalc.MobilityCoefficients))
		}
		return printEquation(cmd, mapcalc.Mobility(args[0], args[1], r.MobilityConstant, r.MobilityScore, mapcalc.MobilityCoefficients))
	},
}

var exprNormalizeCmd = &cobra.Command{
	Use:   "normalize <map>",
	Short: "Min-max normalization",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lo, _ := cmd.Flags().GetFloat64("min")
		hi, _ := cmd.Flags().GetFloat64("max")
		return printEquation(cmd, mapcalc.Normalize(args[0], lo, hi))
	},
}

var exprSpectrumCmd = &cobra.Command{
	Use:   "spectrum <potential-classes> <opportunity-classes>",
	Short: "Recreation spectrum from potential and opportunity classes",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printEquation(cmd, mapcalc.Spectrum(args[0], args[1]))
	},
}

func printEquation(cmd *cobra.Command, expression string) error {
	out := expression
	if exprResult != "" {
		out = mapcalc.Equation(exprResult, expression)
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), out)
	return err
}

func init() {
	exprCmd.PersistentFlags().StringVar(&exprResult, "result", "", "render a full equation assigning to this map")

	exprMobilityCmd.Flags().Bool("unmet", false, "only the farthest distance category")
	exprNormalizeCmd.Flags().Float64("min", 0, "minimum of the map")
	exprNormalizeCmd.Flags().Float64("max", 1, "maximum of the map")

	exprCmd.AddCommand(exprDecayCmd)
	exprCmd.AddCommand(exprMobilityCmd)
	exprCmd.AddCommand(exprNormalizeCmd)
	exprCmd.AddCommand(exprSpectrumCmd)
	rootCmd.AddCommand(exprCmd)
}
