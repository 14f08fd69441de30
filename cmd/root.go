package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/estimap/recreation/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "estimap",
	Short: "ESTIMAP recreation potential, opportunity and spectrum mapping",
	Long: "Scores land, water, natural and infrastructure layers with GRASS GIS, " +
		"combines them into recreation potential, opportunity and spectrum maps, " +
		"and derives demand, flow and supply/use tables.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
