package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/estimap/recreation/internal/tempmap"
)

var cleanupPID int

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove temporary maps left behind by an interrupted run",
	RunE: func(cmd *cobra.Command, _ []string) error {
		eng := newEngine()
		if err := tempmap.CleanupProcess(cmd.Context(), eng, cleanupPID); err != nil {
			return err
		}
		zap.L().Info("removed temporary maps", zap.String("pattern", tempmap.PIDPrefix(cleanupPID)+"_*"))
		return nil
	},
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupPID, "pid", 0, "process id of the interrupted run")
	_ = cleanupCmd.MarkFlagRequired("pid")
	rootCmd.AddCommand(cleanupCmd)
}
