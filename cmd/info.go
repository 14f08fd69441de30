package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/estimap/recreation/internal/rules"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print the citation of the recreation model",
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), rules.Citation)
		return err
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
