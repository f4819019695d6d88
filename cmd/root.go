// Package cmd implements the medigenius command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "medigenius",
	Short: "Medical question-answering service",
	Long: `medigenius answers medical questions from a curated knowledge base,
falling back to web search when the knowledge base has no sufficient
answer, and attaches a diabetes risk assessment when the question
carries enough clinical indicators.

Run 'medigenius serve' to start the HTTP API.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
