package main

import (
	"github.com/spf13/cobra"

	"github.com/docmill/docmill/version"
)

var (
	cfgFile string
	homeDir string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "docmill",
	Short: "Document extraction pipeline for business documents",
	Long: `Docmill converts uploaded business documents into structured markdown.

The pipeline includes:
  - Conversion of office formats and images to PDF
  - Per-page classification (text, image, chart)
  - Orientation normalization for scanned pages
  - Chunked layout analysis via the external analysis service
  - Chart and figure extraction with a vision model
  - Reconciliation of tables, text and charts into one document`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.docmill/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "docmill home directory (default: ~/.docmill)",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&verbose, "verbose", "v", false, "enable debug logging",
	)

	rootCmd.AddCommand(versionCmd)
}
