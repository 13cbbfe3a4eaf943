package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
)

var (
	debugFlag   bool
	backendFlag string
	jsonOutput  bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:          "property-ingest",
	Short:        "Ingest, deduplicate and manage real-estate listings",
	Long:         "Fetches listing pages or raw content, extracts and enhances listings, downloads their images and keeps a deduplicated corpus.",
	SilenceUsage: true,
}

// Execute runs the root command with ctx. It is called once by main.main().
func Execute(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging (overrides DEBUG)")
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "Storage backend: auto|file|postgres|mongo|memory (overrides STORAGE_BACKEND)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
}
