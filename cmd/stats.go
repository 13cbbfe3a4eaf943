package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show how many listings and history entries are stored",
	RunE: withApp(func(cmd *cobra.Command, _ []string, app *App) error {
		st, err := app.Catalog.Stats(cmd.Context())
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), st)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "listings: %d\nhistory:  %d\n", st.RecordCount, st.HistoryCount)
		return nil
	}),
}

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Print price and location insights over the stored listings",
	RunE: withApp(func(cmd *cobra.Command, _ []string, app *App) error {
		f, err := filterFromFlags(cmd)
		if err != nil {
			return err
		}
		listings, err := app.Catalog.List(cmd.Context(), f)
		if err != nil {
			return fmt.Errorf("insights: %w", err)
		}
		report := app.Insights.Generate(listings)
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), report)
		}
		app.Insights.Print(cmd.OutOrStdout(), report)
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(insightsCmd)
	addFilterFlags(insightsCmd)
}
