package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show or clear the ingestion history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent ingestion runs, newest first",
	RunE: withApp(func(cmd *cobra.Command, _ []string, app *App) error {
		entries, err := app.Catalog.History(cmd.Context())
		if err != nil {
			return fmt.Errorf("list history: %w", err)
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, entries)
		}
		for _, e := range entries {
			fmt.Fprintf(out, "%s  %-6s  %3d  %s\n",
				e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Kind, e.PropertyCount, e.Details)
		}
		if len(entries) == 0 {
			fmt.Fprintln(out, "no history")
		}
		return nil
	}),
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every history entry",
	RunE: withApp(func(cmd *cobra.Command, _ []string, app *App) error {
		if err := app.Catalog.ClearHistory(cmd.Context()); err != nil {
			return fmt.Errorf("clear history: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "history cleared")
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyClearCmd)
}
