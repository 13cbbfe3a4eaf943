package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"property-ingest/models"
	"property-ingest/storage"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List, export and manage stored listings",
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored listings, optionally filtered",
	RunE: withApp(func(cmd *cobra.Command, _ []string, app *App) error {
		f, err := filterFromFlags(cmd)
		if err != nil {
			return err
		}
		listings, err := app.Catalog.List(cmd.Context(), f)
		if err != nil {
			return fmt.Errorf("list records: %w", err)
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, listings)
		}
		for _, l := range listings {
			fmt.Fprintf(out, "%s  %s  %-12s  %-14s  %s\n",
				l.ID, l.ScrapedAt.Format("2006-01-02"), l.PropertyType, l.Price, l.DisplayTitle())
		}
		fmt.Fprintf(out, "%d listing(s)\n", len(listings))
		return nil
	}),
}

var recordsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one listing as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
		l, err := app.Catalog.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), l)
	}),
}

var recordsDeleteCmd = &cobra.Command{
	Use:   "delete [id...]",
	Short: "Delete listings by id, or by filter with --by-filter",
	RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
		out := cmd.OutOrStdout()
		if byFilter, _ := cmd.Flags().GetBool("by-filter"); byFilter {
			f, err := filterFromFlags(cmd)
			if err != nil {
				return err
			}
			res, err := app.Catalog.DeleteByFilter(cmd.Context(), f)
			if err != nil {
				return fmt.Errorf("delete by filter: %w", err)
			}
			if jsonOutput {
				return printJSON(out, res)
			}
			fmt.Fprintf(out, "deleted %d, %d remaining\n", res.DeletedCount, res.RemainingCount)
			return nil
		}

		if len(args) == 0 {
			return fmt.Errorf("delete: give at least one id or --by-filter")
		}
		if len(args) == 1 {
			if err := app.Catalog.Delete(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("delete %s: %w", args[0], err)
			}
			fmt.Fprintf(out, "deleted %s\n", args[0])
			return nil
		}
		res, err := app.Catalog.DeleteMany(cmd.Context(), args)
		if err != nil {
			return fmt.Errorf("delete many: %w", err)
		}
		if jsonOutput {
			return printJSON(out, res)
		}
		fmt.Fprintf(out, "deleted %d, %d not found\n", res.DeletedCount, res.NotFoundCount)
		return nil
	}),
}

var recordsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export listings as CSV",
	RunE: withApp(func(cmd *cobra.Command, _ []string, app *App) error {
		f, err := filterFromFlags(cmd)
		if err != nil {
			return err
		}

		var w *storage.CSVWriter
		path, _ := cmd.Flags().GetString("out")
		if path == "" || path == "-" {
			w, err = storage.NewCSVStream(cmd.OutOrStdout())
		} else {
			w, err = storage.NewCSVWriter(path)
		}
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}

		n, err := app.Exporter.Export(cmd.Context(), w, f)
		if cerr := w.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		if path != "" && path != "-" {
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d listing(s) to %s\n", n, path)
		}
		return nil
	}),
}

var recordsReenhanceCmd = &cobra.Command{
	Use:   "reenhance <id>",
	Short: "Run the enhancer over a listing's original text again",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
		l, err := app.Catalog.Reenhance(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), l)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n  %s\n", l.EnhancedTitle, l.EnhancedDescription)
		return nil
	}),
}

var recordsRepairImagesCmd = &cobra.Command{
	Use:   "repair-images <id>",
	Short: "Download a listing's remote images again",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
		l, res, err := app.Catalog.RepairImages(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), l)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d downloaded, %d failed, %d image(s) kept\n",
			l.ID, res.Succeeded, res.Failed, len(l.Images))
		return nil
	}),
}

func addFilterFlags(c *cobra.Command) {
	c.Flags().String("start-date", "", "Earliest scrape date (YYYY-MM-DD or RFC 3339)")
	c.Flags().String("end-date", "", "Latest scrape date, inclusive")
	c.Flags().String("type", "", "Property type (exact, case-insensitive)")
	c.Flags().String("location", "", "Location substring")
	c.Flags().Int64("min-price", 0, "Minimum price")
	c.Flags().Int64("max-price", 0, "Maximum price")
}

func filterFromFlags(cmd *cobra.Command) (models.Filter, error) {
	var f models.Filter
	f.StartDate, _ = cmd.Flags().GetString("start-date")
	f.EndDate, _ = cmd.Flags().GetString("end-date")
	f.PropertyType, _ = cmd.Flags().GetString("type")
	f.Location, _ = cmd.Flags().GetString("location")
	if cmd.Flags().Changed("min-price") {
		v, _ := cmd.Flags().GetInt64("min-price")
		f.MinPrice = &v
	}
	if cmd.Flags().Changed("max-price") {
		v, _ := cmd.Flags().GetInt64("max-price")
		f.MaxPrice = &v
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		return f, fmt.Errorf("--min-price is above --max-price")
	}
	return f, nil
}

func init() {
	rootCmd.AddCommand(recordsCmd)
	recordsCmd.AddCommand(recordsListCmd)
	recordsCmd.AddCommand(recordsShowCmd)
	recordsCmd.AddCommand(recordsDeleteCmd)
	recordsCmd.AddCommand(recordsExportCmd)
	recordsCmd.AddCommand(recordsReenhanceCmd)
	recordsCmd.AddCommand(recordsRepairImagesCmd)

	addFilterFlags(recordsListCmd)
	addFilterFlags(recordsDeleteCmd)
	addFilterFlags(recordsExportCmd)
	recordsDeleteCmd.Flags().Bool("by-filter", false, "Delete every listing matching the filter flags")
	recordsExportCmd.Flags().StringP("out", "o", "", "Output CSV path (default stdout)")
}
