package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"property-ingest/models"
	"property-ingest/services"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest listings from pages or raw content",
}

var ingestURLCmd = &cobra.Command{
	Use:   "url <page-url>",
	Short: "Fetch one listing page and store its new listings",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
		res, err := app.Ingestor.IngestURL(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("ingest url: %w", err)
		}
		return printIngestResult(cmd.OutOrStdout(), res)
	}),
}

var ingestRawCmd = &cobra.Command{
	Use:   "raw [file]",
	Short: "Ingest pasted page content from a file or stdin",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
		content, err := readInput(cmd, args)
		if err != nil {
			return err
		}
		sourceURL, _ := cmd.Flags().GetString("source-url")
		res, err := app.Ingestor.IngestRaw(cmd.Context(), content, sourceURL)
		if err != nil {
			return fmt.Errorf("ingest raw: %w", err)
		}
		return printIngestResult(cmd.OutOrStdout(), res)
	}),
}

var ingestBulkCmd = &cobra.Command{
	Use:   "bulk [url...]",
	Short: "Ingest several listing pages one after another",
	RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
		urls := append([]string(nil), args...)
		if file, _ := cmd.Flags().GetString("file"); file != "" {
			fromFile, err := readURLList(file)
			if err != nil {
				return err
			}
			urls = append(urls, fromFile...)
		}

		res, err := app.Ingestor.IngestBulk(cmd.Context(), urls)
		if err != nil && res == nil {
			return fmt.Errorf("ingest bulk: %w", err)
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			if perr := printJSON(out, bulkView(res)); perr != nil {
				return perr
			}
			return err
		}
		fmt.Fprintf(out, "succeeded: %d  duplicates: %d  failed: %d  skipped: %d  new listings: %d\n",
			res.Succeeded, res.Duplicates, res.Failed, res.Skipped, len(res.Listings))
		for u, e := range res.Errors {
			fmt.Fprintf(out, "  failed %s: %v\n", u, e)
		}
		return err
	}),
}

func printIngestResult(w io.Writer, res *services.IngestResult) error {
	if jsonOutput {
		return printJSON(w, res.Listings)
	}
	fmt.Fprintf(w, "stored %d new listing(s)\n", len(res.Listings))
	for _, l := range res.Listings {
		fmt.Fprintf(w, "  %s  %s  %s\n", l.ID, l.DisplayTitle(), l.Price)
	}
	return nil
}

type bulkJSON struct {
	Succeeded  int               `json:"succeeded"`
	Duplicates int               `json:"duplicates"`
	Failed     int               `json:"failed"`
	Skipped    int               `json:"skipped"`
	Listings   []*models.Listing `json:"listings"`
	Errors     map[string]string `json:"errors,omitempty"`
}

func bulkView(res *services.BulkResult) bulkJSON {
	v := bulkJSON{
		Succeeded:  res.Succeeded,
		Duplicates: res.Duplicates,
		Failed:     res.Failed,
		Skipped:    res.Skipped,
		Listings:   res.Listings,
	}
	if len(res.Errors) > 0 {
		v.Errors = make(map[string]string, len(res.Errors))
		for u, e := range res.Errors {
			v.Errors[u] = e.Error()
		}
	}
	return v
}

func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		b, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("read %s: %w", args[0], err)
		}
		return string(b), nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(b), nil
}

// readURLList reads one URL per line, ignoring blanks and # comments.
func readURLList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open url list: %w", err)
	}
	defer f.Close()

	var urls []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read url list: %w", err)
	}
	return urls, nil
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.AddCommand(ingestURLCmd)
	ingestCmd.AddCommand(ingestRawCmd)
	ingestCmd.AddCommand(ingestBulkCmd)

	ingestRawCmd.Flags().String("source-url", "", "Page URL the content came from (optional)")
	ingestBulkCmd.Flags().String("file", "", "File with one URL per line")
}
