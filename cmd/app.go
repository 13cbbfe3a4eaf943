package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"property-ingest/collaborators"
	"property-ingest/config"
	"property-ingest/scraper"
	"property-ingest/services"
	"property-ingest/storage"
	"property-ingest/utils"
)

// App is everything a command needs, built once per invocation.
type App struct {
	Config   *config.Config
	Logger   *utils.Logger
	Store    storage.Adapter
	Ingestor *services.Ingestor
	Catalog  *services.Catalog
	Exporter *services.Exporter
	Insights *services.InsightService

	closers []func()
}

// Close releases the store and any browser started for fetching.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(cmd *cobra.Command) (*App, error) {
	cfg := config.Load()
	if backendFlag != "" {
		cfg.StorageBackend = backendFlag
	}

	logger := utils.NewLoggerTo(cmd.ErrOrStderr())
	logger.SetDebug(cfg.Debug || debugFlag)

	store, err := storage.New(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	app := &App{Config: cfg, Logger: logger, Store: store}
	app.closers = append(app.closers, func() {
		if err := store.Close(); err != nil {
			logger.Warn("[app] Closing storage: %v", err)
		}
	})

	var fetcher scraper.Fetcher
	switch cfg.FetchMode {
	case "browser":
		b := scraper.NewBrowserFetcher(cfg, logger)
		app.closers = append(app.closers, b.Close)
		fetcher = b
	case "", "http":
		fetcher = scraper.NewClient(cfg, logger)
	default:
		app.Close()
		return nil, fmt.Errorf("unknown FETCH_MODE %q", cfg.FetchMode)
	}

	openaiCfg := collaborators.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		BaseURL: cfg.OpenAIBaseURL,
		Timeout: time.Duration(cfg.FetchTimeoutSec) * 2 * time.Second,
	}

	var extractor services.Extractor
	switch cfg.Extractor {
	case "", "readability":
		extractor = collaborators.NewReadabilityExtractor(logger)
	case "json":
		extractor = collaborators.NewJSONExtractor(logger)
	case "openai":
		extractor = collaborators.NewOpenAIExtractor(openaiCfg, logger)
	default:
		app.Close()
		return nil, fmt.Errorf("unknown EXTRACTOR %q", cfg.Extractor)
	}

	var enhancer services.Enhancer
	switch cfg.Enhancer {
	case "openai":
		enhancer = collaborators.NewOpenAIEnhancer(openaiCfg, logger)
	case "passthrough":
		enhancer = collaborators.PassthroughEnhancer{}
	case "", "none":
	default:
		app.Close()
		return nil, fmt.Errorf("unknown ENHANCER %q", cfg.Enhancer)
	}

	images := services.NewImageDownloader(cfg, logger)
	app.Ingestor = services.NewIngestor(services.IngestorConfig{
		Store:     store,
		Fetcher:   fetcher,
		Extractor: extractor,
		Enhancer:  enhancer,
		Images:    images,
		Workers:   cfg.MaxConcurrency,
		URLPause:  time.Duration(cfg.RateLimitMs) * time.Millisecond,
	}, logger)
	app.Catalog = services.NewCatalog(store, images, enhancer, logger)
	app.Exporter = services.NewExporter(app.Catalog, logger)
	app.Insights = services.NewInsightService(logger)

	logger.Debug("[app] backend=%s fetch=%s extractor=%s enhancer=%s",
		cfg.StorageBackend, cfg.FetchMode, cfg.Extractor, cfg.Enhancer)
	return app, nil
}

func withApp(run func(cmd *cobra.Command, args []string, app *App) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()
		return run(cmd, args, app)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
