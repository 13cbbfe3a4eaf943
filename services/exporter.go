package services

import (
	"context"
	"fmt"

	"property-ingest/models"
	"property-ingest/storage"
	"property-ingest/utils"
)

// Exporter writes the (optionally filtered) corpus as CSV, with price and
// area normalised.
type Exporter struct {
	catalog *Catalog
	cleaner *Cleaner
	logger  *utils.Logger
}

func NewExporter(catalog *Catalog, logger *utils.Logger) *Exporter {
	return &Exporter{catalog: catalog, cleaner: NewCleaner(logger), logger: logger}
}

// Export writes every listing matching f and returns how many were written.
func (e *Exporter) Export(ctx context.Context, w *storage.CSVWriter, f models.Filter) (int, error) {
	listings, err := e.catalog.List(ctx, f)
	if err != nil {
		return 0, err
	}
	rows := e.cleaner.ExportRows(listings)
	if err := w.WriteRows(rows); err != nil {
		return 0, fmt.Errorf("export: %w", err)
	}
	e.logger.Info("[export] Wrote %d listing(s)", len(rows))
	return len(rows), nil
}
